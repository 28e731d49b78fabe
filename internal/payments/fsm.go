package payments

import (
	"github.com/ariefcatur/go-realtime-venue/internal/apperr"
	"github.com/ariefcatur/go-realtime-venue/internal/models"
)

type Event string

const (
	IntentCreated Event = "INTENT_CREATED"
	IntentFailed  Event = "INTENT_FAILED"
	Settle        Event = "SETTLE"
	Cancel        Event = "CANCEL"
	Expire        Event = "EXPIRE"
	Refund        Event = "REFUND"
)

var paymentNext = map[models.PaymentStatus]map[Event]models.PaymentStatus{
	models.PaymentPending: {
		IntentCreated: models.PaymentProcessing,
		IntentFailed:  models.PaymentFailed,
		Settle:        models.PaymentSuccess,
		Cancel:        models.PaymentCancelled,
		Expire:        models.PaymentCancelled,
	},
	models.PaymentProcessing: {
		IntentFailed: models.PaymentFailed,
		Settle:       models.PaymentSuccess,
		Cancel:       models.PaymentCancelled,
		Expire:       models.PaymentCancelled,
	},
	models.PaymentSuccess: {
		Settle: models.PaymentSuccess,
		Refund: models.PaymentRefunded,
	},
	models.PaymentRefunded: {
		Settle: models.PaymentRefunded,
	},
	models.PaymentFailed: {},
	models.PaymentCancelled: {
		// the provider captured after we gave up waiting
		Settle: models.PaymentSuccess,
	},
}

// NextPayment is the payment transition function. Settling a settled or
// refunded payment maps onto itself so redelivered callbacks are harmless,
// and a cancelled payment still settles because the money was taken.
func NextPayment(cur models.PaymentStatus, ev Event) (models.PaymentStatus, error) {
	next, ok := paymentNext[cur][ev]
	if !ok {
		return cur, apperr.New(apperr.InvalidState, "payment %s cannot %s", cur, ev)
	}
	return next, nil
}
