package orders

import (
	"github.com/ariefcatur/go-realtime-venue/internal/apperr"
	"github.com/ariefcatur/go-realtime-venue/internal/models"
)

type Effect string

const (
	EffectGrantPoints   Effect = "GRANT_POINTS"
	EffectConsumeCoupon Effect = "CONSUME_COUPON"
	EffectRestock       Effect = "RESTOCK"
	EffectReleaseTable  Effect = "RELEASE_TABLE"
)

var (
	enterPaid      = []Effect{EffectGrantPoints, EffectConsumeCoupon}
	enterCancelled = []Effect{EffectRestock, EffectReleaseTable}
	enterCompleted = []Effect{EffectReleaseTable}
)

var orderNext = map[models.OrderStatus]map[models.OrderStatus][]Effect{
	models.OrderPending: {
		models.OrderPaid:          enterPaid,
		models.OrderPaymentFailed: nil,
		models.OrderInProgress:    nil,
		models.OrderCancelled:     enterCancelled,
	},
	models.OrderPaymentFailed: {
		models.OrderPaid:      enterPaid,
		models.OrderCancelled: enterCancelled,
	},
	models.OrderPaid: {
		models.OrderInProgress: nil,
		models.OrderCompleted:  enterCompleted,
		models.OrderCancelled:  enterCancelled,
	},
	models.OrderInProgress: {
		models.OrderPaid:      enterPaid,
		models.OrderCompleted: enterCompleted,
		models.OrderCancelled: enterCancelled,
	},
	models.OrderCompleted: {
		models.OrderCancelled: enterCancelled,
	},
	models.OrderCancelled: {},
}

type Transition struct {
	From    models.OrderStatus
	To      models.OrderStatus
	NoOp    bool
	Effects []Effect
}

// NextOrder validates a move to target. Re-entering the current status is a
// no-op, which makes redelivered updates harmless.
func NextOrder(cur, target models.OrderStatus) (Transition, error) {
	edges, known := orderNext[cur]
	if !known {
		return Transition{}, apperr.New(apperr.InvalidState, "unknown order status %s", cur)
	}
	if cur == target {
		return Transition{From: cur, To: target, NoOp: true}, nil
	}
	effects, ok := edges[target]
	if !ok {
		return Transition{}, apperr.New(apperr.InvalidTransition, "order %s cannot move to %s", cur, target)
	}
	return Transition{From: cur, To: target, Effects: effects}, nil
}

func (t Transition) Has(e Effect) bool {
	for _, x := range t.Effects {
		if x == e {
			return true
		}
	}
	return false
}
