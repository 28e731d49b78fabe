package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	EventTableStatusChanged       = "TableStatusChanged"
	EventReservationStatusChanged = "ReservationStatusChanged"
	EventOrderStatusChanged       = "OrderStatusChanged"
	EventPaymentStatusChanged     = "PaymentStatusChanged"
	EventCouponClaimed            = "CouponClaimed"
	EventLoyaltyPosted            = "LoyaltyPosted"
	EventPaymentCallback          = "PaymentCallback"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // entity id, also the partition key
	Payload       json.RawMessage `json:"payload"`
}

func New(eventType, producer, correlationID string, payload any) (Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		CorrelationID: correlationID,
		Payload:       b,
	}, nil
}

func Decode[T any](env Envelope) (T, error) {
	var t T
	err := json.Unmarshal(env.Payload, &t)
	return t, err
}

// Publisher delivers envelopes after the producing transaction has committed.
// Delivery is best effort.
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
}

type Nop struct{}

func (Nop) Publish(context.Context, Envelope) error { return nil }

type StatusChangedPayload struct {
	ID     string `json:"id"`
	From   string `json:"from,omitempty"`
	Status string `json:"status"`
	Ref    string `json:"ref,omitempty"`
}

type CouponClaimedPayload struct {
	MemberCouponID string    `json:"member_coupon_id"`
	CouponID       string    `json:"coupon_id"`
	MemberID       string    `json:"member_id"`
	EndTime        time.Time `json:"end_time"`
}

type LoyaltyPostedPayload struct {
	MemberID string `json:"member_id"`
	Type     string `json:"type"`
	Points   int64  `json:"points"`
	Balance  int64  `json:"balance"`
	OrderID  string `json:"order_id,omitempty"`
}

// PaymentCallbackPayload is the inbound settlement notification.
type PaymentCallbackPayload struct {
	PaymentOrderNo string `json:"payment_order_no"`
	ProviderRef    string `json:"provider_ref"`
	PaidAmount     int64  `json:"paid_amount"`
}
