// Package payments issues payment intents and reconciles asynchronous
// settlement notifications with orders, reservations and the points ledger.
package payments

import (
	"context"
	"time"

	"github.com/ariefcatur/go-realtime-venue/internal/apperr"
	"github.com/ariefcatur/go-realtime-venue/internal/fanout"
	"github.com/ariefcatur/go-realtime-venue/internal/gateway"
	"github.com/ariefcatur/go-realtime-venue/internal/loyalty"
	"github.com/ariefcatur/go-realtime-venue/internal/models"
	"github.com/ariefcatur/go-realtime-venue/internal/orders"
	"github.com/ariefcatur/go-realtime-venue/internal/repository"
	"github.com/ariefcatur/go-realtime-venue/internal/serial"
	"github.com/ariefcatur/go-realtime-venue/internal/tables"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const staleBatch = 100

type Service struct {
	Store   repository.Store
	Fanout  *fanout.Dispatcher
	Log     *zap.Logger
	Gateway gateway.Gateway
	Orders  *orders.Service
	Tables  *tables.Service
	Loyalty *loyalty.Ledger
	// TTL is how long a payment may stay PENDING or PROCESSING before ExpireStale cancels it.
	TTL time.Duration
	Now func() time.Time
}

func NewService(store repository.Store, fan *fanout.Dispatcher, log *zap.Logger, gw gateway.Gateway,
	ord *orders.Service, tbl *tables.Service, loy *loyalty.Ledger, ttl time.Duration) *Service {
	return &Service{Store: store, Fanout: fan, Log: log, Gateway: gw, Orders: ord, Tables: tbl, Loyalty: loy, TTL: ttl, Now: time.Now}
}

type InitiateInput struct {
	Type      models.PaymentType   `json:"type"`
	SubjectID string               `json:"subject_id"`
	Amount    int64                `json:"amount,omitempty"`
	Method    models.PaymentMethod `json:"method"`
	MemberID  string               `json:"member_id,omitempty"`
	// RechargePoints defaults to one point per currency unit when zero.
	RechargePoints int64 `json:"recharge_points,omitempty"`
	BonusPoints    int64 `json:"bonus_points,omitempty"`
}

type Settlement struct {
	PaymentOrderNo string `json:"payment_order_no"`
	ProviderRef    string `json:"provider_ref"`
	PaidAmount     int64  `json:"paid_amount"`
}

// Initiate records a PENDING payment, then asks the provider for an intent.
// The row is committed before the provider call so a callback that races the
// response still finds it.
func (s *Service) Initiate(ctx context.Context, in InitiateInput) (*models.Payment, error) {
	if !in.Method.Valid() {
		return nil, apperr.New(apperr.InvalidInput, "unknown payment method %q", in.Method)
	}
	if in.Amount < 0 || in.RechargePoints < 0 || in.BonusPoints < 0 {
		return nil, apperr.New(apperr.InvalidInput, "amounts and points must not be negative")
	}
	now := s.Now()
	no, err := serial.New(serial.PrefixPayment, now)
	if err != nil {
		return nil, err
	}

	var (
		p    *models.Payment
		desc string
	)
	err = s.Store.WithTx(ctx, func(r *repository.Repository) error {
		p = &models.Payment{
			ID:             uuid.NewString(),
			PaymentOrderNo: no,
			Type:           in.Type,
			Method:         in.Method,
			Status:         models.PaymentPending,
			CreatedAt:      now,
		}
		switch in.Type {
		case models.PaymentOrder:
			o, err := r.Orders.GetForUpdate(ctx, in.SubjectID)
			if err != nil {
				return err
			}
			if o == nil {
				return apperr.New(apperr.NotFound, "order %s not found", in.SubjectID)
			}
			if o.Status != models.OrderPending && o.Status != models.OrderPaymentFailed {
				return apperr.New(apperr.InvalidState, "order %s is %s", o.ID, o.Status)
			}
			p.Amount, p.OrderID, p.MemberID = o.TotalAmount, &o.ID, o.MemberID
			desc = "order " + o.OrderNo
		case models.PaymentDeposit:
			res, err := r.Reservations.GetForUpdate(ctx, in.SubjectID)
			if err != nil {
				return err
			}
			if res == nil {
				return apperr.New(apperr.NotFound, "reservation %s not found", in.SubjectID)
			}
			if res.Status != models.ReservationPending || res.DepositPaid || res.DepositAmount == 0 {
				return apperr.New(apperr.InvalidState, "reservation %s does not await a deposit", res.ID)
			}
			p.Amount, p.ReservationID, p.MemberID = res.DepositAmount, &res.ID, res.MemberID
			desc = "deposit for " + res.CustomerName
		case models.PaymentRecharge:
			memberID := in.MemberID
			if memberID == "" {
				memberID = in.SubjectID
			}
			m, err := r.Members.Get(ctx, memberID)
			if err != nil {
				return err
			}
			if m == nil {
				return apperr.New(apperr.NotFound, "member %s not found", memberID)
			}
			p.Amount, p.MemberID = in.Amount, &m.ID
			p.RechargePoints, p.BonusPoints = in.RechargePoints, in.BonusPoints
			if p.RechargePoints == 0 {
				p.RechargePoints = loyalty.PointsFor(in.Amount)
			}
			desc = "points recharge"
		default:
			return apperr.New(apperr.InvalidInput, "payment type %q cannot be initiated", in.Type)
		}
		if in.Type != models.PaymentRecharge && in.Amount != 0 && in.Amount != p.Amount {
			return apperr.WithDetails(apperr.AmountMismatch, "amount does not match the amount due",
				map[string]any{"expected": p.Amount, "got": in.Amount})
		}
		if p.Amount <= 0 {
			return apperr.New(apperr.InvalidInput, "nothing to pay")
		}
		return r.Payments.Create(ctx, p)
	})
	if err != nil {
		return nil, err
	}

	ref, gwErr := s.Gateway.CreateIntent(ctx, gateway.Intent{
		PaymentOrderNo: p.PaymentOrderNo,
		Amount:         p.Amount,
		Method:         string(p.Method),
		Description:    desc,
		PayerRef:       models.Deref(p.MemberID),
	})

	b := fanout.NewBatch()
	var out *models.Payment
	err = s.Store.WithTx(ctx, func(r *repository.Repository) error {
		cur, err := r.Payments.GetByOrderNoForUpdate(ctx, p.PaymentOrderNo)
		if err != nil {
			return err
		}
		if cur == nil {
			return apperr.New(apperr.NotFound, "payment %s not found", p.PaymentOrderNo)
		}
		out = cur
		if cur.Status != models.PaymentPending {
			// a callback already moved it on
			if gwErr == nil && cur.ProviderRef == "" {
				cur.ProviderRef = ref
				return r.Payments.Update(ctx, cur)
			}
			return nil
		}
		prev := cur.Status
		if gwErr != nil {
			cur.Status, _ = NextPayment(prev, IntentFailed)
			reason := gwErr.Error()
			cur.FailureReason = &reason
		} else {
			cur.Status, _ = NextPayment(prev, IntentCreated)
			cur.ProviderRef = ref
		}
		if err := r.Payments.Update(ctx, cur); err != nil {
			return err
		}
		b.Payment(cur, prev)
		if gwErr != nil && cur.Type == models.PaymentOrder {
			o, err := r.Orders.Get(ctx, *cur.OrderID)
			if err != nil {
				return err
			}
			if o != nil && o.Status == models.OrderPending {
				if _, err := s.Orders.UpdateStatusTx(ctx, r, b, o.ID, models.OrderPaymentFailed); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.Fanout.Flush(ctx, b)

	if gwErr != nil {
		s.Log.Warn("payment intent failed", zap.String("payment_order_no", out.PaymentOrderNo), zap.Error(gwErr))
		return out, apperr.Wrap(apperr.PaymentProviderError, gwErr, "create payment intent")
	}
	s.Log.Info("payment initiated", zap.String("payment_order_no", out.PaymentOrderNo),
		zap.String("type", string(out.Type)), zap.Int64("amount", out.Amount))
	return out, nil
}

// ApplySettlement applies a provider's success notification exactly once.
// Redelivery of a settled notification is a successful no-op. A payment that
// was cancelled or expired before the notification arrived is still recorded
// as SUCCESS; its subject is updated only while it still awaits payment.
func (s *Service) ApplySettlement(ctx context.Context, st Settlement) (*models.Payment, error) {
	if st.PaymentOrderNo == "" {
		return nil, apperr.New(apperr.InvalidInput, "payment_order_no is required")
	}
	var (
		out     *models.Payment
		applied bool
	)
	b := fanout.NewBatch()
	err := s.Store.WithTx(ctx, func(r *repository.Repository) error {
		p, err := r.Payments.GetByOrderNoForUpdate(ctx, st.PaymentOrderNo)
		if err != nil {
			return err
		}
		if p == nil {
			return apperr.New(apperr.NotFound, "payment %s not found", st.PaymentOrderNo)
		}
		out = p
		prev := p.Status
		next, err := NextPayment(prev, Settle)
		if err != nil {
			return err
		}
		if next == prev {
			return nil
		}
		if st.PaidAmount != p.Amount {
			return apperr.WithDetails(apperr.AmountMismatch, "paid amount differs from payment amount",
				map[string]any{"expected": p.Amount, "paid": st.PaidAmount})
		}

		if prev == models.PaymentCancelled {
			s.Log.Warn("late settlement for a cancelled payment",
				zap.String("payment_order_no", p.PaymentOrderNo), zap.String("reason", models.Deref(p.FailureReason)))
		}
		now := s.Now()
		p.Status = next
		p.PaidAmount = st.PaidAmount
		p.PaidAt = &now
		if st.ProviderRef != "" {
			p.ProviderRef = st.ProviderRef
		}
		if err := r.Payments.Update(ctx, p); err != nil {
			return err
		}
		b.Payment(p, prev)
		applied = true
		return s.settleSubject(ctx, r, b, p)
	})
	if err != nil {
		return nil, err
	}
	s.Fanout.Flush(ctx, b)
	if applied {
		s.Log.Info("payment settled", zap.String("payment_order_no", out.PaymentOrderNo),
			zap.String("type", string(out.Type)), zap.Int64("paid", out.PaidAmount))
	}
	return out, nil
}

func (s *Service) settleSubject(ctx context.Context, r *repository.Repository, b *fanout.Batch, p *models.Payment) error {
	switch p.Type {
	case models.PaymentOrder:
		o, err := r.Orders.Get(ctx, models.Deref(p.OrderID))
		if err != nil {
			return err
		}
		if o == nil {
			return apperr.New(apperr.NotFound, "order %s not found", models.Deref(p.OrderID))
		}
		if o.Status == models.OrderCancelled || o.Status == models.OrderCompleted || o.PaidAt != nil {
			s.Log.Warn("settlement for a closed or already paid order needs a manual refund",
				zap.String("payment_order_no", p.PaymentOrderNo), zap.String("order_id", o.ID),
				zap.String("order_status", string(o.Status)))
			return nil
		}
		_, err = s.Orders.UpdateStatusTx(ctx, r, b, o.ID, models.OrderPaid)
		return err
	case models.PaymentDeposit:
		res, err := r.Reservations.Get(ctx, models.Deref(p.ReservationID))
		if err != nil {
			return err
		}
		if res == nil {
			return apperr.New(apperr.NotFound, "reservation %s not found", models.Deref(p.ReservationID))
		}
		if res.Status == models.ReservationCancelled || (res.DepositPaid && models.Deref(res.PaymentID) != p.ID) {
			s.Log.Warn("deposit settled for a cancelled or already paid reservation needs a manual refund",
				zap.String("payment_order_no", p.PaymentOrderNo), zap.String("reservation_id", res.ID))
			return nil
		}
		_, err = s.Tables.ConfirmDepositTx(ctx, r, b, res.ID, p.ID)
		return err
	case models.PaymentRecharge:
		_, err := s.Loyalty.EarnTx(ctx, r, b, loyalty.Grant{
			MemberID:  models.Deref(p.MemberID),
			Points:    p.RechargePoints + p.BonusPoints,
			PaymentID: p.ID,
			Note:      "recharge " + p.PaymentOrderNo,
		})
		return err
	}
	return nil
}

// Cancel abandons a payment that has not settled.
func (s *Service) Cancel(ctx context.Context, paymentOrderNo string) (*models.Payment, error) {
	return s.move(ctx, paymentOrderNo, Cancel, "")
}

func (s *Service) move(ctx context.Context, paymentOrderNo string, ev Event, reason string) (*models.Payment, error) {
	var out *models.Payment
	b := fanout.NewBatch()
	err := s.Store.WithTx(ctx, func(r *repository.Repository) error {
		p, err := r.Payments.GetByOrderNoForUpdate(ctx, paymentOrderNo)
		if err != nil {
			return err
		}
		if p == nil {
			return apperr.New(apperr.NotFound, "payment %s not found", paymentOrderNo)
		}
		prev := p.Status
		if p.Status, err = NextPayment(prev, ev); err != nil {
			return err
		}
		if reason != "" {
			p.FailureReason = &reason
		}
		if err := r.Payments.Update(ctx, p); err != nil {
			return err
		}
		b.Payment(p, prev)
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.Fanout.Flush(ctx, b)
	s.Log.Info("payment moved", zap.String("payment_order_no", paymentOrderNo), zap.String("event", string(ev)),
		zap.String("status", string(out.Status)))
	return out, nil
}

// Refund returns a settled order payment through the provider, records a
// REFUND row, cancels the order and takes back the points it earned.
func (s *Service) Refund(ctx context.Context, paymentOrderNo, reason string) (*models.Payment, error) {
	p, err := s.Get(ctx, paymentOrderNo)
	if err != nil {
		return nil, err
	}
	if p.Type != models.PaymentOrder {
		return nil, apperr.New(apperr.InvalidState, "only order payments can be refunded")
	}
	if p.Status == models.PaymentRefunded {
		return p, nil
	}
	if _, err := NextPayment(p.Status, Refund); err != nil {
		return nil, err
	}
	if err := s.Gateway.Refund(ctx, p.ProviderRef, p.PaidAmount); err != nil {
		return nil, apperr.Wrap(apperr.PaymentProviderError, err, "refund")
	}

	now := s.Now()
	no, err := serial.New(serial.PrefixRefund, now)
	if err != nil {
		return nil, err
	}
	var out *models.Payment
	b := fanout.NewBatch()
	err = s.Store.WithTx(ctx, func(r *repository.Repository) error {
		cur, err := r.Payments.GetByOrderNoForUpdate(ctx, paymentOrderNo)
		if err != nil {
			return err
		}
		out = cur
		if cur.Status == models.PaymentRefunded {
			return nil
		}
		prev := cur.Status
		if cur.Status, err = NextPayment(prev, Refund); err != nil {
			return err
		}
		if err := r.Payments.Update(ctx, cur); err != nil {
			return err
		}
		b.Payment(cur, prev)

		refund := &models.Payment{
			ID:              uuid.NewString(),
			PaymentOrderNo:  no,
			Type:            models.PaymentRefundType,
			Method:          cur.Method,
			Status:          models.PaymentSuccess,
			Amount:          cur.PaidAmount,
			PaidAmount:      cur.PaidAmount,
			OrderID:         cur.OrderID,
			MemberID:        cur.MemberID,
			ProviderRef:     cur.ProviderRef,
			FailureReason:   models.StringPtr(reason),
			ParentPaymentID: &cur.ID,
			PaidAt:          &now,
			CreatedAt:       now,
		}
		if err := r.Payments.Create(ctx, refund); err != nil {
			return err
		}

		o, err := s.Orders.UpdateStatusTx(ctx, r, b, models.Deref(cur.OrderID), models.OrderCancelled)
		if err != nil {
			return err
		}
		_, err = s.Loyalty.RevokeTx(ctx, r, b, models.Deref(o.MemberID), o.ID, loyalty.PointsFor(o.TotalAmount))
		return err
	})
	if err != nil {
		return nil, err
	}
	s.Fanout.Flush(ctx, b)
	s.Log.Info("payment refunded", zap.String("payment_order_no", paymentOrderNo),
		zap.String("refund_no", no), zap.String("reason", reason))
	return out, nil
}

// ExpireStale cancels payments left PENDING or PROCESSING longer than TTL.
// The order stays PENDING and can be paid again; a callback that still
// arrives for an expired payment is applied by ApplySettlement.
func (s *Service) ExpireStale(ctx context.Context) (int, error) {
	stale, err := s.Store.Repos().Payments.ListStale(ctx, s.Now().Add(-s.TTL), staleBatch)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, p := range stale {
		if _, err := s.move(ctx, p.PaymentOrderNo, Expire, "expired"); err != nil {
			if apperr.KindOf(err) == apperr.InvalidState {
				continue // settled meanwhile
			}
			return n, err
		}
		n++
	}
	if n > 0 {
		s.Log.Info("stale payments expired", zap.Int("count", n))
	}
	return n, nil
}

func (s *Service) Get(ctx context.Context, paymentOrderNo string) (*models.Payment, error) {
	p, err := s.Store.Repos().Payments.GetByOrderNo(ctx, paymentOrderNo)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apperr.New(apperr.NotFound, "payment %s not found", paymentOrderNo)
	}
	return p, nil
}
