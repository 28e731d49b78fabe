// Package orders runs the order pipeline: seat the party, take stock, price
// the lines, apply a coupon and drive the order through its lifecycle.
package orders

import (
	"context"
	"time"

	"github.com/ariefcatur/go-realtime-venue/internal/apperr"
	"github.com/ariefcatur/go-realtime-venue/internal/coupons"
	"github.com/ariefcatur/go-realtime-venue/internal/fanout"
	"github.com/ariefcatur/go-realtime-venue/internal/inventory"
	"github.com/ariefcatur/go-realtime-venue/internal/loyalty"
	"github.com/ariefcatur/go-realtime-venue/internal/models"
	"github.com/ariefcatur/go-realtime-venue/internal/repository"
	"github.com/ariefcatur/go-realtime-venue/internal/serial"
	"github.com/ariefcatur/go-realtime-venue/internal/tables"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Service struct {
	Store     repository.Store
	Fanout    *fanout.Dispatcher
	Log       *zap.Logger
	Tables    *tables.Service
	Inventory *inventory.Ledger
	Coupons   *coupons.Service
	Loyalty   *loyalty.Ledger
	Now       func() time.Time
}

func NewService(store repository.Store, fan *fanout.Dispatcher, log *zap.Logger,
	tbl *tables.Service, inv *inventory.Ledger, cpn *coupons.Service, loy *loyalty.Ledger) *Service {
	return &Service{Store: store, Fanout: fan, Log: log, Tables: tbl, Inventory: inv, Coupons: cpn, Loyalty: loy, Now: time.Now}
}

type CreateOrderInput struct {
	Items          []inventory.Line `json:"items"`
	MemberID       string           `json:"member_id,omitempty"`
	ReservationID  string           `json:"reservation_id,omitempty"`
	TableID        string           `json:"table_id,omitempty"`
	MemberCouponID string           `json:"member_coupon_id,omitempty"`
}

// CreateOrder places an order in one transaction. Any failure leaves stock,
// table, reservation and coupon exactly as they were.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (*models.Order, error) {
	if len(in.Items) == 0 {
		return nil, apperr.New(apperr.InvalidInput, "at least one item is required")
	}
	now := s.Now()
	orderNo, err := serial.New(serial.PrefixOrder, now)
	if err != nil {
		return nil, err
	}

	var out *models.Order
	b := fanout.NewBatch()
	err = s.Store.WithTx(ctx, func(r *repository.Repository) error {
		memberID := in.MemberID
		tableID := in.TableID

		switch {
		case in.ReservationID != "":
			res, err := r.Reservations.Get(ctx, in.ReservationID)
			if err != nil {
				return err
			}
			if res == nil {
				return apperr.New(apperr.NotFound, "reservation %s not found", in.ReservationID)
			}
			if res.Status == models.ReservationCancelled {
				return apperr.New(apperr.InvalidState, "reservation %s is cancelled", res.ID)
			}
			if tableID != "" && tableID != res.TableID {
				return apperr.New(apperr.InvalidInput, "table %s does not belong to reservation %s", tableID, res.ID)
			}
			if _, err := s.Tables.CheckInTx(ctx, r, b, res.ID); err != nil {
				return err
			}
			tableID = res.TableID
			if memberID == "" {
				memberID = models.Deref(res.MemberID)
			}
		case tableID != "":
			if _, err := s.Tables.OccupyTableTx(ctx, r, b, tableID); err != nil {
				return err
			}
		}

		if memberID != "" {
			m, err := r.Members.Get(ctx, memberID)
			if err != nil {
				return err
			}
			if m == nil {
				return apperr.New(apperr.NotFound, "member %s not found", memberID)
			}
		}

		menu, err := s.Inventory.DecrementTx(ctx, r, in.Items)
		if err != nil {
			return err
		}

		o := &models.Order{
			ID:            uuid.NewString(),
			OrderNo:       orderNo,
			MemberID:      models.StringPtr(memberID),
			ReservationID: models.StringPtr(in.ReservationID),
			TableID:       models.StringPtr(tableID),
			Status:        models.OrderPending,
			CreatedAt:     now,
		}
		for _, ln := range in.Items {
			m := menu[ln.MenuItemID]
			it := models.OrderItem{
				ID:         uuid.NewString(),
				OrderID:    o.ID,
				MenuItemID: m.ID,
				Name:       m.Name,
				UnitAmount: m.Price,
				Quantity:   ln.Quantity,
				Subtotal:   m.Price * int64(ln.Quantity),
			}
			o.Items = append(o.Items, it)
			o.OriginalAmount += it.Subtotal
		}

		if in.MemberCouponID != "" {
			red, err := s.Coupons.ReserveForOrderTx(ctx, r, in.MemberCouponID, memberID, o.OriginalAmount)
			if err != nil {
				return err
			}
			o.MemberCouponID = &red.Claim.ID
			o.DiscountAmount = red.Discount
		}
		o.TotalAmount = o.OriginalAmount - o.DiscountAmount
		if o.TotalAmount < 0 {
			o.TotalAmount = 0
		}

		if err := r.Orders.Create(ctx, o); err != nil {
			return err
		}
		b.Order(o.ID, "", o.Status)
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.Fanout.Flush(ctx, b)
	s.Log.Info("order created", zap.String("order_id", out.ID), zap.String("order_no", out.OrderNo),
		zap.Int64("total", out.TotalAmount), zap.Int("lines", len(out.Items)))
	return out, nil
}

func (s *Service) UpdateStatus(ctx context.Context, orderID string, status models.OrderStatus) (*models.Order, error) {
	var out *models.Order
	b := fanout.NewBatch()
	err := s.Store.WithTx(ctx, func(r *repository.Repository) error {
		o, err := s.UpdateStatusTx(ctx, r, b, orderID, status)
		out = o
		return err
	})
	if err != nil {
		return nil, err
	}
	s.Fanout.Flush(ctx, b)
	return out, nil
}

// UpdateStatusTx applies a status change and its side effects inside the
// caller's transaction. Points are granted at most once per order and stock
// is returned at most once, however often PAID or CANCELLED is delivered.
func (s *Service) UpdateStatusTx(ctx context.Context, r *repository.Repository, b *fanout.Batch,
	orderID string, status models.OrderStatus) (*models.Order, error) {
	o, err := r.Orders.GetForUpdate(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, apperr.New(apperr.NotFound, "order %s not found", orderID)
	}
	tr, err := NextOrder(o.Status, status)
	if err != nil {
		return nil, err
	}
	if tr.NoOp {
		return o, nil
	}
	now := s.Now()

	if tr.Has(EffectGrantPoints) && o.PaidAt == nil {
		o.PaidAt = &now
		if mid := models.Deref(o.MemberID); mid != "" {
			if _, err := s.Loyalty.EarnTx(ctx, r, b, loyalty.Grant{
				MemberID: mid,
				Points:   loyalty.PointsFor(o.TotalAmount),
				OrderID:  o.ID,
				Note:     "order " + o.OrderNo,
			}); err != nil {
				return nil, err
			}
		}
	}
	if tr.Has(EffectConsumeCoupon) && o.MemberCouponID != nil {
		if err := s.Coupons.ConsumeTx(ctx, r, *o.MemberCouponID, o.ID); err != nil {
			return nil, err
		}
	}
	if tr.Has(EffectReleaseTable) && o.TableID != nil {
		// table before menu rows, the order CreateOrder takes them in
		if _, err := r.Tables.GetForUpdate(ctx, *o.TableID); err != nil {
			return nil, err
		}
	}
	if tr.Has(EffectRestock) {
		o.CancelledAt = &now
		if !o.Restocked {
			if err := s.Inventory.RestockTx(ctx, r, lines(o)); err != nil {
				return nil, err
			}
			o.Restocked = true
		}
	}

	o.Status = tr.To
	if err := r.Orders.Update(ctx, o); err != nil {
		return nil, err
	}
	b.Order(o.ID, tr.From, tr.To)

	if tr.Has(EffectReleaseTable) && o.TableID != nil {
		if err := s.Tables.SettleTableTx(ctx, r, b, *o.TableID, o.ID); err != nil {
			return nil, err
		}
	}
	s.Log.Info("order status changed", zap.String("order_id", o.ID),
		zap.String("from", string(tr.From)), zap.String("to", string(tr.To)))
	return o, nil
}

func lines(o *models.Order) []inventory.Line {
	out := make([]inventory.Line, 0, len(o.Items))
	for _, it := range o.Items {
		out = append(out, inventory.Line{MenuItemID: it.MenuItemID, Quantity: it.Quantity})
	}
	return out
}

func (s *Service) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	o, err := s.Store.Repos().Orders.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, apperr.New(apperr.NotFound, "order %s not found", id)
	}
	return o, nil
}

// GetOrderStatus is the display read: cache first, database on a miss.
func (s *Service) GetOrderStatus(ctx context.Context, id string) (models.OrderStatus, error) {
	load := func() (string, error) {
		o, err := s.GetOrder(ctx, id)
		if err != nil {
			return "", err
		}
		return string(o.Status), nil
	}
	st, err := s.Fanout.OrderStatus(ctx, id, load)
	return models.OrderStatus(st), err
}
