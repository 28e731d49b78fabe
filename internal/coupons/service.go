package coupons

import (
	"context"
	"time"

	"github.com/ariefcatur/go-realtime-venue/internal/apperr"
	"github.com/ariefcatur/go-realtime-venue/internal/events"
	"github.com/ariefcatur/go-realtime-venue/internal/fanout"
	"github.com/ariefcatur/go-realtime-venue/internal/models"
	"github.com/ariefcatur/go-realtime-venue/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Service struct {
	Store  repository.Store
	Fanout *fanout.Dispatcher
	Log    *zap.Logger
	Now    func() time.Time
}

func NewService(store repository.Store, fan *fanout.Dispatcher, log *zap.Logger) *Service {
	return &Service{Store: store, Fanout: fan, Log: log, Now: time.Now}
}

// EffectiveStatus applies lazy expiry: an AVAILABLE claim past its end time
// reads as EXPIRED before the sweep gets to it.
func EffectiveStatus(mc *models.MemberCoupon, now time.Time) models.MemberCouponStatus {
	if mc.Status == models.MemberCouponAvailable && !now.Before(mc.EndTime) {
		return models.MemberCouponExpired
	}
	return mc.Status
}

// Claim hands one coupon from the template's pool to a member.
//
// The pool counter is bumped with a conditional update first. That statement
// holds the coupon row lock until commit, so the per-member count that follows
// is serialized per coupon and a failed limit check rolls the bump back.
func (s *Service) Claim(ctx context.Context, couponID, memberID string) (*models.MemberCoupon, error) {
	if couponID == "" || memberID == "" {
		return nil, apperr.New(apperr.InvalidInput, "coupon_id and member_id are required")
	}
	now := s.Now()

	var out *models.MemberCoupon
	b := fanout.NewBatch()
	err := s.Store.WithTx(ctx, func(r *repository.Repository) error {
		c, err := r.Coupons.Get(ctx, couponID)
		if err != nil {
			return err
		}
		if c == nil {
			return apperr.New(apperr.NotFound, "coupon %s not found", couponID)
		}
		if c.Status != models.CouponActive || now.Before(c.StartTime) || !now.Before(c.EndTime) {
			return apperr.WithDetails(apperr.CouponNotActive, "coupon is not claimable now",
				map[string]any{"status": c.Status, "start_time": c.StartTime, "end_time": c.EndTime})
		}
		m, err := r.Members.Get(ctx, memberID)
		if err != nil {
			return err
		}
		if m == nil {
			return apperr.New(apperr.NotFound, "member %s not found", memberID)
		}
		if m.Level < c.MinLevel {
			return apperr.WithDetails(apperr.LevelTooLow, "member level too low",
				map[string]any{"level": m.Level, "min_level": c.MinLevel})
		}

		ok, err := r.Coupons.IncrementClaimed(ctx, c.ID)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.New(apperr.CouponExhausted, "coupon %s has no claims left", c.ID)
		}
		if c.LimitPerUser > 0 {
			n, err := r.Coupons.CountClaims(ctx, c.ID, memberID)
			if err != nil {
				return err
			}
			if n >= c.LimitPerUser {
				return apperr.WithDetails(apperr.PerUserLimitExceeded, "claim limit reached",
					map[string]any{"claimed": n, "limit": c.LimitPerUser})
			}
		}

		end := c.EndTime
		if c.ValidDays != nil && *c.ValidDays > 0 {
			end = now.AddDate(0, 0, *c.ValidDays)
		}
		mc := &models.MemberCoupon{
			ID:        uuid.NewString(),
			CouponID:  c.ID,
			MemberID:  memberID,
			Status:    models.MemberCouponAvailable,
			StartTime: now,
			EndTime:   end,
			ClaimedAt: now,
		}
		if err := r.Coupons.CreateClaim(ctx, mc); err != nil {
			return err
		}
		b.Event(events.EventCouponClaimed, mc.ID, events.CouponClaimedPayload{
			MemberCouponID: mc.ID, CouponID: c.ID, MemberID: memberID, EndTime: end,
		})
		out = mc
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.Fanout.Flush(ctx, b)
	s.Log.Info("coupon claimed", zap.String("coupon_id", couponID), zap.String("member_id", memberID),
		zap.String("member_coupon_id", out.ID))
	return out, nil
}

// UseCoupon marks a claim USED against one of the claiming member's orders.
// It is irreversible.
func (s *Service) UseCoupon(ctx context.Context, memberCouponID, orderID string) (*models.MemberCoupon, error) {
	var out *models.MemberCoupon
	err := s.Store.WithTx(ctx, func(r *repository.Repository) error {
		mc, err := s.UseTx(ctx, r, memberCouponID, orderID)
		out = mc
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) UseTx(ctx context.Context, r *repository.Repository, memberCouponID, orderID string) (*models.MemberCoupon, error) {
	if orderID == "" {
		return nil, apperr.New(apperr.InvalidInput, "order_id is required")
	}
	mc, err := s.lockClaim(ctx, r, memberCouponID)
	if err != nil {
		return nil, err
	}
	o, err := r.Orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, apperr.New(apperr.NotFound, "order %s not found", orderID)
	}
	if models.Deref(o.MemberID) != mc.MemberID {
		return nil, apperr.New(apperr.CouponNotUsable, "order %s belongs to another member", o.ID)
	}
	if o.Status == models.OrderCancelled {
		return nil, apperr.New(apperr.CouponNotUsable, "order %s is cancelled", o.ID)
	}
	now := s.Now()
	if st := EffectiveStatus(mc, now); st != models.MemberCouponAvailable || now.Before(mc.StartTime) {
		return nil, apperr.WithDetails(apperr.CouponNotUsable, "coupon cannot be used",
			map[string]any{"status": st})
	}
	return mc, s.markUsed(ctx, r, mc, orderID, now)
}

// Redemption is a validated coupon ready to be applied to an order.
type Redemption struct {
	Claim    *models.MemberCoupon
	Coupon   *models.Coupon
	Discount int64
}

// ReserveForOrderTx checks that a claim can discount a new order: it belongs
// to the member, is usable now, is not held by another open order and
// actually reduces the amount. The claim itself is consumed only once the
// order is paid.
func (s *Service) ReserveForOrderTx(ctx context.Context, r *repository.Repository, memberCouponID, memberID string, amount int64) (*Redemption, error) {
	if memberID == "" {
		return nil, apperr.New(apperr.InvalidInput, "a coupon requires a member")
	}
	mc, err := s.lockClaim(ctx, r, memberCouponID)
	if err != nil {
		return nil, err
	}
	now := s.Now()
	if mc.MemberID != memberID {
		return nil, apperr.New(apperr.CouponNotUsable, "coupon belongs to another member")
	}
	if st := EffectiveStatus(mc, now); st != models.MemberCouponAvailable || now.Before(mc.StartTime) {
		return nil, apperr.WithDetails(apperr.CouponNotUsable, "coupon cannot be used",
			map[string]any{"status": st})
	}
	held, err := r.Orders.HasOpenWithCoupon(ctx, mc.ID)
	if err != nil {
		return nil, err
	}
	if held {
		return nil, apperr.New(apperr.CouponNotUsable, "coupon is attached to another open order")
	}
	c, err := r.Coupons.Get(ctx, mc.CouponID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, apperr.New(apperr.NotFound, "coupon %s not found", mc.CouponID)
	}
	d := CalculateDiscount(c, amount)
	if d == 0 {
		return nil, apperr.WithDetails(apperr.CouponNotUsable, "coupon does not apply to this amount",
			map[string]any{"amount": amount, "min_amount": c.MinAmount})
	}
	return &Redemption{Claim: mc, Coupon: c, Discount: d}, nil
}

// ConsumeTx marks the coupon of a paid order USED. Payment already happened,
// so a claim that expired in between is consumed anyway and a repeat for the
// same order is a no-op.
func (s *Service) ConsumeTx(ctx context.Context, r *repository.Repository, memberCouponID, orderID string) error {
	mc, err := r.Coupons.GetClaimForUpdate(ctx, memberCouponID)
	if err != nil {
		return err
	}
	if mc == nil {
		s.Log.Warn("paid order references missing coupon", zap.String("member_coupon_id", memberCouponID),
			zap.String("order_id", orderID))
		return nil
	}
	if mc.Status == models.MemberCouponUsed {
		if models.Deref(mc.OrderID) != orderID {
			s.Log.Warn("coupon already used by another order", zap.String("member_coupon_id", mc.ID),
				zap.String("order_id", orderID), zap.String("used_by", models.Deref(mc.OrderID)))
		}
		return nil
	}
	return s.markUsed(ctx, r, mc, orderID, s.Now())
}

func (s *Service) markUsed(ctx context.Context, r *repository.Repository, mc *models.MemberCoupon, orderID string, now time.Time) error {
	mc.Status = models.MemberCouponUsed
	mc.OrderID = &orderID
	mc.UsedAt = &now
	return r.Coupons.UpdateClaim(ctx, mc)
}

func (s *Service) lockClaim(ctx context.Context, r *repository.Repository, id string) (*models.MemberCoupon, error) {
	if id == "" {
		return nil, apperr.New(apperr.InvalidInput, "member_coupon_id is required")
	}
	mc, err := r.Coupons.GetClaimForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	if mc == nil {
		return nil, apperr.New(apperr.NotFound, "member coupon %s not found", id)
	}
	return mc, nil
}

// ExpireSweep flips AVAILABLE claims past their end time to EXPIRED.
func (s *Service) ExpireSweep(ctx context.Context) (int64, error) {
	n, err := s.Store.Repos().Coupons.ExpireClaims(ctx, s.Now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.Log.Info("member coupons expired", zap.Int64("count", n))
	}
	return n, nil
}

// ListMemberCoupons returns a member's claims, newest first, with lazy expiry applied.
func (s *Service) ListMemberCoupons(ctx context.Context, memberID string) ([]models.MemberCoupon, error) {
	list, err := s.Store.Repos().Coupons.ListClaimsByMember(ctx, memberID)
	if err != nil {
		return nil, err
	}
	now := s.Now()
	for i := range list {
		list[i].Status = EffectiveStatus(&list[i], now)
	}
	return list, nil
}

func (s *Service) GetCoupon(ctx context.Context, id string) (*models.Coupon, error) {
	c, err := s.Store.Repos().Coupons.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, apperr.New(apperr.NotFound, "coupon %s not found", id)
	}
	return c, nil
}
