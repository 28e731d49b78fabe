package coupons

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/go-realtime-venue/internal/apperr"
	"github.com/ariefcatur/go-realtime-venue/internal/events"
	"github.com/ariefcatur/go-realtime-venue/internal/models"
	"github.com/ariefcatur/go-realtime-venue/internal/repository"
	"github.com/ariefcatur/go-realtime-venue/internal/testkit"
	"github.com/google/uuid"
)

func newService(env *testkit.Env) *Service {
	s := NewService(env.Store, env.Fanout, env.Log)
	s.Now = env.Clock.Now
	return s
}

func TestClaim(t *testing.T) {
	ctx := context.Background()
	env := testkit.NewEnv()
	s := newService(env)
	c := env.Coupon(t, models.CouponAmount, "500", 10, 2)
	m := env.Member(t, 1)

	mc, err := s.Claim(ctx, c.ID, m.ID)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if mc.Status != models.MemberCouponAvailable || !mc.EndTime.Equal(c.EndTime) {
		t.Fatalf("claim = %+v", mc)
	}
	got, _ := env.Repos().Coupons.Get(ctx, c.ID)
	if got.ClaimedQuantity != 1 {
		t.Fatalf("claimed = %d", got.ClaimedQuantity)
	}
	if env.Bus.Count(events.EventCouponClaimed) != 1 {
		t.Fatalf("expected claim event")
	}
}

func TestClaimValidDays(t *testing.T) {
	env := testkit.NewEnv()
	s := newService(env)
	c := env.Coupon(t, models.CouponAmount, "500", 10, 0)
	days := 7
	c.ValidDays = &days
	c.ID = uuid.NewString()
	if err := env.Repos().Coupons.Create(context.Background(), c); err != nil {
		t.Fatalf("seed: %v", err)
	}
	m := env.Member(t, 0)

	mc, err := s.Claim(context.Background(), c.ID, m.ID)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if want := env.Clock.Now().AddDate(0, 0, 7); !mc.EndTime.Equal(want) {
		t.Fatalf("end = %s, want %s", mc.EndTime, want)
	}
}

func TestClaimRejections(t *testing.T) {
	ctx := context.Background()
	env := testkit.NewEnv()
	s := newService(env)
	m := env.Member(t, 1)

	inactive := env.Coupon(t, models.CouponAmount, "500", 10, 1)
	inactive.ID, inactive.Status = uuid.NewString(), models.CouponInactive
	_ = env.Repos().Coupons.Create(ctx, inactive)

	future := env.Coupon(t, models.CouponAmount, "500", 10, 1)
	future.ID, future.StartTime = uuid.NewString(), env.Clock.Now().Add(time.Hour)
	_ = env.Repos().Coupons.Create(ctx, future)

	vip := env.Coupon(t, models.CouponAmount, "500", 10, 1)
	vip.ID, vip.MinLevel = uuid.NewString(), 3
	_ = env.Repos().Coupons.Create(ctx, vip)

	empty := env.Coupon(t, models.CouponAmount, "500", 0, 1)

	cases := []struct {
		name     string
		couponID string
		memberID string
		want     apperr.Kind
	}{
		{"missing coupon", "nope", m.ID, apperr.NotFound},
		{"missing member", vip.ID, "nope", apperr.NotFound},
		{"inactive", inactive.ID, m.ID, apperr.CouponNotActive},
		{"not started", future.ID, m.ID, apperr.CouponNotActive},
		{"level", vip.ID, m.ID, apperr.LevelTooLow},
		{"exhausted", empty.ID, m.ID, apperr.CouponExhausted},
		{"no ids", "", "", apperr.InvalidInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := s.Claim(ctx, tc.couponID, tc.memberID); !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %s", err, tc.want)
			}
		})
	}
}

func TestClaimPerUserLimitRollsBackCounter(t *testing.T) {
	ctx := context.Background()
	env := testkit.NewEnv()
	s := newService(env)
	c := env.Coupon(t, models.CouponAmount, "500", 10, 1)
	m := env.Member(t, 0)

	if _, err := s.Claim(ctx, c.ID, m.ID); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if _, err := s.Claim(ctx, c.ID, m.ID); !errors.Is(err, apperr.PerUserLimitExceeded) {
		t.Fatalf("err = %v, want PerUserLimitExceeded", err)
	}
	got, _ := env.Repos().Coupons.Get(ctx, c.ID)
	if got.ClaimedQuantity != 1 {
		t.Fatalf("claimed = %d, want 1", got.ClaimedQuantity)
	}
}

func TestConcurrentClaimsNeverOversell(t *testing.T) {
	ctx := context.Background()
	env := testkit.NewEnv()
	s := newService(env)
	c := env.Coupon(t, models.CouponAmount, "500", 1, 1)

	const n = 16
	members := make([]*models.Member, n)
	for i := range members {
		members[i] = env.Member(t, 0)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		won       int
		exhausted int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(memberID string) {
			defer wg.Done()
			_, err := s.Claim(ctx, c.ID, memberID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				won++
			case errors.Is(err, apperr.CouponExhausted):
				exhausted++
			default:
				t.Errorf("unexpected err: %v", err)
			}
		}(members[i].ID)
	}
	wg.Wait()

	if won != 1 || exhausted != n-1 {
		t.Fatalf("won=%d exhausted=%d", won, exhausted)
	}
	got, _ := env.Repos().Coupons.Get(ctx, c.ID)
	if got.ClaimedQuantity != 1 {
		t.Fatalf("claimed = %d", got.ClaimedQuantity)
	}
}

func memberOrder(t *testing.T, env *testkit.Env, memberID string, status models.OrderStatus) *models.Order {
	t.Helper()
	o := &models.Order{
		ID:        uuid.NewString(),
		OrderNo:   uuid.NewString(),
		MemberID:  models.StringPtr(memberID),
		Status:    status,
		CreatedAt: env.Clock.Now(),
	}
	if err := env.Repos().Orders.Create(context.Background(), o); err != nil {
		t.Fatalf("order: %v", err)
	}
	return o
}

func TestUseCoupon(t *testing.T) {
	ctx := context.Background()
	env := testkit.NewEnv()
	s := newService(env)
	c := env.Coupon(t, models.CouponAmount, "500", 10, 0)
	m := env.Member(t, 0)
	mc, _ := s.Claim(ctx, c.ID, m.ID)
	first := memberOrder(t, env, m.ID, models.OrderPending)

	used, err := s.UseCoupon(ctx, mc.ID, first.ID)
	if err != nil {
		t.Fatalf("use: %v", err)
	}
	if used.Status != models.MemberCouponUsed || models.Deref(used.OrderID) != first.ID || used.UsedAt == nil {
		t.Fatalf("used = %+v", used)
	}
	if _, err := s.UseCoupon(ctx, mc.ID, memberOrder(t, env, m.ID, models.OrderPending).ID); !errors.Is(err, apperr.CouponNotUsable) {
		t.Fatalf("second use err = %v", err)
	}

	expiring, _ := s.Claim(ctx, c.ID, m.ID)
	env.Clock.Advance(48 * time.Hour)
	if _, err := s.UseCoupon(ctx, expiring.ID, memberOrder(t, env, m.ID, models.OrderPending).ID); !errors.Is(err, apperr.CouponNotUsable) {
		t.Fatalf("expired use err = %v", err)
	}
}

func TestUseCouponChecksOrder(t *testing.T) {
	ctx := context.Background()
	env := testkit.NewEnv()
	s := newService(env)
	c := env.Coupon(t, models.CouponAmount, "500", 10, 0)
	m := env.Member(t, 0)
	other := env.Member(t, 0)
	mc, _ := s.Claim(ctx, c.ID, m.ID)

	cases := []struct {
		name    string
		claimID string
		orderID string
		want    apperr.Kind
	}{
		{"missing order", mc.ID, "nope", apperr.NotFound},
		{"missing claim", "nope", memberOrder(t, env, m.ID, models.OrderPending).ID, apperr.NotFound},
		{"no order id", mc.ID, "", apperr.InvalidInput},
		{"other member's order", mc.ID, memberOrder(t, env, other.ID, models.OrderPending).ID, apperr.CouponNotUsable},
		{"anonymous order", mc.ID, memberOrder(t, env, "", models.OrderPending).ID, apperr.CouponNotUsable},
		{"cancelled order", mc.ID, memberOrder(t, env, m.ID, models.OrderCancelled).ID, apperr.CouponNotUsable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := s.UseCoupon(ctx, tc.claimID, tc.orderID); !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %s", err, tc.want)
			}
		})
	}
	got, _ := env.Repos().Coupons.GetClaim(ctx, mc.ID)
	if got.Status != models.MemberCouponAvailable || got.OrderID != nil {
		t.Fatalf("claim changed: %+v", got)
	}
}

func TestReserveForOrderTx(t *testing.T) {
	ctx := context.Background()
	env := testkit.NewEnv()
	s := newService(env)
	c := env.Coupon(t, models.CouponPercentage, "10", 10, 0)
	owner := env.Member(t, 0)
	other := env.Member(t, 0)
	mc, _ := s.Claim(ctx, c.ID, owner.ID)

	reserve := func(memberID string, amount int64) (*Redemption, error) {
		var out *Redemption
		err := env.Store.WithTx(ctx, func(r *repository.Repository) error {
			var err error
			out, err = s.ReserveForOrderTx(ctx, r, mc.ID, memberID, amount)
			return err
		})
		return out, err
	}

	red, err := reserve(owner.ID, 10000)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if red.Discount != 1000 || red.Coupon.ID != c.ID {
		t.Fatalf("redemption = %+v", red)
	}
	if _, err := reserve(other.ID, 10000); !errors.Is(err, apperr.CouponNotUsable) {
		t.Fatalf("other member err = %v", err)
	}
	if _, err := reserve("", 10000); !errors.Is(err, apperr.InvalidInput) {
		t.Fatalf("no member err = %v", err)
	}
	if _, err := reserve(owner.ID, 5); !errors.Is(err, apperr.CouponNotUsable) {
		t.Fatalf("zero discount err = %v", err)
	}

	held := &models.Order{ID: uuid.NewString(), OrderNo: "ORD1", MemberCouponID: &mc.ID, Status: models.OrderPending}
	if err := env.Repos().Orders.Create(ctx, held); err != nil {
		t.Fatalf("seed order: %v", err)
	}
	if _, err := reserve(owner.ID, 10000); !errors.Is(err, apperr.CouponNotUsable) {
		t.Fatalf("held coupon err = %v", err)
	}
}

func TestConsumeTxIsLenient(t *testing.T) {
	ctx := context.Background()
	env := testkit.NewEnv()
	s := newService(env)
	c := env.Coupon(t, models.CouponAmount, "500", 10, 0)
	m := env.Member(t, 0)
	mc, _ := s.Claim(ctx, c.ID, m.ID)

	env.Clock.Advance(48 * time.Hour)
	if _, err := s.ExpireSweep(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	consume := func(orderID string) error {
		return env.Store.WithTx(ctx, func(r *repository.Repository) error {
			return s.ConsumeTx(ctx, r, mc.ID, orderID)
		})
	}
	if err := consume("order-1"); err != nil {
		t.Fatalf("consume expired: %v", err)
	}
	if err := consume("order-1"); err != nil {
		t.Fatalf("repeat consume: %v", err)
	}
	got, _ := env.Repos().Coupons.GetClaim(ctx, mc.ID)
	if got.Status != models.MemberCouponUsed || models.Deref(got.OrderID) != "order-1" {
		t.Fatalf("claim = %+v", got)
	}
}

func TestExpireSweepAndLazyExpiry(t *testing.T) {
	ctx := context.Background()
	env := testkit.NewEnv()
	s := newService(env)
	c := env.Coupon(t, models.CouponAmount, "500", 10, 0)
	m := env.Member(t, 0)
	a, _ := s.Claim(ctx, c.ID, m.ID)
	b, _ := s.Claim(ctx, c.ID, m.ID)
	if _, err := s.UseCoupon(ctx, b.ID, memberOrder(t, env, m.ID, models.OrderPending).ID); err != nil {
		t.Fatalf("use: %v", err)
	}

	env.Clock.Advance(25 * time.Hour)

	list, err := s.ListMemberCoupons(ctx, m.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, mc := range list {
		want := models.MemberCouponExpired
		if mc.ID == b.ID {
			want = models.MemberCouponUsed
		}
		if mc.Status != want {
			t.Fatalf("%s status = %s, want %s", mc.ID, mc.Status, want)
		}
	}
	stored, _ := env.Repos().Coupons.GetClaim(ctx, a.ID)
	if stored.Status != models.MemberCouponAvailable {
		t.Fatalf("list must not write, got %s", stored.Status)
	}

	n, err := s.ExpireSweep(ctx)
	if err != nil || n != 1 {
		t.Fatalf("sweep = %d, %v", n, err)
	}
	if n, _ := s.ExpireSweep(ctx); n != 0 {
		t.Fatalf("second sweep = %d", n)
	}
}
