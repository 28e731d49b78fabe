package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/ariefcatur/go-realtime-venue/internal/models"
	"github.com/ariefcatur/go-realtime-venue/internal/repository"
)

func TestWithTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := New()
	if err := s.Repos().Menu.Create(ctx, &models.MenuItem{ID: "m1", Name: "Tea", Price: 500, Stock: 3, Status: models.MenuOnSale}); err != nil {
		t.Fatalf("create: %v", err)
	}

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(r *repository.Repository) error {
		if err := r.Menu.UpdateStock(ctx, "m1", 0, models.MenuSoldOut); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}

	m, _ := s.Repos().Menu.Get(ctx, "m1")
	if m.Stock != 3 || m.Status != models.MenuOnSale {
		t.Fatalf("rollback failed: %+v", m)
	}
}

func TestIncrementClaimedStopsAtTotal(t *testing.T) {
	ctx := context.Background()
	s := New()
	_ = s.Repos().Coupons.Create(ctx, &models.Coupon{ID: "c1", TotalQuantity: 1, LimitPerUser: 1})

	ok, _ := s.Repos().Coupons.IncrementClaimed(ctx, "c1")
	if !ok {
		t.Fatalf("first increment should succeed")
	}
	ok, _ = s.Repos().Coupons.IncrementClaimed(ctx, "c1")
	if ok {
		t.Fatalf("second increment should be refused")
	}
}

func TestLoyaltyUniquePerOrder(t *testing.T) {
	ctx := context.Background()
	s := New()
	order := "o1"
	e := &models.LoyaltyTransaction{ID: "l1", MemberID: "u1", Type: models.LoyaltyEarn, Points: 5, OrderID: &order}
	if err := s.Repos().Loyalty.Append(ctx, e); err != nil {
		t.Fatalf("append: %v", err)
	}
	dup := *e
	dup.ID = "l2"
	if err := s.Repos().Loyalty.Append(ctx, &dup); err == nil {
		t.Fatalf("expected duplicate error")
	}
	sum, _ := s.Repos().Loyalty.Sum(ctx, "u1")
	if sum != 5 {
		t.Fatalf("sum = %d", sum)
	}
}
