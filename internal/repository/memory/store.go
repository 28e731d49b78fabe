// Package memory is an in-process repository.Store. Transactions are
// serialized by one mutex and a failed transaction restores the snapshot
// taken when it began, so callers observe the same all-or-nothing behaviour
// as the Postgres store.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/ariefcatur/go-realtime-venue/internal/models"
	"github.com/ariefcatur/go-realtime-venue/internal/repository"
)

type state struct {
	tables       map[string]models.Table
	reservations map[string]models.Reservation
	menu         map[string]models.MenuItem
	orders       map[string]models.Order
	payments     map[string]models.Payment
	coupons      map[string]models.Coupon
	claims       map[string]models.MemberCoupon
	members      map[string]models.Member
	loyalty      []models.LoyaltyTransaction
}

func newState() *state {
	return &state{
		tables:       map[string]models.Table{},
		reservations: map[string]models.Reservation{},
		menu:         map[string]models.MenuItem{},
		orders:       map[string]models.Order{},
		payments:     map[string]models.Payment{},
		coupons:      map[string]models.Coupon{},
		claims:       map[string]models.MemberCoupon{},
		members:      map[string]models.Member{},
	}
}

func cloneMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (s *state) clone() *state {
	orders := make(map[string]models.Order, len(s.orders))
	for k, o := range s.orders {
		o.Items = append([]models.OrderItem(nil), o.Items...)
		orders[k] = o
	}
	return &state{
		tables:       cloneMap(s.tables),
		reservations: cloneMap(s.reservations),
		menu:         cloneMap(s.menu),
		orders:       orders,
		payments:     cloneMap(s.payments),
		coupons:      cloneMap(s.coupons),
		claims:       cloneMap(s.claims),
		members:      cloneMap(s.members),
		loyalty:      append([]models.LoyaltyTransaction(nil), s.loyalty...),
	}
}

type Store struct {
	mu sync.Mutex
	st *state
}

func New() *Store { return &Store{st: newState()} }

func (s *Store) Repos() *repository.Repository { return s.build(false) }

func (s *Store) WithTx(ctx context.Context, fn func(r *repository.Repository) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.st.clone()
	if err := fn(s.build(true)); err != nil {
		s.st = snap
		return err
	}
	return nil
}

func (s *Store) build(inTx bool) *repository.Repository {
	b := base{s: s, inTx: inTx}
	return &repository.Repository{
		Tables:       tableRepo{b},
		Reservations: reservationRepo{b},
		Menu:         menuRepo{b},
		Orders:       orderRepo{b},
		Payments:     paymentRepo{b},
		Coupons:      couponRepo{b},
		Members:      memberRepo{b},
		Loyalty:      loyaltyRepo{b},
	}
}

// base takes the store lock per call unless it is already held by WithTx.
type base struct {
	s    *Store
	inTx bool
}

func (b base) guard() func() {
	if b.inTx {
		return func() {}
	}
	b.s.mu.Lock()
	return b.s.mu.Unlock
}

func duplicate(what, key string) error {
	return fmt.Errorf("duplicate key value violates unique constraint: %s %s", what, key)
}
