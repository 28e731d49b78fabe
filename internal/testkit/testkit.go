// Package testkit holds fakes and fixtures shared by package tests.
package testkit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/go-realtime-venue/internal/events"
	"github.com/ariefcatur/go-realtime-venue/internal/fanout"
	"github.com/ariefcatur/go-realtime-venue/internal/gateway"
	"github.com/ariefcatur/go-realtime-venue/internal/models"
	"github.com/ariefcatur/go-realtime-venue/internal/repository"
	"github.com/ariefcatur/go-realtime-venue/internal/repository/memory"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type MemoryCache struct {
	mu     sync.Mutex
	tables map[string]string
	orders map[string]string
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{tables: map[string]string{}, orders: map[string]string{}}
}

func (c *MemoryCache) SetTableStatus(_ context.Context, id, status string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tables[id] = status
	return nil
}

func (c *MemoryCache) TableStatus(_ context.Context, id string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tables[id], nil
}

func (c *MemoryCache) SetOrderStatus(_ context.Context, id, status string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.orders[id] = status
	return nil
}

func (c *MemoryCache) OrderStatus(_ context.Context, id string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.orders[id], nil
}

type RecordingBus struct {
	mu   sync.Mutex
	Sent []events.Envelope
}

func (b *RecordingBus) Publish(_ context.Context, env events.Envelope) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Sent = append(b.Sent, env)
	return nil
}

func (b *RecordingBus) Count(eventType string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, e := range b.Sent {
		if e.EventType == eventType {
			n++
		}
	}
	return n
}

type MockGateway struct {
	CreateIntentFunc func(ctx context.Context, in gateway.Intent) (string, error)
	RefundFunc       func(ctx context.Context, providerRef string, amount int64) error
}

func (m *MockGateway) CreateIntent(ctx context.Context, in gateway.Intent) (string, error) {
	if m.CreateIntentFunc != nil {
		return m.CreateIntentFunc(ctx, in)
	}
	return "prov-" + in.PaymentOrderNo, nil
}

func (m *MockGateway) Refund(ctx context.Context, providerRef string, amount int64) error {
	if m.RefundFunc != nil {
		return m.RefundFunc(ctx, providerRef, amount)
	}
	return nil
}

// Clock is a settable time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(t time.Time) *Clock { return &Clock{now: t} }

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Env bundles an in-memory store with a recording fan-out.
type Env struct {
	Store  *memory.Store
	Cache  *MemoryCache
	Bus    *RecordingBus
	Fanout *fanout.Dispatcher
	Clock  *Clock
	Log    *zap.Logger
}

func NewEnv() *Env {
	cache := NewMemoryCache()
	bus := &RecordingBus{}
	log := zap.NewNop()
	return &Env{
		Store:  memory.New(),
		Cache:  cache,
		Bus:    bus,
		Fanout: &fanout.Dispatcher{Cache: cache, Bus: bus, Producer: "test", Log: log},
		Clock:  NewClock(time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)),
		Log:    log,
	}
}

func (e *Env) Repos() *repository.Repository { return e.Store.Repos() }

func (e *Env) Table(t *testing.T, status models.TableStatus) *models.Table {
	t.Helper()
	tb := &models.Table{ID: uuid.NewString(), Name: "T1", Category: models.TableMain, Capacity: 4, Status: status, Active: true}
	if err := e.Repos().Tables.Create(context.Background(), tb); err != nil {
		t.Fatalf("seed table: %v", err)
	}
	return tb
}

func (e *Env) MenuItem(t *testing.T, name string, price int64, stock int) *models.MenuItem {
	t.Helper()
	status := models.MenuOnSale
	if stock == 0 {
		status = models.MenuSoldOut
	}
	m := &models.MenuItem{ID: uuid.NewString(), Category: "drinks", Name: name, Price: price, Stock: stock, Status: status}
	if err := e.Repos().Menu.Create(context.Background(), m); err != nil {
		t.Fatalf("seed menu item: %v", err)
	}
	return m
}

func (e *Env) Member(t *testing.T, level int) *models.Member {
	t.Helper()
	m := &models.Member{ID: uuid.NewString(), Name: "member", Phone: uuid.NewString()[:8], Level: level, CreatedAt: e.Clock.Now()}
	if err := e.Repos().Members.Create(context.Background(), m); err != nil {
		t.Fatalf("seed member: %v", err)
	}
	return m
}

// Coupon seeds an active template valid for a day around the clock's now.
func (e *Env) Coupon(t *testing.T, typ models.CouponType, value string, total, perUser int) *models.Coupon {
	t.Helper()
	now := e.Clock.Now()
	c := &models.Coupon{
		ID:            uuid.NewString(),
		Name:          "promo",
		Type:          typ,
		Value:         decimal.RequireFromString(value),
		TotalQuantity: total,
		LimitPerUser:  perUser,
		StartTime:     now.Add(-time.Hour),
		EndTime:       now.Add(24 * time.Hour),
		Status:        models.CouponActive,
	}
	if err := e.Repos().Coupons.Create(context.Background(), c); err != nil {
		t.Fatalf("seed coupon: %v", err)
	}
	return c
}
