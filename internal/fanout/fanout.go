// Package fanout projects committed state changes to the status cache and the
// event bus. Changes are collected in a Batch while a transaction runs and are
// flushed only after it commits; a rolled back transaction drops its batch.
package fanout

import (
	"context"

	"github.com/ariefcatur/go-realtime-venue/internal/events"
	"github.com/ariefcatur/go-realtime-venue/internal/models"
	"go.uber.org/zap"
)

type Cache interface {
	SetTableStatus(ctx context.Context, id, status string) error
	TableStatus(ctx context.Context, id string) (string, error)
	SetOrderStatus(ctx context.Context, id, status string) error
	OrderStatus(ctx context.Context, id string) (string, error)
}

type change struct {
	kind   string
	id     string
	status string
}

type pending struct {
	eventType string
	id        string
	payload   any
}

type Batch struct {
	cache  []change
	events []pending
}

func NewBatch() *Batch { return &Batch{} }

func (b *Batch) Table(id string, from, to models.TableStatus) {
	if from == to {
		return
	}
	b.cache = append(b.cache, change{kind: "table", id: id, status: string(to)})
	b.events = append(b.events, pending{events.EventTableStatusChanged, id,
		events.StatusChangedPayload{ID: id, From: string(from), Status: string(to)}})
}

func (b *Batch) Order(id string, from, to models.OrderStatus) {
	if from == to {
		return
	}
	b.cache = append(b.cache, change{kind: "order", id: id, status: string(to)})
	b.events = append(b.events, pending{events.EventOrderStatusChanged, id,
		events.StatusChangedPayload{ID: id, From: string(from), Status: string(to)}})
}

func (b *Batch) Reservation(id string, from, to models.ReservationStatus, tableID string) {
	if from == to {
		return
	}
	b.events = append(b.events, pending{events.EventReservationStatusChanged, id,
		events.StatusChangedPayload{ID: id, From: string(from), Status: string(to), Ref: tableID}})
}

func (b *Batch) Payment(p *models.Payment, from models.PaymentStatus) {
	if from == p.Status {
		return
	}
	b.events = append(b.events, pending{events.EventPaymentStatusChanged, p.ID,
		events.StatusChangedPayload{ID: p.ID, From: string(from), Status: string(p.Status), Ref: p.PaymentOrderNo}})
}

func (b *Batch) Event(eventType, id string, payload any) {
	b.events = append(b.events, pending{eventType, id, payload})
}

func (b *Batch) Len() int { return len(b.cache) + len(b.events) }

type Dispatcher struct {
	Cache    Cache
	Bus      events.Publisher
	Producer string
	Log      *zap.Logger
}

// Flush applies the batch best effort. Failures are logged and never returned:
// the transaction they describe has already committed.
func (d *Dispatcher) Flush(ctx context.Context, b *Batch) {
	if d == nil || b == nil {
		return
	}
	for _, c := range b.cache {
		var err error
		switch c.kind {
		case "table":
			err = d.Cache.SetTableStatus(ctx, c.id, c.status)
		case "order":
			err = d.Cache.SetOrderStatus(ctx, c.id, c.status)
		}
		if err != nil {
			d.Log.Warn("status cache write failed", zap.String("kind", c.kind), zap.String("id", c.id), zap.Error(err))
		}
	}
	if d.Bus == nil {
		return
	}
	for _, p := range b.events {
		env, err := events.New(p.eventType, d.Producer, p.id, p.payload)
		if err != nil {
			d.Log.Warn("event encode failed", zap.String("type", p.eventType), zap.Error(err))
			continue
		}
		if err := d.Bus.Publish(ctx, env); err != nil {
			d.Log.Warn("event publish failed", zap.String("type", p.eventType), zap.String("id", p.id), zap.Error(err))
		}
	}
}

// TableStatus serves the display path: cache first, then the loader, re-populating the cache on a miss.
func (d *Dispatcher) TableStatus(ctx context.Context, id string, load func() (string, error)) (string, error) {
	return d.read(ctx, id, d.Cache.TableStatus, d.Cache.SetTableStatus, load)
}

func (d *Dispatcher) OrderStatus(ctx context.Context, id string, load func() (string, error)) (string, error) {
	return d.read(ctx, id, d.Cache.OrderStatus, d.Cache.SetOrderStatus, load)
}

func (d *Dispatcher) read(ctx context.Context, id string,
	get func(context.Context, string) (string, error),
	set func(context.Context, string, string) error,
	load func() (string, error)) (string, error) {
	if s, err := get(ctx, id); err == nil && s != "" {
		return s, nil
	} else if err != nil {
		d.Log.Debug("status cache read failed", zap.String("id", id), zap.Error(err))
	}
	s, err := load()
	if err != nil || s == "" {
		return s, err
	}
	if err := set(ctx, id, s); err != nil {
		d.Log.Debug("status cache refill failed", zap.String("id", id), zap.Error(err))
	}
	return s, nil
}
