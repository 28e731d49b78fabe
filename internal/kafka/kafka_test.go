package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/ariefcatur/go-realtime-venue/internal/events"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

func TestBusRoutesByEventType(t *testing.T) {
	p := NewProducer([]string{"127.0.0.1:1"}, 4, zap.NewNop())
	b := &Bus{P: p}
	env, _ := events.New(events.EventOrderStatusChanged, "test", "order-1",
		events.StatusChangedPayload{ID: "order-1", Status: "PAID"})

	if err := b.Publish(context.Background(), env); err != nil {
		t.Fatalf("publish: %v", err)
	}
	m := <-p.inbox
	if m.Topic != events.TopicOrderStatus || string(m.Key) != "order-1" {
		t.Fatalf("message = %s %s", m.Topic, m.Key)
	}
	got, err := DecodeEnvelope(m)
	if err != nil || got.EventID != env.EventID {
		t.Fatalf("decoded = %+v, %v", got, err)
	}
	if len(m.Headers) != 2 || string(m.Headers[0].Value) != events.EventOrderStatusChanged {
		t.Fatalf("headers = %v", m.Headers)
	}

	env.EventType = "Unknown"
	if err := b.Publish(context.Background(), env); err == nil {
		t.Fatal("expected error for unrouted event")
	}
}

func TestPublishAfterClose(t *testing.T) {
	p := NewProducer([]string{"127.0.0.1:1"}, 1, zap.NewNop())
	p.Close()
	p.Close()
	if err := p.Publish(context.Background(), "t", nil, nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("err = %v", err)
	}
}

func TestPublishGivesUpWhenFull(t *testing.T) {
	p := NewProducer([]string{"127.0.0.1:1"}, 1, zap.NewNop())
	_ = p.Publish(context.Background(), "t", nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Publish(ctx, "t", nil, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
}

func TestDecodeEnvelopeRejectsGarbage(t *testing.T) {
	if _, err := DecodeEnvelope(kafka.Message{Value: []byte("{")}); err == nil {
		t.Fatal("expected error")
	}
}
