package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ariefcatur/go-realtime-venue/internal/events"
	"github.com/segmentio/kafka-go"
)

func DecodeEnvelope(m kafka.Message) (events.Envelope, error) {
	var env events.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return env, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}

// Bus publishes domain envelopes to the topic registered for their event type.
type Bus struct {
	P *Producer
}

func (b *Bus) Publish(ctx context.Context, env events.Envelope) error {
	topic, ok := events.TopicFor(env.EventType)
	if !ok {
		return fmt.Errorf("no topic for event %s", env.EventType)
	}
	value, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return b.P.Publish(ctx, topic, events.PartitionKey(env.CorrelationID), value,
		kafka.Header{Key: "x-event-type", Value: []byte(env.EventType)},
		kafka.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
