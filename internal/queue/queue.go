package queue

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/ariefcatur/go-realtime-venue/internal/events"
	amqp "github.com/rabbitmq/amqp091-go"
)

type Client struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	mu   sync.Mutex // amqp channels are not safe for concurrent publishes
}

func New(url string) (*Client, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &Client{conn: conn, ch: ch}, nil
}

func (c *Client) Close() error {
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *Client) EnsureExchange(name string) error {
	return c.ch.ExchangeDeclare(
		name,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	)
}

func (c *Client) PublishJSON(ctx context.Context, exchange, routingKey string, payload any, headers amqp.Table) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ch.PublishWithContext(ctx, exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Headers:      headers,
		Body:         body,
		Timestamp:    time.Now(),
	})
}

// Bus publishes domain envelopes to a topic exchange; the routing key is the
// topic name the Kafka transport would use.
type Bus struct {
	Client   *Client
	Exchange string
}

func NewBus(c *Client, exchange string) (*Bus, error) {
	if err := c.EnsureExchange(exchange); err != nil {
		return nil, err
	}
	return &Bus{Client: c, Exchange: exchange}, nil
}

func (b *Bus) Publish(ctx context.Context, env events.Envelope) error {
	key, ok := events.TopicFor(env.EventType)
	if !ok {
		key = env.EventType
	}
	return b.Client.PublishJSON(ctx, b.Exchange, key, env, amqp.Table{
		"x-event-type":    env.EventType,
		"x-event-version": int32(env.EventVersion),
	})
}
