package redisx

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

func New(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	r := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := r.Ping(ctx).Err(); err != nil {
		_ = r.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return r, nil
}

// StatusCache is the display projection of table and order status. Keys carry
// no expiry and every write overwrites; the database stays authoritative.
type StatusCache struct {
	R *redis.Client
}

func (c *StatusCache) SetTableStatus(ctx context.Context, id, status string) error {
	return c.R.Set(ctx, fmt.Sprintf(KeyTableStatus, id), status, TTLStatus).Err()
}

func (c *StatusCache) TableStatus(ctx context.Context, id string) (string, error) {
	return c.get(ctx, fmt.Sprintf(KeyTableStatus, id))
}

func (c *StatusCache) SetOrderStatus(ctx context.Context, id, status string) error {
	return c.R.Set(ctx, fmt.Sprintf(KeyOrderStatus, id), status, TTLStatus).Err()
}

func (c *StatusCache) OrderStatus(ctx context.Context, id string) (string, error) {
	return c.get(ctx, fmt.Sprintf(KeyOrderStatus, id))
}

// get returns "" without error on a miss.
func (c *StatusCache) get(ctx context.Context, key string) (string, error) {
	s, err := c.R.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return s, err
}
