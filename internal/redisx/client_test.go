package redisx

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestStatusCache(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)
	ctx := context.Background()

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start redis: %v", err)
	}
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	addr, err := c.PortEndpoint(ctx, "6379/tcp", "")
	if err != nil {
		t.Fatalf("endpoint: %v", err)
	}
	rdb, err := New(ctx, addr, "", 0)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer rdb.Close()
	cache := &StatusCache{R: rdb}

	if s, err := cache.TableStatus(ctx, "t1"); err != nil || s != "" {
		t.Fatalf("miss = %q, %v", s, err)
	}
	if err := cache.SetTableStatus(ctx, "t1", "RESERVED"); err != nil {
		t.Fatalf("set: %v", err)
	}
	_ = cache.SetTableStatus(ctx, "t1", "IN_USE")
	if s, _ := cache.TableStatus(ctx, "t1"); s != "IN_USE" {
		t.Fatalf("table = %q", s)
	}
	if ttl := rdb.TTL(ctx, "table:t1:status").Val(); ttl != -1 {
		t.Fatalf("ttl = %v, want none", ttl)
	}

	_ = cache.SetOrderStatus(ctx, "o1", "PAID")
	if s, _ := cache.OrderStatus(ctx, "o1"); s != "PAID" {
		t.Fatalf("order = %q", s)
	}
}
