package sweeper

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

type MockCoupons struct {
	ExpireSweepFunc func(ctx context.Context) (int64, error)
}

func (m *MockCoupons) ExpireSweep(ctx context.Context) (int64, error) { return m.ExpireSweepFunc(ctx) }

type MockPayments struct {
	ExpireStaleFunc func(ctx context.Context) (int, error)
}

func (m *MockPayments) ExpireStale(ctx context.Context) (int, error) { return m.ExpireStaleFunc(ctx) }

func TestRunOnceNowRunsBothJobs(t *testing.T) {
	var coupons, payments int32
	s := NewScheduler(
		&MockCoupons{ExpireSweepFunc: func(context.Context) (int64, error) {
			atomic.AddInt32(&coupons, 1)
			return 0, errors.New("db down")
		}},
		&MockPayments{ExpireStaleFunc: func(context.Context) (int, error) {
			atomic.AddInt32(&payments, 1)
			return 2, nil
		}},
		time.Minute, zap.NewNop())

	err := s.RunOnceNow(context.Background())
	if err == nil || err.Error() != "db down" {
		t.Fatalf("err = %v", err)
	}
	if coupons != 1 || payments != 1 {
		t.Fatalf("coupons=%d payments=%d", coupons, payments)
	}
}

func TestStartSweepsImmediatelyAndStops(t *testing.T) {
	ran := make(chan struct{}, 8)
	s := NewScheduler(
		&MockCoupons{ExpireSweepFunc: func(context.Context) (int64, error) {
			ran <- struct{}{}
			return 1, nil
		}},
		&MockPayments{ExpireStaleFunc: func(context.Context) (int, error) { return 0, nil }},
		time.Hour, zap.NewNop())

	s.Start(context.Background())
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("initial sweep did not run")
	}
	s.Stop()
	s.Stop()
}

func TestStartStopsOnContextCancel(t *testing.T) {
	s := NewScheduler(nil, nil, 10*time.Millisecond, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not exit")
	}
}
