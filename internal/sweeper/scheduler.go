// Package sweeper runs the periodic housekeeping jobs: expiring lapsed coupon
// claims and cancelling payments the provider never settled.
package sweeper

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

type CouponExpirer interface {
	ExpireSweep(ctx context.Context) (int64, error)
}

type PaymentExpirer interface {
	ExpireStale(ctx context.Context) (int, error)
}

type Scheduler struct {
	coupons  CouponExpirer
	payments PaymentExpirer
	interval time.Duration
	log      *zap.Logger

	stopCh chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

func NewScheduler(coupons CouponExpirer, payments PaymentExpirer, interval time.Duration, log *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Scheduler{
		coupons:  coupons,
		payments: payments,
		interval: interval,
		log:      log,
		stopCh:   make(chan struct{}),
	}
}

// Start runs one sweep immediately and then one every interval until Stop or
// ctx cancellation.
func (s *Scheduler) Start(ctx context.Context) {
	s.log.Info("starting sweeper", zap.Duration("interval", s.interval))
	s.wg.Add(1)
	go s.run(ctx)
}

// Stop signals the loop and waits for an in-flight sweep to finish.
func (s *Scheduler) Stop() {
	s.once.Do(func() {
		s.log.Info("stopping sweeper")
		close(s.stopCh)
	})
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	if err := s.RunOnceNow(ctx); err != nil {
		s.log.Error("initial sweep failed", zap.Error(err))
	}
	for {
		select {
		case <-ticker.C:
			if err := s.RunOnceNow(ctx); err != nil {
				s.log.Error("sweep failed", zap.Error(err))
			}
		case <-s.stopCh:
			return
		case <-ctx.Done():
			s.log.Info("sweeper cancelled")
			return
		}
	}
}

// RunOnceNow runs both jobs once. A failing job does not prevent the other.
func (s *Scheduler) RunOnceNow(ctx context.Context) error {
	var errs []error
	if s.coupons != nil {
		n, err := s.coupons.ExpireSweep(ctx)
		if err != nil {
			errs = append(errs, err)
		} else if n > 0 {
			s.log.Info("coupon claims expired", zap.Int64("count", n))
		}
	}
	if s.payments != nil {
		if _, err := s.payments.ExpireStale(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
