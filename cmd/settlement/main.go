package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ariefcatur/go-realtime-venue/internal/app"
	"github.com/ariefcatur/go-realtime-venue/internal/apperr"
	"github.com/ariefcatur/go-realtime-venue/internal/config"
	"github.com/ariefcatur/go-realtime-venue/internal/events"
	kafkax "github.com/ariefcatur/go-realtime-venue/internal/kafka"
	"github.com/ariefcatur/go-realtime-venue/internal/logger"
	"github.com/ariefcatur/go-realtime-venue/internal/payments"
	"github.com/joho/godotenv"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	log, err := logger.New(cfg.Env)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("startup failed", zap.Error(err))
	}
	defer a.Close()

	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.SettlementGroup, events.TopicPaymentCallback, cfg.SettlementWorkers, log.Named("consumer"))
	go func() {
		log.Info("settlement consumer started", zap.String("group", cfg.SettlementGroup),
			zap.String("topic", events.TopicPaymentCallback), zap.Int("lanes", cfg.SettlementWorkers))
		if err := cons.Start(ctx, handler(a.Payments, log)); err != nil {
			log.Error("consumer exit", zap.Error(err))
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	log.Info("shutting down consumer")
	cancel()
}

// handler applies one callback. Malformed messages and business rejections
// are logged and committed. Infrastructure errors are returned, and the
// consumer retries the same message before moving on in its partition.
func handler(svc *payments.Service, log *zap.Logger) kafkax.Handler {
	return func(ctx context.Context, m kafka.Message) error {
		env, err := kafkax.DecodeEnvelope(m)
		if err != nil {
			log.Warn("dropping malformed callback", zap.Int64("offset", m.Offset), zap.Error(err))
			return nil
		}
		cb, err := events.Decode[events.PaymentCallbackPayload](env)
		if err != nil {
			log.Warn("dropping malformed callback payload", zap.String("event_id", env.EventID), zap.Error(err))
			return nil
		}
		p, err := svc.ApplySettlement(ctx, payments.Settlement{
			PaymentOrderNo: cb.PaymentOrderNo,
			ProviderRef:    cb.ProviderRef,
			PaidAmount:     cb.PaidAmount,
		})
		if apperr.IsBusiness(err) {
			log.Warn("callback rejected", zap.String("payment_order_no", cb.PaymentOrderNo),
				zap.String("code", string(apperr.KindOf(err))), zap.Error(err))
			return nil
		}
		if err != nil {
			return err
		}
		log.Info("callback applied", zap.String("payment_order_no", p.PaymentOrderNo), zap.String("status", string(p.Status)))
		return nil
	}
}
