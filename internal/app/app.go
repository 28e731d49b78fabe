// Package app wires the services from configuration. Each cmd builds an App
// and closes it on shutdown.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ariefcatur/go-realtime-venue/internal/config"
	"github.com/ariefcatur/go-realtime-venue/internal/coupons"
	"github.com/ariefcatur/go-realtime-venue/internal/events"
	"github.com/ariefcatur/go-realtime-venue/internal/fanout"
	"github.com/ariefcatur/go-realtime-venue/internal/gateway"
	"github.com/ariefcatur/go-realtime-venue/internal/httpx"
	"github.com/ariefcatur/go-realtime-venue/internal/inventory"
	kafkax "github.com/ariefcatur/go-realtime-venue/internal/kafka"
	"github.com/ariefcatur/go-realtime-venue/internal/loyalty"
	"github.com/ariefcatur/go-realtime-venue/internal/orders"
	"github.com/ariefcatur/go-realtime-venue/internal/payments"
	"github.com/ariefcatur/go-realtime-venue/internal/postgres"
	"github.com/ariefcatur/go-realtime-venue/internal/queue"
	"github.com/ariefcatur/go-realtime-venue/internal/redisx"
	"github.com/ariefcatur/go-realtime-venue/internal/repository"
	"github.com/ariefcatur/go-realtime-venue/internal/sweeper"
	"github.com/ariefcatur/go-realtime-venue/internal/tables"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type App struct {
	Cfg   config.Config
	Log   *zap.Logger
	Store repository.Store

	Tables    *tables.Service
	Orders    *orders.Service
	Inventory *inventory.Ledger
	Coupons   *coupons.Service
	Payments  *payments.Service
	Loyalty   *loyalty.Ledger

	closers []func()
}

// Services builds the service graph over an already opened store and fan-out.
func Services(cfg config.Config, log *zap.Logger, store repository.Store, fan *fanout.Dispatcher, gw gateway.Gateway) *App {
	tbl := tables.NewService(store, fan, log.Named("tables"), cfg.ReservationSlot)
	inv := inventory.NewLedger(store, log.Named("inventory"))
	cpn := coupons.NewService(store, fan, log.Named("coupons"))
	loy := loyalty.NewLedger(store, fan, log.Named("loyalty"))
	ord := orders.NewService(store, fan, log.Named("orders"), tbl, inv, cpn, loy)
	pay := payments.NewService(store, fan, log.Named("payments"), gw, ord, tbl, loy, cfg.PaymentTTL)
	return &App{
		Cfg: cfg, Log: log, Store: store,
		Tables: tbl, Orders: ord, Inventory: inv, Coupons: cpn, Payments: pay, Loyalty: loy,
	}
}

// New connects Postgres, Redis and the configured event bus.
func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	var closers []func()
	fail := func(err error) (*App, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
		return nil, err
	}

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		return fail(fmt.Errorf("db connect: %w", err))
	}
	closers = append(closers, db.Close)

	rdb, err := redisx.New(ctx, cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, func() { _ = rdb.Close() })

	bus, closeBus, err := newBus(ctx, cfg, log)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, closeBus)

	var gw gateway.Gateway = gateway.Sandbox{}
	if cfg.GatewayURL != "" {
		gw = gateway.NewHTTP(cfg.GatewayURL, cfg.GatewayTimeout)
	} else {
		log.Warn("GATEWAY_URL not set, using sandbox payment gateway")
	}

	fan := &fanout.Dispatcher{
		Cache:    &redisx.StatusCache{R: rdb},
		Bus:      bus,
		Producer: cfg.ServiceName,
		Log:      log.Named("fanout"),
	}
	a := Services(cfg, log, repository.NewPgStore(db), fan, gw)
	a.closers = closers
	return a, nil
}

func newBus(ctx context.Context, cfg config.Config, log *zap.Logger) (events.Publisher, func(), error) {
	switch cfg.EventBus {
	case "kafka":
		p := kafkax.NewProducer(cfg.KafkaBrokers, 1024, log.Named("kafka"))
		p.Start(ctx)
		return &kafkax.Bus{P: p}, func() {
			p.Close()
			p.WaitClosed()
		}, nil
	case "rabbitmq":
		c, err := queue.New(cfg.RabbitMQURL)
		if err != nil {
			return nil, nil, fmt.Errorf("rabbitmq dial: %w", err)
		}
		b, err := queue.NewBus(c, cfg.RabbitMQExchange)
		if err != nil {
			_ = c.Close()
			return nil, nil, fmt.Errorf("rabbitmq exchange: %w", err)
		}
		return b, func() { _ = c.Close() }, nil
	case "none", "":
		return events.Nop{}, func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown EVENT_BUS %q", cfg.EventBus)
}

func (a *App) Router() http.Handler {
	r := httpx.NewRouter(a.Log)
	r.Route("/api/v1", func(r chi.Router) {
		h := &httpx.Handler{
			Tables:    a.Tables,
			Orders:    a.Orders,
			Inventory: a.Inventory,
			Coupons:   a.Coupons,
			Payments:  a.Payments,
			Loyalty:   a.Loyalty,
			Log:       a.Log.Named("http"),
		}
		h.Register(r)
	})
	return r
}

func (a *App) Sweeper() *sweeper.Scheduler {
	return sweeper.NewScheduler(a.Coupons, a.Payments, a.Cfg.SweepInterval, a.Log.Named("sweeper"))
}

// Close releases connections in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
