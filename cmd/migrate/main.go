package main

import (
	"context"
	"time"

	"github.com/ariefcatur/go-realtime-venue/internal/config"
	"github.com/ariefcatur/go-realtime-venue/internal/logger"
	"github.com/ariefcatur/go-realtime-venue/internal/migrate"
	"github.com/ariefcatur/go-realtime-venue/internal/postgres"
	"github.com/joho/godotenv"
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

	db, err := postgres.OpenGorm(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("db open", zap.Error(err))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if err := migrate.MigrateVenueDB(ctx, db, log, migrate.DefaultMigrateOptions()); err != nil {
		log.Fatal("migration failed", zap.Error(err))
	}
}
