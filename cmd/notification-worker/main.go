package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"

	"github.com/janisliepins/stockflow-backend/internal/notifications"
	"github.com/janisliepins/stockflow-backend/pkg/config"
	"github.com/janisliepins/stockflow-backend/pkg/db"
	"github.com/janisliepins/stockflow-backend/pkg/logger"
	"github.com/janisliepins/stockflow-backend/pkg/migrate"
	"github.com/janisliepins/stockflow-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "notification-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "notification-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	lock, err := notifications.NewRedisLock(redisClient, redisClient.Key("notifications", "sweep"), cfg.Notifier.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create sweep lock", err)
		os.Exit(1)
	}
	sender, err := notifications.NewLogSender(logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create sender", err)
		os.Exit(1)
	}
	processor, err := notifications.NewProcessor(notifications.ProcessorParams{
		Repo:      notifications.NewRepository(dbClient.DB()),
		Sender:    sender,
		Lock:      lock,
		Logger:    logg,
		BatchSize: cfg.Notifier.BatchSize,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create processor", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env})
	logg.Info(ctx, "starting notification worker")

	if err := run(ctx, logg, processor, cfg.Notifier.PollInterval); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "notification worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "notification worker shutting down gracefully")
}

func run(ctx context.Context, logg *logger.Logger, processor *notifications.Processor, poll time.Duration) error {
	if poll <= 0 {
		poll = 5 * time.Second
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		if _, err := processor.RunCycle(ctx); err != nil {
			logg.Error(ctx, "notification sweep failed", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
