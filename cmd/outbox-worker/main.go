package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/janisliepins/stockflow-backend/internal/external"
	"github.com/janisliepins/stockflow-backend/internal/inventory"
	"github.com/janisliepins/stockflow-backend/internal/movements"
	"github.com/janisliepins/stockflow-backend/internal/notifications"
	"github.com/janisliepins/stockflow-backend/internal/orders"
	"github.com/janisliepins/stockflow-backend/internal/products"
	"github.com/janisliepins/stockflow-backend/pkg/config"
	"github.com/janisliepins/stockflow-backend/pkg/db"
	"github.com/janisliepins/stockflow-backend/pkg/logger"
	"github.com/janisliepins/stockflow-backend/pkg/metrics"
	"github.com/janisliepins/stockflow-backend/pkg/migrate"
	"github.com/janisliepins/stockflow-backend/pkg/outbox"
	"github.com/janisliepins/stockflow-backend/pkg/webhook"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "outbox-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "outbox-worker",
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

	service, err := buildService(cfg, logg, dbClient)
	if err != nil {
		logg.Error(context.Background(), "failed to build outbox dispatcher", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":       cfg.App.Env,
		"worker_id": service.workerID,
	})
	logg.Info(ctx, "starting outbox dispatcher")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "outbox dispatcher stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "outbox dispatcher shutting down gracefully")
}

func buildService(cfg *config.Config, logg *logger.Logger, dbClient *db.Client) (*Service, error) {
	recorder, err := movements.NewService(movements.NewRepository(dbClient.DB()))
	if err != nil {
		return nil, err
	}
	notifier, err := notifications.NewNotifier(notifications.NewRepository(dbClient.DB()), logg)
	if err != nil {
		return nil, err
	}
	stock, err := inventory.NewService(inventory.NewRepository(dbClient.DB()), dbClient, recorder, notifier, logg)
	if err != nil {
		return nil, err
	}
	catalog, err := products.NewService(products.NewRepository(dbClient.DB()))
	if err != nil {
		return nil, err
	}
	ordersvc, err := orders.NewService(orders.NewRepository(dbClient.DB()), dbClient, stock, catalog, logg)
	if err != nil {
		return nil, err
	}

	sender, err := webhook.NewClient(cfg.Webhook, logg)
	if err != nil {
		return nil, err
	}
	repo := outbox.NewRepository(dbClient.DB())
	emitter := outbox.NewEmitter(repo)
	handlers, err := external.NewHandlers(ordersvc, emitter, sender, dbClient, logg)
	if err != nil {
		return nil, err
	}
	registry := outbox.NewRegistry()
	if err := handlers.Register(registry); err != nil {
		return nil, err
	}

	promReg := prometheus.NewRegistry()
	workerMetrics := metrics.NewWorkerMetrics(promReg)
	go serveMetrics(logg, cfg.App.Port, promReg)

	return NewService(ServiceParams{
		Config:   cfg.Outbox,
		Logger:   logg,
		Repo:     repo,
		Registry: registry,
		Orders:   ordersvc,
		TX:       dbClient,
		Metrics:  workerMetrics,
		WorkerID: "outbox-" + uuid.NewString(),
	})
}

func serveMetrics(logg *logger.Logger, port string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Error(context.Background(), "metrics server stopped", err)
	}
}
