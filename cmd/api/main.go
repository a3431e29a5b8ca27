package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"

	"github.com/janisliepins/stockflow-backend/api/routes"
	"github.com/janisliepins/stockflow-backend/internal/alerts"
	"github.com/janisliepins/stockflow-backend/internal/external"
	"github.com/janisliepins/stockflow-backend/internal/inventory"
	"github.com/janisliepins/stockflow-backend/internal/movements"
	"github.com/janisliepins/stockflow-backend/internal/notifications"
	"github.com/janisliepins/stockflow-backend/internal/orders"
	"github.com/janisliepins/stockflow-backend/internal/products"
	"github.com/janisliepins/stockflow-backend/pkg/config"
	"github.com/janisliepins/stockflow-backend/pkg/db"
	"github.com/janisliepins/stockflow-backend/pkg/logger"
	"github.com/janisliepins/stockflow-backend/pkg/migrate"
	"github.com/janisliepins/stockflow-backend/pkg/outbox"
	"github.com/janisliepins/stockflow-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	deps, err := buildDeps(cfg, logg, dbClient, redisClient)
	if err != nil {
		logg.Error(context.Background(), "failed to wire services", err)
		os.Exit(1)
	}

	addr := ":" + cfg.App.Port
	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(deps),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
	}

	logg.Info(ctx, "api server shutting down gracefully")
}

func buildDeps(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client) (routes.Deps, error) {
	gdb := dbClient.DB()

	recorder, err := movements.NewService(movements.NewRepository(gdb))
	if err != nil {
		return routes.Deps{}, err
	}
	notifier, err := notifications.NewNotifier(notifications.NewRepository(gdb), logg)
	if err != nil {
		return routes.Deps{}, err
	}
	stock, err := inventory.NewService(inventory.NewRepository(gdb), dbClient, recorder, notifier, logg)
	if err != nil {
		return routes.Deps{}, err
	}
	catalog, err := products.NewService(products.NewRepository(gdb))
	if err != nil {
		return routes.Deps{}, err
	}
	orderRepo := orders.NewRepository(gdb)
	ordersvc, err := orders.NewService(orderRepo, dbClient, stock, catalog, logg)
	if err != nil {
		return routes.Deps{}, err
	}
	emitter := outbox.NewEmitter(outbox.NewRepository(gdb))
	facade, err := external.NewService(ordersvc, orderRepo, catalog, emitter, dbClient, logg)
	if err != nil {
		return routes.Deps{}, err
	}
	alertsvc, err := alerts.NewService(alerts.NewRepository(gdb), logg)
	if err != nil {
		return routes.Deps{}, err
	}

	return routes.Deps{
		Config:    cfg,
		Logger:    logg,
		DB:        dbClient,
		Redis:     redisClient,
		Products:  catalog,
		Inventory: stock,
		Orders:    ordersvc,
		External:  facade,
		Movements: recorder,
		Alerts:    alertsvc,
	}, nil
}
