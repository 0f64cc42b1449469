package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/kitchenpay-backend/internal/consumers/marketplace"
	"github.com/angelmondragon/kitchenpay-backend/internal/engine"
	"github.com/angelmondragon/kitchenpay-backend/pkg/config"
	"github.com/angelmondragon/kitchenpay-backend/pkg/db"
	"github.com/angelmondragon/kitchenpay-backend/pkg/logger"
	"github.com/angelmondragon/kitchenpay-backend/pkg/metrics"
	"github.com/angelmondragon/kitchenpay-backend/pkg/migrate"
	"github.com/angelmondragon/kitchenpay-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/kitchenpay-backend/pkg/pubsub"
	"github.com/angelmondragon/kitchenpay-backend/pkg/redis"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "wallet-worker"})

	_ = godotenv.Load()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	cfg.Service.Kind = "wallet-worker"

	logg = logger.New(logger.Options{
		ServiceName: "wallet-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "failed to close database", err)
		}
	}()

	requireResource(ctx, logg, "dev migrations", migrate.MaybeRunDev(ctx, cfg, logg, dbClient))

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "failed to close redis client", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	requireResource(ctx, logg, "pubsub", err)
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(ctx, "failed to close pubsub client", err)
		}
	}()

	subscription := pubsubClient.Subscriber(cfg.PubSub.MarketplaceSubscription)
	if subscription == nil {
		requireResource(ctx, logg, "marketplace subscription", errors.New("subscription not configured"))
	}

	eng, err := engine.New(engine.Params{
		Config:  cfg,
		DB:      dbClient,
		Redis:   redisClient,
		Metrics: metrics.NewWalletMetrics(prometheus.DefaultRegisterer),
		Logger:  logg,
	})
	requireResource(ctx, logg, "wallet engine", err)

	manager, err := idempotency.NewManager(redisClient, cfg.PubSub.IdempotencyTTL)
	requireResource(ctx, logg, "idempotency manager", err)

	consumer, err := marketplace.NewConsumer(marketplace.ConsumerParams{
		Commission: eng.Commission,
		Refunds:    eng.Deductions,
		Clearance:  eng.Clearance,
		Complaints: eng.Complaints,
		Logger:     logg,
	})
	requireResource(ctx, logg, "marketplace consumer", err)

	events, err := marketplace.NewService(subscription, consumer, manager, logg)
	requireResource(ctx, logg, "marketplace service", err)

	service, err := NewService(ServiceParams{
		Logger:   logg,
		DB:       dbClient,
		Redis:    redisClient,
		PubSub:   pubsubClient,
		Consumer: events,
	})
	requireResource(ctx, logg, "worker service", err)

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(runCtx, "wallet worker ready")

	if err := service.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "wallet worker failed", err)
		os.Exit(1)
	}
	logg.Info(runCtx, "wallet worker shutting down gracefully")
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
