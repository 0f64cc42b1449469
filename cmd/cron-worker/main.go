package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/kitchenpay-backend/api/controllers"
	"github.com/angelmondragon/kitchenpay-backend/api/routes"
	"github.com/angelmondragon/kitchenpay-backend/internal/cron"
	"github.com/angelmondragon/kitchenpay-backend/internal/engine"
	"github.com/angelmondragon/kitchenpay-backend/internal/notifications"
	"github.com/angelmondragon/kitchenpay-backend/pkg/config"
	"github.com/angelmondragon/kitchenpay-backend/pkg/db"
	"github.com/angelmondragon/kitchenpay-backend/pkg/logger"
	"github.com/angelmondragon/kitchenpay-backend/pkg/metrics"
	"github.com/angelmondragon/kitchenpay-backend/pkg/migrate"
	"github.com/angelmondragon/kitchenpay-backend/pkg/redis"
)

const shutdownTimeout = 10 * time.Second

func main() {
	once := flag.Bool("once", false, "run every job a single time and exit")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
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

	cronMetrics := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	walletMetrics := metrics.NewWalletMetrics(prometheus.DefaultRegisterer)

	eng, err := engine.New(engine.Params{
		Config:  cfg,
		DB:      dbClient,
		Redis:   redisClient,
		Metrics: walletMetrics,
		Logger:  logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to build wallet engine", err)
		os.Exit(1)
	}

	registry, err := buildRegistry(cfg, logg, dbClient, eng, walletMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to register cron jobs", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.CronLockKey("wallet"), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  cronMetrics,
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})

	if *once {
		if err := service.RunOnce(ctx); err != nil {
			logg.Error(ctx, "cron cycle failed", err)
			os.Exit(1)
		}
		return
	}

	opsServer := &http.Server{
		Addr: net.JoinHostPort("", cfg.Cron.OpsPort),
		Handler: routes.NewOpsRouter(routes.OpsParams{
			Env:    cfg.App.Env,
			Logger: logg,
			Dependencies: []controllers.Dependency{
				{Name: "database", Ping: dbClient},
				{Name: "redis", Ping: redisClient},
			},
			Balances:  eng.Wallets,
			Clearance: eng.Clearance,
			Metrics:   promhttp.Handler(),
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logg.Info(logg.WithField(ctx, "addr", opsServer.Addr), "ops server listening")
		if err := opsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "ops server stopped", err)
			stop()
		}
	}()

	logg.Info(ctx, "starting cron worker")

	runErr := service.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := opsServer.Shutdown(shutdownCtx); err != nil {
		logg.Error(shutdownCtx, "ops server shutdown failed", err)
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", runErr)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func buildRegistry(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, eng *engine.Engine, walletMetrics *metrics.WalletMetrics) (*cron.Registry, error) {
	sweep, err := cron.NewClearanceSweepJob(cron.ClearanceSweepJobParams{
		Logger:  logg,
		Sweeper: eng.Sweeper,
	})
	if err != nil {
		return nil, err
	}
	reconcile, err := cron.NewWalletReconcileJob(cron.WalletReconcileJobParams{
		Logger:    logg,
		Wallets:   eng.Wallets,
		Metrics:   walletMetrics,
		BatchSize: cfg.Cron.ReconcileBatch,
	})
	if err != nil {
		return nil, err
	}
	outboxRetention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:      logg,
		DB:          dbClient,
		Repository:  eng.Outbox,
		MinAttempts: cfg.Outbox.MaxAttempts,
	})
	if err != nil {
		return nil, err
	}
	notificationRetention, err := cron.NewNotificationRetentionJob(cron.NotificationRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: notifications.NewRepository(dbClient.DB()),
	})
	if err != nil {
		return nil, err
	}

	registry := cron.NewRegistry()
	for _, job := range []cron.Job{sweep, reconcile, outboxRetention, notificationRetention} {
		if err := registry.Register(job); err != nil {
			return nil, err
		}
	}
	return registry, nil
}
