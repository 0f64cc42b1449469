// Package engine assembles the wallet services shared by the worker binaries.
package engine

import (
	"fmt"

	"github.com/angelmondragon/kitchenpay-backend/internal/audit"
	"github.com/angelmondragon/kitchenpay-backend/internal/clearance"
	"github.com/angelmondragon/kitchenpay-backend/internal/commission"
	"github.com/angelmondragon/kitchenpay-backend/internal/complaints"
	"github.com/angelmondragon/kitchenpay-backend/internal/deductions"
	"github.com/angelmondragon/kitchenpay-backend/internal/ledger"
	"github.com/angelmondragon/kitchenpay-backend/internal/notifications"
	"github.com/angelmondragon/kitchenpay-backend/internal/settings"
	"github.com/angelmondragon/kitchenpay-backend/internal/wallets"
	"github.com/angelmondragon/kitchenpay-backend/pkg/config"
	"github.com/angelmondragon/kitchenpay-backend/pkg/db"
	"github.com/angelmondragon/kitchenpay-backend/pkg/enums"
	"github.com/angelmondragon/kitchenpay-backend/pkg/logger"
	"github.com/angelmondragon/kitchenpay-backend/pkg/metrics"
	"github.com/angelmondragon/kitchenpay-backend/pkg/outbox"
	"github.com/angelmondragon/kitchenpay-backend/pkg/redis"
)

type Params struct {
	Config  *config.Config
	DB      *db.Client
	Redis   *redis.Client
	Metrics *metrics.WalletMetrics
	Logger  *logger.Logger
}

// Engine holds one wired instance of every wallet service. Redis is optional;
// without it settings reads go straight to the database.
type Engine struct {
	Settings      *settings.Provider
	Wallets       *wallets.Service
	Deductions    *deductions.Service
	Clearance     *clearance.Service
	Sweeper       *clearance.Sweeper
	Commission    *commission.Service
	Complaints    complaints.Repository
	Notifications *notifications.Dispatcher
	Audit         *audit.Recorder
	Outbox        *outbox.Repository
}

func New(params Params) (*Engine, error) {
	if params.Config == nil {
		return nil, fmt.Errorf("config required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("database client required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	cfg := params.Config
	logg := params.Logger
	gdb := params.DB.DB()

	settingsRepo := settings.NewRepository(gdb)
	var (
		provider *settings.Provider
		err      error
	)
	if params.Redis != nil {
		provider, err = settings.NewProvider(settingsRepo, params.Redis, cfg.Wallet, logg)
	} else {
		provider, err = settings.NewProvider(settingsRepo, nil, cfg.Wallet, logg)
	}
	if err != nil {
		return nil, fmt.Errorf("settings provider: %w", err)
	}

	outboxRepo := outbox.NewRepository(gdb)
	emitter := outbox.NewService(outboxRepo, logg)

	recorder, err := audit.NewRecorder(params.DB, emitter, logg)
	if err != nil {
		return nil, fmt.Errorf("audit recorder: %w", err)
	}
	dispatcher, err := notifications.NewDispatcher(notifications.DispatcherParams{
		DB:     params.DB,
		Repo:   notifications.NewRepository(gdb),
		Outbox: emitter,
		Logger: logg,
	})
	if err != nil {
		return nil, fmt.Errorf("notification dispatcher: %w", err)
	}

	ledgerRepo := ledger.NewRepository(gdb)
	walletSvc, err := wallets.NewService(wallets.ServiceParams{
		DB:       params.DB,
		Repo:     wallets.NewRepository(gdb),
		Ledger:   ledgerRepo,
		Logger:   logg,
		Currency: enums.Currency(cfg.Wallet.Currency),
	})
	if err != nil {
		return nil, fmt.Errorf("wallet service: %w", err)
	}

	deductionSvc, err := deductions.NewService(deductions.ServiceParams{
		DB:       params.DB,
		Repo:     deductions.NewRepository(gdb),
		Wallets:  walletSvc,
		Audit:    recorder,
		Notifier: dispatcher,
		Metrics:  params.Metrics,
		Logger:   logg,
	})
	if err != nil {
		return nil, fmt.Errorf("deduction service: %w", err)
	}

	complaintRepo := complaints.NewRepository(gdb)
	timers := clearance.NewRepository(gdb)
	clearanceSvc, err := clearance.NewService(clearance.ServiceParams{
		DB:         params.DB,
		Repo:       timers,
		Complaints: complaintRepo,
		Ledger:     ledgerRepo,
		Audit:      recorder,
		Logger:     logg,
	})
	if err != nil {
		return nil, fmt.Errorf("clearance service: %w", err)
	}

	sweeper, err := clearance.NewSweeper(clearance.SweeperParams{
		DB:         params.DB,
		Timers:     timers,
		Ledger:     ledgerRepo,
		Wallets:    walletSvc,
		Deductions: deductionSvc,
		Notifier:   dispatcher,
		Audit:      recorder,
		Metrics:    params.Metrics,
		Logger:     logg,
		BatchSize:  cfg.Cron.SweepBatchSize,
	})
	if err != nil {
		return nil, fmt.Errorf("clearance sweeper: %w", err)
	}

	commissionSvc, err := commission.NewService(commission.ServiceParams{
		DB:        params.DB,
		Settings:  provider,
		Wallets:   walletSvc,
		Timers:    timers,
		Clearance: clearanceSvc,
		Audit:     recorder,
		Metrics:   params.Metrics,
		Logger:    logg,
	})
	if err != nil {
		return nil, fmt.Errorf("commission service: %w", err)
	}

	return &Engine{
		Settings:      provider,
		Wallets:       walletSvc,
		Deductions:    deductionSvc,
		Clearance:     clearanceSvc,
		Sweeper:       sweeper,
		Commission:    commissionSvc,
		Complaints:    complaintRepo,
		Notifications: dispatcher,
		Audit:         recorder,
		Outbox:        outboxRepo,
	}, nil
}
