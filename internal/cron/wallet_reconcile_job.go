package cron

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/kitchenpay-backend/internal/wallets"
	"github.com/angelmondragon/kitchenpay-backend/pkg/db/models"
	"github.com/angelmondragon/kitchenpay-backend/pkg/logger"
	"github.com/angelmondragon/kitchenpay-backend/pkg/metrics"
)

const defaultReconcileBatch = 200

type walletReconciler interface {
	ListWallets(ctx context.Context, afterID uuid.UUID, limit int) ([]models.Wallet, error)
	Recompute(ctx context.Context, walletID uuid.UUID) (wallets.Drift, error)
}

type WalletReconcileJobParams struct {
	Logger    *logger.Logger
	Wallets   walletReconciler
	Metrics   *metrics.WalletMetrics
	BatchSize int
}

// NewWalletReconcileJob replays every wallet's ledger and repairs cached
// balances that drifted from it.
func NewWalletReconcileJob(params WalletReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Wallets == nil {
		return nil, fmt.Errorf("wallet service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultReconcileBatch
	}
	return &walletReconcileJob{
		logg:    params.Logger,
		wallets: params.Wallets,
		metrics: params.Metrics,
		batch:   batch,
	}, nil
}

type walletReconcileJob struct {
	logg    *logger.Logger
	wallets walletReconciler
	metrics *metrics.WalletMetrics
	batch   int
}

func (j *walletReconcileJob) Name() string { return "wallet-reconcile" }

func (j *walletReconcileJob) Run(ctx context.Context) error {
	var (
		errs    error
		checked int
		drifted int
		after   uuid.UUID
	)
	for {
		page, err := j.wallets.ListWallets(ctx, after, j.batch)
		if err != nil {
			return multierr.Append(errs, fmt.Errorf("list wallets: %w", err))
		}
		for _, w := range page {
			checked++
			drift, err := j.wallets.Recompute(ctx, w.ID)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("wallet %s: %w", w.ID, err))
				continue
			}
			if drift.Detected() {
				drifted++
				j.metrics.IncReconcileDrift()
			}
		}
		if len(page) < j.batch {
			break
		}
		after = page[len(page)-1].ID
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"wallets_checked": checked,
		"wallets_drifted": drifted,
	}), "wallet reconcile finished")
	return errs
}
