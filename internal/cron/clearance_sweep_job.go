package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/kitchenpay-backend/internal/clearance"
	"github.com/angelmondragon/kitchenpay-backend/pkg/logger"
)

type clearanceSweeper interface {
	ProcessEligibleClearances(ctx context.Context) (clearance.SweepResult, error)
}

type ClearanceSweepJobParams struct {
	Logger  *logger.Logger
	Sweeper clearanceSweeper
}

// NewClearanceSweepJob promotes matured clearance timers each cycle. A run
// with per-timer failures still commits the others but reports failure so
// the job's failure counter moves.
func NewClearanceSweepJob(params ClearanceSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Sweeper == nil {
		return nil, fmt.Errorf("clearance sweeper required")
	}
	return &clearanceSweepJob{logg: params.Logger, sweeper: params.Sweeper}, nil
}

type clearanceSweepJob struct {
	logg    *logger.Logger
	sweeper clearanceSweeper
}

func (j *clearanceSweepJob) Name() string { return "clearance-sweep" }

func (j *clearanceSweepJob) Run(ctx context.Context) error {
	result, err := j.sweeper.ProcessEligibleClearances(ctx)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"processed":        result.Processed,
		"total_cents":      result.TotalAmountCents,
		"sellers_notified": result.SellersNotified,
		"deducted_cents":   result.DeductedCents,
		"failed":           result.Failed,
	})
	if err != nil {
		return fmt.Errorf("clearance sweep: %d timers failed: %w", result.Failed, err)
	}
	if result.Processed == 0 {
		j.logg.Debug(logCtx, "no clearance timers due")
		return nil
	}
	j.logg.Info(logCtx, "clearance sweep finished")
	return nil
}
