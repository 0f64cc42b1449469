package clearance

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/kitchenpay-backend/internal/audit"
	"github.com/angelmondragon/kitchenpay-backend/internal/deductions"
	"github.com/angelmondragon/kitchenpay-backend/internal/ledger"
	"github.com/angelmondragon/kitchenpay-backend/internal/notifications"
	"github.com/angelmondragon/kitchenpay-backend/internal/wallets"
	"github.com/angelmondragon/kitchenpay-backend/pkg/db/models"
	"github.com/angelmondragon/kitchenpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/kitchenpay-backend/pkg/errors"
	"github.com/angelmondragon/kitchenpay-backend/pkg/logger"
	"github.com/angelmondragon/kitchenpay-backend/pkg/metrics"
)

const defaultSweepBatchSize = 500

type walletPoster interface {
	LockTx(ctx context.Context, tx *gorm.DB, tenantID, sellerID uuid.UUID) (*models.Wallet, error)
	PostTx(ctx context.Context, tx *gorm.DB, wallet *models.Wallet, posting wallets.Posting) (*models.LedgerEntry, error)
	SaveTx(ctx context.Context, tx *gorm.DB, wallet *models.Wallet) error
}

type deductionApplier interface {
	ApplyDeductionsTx(ctx context.Context, tx *gorm.DB, wallet *models.Wallet, paymentCents int64, orderID *uuid.UUID) (deductions.ApplyResult, error)
	ReportApplied(ctx context.Context, tenantID, sellerID uuid.UUID, orderID *uuid.UUID, result deductions.ApplyResult)
}

type notifier interface {
	Send(ctx context.Context, summary notifications.Summary) (*models.Notification, error)
}

type SweeperParams struct {
	DB         txRunner
	Timers     Repository
	Ledger     ledger.Repository
	Wallets    walletPoster
	Deductions deductionApplier
	Notifier   notifier
	Audit      audit.Sink
	Metrics    *metrics.WalletMetrics
	Logger     *logger.Logger
	BatchSize  int
}

// Sweeper promotes matured timers to cleared, one transaction per timer.
type Sweeper struct {
	db         txRunner
	timers     Repository
	ledger     ledger.Repository
	wallets    walletPoster
	deductions deductionApplier
	notifier   notifier
	audit      audit.Sink
	metrics    *metrics.WalletMetrics
	logg       *logger.Logger
	batchSize  int
	now        func() time.Time
}

func NewSweeper(params SweeperParams) (*Sweeper, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Timers == nil {
		return nil, fmt.Errorf("clearance repository required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if params.Wallets == nil {
		return nil, fmt.Errorf("wallet service required")
	}
	if params.Deductions == nil {
		return nil, fmt.Errorf("deduction service required")
	}
	if params.Notifier == nil {
		return nil, fmt.Errorf("notifier required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultSweepBatchSize
	}
	return &Sweeper{
		db:         params.DB,
		timers:     params.Timers,
		ledger:     params.Ledger,
		wallets:    params.Wallets,
		deductions: params.Deductions,
		notifier:   params.Notifier,
		audit:      params.Audit,
		metrics:    params.Metrics,
		logg:       params.Logger,
		batchSize:  batch,
		now:        time.Now,
	}, nil
}

// SweepResult summarizes one pass. Failed timers stay pending for the next run.
type SweepResult struct {
	Processed        int
	TotalAmountCents int64
	SellersNotified  int
	Failed           int
	DeductedCents    int64
}

type sellerKey struct {
	tenantID uuid.UUID
	sellerID uuid.UUID
}

type sellerClearance struct {
	walletID    uuid.UUID
	amountCents int64
	orderIDs    []uuid.UUID
}

type clearedTimer struct {
	timer   models.ClearanceTimer
	applied deductions.ApplyResult
}

// ProcessEligibleClearances clears every timer due at the start of the pass and
// sends each seller one consolidated notification. The returned error joins
// per-timer failures; the result still counts what succeeded.
func (s *Sweeper) ProcessEligibleClearances(ctx context.Context) (SweepResult, error) {
	now := s.now().UTC()
	var (
		result SweepResult
		errs   error
		cursor *Cursor
		order  []sellerKey
	)
	bySeller := map[sellerKey]*sellerClearance{}

	for {
		batch, err := s.timers.ListEligible(ctx, now, cursor, s.batchSize)
		if err != nil {
			return result, multierr.Append(errs, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list eligible clearance timers"))
		}
		for _, candidate := range batch {
			cleared, err := s.clearOne(ctx, candidate.ID, now)
			if err != nil {
				result.Failed++
				s.metrics.IncSweepFailure()
				s.logg.Error(s.timerContext(ctx, candidate), "clearance sweep failed for timer", err)
				errs = multierr.Append(errs, fmt.Errorf("timer %s: %w", candidate.ID, err))
				continue
			}
			if cleared == nil {
				continue
			}

			t := cleared.timer
			result.Processed++
			result.TotalAmountCents += t.AmountCents
			result.DeductedCents += cleared.applied.DeductedCents
			s.metrics.ObserveClearance(t.AmountCents)
			orderID := t.OrderID
			s.deductions.ReportApplied(ctx, t.TenantID, t.SellerID, &orderID, cleared.applied)

			key := sellerKey{tenantID: t.TenantID, sellerID: t.SellerID}
			entry, ok := bySeller[key]
			if !ok {
				entry = &sellerClearance{walletID: t.WalletID}
				bySeller[key] = entry
				order = append(order, key)
			}
			entry.amountCents += t.AmountCents
			entry.orderIDs = append(entry.orderIDs, t.OrderID)
		}
		if len(batch) < s.batchSize {
			break
		}
		last := batch[len(batch)-1]
		cursor = &Cursor{WithdrawableAt: last.WithdrawableAt, ID: last.ID}
	}

	for _, key := range order {
		if s.notifySeller(ctx, key, bySeller[key]) {
			result.SellersNotified++
		}
	}

	if result.Processed > 0 || result.Failed > 0 {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"processed":        result.Processed,
			"total_cents":      result.TotalAmountCents,
			"sellers_notified": result.SellersNotified,
			"failed":           result.Failed,
			"deducted_cents":   result.DeductedCents,
		}), "clearance sweep completed")
	}
	return result, errs
}

// clearOne re-checks the timer under lock, so a timer paused or cleared since
// it was listed is skipped and reported as nil.
func (s *Sweeper) clearOne(ctx context.Context, timerID uuid.UUID, now time.Time) (*clearedTimer, error) {
	var cleared *clearedTimer
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		timers := s.timers.WithTx(tx)
		timer, err := timers.LockByID(ctx, timerID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock clearance timer")
		}
		if timer == nil || !markCleared(timer, now) {
			return nil
		}
		if err := timers.Save(ctx, timer); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save clearance timer")
		}

		flipped, err := s.ledger.WithTx(tx).MarkWithdrawable(ctx, timer.LedgerEntryID, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "flip payment credit")
		}
		if !flipped {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "payment credit already withdrawable").
				WithDetails(map[string]any{"ledger_entry_id": timer.LedgerEntryID.String()})
		}

		wallet, err := s.wallets.LockTx(ctx, tx, timer.TenantID, timer.SellerID)
		if err != nil {
			return err
		}
		orderID := timer.OrderID
		if _, err := s.wallets.PostTx(ctx, tx, wallet, wallets.Posting{
			Kind:           enums.LedgerEntryBecameWithdrawable,
			AmountCents:    timer.AmountCents,
			OrderID:        &orderID,
			WithdrawableAt: &now,
			Metadata:       map[string]any{"timer_id": timer.ID.String(), "source_entry_id": timer.LedgerEntryID.String()},
		}); err != nil {
			return err
		}
		applied, err := s.deductions.ApplyDeductionsTx(ctx, tx, wallet, timer.AmountCents, &orderID)
		if err != nil {
			return err
		}
		if err := s.wallets.SaveTx(ctx, tx, wallet); err != nil {
			return err
		}
		cleared = &clearedTimer{timer: *timer, applied: applied}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cleared, nil
}

// notifySeller is best-effort: the clearance is already committed.
func (s *Sweeper) notifySeller(ctx context.Context, key sellerKey, entry *sellerClearance) bool {
	logCtx := s.logg.WithWallet(ctx, key.tenantID.String(), key.sellerID.String())
	if _, err := s.notifier.Send(ctx, notifications.Summary{
		TenantID:    key.tenantID,
		SellerID:    key.sellerID,
		Type:        enums.NotificationTypeFundsCleared,
		AmountCents: entry.amountCents,
		OrderIDs:    entry.orderIDs,
	}); err != nil {
		s.logg.Error(logCtx, "funds cleared notification failed", err)
		return false
	}

	orderIDs := make([]string, 0, len(entry.orderIDs))
	for _, id := range entry.orderIDs {
		orderIDs = append(orderIDs, id.String())
	}
	audit.RecordQuietly(ctx, s.audit, s.logg, audit.Record{
		Event:    audit.EventFundsCleared,
		WalletID: entry.walletID,
		TenantID: key.tenantID,
		SellerID: key.sellerID,
		Properties: map[string]any{
			"amount_cents": entry.amountCents,
			"order_count":  len(entry.orderIDs),
			"order_ids":    orderIDs,
		},
	})
	return true
}

func (s *Sweeper) timerContext(ctx context.Context, t models.ClearanceTimer) context.Context {
	return s.logg.WithFields(ctx, map[string]any{
		"timer_id":  t.ID.String(),
		"order_id":  t.OrderID.String(),
		"tenant_id": t.TenantID.String(),
		"seller_id": t.SellerID.String(),
	})
}
