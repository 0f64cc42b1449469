package clearance

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/kitchenpay-backend/internal/audit"
	"github.com/angelmondragon/kitchenpay-backend/internal/complaints"
	"github.com/angelmondragon/kitchenpay-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/kitchenpay-backend/pkg/errors"
	"github.com/angelmondragon/kitchenpay-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type creditFinder interface {
	FindPaymentCredit(ctx context.Context, orderID uuid.UUID) (*models.LedgerEntry, error)
}

type ServiceParams struct {
	DB         txRunner
	Repo       Repository
	Complaints complaints.Reader
	Ledger     creditFinder
	Audit      audit.Sink
	Logger     *logger.Logger
}

// Service owns per-order clearance timers outside of the sweep.
type Service struct {
	db         txRunner
	repo       Repository
	complaints complaints.Reader
	ledger     creditFinder
	audit      audit.Sink
	logg       *logger.Logger
	now        func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("clearance repository required")
	}
	if params.Complaints == nil {
		return nil, fmt.Errorf("complaints reader required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{
		db:         params.DB,
		repo:       params.Repo,
		complaints: params.Complaints,
		ledger:     params.Ledger,
		audit:      params.Audit,
		logg:       params.Logger,
		now:        time.Now,
	}, nil
}

// NewTimer describes the credit a timer will hold.
type NewTimer struct {
	OrderID       uuid.UUID
	TenantID      uuid.UUID
	SellerID      uuid.UUID
	WalletID      uuid.UUID
	LedgerEntryID uuid.UUID
	AmountCents   int64
	CompletedAt   time.Time
	HoldHours     int
}

// CreateTimerTx inserts the order's timer inside the caller's transaction.
// hold_hours is snapshotted so later settings changes do not move it.
func (s *Service) CreateTimerTx(ctx context.Context, tx *gorm.DB, in NewTimer) (*models.ClearanceTimer, error) {
	if in.HoldHours < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "hold hours must not be negative")
	}
	now := s.now().UTC()
	completedAt := in.CompletedAt.UTC()
	timer := &models.ClearanceTimer{
		OrderID:        in.OrderID,
		TenantID:       in.TenantID,
		SellerID:       in.SellerID,
		WalletID:       in.WalletID,
		LedgerEntryID:  in.LedgerEntryID,
		AmountCents:    in.AmountCents,
		CompletedAt:    completedAt,
		HoldHours:      in.HoldHours,
		WithdrawableAt: completedAt.Add(time.Duration(in.HoldHours) * time.Hour),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.WithTx(tx).Create(ctx, timer); err != nil {
		return nil, err
	}
	return timer, nil
}

// OrderView is what operators see for one order's hold.
type OrderView struct {
	Timer         models.ClearanceTimer
	State         State
	PaymentCredit *models.LedgerEntry
}

// OrderClearance returns nil when the order never started a hold.
func (s *Service) OrderClearance(ctx context.Context, orderID uuid.UUID) (*OrderView, error) {
	timer, err := s.repo.FindByOrder(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load clearance timer")
	}
	if timer == nil {
		return nil, nil
	}
	view := &OrderView{Timer: *timer, State: StateOf(*timer)}
	if s.ledger != nil {
		view.PaymentCredit, err = s.ledger.FindPaymentCredit(ctx, orderID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment credit")
		}
	}
	return view, nil
}

// PauseTimer freezes an order's hold while a dispute is open. It returns nil
// when there is nothing to pause: no timer, already paused, terminal, or matured.
func (s *Service) PauseTimer(ctx context.Context, orderID uuid.UUID) (*models.ClearanceTimer, error) {
	timer, err := s.transition(ctx, orderID, pause)
	if err != nil || timer == nil {
		return nil, err
	}
	s.report(ctx, timer, audit.EventClearancePaused, "clearance timer paused", map[string]any{
		"remaining_seconds": *timer.RemainingSecondsAtPause,
	})
	return timer, nil
}

// ResumeTimer restarts a paused hold once no complaint on the order is open
// or escalated. It returns nil while any remain active or when not paused.
// Complaints are read after the timer lock is taken, so a complaint opened
// concurrently is either seen here or pauses the timer once this commits.
func (s *Service) ResumeTimer(ctx context.Context, orderID uuid.UUID) (*models.ClearanceTimer, error) {
	timer, err := s.transitionIf(ctx, orderID, resume, s.noActiveComplaints)
	if err != nil || timer == nil {
		return nil, err
	}
	s.report(ctx, timer, audit.EventClearanceResumed, "clearance timer resumed", map[string]any{
		"withdrawable_at": timer.WithdrawableAt.Format(time.RFC3339),
	})
	return timer, nil
}

func (s *Service) noActiveComplaints(ctx context.Context, tx *gorm.DB, timer *models.ClearanceTimer) (bool, error) {
	if StateOf(*timer) != StatePaused {
		return true, nil
	}
	list, err := complaints.ForTx(s.complaints, tx).ListByOrder(ctx, timer.OrderID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order complaints")
	}
	if complaints.HasActive(list) {
		s.logg.Info(s.logg.WithOrderID(ctx, timer.OrderID.String()), "clearance timer left paused; complaints still active")
		return false, nil
	}
	return true, nil
}

// CancelClearance terminates the hold, e.g. after a full refund. The credit
// stays unwithdrawable. Already-terminal timers return nil.
func (s *Service) CancelClearance(ctx context.Context, orderID uuid.UUID) (*models.ClearanceTimer, error) {
	timer, err := s.transition(ctx, orderID, cancel)
	if err != nil || timer == nil {
		return nil, err
	}
	s.report(ctx, timer, audit.EventClearanceVoided, "clearance timer cancelled", map[string]any{
		"amount_cents": timer.AmountCents,
	})
	return timer, nil
}

type transitionGuard func(ctx context.Context, tx *gorm.DB, timer *models.ClearanceTimer) (bool, error)

func (s *Service) transition(ctx context.Context, orderID uuid.UUID, apply func(*models.ClearanceTimer, time.Time) bool) (*models.ClearanceTimer, error) {
	return s.transitionIf(ctx, orderID, apply, nil)
}

// transitionIf applies a state change under the timer's row lock. guard runs
// inside the same transaction once the lock is held.
func (s *Service) transitionIf(ctx context.Context, orderID uuid.UUID, apply func(*models.ClearanceTimer, time.Time) bool, guard transitionGuard) (*models.ClearanceTimer, error) {
	var changed *models.ClearanceTimer
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		timer, err := repo.LockByOrder(ctx, orderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock clearance timer")
		}
		if timer == nil {
			return nil
		}
		if guard != nil {
			ok, err := guard(ctx, tx, timer)
			if err != nil || !ok {
				return err
			}
		}
		if !apply(timer, s.now().UTC()) {
			return nil
		}
		if err := repo.Save(ctx, timer); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save clearance timer")
		}
		changed = timer
		return nil
	})
	if err != nil {
		return nil, err
	}
	return changed, nil
}

func (s *Service) report(ctx context.Context, timer *models.ClearanceTimer, event, msg string, props map[string]any) {
	props["timer_id"] = timer.ID.String()
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"timer_id":  timer.ID.String(),
		"order_id":  timer.OrderID.String(),
		"tenant_id": timer.TenantID.String(),
		"seller_id": timer.SellerID.String(),
		"state":     string(StateOf(*timer)),
	})
	s.logg.Info(logCtx, msg)
	orderID := timer.OrderID
	audit.RecordQuietly(ctx, s.audit, s.logg, audit.Record{
		Event:      event,
		WalletID:   timer.WalletID,
		TenantID:   timer.TenantID,
		SellerID:   timer.SellerID,
		OrderID:    &orderID,
		Properties: props,
	})
}
