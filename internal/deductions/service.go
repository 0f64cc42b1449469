package deductions

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/kitchenpay-backend/internal/audit"
	"github.com/angelmondragon/kitchenpay-backend/internal/notifications"
	"github.com/angelmondragon/kitchenpay-backend/internal/wallets"
	"github.com/angelmondragon/kitchenpay-backend/pkg/db/models"
	"github.com/angelmondragon/kitchenpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/kitchenpay-backend/pkg/errors"
	"github.com/angelmondragon/kitchenpay-backend/pkg/logger"
	"github.com/angelmondragon/kitchenpay-backend/pkg/metrics"
	"github.com/angelmondragon/kitchenpay-backend/pkg/validators"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// walletPoster is the part of the wallet service settlement writes through.
type walletPoster interface {
	LockTx(ctx context.Context, tx *gorm.DB, tenantID, sellerID uuid.UUID) (*models.Wallet, error)
	LockExistingTx(ctx context.Context, tx *gorm.DB, tenantID, sellerID uuid.UUID) (*models.Wallet, error)
	PostTx(ctx context.Context, tx *gorm.DB, wallet *models.Wallet, posting wallets.Posting) (*models.LedgerEntry, error)
	SaveTx(ctx context.Context, tx *gorm.DB, wallet *models.Wallet) error
}

type notifier interface {
	Send(ctx context.Context, summary notifications.Summary) (*models.Notification, error)
}

type ServiceParams struct {
	DB       txRunner
	Repo     Repository
	Wallets  walletPoster
	Audit    audit.Sink
	Notifier notifier
	Metrics  *metrics.WalletMetrics
	Logger   *logger.Logger
}

// Service maintains the FIFO queue of clawback claims per (tenant, seller).
type Service struct {
	db       txRunner
	repo     Repository
	wallets  walletPoster
	audit    audit.Sink
	notifier notifier
	metrics  *metrics.WalletMetrics
	logg     *logger.Logger
	now      func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("deductions repository required")
	}
	if params.Wallets == nil {
		return nil, fmt.Errorf("wallet service required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{
		db:       params.DB,
		repo:     params.Repo,
		wallets:  params.Wallets,
		audit:    params.Audit,
		notifier: params.Notifier,
		metrics:  params.Metrics,
		logg:     params.Logger,
		now:      time.Now,
	}, nil
}

type CreateInput struct {
	TenantID    uuid.UUID             `json:"tenant_id" validate:"required"`
	SellerID    uuid.UUID             `json:"seller_id" validate:"required"`
	OrderID     *uuid.UUID            `json:"order_id"`
	AmountCents int64                 `json:"amount_cents"`
	Reason      enums.DeductionReason `json:"reason" validate:"required,oneof=refund chargeback adjustment"`
	Source      string                `json:"source" validate:"max=120"`
}

// CreateDeduction queues a claim. A non-positive amount has nothing to claw
// back and returns (nil, nil) without touching the wallet.
func (s *Service) CreateDeduction(ctx context.Context, input CreateInput) (*models.PendingDeduction, error) {
	if input.AmountCents <= 0 {
		return nil, nil
	}
	input.Source = validators.SanitizeString(input.Source, 120)
	if err := validators.Struct(input); err != nil {
		return nil, err
	}

	var deduction *models.PendingDeduction
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		wallet, err := s.wallets.LockTx(ctx, tx, input.TenantID, input.SellerID)
		if err != nil {
			return err
		}
		deduction, err = s.createTx(ctx, tx, wallet, input)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"tenant_id":    input.TenantID.String(),
		"seller_id":    input.SellerID.String(),
		"deduction_id": deduction.ID.String(),
		"amount_cents": deduction.OriginalAmountCents,
		"reason":       deduction.Reason,
	}), "pending deduction created")
	audit.RecordQuietly(ctx, s.audit, s.logg, audit.Record{
		Event:    audit.EventDeductionCreated,
		WalletID: deduction.WalletID,
		TenantID: deduction.TenantID,
		SellerID: deduction.SellerID,
		OrderID:  deduction.OrderID,
		Properties: map[string]any{
			"deduction_id": deduction.ID.String(),
			"amount_cents": deduction.OriginalAmountCents,
			"reason":       string(deduction.Reason),
			"source":       deduction.Source,
		},
	})
	return deduction, nil
}

func (s *Service) createTx(ctx context.Context, tx *gorm.DB, wallet *models.Wallet, input CreateInput) (*models.PendingDeduction, error) {
	deduction := &models.PendingDeduction{
		WalletID:             wallet.ID,
		TenantID:             wallet.TenantID,
		SellerID:             wallet.SellerID,
		OrderID:              input.OrderID,
		OriginalAmountCents:  input.AmountCents,
		RemainingAmountCents: input.AmountCents,
		Reason:               input.Reason,
		Source:               input.Source,
		CreatedAt:            s.now().UTC(),
	}
	if err := s.repo.WithTx(tx).Create(ctx, deduction); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create pending deduction")
	}
	return deduction, nil
}

type ApplyInput struct {
	TenantID     uuid.UUID  `json:"tenant_id" validate:"required"`
	SellerID     uuid.UUID  `json:"seller_id" validate:"required"`
	PaymentCents int64      `json:"payment_cents" validate:"gte=0"`
	OrderID      *uuid.UUID `json:"order_id"`
}

// ApplyDeductions settles queued claims against a payment that is arriving
// now. The consumed part of the payment is booked as a cleared credit and
// immediately offset by the refund_deduction entries, so the wallet's existing
// balance is never drawn on. The leftover is returned to the caller to credit.
// The whole walk commits or none of it does.
func (s *Service) ApplyDeductions(ctx context.Context, input ApplyInput) (ApplyResult, error) {
	if err := validators.Struct(input); err != nil {
		return ApplyResult{}, err
	}
	unchanged := ApplyResult{RemainingPaymentCents: input.PaymentCents, Applied: []Applied{}}

	var result ApplyResult
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		wallet, err := s.wallets.LockExistingTx(ctx, tx, input.TenantID, input.SellerID)
		if err != nil {
			return err
		}
		if wallet == nil {
			result = unchanged
			return nil
		}
		result, err = s.applyTx(ctx, tx, wallet, input.PaymentCents, input.OrderID, true)
		if err != nil {
			return err
		}
		if result.DeductedCents == 0 {
			return nil
		}
		return s.wallets.SaveTx(ctx, tx, wallet)
	})
	if err != nil {
		return ApplyResult{}, err
	}
	s.ReportApplied(ctx, input.TenantID, input.SellerID, input.OrderID, result)
	return result, nil
}

// ApplyDeductionsTx runs the FIFO walk inside the caller's transaction against
// an already-locked wallet whose withdrawable balance already holds the
// payment, appending a refund_deduction entry per claim it touches. The caller
// saves the wallet and reports the result.
func (s *Service) ApplyDeductionsTx(ctx context.Context, tx *gorm.DB, wallet *models.Wallet, paymentCents int64, orderID *uuid.UUID) (ApplyResult, error) {
	return s.applyTx(ctx, tx, wallet, paymentCents, orderID, false)
}

func (s *Service) applyTx(ctx context.Context, tx *gorm.DB, wallet *models.Wallet, paymentCents int64, orderID *uuid.UUID, incoming bool) (ApplyResult, error) {
	if paymentCents < 0 {
		return ApplyResult{}, pkgerrors.New(pkgerrors.CodeValidation, "payment amount must not be negative")
	}
	repo := s.repo.WithTx(tx)
	queue, err := repo.LockUnsettled(ctx, wallet.TenantID, wallet.SellerID)
	if err != nil {
		return ApplyResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock pending deductions")
	}

	result, touched := allocate(queue, paymentCents, s.now().UTC())
	if result.RemainingPaymentCents < 0 || result.DeductedCents+result.RemainingPaymentCents != paymentCents {
		return ApplyResult{}, pkgerrors.New(pkgerrors.CodeStateConflict, "deduction allocation overran payment").
			WithDetails(map[string]any{"payment_cents": paymentCents, "deducted_cents": result.DeductedCents})
	}

	if incoming && result.DeductedCents > 0 {
		if _, err := s.wallets.PostTx(ctx, tx, wallet, wallets.Posting{
			Kind:        enums.LedgerEntryPaymentCredit,
			AmountCents: result.DeductedCents,
			OrderID:     orderID,
			Cleared:     true,
			Metadata: map[string]any{
				"payment_cents": paymentCents,
				"settles":       len(result.Applied),
			},
		}); err != nil {
			return ApplyResult{}, err
		}
	}

	for n, idx := range touched {
		d := &queue[idx]
		if err := repo.Save(ctx, d); err != nil {
			return ApplyResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "settle pending deduction")
		}
		ref := orderID
		if ref == nil {
			ref = d.OrderID
		}
		deductionID := d.ID
		if _, err := s.wallets.PostTx(ctx, tx, wallet, wallets.Posting{
			Kind:        enums.LedgerEntryRefundDeduction,
			AmountCents: result.Applied[n].AmountCents,
			OrderID:     ref,
			DeductionID: &deductionID,
			Metadata: map[string]any{
				"reason":        string(d.Reason),
				"fully_settled": result.Applied[n].FullySettled,
			},
		}); err != nil {
			return ApplyResult{}, err
		}
	}
	return result, nil
}

// ReportApplied logs and meters a walk, including one that ran inside another
// engine's transaction. Call it only after that transaction commits.
func (s *Service) ReportApplied(ctx context.Context, tenantID, sellerID uuid.UUID, orderID *uuid.UUID, result ApplyResult) {
	if len(result.Applied) == 0 {
		return
	}
	for _, applied := range result.Applied {
		s.metrics.ObserveDeduction(applied.AmountCents, applied.FullySettled)
	}
	fields := map[string]any{
		"tenant_id":         tenantID.String(),
		"seller_id":         sellerID.String(),
		"deducted_cents":    result.DeductedCents,
		"remaining_payment": result.RemainingPaymentCents,
		"deductions":        len(result.Applied),
	}
	if orderID != nil {
		fields["order_id"] = orderID.String()
	}
	s.logg.Info(s.logg.WithFields(ctx, fields), "pending deductions applied")
}

// CancelDeduction writes a claim off without payment. It returns false when
// the deduction was already settled.
func (s *Service) CancelDeduction(ctx context.Context, deductionID uuid.UUID, actorID *uuid.UUID) (bool, error) {
	var cancelled *models.PendingDeduction
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		d, err := repo.LockByID(ctx, deductionID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock pending deduction")
		}
		if d == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "pending deduction not found")
		}
		if d.IsSettled() {
			return nil
		}
		now := s.now().UTC()
		d.RemainingAmountCents = 0
		d.SettledAt = &now
		d.CancelledBy = actorID
		if err := repo.Save(ctx, d); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel pending deduction")
		}
		cancelled = d
		return nil
	})
	if err != nil || cancelled == nil {
		return false, err
	}

	props := map[string]any{"deduction_id": cancelled.ID.String()}
	if actorID != nil {
		props["cancelled_by"] = actorID.String()
	}
	s.logg.Info(s.logg.WithFields(ctx, props), "pending deduction written off")
	audit.RecordQuietly(ctx, s.audit, s.logg, audit.Record{
		Event:      audit.EventDeductionVoided,
		WalletID:   cancelled.WalletID,
		TenantID:   cancelled.TenantID,
		SellerID:   cancelled.SellerID,
		OrderID:    cancelled.OrderID,
		Properties: props,
	})
	return true, nil
}

func (s *Service) TotalPendingAmount(ctx context.Context, tenantID, sellerID uuid.UUID) (int64, error) {
	total, err := s.repo.SumUnsettled(ctx, tenantID, sellerID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum pending deductions")
	}
	return total, nil
}

// PendingDeductions lists unsettled claims oldest-first.
func (s *Service) PendingDeductions(ctx context.Context, tenantID, sellerID uuid.UUID) ([]models.PendingDeduction, error) {
	rows, err := s.repo.ListUnsettled(ctx, tenantID, sellerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list pending deductions")
	}
	return rows, nil
}
