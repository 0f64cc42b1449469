package wallets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/kitchenpay-backend/internal/ledger"
	"github.com/angelmondragon/kitchenpay-backend/pkg/db/models"
	"github.com/angelmondragon/kitchenpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/kitchenpay-backend/pkg/errors"
	"github.com/angelmondragon/kitchenpay-backend/pkg/logger"
	"github.com/angelmondragon/kitchenpay-backend/pkg/validators"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type ServiceParams struct {
	DB       txRunner
	Repo     Repository
	Ledger   ledger.Repository
	Logger   *logger.Logger
	Currency enums.Currency
}

// Service maintains wallet running totals alongside the ledger entries that move them.
type Service struct {
	db       txRunner
	repo     Repository
	ledger   ledger.Repository
	logg     *logger.Logger
	currency enums.Currency
	now      func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("wallet repository required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	currency := params.Currency
	if currency == "" {
		currency = enums.CurrencyUSD
	}
	if !currency.IsValid() {
		return nil, fmt.Errorf("unsupported currency %q", currency)
	}
	return &Service{
		db:       params.DB,
		repo:     params.Repo,
		ledger:   params.Ledger,
		logg:     params.Logger,
		currency: currency,
		now:      time.Now,
	}, nil
}

// LockTx returns the (tenant, seller) wallet locked for the rest of tx,
// creating an empty wallet on first use.
func (s *Service) LockTx(ctx context.Context, tx *gorm.DB, tenantID, sellerID uuid.UUID) (*models.Wallet, error) {
	repo := s.repo.WithTx(tx)
	wallet, err := repo.LockForUpdate(ctx, tenantID, sellerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock wallet")
	}
	if wallet != nil {
		return wallet, nil
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}
	if err := repo.CreateIfMissing(ctx, &models.Wallet{
		ID:       id,
		TenantID: tenantID,
		SellerID: sellerID,
		Currency: string(s.currency),
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create wallet")
	}
	wallet, err = repo.LockForUpdate(ctx, tenantID, sellerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock wallet")
	}
	if wallet == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "wallet missing after create")
	}
	return wallet, nil
}

// LockExistingTx locks the wallet if one exists; it never creates.
func (s *Service) LockExistingTx(ctx context.Context, tx *gorm.DB, tenantID, sellerID uuid.UUID) (*models.Wallet, error) {
	wallet, err := s.repo.WithTx(tx).LockForUpdate(ctx, tenantID, sellerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock wallet")
	}
	return wallet, nil
}

// PostTx appends one ledger entry and applies its effect to the in-memory
// wallet. Callers persist the wallet with SaveTx before committing.
func (s *Service) PostTx(ctx context.Context, tx *gorm.DB, wallet *models.Wallet, posting Posting) (*models.LedgerEntry, error) {
	before := wallet.TotalCents()
	if err := apply(wallet, posting); err != nil {
		return nil, err
	}
	meta, err := encodeMetadata(posting.Metadata)
	if err != nil {
		return nil, fmt.Errorf("encode ledger metadata: %w", err)
	}

	entry := &models.LedgerEntry{
		WalletID:           wallet.ID,
		TenantID:           wallet.TenantID,
		SellerID:           wallet.SellerID,
		OrderID:            posting.OrderID,
		DeductionID:        posting.DeductionID,
		Kind:               posting.Kind,
		AmountCents:        posting.AmountCents,
		BalanceBeforeCents: before,
		BalanceAfterCents:  wallet.TotalCents(),
		Currency:           s.currency,
		IsWithdrawable:     posting.Kind == enums.LedgerEntryBecameWithdrawable || posting.Cleared,
		WithdrawableAt:     posting.WithdrawableAt,
		Status:             enums.LedgerEntryStatusCompleted,
		Metadata:           meta,
		CreatedAt:          s.now().UTC(),
	}
	if err := s.ledger.WithTx(tx).Create(ctx, entry); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append ledger entry")
	}
	return entry, nil
}

// SaveTx persists the wallet's running totals, failing on a concurrent save.
func (s *Service) SaveTx(ctx context.Context, tx *gorm.DB, wallet *models.Wallet) error {
	if wallet.WithdrawableCents < 0 || wallet.UnwithdrawableCents < 0 {
		return balanceConflict(wallet, "", 0, "wallet")
	}
	if err := s.repo.WithTx(tx).SaveBalances(ctx, wallet); err != nil {
		if errors.Is(err, ErrVersionConflict) {
			return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "wallet changed concurrently")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save wallet balances")
	}
	return nil
}

// Balances is the seller-facing view of a wallet.
type Balances struct {
	TotalCents            int64 `json:"total_cents"`
	WithdrawableCents     int64 `json:"withdrawable_cents"`
	UnwithdrawableCents   int64 `json:"unwithdrawable_cents"`
	PendingDeductionCents int64 `json:"pending_deduction_cents"`
}

// Balances returns zero balances for a seller who has never earned.
func (s *Service) Balances(ctx context.Context, tenantID, sellerID uuid.UUID) (Balances, error) {
	wallet, err := s.repo.Find(ctx, tenantID, sellerID)
	if err != nil {
		return Balances{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wallet")
	}
	if wallet == nil {
		return Balances{}, nil
	}
	pending, err := s.repo.SumPendingDeductions(ctx, wallet.ID)
	if err != nil {
		return Balances{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum pending deductions")
	}
	return Balances{
		TotalCents:            wallet.TotalCents(),
		WithdrawableCents:     wallet.WithdrawableCents,
		UnwithdrawableCents:   wallet.UnwithdrawableCents,
		PendingDeductionCents: pending,
	}, nil
}

type WithdrawInput struct {
	TenantID    uuid.UUID `json:"tenant_id" validate:"required"`
	SellerID    uuid.UUID `json:"seller_id" validate:"required"`
	AmountCents int64     `json:"amount_cents" validate:"gt=0"`
}

// Withdraw debits the withdrawable balance.
func (s *Service) Withdraw(ctx context.Context, input WithdrawInput) (*models.LedgerEntry, error) {
	if err := validators.Struct(input); err != nil {
		return nil, err
	}
	ctx = s.logg.WithWallet(ctx, input.TenantID.String(), input.SellerID.String())

	var entry *models.LedgerEntry
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		wallet, err := s.LockExistingTx(ctx, tx, input.TenantID, input.SellerID)
		if err != nil {
			return err
		}
		if wallet == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "wallet not found")
		}
		entry, err = s.PostTx(ctx, tx, wallet, Posting{
			Kind:        enums.LedgerEntryWithdrawal,
			AmountCents: input.AmountCents,
		})
		if err != nil {
			return err
		}
		return s.SaveTx(ctx, tx, wallet)
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithField(ctx, "amount_cents", input.AmountCents), "wallet withdrawal recorded")
	return entry, nil
}

// Drift compares a wallet's cached totals with what its ledger implies.
type Drift struct {
	WalletID             uuid.UUID
	CachedWithdrawable   int64
	CachedUnwithdrawable int64
	LedgerWithdrawable   int64
	LedgerUnwithdrawable int64
	Repaired             bool
}

func (d Drift) Detected() bool {
	return d.CachedWithdrawable != d.LedgerWithdrawable || d.CachedUnwithdrawable != d.LedgerUnwithdrawable
}

// Recompute rebuilds one wallet's totals from its ledger and repairs the cache on drift.
func (s *Service) Recompute(ctx context.Context, walletID uuid.UUID) (Drift, error) {
	var drift Drift
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		wallet, err := s.repo.WithTx(tx).LockByID(ctx, walletID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock wallet")
		}
		if wallet == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "wallet not found")
		}
		totals, err := s.ledger.WithTx(tx).Totals(ctx, walletID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum ledger")
		}
		drift = Drift{
			WalletID:             walletID,
			CachedWithdrawable:   wallet.WithdrawableCents,
			CachedUnwithdrawable: wallet.UnwithdrawableCents,
			LedgerWithdrawable:   totals.Withdrawable(),
			LedgerUnwithdrawable: totals.Unwithdrawable(),
		}
		if !drift.Detected() {
			return nil
		}
		wallet.WithdrawableCents = drift.LedgerWithdrawable
		wallet.UnwithdrawableCents = drift.LedgerUnwithdrawable
		if err := s.SaveTx(ctx, tx, wallet); err != nil {
			return err
		}
		drift.Repaired = true
		return nil
	})
	if err != nil {
		return drift, err
	}
	if drift.Detected() {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"wallet_id":             walletID.String(),
			"cached_withdrawable":   drift.CachedWithdrawable,
			"cached_unwithdrawable": drift.CachedUnwithdrawable,
			"ledger_withdrawable":   drift.LedgerWithdrawable,
			"ledger_unwithdrawable": drift.LedgerUnwithdrawable,
		}), "wallet totals drifted from ledger; repaired")
	}
	return drift, nil
}

// ListWallets pages through wallets by id for batch jobs.
func (s *Service) ListWallets(ctx context.Context, afterID uuid.UUID, limit int) ([]models.Wallet, error) {
	return s.repo.ListAfter(ctx, afterID, limit)
}
