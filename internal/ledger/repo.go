package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/kitchenpay-backend/pkg/db/models"
	"github.com/angelmondragon/kitchenpay-backend/pkg/enums"
)

// Repository persists wallet ledger entries. Entries are never deleted or
// rewritten; MarkWithdrawable is the single permitted mutation.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, entry *models.LedgerEntry) error
	FindPaymentCredit(ctx context.Context, orderID uuid.UUID) (*models.LedgerEntry, error)
	MarkWithdrawable(ctx context.Context, entryID uuid.UUID, at time.Time) (bool, error)
	ListByWallet(ctx context.Context, walletID uuid.UUID, limit int) ([]models.LedgerEntry, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.LedgerEntry, error)
	Totals(ctx context.Context, walletID uuid.UUID) (Totals, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, entry *models.LedgerEntry) error {
	if entry.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		entry.ID = id
	}
	return r.db.WithContext(ctx).Create(entry).Error
}

// FindPaymentCredit returns nil when the order never produced a credit.
func (r *repository) FindPaymentCredit(ctx context.Context, orderID uuid.UUID) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND kind = ?", orderID, enums.LedgerEntryPaymentCredit).
		Order("created_at ASC").
		Order("id ASC").
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// MarkWithdrawable flips a payment credit once; false means it was already flipped.
func (r *repository) MarkWithdrawable(ctx context.Context, entryID uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Where("id = ? AND kind = ? AND is_withdrawable = ?", entryID, enums.LedgerEntryPaymentCredit, false).
		Updates(map[string]any{
			"is_withdrawable": true,
			"withdrawable_at": at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ListByWallet(ctx context.Context, walletID uuid.UUID, limit int) ([]models.LedgerEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	var entries []models.LedgerEntry
	if err := r.db.WithContext(ctx).
		Where("wallet_id = ?", walletID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

type totalsRow struct {
	Kind           enums.LedgerEntryKind
	IsWithdrawable bool
	Amount         int64
}

func (r *repository) Totals(ctx context.Context, walletID uuid.UUID) (Totals, error) {
	var rows []totalsRow
	if err := r.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Select("kind, is_withdrawable, COALESCE(SUM(amount_cents), 0) AS amount").
		Where("wallet_id = ?", walletID).
		Group("kind, is_withdrawable").
		Scan(&rows).Error; err != nil {
		return Totals{}, err
	}
	var t Totals
	for _, row := range rows {
		t.add(row.Kind, row.IsWithdrawable, row.Amount)
	}
	return t, nil
}
