package wallets

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/kitchenpay-backend/pkg/db/models"
)

// ErrVersionConflict means another writer saved the wallet since it was read.
var ErrVersionConflict = errors.New("wallet version conflict")

// Repository manages wallet rows keyed by (tenant, seller).
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Find(ctx context.Context, tenantID, sellerID uuid.UUID) (*models.Wallet, error)
	LockForUpdate(ctx context.Context, tenantID, sellerID uuid.UUID) (*models.Wallet, error)
	LockByID(ctx context.Context, walletID uuid.UUID) (*models.Wallet, error)
	CreateIfMissing(ctx context.Context, wallet *models.Wallet) error
	SaveBalances(ctx context.Context, wallet *models.Wallet) error
	ListAfter(ctx context.Context, afterID uuid.UUID, limit int) ([]models.Wallet, error)
	SumPendingDeductions(ctx context.Context, walletID uuid.UUID) (int64, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Find(ctx context.Context, tenantID, sellerID uuid.UUID) (*models.Wallet, error) {
	return r.first(r.db.WithContext(ctx).Where("tenant_id = ? AND seller_id = ?", tenantID, sellerID))
}

func (r *repository) LockForUpdate(ctx context.Context, tenantID, sellerID uuid.UUID) (*models.Wallet, error) {
	return r.first(r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("tenant_id = ? AND seller_id = ?", tenantID, sellerID))
}

func (r *repository) LockByID(ctx context.Context, walletID uuid.UUID) (*models.Wallet, error) {
	return r.first(r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", walletID))
}

func (r *repository) first(query *gorm.DB) (*models.Wallet, error) {
	var wallet models.Wallet
	err := query.First(&wallet).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

// CreateIfMissing inserts the wallet unless one already exists for the pair.
func (r *repository) CreateIfMissing(ctx context.Context, wallet *models.Wallet) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "seller_id"}},
			DoNothing: true,
		}).
		Create(wallet).Error
}

// SaveBalances writes the running totals if nobody else saved first, then bumps Version.
func (r *repository) SaveBalances(ctx context.Context, wallet *models.Wallet) error {
	res := r.db.WithContext(ctx).
		Model(&models.Wallet{}).
		Where("id = ? AND version = ?", wallet.ID, wallet.Version).
		Updates(map[string]any{
			"withdrawable_cents":   wallet.WithdrawableCents,
			"unwithdrawable_cents": wallet.UnwithdrawableCents,
			"version":              wallet.Version + 1,
			"updated_at":           time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	wallet.Version++
	return nil
}

func (r *repository) ListAfter(ctx context.Context, afterID uuid.UUID, limit int) ([]models.Wallet, error) {
	var wallets []models.Wallet
	query := r.db.WithContext(ctx).Order("id ASC").Limit(limit)
	if afterID != uuid.Nil {
		query = query.Where("id > ?", afterID)
	}
	if err := query.Find(&wallets).Error; err != nil {
		return nil, err
	}
	return wallets, nil
}

func (r *repository) SumPendingDeductions(ctx context.Context, walletID uuid.UUID) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&models.PendingDeduction{}).
		Select("COALESCE(SUM(remaining_amount_cents), 0)").
		Where("wallet_id = ? AND settled_at IS NULL", walletID).
		Scan(&total).Error
	return total, err
}
