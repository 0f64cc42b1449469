package deductions

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/kitchenpay-backend/pkg/db/models"
)

// Repository persists pending deductions. Unsettled rows are always returned
// oldest-first by (created_at, id).
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, deduction *models.PendingDeduction) error
	LockUnsettled(ctx context.Context, tenantID, sellerID uuid.UUID) ([]models.PendingDeduction, error)
	LockByID(ctx context.Context, id uuid.UUID) (*models.PendingDeduction, error)
	Save(ctx context.Context, deduction *models.PendingDeduction) error
	ListUnsettled(ctx context.Context, tenantID, sellerID uuid.UUID) ([]models.PendingDeduction, error)
	SumUnsettled(ctx context.Context, tenantID, sellerID uuid.UUID) (int64, error)
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

func (r *repository) Create(ctx context.Context, deduction *models.PendingDeduction) error {
	if deduction.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		deduction.ID = id
	}
	return r.db.WithContext(ctx).Create(deduction).Error
}

func (r *repository) unsettled(ctx context.Context, tenantID, sellerID uuid.UUID) *gorm.DB {
	return r.db.WithContext(ctx).
		Where("tenant_id = ? AND seller_id = ? AND settled_at IS NULL", tenantID, sellerID).
		Order("created_at ASC").
		Order("id ASC")
}

func (r *repository) LockUnsettled(ctx context.Context, tenantID, sellerID uuid.UUID) ([]models.PendingDeduction, error) {
	var rows []models.PendingDeduction
	if err := r.unsettled(ctx, tenantID, sellerID).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListUnsettled(ctx context.Context, tenantID, sellerID uuid.UUID) ([]models.PendingDeduction, error) {
	var rows []models.PendingDeduction
	if err := r.unsettled(ctx, tenantID, sellerID).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) LockByID(ctx context.Context, id uuid.UUID) (*models.PendingDeduction, error) {
	var row models.PendingDeduction
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// Save writes the settlement columns; amounts and ownership never change after insert.
func (r *repository) Save(ctx context.Context, deduction *models.PendingDeduction) error {
	return r.db.WithContext(ctx).
		Model(&models.PendingDeduction{}).
		Where("id = ?", deduction.ID).
		Updates(map[string]any{
			"remaining_amount_cents": deduction.RemainingAmountCents,
			"settled_at":             deduction.SettledAt,
			"cancelled_by":           deduction.CancelledBy,
		}).Error
}

func (r *repository) SumUnsettled(ctx context.Context, tenantID, sellerID uuid.UUID) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&models.PendingDeduction{}).
		Select("COALESCE(SUM(remaining_amount_cents), 0)").
		Where("tenant_id = ? AND seller_id = ? AND settled_at IS NULL", tenantID, sellerID).
		Scan(&total).Error
	return total, err
}
