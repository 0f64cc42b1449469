package settings

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/kitchenpay-backend/pkg/db/models"
)

const platformSettingsID = 1

type Repository interface {
	FindTenant(ctx context.Context, tenantID uuid.UUID) (*models.TenantSetting, error)
	FindPlatform(ctx context.Context) (*models.PlatformSetting, error)
	UpsertCommissionRate(ctx context.Context, tenantID uuid.UUID, rate decimal.Decimal) error
	UpsertHoldHours(ctx context.Context, hours int) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) FindTenant(ctx context.Context, tenantID uuid.UUID) (*models.TenantSetting, error) {
	var row models.TenantSetting
	err := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) FindPlatform(ctx context.Context) (*models.PlatformSetting, error) {
	var row models.PlatformSetting
	err := r.db.WithContext(ctx).Where("id = ?", platformSettingsID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) UpsertCommissionRate(ctx context.Context, tenantID uuid.UUID, rate decimal.Decimal) error {
	row := models.TenantSetting{TenantID: tenantID, CommissionRate: rate, UpdatedAt: time.Now().UTC()}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"commission_rate", "updated_at"}),
		}).
		Create(&row).Error
}

func (r *repository) UpsertHoldHours(ctx context.Context, hours int) error {
	row := models.PlatformSetting{ID: platformSettingsID, WithdrawableHoldHours: hours, UpdatedAt: time.Now().UTC()}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"withdrawable_hold_hours", "updated_at"}),
		}).
		Create(&row).Error
}
