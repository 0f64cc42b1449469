package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TenantSetting stores per-tenant overrides. A missing row means platform defaults apply.
type TenantSetting struct {
	TenantID       uuid.UUID       `gorm:"column:tenant_id;type:uuid;primaryKey"`
	CommissionRate decimal.Decimal `gorm:"column:commission_rate;type:numeric(5,2);not null"`
	UpdatedAt      time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (TenantSetting) TableName() string { return "tenant_settings" }

// PlatformSetting is a single-row table of platform-wide wallet settings.
type PlatformSetting struct {
	ID                    int       `gorm:"column:id;primaryKey"`
	WithdrawableHoldHours int       `gorm:"column:withdrawable_hold_hours;not null"`
	UpdatedAt             time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (PlatformSetting) TableName() string { return "platform_settings" }
