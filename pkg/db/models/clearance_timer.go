package models

import (
	"time"

	"github.com/google/uuid"
)

// ClearanceTimer holds an order's credit until its hold period matures.
type ClearanceTimer struct {
	ID                      uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	OrderID                 uuid.UUID  `gorm:"column:order_id;type:uuid;not null"`
	TenantID                uuid.UUID  `gorm:"column:tenant_id;type:uuid;not null"`
	SellerID                uuid.UUID  `gorm:"column:seller_id;type:uuid;not null"`
	WalletID                uuid.UUID  `gorm:"column:wallet_id;type:uuid;not null"`
	LedgerEntryID           uuid.UUID  `gorm:"column:ledger_entry_id;type:uuid;not null"`
	AmountCents             int64      `gorm:"column:amount_cents;not null"`
	CompletedAt             time.Time  `gorm:"column:completed_at;not null"`
	HoldHours               int        `gorm:"column:hold_hours;not null"`
	WithdrawableAt          time.Time  `gorm:"column:withdrawable_at;not null"`
	IsCleared               bool       `gorm:"column:is_cleared;not null;default:false"`
	IsPaused                bool       `gorm:"column:is_paused;not null;default:false"`
	IsCancelled             bool       `gorm:"column:is_cancelled;not null;default:false"`
	PausedAt                *time.Time `gorm:"column:paused_at"`
	RemainingSecondsAtPause *int64     `gorm:"column:remaining_seconds_at_pause"`
	ClearedAt               *time.Time `gorm:"column:cleared_at"`
	CancelledAt             *time.Time `gorm:"column:cancelled_at"`
	CreatedAt               time.Time  `gorm:"column:created_at"`
	UpdatedAt               time.Time  `gorm:"column:updated_at"`
}

func (ClearanceTimer) TableName() string { return "clearance_timers" }
