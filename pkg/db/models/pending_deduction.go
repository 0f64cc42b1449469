package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/kitchenpay-backend/pkg/enums"
)

// PendingDeduction is an outstanding clawback claim settled FIFO against future earnings.
type PendingDeduction struct {
	ID                   uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	WalletID             uuid.UUID             `gorm:"column:wallet_id;type:uuid;not null"`
	TenantID             uuid.UUID             `gorm:"column:tenant_id;type:uuid;not null"`
	SellerID             uuid.UUID             `gorm:"column:seller_id;type:uuid;not null"`
	OrderID              *uuid.UUID            `gorm:"column:order_id;type:uuid"`
	OriginalAmountCents  int64                 `gorm:"column:original_amount_cents;not null"`
	RemainingAmountCents int64                 `gorm:"column:remaining_amount_cents;not null"`
	Reason               enums.DeductionReason `gorm:"column:reason_code;type:deduction_reason;not null"`
	Source               string                `gorm:"column:source;not null;default:''"`
	CancelledBy          *uuid.UUID            `gorm:"column:cancelled_by;type:uuid"`
	CreatedAt            time.Time             `gorm:"column:created_at"`
	SettledAt            *time.Time            `gorm:"column:settled_at"`
}

func (PendingDeduction) TableName() string { return "pending_deductions" }

func (d PendingDeduction) IsSettled() bool {
	return d.SettledAt != nil
}
