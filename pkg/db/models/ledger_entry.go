package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/kitchenpay-backend/pkg/enums"
)

// LedgerEntry is an immutable money event against a wallet. Only IsWithdrawable
// on a payment_credit row is ever flipped after insert.
type LedgerEntry struct {
	ID                 uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	WalletID           uuid.UUID               `gorm:"column:wallet_id;type:uuid;not null"`
	TenantID           uuid.UUID               `gorm:"column:tenant_id;type:uuid;not null"`
	SellerID           uuid.UUID               `gorm:"column:seller_id;type:uuid;not null"`
	OrderID            *uuid.UUID              `gorm:"column:order_id;type:uuid"`
	DeductionID        *uuid.UUID              `gorm:"column:deduction_id;type:uuid"`
	Kind               enums.LedgerEntryKind   `gorm:"column:kind;type:ledger_entry_kind;not null"`
	AmountCents        int64                   `gorm:"column:amount_cents;not null"`
	BalanceBeforeCents int64                   `gorm:"column:balance_before_cents;not null"`
	BalanceAfterCents  int64                   `gorm:"column:balance_after_cents;not null"`
	Currency           enums.Currency          `gorm:"column:currency;not null"`
	IsWithdrawable     bool                    `gorm:"column:is_withdrawable;not null;default:false"`
	WithdrawableAt     *time.Time              `gorm:"column:withdrawable_at"`
	Status             enums.LedgerEntryStatus `gorm:"column:status;type:ledger_entry_status;not null"`
	Metadata           json.RawMessage         `gorm:"column:metadata;type:jsonb"`
	CreatedAt          time.Time               `gorm:"column:created_at"`
}

func (LedgerEntry) TableName() string { return "wallet_ledger_entries" }
