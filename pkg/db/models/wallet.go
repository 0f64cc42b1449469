package models

import (
	"time"

	"github.com/google/uuid"
)

// Wallet caches a seller's running balances for one tenant.
// The ledger is authoritative; these totals are maintained alongside each entry.
type Wallet struct {
	ID                  uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	TenantID            uuid.UUID `gorm:"column:tenant_id;type:uuid;not null"`
	SellerID            uuid.UUID `gorm:"column:seller_id;type:uuid;not null"`
	WithdrawableCents   int64     `gorm:"column:withdrawable_cents;not null;default:0"`
	UnwithdrawableCents int64     `gorm:"column:unwithdrawable_cents;not null;default:0"`
	Currency            string    `gorm:"column:currency;not null;default:USD"`
	Version             int64     `gorm:"column:version;not null;default:0"`
	CreatedAt           time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Wallet) TableName() string { return "wallets" }

// TotalCents is the sum of withdrawable and unwithdrawable balances.
func (w Wallet) TotalCents() int64 {
	return w.WithdrawableCents + w.UnwithdrawableCents
}
