package enums

import (
	"fmt"
	"slices"
)

// LedgerEntryKind maps to the ledger_entry_kind enum in Postgres.
type LedgerEntryKind string

const (
	LedgerEntryPaymentCredit      LedgerEntryKind = "payment_credit"
	LedgerEntryCommission         LedgerEntryKind = "commission"
	LedgerEntryWithdrawal         LedgerEntryKind = "withdrawal"
	LedgerEntryRefundDeduction    LedgerEntryKind = "refund_deduction"
	LedgerEntryBecameWithdrawable LedgerEntryKind = "became_withdrawable"
)

var validLedgerEntryKinds = []LedgerEntryKind{
	LedgerEntryPaymentCredit,
	LedgerEntryCommission,
	LedgerEntryWithdrawal,
	LedgerEntryRefundDeduction,
	LedgerEntryBecameWithdrawable,
}

// IsValid reports whether the value matches the canonical ledger entry kind.
func (k LedgerEntryKind) IsValid() bool {
	return slices.Contains(validLedgerEntryKinds, k)
}

// Informational kinds record a state transition and never move money.
func (k LedgerEntryKind) Informational() bool {
	return k == LedgerEntryCommission || k == LedgerEntryBecameWithdrawable
}

// ParseLedgerEntryKind converts raw input into LedgerEntryKind.
func ParseLedgerEntryKind(value string) (LedgerEntryKind, error) {
	k := LedgerEntryKind(value)
	if !k.IsValid() {
		return "", fmt.Errorf("invalid ledger entry kind %q", value)
	}
	return k, nil
}

// LedgerEntryStatus maps to the ledger_entry_status enum in Postgres.
type LedgerEntryStatus string

const (
	LedgerEntryStatusCompleted LedgerEntryStatus = "completed"
	LedgerEntryStatusPending   LedgerEntryStatus = "pending"
)

func (s LedgerEntryStatus) IsValid() bool {
	return s == LedgerEntryStatusCompleted || s == LedgerEntryStatusPending
}
