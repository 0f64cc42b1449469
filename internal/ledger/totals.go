package ledger

import "github.com/angelmondragon/kitchenpay-backend/pkg/enums"

// Totals aggregates a wallet's ledger by the balance each kind affects.
type Totals struct {
	ClearedCredits int64
	HeldCredits    int64
	Deductions     int64
	Withdrawals    int64
	Commission     int64
}

func (t *Totals) add(kind enums.LedgerEntryKind, withdrawable bool, amount int64) {
	switch kind {
	case enums.LedgerEntryPaymentCredit:
		if withdrawable {
			t.ClearedCredits += amount
		} else {
			t.HeldCredits += amount
		}
	case enums.LedgerEntryRefundDeduction:
		t.Deductions += amount
	case enums.LedgerEntryWithdrawal:
		t.Withdrawals += amount
	case enums.LedgerEntryCommission:
		t.Commission += amount
	}
}

// Withdrawable is what the ledger says the seller may move out.
func (t Totals) Withdrawable() int64 {
	return t.ClearedCredits - t.Deductions - t.Withdrawals
}

// Unwithdrawable is credit still inside its hold period.
func (t Totals) Unwithdrawable() int64 {
	return t.HeldCredits
}

func (t Totals) Total() int64 {
	return t.Withdrawable() + t.Unwithdrawable()
}
