package wallets

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/kitchenpay-backend/pkg/db/models"
	"github.com/angelmondragon/kitchenpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/kitchenpay-backend/pkg/errors"
)

// Posting describes one ledger entry to append against a locked wallet.
type Posting struct {
	Kind           enums.LedgerEntryKind
	AmountCents    int64
	OrderID        *uuid.UUID
	DeductionID    *uuid.UUID
	WithdrawableAt *time.Time

	// Cleared books a payment_credit straight into the withdrawable balance.
	Cleared  bool
	Metadata map[string]any
}

// apply moves the wallet's running totals for one entry:
//
//	payment_credit       +unwithdrawable, or +withdrawable when cleared
//	became_withdrawable  unwithdrawable -> withdrawable
//	refund_deduction     -withdrawable
//	withdrawal           -withdrawable
//	commission           none
func apply(w *models.Wallet, p Posting) error {
	kind, amount := p.Kind, p.AmountCents
	if amount < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "ledger amount must not be negative").
			WithDetails(map[string]any{"kind": kind, "amount_cents": amount})
	}
	switch kind {
	case enums.LedgerEntryPaymentCredit:
		if p.Cleared {
			w.WithdrawableCents += amount
			break
		}
		w.UnwithdrawableCents += amount
	case enums.LedgerEntryBecameWithdrawable:
		if w.UnwithdrawableCents < amount {
			return balanceConflict(w, kind, amount, "unwithdrawable")
		}
		w.UnwithdrawableCents -= amount
		w.WithdrawableCents += amount
	case enums.LedgerEntryRefundDeduction, enums.LedgerEntryWithdrawal:
		if w.WithdrawableCents < amount {
			return balanceConflict(w, kind, amount, "withdrawable")
		}
		w.WithdrawableCents -= amount
	case enums.LedgerEntryCommission:
	default:
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown ledger entry kind").
			WithDetails(map[string]any{"kind": kind})
	}
	return nil
}

func balanceConflict(w *models.Wallet, kind enums.LedgerEntryKind, amount int64, balance string) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, balance+" balance would go negative").
		WithDetails(map[string]any{
			"wallet_id":            w.ID,
			"kind":                 kind,
			"amount_cents":         amount,
			"withdrawable_cents":   w.WithdrawableCents,
			"unwithdrawable_cents": w.UnwithdrawableCents,
		})
}

func encodeMetadata(meta map[string]any) (json.RawMessage, error) {
	if len(meta) == 0 {
		return nil, nil
	}
	return json.Marshal(meta)
}
