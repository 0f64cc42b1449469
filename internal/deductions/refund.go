package deductions

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/kitchenpay-backend/internal/audit"
	"github.com/angelmondragon/kitchenpay-backend/internal/notifications"
	"github.com/angelmondragon/kitchenpay-backend/internal/wallets"
	"github.com/angelmondragon/kitchenpay-backend/pkg/db/models"
	"github.com/angelmondragon/kitchenpay-backend/pkg/enums"
	"github.com/angelmondragon/kitchenpay-backend/pkg/validators"
)

type RefundInput struct {
	TenantID    uuid.UUID             `json:"tenant_id" validate:"required"`
	SellerID    uuid.UUID             `json:"seller_id" validate:"required"`
	OrderID     uuid.UUID             `json:"order_id" validate:"required"`
	AmountCents int64                 `json:"amount_cents"`
	Reason      enums.DeductionReason `json:"reason" validate:"required,oneof=refund chargeback adjustment"`
}

// RefundResult splits a clawback into what the wallet covered now and the
// claim queued against future earnings.
type RefundResult struct {
	DebitedCents int64                    `json:"debited_cents"`
	Deduction    *models.PendingDeduction `json:"deduction,omitempty"`
}

func (r RefundResult) ShortfallCents() int64 {
	if r.Deduction == nil {
		return 0
	}
	return r.Deduction.OriginalAmountCents
}

// RecordRefund debits the withdrawable balance as far as it reaches and queues
// the remainder as a pending deduction. Non-positive amounts are no-ops.
func (s *Service) RecordRefund(ctx context.Context, input RefundInput) (RefundResult, error) {
	if input.AmountCents <= 0 {
		return RefundResult{}, nil
	}
	if err := validators.Struct(input); err != nil {
		return RefundResult{}, err
	}

	var (
		result RefundResult
		wallet *models.Wallet
	)
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		wallet, err = s.wallets.LockTx(ctx, tx, input.TenantID, input.SellerID)
		if err != nil {
			return err
		}

		orderID := input.OrderID
		result.DebitedCents = min(wallet.WithdrawableCents, input.AmountCents)
		if result.DebitedCents > 0 {
			if _, err := s.wallets.PostTx(ctx, tx, wallet, wallets.Posting{
				Kind:        enums.LedgerEntryRefundDeduction,
				AmountCents: result.DebitedCents,
				OrderID:     &orderID,
				Metadata:    map[string]any{"reason": string(input.Reason), "direct_debit": true},
			}); err != nil {
				return err
			}
		}

		if shortfall := input.AmountCents - result.DebitedCents; shortfall > 0 {
			result.Deduction, err = s.createTx(ctx, tx, wallet, CreateInput{
				TenantID:    input.TenantID,
				SellerID:    input.SellerID,
				OrderID:     &orderID,
				AmountCents: shortfall,
				Reason:      input.Reason,
				Source:      "refund_shortfall",
			})
			if err != nil {
				return err
			}
		}

		if result.DebitedCents == 0 {
			return nil
		}
		return s.wallets.SaveTx(ctx, tx, wallet)
	})
	if err != nil {
		return RefundResult{}, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"tenant_id":       input.TenantID.String(),
		"seller_id":       input.SellerID.String(),
		"order_id":        input.OrderID.String(),
		"debited_cents":   result.DebitedCents,
		"shortfall_cents": result.ShortfallCents(),
	})
	s.logg.Info(logCtx, "refund clawback recorded")
	audit.RecordQuietly(ctx, s.audit, s.logg, audit.Record{
		Event:    audit.EventDeductionApplied,
		WalletID: wallet.ID,
		TenantID: input.TenantID,
		SellerID: input.SellerID,
		OrderID:  &input.OrderID,
		Properties: map[string]any{
			"debited_cents":   result.DebitedCents,
			"shortfall_cents": result.ShortfallCents(),
			"reason":          string(input.Reason),
		},
	})
	if result.DebitedCents > 0 && s.notifier != nil {
		if _, err := s.notifier.Send(ctx, notifications.Summary{
			TenantID:    input.TenantID,
			SellerID:    input.SellerID,
			Type:        enums.NotificationTypeWalletDebit,
			AmountCents: result.DebitedCents,
			OrderIDs:    []uuid.UUID{input.OrderID},
		}); err != nil {
			s.logg.Error(logCtx, "wallet debit notification failed", err)
		}
	}
	return result, nil
}
