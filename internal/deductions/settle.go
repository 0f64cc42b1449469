package deductions

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/kitchenpay-backend/pkg/db/models"
)

// Applied records how much one deduction took from a payment.
type Applied struct {
	DeductionID    uuid.UUID  `json:"deduction_id"`
	OrderID        *uuid.UUID `json:"order_id,omitempty"`
	AmountCents    int64      `json:"amount_cents"`
	RemainingCents int64      `json:"remaining_cents"`
	FullySettled   bool       `json:"fully_settled"`
}

type ApplyResult struct {
	DeductedCents         int64     `json:"deducted_cents"`
	RemainingPaymentCents int64     `json:"remaining_payment_cents"`
	Applied               []Applied `json:"deductions_applied"`
}

// allocate walks queue oldest-first, taking min(remaining, leftover) from each
// deduction until the payment or the queue is exhausted. It mutates the queue
// entries it touches and returns the indexes it changed alongside the result.
func allocate(queue []models.PendingDeduction, payment int64, now time.Time) (ApplyResult, []int) {
	result := ApplyResult{RemainingPaymentCents: payment, Applied: []Applied{}}
	var touched []int
	for i := range queue {
		if result.RemainingPaymentCents <= 0 {
			break
		}
		d := &queue[i]
		if d.IsSettled() || d.RemainingAmountCents <= 0 {
			continue
		}
		take := min(d.RemainingAmountCents, result.RemainingPaymentCents)
		d.RemainingAmountCents -= take
		if d.RemainingAmountCents == 0 {
			settledAt := now
			d.SettledAt = &settledAt
		}
		result.RemainingPaymentCents -= take
		result.DeductedCents += take
		result.Applied = append(result.Applied, Applied{
			DeductionID:    d.ID,
			OrderID:        d.OrderID,
			AmountCents:    take,
			RemainingCents: d.RemainingAmountCents,
			FullySettled:   d.SettledAt != nil,
		})
		touched = append(touched, i)
	}
	return result, touched
}
