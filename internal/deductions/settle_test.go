package deductions

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/kitchenpay-backend/pkg/db/models"
)

func queueOf(amounts ...int64) []models.PendingDeduction {
	queue := make([]models.PendingDeduction, len(amounts))
	for i, a := range amounts {
		queue[i] = models.PendingDeduction{ID: uuid.New(), OriginalAmountCents: a, RemainingAmountCents: a}
	}
	return queue
}

func TestAllocateNeverOverrunsPayment(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		queue   []int64
		payment int64
		taken   int64
	}{
		{queue: nil, payment: 500, taken: 0},
		{queue: []int64{5000}, payment: 8000, taken: 5000},
		{queue: []int64{3000, 2000}, payment: 4000, taken: 4000},
		{queue: []int64{100, 100, 100}, payment: 250, taken: 250},
		{queue: []int64{100}, payment: 0, taken: 0},
	}
	for _, tc := range cases {
		queue := queueOf(tc.queue...)
		result, touched := allocate(queue, tc.payment, now)
		if result.RemainingPaymentCents < 0 {
			t.Fatalf("leftover went negative: %+v", result)
		}
		if result.DeductedCents != tc.taken {
			t.Fatalf("expected %d taken from %v, got %d", tc.taken, tc.queue, result.DeductedCents)
		}
		if result.DeductedCents+result.RemainingPaymentCents != tc.payment {
			t.Fatalf("allocation does not balance: %+v", result)
		}
		if len(touched) != len(result.Applied) {
			t.Fatalf("touched %d rows but reported %d", len(touched), len(result.Applied))
		}
		for _, d := range queue {
			if d.RemainingAmountCents < 0 || d.RemainingAmountCents > d.OriginalAmountCents {
				t.Fatalf("remaining out of range: %+v", d)
			}
			if (d.RemainingAmountCents == 0) != (d.SettledAt != nil) {
				t.Fatalf("settled_at must track a zero remainder: %+v", d)
			}
		}
	}
}

func TestAllocateSkipsSettledRows(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	queue := queueOf(300, 400)
	queue[0].RemainingAmountCents = 0
	queue[0].SettledAt = &now

	result, touched := allocate(queue, 1000, now)
	if result.DeductedCents != 400 || len(touched) != 1 || touched[0] != 1 {
		t.Fatalf("expected only the open claim to be paid, got %+v touched=%v", result, touched)
	}
}
