package clearance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/kitchenpay-backend/internal/deductions"
	"github.com/angelmondragon/kitchenpay-backend/internal/notifications"
	"github.com/angelmondragon/kitchenpay-backend/pkg/db/models"
	"github.com/angelmondragon/kitchenpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/kitchenpay-backend/pkg/errors"
)

func TestSweepConsolidatesNotificationPerSeller(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tenantID, sellerID := uuid.New(), uuid.New()
	completed := f.now.Add(-5 * time.Hour)
	var orderIDs []uuid.UUID
	for _, amount := range []int64{3000, 5000, 5500} {
		orderIDs = append(orderIDs, f.complete(t, tenantID, sellerID, amount, completed, 3).OrderID)
	}

	result, err := f.sweeper(t, 0).ProcessEligibleClearances(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Processed)
	assert.Equal(t, int64(13500), result.TotalAmountCents)
	assert.Equal(t, 1, result.SellersNotified)
	assert.Zero(t, result.Failed)

	require.Len(t, f.notifier.sent, 1)
	sent := f.notifier.sent[0]
	assert.Equal(t, sellerID, sent.SellerID)
	assert.Equal(t, int64(13500), sent.AmountCents)
	assert.Equal(t, 3, sent.OrderCount())
	assert.ElementsMatch(t, orderIDs, sent.OrderIDs)

	balances, err := f.wallets.Balances(ctx, tenantID, sellerID)
	require.NoError(t, err)
	assert.Equal(t, int64(13500), balances.WithdrawableCents)
	assert.Zero(t, balances.UnwithdrawableCents)

	for _, orderID := range orderIDs {
		timer := f.reload(t, orderID)
		assert.True(t, timer.IsCleared)
		require.NotNil(t, timer.ClearedAt)

		entries, err := f.ledger.ListByOrder(ctx, orderID)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, enums.LedgerEntryPaymentCredit, entries[0].Kind)
		assert.True(t, entries[0].IsWithdrawable)
		assert.Equal(t, enums.LedgerEntryBecameWithdrawable, entries[1].Kind)
		assert.Equal(t, entries[0].AmountCents, entries[1].AmountCents)
	}
}

func TestSweepIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.complete(t, uuid.New(), uuid.New(), 2000, f.now.Add(-4*time.Hour), 3)
	sweeper := f.sweeper(t, 0)

	first, err := sweeper.ProcessEligibleClearances(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, first.Processed)
	entriesAfterFirst := f.count(t, &models.LedgerEntry{})

	second, err := sweeper.ProcessEligibleClearances(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{}, second)
	assert.Len(t, f.notifier.sent, 1)
	assert.Equal(t, entriesAfterFirst, f.count(t, &models.LedgerEntry{}))
}

func TestSweepWithNothingDueWritesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.complete(t, uuid.New(), uuid.New(), 2000, f.now, 3)
	entriesBefore := f.count(t, &models.LedgerEntry{})

	result, err := f.sweeper(t, 0).ProcessEligibleClearances(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{}, result)
	assert.Empty(t, f.notifier.sent)
	assert.Equal(t, entriesBefore, f.count(t, &models.LedgerEntry{}))
}

func TestSweepSkipsPausedAndCancelledTimers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tenantID, sellerID := uuid.New(), uuid.New()
	paused := f.complete(t, tenantID, sellerID, 1000, f.now, 3)
	cancelled := f.complete(t, tenantID, sellerID, 2000, f.now, 3)
	due := f.complete(t, tenantID, sellerID, 3000, f.now, 3)

	_, err := f.service.PauseTimer(ctx, paused.OrderID)
	require.NoError(t, err)
	_, err = f.service.CancelClearance(ctx, cancelled.OrderID)
	require.NoError(t, err)

	f.now = f.now.Add(4 * time.Hour)
	result, err := f.sweeper(t, 0).ProcessEligibleClearances(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, int64(3000), result.TotalAmountCents)

	assert.True(t, f.reload(t, due.OrderID).IsCleared)
	assert.Equal(t, StatePaused, StateOf(*f.reload(t, paused.OrderID)))
	assert.Equal(t, StateCancelled, StateOf(*f.reload(t, cancelled.OrderID)))
}

func TestSweepGroupsBySellerAcrossBatches(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tenantID := uuid.New()
	sellerA, sellerB := uuid.New(), uuid.New()
	completed := f.now.Add(-3 * time.Hour)
	for i := 0; i < 3; i++ {
		f.complete(t, tenantID, sellerA, 1000, completed.Add(time.Duration(i)*time.Minute), 0)
		f.complete(t, tenantID, sellerB, 500, completed.Add(time.Duration(i)*time.Minute), 0)
	}

	result, err := f.sweeper(t, 2).ProcessEligibleClearances(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, result.Processed)
	assert.Equal(t, int64(4500), result.TotalAmountCents)
	assert.Equal(t, 2, result.SellersNotified)
	require.Len(t, f.notifier.sent, 2)

	bySeller := map[uuid.UUID]notifications.Summary{}
	for _, s := range f.notifier.sent {
		bySeller[s.SellerID] = s
	}
	assert.Equal(t, int64(3000), bySeller[sellerA].AmountCents)
	assert.Equal(t, 3, bySeller[sellerA].OrderCount())
	assert.Equal(t, int64(1500), bySeller[sellerB].AmountCents)
}

func TestSweepSettlesPendingDeductionsBeforeFundsBecomeWithdrawable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tenantID, sellerID := uuid.New(), uuid.New()
	f.complete(t, tenantID, sellerID, 5000, f.now.Add(-4*time.Hour), 3)
	claim, err := f.deductions.CreateDeduction(ctx, deductions.CreateInput{
		TenantID:    tenantID,
		SellerID:    sellerID,
		AmountCents: 2000,
		Reason:      enums.DeductionReasonRefund,
	})
	require.NoError(t, err)

	result, err := f.sweeper(t, 0).ProcessEligibleClearances(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), result.DeductedCents)

	balances, err := f.wallets.Balances(ctx, tenantID, sellerID)
	require.NoError(t, err)
	assert.Equal(t, int64(3000), balances.WithdrawableCents)
	assert.Zero(t, balances.PendingDeductionCents)

	var stored models.PendingDeduction
	require.NoError(t, f.client.DB().Where("id = ?", claim.ID).First(&stored).Error)
	assert.NotNil(t, stored.SettledAt)
}

func TestSweepNotificationFailureKeepsClearance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	timer := f.complete(t, uuid.New(), uuid.New(), 2500, f.now.Add(-4*time.Hour), 3)
	f.notifier.sendFn = func(context.Context, notifications.Summary) (*models.Notification, error) {
		return nil, errors.New("notification service down")
	}

	result, err := f.sweeper(t, 0).ProcessEligibleClearances(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	assert.Zero(t, result.SellersNotified)
	assert.True(t, f.reload(t, timer.OrderID).IsCleared)
}

func TestSweepIsolatesFailingTimer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tenantID, sellerID := uuid.New(), uuid.New()
	broken := f.complete(t, tenantID, sellerID, 1000, f.now.Add(-5*time.Hour), 3)
	healthy := f.complete(t, tenantID, sellerID, 2000, f.now.Add(-4*time.Hour), 3)

	flipped, err := f.ledger.MarkWithdrawable(ctx, broken.LedgerEntryID, f.now)
	require.NoError(t, err)
	require.True(t, flipped)

	result, err := f.sweeper(t, 0).ProcessEligibleClearances(ctx)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, int64(2000), result.TotalAmountCents)

	assert.Equal(t, StatePending, StateOf(*f.reload(t, broken.OrderID)))
	assert.True(t, f.reload(t, healthy.OrderID).IsCleared)
	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, []uuid.UUID{healthy.OrderID}, f.notifier.sent[0].OrderIDs)
}
