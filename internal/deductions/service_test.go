package deductions

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/kitchenpay-backend/internal/ledger"
	"github.com/angelmondragon/kitchenpay-backend/internal/wallets"
	"github.com/angelmondragon/kitchenpay-backend/pkg/db"
	"github.com/angelmondragon/kitchenpay-backend/pkg/db/dbtest"
	"github.com/angelmondragon/kitchenpay-backend/pkg/db/models"
	"github.com/angelmondragon/kitchenpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/kitchenpay-backend/pkg/errors"
	"github.com/angelmondragon/kitchenpay-backend/pkg/logger"
)

type fixture struct {
	client  *db.Client
	svc     *Service
	wallets *wallets.Service
	ledger  ledger.Repository
	clock   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	client := dbtest.Open(t)
	logg := logger.New(logger.Options{ServiceName: "deductions-test", Output: &bytes.Buffer{}})
	ledgerRepo := ledger.NewRepository(client.DB())
	walletSvc, err := wallets.NewService(wallets.ServiceParams{
		DB:     client,
		Repo:   wallets.NewRepository(client.DB()),
		Ledger: ledgerRepo,
		Logger: logg,
	})
	require.NoError(t, err)

	f := &fixture{
		client:  client,
		wallets: walletSvc,
		ledger:  ledgerRepo,
		clock:   time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
	}
	f.svc, err = NewService(ServiceParams{
		DB:      client,
		Repo:    NewRepository(client.DB()),
		Wallets: walletSvc,
		Logger:  logg,
	})
	require.NoError(t, err)
	f.svc.now = func() time.Time {
		f.clock = f.clock.Add(time.Second)
		return f.clock
	}
	return f
}

// fund gives the seller cleared, withdrawable money.
func (f *fixture) fund(t *testing.T, tenantID, sellerID uuid.UUID, cents int64) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.client.WithTx(ctx, func(tx *gorm.DB) error {
		w, err := f.wallets.LockTx(ctx, tx, tenantID, sellerID)
		if err != nil {
			return err
		}
		for _, kind := range []enums.LedgerEntryKind{enums.LedgerEntryPaymentCredit, enums.LedgerEntryBecameWithdrawable} {
			if _, err := f.wallets.PostTx(ctx, tx, w, wallets.Posting{Kind: kind, AmountCents: cents}); err != nil {
				return err
			}
		}
		return f.wallets.SaveTx(ctx, tx, w)
	}))
}

func (f *fixture) create(t *testing.T, tenantID, sellerID uuid.UUID, cents int64) *models.PendingDeduction {
	t.Helper()
	d, err := f.svc.CreateDeduction(context.Background(), CreateInput{
		TenantID:    tenantID,
		SellerID:    sellerID,
		AmountCents: cents,
		Reason:      enums.DeductionReasonRefund,
		Source:      "  support refund  ",
	})
	require.NoError(t, err)
	require.NotNil(t, d)
	return d
}

func (f *fixture) reload(t *testing.T, id uuid.UUID) models.PendingDeduction {
	t.Helper()
	var row models.PendingDeduction
	require.NoError(t, f.client.DB().Where("id = ?", id).First(&row).Error)
	return row
}

func TestCreateDeductionIgnoresNonPositiveAmounts(t *testing.T) {
	f := newFixture(t)
	tenantID, sellerID := uuid.New(), uuid.New()

	for _, amount := range []int64{0, -1, -5000} {
		d, err := f.svc.CreateDeduction(context.Background(), CreateInput{
			TenantID:    tenantID,
			SellerID:    sellerID,
			AmountCents: amount,
			Reason:      enums.DeductionReasonRefund,
		})
		require.NoError(t, err)
		assert.Nil(t, d)
	}

	var deductions, walletRows int64
	require.NoError(t, f.client.DB().Model(&models.PendingDeduction{}).Count(&deductions).Error)
	require.NoError(t, f.client.DB().Model(&models.Wallet{}).Count(&walletRows).Error)
	assert.Zero(t, deductions)
	assert.Zero(t, walletRows)
}

func TestCreateDeductionValidatesReason(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateDeduction(context.Background(), CreateInput{
		TenantID:    uuid.New(),
		SellerID:    uuid.New(),
		AmountCents: 100,
		Reason:      "goodwill",
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestCreateDeductionStoresFullAmount(t *testing.T) {
	f := newFixture(t)
	d := f.create(t, uuid.New(), uuid.New(), 2500)

	assert.Equal(t, int64(2500), d.OriginalAmountCents)
	assert.Equal(t, int64(2500), d.RemainingAmountCents)
	assert.Nil(t, d.SettledAt)
	assert.Equal(t, "support refund", d.Source)
}

func TestApplySingleDeductionSettlesAndReturnsLeftover(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tenantID, sellerID := uuid.New(), uuid.New()
	d := f.create(t, tenantID, sellerID, 5000)

	result, err := f.svc.ApplyDeductions(ctx, ApplyInput{TenantID: tenantID, SellerID: sellerID, PaymentCents: 8000})
	require.NoError(t, err)
	assert.Equal(t, int64(5000), result.DeductedCents)
	assert.Equal(t, int64(3000), result.RemainingPaymentCents)
	require.Len(t, result.Applied, 1)
	assert.True(t, result.Applied[0].FullySettled)

	stored := f.reload(t, d.ID)
	assert.Zero(t, stored.RemainingAmountCents)
	assert.NotNil(t, stored.SettledAt)

	balances, err := f.wallets.Balances(ctx, tenantID, sellerID)
	require.NoError(t, err)
	assert.Zero(t, balances.WithdrawableCents)
	assert.Zero(t, balances.PendingDeductionCents)

	entries, err := f.ledger.ListByWallet(ctx, stored.WalletID, 10)
	require.NoError(t, err)
	var deductionEntries int
	for _, e := range entries {
		switch e.Kind {
		case enums.LedgerEntryRefundDeduction:
			deductionEntries++
			require.NotNil(t, e.DeductionID)
			assert.Equal(t, d.ID, *e.DeductionID)
			assert.Equal(t, int64(5000), e.AmountCents)
		case enums.LedgerEntryPaymentCredit:
			assert.True(t, e.IsWithdrawable)
			assert.Equal(t, int64(5000), e.AmountCents)
		}
	}
	assert.Equal(t, 1, deductionEntries)

	drift, err := f.wallets.Recompute(ctx, stored.WalletID)
	require.NoError(t, err)
	assert.False(t, drift.Detected())
}

func TestApplyWalksOldestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tenantID, sellerID := uuid.New(), uuid.New()
	first := f.create(t, tenantID, sellerID, 3000)
	second := f.create(t, tenantID, sellerID, 2000)

	result, err := f.svc.ApplyDeductions(ctx, ApplyInput{TenantID: tenantID, SellerID: sellerID, PaymentCents: 4000})
	require.NoError(t, err)
	assert.Equal(t, int64(4000), result.DeductedCents)
	assert.Zero(t, result.RemainingPaymentCents)
	require.Len(t, result.Applied, 2)
	assert.Equal(t, first.ID, result.Applied[0].DeductionID)
	assert.True(t, result.Applied[0].FullySettled)
	assert.Equal(t, second.ID, result.Applied[1].DeductionID)
	assert.False(t, result.Applied[1].FullySettled)
	assert.Equal(t, int64(1000), result.Applied[1].RemainingCents)

	storedFirst := f.reload(t, first.ID)
	storedSecond := f.reload(t, second.ID)
	assert.NotNil(t, storedFirst.SettledAt)
	assert.Equal(t, int64(1000), storedSecond.RemainingAmountCents)
	assert.Nil(t, storedSecond.SettledAt)

	total, err := f.svc.TotalPendingAmount(ctx, tenantID, sellerID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), total)

	balances, err := f.wallets.Balances(ctx, tenantID, sellerID)
	require.NoError(t, err)
	assert.Zero(t, balances.WithdrawableCents)
	assert.Equal(t, int64(1000), balances.PendingDeductionCents)
}

func TestApplyWithNoDeductionsReturnsPaymentUnchanged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tenantID, sellerID := uuid.New(), uuid.New()

	result, err := f.svc.ApplyDeductions(ctx, ApplyInput{TenantID: tenantID, SellerID: sellerID, PaymentCents: 7000})
	require.NoError(t, err)
	assert.Zero(t, result.DeductedCents)
	assert.Equal(t, int64(7000), result.RemainingPaymentCents)
	assert.Empty(t, result.Applied)

	f.fund(t, tenantID, sellerID, 100)
	result, err = f.svc.ApplyDeductions(ctx, ApplyInput{TenantID: tenantID, SellerID: sellerID, PaymentCents: 7000})
	require.NoError(t, err)
	assert.Equal(t, int64(7000), result.RemainingPaymentCents)
	assert.NotNil(t, result.Applied)
}

func TestApplyIsTenantScoped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sellerID := uuid.New()
	tenantA, tenantB := uuid.New(), uuid.New()
	f.fund(t, tenantA, sellerID, 5000)
	f.fund(t, tenantB, sellerID, 5000)
	inA := f.create(t, tenantA, sellerID, 1500)
	inB := f.create(t, tenantB, sellerID, 1500)

	_, err := f.svc.ApplyDeductions(ctx, ApplyInput{TenantID: tenantA, SellerID: sellerID, PaymentCents: 5000})
	require.NoError(t, err)

	assert.NotNil(t, f.reload(t, inA.ID).SettledAt)
	untouched := f.reload(t, inB.ID)
	assert.Equal(t, int64(1500), untouched.RemainingAmountCents)
	assert.Nil(t, untouched.SettledAt)

	balancesB, err := f.wallets.Balances(ctx, tenantB, sellerID)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), balancesB.WithdrawableCents)
}

func TestAppliedTotalsMatchSettledAmounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tenantID, sellerID := uuid.New(), uuid.New()
	f.fund(t, tenantID, sellerID, 20000)
	created := []*models.PendingDeduction{
		f.create(t, tenantID, sellerID, 1200),
		f.create(t, tenantID, sellerID, 800),
		f.create(t, tenantID, sellerID, 3100),
		f.create(t, tenantID, sellerID, 450),
	}

	var cumulative int64
	for _, payment := range []int64{700, 0, 1900, 333, 5000} {
		pendingBefore, err := f.svc.PendingDeductions(ctx, tenantID, sellerID)
		require.NoError(t, err)

		result, err := f.svc.ApplyDeductions(ctx, ApplyInput{TenantID: tenantID, SellerID: sellerID, PaymentCents: payment})
		require.NoError(t, err)
		require.GreaterOrEqual(t, result.RemainingPaymentCents, int64(0))
		assert.Equal(t, payment, result.DeductedCents+result.RemainingPaymentCents)
		if len(result.Applied) > 0 {
			assert.Equal(t, pendingBefore[0].ID, result.Applied[0].DeductionID, "oldest unsettled claim is paid first")
		}
		cumulative += result.DeductedCents

		var settled int64
		for _, d := range created {
			row := f.reload(t, d.ID)
			settled += row.OriginalAmountCents - row.RemainingAmountCents
		}
		assert.Equal(t, cumulative, settled)
	}
	assert.Equal(t, int64(5550), cumulative)
}

func TestApplyLeavesExistingBalanceUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tenantID, sellerID := uuid.New(), uuid.New()
	f.fund(t, tenantID, sellerID, 1000)
	first := f.create(t, tenantID, sellerID, 800)
	second := f.create(t, tenantID, sellerID, 800)

	result, err := f.svc.ApplyDeductions(ctx, ApplyInput{TenantID: tenantID, SellerID: sellerID, PaymentCents: 1600})
	require.NoError(t, err)
	assert.Equal(t, int64(1600), result.DeductedCents)
	assert.Zero(t, result.RemainingPaymentCents)

	assert.Zero(t, f.reload(t, first.ID).RemainingAmountCents)
	assert.Zero(t, f.reload(t, second.ID).RemainingAmountCents)
	balances, err := f.wallets.Balances(ctx, tenantID, sellerID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), balances.WithdrawableCents)
	assert.Zero(t, balances.PendingDeductionCents)
}

func TestCancelDeduction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.create(t, uuid.New(), uuid.New(), 900)
	actor := uuid.New()

	ok, err := f.svc.CancelDeduction(ctx, d.ID, &actor)
	require.NoError(t, err)
	assert.True(t, ok)

	stored := f.reload(t, d.ID)
	assert.Zero(t, stored.RemainingAmountCents)
	assert.NotNil(t, stored.SettledAt)
	require.NotNil(t, stored.CancelledBy)
	assert.Equal(t, actor, *stored.CancelledBy)

	ok, err = f.svc.CancelDeduction(ctx, d.ID, nil)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = f.svc.CancelDeduction(ctx, uuid.New(), nil)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
}

func TestPendingDeductionsListsOldestFirstWithOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tenantID, sellerID := uuid.New(), uuid.New()
	orderID := uuid.New()

	older, err := f.svc.CreateDeduction(ctx, CreateInput{
		TenantID: tenantID, SellerID: sellerID, OrderID: &orderID,
		AmountCents: 400, Reason: enums.DeductionReasonChargeback,
	})
	require.NoError(t, err)
	newer := f.create(t, tenantID, sellerID, 600)

	list, err := f.svc.PendingDeductions(ctx, tenantID, sellerID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, older.ID, list[0].ID)
	require.NotNil(t, list[0].OrderID)
	assert.Equal(t, orderID, *list[0].OrderID)
	assert.Equal(t, newer.ID, list[1].ID)
}

func TestRecordRefundDebitsThenQueuesShortfall(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tenantID, sellerID, orderID := uuid.New(), uuid.New(), uuid.New()
	f.fund(t, tenantID, sellerID, 1000)

	result, err := f.svc.RecordRefund(ctx, RefundInput{
		TenantID: tenantID, SellerID: sellerID, OrderID: orderID,
		AmountCents: 2500, Reason: enums.DeductionReasonRefund,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1000), result.DebitedCents)
	require.NotNil(t, result.Deduction)
	assert.Equal(t, int64(1500), result.ShortfallCents())

	balances, err := f.wallets.Balances(ctx, tenantID, sellerID)
	require.NoError(t, err)
	assert.Zero(t, balances.WithdrawableCents)
	assert.Equal(t, int64(1500), balances.PendingDeductionCents)

	noop, err := f.svc.RecordRefund(ctx, RefundInput{TenantID: tenantID, SellerID: sellerID, OrderID: orderID, AmountCents: 0})
	require.NoError(t, err)
	assert.Equal(t, RefundResult{}, noop)
}

func TestRecordRefundFullyCovered(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tenantID, sellerID := uuid.New(), uuid.New()
	f.fund(t, tenantID, sellerID, 5000)

	result, err := f.svc.RecordRefund(ctx, RefundInput{
		TenantID: tenantID, SellerID: sellerID, OrderID: uuid.New(),
		AmountCents: 1200, Reason: enums.DeductionReasonRefund,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1200), result.DebitedCents)
	assert.Nil(t, result.Deduction)
	assert.Zero(t, result.ShortfallCents())
}
