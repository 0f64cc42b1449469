package clearance

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/kitchenpay-backend/internal/complaints"
	"github.com/angelmondragon/kitchenpay-backend/internal/deductions"
	"github.com/angelmondragon/kitchenpay-backend/internal/ledger"
	"github.com/angelmondragon/kitchenpay-backend/internal/notifications"
	"github.com/angelmondragon/kitchenpay-backend/internal/wallets"
	"github.com/angelmondragon/kitchenpay-backend/pkg/db"
	"github.com/angelmondragon/kitchenpay-backend/pkg/db/dbtest"
	"github.com/angelmondragon/kitchenpay-backend/pkg/db/models"
	"github.com/angelmondragon/kitchenpay-backend/pkg/enums"
	"github.com/angelmondragon/kitchenpay-backend/pkg/logger"
)

type fakeNotifier struct {
	sendFn func(ctx context.Context, summary notifications.Summary) (*models.Notification, error)
	sent   []notifications.Summary
}

func (f *fakeNotifier) Send(ctx context.Context, summary notifications.Summary) (*models.Notification, error) {
	if f.sendFn != nil {
		if _, err := f.sendFn(ctx, summary); err != nil {
			return nil, err
		}
	}
	f.sent = append(f.sent, summary)
	return &models.Notification{ID: uuid.New()}, nil
}

type fixture struct {
	client     *db.Client
	logg       *logger.Logger
	timers     Repository
	ledger     ledger.Repository
	wallets    *wallets.Service
	deductions *deductions.Service
	service    *Service
	notifier   *fakeNotifier
	complaints []complaints.Complaint
	now        time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	client := dbtest.Open(t)
	logg := logger.New(logger.Options{ServiceName: "clearance-test", Output: &bytes.Buffer{}})
	f := &fixture{
		client:   client,
		logg:     logg,
		timers:   NewRepository(client.DB()),
		ledger:   ledger.NewRepository(client.DB()),
		notifier: &fakeNotifier{},
		now:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	var err error
	f.wallets, err = wallets.NewService(wallets.ServiceParams{
		DB:     client,
		Repo:   wallets.NewRepository(client.DB()),
		Ledger: f.ledger,
		Logger: logg,
	})
	require.NoError(t, err)
	f.deductions, err = deductions.NewService(deductions.ServiceParams{
		DB:      client,
		Repo:    deductions.NewRepository(client.DB()),
		Wallets: f.wallets,
		Logger:  logg,
	})
	require.NoError(t, err)
	f.service, err = NewService(ServiceParams{
		DB:     client,
		Repo:   f.timers,
		Ledger: f.ledger,
		Complaints: complaints.ReaderFunc(func(_ context.Context, orderID uuid.UUID) ([]complaints.Complaint, error) {
			var out []complaints.Complaint
			for _, c := range f.complaints {
				if c.OrderID == orderID {
					out = append(out, c)
				}
			}
			return out, nil
		}),
		Logger: logg,
	})
	require.NoError(t, err)
	f.service.now = f.clock
	return f
}

func (f *fixture) clock() time.Time { return f.now }

func (f *fixture) sweeper(t *testing.T, batch int) *Sweeper {
	t.Helper()
	sweeper, err := NewSweeper(SweeperParams{
		DB:         f.client,
		Timers:     f.timers,
		Ledger:     f.ledger,
		Wallets:    f.wallets,
		Deductions: f.deductions,
		Notifier:   f.notifier,
		Logger:     f.logg,
		BatchSize:  batch,
	})
	require.NoError(t, err)
	sweeper.now = f.clock
	return sweeper
}

// complete credits the seller and starts a timer the way order completion does.
func (f *fixture) complete(t *testing.T, tenantID, sellerID uuid.UUID, amount int64, completedAt time.Time, holdHours int) *models.ClearanceTimer {
	t.Helper()
	ctx := context.Background()
	orderID := uuid.New()
	var timer *models.ClearanceTimer
	require.NoError(t, f.client.WithTx(ctx, func(tx *gorm.DB) error {
		wallet, err := f.wallets.LockTx(ctx, tx, tenantID, sellerID)
		if err != nil {
			return err
		}
		credit, err := f.wallets.PostTx(ctx, tx, wallet, wallets.Posting{
			Kind:        enums.LedgerEntryPaymentCredit,
			AmountCents: amount,
			OrderID:     &orderID,
		})
		if err != nil {
			return err
		}
		timer, err = f.service.CreateTimerTx(ctx, tx, NewTimer{
			OrderID:       orderID,
			TenantID:      tenantID,
			SellerID:      sellerID,
			WalletID:      wallet.ID,
			LedgerEntryID: credit.ID,
			AmountCents:   amount,
			CompletedAt:   completedAt,
			HoldHours:     holdHours,
		})
		if err != nil {
			return err
		}
		return f.wallets.SaveTx(ctx, tx, wallet)
	}))
	return timer
}

func (f *fixture) reload(t *testing.T, orderID uuid.UUID) *models.ClearanceTimer {
	t.Helper()
	timer, err := f.timers.FindByOrder(context.Background(), orderID)
	require.NoError(t, err)
	require.NotNil(t, timer)
	return timer
}

func (f *fixture) count(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.client.DB().Model(model).Count(&n).Error)
	return n
}
