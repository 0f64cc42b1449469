package commission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/kitchenpay-backend/internal/audit"
	"github.com/angelmondragon/kitchenpay-backend/internal/clearance"
	"github.com/angelmondragon/kitchenpay-backend/internal/orders"
	"github.com/angelmondragon/kitchenpay-backend/internal/wallets"
	"github.com/angelmondragon/kitchenpay-backend/pkg/db"
	"github.com/angelmondragon/kitchenpay-backend/pkg/db/models"
	"github.com/angelmondragon/kitchenpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/kitchenpay-backend/pkg/errors"
	"github.com/angelmondragon/kitchenpay-backend/pkg/logger"
	"github.com/angelmondragon/kitchenpay-backend/pkg/metrics"
)

const (
	MessageNotCompleted     = "order not completed"
	MessageMissingParties   = "missing tenant or seller"
	MessageInvalidAmounts   = "invalid order amounts"
	MessageAlreadyProcessed = "order already processed"

	timerOrderConstraint = "clearance_timers_order_id_key"
)

var errAlreadyProcessed = errors.New("order already processed")

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type settingsProvider interface {
	CommissionRate(ctx context.Context, tenantID uuid.UUID) (decimal.Decimal, error)
	WithdrawableHoldHours(ctx context.Context) (int, error)
}

type walletPoster interface {
	LockTx(ctx context.Context, tx *gorm.DB, tenantID, sellerID uuid.UUID) (*models.Wallet, error)
	PostTx(ctx context.Context, tx *gorm.DB, wallet *models.Wallet, posting wallets.Posting) (*models.LedgerEntry, error)
	SaveTx(ctx context.Context, tx *gorm.DB, wallet *models.Wallet) error
}

type timerCreator interface {
	CreateTimerTx(ctx context.Context, tx *gorm.DB, in clearance.NewTimer) (*models.ClearanceTimer, error)
}

type ServiceParams struct {
	DB        txRunner
	Settings  settingsProvider
	Wallets   walletPoster
	Timers    clearance.Repository
	Clearance timerCreator
	Audit     audit.Sink
	Metrics   *metrics.WalletMetrics
	Logger    *logger.Logger
}

// Service turns completed orders into commission and seller credit.
type Service struct {
	db        txRunner
	settings  settingsProvider
	wallets   walletPoster
	timers    clearance.Repository
	clearance timerCreator
	audit     audit.Sink
	metrics   *metrics.WalletMetrics
	logg      *logger.Logger
	now       func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Settings == nil {
		return nil, fmt.Errorf("settings provider required")
	}
	if params.Wallets == nil {
		return nil, fmt.Errorf("wallet service required")
	}
	if params.Timers == nil {
		return nil, fmt.Errorf("clearance repository required")
	}
	if params.Clearance == nil {
		return nil, fmt.Errorf("clearance service required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{
		db:        params.DB,
		settings:  params.Settings,
		wallets:   params.Wallets,
		timers:    params.Timers,
		clearance: params.Clearance,
		audit:     params.Audit,
		metrics:   params.Metrics,
		logg:      params.Logger,
		now:       time.Now,
	}, nil
}

// Result reports the outcome of a completion. Rejected orders come back with
// Success false and a Message; err is reserved for infrastructure failures.
type Result struct {
	Success               bool            `json:"success"`
	Message               string          `json:"message,omitempty"`
	CommissionAmountCents int64           `json:"commission_amount_cents"`
	CommissionRate        decimal.Decimal `json:"commission_rate"`
	CookCreditCents       int64           `json:"cook_credit_cents"`
	TimerID               uuid.UUID       `json:"timer_id,omitempty"`
}

func rejected(msg string) Result {
	return Result{Message: msg}
}

// ProcessOrderCompletion writes the commission and payment_credit entries and
// the order's clearance timer in one transaction. It runs at most once per
// order; repeats return MessageAlreadyProcessed without writing.
func (s *Service) ProcessOrderCompletion(ctx context.Context, order orders.Order) (Result, error) {
	switch {
	case !orders.IsCompleted(order):
		return rejected(MessageNotCompleted), nil
	case !orders.HasParties(order):
		return rejected(MessageMissingParties), nil
	case order.SubtotalCents < 0 || order.DeliveryFeeCents < 0:
		return rejected(MessageInvalidAmounts), nil
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"order_id":  order.ID.String(),
		"tenant_id": order.TenantID.String(),
		"seller_id": order.SellerID.String(),
	})

	rate, err := s.settings.CommissionRate(ctx, order.TenantID)
	if err != nil {
		return Result{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load commission rate")
	}
	holdHours, err := s.settings.WithdrawableHoldHours(ctx)
	if err != nil {
		return Result{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load hold hours")
	}

	split := Calculate(order.SubtotalCents, order.DeliveryFeeCents, orders.UsesDelivery(order), rate)
	completedAt := orders.CompletionTime(order, s.now())
	orderID := order.ID

	var (
		wallet *models.Wallet
		timer  *models.ClearanceTimer
	)
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		existing, err := s.timers.WithTx(tx).FindByOrder(ctx, orderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check clearance timer")
		}
		if existing != nil {
			return errAlreadyProcessed
		}

		wallet, err = s.wallets.LockTx(ctx, tx, order.TenantID, order.SellerID)
		if err != nil {
			return err
		}
		if _, err := s.wallets.PostTx(ctx, tx, wallet, wallets.Posting{
			Kind:        enums.LedgerEntryCommission,
			AmountCents: split.CommissionCents,
			OrderID:     &orderID,
			Metadata: map[string]any{
				"commission_rate": rate.String(),
				"subtotal_cents":  order.SubtotalCents,
			},
		}); err != nil {
			return err
		}
		credit, err := s.wallets.PostTx(ctx, tx, wallet, wallets.Posting{
			Kind:        enums.LedgerEntryPaymentCredit,
			AmountCents: split.CookCreditCents,
			OrderID:     &orderID,
			Metadata: map[string]any{
				"delivery_method":    string(order.DeliveryMethod),
				"delivery_fee_cents": order.DeliveryFeeCents,
			},
		})
		if err != nil {
			return err
		}
		timer, err = s.clearance.CreateTimerTx(ctx, tx, clearance.NewTimer{
			OrderID:       orderID,
			TenantID:      order.TenantID,
			SellerID:      order.SellerID,
			WalletID:      wallet.ID,
			LedgerEntryID: credit.ID,
			AmountCents:   split.CookCreditCents,
			CompletedAt:   completedAt,
			HoldHours:     holdHours,
		})
		if err != nil {
			if db.IsUniqueViolation(err, timerOrderConstraint) {
				return errAlreadyProcessed
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create clearance timer")
		}
		return s.wallets.SaveTx(ctx, tx, wallet)
	})
	if errors.Is(err, errAlreadyProcessed) {
		s.logg.Info(ctx, "order completion skipped; already processed")
		return rejected(MessageAlreadyProcessed), nil
	}
	if err != nil {
		return Result{}, err
	}

	s.metrics.AddCommission(split.CommissionCents)
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"commission_cents":  split.CommissionCents,
		"cook_credit_cents": split.CookCreditCents,
		"withdrawable_at":   timer.WithdrawableAt.Format(time.RFC3339),
	}), "order completion processed")
	audit.RecordQuietly(ctx, s.audit, s.logg, audit.Record{
		Event:    audit.EventCommissionCharged,
		WalletID: wallet.ID,
		TenantID: order.TenantID,
		SellerID: order.SellerID,
		OrderID:  &orderID,
		Properties: map[string]any{
			"commission_rate":   rate.String(),
			"commission_amount": split.CommissionCents,
			"order_id":          orderID.String(),
		},
	})

	return Result{
		Success:               true,
		CommissionAmountCents: split.CommissionCents,
		CommissionRate:        rate,
		CookCreditCents:       split.CookCreditCents,
		TimerID:               timer.ID,
	}, nil
}
