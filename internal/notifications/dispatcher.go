package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/kitchenpay-backend/pkg/db/models"
	"github.com/angelmondragon/kitchenpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/kitchenpay-backend/pkg/errors"
	"github.com/angelmondragon/kitchenpay-backend/pkg/logger"
	"github.com/angelmondragon/kitchenpay-backend/pkg/outbox"
	"github.com/angelmondragon/kitchenpay-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type emitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Summary is one consolidated message for a seller.
type Summary struct {
	TenantID    uuid.UUID
	SellerID    uuid.UUID
	Type        enums.NotificationType
	AmountCents int64
	OrderIDs    []uuid.UUID
}

func (s Summary) OrderCount() int {
	return len(s.OrderIDs)
}

type DispatcherParams struct {
	DB     txRunner
	Repo   Repository
	Outbox emitter
	Logger *logger.Logger
}

// Dispatcher stores an in-app notification and enqueues a notification_requested
// event for downstream delivery in the same transaction.
type Dispatcher struct {
	db     txRunner
	repo   Repository
	outbox emitter
	logg   *logger.Logger
	now    func() time.Time
}

func NewDispatcher(params DispatcherParams) (*Dispatcher, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Dispatcher{
		db:     params.DB,
		repo:   params.Repo,
		outbox: params.Outbox,
		logg:   params.Logger,
		now:    time.Now,
	}, nil
}

func (d *Dispatcher) Send(ctx context.Context, summary Summary) (*models.Notification, error) {
	if summary.TenantID == uuid.Nil || summary.SellerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant and seller required")
	}
	if summary.Type == "" {
		summary.Type = enums.NotificationTypeFundsCleared
	}
	if !summary.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown notification type").
			WithDetails(map[string]string{"type": string(summary.Type)})
	}

	title, message := render(summary)
	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(map[string]any{
		"amount_cents": summary.AmountCents,
		"order_count":  summary.OrderCount(),
		"order_ids":    summary.OrderIDs,
	})
	if err != nil {
		return nil, fmt.Errorf("encode notification payload: %w", err)
	}
	notification := &models.Notification{
		ID:        id,
		TenantID:  summary.TenantID,
		SellerID:  summary.SellerID,
		Type:      summary.Type,
		Title:     title,
		Message:   message,
		Payload:   payload,
		CreatedAt: d.now().UTC(),
	}

	err = d.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := d.repo.WithTx(tx).Create(ctx, notification); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store notification")
		}
		return d.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventNotificationRequested,
			AggregateType: enums.AggregateNotification,
			AggregateID:   notification.ID,
			Actor:         outbox.SystemActor,
			OccurredAt:    notification.CreatedAt,
			Data: payloads.NotificationRequestedEvent{
				NotificationID: notification.ID,
				TenantID:       summary.TenantID,
				SellerID:       summary.SellerID,
				Type:           summary.Type,
				Title:          title,
				Message:        message,
				AmountCents:    summary.AmountCents,
				OrderCount:     summary.OrderCount(),
				OrderIDs:       summary.OrderIDs,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	d.logg.Info(d.logg.WithFields(ctx, map[string]any{
		"tenant_id":       summary.TenantID.String(),
		"seller_id":       summary.SellerID.String(),
		"notification_id": notification.ID.String(),
		"amount_cents":    summary.AmountCents,
		"order_count":     summary.OrderCount(),
	}), "seller notification queued")
	return notification, nil
}

func render(summary Summary) (string, string) {
	amount := FormatCents(summary.AmountCents)
	switch summary.Type {
	case enums.NotificationTypeWalletDebit:
		return "Wallet debited", fmt.Sprintf("%s was deducted from your wallet to cover a customer refund.", amount)
	default:
		noun := "orders"
		if summary.OrderCount() == 1 {
			noun = "order"
		}
		return "Funds cleared", fmt.Sprintf("%s from %d %s is now available to withdraw.", amount, summary.OrderCount(), noun)
	}
}

// FormatCents renders an amount of cents as dollars, e.g. 13500 -> "$135.00".
func FormatCents(cents int64) string {
	return "$" + decimal.New(cents, -2).StringFixed(2)
}
