// Package marketplace turns storefront order and complaint events into wallet
// engine calls.
package marketplace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/kitchenpay-backend/internal/commission"
	"github.com/angelmondragon/kitchenpay-backend/internal/complaints"
	"github.com/angelmondragon/kitchenpay-backend/internal/deductions"
	"github.com/angelmondragon/kitchenpay-backend/internal/orders"
	"github.com/angelmondragon/kitchenpay-backend/pkg/db/models"
	"github.com/angelmondragon/kitchenpay-backend/pkg/enums"
	"github.com/angelmondragon/kitchenpay-backend/pkg/logger"
)

// ErrMalformed marks events that can never succeed; they are acked, not retried.
var ErrMalformed = errors.New("malformed marketplace event")

// Event is one decoded storefront event.
type Event struct {
	ID         uuid.UUID
	Type       enums.MarketplaceEventType
	OccurredAt time.Time
	Payload    json.RawMessage
}

// RefundPayload is the body of an order_refunded event.
type RefundPayload struct {
	TenantID    uuid.UUID             `json:"tenant_id"`
	SellerID    uuid.UUID             `json:"seller_id"`
	OrderID     uuid.UUID             `json:"order_id"`
	AmountCents int64                 `json:"amount_cents"`
	Reason      enums.DeductionReason `json:"reason"`
}

// OrderRef is the body of an order_cancelled event.
type OrderRef struct {
	OrderID uuid.UUID `json:"order_id"`
}

// ComplaintPayload is the body of complaint_opened and complaint_closed events.
// An empty status takes the default of the event type.
type ComplaintPayload struct {
	ComplaintID uuid.UUID             `json:"complaint_id"`
	OrderID     uuid.UUID             `json:"order_id"`
	Status      enums.ComplaintStatus `json:"status"`
}

type completer interface {
	ProcessOrderCompletion(ctx context.Context, order orders.Order) (commission.Result, error)
}

type refunder interface {
	RecordRefund(ctx context.Context, input deductions.RefundInput) (deductions.RefundResult, error)
}

type clearanceController interface {
	PauseTimer(ctx context.Context, orderID uuid.UUID) (*models.ClearanceTimer, error)
	ResumeTimer(ctx context.Context, orderID uuid.UUID) (*models.ClearanceTimer, error)
	CancelClearance(ctx context.Context, orderID uuid.UUID) (*models.ClearanceTimer, error)
}

type complaintRecorder interface {
	Save(ctx context.Context, c complaints.Complaint) error
}

type ConsumerParams struct {
	Commission completer
	Refunds    refunder
	Clearance  clearanceController
	Complaints complaintRecorder
	Logger     *logger.Logger
}

type Consumer struct {
	commission completer
	refunds    refunder
	clearance  clearanceController
	complaints complaintRecorder
	logg       *logger.Logger
}

func NewConsumer(params ConsumerParams) (*Consumer, error) {
	if params.Commission == nil {
		return nil, fmt.Errorf("commission service required")
	}
	if params.Refunds == nil {
		return nil, fmt.Errorf("deductions service required")
	}
	if params.Clearance == nil {
		return nil, fmt.Errorf("clearance service required")
	}
	if params.Complaints == nil {
		return nil, fmt.Errorf("complaints repository required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		commission: params.Commission,
		refunds:    params.Refunds,
		clearance:  params.Clearance,
		complaints: params.Complaints,
		logg:       params.Logger,
	}, nil
}

// Handle routes ev to the engine that owns it.
func (c *Consumer) Handle(ctx context.Context, ev Event) error {
	switch ev.Type {
	case enums.MarketplaceOrderCompleted:
		return c.orderCompleted(ctx, ev)
	case enums.MarketplaceOrderRefunded:
		return c.orderRefunded(ctx, ev)
	case enums.MarketplaceOrderCancelled:
		return c.orderCancelled(ctx, ev)
	case enums.MarketplaceComplaintOpened:
		return c.complaintChanged(ctx, ev, enums.ComplaintStatusOpen)
	case enums.MarketplaceComplaintClosed:
		return c.complaintChanged(ctx, ev, enums.ComplaintStatusResolved)
	default:
		return fmt.Errorf("%w: unsupported type %q", ErrMalformed, ev.Type)
	}
}

func (c *Consumer) orderCompleted(ctx context.Context, ev Event) error {
	var order orders.Order
	if err := decode(ev, &order); err != nil {
		return err
	}
	res, err := c.commission.ProcessOrderCompletion(ctx, order)
	if err != nil {
		return err
	}
	if !res.Success {
		c.logg.Info(c.logg.WithFields(ctx, map[string]any{
			"order_id": order.ID.String(),
			"reason":   res.Message,
		}), "order completion not applied")
	}
	return nil
}

func (c *Consumer) orderRefunded(ctx context.Context, ev Event) error {
	var p RefundPayload
	if err := decode(ev, &p); err != nil {
		return err
	}
	if p.Reason == "" {
		p.Reason = enums.DeductionReasonRefund
	}
	res, err := c.refunds.RecordRefund(ctx, deductions.RefundInput{
		TenantID:    p.TenantID,
		SellerID:    p.SellerID,
		OrderID:     p.OrderID,
		AmountCents: p.AmountCents,
		Reason:      p.Reason,
	})
	if err != nil {
		return err
	}
	c.logg.Info(c.logg.WithFields(ctx, map[string]any{
		"order_id":        p.OrderID.String(),
		"debited_cents":   res.DebitedCents,
		"shortfall_cents": res.ShortfallCents(),
	}), "refund applied to wallet")
	return nil
}

func (c *Consumer) orderCancelled(ctx context.Context, ev Event) error {
	var ref OrderRef
	if err := decode(ev, &ref); err != nil {
		return err
	}
	if ref.OrderID == uuid.Nil {
		return fmt.Errorf("%w: order_id missing", ErrMalformed)
	}
	timer, err := c.clearance.CancelClearance(ctx, ref.OrderID)
	if err != nil {
		return err
	}
	c.logTransition(ctx, ref.OrderID, timer, "clearance cancelled")
	return nil
}

// complaintChanged records the complaint status, then pauses the timer for an
// active complaint or tries to resume it for a closed one. Resume stays a
// no-op while another complaint on the order is still active.
func (c *Consumer) complaintChanged(ctx context.Context, ev Event, fallback enums.ComplaintStatus) error {
	var p ComplaintPayload
	if err := decode(ev, &p); err != nil {
		return err
	}
	if p.OrderID == uuid.Nil || p.ComplaintID == uuid.Nil {
		return fmt.Errorf("%w: complaint_id and order_id required", ErrMalformed)
	}
	if p.Status == "" {
		p.Status = fallback
	}
	if !p.Status.IsValid() {
		return fmt.Errorf("%w: invalid complaint status %q", ErrMalformed, p.Status)
	}
	active := complaints.IsActive(complaints.Complaint{Status: p.Status})
	if active != (fallback == enums.ComplaintStatusOpen) {
		return fmt.Errorf("%w: status %q does not match %s", ErrMalformed, p.Status, ev.Type)
	}

	err := c.complaints.Save(ctx, complaints.Complaint{ID: p.ComplaintID, OrderID: p.OrderID, Status: p.Status})
	if errors.Is(err, complaints.ErrAlreadyClosed) {
		c.logg.Warn(c.logg.WithFields(ctx, map[string]any{
			"order_id":     p.OrderID.String(),
			"complaint_id": p.ComplaintID.String(),
			"status":       string(p.Status),
		}), "stale complaint event ignored; complaint already closed")
		return nil
	}
	if err != nil {
		return fmt.Errorf("save complaint: %w", err)
	}

	if active {
		timer, err := c.clearance.PauseTimer(ctx, p.OrderID)
		if err != nil {
			return err
		}
		c.logTransition(ctx, p.OrderID, timer, "clearance paused")
		return nil
	}
	timer, err := c.clearance.ResumeTimer(ctx, p.OrderID)
	if err != nil {
		return err
	}
	c.logTransition(ctx, p.OrderID, timer, "clearance resumed")
	return nil
}

func (c *Consumer) logTransition(ctx context.Context, orderID uuid.UUID, timer *models.ClearanceTimer, msg string) {
	logCtx := c.logg.WithOrderID(ctx, orderID.String())
	if timer == nil {
		c.logg.Debug(logCtx, "clearance timer unchanged")
		return
	}
	c.logg.Info(logCtx, msg)
}

func decode(ev Event, dst any) error {
	if len(ev.Payload) == 0 {
		return fmt.Errorf("%w: empty payload", ErrMalformed)
	}
	if err := json.Unmarshal(ev.Payload, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}
