// Package audit is the write-behind audit sink for wallet money movements.
// Records are logged and mirrored to the analytics pipeline through the outbox.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/kitchenpay-backend/pkg/enums"
	"github.com/angelmondragon/kitchenpay-backend/pkg/logger"
	"github.com/angelmondragon/kitchenpay-backend/pkg/outbox"
	"github.com/angelmondragon/kitchenpay-backend/pkg/outbox/payloads"
)

const (
	EventCommissionCharged = "wallet.commission_charged"
	EventDeductionCreated  = "wallet.deduction_created"
	EventDeductionApplied  = "wallet.deduction_applied"
	EventDeductionVoided   = "wallet.deduction_cancelled"
	EventClearancePaused   = "wallet.clearance_paused"
	EventClearanceResumed  = "wallet.clearance_resumed"
	EventClearanceVoided   = "wallet.clearance_cancelled"
	EventFundsCleared      = "wallet.funds_cleared"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type emitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Record is one audit event. WalletID keys the outbox aggregate; the other
// references are optional context.
type Record struct {
	Event      string
	WalletID   uuid.UUID
	TenantID   uuid.UUID
	SellerID   uuid.UUID
	OrderID    *uuid.UUID
	Properties map[string]any
}

// Recorder must be called after the money movement commits. Its failures never
// undo the movement; callers log and continue.
type Recorder struct {
	db     txRunner
	outbox emitter
	logg   *logger.Logger
}

func NewRecorder(db txRunner, em emitter, logg *logger.Logger) (*Recorder, error) {
	if db == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if em == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Recorder{db: db, outbox: em, logg: logg}, nil
}

func (r *Recorder) Record(ctx context.Context, rec Record) error {
	if rec.Event == "" {
		return fmt.Errorf("audit event name required")
	}
	fields := map[string]any{"audit_event": rec.Event}
	for k, v := range rec.Properties {
		fields[k] = v
	}
	if rec.TenantID != uuid.Nil {
		fields["tenant_id"] = rec.TenantID.String()
	}
	if rec.SellerID != uuid.Nil {
		fields["seller_id"] = rec.SellerID.String()
	}
	if rec.OrderID != nil {
		fields["order_id"] = rec.OrderID.String()
	}
	r.logg.Info(r.logg.WithFields(ctx, fields), "audit event")

	data := payloads.WalletAuditRecordedEvent{
		Event:      rec.Event,
		OrderID:    rec.OrderID,
		Properties: rec.Properties,
	}
	if rec.TenantID != uuid.Nil {
		data.TenantID = &rec.TenantID
	}
	if rec.SellerID != uuid.Nil {
		data.SellerID = &rec.SellerID
	}
	return r.db.WithTx(ctx, func(tx *gorm.DB) error {
		return r.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventWalletAuditRecorded,
			AggregateType: enums.AggregateWallet,
			AggregateID:   rec.WalletID,
			Actor:         outbox.SystemActor,
			Data:          data,
			OccurredAt:    time.Now().UTC(),
		})
	})
}

// Sink is what engines depend on.
type Sink interface {
	Record(ctx context.Context, rec Record) error
}

// RecordQuietly records and logs any failure instead of returning it.
func RecordQuietly(ctx context.Context, sink Sink, logg *logger.Logger, rec Record) {
	if sink == nil {
		return
	}
	if err := sink.Record(ctx, rec); err != nil && logg != nil {
		logg.Error(logg.WithField(ctx, "audit_event", rec.Event), "audit record failed", err)
	}
}
