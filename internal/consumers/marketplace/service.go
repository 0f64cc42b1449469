package marketplace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/kitchenpay-backend/pkg/enums"
	"github.com/angelmondragon/kitchenpay-backend/pkg/logger"
	"github.com/angelmondragon/kitchenpay-backend/pkg/outbox"
)

const consumerName = "wallet-marketplace"

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *gcppubsub.Message)) error
}

type handler interface {
	Handle(ctx context.Context, ev Event) error
}

type idempotencyChecker interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Delete(ctx context.Context, consumer string, eventID uuid.UUID) error
}

// Service pulls storefront events from Pub/Sub and hands each one to the
// consumer at most once per idempotency window.
type Service struct {
	subscription receiver
	handler      handler
	manager      idempotencyChecker
	logg         *logger.Logger
}

func NewService(subscription receiver, h handler, manager idempotencyChecker, logg *logger.Logger) (*Service, error) {
	if subscription == nil {
		return nil, errors.New("marketplace subscription is required")
	}
	if h == nil {
		return nil, errors.New("marketplace handler is required")
	}
	if manager == nil {
		return nil, errors.New("idempotency manager is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Service{subscription: subscription, handler: h, manager: manager, logg: logg}, nil
}

// Run receives until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	return s.subscription.Receive(ctx, func(innerCtx context.Context, msg *gcppubsub.Message) {
		if s.process(innerCtx, msg) {
			msg.Ack()
			return
		}
		msg.Nack()
	})
}

// process reports whether msg should be acked.
func (s *Service) process(ctx context.Context, msg *gcppubsub.Message) bool {
	logCtx := s.logg.WithField(ctx, "message_id", msg.ID)

	ev, err := decodeMessage(msg)
	if err != nil {
		s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "dropping undecodable marketplace message")
		return true
	}
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"event_id":   ev.ID.String(),
		"event_type": string(ev.Type),
	})

	already, err := s.manager.CheckAndMarkProcessed(logCtx, consumerName, ev.ID)
	if err != nil {
		s.logg.Error(logCtx, "idempotency check failed", err)
		return false
	}
	if already {
		s.logg.Info(logCtx, "event already processed")
		return true
	}

	if err := s.handler.Handle(logCtx, ev); err != nil {
		if errors.Is(err, ErrMalformed) {
			s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "dropping malformed marketplace event")
			return true
		}
		s.logg.Error(logCtx, "marketplace event failed", err)
		if delErr := s.manager.Delete(logCtx, consumerName, ev.ID); delErr != nil {
			s.logg.Error(logCtx, "failed to release idempotency key", delErr)
		}
		return false
	}
	return true
}

func decodeMessage(msg *gcppubsub.Message) (Event, error) {
	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		return Event{}, fmt.Errorf("decode envelope: %w", err)
	}
	eventType, err := enums.ParseMarketplaceEventType(strings.TrimSpace(msg.Attributes["event_type"]))
	if err != nil {
		return Event{}, err
	}
	rawID := strings.TrimSpace(envelope.EventID)
	if rawID == "" {
		rawID = strings.TrimSpace(msg.Attributes["event_id"])
	}
	eventID, err := uuid.Parse(rawID)
	if err != nil {
		return Event{}, fmt.Errorf("event_id: %w", err)
	}
	return Event{
		ID:         eventID,
		Type:       eventType,
		OccurredAt: envelope.OccurredAt.UTC(),
		Payload:    envelope.Data,
	}, nil
}
