package controllers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/kitchenpay-backend/api/responses"
	"github.com/angelmondragon/kitchenpay-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/kitchenpay-backend/pkg/errors"
	"github.com/angelmondragon/kitchenpay-backend/pkg/logger"
	"github.com/angelmondragon/kitchenpay-backend/pkg/outbox"
)

const maxDeadLetterLimit = 200

type DeadLetterStore interface {
	List(ctx context.Context, limit int) ([]models.OutboxDLQ, error)
	Requeue(ctx context.Context, eventID uuid.UUID) error
}

type deadLetterView struct {
	EventID       uuid.UUID `json:"event_id"`
	EventType     string    `json:"event_type"`
	AggregateType string    `json:"aggregate_type"`
	AggregateID   uuid.UUID `json:"aggregate_id"`
	Reason        string    `json:"reason"`
	Error         string    `json:"error,omitempty"`
	AttemptCount  int       `json:"attempt_count"`
	FailedAt      time.Time `json:"failed_at"`
}

// OutboxDeadLetters lists the most recent dead-lettered events, newest first.
// Payloads are left out since they carry seller data.
func OutboxDeadLetters(dlq DeadLetterStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 || n > maxDeadLetterLimit {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "limit must be between 1 and 200"))
				return
			}
			limit = n
		}

		rows, err := dlq.List(r.Context(), limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list dead letters"))
			return
		}
		views := make([]deadLetterView, 0, len(rows))
		for _, row := range rows {
			view := deadLetterView{
				EventID:       row.EventID,
				EventType:     string(row.EventType),
				AggregateType: string(row.AggregateType),
				AggregateID:   row.AggregateID,
				Reason:        string(row.ErrorReason),
				AttemptCount:  row.AttemptCount,
				FailedAt:      row.FailedAt,
			}
			if row.ErrorMessage != nil {
				view.Error = *row.ErrorMessage
			}
			views = append(views, view)
		}
		responses.WriteSuccess(w, views)
	}
}

// RequeueDeadLetter gives a dead-lettered event a fresh attempt budget.
func RequeueDeadLetter(dlq DeadLetterStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		eventID, err := uuid.Parse(chi.URLParam(r, "eventId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid event id"))
			return
		}
		if err := dlq.Requeue(r.Context(), eventID); err != nil {
			if errors.Is(err, outbox.ErrNotRequeueable) {
				err = pkgerrors.New(pkgerrors.CodeConflict, "event is not parked in the outbox")
			}
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if logg != nil {
			logg.Info(logg.WithField(r.Context(), "event_id", eventID.String()), "dead letter requeued")
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, map[string]string{"event_id": eventID.String()})
	}
}
