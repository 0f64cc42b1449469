package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/kitchenpay-backend/api/responses"
	"github.com/angelmondragon/kitchenpay-backend/internal/clearance"
	pkgerrors "github.com/angelmondragon/kitchenpay-backend/pkg/errors"
	"github.com/angelmondragon/kitchenpay-backend/pkg/logger"
)

type ClearanceReader interface {
	OrderClearance(ctx context.Context, orderID uuid.UUID) (*clearance.OrderView, error)
}

type orderClearanceView struct {
	OrderID          uuid.UUID  `json:"order_id"`
	TenantID         uuid.UUID  `json:"tenant_id"`
	SellerID         uuid.UUID  `json:"seller_id"`
	State            string     `json:"state"`
	AmountCents      int64      `json:"amount_cents"`
	HoldHours        int        `json:"hold_hours"`
	WithdrawableAt   time.Time  `json:"withdrawable_at"`
	RemainingSeconds *int64     `json:"remaining_seconds_at_pause,omitempty"`
	ClearedAt        *time.Time `json:"cleared_at,omitempty"`
	CreditEntryID    *uuid.UUID `json:"payment_credit_id,omitempty"`
	CreditReleased   bool       `json:"payment_credit_withdrawable"`
}

// OrderClearance shows where an order's credit is in its hold.
func OrderClearance(svc ClearanceReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := uuid.Parse(chi.URLParam(r, "orderId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid order id"))
			return
		}

		view, err := svc.OrderClearance(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if view == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "order has no clearance timer"))
			return
		}

		out := orderClearanceView{
			OrderID:          view.Timer.OrderID,
			TenantID:         view.Timer.TenantID,
			SellerID:         view.Timer.SellerID,
			State:            string(view.State),
			AmountCents:      view.Timer.AmountCents,
			HoldHours:        view.Timer.HoldHours,
			WithdrawableAt:   view.Timer.WithdrawableAt,
			RemainingSeconds: view.Timer.RemainingSecondsAtPause,
			ClearedAt:        view.Timer.ClearedAt,
		}
		if view.PaymentCredit != nil {
			out.CreditEntryID = &view.PaymentCredit.ID
			out.CreditReleased = view.PaymentCredit.IsWithdrawable
		}
		responses.WriteSuccess(w, out)
	}
}
