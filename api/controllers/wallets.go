package controllers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/kitchenpay-backend/api/responses"
	"github.com/angelmondragon/kitchenpay-backend/internal/wallets"
	pkgerrors "github.com/angelmondragon/kitchenpay-backend/pkg/errors"
	"github.com/angelmondragon/kitchenpay-backend/pkg/logger"
)

type BalanceReader interface {
	Balances(ctx context.Context, tenantID, sellerID uuid.UUID) (wallets.Balances, error)
}

// WalletBalances serves a seller's current balances to operators.
func WalletBalances(svc BalanceReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := uuid.Parse(chi.URLParam(r, "tenantId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid tenant id"))
			return
		}
		sellerID, err := uuid.Parse(chi.URLParam(r, "sellerId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid seller id"))
			return
		}

		balances, err := svc.Balances(r.Context(), tenantID, sellerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, balances)
	}
}
