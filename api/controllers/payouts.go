package controllers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/vibes-market-backend/api/controllers/callerctx"
	"github.com/angelmondragon/vibes-market-backend/api/middleware"
	"github.com/angelmondragon/vibes-market-backend/api/responses"
	"github.com/angelmondragon/vibes-market-backend/api/validators"
	"github.com/angelmondragon/vibes-market-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/vibes-market-backend/pkg/errors"
	"github.com/angelmondragon/vibes-market-backend/pkg/logger"
)

type PayoutRequester interface {
	Request(ctx context.Context, shopID uuid.UUID, amount int64) (*models.PayoutTransaction, error)
}

type ShopReader interface {
	FindShops(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Shop, error)
}

type payoutRequest struct {
	Amount int64 `json:"amount" validate:"required,min=1"`
}

type payoutResponse struct {
	ID             int64   `json:"id"`
	ShopID         string  `json:"shopId"`
	Amount         int64   `json:"amount"`
	Status         string  `json:"status"`
	StripePayoutID *string `json:"stripePayoutId,omitempty"`
}

// ShopPayout withdraws part of a shop's balance to its connected account.
// Only the shop owner or an operator may ask.
func ShopPayout(svc PayoutRequester, shops ShopReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil || shops == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payout service unavailable"))
			return
		}
		userID, err := callerctx.ResolveUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		shopID, err := uuid.Parse(chi.URLParam(r, "shopId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid shop id"))
			return
		}

		var payload payoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		found, err := shops.FindShops(r.Context(), []uuid.UUID{shopID})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load shop"))
			return
		}
		shop, ok := found[shopID]
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "shop not found"))
			return
		}
		if shop.OwnerUserID != userID && !middleware.IsAdminFromContext(r.Context()) {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "not the shop owner"))
			return
		}

		row, err := svc.Request(r.Context(), shopID, payload.Amount)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, payoutResponse{
			ID:             row.ID,
			ShopID:         row.ShopID.String(),
			Amount:         row.Amount,
			Status:         string(row.Status),
			StripePayoutID: row.StripePayoutID,
		})
	}
}
