package payments

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/vibes-market-backend/api/controllers/callerctx"
	"github.com/angelmondragon/vibes-market-backend/api/controllers/checkout/dto"
	"github.com/angelmondragon/vibes-market-backend/api/responses"
	"github.com/angelmondragon/vibes-market-backend/api/validators"
	paymentsvc "github.com/angelmondragon/vibes-market-backend/internal/payments"
	pkgerrors "github.com/angelmondragon/vibes-market-backend/pkg/errors"
	"github.com/angelmondragon/vibes-market-backend/pkg/logger"
)

// Service is the checkout half of the payment orchestrator.
type Service interface {
	CreatePaymentIntent(ctx context.Context, input paymentsvc.CreatePaymentIntentInput) (*paymentsvc.PaymentIntentResult, error)
	ConfirmPayBySec(ctx context.Context, userID uuid.UUID, paymentIntentID string) (*paymentsvc.ConfirmResult, error)
}

type createIntentRequest struct {
	AddressID uuid.UUID      `json:"addressId" validate:"required"`
	Items     []dto.LineItem `json:"items" validate:"required,min=1,max=100,dive"`
	UsedCoins int64          `json:"usedCoins" validate:"min=0"`
}

type confirmSecRequest struct {
	PaymentIntentID string `json:"paymentIntentId" validate:"required,max=255,intent_id"`
}

// CreateIntent opens a checkout: orders, payment legs and the gateway intent.
// A basket that totals zero creates nothing and answers with null data.
func CreateIntent(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}
		userID, err := callerctx.ResolveUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload createIntentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.CreatePaymentIntent(r.Context(), paymentsvc.CreatePaymentIntentInput{
			UserID:    userID,
			AddressID: payload.AddressID,
			Items:     dto.ToCartLines(payload.Items),
			UsedCoins: payload.UsedCoins,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if result == nil {
			responses.WriteSuccess(w, nil)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// ConfirmSec spends the buyer's coins for the coin leg of a checkout.
func ConfirmSec(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}
		userID, err := callerctx.ResolveUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload confirmSecRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.ConfirmPayBySec(r.Context(), userID, payload.PaymentIntentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
