package checkout

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/vibes-market-backend/api/controllers/callerctx"
	"github.com/angelmondragon/vibes-market-backend/api/controllers/checkout/dto"
	"github.com/angelmondragon/vibes-market-backend/api/responses"
	"github.com/angelmondragon/vibes-market-backend/api/validators"
	"github.com/angelmondragon/vibes-market-backend/internal/inventory"
	"github.com/angelmondragon/vibes-market-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/vibes-market-backend/pkg/errors"
	"github.com/angelmondragon/vibes-market-backend/pkg/logger"
)

// LockLedger is the part of the inventory ledger the lock endpoints drive.
type LockLedger interface {
	Reserve(ctx context.Context, userID uuid.UUID, items []inventory.Item, lockType enums.LockType) error
	Release(ctx context.Context, userID uuid.UUID, items []inventory.Item) (int64, error)
}

type lockResponse struct {
	LockType enums.LockType `json:"lockType"`
	Items    int            `json:"items"`
}

// EnterCheckout takes ordering locks for the buyer's items. The locks expire
// unless a payment settles first.
func EnterCheckout(ledger LockLedger, logg *logger.Logger) http.HandlerFunc {
	return reserve(ledger, enums.LockTypeOrdering, logg)
}

// LockCart takes soft cart locks that do not expire.
func LockCart(ledger LockLedger, logg *logger.Logger) http.HandlerFunc {
	return reserve(ledger, enums.LockTypeLocking, logg)
}

func reserve(ledger LockLedger, lockType enums.LockType, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ledger == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory ledger unavailable"))
			return
		}
		userID, err := callerctx.ResolveUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload dto.ItemsRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := dto.ToInventoryItems(payload.Items)
		if err := ledger.Reserve(r.Context(), userID, items, lockType); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, lockResponse{LockType: lockType, Items: len(items)})
	}
}

// LeaveCheckout releases the buyer's locks on the given items.
func LeaveCheckout(ledger LockLedger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ledger == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory ledger unavailable"))
			return
		}
		userID, err := callerctx.ResolveUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload dto.ItemsRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		released, err := ledger.Release(r.Context(), userID, dto.ToInventoryItems(payload.Items))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]int64{"released": released})
	}
}
