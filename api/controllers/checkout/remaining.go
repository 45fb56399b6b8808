package checkout

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/vibes-market-backend/api/controllers/callerctx"
	"github.com/angelmondragon/vibes-market-backend/api/responses"
	"github.com/angelmondragon/vibes-market-backend/api/validators"
	"github.com/angelmondragon/vibes-market-backend/internal/inventory"
	"github.com/angelmondragon/vibes-market-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/vibes-market-backend/pkg/errors"
	"github.com/angelmondragon/vibes-market-backend/pkg/logger"
)

const maxDisplayUnits = 200

type RemainingLoader interface {
	LoadRemainingForDisplay(ctx context.Context, units []inventory.Unit, userID *uuid.UUID) (map[inventory.Unit]inventory.Remaining, error)
}

type remainingEntry struct {
	Kind      enums.UnitKind `json:"kind"`
	ID        uuid.UUID      `json:"id"`
	Quantity  int64          `json:"quantity"`
	Unlimited bool           `json:"unlimited"`
}

// Remaining returns display stock for a batch of products, variants and
// tickets. The caller's own locks do not count against them.
func Remaining(ledger RemainingLoader, logg *logger.Logger) http.HandlerFunc {
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

		var units []inventory.Unit
		for _, q := range []struct {
			key  string
			unit func(uuid.UUID) inventory.Unit
		}{
			{"product_ids", inventory.ProductUnit},
			{"parameter_set_ids", inventory.ParameterSetUnit},
			{"ticket_ids", inventory.SessionTicketUnit},
		} {
			ids, err := validators.ParseQueryUUIDs(r, q.key, maxDisplayUnits)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			for _, id := range ids {
				units = append(units, q.unit(id))
			}
		}
		if len(units) == 0 {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "at least one id is required"))
			return
		}
		if len(units) > maxDisplayUnits {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "too many ids").WithDetails(map[string]any{"max": maxDisplayUnits}))
			return
		}

		remaining, err := ledger.LoadRemainingForDisplay(r.Context(), units, &userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := make([]remainingEntry, 0, len(units))
		for _, unit := range units {
			rem, ok := remaining[unit]
			if !ok {
				continue
			}
			out = append(out, remainingEntry{Kind: unit.Kind, ID: unit.ID, Quantity: rem.Quantity, Unlimited: rem.Unlimited})
		}
		responses.WriteSuccess(w, out)
	}
}
