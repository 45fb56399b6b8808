package callerctx

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/vibes-market-backend/api/middleware"
	pkgerrors "github.com/angelmondragon/vibes-market-backend/pkg/errors"
)

// ResolveUserID extracts the authenticated buyer from the request.
func ResolveUserID(r *http.Request) (uuid.UUID, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}
	return id, nil
}
