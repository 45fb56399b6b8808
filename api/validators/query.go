package validators

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/vibes-market-backend/pkg/errors"
)

// ParseQueryUUIDs reads a comma separated list of ids, de-duplicated in order.
func ParseQueryUUIDs(r *http.Request, key string, max int) ([]uuid.UUID, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	if max > 0 && len(parts) > max {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "too many ids").WithDetails(map[string]any{"field": key, "max": max})
	}
	seen := make(map[uuid.UUID]struct{}, len(parts))
	ids := make([]uuid.UUID, 0, len(parts))
	for _, part := range parts {
		id, err := uuid.Parse(strings.TrimSpace(part))
		if err != nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "query parameter must list uuids").WithDetails(map[string]any{"field": key})
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}
