package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/vibes-market-backend/pkg/logger"
	"github.com/angelmondragon/vibes-market-backend/pkg/types"
)

// RequestID propagates a caller supplied uuid request id, or mints one. Any
// other inbound value is replaced so log fields stay well formed.
func RequestID(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := uuid.NewString()
			if inbound, err := uuid.Parse(r.Header.Get(types.RequestIDHeader)); err == nil {
				reqID = inbound.String()
			}
			w.Header().Set(types.RequestIDHeader, reqID)
			r.Header.Set(types.RequestIDHeader, reqID)

			ctx := r.Context()
			if logg != nil {
				ctx = logg.WithRequestID(ctx, reqID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
