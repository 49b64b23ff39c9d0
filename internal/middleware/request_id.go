package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/wanderhost/browse-api/internal/pkg/logger"
	"github.com/wanderhost/browse-api/internal/pkg/requestid"
)

// RequestID adds a unique request ID to each request
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Reuse an upstream ID when the edge already assigned one
		id := r.Header.Get(requestid.Header)
		if id == "" {
			id = uuid.New().String()
		}

		w.Header().Set(requestid.Header, id)
		r.Header.Set(requestid.Header, id)

		ctx := requestid.WithContext(r.Context(), id)
		ctx = logger.WithFields(ctx, "request_id", id)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
