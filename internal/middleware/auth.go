package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/wanderhost/browse-api/internal/pkg/jwt"
	"github.com/wanderhost/browse-api/internal/pkg/logger"
	"github.com/wanderhost/browse-api/internal/pkg/response"
)

type contextKey string

const TravelerIDKey contextKey = "traveler_id"

// OptionalTraveler attaches the traveler identity when a valid bearer token
// is present. Anonymous requests pass through; a malformed or invalid token
// is rejected.
func OptionalTraveler(jwtService *jwt.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" || jwtService == nil {
				next.ServeHTTP(w, r)
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				response.Unauthorized(w, "Invalid authorization header format")
				return
			}

			claims, err := jwtService.ValidateAccessToken(parts[1])
			if err != nil {
				if err == jwt.ErrExpiredToken {
					response.Unauthorized(w, "Token expired")
				} else {
					response.Unauthorized(w, "Invalid token")
				}
				return
			}

			ctx := context.WithValue(r.Context(), TravelerIDKey, claims.TravelerID)
			ctx = logger.WithFields(ctx, "traveler_id", claims.TravelerID.String(), "role", claims.Role)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireTraveler rejects requests that carry no traveler identity.
func RequireTraveler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetTravelerID(r.Context()) == uuid.Nil {
			response.Unauthorized(w, "Missing authorization header")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetTravelerID extracts traveler ID from context
func GetTravelerID(ctx context.Context) uuid.UUID {
	if id, ok := ctx.Value(TravelerIDKey).(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}
