package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"idregistry/pkg/requestcontext"
)

// JWTValidator defines the interface for validating admin access tokens.
type JWTValidator interface {
	ValidateToken(tokenString string) (*ValidatedClaims, error)
}

// ValidatedClaims represents the claims we expect from the JWT validator.
type ValidatedClaims struct {
	ActorID string
}

// RequireAuth rejects requests without a valid Bearer token and stores the
// acting admin's ID in the request context.
func RequireAuth(validator JWTValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)

			authHeader := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestID,
				)
				writeUnauthorized(w)
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestID,
				)
				writeUnauthorized(w)
				return
			}

			ctx = requestcontext.WithActorID(ctx, claims.ActorID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"Invalid or expired token"}`))
}
