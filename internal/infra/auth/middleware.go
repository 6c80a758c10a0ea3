package auth

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/arcaneos/archon-runtime/internal/domain"
)

type ctxKey string

const claimsKey ctxKey = "claims"

// NewMiddleware rejects requests without a verifiable bearer token and puts
// the claims (plus the requester identity) on the context.
func NewMiddleware(v TokenValidator, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := v.VerifyToken(authHeader)
			if err != nil {
				logger.Warn("auth failure", zap.Error(err))
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			ctx = domain.WithRequester(ctx, claims.Requester)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClaimsFromContext returns the verified claims, or nil outside the
// protected perimeter.
func ClaimsFromContext(ctx context.Context) *domain.CustomClaims {
	claims, _ := ctx.Value(claimsKey).(*domain.CustomClaims)
	return claims
}
