package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/mcoot/wolfbot/internal/api/apierr"
	"github.com/mcoot/wolfbot/internal/model"
	"github.com/mcoot/wolfbot/internal/services/auth"
)

type contextKey string

const claimsContextKey contextKey = "claims"

// Auth creates authentication middleware that requires a valid bearer token
func Auth(authService *auth.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractToken(r)
			if token == "" {
				apierr.WriteError(w, apierr.NewUnauthorizedError())
				return
			}

			claims, err := authService.Validate(token)
			if err != nil {
				apierr.WriteError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireModerator rejects callers whose token is not a moderator token.
// It must run after Auth.
func RequireModerator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !IsModerator(r.Context()) {
			apierr.WriteError(w, auth.ErrForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// extractToken extracts the bearer token from the request
func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}

// GetClaims returns the validated token claims from the request context
func GetClaims(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(claimsContextKey).(*auth.Claims)
	return claims
}

// IsModerator reports whether the caller holds a moderator token
func IsModerator(ctx context.Context) bool {
	claims := GetClaims(ctx)
	return claims != nil && claims.Moderator
}

// ActingFor checks that the caller may act for member: either the member
// themselves or a moderator
func ActingFor(ctx context.Context, member model.MemberID) error {
	claims := GetClaims(ctx)
	if claims == nil {
		return apierr.NewUnauthorizedError()
	}
	if claims.Moderator || claims.Member() == member {
		return nil
	}
	return auth.ErrForbidden
}
