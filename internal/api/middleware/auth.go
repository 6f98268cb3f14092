package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/cloo-solutions/zenithvault/internal/api"
	"github.com/cloo-solutions/zenithvault/internal/domain"
)

type contextKey string

const CallerKey contextKey = "caller"

type AuthValidator interface {
	ValidateAPIKey(ctx context.Context, token string) (domain.Caller, error)
}

// APIKeyAuth resolves the bearer token to a domain.Caller and stores it in
// the request context.
func APIKeyAuth(validator AuthValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				api.Error(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			if !strings.HasPrefix(authHeader, "Bearer ") {
				api.Error(w, http.StatusUnauthorized, "invalid authorization format")
				return
			}

			token := strings.TrimPrefix(authHeader, "Bearer ")

			caller, err := validator.ValidateAPIKey(r.Context(), token)
			if err != nil {
				if domain.CodeOf(err) == domain.ErrCodeUnauthorized {
					api.Error(w, http.StatusUnauthorized, "invalid api key")
					return
				}
				api.HandleError(w, r, err)
				return
			}

			if info, ok := r.Context().Value(requestInfoKey).(*requestInfo); ok {
				info.setCaller(caller)
			}
			ctx := context.WithValue(r.Context(), CallerKey, caller)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin rejects callers whose key is not an admin key. It must run
// after APIKeyAuth.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, ok := GetCaller(r.Context())
		if !ok {
			api.Error(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if !caller.IsAdmin {
			api.HandleError(w, r, domain.ErrAdminRequired)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetCaller returns the authenticated caller, if any.
func GetCaller(ctx context.Context) (domain.Caller, bool) {
	caller, ok := ctx.Value(CallerKey).(domain.Caller)
	return caller, ok
}

// GetOrgID returns the caller's organization, empty for platform keys and
// unauthenticated requests.
func GetOrgID(ctx context.Context) string {
	caller, _ := GetCaller(ctx)
	return caller.OrganizationID
}
