package chi

import (
	"context"
	"net/http"
	"strings"

	"github.com/kailas-cloud/tokengate/internal/domain"
)

// APIKey binds a bearer key to the principal it authenticates.
type APIKey struct {
	Key    string
	UserID string
	Email  string
}

type principalCtxKey struct{}

// anonymousPrincipal is the identity used when authentication is disabled.
var anonymousPrincipal = domain.Principal{ID: "anonymous"}

// PrincipalFromContext returns the authenticated principal, or the anonymous
// one when authentication is disabled.
func PrincipalFromContext(ctx context.Context) domain.Principal {
	if p, ok := ctx.Value(principalCtxKey{}).(domain.Principal); ok {
		return p
	}
	return anonymousPrincipal
}

// exemptPaths are routes that bypass authentication (health, metrics).
var exemptPaths = map[string]struct{}{
	"/health":  {},
	"/metrics": {},
}

// BearerAuthMiddleware returns a middleware that validates Bearer tokens and
// attaches the matching principal to the request context.
// If apiKeys is empty, authentication is disabled (pass-through).
func BearerAuthMiddleware(apiKeys []APIKey) func(http.Handler) http.Handler {
	principals := make(map[string]domain.Principal, len(apiKeys))
	for _, k := range apiKeys {
		if k.Key != "" {
			principals[k.Key] = domain.Principal{ID: k.UserID, Email: k.Email}
		}
	}

	return func(next http.Handler) http.Handler {
		// Auth disabled: pass everything through
		if len(principals) == 0 {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Exempt paths
			if _, ok := exemptPaths[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			auth := r.Header.Get("Authorization")
			if auth == "" {
				writeError(w, http.StatusUnauthorized, CodeUnauthorized, "missing authorization header")
				return
			}

			const bearerPrefix = "Bearer "
			if !strings.HasPrefix(auth, bearerPrefix) {
				writeError(w, http.StatusUnauthorized,
					CodeUnauthorized, "authorization header must use Bearer scheme")
				return
			}

			token := auth[len(bearerPrefix):]
			principal, ok := principals[token]
			if !ok {
				writeError(w, http.StatusUnauthorized, CodeUnauthorized, "invalid api key")
				return
			}

			ctx := context.WithValue(r.Context(), principalCtxKey{}, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
