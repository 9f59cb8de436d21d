package middleware

import (
	"net/http"
	"strings"
	"time"

	apperrors "darna/pkg/errors"
	httputil "darna/pkg/http"
	"darna/pkg/identity"
	"darna/pkg/logger"
)

const tokenExpiryKey contextKey = "token_expiry"

// TokenVerifier is satisfied by *identity.Verifier.
type TokenVerifier interface {
	Verify(token string) (identity.Identity, time.Time, error)
}

// Authenticate resolves the bearer token into an identity on the request
// context. GET requests may pass the token as access_token since browsers
// cannot set headers on EventSource connections.
func Authenticate(verifier TokenVerifier, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				_ = httputil.WriteError(w, apperrors.Unauthorized("missing bearer token"))
				return
			}

			id, expires, err := verifier.Verify(token)
			if err != nil {
				log.Warn("Rejected access token",
					"request_id", RequestID(r),
					"path", r.URL.Path,
					"error", err,
				)
				_ = httputil.WriteError(w, apperrors.Unauthorized("invalid or expired token"))
				return
			}

			ctx := identity.WithIdentity(r.Context(), id)
			if !expires.IsZero() {
				ctx = contextWithExpiry(ctx, expires)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if r.Method == http.MethodGet {
		return r.URL.Query().Get("access_token")
	}
	return ""
}
