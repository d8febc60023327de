package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/domain"
	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/http/response"
	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/security"
)

type contextKey string

const claimsContextKey contextKey = "auth.claims"

// Authenticator verifies the access token before the handler runs. The
// token comes from the access_token cookie, falling back to a bearer
// Authorization header for non-browser clients.
func Authenticator(jwtMgr *security.JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := ExtractAccessToken(r)
			if raw == "" {
				response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
				return
			}
			claims, err := jwtMgr.ParseAccessToken(raw)
			if err != nil {
				response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or expired token", nil)
				return
			}
			ctx := context.WithValue(r.Context(), claimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole gates a subtree on the authenticated principal's role. It
// must run inside Authenticator.
func RequireRole(role domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
				return
			}
			if claims.Role != role {
				response.Error(w, r, http.StatusForbidden, "FORBIDDEN", "insufficient permissions", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClaimsFromContext returns the verified claims stored by Authenticator.
func ClaimsFromContext(ctx context.Context) (*security.Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(*security.Claims)
	return claims, ok && claims != nil
}

// ExtractAccessToken reads the raw access token from the cookie, falling
// back to a bearer Authorization header.
func ExtractAccessToken(r *http.Request) string {
	if raw := security.GetCookie(r, security.AccessTokenCookie); raw != "" {
		return raw
	}
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "bearer "
	if len(auth) > len(prefix) && strings.EqualFold(auth[:len(prefix)], prefix) {
		return strings.TrimSpace(auth[len(prefix):])
	}
	return ""
}
