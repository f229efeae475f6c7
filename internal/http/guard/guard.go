package guard

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/MrJamesThe3rd/medtrain/internal/auth"
)

type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*auth.Claims, error)
}

type ctxKey struct{}

func WithClaims(ctx context.Context, c *auth.Claims) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

func ClaimsFrom(ctx context.Context) (*auth.Claims, bool) {
	c, ok := ctx.Value(ctxKey{}).(*auth.Claims)
	return c, ok && c != nil
}

func bearer(r *http.Request) (string, bool) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	token = strings.TrimSpace(token)

	return token, ok && token != ""
}

// Authenticate rejects requests without a valid bearer session.
func Authenticate(a Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearer(r)
			if !ok {
				http.Error(w, "authorization required", http.StatusUnauthorized)
				return
			}

			claims, err := a.Authenticate(r.Context(), token)
			if err != nil {
				slog.Debug("rejected session", "path", r.URL.Path, "error", err)
				http.Error(w, "invalid session", http.StatusUnauthorized)

				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// Identify attaches the caller's claims when a valid session is presented and
// lets anonymous or stale callers through as anonymous.
func Identify(a Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token, ok := bearer(r); ok {
				if claims, err := a.Authenticate(r.Context(), token); err == nil {
					r = r.WithContext(WithClaims(r.Context(), claims))
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole must run after Authenticate.
func RequireRole(roles ...auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFrom(r.Context())
			if !ok {
				http.Error(w, "authorization required", http.StatusUnauthorized)
				return
			}

			if !slices.Contains(roles, claims.Role) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// IsAdmin reports whether the caller holds an admin session.
func IsAdmin(ctx context.Context) bool {
	c, ok := ClaimsFrom(ctx)
	return ok && c.Role == auth.RoleAdmin
}

// Actor names the caller in audit fields.
func Actor(ctx context.Context) string {
	c, ok := ClaimsFrom(ctx)
	if !ok {
		return ""
	}

	if c.Role == auth.RoleAdmin {
		return "admin:" + c.Email
	}

	return c.Email
}
