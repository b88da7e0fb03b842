package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/communehq/commune/pkg/sessionx"
	"github.com/communehq/commune/pkg/slogx"
)

// AuthnMiddleware authenticates the request from the session cookie, or
// from an Authorization bearer header for non-browser clients. Requests
// without a valid session are rejected.
func AuthnMiddleware(m *sessionx.Manager) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			raw := sessionToken(r)
			if raw == "" {
				writeSessionError(w, "missing session")
				return
			}

			claims, err := m.Verify(raw)
			if err != nil {
				writeSessionError(w, "session verification failed")
				log.Warn("session verify failed", "err", err)
				return
			}

			// Inject into context for downstream handlers.
			ctx = contextWithAuth(ctx, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// sessionToken pulls the raw token from the cookie or bearer header.
func sessionToken(r *http.Request) string {
	if c, err := r.Cookie(sessionx.CookieName); err == nil && c.Value != "" {
		return c.Value
	}
	if authz := r.Header.Get("Authorization"); strings.HasPrefix(authz, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authz, "Bearer"))
	}
	return ""
}

func contextWithAuth(ctx context.Context, c sessionx.Claims) context.Context {
	ctx = context.WithValue(ctx, CtxKeyUserID, c.Subject)
	ctx = context.WithValue(ctx, CtxKeyIsAdmin, c.IsAdmin)
	ctx = context.WithValue(ctx, CtxKeyIsAmbassador, c.IsAmbassador)
	ctx = context.WithValue(ctx, CtxKeyCity, c.City)
	return ctx
}

func writeSessionError(w http.ResponseWriter, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+desc+`"`)
	WriteError(w, http.StatusUnauthorized, "unauthorized", desc)
}
