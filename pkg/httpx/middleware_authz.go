package httpx

import "net/http"

// RequireAdmin the caller must hold the admin role.
func RequireAdmin() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !isAdminFromCtx(r.Context()) {
				writeRoleError(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdminOrAmbassador the caller must hold the admin or ambassador
// role.
func RequireAdminOrAmbassador() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if !isAdminFromCtx(ctx) && !isAmbassadorFromCtx(ctx) {
				writeRoleError(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeRoleError(w http.ResponseWriter) {
	WriteError(w, http.StatusForbidden, "no_permission", "insufficient role")
}
