package httpx

import "context"

type ctxKey string

const (
	CtxKeyUserID       ctxKey = "user_id"
	CtxKeyIsAdmin      ctxKey = "is_admin"
	CtxKeyIsAmbassador ctxKey = "is_ambassador"
	CtxKeyCity         ctxKey = "city"
)

// UserIDFromCtx returns the authenticated account id, or "" when the
// request is anonymous.
func UserIDFromCtx(ctx context.Context) string {
	if v, ok := ctx.Value(CtxKeyUserID).(string); ok {
		return v
	}
	return ""
}

func isAdminFromCtx(ctx context.Context) bool {
	v, _ := ctx.Value(CtxKeyIsAdmin).(bool)
	return v
}

func isAmbassadorFromCtx(ctx context.Context) bool {
	v, _ := ctx.Value(CtxKeyIsAmbassador).(bool)
	return v
}

// CityFromCtx returns the authenticated account's home city key.
func CityFromCtx(ctx context.Context) string {
	if v, ok := ctx.Value(CtxKeyCity).(string); ok {
		return v
	}
	return ""
}
