package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/communehq/commune/internal/commune/mail"
	"github.com/communehq/commune/internal/commune/provider"
	"github.com/communehq/commune/internal/commune/service"
	"github.com/communehq/commune/internal/commune/store"
	"github.com/communehq/commune/pkg/httpx"
	"github.com/communehq/commune/pkg/sessionx"
	"github.com/communehq/commune/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	sessions     *sessionx.Manager
	providers    *provider.Registry
	baseURL      string
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store           store.Store
	AccountService  *service.AccountService
	AccessService   *service.AccessService
	TemplateService *service.TemplateService
	Verification    *service.VerificationTokens
	Notifier        *mail.Notifier
}

func NewRouter(
	sessions *sessionx.Manager,
	providers *provider.Registry,
	baseURL, buildVersion string,
	st store.Store,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		sessions:     sessions,
		providers:    providers,
		baseURL:      baseURL,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerMe()
	r.registerInvitations()
	r.registerEmails()
	r.registerAdmin()
	r.registerTemplates()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global
// middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerAuth() {
	h := &AuthHandler{
		AccountService: r.AccountService,
		AccessService:  r.AccessService,
		Sessions:       r.sessions,
		Providers:      r.providers,
		BaseURL:        r.baseURL,
	}

	// Login start redirects to the external service - strict limit, this
	// is the unauthenticated front door.
	r.Mux.Handle("GET /v1/auth/{provider}/login",
		httpx.Chain(http.HandlerFunc(h.HandleLogin),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("GET /v1/auth/{provider}/callback",
		httpx.Chain(http.HandlerFunc(h.HandleCallback),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("POST /v1/auth/logout",
		httpx.Chain(http.HandlerFunc(h.HandleLogout),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
}

func (r *Router) registerMe() {
	h := &MeHandler{
		AccountService: r.AccountService,
		AccessService:  r.AccessService,
	}

	authed := func(next http.Handler) http.Handler {
		return httpx.Chain(next,
			httpx.AuthnMiddleware(r.sessions),
			httpx.RateLimitByUser(httpx.LenientLimit),
		)
	}

	r.Mux.Handle("GET /v1/me", authed(http.HandlerFunc(h.HandleGet)))
	r.Mux.Handle("DELETE /v1/me", authed(http.HandlerFunc(h.HandleDelete)))
	r.Mux.Handle("PUT /v1/me/profile", authed(http.HandlerFunc(h.HandleUpdateProfile)))
	r.Mux.Handle("POST /v1/me/profile/complete", authed(http.HandlerFunc(h.HandleCompleteProfile)))
	r.Mux.Handle("PUT /v1/me/city", authed(http.HandlerFunc(h.HandleAttachCity)))
	r.Mux.Handle("DELETE /v1/me/services/{provider}", authed(http.HandlerFunc(h.HandleUnlinkService)))
}

func (r *Router) registerInvitations() {
	h := &InvitationRedeemHandler{AccessService: r.AccessService}

	// Redemption spends another user's credit - strict limit by user.
	r.Mux.Handle("POST /v1/invitations/redeem",
		httpx.Chain(h,
			httpx.AuthnMiddleware(r.sessions),
			httpx.RateLimitByUser(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerEmails() {
	h := &EmailVerifyHandler{
		AccountService: r.AccountService,
		AccessService:  r.AccessService,
		Verification:   r.Verification,
		Notifier:       r.Notifier,
	}

	r.Mux.Handle("POST /v1/emails/send-verification",
		httpx.Chain(http.HandlerFunc(h.HandleSend),
			httpx.AuthnMiddleware(r.sessions),
			httpx.RateLimitByUser(httpx.StrictLimit),
		),
	)

	// The verify link lands from a mail client without a session.
	r.Mux.Handle("GET /v1/emails/verify",
		httpx.Chain(http.HandlerFunc(h.HandleVerify),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerAdmin() {
	h := &AdminHandler{
		AccountService: r.AccountService,
		AccessService:  r.AccessService,
		Verification:   r.Verification,
		Notifier:       r.Notifier,
	}

	admin := func(next http.Handler) http.Handler {
		return httpx.Chain(next,
			httpx.AuthnMiddleware(r.sessions),
			httpx.RequireAdmin(),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		)
	}

	// Per-user overrides are open to city ambassadors too, so they can
	// onboard their community without an admin.
	override := func(next http.Handler) http.Handler {
		return httpx.Chain(next,
			httpx.AuthnMiddleware(r.sessions),
			httpx.RequireAdminOrAmbassador(),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		)
	}

	r.Mux.Handle("POST /v1/admin/users/{id}/force-invite", override(http.HandlerFunc(h.HandleForceInvite)))
	r.Mux.Handle("POST /v1/admin/users/{id}/verify-email", override(http.HandlerFunc(h.HandleVerifyEmail)))
	r.Mux.Handle("POST /v1/admin/users/{id}/send-verification", override(http.HandlerFunc(h.HandleSendVerification)))
	r.Mux.Handle("POST /v1/admin/invites", admin(http.HandlerFunc(h.HandleAddInvites)))
}

func (r *Router) registerTemplates() {
	h := &TemplatesHandler{TemplateService: r.TemplateService}

	admin := func(next http.Handler) http.Handler {
		return httpx.Chain(next,
			httpx.AuthnMiddleware(r.sessions),
			httpx.RequireAdmin(),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		)
	}

	r.Mux.Handle("POST /v1/admin/templates", admin(http.HandlerFunc(h.HandleCreate)))
	r.Mux.Handle("GET /v1/admin/templates", admin(http.HandlerFunc(h.HandleList)))
	r.Mux.Handle("GET /v1/admin/templates/{identifier}", admin(http.HandlerFunc(h.HandleGet)))
	r.Mux.Handle("PUT /v1/admin/templates/{identifier}", admin(http.HandlerFunc(h.HandleUpdate)))
	r.Mux.Handle("DELETE /v1/admin/templates/{identifier}", admin(http.HandlerFunc(h.HandleDelete)))
}

func (r *Router) registerSystem() {
	// Health check endpoints - lenient rate limits (monitoring systems may poll frequently)
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
}
