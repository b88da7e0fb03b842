package http

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/communehq/commune/internal/commune/domain"
	"github.com/communehq/commune/internal/commune/provider"
	"github.com/communehq/commune/internal/commune/service"
	"github.com/communehq/commune/pkg/httpx"
	"github.com/communehq/commune/pkg/sessionx"
	"github.com/communehq/commune/pkg/slogx"
)

const stateCookie = "commune_oauth_state"

type AuthHandler struct {
	AccountService *service.AccountService
	AccessService  *service.AccessService
	Sessions       *sessionx.Manager
	Providers      *provider.Registry
	BaseURL        string
}

// HandleLogin starts the authorization-code flow by redirecting to the
// external service. The random state round-trips through a short-lived
// cookie.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("provider")
	adapter, err := h.Providers.Lookup(name)
	if err != nil {
		httpx.WriteError(w, http.StatusNotFound, "unknown_service", "Unknown login service")
		return
	}

	state, err := randomState()
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "Failed to start login")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/v1/auth",
		MaxAge:   600,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	cfg := adapter.OAuthConfig(h.callbackURL(name))
	http.Redirect(w, r, cfg.AuthCodeURL(state, oauth2.AccessTypeOnline), http.StatusFound)
}

// HandleCallback finishes the flow: the code is exchanged for a token
// and the account behind it is signed in. When a valid session already
// exists the external identity is linked to that account instead.
func (h *AuthHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	name := r.PathValue("provider")
	adapter, err := h.Providers.Lookup(name)
	if err != nil {
		httpx.WriteError(w, http.StatusNotFound, "unknown_service", "Unknown login service")
		return
	}

	// 1. The state must match the cookie set at login start.
	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" || r.URL.Query().Get("state") != cookie.Value {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_state", "Login state mismatch")
		return
	}
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Value: "", Path: "/v1/auth", MaxAge: -1})

	code := r.URL.Query().Get("code")
	if code == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "Missing authorization code")
		return
	}

	// 2. Exchange the code.
	cfg := adapter.OAuthConfig(h.callbackURL(name))
	token, err := cfg.Exchange(ctx, code)
	if err != nil {
		log.Warn("code exchange failed", "service", name, "err", err)
		httpx.WriteError(w, http.StatusBadGateway, "exchange_failed", "Could not complete login")
		return
	}

	// 3. Link when a session exists, sign in otherwise.
	var user domain.User
	linked := false
	if raw := sessionTokenFromRequest(r); raw != "" {
		if claims, verr := h.Sessions.Verify(raw); verr == nil {
			user, err = h.AccountService.LinkService(ctx, claims.Subject, name, token)
			linked = true
		}
	}
	if !linked {
		user, err = h.AccountService.Login(ctx, name, token)
	}
	if err != nil {
		switch {
		case errors.Is(err, service.ErrDuplicateEmail):
			httpx.WriteError(w, http.StatusConflict, "duplicate_email",
				"An account with this email address exists but the address is not verified")
		case errors.Is(err, service.ErrUnknownService):
			httpx.WriteError(w, http.StatusNotFound, "unknown_service", "Unknown login service")
		default:
			log.Error("login failed", "service", name, "err", err)
			httpx.WriteError(w, http.StatusInternalServerError, "server_error", "Login failed")
		}
		return
	}

	// 4. Attach the city behind the subdomain the user signed in on. For
	// accounts with a home city this only moves currentCity. Best effort,
	// the city can still be set later via /v1/me/city.
	if city := domain.CityFromHost(r.Host); city != "" {
		if attached, aerr := h.AccountService.AttachCity(ctx, user.ID, city); aerr == nil {
			user = attached
		} else {
			log.Warn("attaching city on login failed", "city", city, "err", aerr)
		}
	}

	// 5. Issue the session.
	signed, err := h.Sessions.Issue(user.ID, user.IsAdmin, user.IsAmbassador, user.City)
	if err != nil {
		log.Error("session issue failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "Login failed")
		return
	}
	h.Sessions.SetCookie(w, signed)

	httpx.WriteJSON(w, http.StatusOK, toUserResponse(user))
}

// HandleLogout clears the session cookie.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.Sessions.ClearCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) callbackURL(providerName string) string {
	return h.BaseURL + "/v1/auth/" + providerName + "/callback"
}

func randomState() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func sessionTokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(sessionx.CookieName); err == nil {
		return c.Value
	}
	return ""
}
