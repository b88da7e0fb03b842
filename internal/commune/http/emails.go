package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/communehq/commune/internal/commune/mail"
	"github.com/communehq/commune/internal/commune/service"
	"github.com/communehq/commune/pkg/httpx"
	"github.com/communehq/commune/pkg/slogx"
)

type EmailVerifyHandler struct {
	AccountService *service.AccountService
	AccessService  *service.AccessService
	Verification   *service.VerificationTokens
	Notifier       *mail.Notifier
}

// HandleSend mails a verification link for one of the caller's
// addresses.
func (h *EmailVerifyHandler) HandleSend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req struct {
		Address string `json:"address"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Address == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "address is required")
		return
	}

	user, err := h.AccountService.GetUser(ctx, httpx.UserIDFromCtx(ctx))
	if err != nil {
		writeAccountError(w, r, err, "Failed to load account")
		return
	}
	if !user.HasEmail(req.Address) {
		httpx.WriteError(w, http.StatusNotFound, "unknown_email",
			"Address does not belong to this account")
		return
	}

	token, err := h.Verification.Issue(user.ID, req.Address)
	if err != nil {
		log.Error("verification token issue failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error",
			"Failed to send verification mail")
		return
	}

	if err := h.Notifier.SendVerification(ctx, user, req.Address, token); err != nil {
		log.Error("verification mail failed", "err", err)
		httpx.WriteError(w, http.StatusBadGateway, "mail_failed",
			"Failed to send verification mail")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// HandleVerify consumes a verification link, marking the address
// verified and advancing the access gates.
func (h *EmailVerifyHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	userID, address, err := h.Verification.Parse(r.URL.Query().Get("token"))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_token",
			"Verification link is invalid or expired")
		return
	}

	user, err := h.AccessService.VerifyEmail(ctx, userID, address)
	if err != nil {
		if errors.Is(err, service.ErrUnknownUser) {
			httpx.WriteError(w, http.StatusNotFound, "unknown_user", "Account not found")
			return
		}
		log.Error("email verification failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "Verification failed")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, toUserResponse(user))
}
