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

type AdminHandler struct {
	AccountService *service.AccountService
	AccessService  *service.AccessService
	Verification   *service.VerificationTokens
	Notifier       *mail.Notifier
}

// HandleForceInvite clears a user's invitation gate without spending
// anyone's credit.
func (h *AdminHandler) HandleForceInvite(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, err := h.AccessService.ForceInvitation(ctx, r.PathValue("id"))
	if err != nil {
		writeAccountError(w, r, err, "Failed to force invitation")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toUserResponse(user))
}

// HandleVerifyEmail marks one of a user's addresses verified.
func (h *AdminHandler) HandleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		Address string `json:"address"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Address == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "address is required")
		return
	}

	user, err := h.AccessService.VerifyEmail(ctx, r.PathValue("id"), req.Address)
	if err != nil {
		writeAccountError(w, r, err, "Failed to verify email")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toUserResponse(user))
}

// HandleSendVerification re-sends the verification mail for a user's
// profile address.
func (h *AdminHandler) HandleSendVerification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	user, err := h.AccountService.GetUser(ctx, r.PathValue("id"))
	if err != nil {
		writeAccountError(w, r, err, "Failed to load account")
		return
	}
	if user.Profile.Email == "" {
		httpx.WriteError(w, http.StatusConflict, "no_email",
			"Account has no profile email to verify")
		return
	}

	token, err := h.Verification.Issue(user.ID, user.Profile.Email)
	if err != nil {
		log.Error("verification token issue failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error",
			"Failed to send verification mail")
		return
	}
	if err := h.Notifier.SendVerification(ctx, user, user.Profile.Email, token); err != nil {
		log.Error("verification mail failed", "err", err)
		httpx.WriteError(w, http.StatusBadGateway, "mail_failed",
			"Failed to send verification mail")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// HandleAddInvites grants invite credit to one user, one city, or
// everyone.
func (h *AdminHandler) HandleAddInvites(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req struct {
		UserID string `json:"user_id"`
		City   string `json:"city"`
		Amount int64  `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Amount <= 0 {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request",
			"amount must be a positive number")
		return
	}

	var err error
	if req.UserID != "" {
		err = h.AccessService.AddInvitesToUser(ctx, req.UserID, req.Amount)
	} else {
		err = h.AccessService.AddInvitesToCity(ctx, req.City, req.Amount)
	}
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnknownUser):
			httpx.WriteError(w, http.StatusNotFound, "unknown_user", "Account not found")
		case errors.Is(err, service.ErrUnknownCity):
			httpx.WriteError(w, http.StatusBadRequest, "unknown_city", "Unknown city")
		default:
			log.Error("adding invites failed", "err", err)
			httpx.WriteError(w, http.StatusInternalServerError, "server_error",
				"Failed to add invitations")
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
