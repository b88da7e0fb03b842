package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/communehq/commune/internal/commune/domain"
	"github.com/communehq/commune/internal/commune/service"
	"github.com/communehq/commune/pkg/httpx"
	"github.com/communehq/commune/pkg/slogx"
)

type MeHandler struct {
	AccountService *service.AccountService
	AccessService  *service.AccessService
}

// HandleGet returns the authenticated account.
func (h *MeHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, err := h.AccountService.GetUser(ctx, httpx.UserIDFromCtx(ctx))
	if err != nil {
		writeAccountError(w, r, err, "Failed to load account")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toUserResponse(user))
}

// HandleDelete soft-deletes the authenticated account.
func (h *MeHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.AccountService.DeleteAccount(ctx, httpx.UserIDFromCtx(ctx)); err != nil {
		writeAccountError(w, r, err, "Failed to delete account")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleUpdateProfile applies user edits to the profile fields.
func (h *MeHandler) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var edit domain.Profile
	if err := json.NewDecoder(r.Body).Decode(&edit); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}

	user, err := h.AccountService.UpdateProfile(ctx, httpx.UserIDFromCtx(ctx), edit)
	if err != nil {
		writeAccountError(w, r, err, "Failed to update profile")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toUserResponse(user))
}

// HandleCompleteProfile signals that the profile is finished, clearing
// the incomplete-profile gate when name and email are in place.
func (h *MeHandler) HandleCompleteProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, err := h.AccessService.CompleteProfile(ctx, httpx.UserIDFromCtx(ctx))
	if err != nil {
		if errors.Is(err, service.ErrProfileIncomplete) {
			httpx.WriteError(w, http.StatusBadRequest, "profile_incomplete",
				"Profile needs both a name and an email address")
			return
		}
		writeAccountError(w, r, err, "Failed to complete profile")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toUserResponse(user))
}

// HandleAttachCity sets the account's home city.
func (h *MeHandler) HandleAttachCity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		City string `json:"city"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}

	// Fall back to the subdomain the request came in on.
	if req.City == "" {
		req.City = domain.CityFromHost(r.Host)
	}

	user, err := h.AccountService.AttachCity(ctx, httpx.UserIDFromCtx(ctx), req.City)
	if err != nil {
		if errors.Is(err, service.ErrUnknownCity) {
			httpx.WriteError(w, http.StatusBadRequest, "unknown_city", "Unknown city")
			return
		}
		writeAccountError(w, r, err, "Failed to set city")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toUserResponse(user))
}

// HandleUnlinkService detaches one of the linked external identities.
func (h *MeHandler) HandleUnlinkService(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, err := h.AccountService.UnlinkService(ctx, httpx.UserIDFromCtx(ctx), r.PathValue("provider"))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnknownService):
			httpx.WriteError(w, http.StatusNotFound, "unknown_service", "Service is not linked")
		case errors.Is(err, service.ErrLastService):
			httpx.WriteError(w, http.StatusConflict, "last_service",
				"The only remaining login service cannot be unlinked")
		default:
			writeAccountError(w, r, err, "Failed to unlink service")
		}
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toUserResponse(user))
}

// writeAccountError maps the shared account error cases.
func writeAccountError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	if errors.Is(err, service.ErrUnknownUser) {
		httpx.WriteError(w, http.StatusNotFound, "unknown_user", "Account not found")
		return
	}
	slogx.FromContext(r.Context()).Error("account operation failed", "err", err)
	httpx.WriteError(w, http.StatusInternalServerError, "server_error", fallback)
}
