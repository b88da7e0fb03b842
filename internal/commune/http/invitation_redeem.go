package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/communehq/commune/internal/commune/service"
	"github.com/communehq/commune/pkg/httpx"
	"github.com/communehq/commune/pkg/slogx"
)

type InvitationRedeemHandler struct {
	AccessService *service.AccessService
}

func (h *InvitationRedeemHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req struct {
		Phrase int64 `json:"phrase"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Phrase == 0 {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "phrase is required")
		return
	}

	user, err := h.AccessService.RedeemInvitation(ctx, req.Phrase, httpx.UserIDFromCtx(ctx))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidPhrase):
			httpx.WriteError(w, http.StatusBadRequest, "invalid_phrase",
				"Invitation phrase is not valid")
		case errors.Is(err, service.ErrAlreadyInvited):
			httpx.WriteError(w, http.StatusConflict, "already_invited",
				"This account has already been invited")
		case errors.Is(err, service.ErrInvitationLimitReached):
			httpx.WriteError(w, http.StatusConflict, "invitation_limit_reached",
				"The inviting member has no invitations left")
		case errors.Is(err, service.ErrUnknownUser):
			httpx.WriteError(w, http.StatusNotFound, "unknown_user", "Account not found")
		default:
			log.Error("invitation redeem failed", "err", err)
			httpx.WriteError(w, http.StatusInternalServerError, "server_error",
				"Failed to redeem invitation")
		}
		return
	}

	httpx.WriteJSON(w, http.StatusOK, toUserResponse(user))
}
