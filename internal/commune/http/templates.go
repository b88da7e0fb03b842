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

type TemplatesHandler struct {
	TemplateService *service.TemplateService
}

func (h *TemplatesHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req templateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}

	created, err := h.TemplateService.CreateTemplate(ctx, domain.EmailTemplate{
		Identifier: req.Identifier,
		Subject:    req.Subject,
		Body:       req.Body,
		Groups:     req.Groups,
	})
	if err != nil {
		writeTemplateError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, created)
}

func (h *TemplatesHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	templates, err := h.TemplateService.ListTemplates(ctx)
	if err != nil {
		writeTemplateError(w, r, err)
		return
	}
	if templates == nil {
		templates = []domain.EmailTemplate{}
	}
	httpx.WriteJSON(w, http.StatusOK, templates)
}

func (h *TemplatesHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	t, err := h.TemplateService.GetTemplate(ctx, r.PathValue("identifier"))
	if err != nil {
		writeTemplateError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, t)
}

func (h *TemplatesHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req templateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}

	updated, err := h.TemplateService.UpdateTemplate(ctx, r.PathValue("identifier"), domain.EmailTemplate{
		Identifier: req.Identifier,
		Subject:    req.Subject,
		Body:       req.Body,
		Groups:     req.Groups,
	})
	if err != nil {
		writeTemplateError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, updated)
}

func (h *TemplatesHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.TemplateService.DeleteTemplate(ctx, r.PathValue("identifier")); err != nil {
		writeTemplateError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeTemplateError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrTemplateNotFound):
		httpx.WriteError(w, http.StatusNotFound, "template_not_found", "Template not found")
	case errors.Is(err, service.ErrTemplateExists):
		httpx.WriteError(w, http.StatusConflict, "template_exists",
			"A template with this identifier already exists")
	case errors.Is(err, service.ErrImmutableIdentifier):
		httpx.WriteError(w, http.StatusBadRequest, "immutable_identifier",
			"The template identifier cannot be changed")
	case errors.Is(err, service.ErrInvalidTemplate):
		httpx.WriteError(w, http.StatusBadRequest, "invalid_template",
			"Identifier, subject and body are required and groups must be known")
	default:
		slogx.FromContext(r.Context()).Error("template operation failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "Template operation failed")
	}
}
