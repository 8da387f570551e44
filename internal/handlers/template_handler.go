package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vendo/internal/common"
	"github.com/ternarybob/vendo/internal/interfaces"
	"github.com/ternarybob/vendo/internal/models"
)

// TemplateHandler exposes template CRUD and cascade delete over HTTP
type TemplateHandler struct {
	templates interfaces.TemplateStorage
	deleter   interfaces.DeleteService
	logger    arbor.ILogger
}

// NewTemplateHandler creates a new template handler
func NewTemplateHandler(templates interfaces.TemplateStorage, deleter interfaces.DeleteService, logger arbor.ILogger) *TemplateHandler {
	return &TemplateHandler{
		templates: templates,
		deleter:   deleter,
		logger:    logger,
	}
}

// ListHandler handles GET /api/templates
func (h *TemplateHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	templates, err := h.templates.ListTemplates(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"count":     len(templates),
		"templates": templates,
	})
}

// CreateHandler handles POST /api/templates
func (h *TemplateHandler) CreateHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name       string `json:"name"`
		SupplierID string `json:"supplier_id"`
	}
	if !DecodeJSON(w, r, &req) {
		return
	}
	if req.Name == "" || req.SupplierID == "" {
		WriteError(w, http.StatusBadRequest, "name and supplier_id are required")
		return
	}

	now := time.Now()
	tpl := &models.Template{
		ID:         common.NewTemplateID(),
		Name:       req.Name,
		SupplierID: req.SupplierID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := h.templates.SaveTemplate(r.Context(), tpl); err != nil {
		h.logger.Error().Err(err).Msg("Failed to create template")
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	WriteJSON(w, http.StatusCreated, tpl)
}

// GetHandler handles GET /api/templates/{id}
func (h *TemplateHandler) GetHandler(w http.ResponseWriter, r *http.Request, templateID string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	tpl, err := h.templates.GetTemplate(r.Context(), templateID)
	if err != nil {
		if errors.Is(err, interfaces.ErrTemplateNotFound) {
			WriteError(w, http.StatusNotFound, err.Error())
			return
		}
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, tpl)
}

// DeleteHandler handles POST /api/templates/delete. Blocked deletes return
// 409 with the blocker codes and affected template ids.
func (h *TemplateHandler) DeleteHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req struct {
		TemplateIDs []string `json:"template_ids"`
		DryRun      bool     `json:"dry_run"`
		Force       bool     `json:"force"`
	}
	if !DecodeJSON(w, r, &req) {
		return
	}
	if len(req.TemplateIDs) == 0 {
		WriteError(w, http.StatusBadRequest, "template_ids is required")
		return
	}

	result, err := h.deleter.Execute(r.Context(), req.TemplateIDs, req.DryRun, req.Force)
	if err != nil {
		h.logger.Error().Err(err).Msg("Delete execution failed")
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	status := http.StatusOK
	if result.Blocked {
		status = http.StatusConflict
	}
	WriteJSON(w, status, result)
}
