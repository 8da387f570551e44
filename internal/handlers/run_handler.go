package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vendo/internal/interfaces"
	"github.com/ternarybob/vendo/internal/models"
)

// RunHandler exposes prepare run operations over HTTP
type RunHandler struct {
	orchestrator interfaces.OrchestratorService
	sync         interfaces.SyncService
	runs         interfaces.RunStorage
	diffs        interfaces.DiffStorage
	logger       arbor.ILogger
}

// NewRunHandler creates a new run handler
func NewRunHandler(
	orchestrator interfaces.OrchestratorService,
	syncService interfaces.SyncService,
	runs interfaces.RunStorage,
	diffs interfaces.DiffStorage,
	logger arbor.ILogger,
) *RunHandler {
	return &RunHandler{
		orchestrator: orchestrator,
		sync:         syncService,
		runs:         runs,
		diffs:        diffs,
		logger:       logger,
	}
}

// PrepareHandler handles POST /api/prepare. The run is acknowledged
// immediately; preparation proceeds in the background.
func (h *RunHandler) PrepareHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req struct {
		TemplateID string                 `json:"template_id"`
		Options    map[string]interface{} `json:"options"`
	}
	if !DecodeJSON(w, r, &req) {
		return
	}
	if req.TemplateID == "" {
		WriteError(w, http.StatusBadRequest, "template_id is required")
		return
	}

	runID, err := h.orchestrator.EnqueuePrepare(r.Context(), req.TemplateID, req.Options)
	if err != nil {
		if errors.Is(err, interfaces.ErrTemplateNotFound) {
			WriteError(w, http.StatusNotFound, err.Error())
			return
		}
		h.logger.Error().Err(err).Str("template_id", req.TemplateID).Msg("Failed to enqueue prepare")
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	WriteJSON(w, http.StatusAccepted, map[string]string{"run_id": runID})
}

// GetRunHandler handles GET /api/runs/{id}
func (h *RunHandler) GetRunHandler(w http.ResponseWriter, r *http.Request, runID string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	run, err := h.runs.GetRun(r.Context(), runID)
	if err != nil {
		if errors.Is(err, interfaces.ErrRunNotFound) {
			WriteError(w, http.StatusNotFound, err.Error())
			return
		}
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, run)
}

// ListDiffsHandler handles GET /api/runs/{id}/diffs
func (h *RunHandler) ListDiffsHandler(w http.ResponseWriter, r *http.Request, runID string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	diffs, err := h.diffs.ListDiffsByRun(r.Context(), runID)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"run_id": runID,
		"count":  len(diffs),
		"diffs":  diffs,
	})
}

// CancelHandler handles POST /api/runs/{id}/cancel. Idempotent.
func (h *RunHandler) CancelHandler(w http.ResponseWriter, r *http.Request, runID string) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	result, err := h.orchestrator.RequestCancel(r.Context(), runID)
	if err != nil {
		if errors.Is(err, interfaces.ErrRunNotFound) {
			WriteError(w, http.StatusNotFound, err.Error())
			return
		}
		h.logger.Error().Err(err).Str("run_id", runID).Msg("Failed to request cancel")
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, result)
}

// SyncHandler handles POST /api/runs/{id}/sync
func (h *RunHandler) SyncHandler(w http.ResponseWriter, r *http.Request, runID string) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req struct {
		Destination    *models.DestinationConfig `json:"destination"`
		ApprovedOnly   bool                      `json:"approved_only"`
		AddsOnly       bool                      `json:"adds_only"`
		IncludeDeletes bool                      `json:"include_deletes"`
	}
	if !DecodeJSON(w, r, &req) {
		return
	}

	report, err := h.sync.UpsertForRun(r.Context(), runID, req.Destination, models.SyncOptions{
		ApprovedOnly:   req.ApprovedOnly,
		AddsOnly:       req.AddsOnly,
		IncludeDeletes: req.IncludeDeletes,
	})
	if err != nil {
		if errors.Is(err, interfaces.ErrRunNotFound) || errors.Is(err, interfaces.ErrTemplateNotFound) {
			WriteError(w, http.StatusNotFound, err.Error())
			return
		}
		h.logger.Error().Err(err).Str("run_id", runID).Msg("Catalog sync failed")
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, report)
}

// RunIDFromPath extracts the run id from /api/runs/{id}[/suffix]
func RunIDFromPath(path, suffix string) string {
	p := strings.TrimPrefix(path, "/api/runs/")
	p = strings.TrimSuffix(p, suffix)
	return strings.Trim(p, "/")
}
