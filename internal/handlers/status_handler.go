package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vendo/internal/common"
	"github.com/ternarybob/vendo/internal/interfaces"
)

// StatusHandler exposes application status and version. It subscribes to
// the event bus so the status payload carries recent run activity.
type StatusHandler struct {
	templates interfaces.TemplateStorage
	startedAt time.Time
	logger    arbor.ILogger

	mu     sync.Mutex
	recent []interfaces.Event
}

const recentEventLimit = 20

// NewStatusHandler creates a status handler and subscribes it to the bus
func NewStatusHandler(templates interfaces.TemplateStorage, events interfaces.EventService, logger arbor.ILogger) *StatusHandler {
	h := &StatusHandler{
		templates: templates,
		startedAt: time.Now(),
		logger:    logger,
	}
	events.Subscribe(h.record)
	return h
}

func (h *StatusHandler) record(event interfaces.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.recent = append(h.recent, event)
	if len(h.recent) > recentEventLimit {
		h.recent = h.recent[len(h.recent)-recentEventLimit:]
	}
}

// GetStatusHandler handles GET /api/status
func (h *StatusHandler) GetStatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	templates, err := h.templates.ListTemplates(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	active := 0
	for _, tpl := range templates {
		if tpl.SlotHeld() {
			active++
		}
	}

	h.mu.Lock()
	recent := make([]interfaces.Event, len(h.recent))
	copy(recent, h.recent)
	h.mu.Unlock()

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":          "ok",
		"version":         common.Version,
		"uptime_seconds":  int(time.Since(h.startedAt).Seconds()),
		"templates":       len(templates),
		"active_prepares": active,
		"recent_events":   recent,
	})
}

// VersionHandler handles GET /api/version
func (h *StatusHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{
		"version": common.Version,
		"build":   common.Build,
	})
}

// HealthHandler handles GET /api/health
func (h *StatusHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}
