package models

import (
	"time"
)

// Log event types. prepare:queued events double as the durable FIFO queue:
// the event is the queue entry, and the referenced run is re-read at
// promotion time to decide eligibility.
const (
	EventPrepareQueued = "prepare:queued"
	EventPrepareStart  = "prepare:start"
	EventPrepareDone   = "prepare:done"
	EventPrepareError  = "prepare:error"
	EventPrepareCancel = "prepare:cancel"

	EventOrchestratorStart     = "orchestrator:start"
	EventOrchestratorDone      = "orchestrator:done"
	EventOrchestratorCancelled = "orchestrator:cancelled"
	EventOrchestratorError     = "orchestrator:error"

	EventPublishProgress = "publish:progress"
	EventPublishDone     = "publish:done"

	EventMaintenanceSlotCleared = "maintenance:slot-cleared"
	EventDeleteAudit            = "delete:audit"
)

// Slot-cleared reasons recorded by the maintenance sweep
const (
	SlotClearedMissingRun   = "missingRun"
	SlotClearedTerminal     = "terminal"
	SlotClearedLookupError  = "lookupError"
	SlotClearedExpiredLease = "expiredLease"
)

// LogEvent is an append-only audit record. Events are never mutated,
// only appended and scanned.
type LogEvent struct {
	ID         string                 `json:"id"`
	TemplateID string                 `json:"template_id" badgerhold:"index"`
	RunID      string                 `json:"run_id" badgerhold:"index"`
	Type       string                 `json:"type" badgerhold:"index"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
	At         time.Time              `json:"at" badgerhold:"index"`
}
