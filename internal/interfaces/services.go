package interfaces

import (
	"context"

	"github.com/ternarybob/vendo/internal/models"
)

// PreparePipeline - the external crawl/stage pipeline that a prepare run
// delegates to. Implementations must honor context cancellation and the
// run's cooperative cancel flag at safe checkpoints, returning
// orchestrator.ErrCancelled when cancellation is observed.
type PreparePipeline interface {
	Prepare(ctx context.Context, run *models.Run, tpl *models.Template) error
}

// CancelResult is the response for a cancel request
type CancelResult struct {
	OK              bool `json:"ok"`
	AlreadyTerminal bool `json:"already_terminal,omitempty"`
	ClearedSlot     bool `json:"cleared_slot,omitempty"`
}

// OrchestratorService - owns the single-slot-per-template invariant
type OrchestratorService interface {
	// EnqueuePrepare creates a queued run, appends the queue entry event
	// and kicks the template. Returns the run id immediately; the job
	// itself executes in the background.
	EnqueuePrepare(ctx context.Context, templateID string, options map[string]interface{}) (string, error)
	// StartNextQueued promotes at most one eligible queued run
	StartNextQueued(ctx context.Context, templateID string) error
	// KickTemplate promotes the next queued run when the slot is free;
	// no-op otherwise.
	KickTemplate(ctx context.Context, templateID string) error
	// RequestCancel sets the cooperative cancel flag. Idempotent; safe on
	// already-terminal runs.
	RequestCancel(ctx context.Context, runID string) (*CancelResult, error)
	// Sweep reconciles slot leases against run state
	Sweep(ctx context.Context) error
	// Stop drains the dispatcher and waits for in-flight jobs
	Stop()
}

// DeleteService - plans and executes template cascade deletes
type DeleteService interface {
	BuildDeletePlan(ctx context.Context, templateIDs []string) (*models.DeletePlan, error)
	// Execute performs the delete. dryRun returns counts without
	// mutation; force bypasses blockers.
	Execute(ctx context.Context, templateIDs []string, dryRun, force bool) (*models.DeleteResult, error)
}

// SyncService - pushes a run's staged diffs to the external catalog
type SyncService interface {
	UpsertForRun(ctx context.Context, runID string, dest *models.DestinationConfig, opts models.SyncOptions) (*models.SyncReport, error)
}

// Event is an in-process notification about run lifecycle changes
type Event struct {
	Type       string                 `json:"type"`
	TemplateID string                 `json:"template_id,omitempty"`
	RunID      string                 `json:"run_id,omitempty"`
	Data       map[string]interface{} `json:"data,omitempty"`
}

// EventService - in-process pub/sub for run lifecycle events
type EventService interface {
	Publish(ctx context.Context, event Event)
	Subscribe(handler func(Event)) func()
}

// SchedulerService - runs the maintenance sweep on a schedule
type SchedulerService interface {
	Start() error
	Stop() error
}
