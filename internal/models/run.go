package models

import (
	"time"
)

// RunStatus represents the lifecycle state of a prepare run.
// Transitions: queued -> preparing -> {staged, failed, cancelled}.
// Once preparing, a run either finishes or dies; there is no way back to
// queued. "stuck" and "success" are legacy terminal statuses still
// recognized by the maintenance sweep.
type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusPreparing RunStatus = "preparing"
	RunStatusStaged    RunStatus = "staged"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"

	// Legacy terminal statuses (pre-rename data)
	RunStatusStuck   RunStatus = "stuck"
	RunStatusSuccess RunStatus = "success"
)

// Terminal returns true if the status is a terminal state
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusStaged, RunStatusFailed, RunStatusCancelled, RunStatusStuck, RunStatusSuccess:
		return true
	}
	return false
}

// RunControl carries cooperative control flags for an in-flight run.
// CancelRequested is polled by the prepare pipeline at safe checkpoints;
// it never preempts work already in progress.
type RunControl struct {
	CancelRequested bool `json:"cancel_requested"`
}

// RunSummary is the free-form summary document embedded in a run
type RunSummary struct {
	Options   map[string]interface{} `json:"options,omitempty"`
	Preflight map[string]interface{} `json:"preflight,omitempty"`
	Control   RunControl             `json:"control"`
	Error     string                 `json:"error,omitempty"`
}

// Run represents one execution of the prepare pipeline for a template
type Run struct {
	ID         string     `json:"id"`
	TemplateID string     `json:"template_id" badgerhold:"index"`
	Status     RunStatus  `json:"status" badgerhold:"index"`
	Summary    RunSummary `json:"summary"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// NewRun creates a queued run for a template
func NewRun(id, templateID string, options map[string]interface{}) *Run {
	return &Run{
		ID:         id,
		TemplateID: templateID,
		Status:     RunStatusQueued,
		Summary:    RunSummary{Options: options},
		CreatedAt:  time.Now(),
	}
}

// Terminal returns true if the run is in a terminal state
func (r *Run) Terminal() bool {
	return r.Status.Terminal()
}

// MarkPreparing marks the run as started
func (r *Run) MarkPreparing() {
	r.Status = RunStatusPreparing
	now := time.Now()
	r.StartedAt = &now
}

// MarkStaged marks the run as successfully completed
func (r *Run) MarkStaged() {
	r.Status = RunStatusStaged
	now := time.Now()
	r.FinishedAt = &now
}

// MarkFailed marks the run as failed with an error message
func (r *Run) MarkFailed(errorMsg string) {
	r.Status = RunStatusFailed
	r.Summary.Error = errorMsg
	now := time.Now()
	r.FinishedAt = &now
}

// MarkCancelled marks the run as cancelled
func (r *Run) MarkCancelled() {
	r.Status = RunStatusCancelled
	now := time.Now()
	r.FinishedAt = &now
}
