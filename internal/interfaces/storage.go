package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/vendo/internal/models"
)

// TemplateStorage - interface for template persistence
type TemplateStorage interface {
	SaveTemplate(ctx context.Context, tpl *models.Template) error
	GetTemplate(ctx context.Context, id string) (*models.Template, error)
	// GetTemplates fetches templates by id; missing ids are silently
	// absent from the result.
	GetTemplates(ctx context.Context, ids []string) ([]*models.Template, error)
	ListTemplates(ctx context.Context) ([]*models.Template, error)
	// ListTemplatesWithSlot returns templates whose slot lease is held
	ListTemplatesWithSlot(ctx context.Context) ([]*models.Template, error)
	// UpdateSlot sets or clears (lease == nil) the template's slot lease
	UpdateSlot(ctx context.Context, templateID string, lease *models.SlotLease) error
	DeleteTemplate(ctx context.Context, id string) error
}

// RunStorage - interface for prepare run persistence
type RunStorage interface {
	SaveRun(ctx context.Context, run *models.Run) error
	GetRun(ctx context.Context, id string) (*models.Run, error)
	ListRunsByTemplate(ctx context.Context, templateID string, status models.RunStatus) ([]*models.Run, error)
	CountRunsByID(ctx context.Context, runIDs []string) (int, error)
	DeleteRunsByID(ctx context.Context, runIDs []string) (int, error)
}

// LogStorage - interface for append-only log events
type LogStorage interface {
	AppendEvent(ctx context.Context, event *models.LogEvent) error
	// RecentEventsByType returns up to limit events of the given type for
	// the template, newest first.
	RecentEventsByType(ctx context.Context, templateID, eventType string, limit int) ([]*models.LogEvent, error)
	// EventsSince returns events of the given type for any of the
	// templates with At after since.
	EventsSince(ctx context.Context, templateIDs []string, eventType string, since time.Time) ([]*models.LogEvent, error)
	// EventsForTemplates returns all events for the templates
	EventsForTemplates(ctx context.Context, templateIDs []string) ([]*models.LogEvent, error)
	CountByTemplates(ctx context.Context, templateIDs []string) (int, error)
	DeleteByTemplates(ctx context.Context, templateIDs []string) (int, error)
}

// DiffStorage - interface for staged diff persistence
type DiffStorage interface {
	SaveDiff(ctx context.Context, diff *models.Diff) error
	GetDiff(ctx context.Context, id string) (*models.Diff, error)
	// ListDiffsByRun returns the run's diffs ordered by creation time
	ListDiffsByRun(ctx context.Context, runID string) ([]*models.Diff, error)
	UpdateDiff(ctx context.Context, diff *models.Diff) error
	CountDiffsByRuns(ctx context.Context, runIDs []string) (int, error)
	DeleteDiffsByRuns(ctx context.Context, runIDs []string) (int, error)
}

// StagingStorage - interface for staging rows and product sources
type StagingStorage interface {
	SaveStagingRow(ctx context.Context, row *models.StagingRow) error
	GetStagingRow(ctx context.Context, runID, externalID string) (*models.StagingRow, error)
	// MarkPublishStatus records a best-effort publish status marker on the
	// staging row for runID/externalID; missing rows are not an error.
	MarkPublishStatus(ctx context.Context, runID, externalID, status, errorMsg string) error
	CountStagingByTemplates(ctx context.Context, templateIDs []string) (int, error)
	DeleteStagingByTemplates(ctx context.Context, templateIDs []string) (int, error)

	SaveProductSource(ctx context.Context, source *models.ProductSource) error
	CountSourcesByTemplates(ctx context.Context, templateIDs []string) (int, error)
	DeleteSourcesByTemplates(ctx context.Context, templateIDs []string) (int, error)
}

// StorageManager provides access to all storage interfaces
type StorageManager interface {
	TemplateStorage() TemplateStorage
	RunStorage() RunStorage
	LogStorage() LogStorage
	DiffStorage() DiffStorage
	StagingStorage() StagingStorage
	Close() error
}
