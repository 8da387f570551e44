package models

import (
	"time"
)

// Publish status markers on staging rows (best-effort mirror of the
// diff's publish outcome, used for operator-facing listings)
const (
	StagingPublishOK    = "ok"
	StagingPublishError = "error"
)

// StagingRow is one row of a template's working set produced by the
// staging pipeline. The delete planner counts these; the sync engine
// mirrors per-item publish outcomes onto them.
type StagingRow struct {
	ID            string    `json:"id"`
	TemplateID    string    `json:"template_id" badgerhold:"index"`
	RunID         string    `json:"run_id" badgerhold:"index"`
	ExternalID    string    `json:"external_id" badgerhold:"index"`
	Status        string    `json:"status,omitempty"`
	PublishStatus string    `json:"publish_status,omitempty"`
	PublishError  string    `json:"publish_error,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ProductSource records a discovered supplier URL for a template
type ProductSource struct {
	ID           string    `json:"id"`
	TemplateID   string    `json:"template_id" badgerhold:"index"`
	ExternalID   string    `json:"external_id"`
	URL          string    `json:"url"`
	DiscoveredAt time.Time `json:"discovered_at"`
}
