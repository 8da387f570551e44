package models

// Blocker codes for delete requests
const (
	BlockerActivePrepare     = "active_prepare"
	BlockerPublishInProgress = "publish_in_progress"
)

// Blocker names a business rule preventing a delete, with the affected
// template ids
type Blocker struct {
	Code      string   `json:"code"`
	Templates []string `json:"templates"`
}

// DeleteCounts holds advisory row counts for a delete plan. The counts
// drive the cascade-delete order and the dry-run preview.
type DeleteCounts struct {
	Logs           int `json:"logs"`
	StagingRows    int `json:"staging_rows"`
	ProductSources int `json:"product_sources"`
	Runs           int `json:"runs"`
	Diffs          int `json:"diffs"`
}

// DeletePlan is computed fresh on every delete request and never cached:
// blockers are time-sensitive.
type DeletePlan struct {
	Templates []*Template  `json:"templates"`
	RunIDs    []string     `json:"run_ids"`
	Counts    DeleteCounts `json:"counts"`
	Blockers  []Blocker    `json:"blockers,omitempty"`
}

// Blocked returns true if any blocker is present
func (p *DeletePlan) Blocked() bool {
	return len(p.Blockers) > 0
}

// BlockedTemplates returns the union of template ids across all blockers
func (p *DeletePlan) BlockedTemplates() []string {
	seen := make(map[string]bool)
	var ids []string
	for _, b := range p.Blockers {
		for _, id := range b.Templates {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// DeleteResult is the response for a delete request
type DeleteResult struct {
	OK       bool         `json:"ok"`
	DryRun   bool         `json:"dry_run,omitempty"`
	Blocked  bool         `json:"blocked,omitempty"`
	Deleted  int          `json:"deleted,omitempty"`
	Counts   DeleteCounts `json:"counts"`
	Blockers []Blocker    `json:"blockers,omitempty"`
}
