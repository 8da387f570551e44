package common

import (
	"regexp"

	"github.com/google/uuid"
)

// runIDPattern matches the run id shape (run_<uuid>). The delete planner
// uses it to filter stray non-run references out of log event payloads.
var runIDPattern = regexp.MustCompile(`^run_[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// NewTemplateID generates a unique template ID with the "tpl_" prefix
func NewTemplateID() string {
	return "tpl_" + uuid.New().String()
}

// NewRunID generates a unique run ID with the "run_" prefix
func NewRunID() string {
	return "run_" + uuid.New().String()
}

// NewDiffID generates a unique diff ID with the "diff_" prefix
func NewDiffID() string {
	return "diff_" + uuid.New().String()
}

// NewEventID generates a unique log event ID with the "evt_" prefix
func NewEventID() string {
	return "evt_" + uuid.New().String()
}

// NewStagingID generates a unique staging row ID with the "stg_" prefix
func NewStagingID() string {
	return "stg_" + uuid.New().String()
}

// NewSourceID generates a unique product source ID with the "src_" prefix
func NewSourceID() string {
	return "src_" + uuid.New().String()
}

// IsRunID reports whether s has the run id shape
func IsRunID(s string) bool {
	return runIDPattern.MatchString(s)
}
