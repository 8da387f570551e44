package models

import (
	"time"
)

// SlotLease records ownership of a template's single prepare slot.
// The lease is the sole serialization mechanism for prepare runs: while a
// lease is held, no other run may be promoted for the template. AcquiredAt
// lets the maintenance sweep reclaim leases abandoned by a crashed process.
type SlotLease struct {
	RunID      string    `json:"run_id"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// Age returns how long the lease has been held
func (l *SlotLease) Age(now time.Time) time.Duration {
	return now.Sub(l.AcquiredAt)
}

// Template represents a configured supplier import target.
// Each template owns exactly one prepare slot; the slot lease is set and
// cleared only by the orchestrator and the maintenance sweep.
type Template struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	SupplierID string     `json:"supplier_id"`
	Slot       *SlotLease `json:"slot,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// SlotHeld returns true if the template's prepare slot is currently leased
func (t *Template) SlotHeld() bool {
	return t.Slot != nil && t.Slot.RunID != ""
}
