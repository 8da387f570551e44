package models

import (
	"time"
)

// DiffType classifies a staged change against the external catalog
type DiffType string

const (
	DiffTypeAdd    DiffType = "add"
	DiffTypeChange DiffType = "change"
	DiffTypeDelete DiffType = "delete"
)

// Resolution is the caller's decision on a diff. An empty resolution
// means the diff is still unresolved.
type Resolution string

const (
	ResolutionApprove Resolution = "approve"
	ResolutionReject  Resolution = "reject"
)

// Publish actions recorded in a diff's publish outcome
const (
	PublishActionCreated  = "created"
	PublishActionUpdated  = "updated"
	PublishActionSkipped  = "skipped"
	PublishActionArchived = "archived"
)

// PublishOutcome records what the catalog sync engine did with a diff.
// Written only by the sync engine; one outcome per sync attempt.
type PublishOutcome struct {
	Action    string                 `json:"action,omitempty"`
	ProductID string                 `json:"product_id,omitempty"`
	Handle    string                 `json:"handle,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Detail    map[string]interface{} `json:"detail,omitempty"`
	At        *time.Time             `json:"at,omitempty"`
}

// DiffValidation is the free-form validation document on a diff
type DiffValidation struct {
	Publish *PublishOutcome `json:"publish,omitempty"`
}

// ProductSnapshot is the supplier-normalized view of one external item
type ProductSnapshot struct {
	Title          string                 `json:"title"`
	Description    string                 `json:"description,omitempty"`
	Vendor         string                 `json:"vendor,omitempty"`
	Category       string                 `json:"category,omitempty"`
	SKU            string                 `json:"sku,omitempty"`
	Price          string                 `json:"price,omitempty"`           // MSRP, decimal string
	WholesalePrice string                 `json:"wholesale_price,omitempty"` // decimal string
	WeightOz       float64                `json:"weight_oz,omitempty"`
	Images         []string               `json:"images,omitempty"`
	Specs          map[string]interface{} `json:"specs,omitempty"`
}

// Diff is one proposed change for one external item within a run.
// Created by the staging pipeline; mutated only by approval actions and by
// the catalog sync engine writing its outcome into Validation.Publish.
type Diff struct {
	ID         string           `json:"id"`
	RunID      string           `json:"run_id" badgerhold:"index"`
	ExternalID string           `json:"external_id"`
	Type       DiffType         `json:"diff_type" badgerhold:"index"`
	Before     *ProductSnapshot `json:"before,omitempty"`
	After      *ProductSnapshot `json:"after,omitempty"`
	Resolution Resolution       `json:"resolution,omitempty" badgerhold:"index"`
	Validation DiffValidation   `json:"validation"`
	CreatedAt  time.Time        `json:"created_at"`
}

// Approved returns true if the diff has been explicitly approved
func (d *Diff) Approved() bool {
	return d.Resolution == ResolutionApprove
}

// Unresolved returns true if no resolution has been recorded yet
func (d *Diff) Unresolved() bool {
	return d.Resolution == ""
}
