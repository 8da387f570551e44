package models

// MetafieldType is the external catalog's value type for a metafield
type MetafieldType string

const (
	MetafieldTypeText    MetafieldType = "single_line_text_field"
	MetafieldTypeInteger MetafieldType = "number_integer"
	MetafieldTypeDecimal MetafieldType = "number_decimal"
	MetafieldTypeList    MetafieldType = "list.single_line_text_field"
	MetafieldTypeJSON    MetafieldType = "json"
)

// Vendo-owned metafield keys on external products
const (
	MetafieldKeySpecs        = "specs_json"
	MetafieldKeySupplierID   = "supplier_external_id"
	MetafieldKeyContentHash  = "content_hash"
	MetafieldKeyImageSources = "image_sources"
	MetafieldKeyDeleteMark   = "delete_mark"
)

// Metafield is one key/value attached to an external catalog product
type Metafield struct {
	Namespace string        `json:"namespace"`
	Key       string        `json:"key"`
	Type      MetafieldType `json:"type"`
	Value     string        `json:"value"`
}

// PreviewVariant is the single variant of a catalog write payload
type PreviewVariant struct {
	SKU            string `json:"sku"`
	Price          string `json:"price"`
	CompareAtPrice string `json:"compare_at_price,omitempty"`
	WeightGrams    int    `json:"weight_grams"`
}

// CatalogPreview is the external-catalog write payload built from a
// diff's after snapshot. It is pure data; building one has no side
// effects.
type CatalogPreview struct {
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Vendor      string         `json:"vendor,omitempty"`
	Category    string         `json:"category,omitempty"`
	Handle      string         `json:"handle"`
	Variant     PreviewVariant `json:"variant"`
	Metafields  []Metafield    `json:"metafields"`
	ContentHash string         `json:"content_hash"`
	Images      []string       `json:"images,omitempty"`
}

// PreviewValidation is the result of validating a preview. Errors holds
// the complete defect set, never just the first violation.
type PreviewValidation struct {
	OK     bool     `json:"ok"`
	Errors []string `json:"errors,omitempty"`
}

// CatalogProduct is the external catalog's view of a product
type CatalogProduct struct {
	ID        string `json:"id"`
	Handle    string `json:"handle"`
	Title     string `json:"title"`
	VariantID string `json:"variant_id,omitempty"`
	Archived  bool   `json:"archived"`
}

// DestinationConfig identifies the external catalog to sync into
type DestinationConfig struct {
	BaseURL   string `json:"base_url" validate:"required,url"`
	APIKey    string `json:"api_key" validate:"required"`
	Namespace string `json:"namespace,omitempty"`
}

// SyncOptions select which diffs of a run are pushed
type SyncOptions struct {
	ApprovedOnly   bool `json:"approved_only"`   // false also includes unresolved diffs
	AddsOnly       bool `json:"adds_only"`       // restrict to add diffs
	IncludeDeletes bool `json:"include_deletes"` // explicit override for delete diffs
}

// SyncItemResult is the per-diff outcome of a catalog sync
type SyncItemResult struct {
	DiffID     string `json:"diff_id"`
	ExternalID string `json:"external_id"`
	Handle     string `json:"handle,omitempty"`
	Action     string `json:"action,omitempty"`
	Error      string `json:"error,omitempty"`
}

// SyncReport aggregates per-item outcomes for a run sync
type SyncReport struct {
	RunID     string           `json:"run_id"`
	Processed int              `json:"processed"`
	Created   int              `json:"created"`
	Updated   int              `json:"updated"`
	Skipped   int              `json:"skipped"`
	Archived  int              `json:"archived"`
	Failed    int              `json:"failed"`
	Items     []SyncItemResult `json:"items"`
}
