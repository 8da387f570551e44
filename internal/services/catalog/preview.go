package catalog

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/ternarybob/vendo/internal/models"
)

const ouncesToGrams = 28.3495

var (
	slugInvalid  = regexp.MustCompile(`[^a-z0-9]+`)
	slugCollapse = regexp.MustCompile(`-{2,}`)
)

// Handle returns the deterministic product handle for a supplier item.
// The same supplier id and external id always yield the same handle, which
// is what makes catalog upserts idempotent.
func Handle(supplierID, externalID string) string {
	slug := strings.ToLower(supplierID + "-" + externalID)
	slug = slugInvalid.ReplaceAllString(slug, "-")
	slug = slugCollapse.ReplaceAllString(slug, "-")
	return strings.Trim(slug, "-")
}

// BuildPreview maps a staged snapshot into the external-catalog write
// payload. Pure; no catalog calls are made.
//
// Pricing: the catalog price is the wholesale price when one is present
// and strictly below MSRP, with MSRP carried as the compare-at price.
// Otherwise the MSRP is the price and no compare-at is set.
func BuildPreview(after *models.ProductSnapshot, supplierID, externalID, namespace string) *models.CatalogPreview {
	price := after.Price
	compareAt := ""
	if after.WholesalePrice != "" && decimalLess(after.WholesalePrice, after.Price) {
		price = after.WholesalePrice
		compareAt = after.Price
	}

	preview := &models.CatalogPreview{
		Title:       after.Title,
		Description: after.Description,
		Vendor:      after.Vendor,
		Category:    after.Category,
		Handle:      Handle(supplierID, externalID),
		Variant: models.PreviewVariant{
			SKU:            after.SKU,
			Price:          price,
			CompareAtPrice: compareAt,
			WeightGrams:    int(math.Round(after.WeightOz * ouncesToGrams)),
		},
		Images:      after.Images,
		ContentHash: ContentHash(after),
	}

	specsJSON, _ := json.Marshal(after.Specs)
	preview.Metafields = append(preview.Metafields,
		models.Metafield{
			Namespace: namespace,
			Key:       models.MetafieldKeySpecs,
			Type:      models.MetafieldTypeJSON,
			Value:     string(specsJSON),
		},
		models.Metafield{
			Namespace: namespace,
			Key:       models.MetafieldKeySupplierID,
			Type:      models.MetafieldTypeText,
			Value:     externalID,
		},
		models.Metafield{
			Namespace: namespace,
			Key:       models.MetafieldKeyContentHash,
			Type:      models.MetafieldTypeText,
			Value:     preview.ContentHash,
		},
	)
	preview.Metafields = append(preview.Metafields, specMetafields(after.Specs, namespace)...)

	return preview
}

// specMetafields builds one discrete, typed metafield per spec key so the
// catalog can filter and sort on them individually. Keys are emitted in
// sorted order for deterministic payloads.
func specMetafields(specs map[string]interface{}, namespace string) []models.Metafield {
	if len(specs) == 0 {
		return nil
	}

	keys := make([]string, 0, len(specs))
	for k := range specs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var fields []models.Metafield
	for _, key := range keys {
		field, ok := specMetafield(specs[key], namespace, key)
		if ok {
			fields = append(fields, field)
		}
	}
	return fields
}

func specMetafield(value interface{}, namespace, key string) (models.Metafield, bool) {
	field := models.Metafield{Namespace: namespace, Key: specKey(key)}

	switch v := value.(type) {
	case string:
		field.Type = models.MetafieldTypeText
		field.Value = v

	case float64:
		// JSON numbers decode as float64; whole values are integers
		if v == math.Trunc(v) {
			field.Type = models.MetafieldTypeInteger
			field.Value = fmt.Sprintf("%d", int64(v))
		} else {
			field.Type = models.MetafieldTypeDecimal
			field.Value = fmt.Sprintf("%g", v)
		}

	case int:
		field.Type = models.MetafieldTypeInteger
		field.Value = fmt.Sprintf("%d", v)

	case bool:
		field.Type = models.MetafieldTypeText
		field.Value = fmt.Sprintf("%t", v)

	case []interface{}:
		items := make([]string, 0, len(v))
		for _, item := range v {
			items = append(items, fmt.Sprintf("%v", item))
		}
		encoded, err := json.Marshal(items)
		if err != nil {
			return field, false
		}
		field.Type = models.MetafieldTypeList
		field.Value = string(encoded)

	case map[string]interface{}:
		encoded, err := json.Marshal(v)
		if err != nil {
			return field, false
		}
		field.Type = models.MetafieldTypeJSON
		field.Value = string(encoded)

	case nil:
		return field, false

	default:
		field.Type = models.MetafieldTypeText
		field.Value = fmt.Sprintf("%v", v)
	}

	return field, true
}

// specKey normalizes a spec key into a metafield key
func specKey(key string) string {
	k := strings.ToLower(strings.TrimSpace(key))
	k = slugInvalid.ReplaceAllString(k, "_")
	return strings.Trim(k, "_")
}

// decimalLess compares two decimal strings numerically. Malformed values
// compare as not-less, which drops the compare-at price rather than
// producing a bogus one.
func decimalLess(a, b string) bool {
	var fa, fb float64
	if _, err := fmt.Sscanf(strings.TrimSpace(a), "%f", &fa); err != nil {
		return false
	}
	if _, err := fmt.Sscanf(strings.TrimSpace(b), "%f", &fb); err != nil {
		return false
	}
	return fa < fb
}
