package catalog

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/ternarybob/vendo/internal/models"
)

const maxFieldLength = 255

var (
	decimalPattern = regexp.MustCompile(`^-?\d+(\.\d+)?$`)
	integerPattern = regexp.MustCompile(`^-?\d+$`)
)

// ValidatePreview checks a preview against the catalog's write constraints.
// Every violation is collected so the caller sees the complete defect set,
// not just the first.
func ValidatePreview(preview *models.CatalogPreview) models.PreviewValidation {
	var errs []string

	if strings.TrimSpace(preview.Title) == "" {
		errs = append(errs, "title is required")
	}
	if strings.TrimSpace(preview.Handle) == "" {
		errs = append(errs, "handle is required")
	}

	sku := preview.Variant.SKU
	switch {
	case strings.TrimSpace(sku) == "":
		errs = append(errs, "sku is required")
	case utf8.RuneCountInString(sku) > maxFieldLength:
		errs = append(errs, fmt.Sprintf("sku exceeds %d characters", maxFieldLength))
	case strings.ContainsAny(sku, "\n\r"):
		errs = append(errs, "sku must not contain newlines")
	}

	if preview.Variant.Price != "" && !decimalPattern.MatchString(preview.Variant.Price) {
		errs = append(errs, fmt.Sprintf("price %q is not a valid decimal", preview.Variant.Price))
	}
	if preview.Variant.CompareAtPrice != "" && !decimalPattern.MatchString(preview.Variant.CompareAtPrice) {
		errs = append(errs, fmt.Sprintf("compare_at_price %q is not a valid decimal", preview.Variant.CompareAtPrice))
	}

	for _, field := range preview.Metafields {
		errs = append(errs, validateMetafield(field)...)
	}

	return models.PreviewValidation{
		OK:     len(errs) == 0,
		Errors: errs,
	}
}

func validateMetafield(field models.Metafield) []string {
	var errs []string

	switch field.Type {
	case models.MetafieldTypeDecimal:
		if !decimalPattern.MatchString(field.Value) {
			errs = append(errs, fmt.Sprintf("metafield %s: %q is not a valid decimal", field.Key, field.Value))
		}

	case models.MetafieldTypeInteger:
		if !integerPattern.MatchString(field.Value) {
			errs = append(errs, fmt.Sprintf("metafield %s: %q is not a valid integer", field.Key, field.Value))
		}

	case models.MetafieldTypeList:
		var items []string
		if err := json.Unmarshal([]byte(field.Value), &items); err != nil {
			errs = append(errs, fmt.Sprintf("metafield %s: value is not a JSON array of strings", field.Key))
			break
		}
		for i, item := range items {
			if utf8.RuneCountInString(item) > maxFieldLength {
				errs = append(errs, fmt.Sprintf("metafield %s: item %d exceeds %d characters", field.Key, i, maxFieldLength))
			}
			if strings.ContainsAny(item, "\n\r") {
				errs = append(errs, fmt.Sprintf("metafield %s: item %d must not contain newlines", field.Key, i))
			}
		}

	case models.MetafieldTypeJSON:
		if !json.Valid([]byte(field.Value)) {
			errs = append(errs, fmt.Sprintf("metafield %s: value is not valid JSON", field.Key))
		}
	}

	return errs
}
