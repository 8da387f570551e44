package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vendo/internal/common"
	"github.com/ternarybob/vendo/internal/interfaces"
	"github.com/ternarybob/vendo/internal/models"
)

// ClientFactory builds a catalog client for a destination. The sync
// service goes through a factory so tests can substitute a fake client.
type ClientFactory func(dest *models.DestinationConfig) interfaces.CatalogClient

// Service pushes a run's staged diffs into the external catalog.
// Diffs are processed sequentially so external write ordering stays
// deterministic for audit purposes.
type Service struct {
	runs      interfaces.RunStorage
	templates interfaces.TemplateStorage
	diffs     interfaces.DiffStorage
	staging   interfaces.StagingStorage
	factory   ClientFactory
	namespace string
	retry     retryPolicy
	logger    arbor.ILogger
}

// NewService creates a new catalog sync service
func NewService(
	runs interfaces.RunStorage,
	templates interfaces.TemplateStorage,
	diffs interfaces.DiffStorage,
	staging interfaces.StagingStorage,
	factory ClientFactory,
	cfg common.CatalogConfig,
	logger arbor.ILogger,
) *Service {
	return &Service{
		runs:      runs,
		templates: templates,
		diffs:     diffs,
		staging:   staging,
		factory:   factory,
		namespace: cfg.Namespace,
		retry:     newRetryPolicy(cfg.MaxAttempts, cfg.RetryBaseDelay, cfg.RetryMaxDelay),
		logger:    logger,
	}
}

// DefaultClientFactory builds real HTTP clients, filling in unset
// destination fields from the configured defaults.
func DefaultClientFactory(cfg common.CatalogConfig, logger arbor.ILogger) ClientFactory {
	return func(dest *models.DestinationConfig) interfaces.CatalogClient {
		baseURL := cfg.BaseURL
		apiKey := cfg.APIKey
		if dest != nil {
			if dest.BaseURL != "" {
				baseURL = dest.BaseURL
			}
			if dest.APIKey != "" {
				apiKey = dest.APIKey
			}
		}
		return NewClient(baseURL, apiKey,
			WithLogger(logger),
			WithRateLimit(cfg.RateLimit),
		)
	}
}

// UpsertForRun pushes the run's selected diffs to the destination catalog.
// One diff's failure is recorded on that diff and never aborts the batch.
func (s *Service) UpsertForRun(ctx context.Context, runID string, dest *models.DestinationConfig, opts models.SyncOptions) (*models.SyncReport, error) {
	run, err := s.runs.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	tpl, err := s.templates.GetTemplate(ctx, run.TemplateID)
	if err != nil {
		return nil, err
	}
	diffs, err := s.diffs.ListDiffsByRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list diffs: %w", err)
	}

	namespace := s.namespace
	if dest != nil && dest.Namespace != "" {
		namespace = dest.Namespace
	}
	client := s.factory(dest)

	report := &models.SyncReport{RunID: runID}

	for _, diff := range diffs {
		if !s.selected(diff, opts) {
			continue
		}
		report.Processed++

		item := models.SyncItemResult{DiffID: diff.ID, ExternalID: diff.ExternalID}

		var action string
		var outcomeErr error
		if diff.Type == models.DiffTypeDelete {
			action, outcomeErr = s.syncDelete(ctx, client, tpl, diff, namespace, &item)
		} else {
			action, outcomeErr = s.syncUpsert(ctx, client, tpl, diff, namespace, &item)
		}

		s.recordOutcome(ctx, diff, action, outcomeErr, &item)

		switch {
		case outcomeErr != nil:
			report.Failed++
		case action == models.PublishActionCreated:
			report.Created++
		case action == models.PublishActionUpdated:
			report.Updated++
		case action == models.PublishActionArchived:
			report.Archived++
		default:
			report.Skipped++
		}

		report.Items = append(report.Items, item)
	}

	s.logger.Info().
		Str("run_id", runID).
		Int("processed", report.Processed).
		Int("created", report.Created).
		Int("updated", report.Updated).
		Int("skipped", report.Skipped).
		Int("archived", report.Archived).
		Int("failed", report.Failed).
		Msg("Catalog sync completed")

	return report, nil
}

// selected applies the run-level selection policy to one diff. The
// delete override admits delete diffs past the adds-only filter, but a
// rejected diff is never synced regardless of overrides.
func (s *Service) selected(diff *models.Diff, opts models.SyncOptions) bool {
	switch {
	case diff.Type == models.DiffTypeDelete:
		if !opts.IncludeDeletes {
			return false
		}
	case opts.AddsOnly && diff.Type != models.DiffTypeAdd:
		return false
	}
	if diff.Approved() {
		return true
	}
	return !opts.ApprovedOnly && diff.Unresolved()
}

// syncDelete archives the external item and marks it deleted. Idempotent:
// an absent or already archived-and-marked item is a skip.
func (s *Service) syncDelete(ctx context.Context, client interfaces.CatalogClient, tpl *models.Template, diff *models.Diff, namespace string, item *models.SyncItemResult) (string, error) {
	handle := Handle(tpl.SupplierID, diff.ExternalID)
	item.Handle = handle

	product, err := s.findByHandle(ctx, client, handle)
	if err != nil {
		return "", err
	}
	if product == nil {
		return models.PublishActionSkipped, nil
	}

	fields, err := s.listMetafields(ctx, client, product.ID)
	if err != nil {
		return "", err
	}
	if product.Archived && metafieldValue(fields, namespace, models.MetafieldKeyDeleteMark) != "" {
		return models.PublishActionSkipped, nil
	}

	if err := s.retry.do(ctx, func() error {
		return client.ArchiveProduct(ctx, product.ID)
	}); err != nil {
		return "", err
	}
	if err := s.retry.do(ctx, func() error {
		return client.UpsertMetafield(ctx, product.ID, models.Metafield{
			Namespace: namespace,
			Key:       models.MetafieldKeyDeleteMark,
			Type:      models.MetafieldTypeText,
			Value:     time.Now().UTC().Format(time.RFC3339),
		})
	}); err != nil {
		return "", err
	}

	return models.PublishActionArchived, nil
}

// syncUpsert creates or updates the external item for an add/change diff
func (s *Service) syncUpsert(ctx context.Context, client interfaces.CatalogClient, tpl *models.Template, diff *models.Diff, namespace string, item *models.SyncItemResult) (string, error) {
	if diff.After == nil {
		return "", errors.New("diff has no after snapshot")
	}

	preview := BuildPreview(diff.After, tpl.SupplierID, diff.ExternalID, namespace)
	item.Handle = preview.Handle

	if validation := ValidatePreview(preview); !validation.OK {
		return "", fmt.Errorf("preview validation failed: %v", validation.Errors)
	}

	product, err := s.findByHandle(ctx, client, preview.Handle)
	if err != nil {
		return "", err
	}

	var existingFields []models.Metafield
	action := models.PublishActionCreated

	if product == nil {
		if product, err = s.createProduct(ctx, client, preview); err != nil {
			return "", err
		}
	} else {
		if existingFields, err = s.listMetafields(ctx, client, product.ID); err != nil {
			return "", err
		}
		// Hash-skip: an unchanged content hash means nothing to write
		if metafieldValue(existingFields, namespace, models.MetafieldKeyContentHash) == preview.ContentHash {
			item.ExternalID = product.ID
			return models.PublishActionSkipped, nil
		}
		if err := s.retry.do(ctx, func() error {
			return client.UpdateProduct(ctx, product.ID, preview)
		}); err != nil {
			return "", err
		}
		action = models.PublishActionUpdated
	}
	item.ExternalID = product.ID

	for _, field := range preview.Metafields {
		f := field
		if err := s.retry.do(ctx, func() error {
			return client.UpsertMetafield(ctx, product.ID, f)
		}); err != nil {
			return "", err
		}
	}

	if product.VariantID != "" {
		if err := s.retry.do(ctx, func() error {
			return client.UpdateVariant(ctx, product.VariantID, preview.Variant)
		}); err != nil {
			return "", err
		}
	}

	if err := s.reconcileImages(ctx, client, product.ID, preview.Images, existingFields, namespace); err != nil {
		return "", err
	}

	return action, nil
}

// reconcileImages uploads only image URLs the catalog has not seen before,
// tracked through the image-sources metafield so re-syncs never duplicate
// uploads.
func (s *Service) reconcileImages(ctx context.Context, client interfaces.CatalogClient, productID string, images []string, existingFields []models.Metafield, namespace string) error {
	if len(images) == 0 {
		return nil
	}

	seen := make(map[string]bool)
	var known []string
	if raw := metafieldValue(existingFields, namespace, models.MetafieldKeyImageSources); raw != "" {
		if err := json.Unmarshal([]byte(raw), &known); err == nil {
			for _, u := range known {
				seen[u] = true
			}
		}
	}

	uploaded := false
	for _, u := range images {
		if seen[u] {
			continue
		}
		if err := s.retry.do(ctx, func() error {
			return client.CreateImage(ctx, productID, u)
		}); err != nil {
			return err
		}
		seen[u] = true
		known = append(known, u)
		uploaded = true
	}

	if !uploaded {
		return nil
	}

	encoded, err := json.Marshal(known)
	if err != nil {
		return fmt.Errorf("failed to encode image sources: %w", err)
	}
	return s.retry.do(ctx, func() error {
		return client.UpsertMetafield(ctx, productID, models.Metafield{
			Namespace: namespace,
			Key:       models.MetafieldKeyImageSources,
			Type:      models.MetafieldTypeJSON,
			Value:     string(encoded),
		})
	})
}

// recordOutcome writes the publish outcome onto the diff and mirrors it
// best-effort onto the staging row
func (s *Service) recordOutcome(ctx context.Context, diff *models.Diff, action string, outcomeErr error, item *models.SyncItemResult) {
	now := time.Now()
	outcome := &models.PublishOutcome{
		Action:    action,
		ProductID: item.ExternalID,
		Handle:    item.Handle,
		At:        &now,
	}

	stagingStatus := models.StagingPublishOK
	stagingError := ""
	if outcomeErr != nil {
		outcome.Action = ""
		outcome.Error = outcomeErr.Error()
		var apiErr *APIError
		if errors.As(outcomeErr, &apiErr) {
			outcome.Detail = map[string]interface{}{
				"status_code": apiErr.StatusCode,
				"endpoint":    apiErr.Endpoint,
			}
		}
		stagingStatus = models.StagingPublishError
		stagingError = outcomeErr.Error()
		item.Error = outcomeErr.Error()
		s.logger.Warn().
			Str("diff_id", diff.ID).
			Str("external_id", diff.ExternalID).
			Err(outcomeErr).
			Msg("Catalog sync item failed")
	} else {
		item.Action = action
	}

	diff.Validation.Publish = outcome
	if err := s.diffs.UpdateDiff(ctx, diff); err != nil {
		s.logger.Error().Err(err).Str("diff_id", diff.ID).Msg("Failed to record publish outcome")
	}

	if err := s.staging.MarkPublishStatus(ctx, diff.RunID, diff.ExternalID, stagingStatus, stagingError); err != nil {
		s.logger.Debug().Err(err).Str("diff_id", diff.ID).Msg("Failed to mark staging publish status")
	}
}

func (s *Service) findByHandle(ctx context.Context, client interfaces.CatalogClient, handle string) (*models.CatalogProduct, error) {
	var product *models.CatalogProduct
	err := s.retry.do(ctx, func() error {
		var err error
		product, err = client.FindProductByHandle(ctx, handle)
		return err
	})
	return product, err
}

func (s *Service) createProduct(ctx context.Context, client interfaces.CatalogClient, preview *models.CatalogPreview) (*models.CatalogProduct, error) {
	var product *models.CatalogProduct
	err := s.retry.do(ctx, func() error {
		var err error
		product, err = client.CreateProduct(ctx, preview)
		return err
	})
	return product, err
}

func (s *Service) listMetafields(ctx context.Context, client interfaces.CatalogClient, productID string) ([]models.Metafield, error) {
	var fields []models.Metafield
	err := s.retry.do(ctx, func() error {
		var err error
		fields, err = client.ListMetafields(ctx, productID)
		return err
	})
	return fields, err
}

func metafieldValue(fields []models.Metafield, namespace, key string) string {
	for _, f := range fields {
		if f.Namespace == namespace && f.Key == key {
			return f.Value
		}
	}
	return ""
}
