package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vendo/internal/interfaces"
	"github.com/ternarybob/vendo/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// StagingStorage implements the StagingStorage interface for Badger.
// Covers both staging rows and product-source rows; the delete planner
// counts each independently.
type StagingStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewStagingStorage creates a new StagingStorage instance
func NewStagingStorage(db *BadgerDB, logger arbor.ILogger) interfaces.StagingStorage {
	return &StagingStorage{
		db:     db,
		logger: logger,
	}
}

func (s *StagingStorage) SaveStagingRow(ctx context.Context, row *models.StagingRow) error {
	if row.ID == "" {
		return fmt.Errorf("staging row ID is required")
	}
	row.UpdatedAt = time.Now()

	if err := s.db.Store().Upsert(row.ID, row); err != nil {
		return fmt.Errorf("failed to save staging row: %w", err)
	}
	return nil
}

func (s *StagingStorage) GetStagingRow(ctx context.Context, runID, externalID string) (*models.StagingRow, error) {
	var rows []models.StagingRow
	query := badgerhold.Where("RunID").Eq(runID).And("ExternalID").Eq(externalID).Limit(1)
	if err := s.db.Store().Find(&rows, query); err != nil {
		return nil, fmt.Errorf("failed to get staging row: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// MarkPublishStatus mirrors a publish outcome onto the staging row.
// Best-effort: a missing row is not an error.
func (s *StagingStorage) MarkPublishStatus(ctx context.Context, runID, externalID, status, errorMsg string) error {
	row, err := s.GetStagingRow(ctx, runID, externalID)
	if err != nil {
		return err
	}
	if row == nil {
		return nil
	}

	row.PublishStatus = status
	row.PublishError = errorMsg
	return s.SaveStagingRow(ctx, row)
}

func (s *StagingStorage) CountStagingByTemplates(ctx context.Context, templateIDs []string) (int, error) {
	if len(templateIDs) == 0 {
		return 0, nil
	}

	ids := make([]interface{}, len(templateIDs))
	for i, id := range templateIDs {
		ids[i] = id
	}

	count, err := s.db.Store().Count(&models.StagingRow{}, badgerhold.Where("TemplateID").In(ids...))
	if err != nil {
		return 0, fmt.Errorf("failed to count staging rows: %w", err)
	}
	return int(count), nil
}

func (s *StagingStorage) DeleteStagingByTemplates(ctx context.Context, templateIDs []string) (int, error) {
	if len(templateIDs) == 0 {
		return 0, nil
	}

	count, err := s.CountStagingByTemplates(ctx, templateIDs)
	if err != nil {
		return 0, err
	}

	ids := make([]interface{}, len(templateIDs))
	for i, id := range templateIDs {
		ids[i] = id
	}

	if err := s.db.Store().DeleteMatching(&models.StagingRow{}, badgerhold.Where("TemplateID").In(ids...)); err != nil {
		return 0, fmt.Errorf("failed to delete staging rows: %w", err)
	}
	return count, nil
}

func (s *StagingStorage) SaveProductSource(ctx context.Context, source *models.ProductSource) error {
	if source.ID == "" {
		return fmt.Errorf("product source ID is required")
	}
	if source.DiscoveredAt.IsZero() {
		source.DiscoveredAt = time.Now()
	}

	if err := s.db.Store().Upsert(source.ID, source); err != nil {
		return fmt.Errorf("failed to save product source: %w", err)
	}
	return nil
}

func (s *StagingStorage) CountSourcesByTemplates(ctx context.Context, templateIDs []string) (int, error) {
	if len(templateIDs) == 0 {
		return 0, nil
	}

	ids := make([]interface{}, len(templateIDs))
	for i, id := range templateIDs {
		ids[i] = id
	}

	count, err := s.db.Store().Count(&models.ProductSource{}, badgerhold.Where("TemplateID").In(ids...))
	if err != nil {
		return 0, fmt.Errorf("failed to count product sources: %w", err)
	}
	return int(count), nil
}

func (s *StagingStorage) DeleteSourcesByTemplates(ctx context.Context, templateIDs []string) (int, error) {
	if len(templateIDs) == 0 {
		return 0, nil
	}

	count, err := s.CountSourcesByTemplates(ctx, templateIDs)
	if err != nil {
		return 0, err
	}

	ids := make([]interface{}, len(templateIDs))
	for i, id := range templateIDs {
		ids[i] = id
	}

	if err := s.db.Store().DeleteMatching(&models.ProductSource{}, badgerhold.Where("TemplateID").In(ids...)); err != nil {
		return 0, fmt.Errorf("failed to delete product sources: %w", err)
	}
	return count, nil
}
