package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vendo/internal/interfaces"
	"github.com/ternarybob/vendo/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// DiffStorage implements the DiffStorage interface for Badger
type DiffStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewDiffStorage creates a new DiffStorage instance
func NewDiffStorage(db *BadgerDB, logger arbor.ILogger) interfaces.DiffStorage {
	return &DiffStorage{
		db:     db,
		logger: logger,
	}
}

func (s *DiffStorage) SaveDiff(ctx context.Context, diff *models.Diff) error {
	if diff.ID == "" {
		return fmt.Errorf("diff ID is required")
	}
	if diff.RunID == "" {
		return fmt.Errorf("diff run ID is required")
	}

	if err := s.db.Store().Upsert(diff.ID, diff); err != nil {
		return fmt.Errorf("failed to save diff: %w", err)
	}
	return nil
}

func (s *DiffStorage) GetDiff(ctx context.Context, id string) (*models.Diff, error) {
	var diff models.Diff
	if err := s.db.Store().Get(id, &diff); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("%w: %s", interfaces.ErrDiffNotFound, id)
		}
		return nil, fmt.Errorf("failed to get diff: %w", err)
	}
	return &diff, nil
}

func (s *DiffStorage) ListDiffsByRun(ctx context.Context, runID string) ([]*models.Diff, error) {
	var diffs []models.Diff
	query := badgerhold.Where("RunID").Eq(runID).SortBy("CreatedAt")
	if err := s.db.Store().Find(&diffs, query); err != nil {
		return nil, fmt.Errorf("failed to list diffs: %w", err)
	}

	result := make([]*models.Diff, len(diffs))
	for i := range diffs {
		result[i] = &diffs[i]
	}
	return result, nil
}

func (s *DiffStorage) UpdateDiff(ctx context.Context, diff *models.Diff) error {
	return s.SaveDiff(ctx, diff)
}

func (s *DiffStorage) CountDiffsByRuns(ctx context.Context, runIDs []string) (int, error) {
	if len(runIDs) == 0 {
		return 0, nil
	}

	ids := make([]interface{}, len(runIDs))
	for i, id := range runIDs {
		ids[i] = id
	}

	count, err := s.db.Store().Count(&models.Diff{}, badgerhold.Where("RunID").In(ids...))
	if err != nil {
		return 0, fmt.Errorf("failed to count diffs: %w", err)
	}
	return int(count), nil
}

func (s *DiffStorage) DeleteDiffsByRuns(ctx context.Context, runIDs []string) (int, error) {
	if len(runIDs) == 0 {
		return 0, nil
	}

	count, err := s.CountDiffsByRuns(ctx, runIDs)
	if err != nil {
		return 0, err
	}

	ids := make([]interface{}, len(runIDs))
	for i, id := range runIDs {
		ids[i] = id
	}

	if err := s.db.Store().DeleteMatching(&models.Diff{}, badgerhold.Where("RunID").In(ids...)); err != nil {
		return 0, fmt.Errorf("failed to delete diffs: %w", err)
	}
	return count, nil
}
