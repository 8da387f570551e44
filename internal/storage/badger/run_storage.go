package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vendo/internal/interfaces"
	"github.com/ternarybob/vendo/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// RunStorage implements the RunStorage interface for Badger
type RunStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewRunStorage creates a new RunStorage instance
func NewRunStorage(db *BadgerDB, logger arbor.ILogger) interfaces.RunStorage {
	return &RunStorage{
		db:     db,
		logger: logger,
	}
}

func (s *RunStorage) SaveRun(ctx context.Context, run *models.Run) error {
	if run.ID == "" {
		return fmt.Errorf("run ID is required")
	}
	if run.TemplateID == "" {
		return fmt.Errorf("run template ID is required")
	}

	if err := s.db.Store().Upsert(run.ID, run); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

func (s *RunStorage) GetRun(ctx context.Context, id string) (*models.Run, error) {
	var run models.Run
	if err := s.db.Store().Get(id, &run); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("%w: %s", interfaces.ErrRunNotFound, id)
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return &run, nil
}

func (s *RunStorage) ListRunsByTemplate(ctx context.Context, templateID string, status models.RunStatus) ([]*models.Run, error) {
	query := badgerhold.Where("TemplateID").Eq(templateID)
	if status != "" {
		query = query.And("Status").Eq(status)
	}
	query = query.SortBy("CreatedAt").Reverse()

	var runs []models.Run
	if err := s.db.Store().Find(&runs, query); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	result := make([]*models.Run, len(runs))
	for i := range runs {
		result[i] = &runs[i]
	}
	return result, nil
}

func (s *RunStorage) CountRunsByID(ctx context.Context, runIDs []string) (int, error) {
	count := 0
	for _, id := range runIDs {
		var run models.Run
		if err := s.db.Store().Get(id, &run); err != nil {
			if err == badgerhold.ErrNotFound {
				continue
			}
			return 0, fmt.Errorf("failed to count runs: %w", err)
		}
		count++
	}
	return count, nil
}

func (s *RunStorage) DeleteRunsByID(ctx context.Context, runIDs []string) (int, error) {
	deleted := 0
	for _, id := range runIDs {
		if err := s.db.Store().Delete(id, &models.Run{}); err != nil {
			if err == badgerhold.ErrNotFound {
				continue
			}
			return deleted, fmt.Errorf("failed to delete run %s: %w", id, err)
		}
		deleted++
	}
	return deleted, nil
}
