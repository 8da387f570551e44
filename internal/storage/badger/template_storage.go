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

// TemplateStorage implements the TemplateStorage interface for Badger
type TemplateStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewTemplateStorage creates a new TemplateStorage instance
func NewTemplateStorage(db *BadgerDB, logger arbor.ILogger) interfaces.TemplateStorage {
	return &TemplateStorage{
		db:     db,
		logger: logger,
	}
}

func (s *TemplateStorage) SaveTemplate(ctx context.Context, tpl *models.Template) error {
	if tpl.ID == "" {
		return fmt.Errorf("template ID is required")
	}
	if tpl.CreatedAt.IsZero() {
		tpl.CreatedAt = time.Now()
	}
	tpl.UpdatedAt = time.Now()

	if err := s.db.Store().Upsert(tpl.ID, tpl); err != nil {
		return fmt.Errorf("failed to save template: %w", err)
	}
	return nil
}

func (s *TemplateStorage) GetTemplate(ctx context.Context, id string) (*models.Template, error) {
	var tpl models.Template
	if err := s.db.Store().Get(id, &tpl); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("%w: %s", interfaces.ErrTemplateNotFound, id)
		}
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	return &tpl, nil
}

// GetTemplates fetches templates by id. Missing ids are silently absent
// from the result; callers treat a shorter result as not-found.
func (s *TemplateStorage) GetTemplates(ctx context.Context, ids []string) ([]*models.Template, error) {
	result := make([]*models.Template, 0, len(ids))
	for _, id := range ids {
		var tpl models.Template
		if err := s.db.Store().Get(id, &tpl); err != nil {
			if err == badgerhold.ErrNotFound {
				continue
			}
			return nil, fmt.Errorf("failed to get template %s: %w", id, err)
		}
		result = append(result, &tpl)
	}
	return result, nil
}

func (s *TemplateStorage) ListTemplates(ctx context.Context) ([]*models.Template, error) {
	var templates []models.Template
	if err := s.db.Store().Find(&templates, badgerhold.Where("ID").Ne("").SortBy("CreatedAt")); err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}

	result := make([]*models.Template, len(templates))
	for i := range templates {
		result[i] = &templates[i]
	}
	return result, nil
}

// ListTemplatesWithSlot returns templates whose slot lease is held.
// Badgerhold cannot query nested pointer fields, so this scans all
// templates; template counts are small.
func (s *TemplateStorage) ListTemplatesWithSlot(ctx context.Context) ([]*models.Template, error) {
	all, err := s.ListTemplates(ctx)
	if err != nil {
		return nil, err
	}

	var held []*models.Template
	for _, tpl := range all {
		if tpl.SlotHeld() {
			held = append(held, tpl)
		}
	}
	return held, nil
}

func (s *TemplateStorage) UpdateSlot(ctx context.Context, templateID string, lease *models.SlotLease) error {
	var tpl models.Template
	if err := s.db.Store().Get(templateID, &tpl); err != nil {
		if err == badgerhold.ErrNotFound {
			return fmt.Errorf("template not found: %s", templateID)
		}
		return fmt.Errorf("failed to get template: %w", err)
	}

	tpl.Slot = lease
	tpl.UpdatedAt = time.Now()

	if err := s.db.Store().Upsert(tpl.ID, &tpl); err != nil {
		return fmt.Errorf("failed to update template slot: %w", err)
	}
	return nil
}

func (s *TemplateStorage) DeleteTemplate(ctx context.Context, id string) error {
	if err := s.db.Store().Delete(id, &models.Template{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return fmt.Errorf("template not found: %s", id)
		}
		return fmt.Errorf("failed to delete template: %w", err)
	}
	return nil
}
