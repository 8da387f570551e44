package badger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vendo/internal/common"
	"github.com/ternarybob/vendo/internal/interfaces"
	"github.com/ternarybob/vendo/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// LogStorage implements the LogStorage interface for Badger.
// Events are append-only: there is no update path.
type LogStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewLogStorage creates a new LogStorage instance
func NewLogStorage(db *BadgerDB, logger arbor.ILogger) interfaces.LogStorage {
	return &LogStorage{
		db:     db,
		logger: logger,
	}
}

func (s *LogStorage) AppendEvent(ctx context.Context, event *models.LogEvent) error {
	if event.ID == "" {
		event.ID = common.NewEventID()
	}
	if event.At.IsZero() {
		event.At = time.Now()
	}

	if err := s.db.Store().Insert(event.ID, event); err != nil {
		return fmt.Errorf("failed to append log event: %w", err)
	}
	return nil
}

func (s *LogStorage) RecentEventsByType(ctx context.Context, templateID, eventType string, limit int) ([]*models.LogEvent, error) {
	query := badgerhold.Where("TemplateID").Eq(templateID).
		And("Type").Eq(eventType).
		SortBy("At").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}

	var events []models.LogEvent
	if err := s.db.Store().Find(&events, query); err != nil {
		return nil, fmt.Errorf("failed to query log events: %w", err)
	}

	result := make([]*models.LogEvent, len(events))
	for i := range events {
		result[i] = &events[i]
	}
	return result, nil
}

func (s *LogStorage) EventsSince(ctx context.Context, templateIDs []string, eventType string, since time.Time) ([]*models.LogEvent, error) {
	if len(templateIDs) == 0 {
		return nil, nil
	}

	ids := make([]interface{}, len(templateIDs))
	for i, id := range templateIDs {
		ids[i] = id
	}

	var events []models.LogEvent
	query := badgerhold.Where("TemplateID").In(ids...).
		And("Type").Eq(eventType).
		And("At").Gt(since)
	if err := s.db.Store().Find(&events, query); err != nil {
		return nil, fmt.Errorf("failed to query log events: %w", err)
	}

	result := make([]*models.LogEvent, len(events))
	for i := range events {
		result[i] = &events[i]
	}
	return result, nil
}

func (s *LogStorage) EventsForTemplates(ctx context.Context, templateIDs []string) ([]*models.LogEvent, error) {
	if len(templateIDs) == 0 {
		return nil, nil
	}

	ids := make([]interface{}, len(templateIDs))
	for i, id := range templateIDs {
		ids[i] = id
	}

	var events []models.LogEvent
	if err := s.db.Store().Find(&events, badgerhold.Where("TemplateID").In(ids...)); err != nil {
		return nil, fmt.Errorf("failed to query log events: %w", err)
	}

	sort.Slice(events, func(i, j int) bool { return events[i].At.Before(events[j].At) })

	result := make([]*models.LogEvent, len(events))
	for i := range events {
		result[i] = &events[i]
	}
	return result, nil
}

func (s *LogStorage) CountByTemplates(ctx context.Context, templateIDs []string) (int, error) {
	if len(templateIDs) == 0 {
		return 0, nil
	}

	ids := make([]interface{}, len(templateIDs))
	for i, id := range templateIDs {
		ids[i] = id
	}

	count, err := s.db.Store().Count(&models.LogEvent{}, badgerhold.Where("TemplateID").In(ids...))
	if err != nil {
		return 0, fmt.Errorf("failed to count log events: %w", err)
	}
	return int(count), nil
}

func (s *LogStorage) DeleteByTemplates(ctx context.Context, templateIDs []string) (int, error) {
	if len(templateIDs) == 0 {
		return 0, nil
	}

	count, err := s.CountByTemplates(ctx, templateIDs)
	if err != nil {
		return 0, err
	}

	ids := make([]interface{}, len(templateIDs))
	for i, id := range templateIDs {
		ids[i] = id
	}

	if err := s.db.Store().DeleteMatching(&models.LogEvent{}, badgerhold.Where("TemplateID").In(ids...)); err != nil {
		return 0, fmt.Errorf("failed to delete log events: %w", err)
	}
	return count, nil
}
