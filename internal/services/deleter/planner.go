package deleter

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vendo/internal/common"
	"github.com/ternarybob/vendo/internal/interfaces"
	"github.com/ternarybob/vendo/internal/models"
)

// Service plans and executes template cascade deletes
type Service struct {
	templates     interfaces.TemplateStorage
	runs          interfaces.RunStorage
	logs          interfaces.LogStorage
	diffs         interfaces.DiffStorage
	staging       interfaces.StagingStorage
	publishWindow time.Duration
	logger        arbor.ILogger
}

// NewService creates a new delete service
func NewService(
	templates interfaces.TemplateStorage,
	runs interfaces.RunStorage,
	logs interfaces.LogStorage,
	diffs interfaces.DiffStorage,
	staging interfaces.StagingStorage,
	publishWindow time.Duration,
	logger arbor.ILogger,
) *Service {
	if publishWindow <= 0 {
		publishWindow = 5 * time.Minute
	}
	return &Service{
		templates:     templates,
		runs:          runs,
		logs:          logs,
		diffs:         diffs,
		staging:       staging,
		publishWindow: publishWindow,
		logger:        logger,
	}
}

// BuildDeletePlan computes a deletion plan for the templates: related row
// counts, cascade run ids and active blockers. Read-only; computed fresh
// on every request because blockers are time-sensitive.
func (s *Service) BuildDeletePlan(ctx context.Context, templateIDs []string) (*models.DeletePlan, error) {
	plan := &models.DeletePlan{}

	// 1. Fetch templates; missing ids are silently absent
	templates, err := s.templates.GetTemplates(ctx, templateIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch templates: %w", err)
	}
	plan.Templates = templates

	fetchedIDs := make([]string, len(templates))
	for i, tpl := range templates {
		fetchedIDs[i] = tpl.ID
	}

	// 2. Active-prepare blocker: any fetched template holding its slot
	var activePrepare []string
	for _, tpl := range templates {
		if tpl.SlotHeld() {
			activePrepare = append(activePrepare, tpl.ID)
		}
	}
	if len(activePrepare) > 0 {
		plan.Blockers = append(plan.Blockers, models.Blocker{
			Code:      models.BlockerActivePrepare,
			Templates: activePrepare,
		})
	}

	// 3. Publish-in-progress blocker: publish:progress events inside the
	// rolling window. A soft heuristic, not a lock; accepted tradeoff.
	since := time.Now().Add(-s.publishWindow)
	progress, err := s.logs.EventsSince(ctx, fetchedIDs, models.EventPublishProgress, since)
	if err != nil {
		return nil, fmt.Errorf("failed to scan publish events: %w", err)
	}
	if len(progress) > 0 {
		seen := make(map[string]bool)
		var publishing []string
		for _, ev := range progress {
			if !seen[ev.TemplateID] {
				seen[ev.TemplateID] = true
				publishing = append(publishing, ev.TemplateID)
			}
		}
		plan.Blockers = append(plan.Blockers, models.Blocker{
			Code:      models.BlockerPublishInProgress,
			Templates: publishing,
		})
	}

	// 4. Collect candidate run ids for the cascade from log events,
	// filtered by the run-id shape to drop stray non-run references
	events, err := s.logs.EventsForTemplates(ctx, fetchedIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to scan log events: %w", err)
	}
	runSeen := make(map[string]bool)
	for _, ev := range events {
		if ev.RunID != "" && common.IsRunID(ev.RunID) && !runSeen[ev.RunID] {
			runSeen[ev.RunID] = true
			plan.RunIDs = append(plan.RunIDs, ev.RunID)
		}
	}

	// 5. Advisory counts; these also drive the cascade-delete order
	if plan.Counts.Logs, err = s.logs.CountByTemplates(ctx, fetchedIDs); err != nil {
		return nil, fmt.Errorf("failed to count logs: %w", err)
	}
	if plan.Counts.StagingRows, err = s.staging.CountStagingByTemplates(ctx, fetchedIDs); err != nil {
		return nil, fmt.Errorf("failed to count staging rows: %w", err)
	}
	if plan.Counts.ProductSources, err = s.staging.CountSourcesByTemplates(ctx, fetchedIDs); err != nil {
		return nil, fmt.Errorf("failed to count product sources: %w", err)
	}
	if plan.Counts.Runs, err = s.runs.CountRunsByID(ctx, plan.RunIDs); err != nil {
		return nil, fmt.Errorf("failed to count runs: %w", err)
	}
	if plan.Counts.Diffs, err = s.diffs.CountDiffsByRuns(ctx, plan.RunIDs); err != nil {
		return nil, fmt.Errorf("failed to count diffs: %w", err)
	}

	return plan, nil
}
