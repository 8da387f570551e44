package deleter

import (
	"context"

	"github.com/ternarybob/vendo/internal/models"
)

// Execute performs a delete request. Blockers stop the whole request
// unless force is set; dry-run returns counts with no mutation beyond
// best-effort audit logging. Commit mode deletes in dependency order;
// each cascade step is individually guarded so one step's failure does
// not abort the others, and the final template deletion is the count the
// response reports.
func (s *Service) Execute(ctx context.Context, templateIDs []string, dryRun, force bool) (*models.DeleteResult, error) {
	plan, err := s.BuildDeletePlan(ctx, templateIDs)
	if err != nil {
		return nil, err
	}

	if plan.Blocked() && !force {
		s.logger.Info().
			Strs("templates", plan.BlockedTemplates()).
			Msg("Delete blocked by business rules")
		return &models.DeleteResult{
			OK:       false,
			Blocked:  true,
			Counts:   plan.Counts,
			Blockers: plan.Blockers,
		}, nil
	}

	if dryRun {
		s.auditLog(ctx, plan, "dry-run")
		return &models.DeleteResult{
			OK:     true,
			DryRun: true,
			Counts: plan.Counts,
		}, nil
	}

	s.auditLog(ctx, plan, "commit")

	templateIDsFetched := make([]string, len(plan.Templates))
	for i, tpl := range plan.Templates {
		templateIDsFetched[i] = tpl.ID
	}

	// Cascade in dependency order. Each step is best-effort: log and
	// continue so a partial failure leaves as little behind as possible.
	if _, err := s.diffs.DeleteDiffsByRuns(ctx, plan.RunIDs); err != nil {
		s.logger.Warn().Err(err).Msg("Cascade step failed: diffs")
	}
	if _, err := s.logs.DeleteByTemplates(ctx, templateIDsFetched); err != nil {
		s.logger.Warn().Err(err).Msg("Cascade step failed: logs")
	}
	if _, err := s.staging.DeleteStagingByTemplates(ctx, templateIDsFetched); err != nil {
		s.logger.Warn().Err(err).Msg("Cascade step failed: staging rows")
	}
	if _, err := s.staging.DeleteSourcesByTemplates(ctx, templateIDsFetched); err != nil {
		s.logger.Warn().Err(err).Msg("Cascade step failed: product sources")
	}
	if _, err := s.runs.DeleteRunsByID(ctx, plan.RunIDs); err != nil {
		s.logger.Warn().Err(err).Msg("Cascade step failed: runs")
	}

	// Template deletion is authoritative for the response
	deleted := 0
	for _, id := range templateIDsFetched {
		if err := s.templates.DeleteTemplate(ctx, id); err != nil {
			s.logger.Error().Err(err).Str("template_id", id).Msg("Failed to delete template")
			continue
		}
		deleted++
	}

	s.logger.Info().
		Int("deleted", deleted).
		Int("requested", len(templateIDs)).
		Msg("Template cascade delete completed")

	return &models.DeleteResult{
		OK:      true,
		Deleted: deleted,
		Counts:  plan.Counts,
	}, nil
}

// auditLog records a best-effort audit event per template; audit failures
// never fail the delete itself.
func (s *Service) auditLog(ctx context.Context, plan *models.DeletePlan, mode string) {
	for _, tpl := range plan.Templates {
		err := s.logs.AppendEvent(ctx, &models.LogEvent{
			TemplateID: tpl.ID,
			Type:       models.EventDeleteAudit,
			Payload: map[string]interface{}{
				"mode":    mode,
				"runs":    plan.Counts.Runs,
				"diffs":   plan.Counts.Diffs,
				"logs":    plan.Counts.Logs,
				"staging": plan.Counts.StagingRows,
				"sources": plan.Counts.ProductSources,
			},
		})
		if err != nil {
			s.logger.Debug().Err(err).Str("template_id", tpl.ID).Msg("Failed to write delete audit event")
		}
	}
}
