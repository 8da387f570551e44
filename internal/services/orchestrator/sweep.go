package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/vendo/internal/interfaces"
	"github.com/ternarybob/vendo/internal/models"
)

// Sweep reconciles slot leases against actual run state. The slot and
// the run's status can diverge after a crash mid-flight, manual
// intervention or an orphaned pointer; the sweep only ever clears leases
// that already look abandoned, so it is safe to run repeatedly and
// concurrently with normal operation.
func (s *Service) Sweep(ctx context.Context) error {
	templates, err := s.templates.ListTemplatesWithSlot(ctx)
	if err != nil {
		return err
	}

	now := time.Now()
	cleared := 0

	for _, tpl := range templates {
		lease := tpl.Slot

		reason := s.classifyLease(ctx, lease, now)
		if reason == "" {
			continue
		}

		if err := s.templates.UpdateSlot(ctx, tpl.ID, nil); err != nil {
			s.logger.Error().Err(err).Str("template_id", tpl.ID).Msg("Sweep failed to clear slot")
			continue
		}
		cleared++

		s.appendEventBestEffort(ctx, tpl.ID, lease.RunID, models.EventMaintenanceSlotCleared, map[string]interface{}{
			"reason": reason,
			"run_id": lease.RunID,
		})

		s.logger.Info().
			Str("template_id", tpl.ID).
			Str("run_id", lease.RunID).
			Str("reason", reason).
			Msg("Cleared abandoned slot lease")

		if err := s.StartNextQueued(ctx, tpl.ID); err != nil {
			s.logger.Warn().Err(err).Str("template_id", tpl.ID).Msg("Failed to promote after slot clear")
		}
	}

	if cleared > 0 {
		s.logger.Info().Int("cleared", cleared).Msg("Maintenance sweep completed")
	}

	return nil
}

// classifyLease returns the slot-cleared reason, or "" when the lease
// points at a genuinely active run and must be left alone.
func (s *Service) classifyLease(ctx context.Context, lease *models.SlotLease, now time.Time) string {
	run, err := s.runs.GetRun(ctx, lease.RunID)
	switch {
	case errors.Is(err, interfaces.ErrRunNotFound):
		return models.SlotClearedMissingRun

	case err != nil:
		return models.SlotClearedLookupError

	case run.Terminal():
		return models.SlotClearedTerminal
	}

	// Lease-expiry reclamation: an old lease whose run has no live
	// execution in this process was orphaned by a crash. The run can
	// never finish, so fail it before releasing the slot.
	if s.config.LeaseTTL > 0 && lease.Age(now) > s.config.LeaseTTL && !s.runActive(lease.RunID) {
		run.MarkFailed("slot lease expired with no live execution")
		if err := s.runs.SaveRun(ctx, run); err != nil {
			s.logger.Error().Err(err).Str("run_id", run.ID).Msg("Failed to fail stale run")
			return ""
		}
		return models.SlotClearedExpiredLease
	}

	return ""
}
