package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vendo/internal/common"
	"github.com/ternarybob/vendo/internal/interfaces"
	"github.com/ternarybob/vendo/internal/models"
)

// ErrCancelled is the sentinel the prepare pipeline raises when it
// observes a cancel request at a safe checkpoint. The orchestrator maps
// it to the cancelled terminal state.
var ErrCancelled = errors.New("prepare cancelled")

// Service owns the single-slot-per-template invariant: it is the only
// writer of template slot leases. Promotion is strictly serial per
// template; draining the queue relies on the completion path resubmitting
// the template key, never on parallel promotion.
type Service struct {
	templates interfaces.TemplateStorage
	runs      interfaces.RunStorage
	logs      interfaces.LogStorage
	pipeline  interfaces.PreparePipeline
	events    interfaces.EventService
	config    common.OrchestratorConfig
	logger    arbor.ILogger

	dispatcher *dispatcher

	promoteMu sync.Mutex // Serializes queue scan + slot acquisition

	activeMu sync.Mutex
	active   map[string]context.CancelFunc // runID -> in-process cancel
}

// NewService creates a new orchestrator service
func NewService(
	templates interfaces.TemplateStorage,
	runs interfaces.RunStorage,
	logs interfaces.LogStorage,
	pipeline interfaces.PreparePipeline,
	events interfaces.EventService,
	config common.OrchestratorConfig,
	logger arbor.ILogger,
) *Service {
	s := &Service{
		templates: templates,
		runs:      runs,
		logs:      logs,
		pipeline:  pipeline,
		events:    events,
		config:    config,
		logger:    logger,
		active:    make(map[string]context.CancelFunc),
	}
	s.dispatcher = newDispatcher(config.Workers, config.QueueDepth, logger)
	return s
}

// Stop drains the dispatcher and waits for in-flight prepare jobs
func (s *Service) Stop() {
	s.dispatcher.stop()
}

// EnqueuePrepare creates a queued run, records the durable queue entry
// and kicks the template. The caller gets the run id immediately; the
// job executes in the background.
func (s *Service) EnqueuePrepare(ctx context.Context, templateID string, options map[string]interface{}) (string, error) {
	if _, err := s.templates.GetTemplate(ctx, templateID); err != nil {
		return "", err
	}

	run := models.NewRun(common.NewRunID(), templateID, options)
	if err := s.runs.SaveRun(ctx, run); err != nil {
		return "", fmt.Errorf("failed to save run: %w", err)
	}

	if err := s.appendEvent(ctx, templateID, run.ID, models.EventPrepareQueued, map[string]interface{}{
		"options": options,
	}); err != nil {
		return "", err
	}

	s.logger.Info().
		Str("template_id", templateID).
		Str("run_id", run.ID).
		Msg("Prepare run queued")

	if err := s.KickTemplate(ctx, templateID); err != nil {
		s.logger.Warn().Err(err).Str("template_id", templateID).Msg("Failed to kick template after enqueue")
	}

	return run.ID, nil
}

// KickTemplate promotes the next queued run when the slot is free.
// No-op while a prepare is active; the completion path drains the queue.
func (s *Service) KickTemplate(ctx context.Context, templateID string) error {
	tpl, err := s.templates.GetTemplate(ctx, templateID)
	if err != nil {
		return err
	}
	if tpl.SlotHeld() {
		s.logger.Debug().
			Str("template_id", templateID).
			Str("active_run_id", tpl.Slot.RunID).
			Msg("Slot held, kick is a no-op")
		return nil
	}
	return s.StartNextQueued(ctx, templateID)
}

// StartNextQueued scans the most recent queued events oldest-first,
// re-reads each referenced run, and promotes the first one still in
// queued status. At most one run is promoted per call.
func (s *Service) StartNextQueued(ctx context.Context, templateID string) error {
	s.promoteMu.Lock()
	defer s.promoteMu.Unlock()

	tpl, err := s.templates.GetTemplate(ctx, templateID)
	if err != nil {
		return err
	}
	if tpl.SlotHeld() {
		return nil
	}

	events, err := s.logs.RecentEventsByType(ctx, templateID, models.EventPrepareQueued, s.config.QueueScanLimit)
	if err != nil {
		return fmt.Errorf("failed to scan queue events: %w", err)
	}

	// RecentEventsByType returns newest first; promote oldest first
	for i := len(events) - 1; i >= 0; i-- {
		entry := events[i]

		run, err := s.runs.GetRun(ctx, entry.RunID)
		if err != nil {
			// Stale queue entry (run deleted or unreadable); skip it
			s.logger.Debug().Err(err).Str("run_id", entry.RunID).Msg("Skipping stale queue entry")
			continue
		}
		if run.Status != models.RunStatusQueued {
			// Defends against races and duplicate queue events
			continue
		}

		// Lease first: if marking the run fails the run stays queued and
		// promotable, and a leaked lease is reclaimed by the sweep. The
		// opposite order strands a preparing run with no lease, which the
		// sweep never visits.
		lease := &models.SlotLease{RunID: run.ID, AcquiredAt: time.Now()}
		if err := s.templates.UpdateSlot(ctx, templateID, lease); err != nil {
			return fmt.Errorf("failed to acquire slot: %w", err)
		}

		run.MarkPreparing()
		if err := s.runs.SaveRun(ctx, run); err != nil {
			if slotErr := s.templates.UpdateSlot(ctx, templateID, nil); slotErr != nil {
				s.logger.Error().Err(slotErr).Str("template_id", templateID).Msg("Failed to release slot after promotion failure")
			}
			return fmt.Errorf("failed to mark run preparing: %w", err)
		}

		if err := s.appendEvent(ctx, templateID, run.ID, models.EventPrepareStart, nil); err != nil {
			s.logger.Warn().Err(err).Str("run_id", run.ID).Msg("Failed to log prepare:start")
		}

		s.publish(ctx, "run.started", templateID, run.ID, nil)

		s.logger.Info().
			Str("template_id", templateID).
			Str("run_id", run.ID).
			Msg("Promoted queued run")

		promoted := run
		template := tpl
		s.dispatcher.submit(func() {
			s.executePromoted(promoted, template)
		})

		// Only one promotion per call; the completion path drains the rest
		break
	}

	return nil
}

// executePromoted runs inside a dispatcher worker: executes the prepare
// job, releases the slot and resubmits the template key so the queue
// drains serially.
func (s *Service) executePromoted(run *models.Run, tpl *models.Template) {
	ctx := context.Background()

	err := s.RunPrepareJob(ctx, run, tpl)

	if slotErr := s.templates.UpdateSlot(ctx, tpl.ID, nil); slotErr != nil {
		s.logger.Error().Err(slotErr).Str("template_id", tpl.ID).Msg("Failed to release slot")
	}

	if err != nil {
		if logErr := s.appendEvent(ctx, tpl.ID, run.ID, models.EventPrepareError, map[string]interface{}{
			"error": err.Error(),
		}); logErr != nil {
			s.logger.Warn().Err(logErr).Str("run_id", run.ID).Msg("Failed to log prepare:error")
		}
	} else {
		if logErr := s.appendEvent(ctx, tpl.ID, run.ID, models.EventPrepareDone, nil); logErr != nil {
			s.logger.Warn().Err(logErr).Str("run_id", run.ID).Msg("Failed to log prepare:done")
		}
	}

	s.publish(ctx, "run.finished", tpl.ID, run.ID, map[string]interface{}{
		"status": string(run.Status),
	})

	// Keep draining; promotion happens off the worker goroutine so a full
	// dispatcher backlog cannot deadlock the pool.
	common.SafeGo(s.logger, "drainQueue", func() {
		if err := s.StartNextQueued(context.Background(), tpl.ID); err != nil {
			s.logger.Warn().Err(err).Str("template_id", tpl.ID).Msg("Queue drain promotion failed")
		}
	})
}

// RunPrepareJob executes the prepare pipeline for a run. Every invocation
// terminates with exactly one terminal log event, including when the
// delegate panics. The error is returned in all failure cases so callers
// can react.
func (s *Service) RunPrepareJob(ctx context.Context, run *models.Run, tpl *models.Template) error {
	if err := s.appendEvent(ctx, run.TemplateID, run.ID, models.EventOrchestratorStart, nil); err != nil {
		s.logger.Warn().Err(err).Str("run_id", run.ID).Msg("Failed to log orchestrator:start")
	}

	err := s.invokePipeline(ctx, run, tpl)

	switch {
	case err == nil:
		run.MarkStaged()
		if saveErr := s.runs.SaveRun(ctx, run); saveErr != nil {
			s.logger.Error().Err(saveErr).Str("run_id", run.ID).Msg("Failed to persist staged status")
		}
		s.appendEventBestEffort(ctx, run.TemplateID, run.ID, models.EventOrchestratorDone, nil)
		s.logger.Info().Str("run_id", run.ID).Msg("Prepare run staged")
		return nil

	case errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled):
		run.MarkCancelled()
		if saveErr := s.runs.SaveRun(ctx, run); saveErr != nil {
			s.logger.Error().Err(saveErr).Str("run_id", run.ID).Msg("Failed to persist cancelled status")
		}
		s.appendEventBestEffort(ctx, run.TemplateID, run.ID, models.EventOrchestratorCancelled, nil)
		s.logger.Info().Str("run_id", run.ID).Msg("Prepare run cancelled")
		return err

	default:
		run.MarkFailed(err.Error())
		if saveErr := s.runs.SaveRun(ctx, run); saveErr != nil {
			s.logger.Error().Err(saveErr).Str("run_id", run.ID).Msg("Failed to persist failed status")
		}
		s.appendEventBestEffort(ctx, run.TemplateID, run.ID, models.EventOrchestratorError, map[string]interface{}{
			"error": err.Error(),
		})
		s.logger.Error().Err(err).Str("run_id", run.ID).Msg("Prepare run failed")
		return err
	}
}

// invokePipeline calls the delegate with panic recovery and an in-process
// cancel context registered for RequestCancel.
func (s *Service) invokePipeline(ctx context.Context, run *models.Run, tpl *models.Template) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("prepare pipeline panic: %v", r)
		}
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.trackRun(run.ID, cancel)
	defer s.untrackRun(run.ID)

	return s.pipeline.Prepare(runCtx, run, tpl)
}

// RequestCancel sets the cooperative cancel flag on the run and cancels
// its in-process context. Cancellation is advisory: the pipeline honors
// it at its own checkpoints. Safe to call repeatedly and on runs that
// already reached a terminal state.
func (s *Service) RequestCancel(ctx context.Context, runID string) (*interfaces.CancelResult, error) {
	run, err := s.runs.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	if run.Terminal() {
		// Self-heal: release the slot if it still points at this run
		cleared := s.releaseSlotIfOwned(ctx, run.TemplateID, runID)
		return &interfaces.CancelResult{OK: true, AlreadyTerminal: true, ClearedSlot: cleared}, nil
	}

	run.Summary.Control.CancelRequested = true
	if err := s.runs.SaveRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to persist cancel request: %w", err)
	}

	s.appendEventBestEffort(ctx, run.TemplateID, runID, models.EventPrepareCancel, nil)

	s.activeMu.Lock()
	if cancel, ok := s.active[runID]; ok {
		cancel()
	}
	s.activeMu.Unlock()

	s.logger.Info().
		Str("template_id", run.TemplateID).
		Str("run_id", runID).
		Msg("Cancel requested")

	return &interfaces.CancelResult{OK: true}, nil
}

// releaseSlotIfOwned clears the template slot when it is leased to runID
func (s *Service) releaseSlotIfOwned(ctx context.Context, templateID, runID string) bool {
	tpl, err := s.templates.GetTemplate(ctx, templateID)
	if err != nil || !tpl.SlotHeld() || tpl.Slot.RunID != runID {
		return false
	}
	if err := s.templates.UpdateSlot(ctx, templateID, nil); err != nil {
		s.logger.Warn().Err(err).Str("template_id", templateID).Msg("Failed to release slot")
		return false
	}
	return true
}

func (s *Service) trackRun(runID string, cancel context.CancelFunc) {
	s.activeMu.Lock()
	defer s.activeMu.Unlock()
	s.active[runID] = cancel
}

func (s *Service) untrackRun(runID string) {
	s.activeMu.Lock()
	defer s.activeMu.Unlock()
	delete(s.active, runID)
}

// runActive reports whether this process currently executes the run
func (s *Service) runActive(runID string) bool {
	s.activeMu.Lock()
	defer s.activeMu.Unlock()
	_, ok := s.active[runID]
	return ok
}

func (s *Service) appendEvent(ctx context.Context, templateID, runID, eventType string, payload map[string]interface{}) error {
	return s.logs.AppendEvent(ctx, &models.LogEvent{
		TemplateID: templateID,
		RunID:      runID,
		Type:       eventType,
		Payload:    payload,
	})
}

// appendEventBestEffort logs audit events that must never fail the
// primary operation
func (s *Service) appendEventBestEffort(ctx context.Context, templateID, runID, eventType string, payload map[string]interface{}) {
	if err := s.appendEvent(ctx, templateID, runID, eventType, payload); err != nil {
		s.logger.Warn().Err(err).Str("type", eventType).Str("run_id", runID).Msg("Failed to append audit event")
	}
}

func (s *Service) publish(ctx context.Context, eventType, templateID, runID string, data map[string]interface{}) {
	if s.events == nil {
		return
	}
	s.events.Publish(ctx, interfaces.Event{
		Type:       eventType,
		TemplateID: templateID,
		RunID:      runID,
		Data:       data,
	})
}
