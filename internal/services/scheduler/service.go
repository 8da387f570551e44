package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vendo/internal/common"
	"github.com/ternarybob/vendo/internal/interfaces"
)

// Service runs the maintenance sweep on a cron schedule. The sweep itself
// is idempotent, so an overlapping or missed tick is harmless; a mutex
// still prevents two sweeps running concurrently in this process.
type Service struct {
	orchestrator interfaces.OrchestratorService
	config       common.MaintenanceConfig
	cron         *cron.Cron
	logger       arbor.ILogger
	mu           sync.Mutex
	running      bool
}

// NewService creates a new scheduler service
func NewService(orchestrator interfaces.OrchestratorService, config common.MaintenanceConfig, logger arbor.ILogger) *Service {
	return &Service{
		orchestrator: orchestrator,
		config:       config,
		cron:         cron.New(),
		logger:       logger,
	}
}

// Start registers the sweep and begins the cron loop. When configured, one
// sweep runs immediately so leases orphaned by the previous process are
// reclaimed without waiting for the first tick.
func (s *Service) Start() error {
	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	schedule := s.config.SweepSchedule
	if schedule == "" {
		schedule = "*/5 * * * *"
	}

	if _, err := s.cron.AddFunc(schedule, s.runSweep); err != nil {
		return fmt.Errorf("failed to schedule maintenance sweep: %w", err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info().
		Str("schedule", schedule).
		Msg("Maintenance scheduler started")

	if s.config.SweepOnStartup {
		common.SafeGo(s.logger, "startup-sweep", s.runSweep)
	}

	return nil
}

// Stop halts the cron loop and waits for an in-flight sweep to finish
func (s *Service) Stop() error {
	if !s.running {
		return nil
	}
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.running = false
	s.logger.Info().Msg("Maintenance scheduler stopped")
	return nil
}

func (s *Service) runSweep() {
	if !s.mu.TryLock() {
		s.logger.Debug().Msg("Sweep already in progress, skipping tick")
		return
	}
	defer s.mu.Unlock()

	if err := s.orchestrator.Sweep(context.Background()); err != nil {
		s.logger.Error().Err(err).Msg("Maintenance sweep failed")
	}
}
