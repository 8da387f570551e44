package app

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vendo/internal/common"
	"github.com/ternarybob/vendo/internal/handlers"
	"github.com/ternarybob/vendo/internal/interfaces"
	"github.com/ternarybob/vendo/internal/services/catalog"
	"github.com/ternarybob/vendo/internal/services/deleter"
	"github.com/ternarybob/vendo/internal/services/events"
	"github.com/ternarybob/vendo/internal/services/orchestrator"
	"github.com/ternarybob/vendo/internal/services/scheduler"
	"github.com/ternarybob/vendo/internal/services/staging"
	badgerstorage "github.com/ternarybob/vendo/internal/storage/badger"
)

// App holds all application dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	StorageManager interfaces.StorageManager
	EventService   interfaces.EventService
	Orchestrator   interfaces.OrchestratorService
	DeleteService  interfaces.DeleteService
	SyncService    interfaces.SyncService
	Scheduler      interfaces.SchedulerService

	RunHandler      *handlers.RunHandler
	TemplateHandler *handlers.TemplateHandler
	StatusHandler   *handlers.StatusHandler
}

// New wires the application together: storage, services, handlers.
// The scheduler is created but not started; the entry point starts it
// after the wiring succeeds.
func New(config *common.Config) (*App, error) {
	logger := common.GetLogger()

	storageManager, err := badgerstorage.NewManager(logger, &config.Storage.Badger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	templates := storageManager.TemplateStorage()
	runs := storageManager.RunStorage()
	logs := storageManager.LogStorage()
	diffs := storageManager.DiffStorage()
	stagingStore := storageManager.StagingStorage()

	eventService := events.NewService(logger)

	pipeline := staging.NewPipeline(runs, diffs, stagingStore, logger)

	orchestratorService := orchestrator.NewService(
		templates, runs, logs,
		pipeline, eventService,
		config.Orchestrator, logger,
	)

	deleteService := deleter.NewService(
		templates, runs, logs, diffs, stagingStore,
		config.Maintenance.PublishWindow, logger,
	)

	syncService := catalog.NewService(
		runs, templates, diffs, stagingStore,
		catalog.DefaultClientFactory(config.Catalog, logger),
		config.Catalog, logger,
	)

	schedulerService := scheduler.NewService(orchestratorService, config.Maintenance, logger)

	a := &App{
		Config:         config,
		Logger:         logger,
		StorageManager: storageManager,
		EventService:   eventService,
		Orchestrator:   orchestratorService,
		DeleteService:  deleteService,
		SyncService:    syncService,
		Scheduler:      schedulerService,
	}

	a.StatusHandler = handlers.NewStatusHandler(templates, eventService, logger)
	a.RunHandler = handlers.NewRunHandler(orchestratorService, syncService, runs, diffs, logger)
	a.TemplateHandler = handlers.NewTemplateHandler(templates, deleteService, logger)

	return a, nil
}

// Close shuts the application down in reverse dependency order
func (a *App) Close() error {
	if a.Scheduler != nil {
		if err := a.Scheduler.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop scheduler")
		}
	}
	if a.Orchestrator != nil {
		a.Orchestrator.Stop()
	}
	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
	}
	return nil
}
