package badger

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vendo/internal/common"
	"github.com/ternarybob/vendo/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db       *BadgerDB
	template interfaces.TemplateStorage
	run      interfaces.RunStorage
	log      interfaces.LogStorage
	diff     interfaces.DiffStorage
	staging  interfaces.StagingStorage
	logger   arbor.ILogger
}

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:       db,
		template: NewTemplateStorage(db, logger),
		run:      NewRunStorage(db, logger),
		log:      NewLogStorage(db, logger),
		diff:     NewDiffStorage(db, logger),
		staging:  NewStagingStorage(db, logger),
		logger:   logger,
	}

	logger.Info().Msg("Badger storage manager initialized")

	return manager, nil
}

// TemplateStorage returns the Template storage interface
func (m *Manager) TemplateStorage() interfaces.TemplateStorage {
	return m.template
}

// RunStorage returns the Run storage interface
func (m *Manager) RunStorage() interfaces.RunStorage {
	return m.run
}

// LogStorage returns the Log storage interface
func (m *Manager) LogStorage() interfaces.LogStorage {
	return m.log
}

// DiffStorage returns the Diff storage interface
func (m *Manager) DiffStorage() interfaces.DiffStorage {
	return m.diff
}

// StagingStorage returns the Staging storage interface
func (m *Manager) StagingStorage() interfaces.StagingStorage {
	return m.staging
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
