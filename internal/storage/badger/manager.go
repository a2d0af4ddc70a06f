package badger

import (
	"github.com/ternarybob/arbor"

	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/common"
	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db       *BadgerDB
	sources  interfaces.SourceStorage
	events   interfaces.EventStorage
	jobs     interfaces.JobStorage
	health   interfaces.HealthStorage
	document interfaces.DocumentStorage
	vectors  interfaces.VectorStorage
	blobs    interfaces.BlobStorage
	logger   arbor.ILogger
}

// NewManager creates a new Badger storage manager. diagnosticsEnabled marks
// the event store as provisioned; when false the timeline is absent and
// reads surface ErrDiagnosticsUnavailable while ingestion carries on.
func NewManager(logger arbor.ILogger, config *common.BadgerConfig, diagnosticsEnabled bool) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:       db,
		sources:  NewSourceStorage(db, logger),
		events:   NewEventStorage(db, logger, diagnosticsEnabled),
		jobs:     NewJobStorage(db, logger),
		health:   NewHealthStorage(db, logger),
		document: NewDocumentStorage(db, logger),
		vectors:  NewVectorStorage(db, logger),
		blobs:    NewBlobStorage(db, logger),
		logger:   logger,
	}

	logger.Info().Bool("diagnostics", diagnosticsEnabled).Msg("Badger storage manager initialized")

	return manager, nil
}

// SourceStorage returns the Source storage interface
func (m *Manager) SourceStorage() interfaces.SourceStorage {
	return m.sources
}

// EventStorage returns the SourceEvent storage interface
func (m *Manager) EventStorage() interfaces.EventStorage {
	return m.events
}

// JobStorage returns the Job storage interface
func (m *Manager) JobStorage() interfaces.JobStorage {
	return m.jobs
}

// HealthStorage returns the HealthCheck storage interface
func (m *Manager) HealthStorage() interfaces.HealthStorage {
	return m.health
}

// DocumentStorage returns the Document storage interface
func (m *Manager) DocumentStorage() interfaces.DocumentStorage {
	return m.document
}

// VectorStorage returns the ChunkEmbedding storage interface
func (m *Manager) VectorStorage() interfaces.VectorStorage {
	return m.vectors
}

// BlobStorage returns the Blob storage interface
func (m *Manager) BlobStorage() interfaces.BlobStorage {
	return m.blobs
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
