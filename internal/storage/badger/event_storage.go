package badger

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/interfaces"
	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/models"
)

// EventStorage implements the append-only source timeline over Badger.
//
// When the diagnostics schema is not provisioned (available=false) every
// operation reports ErrDiagnosticsUnavailable so callers degrade
// explicitly instead of seeing silently-empty timelines.
type EventStorage struct {
	db        *BadgerDB
	logger    arbor.ILogger
	available bool

	// seq is seeded from the wall clock so it stays monotonic across
	// restarts; a source's events are written by the single worker that
	// owns its job, so per-source ordering is strict.
	seq uint64
}

// NewEventStorage creates a new EventStorage instance
func NewEventStorage(db *BadgerDB, logger arbor.ILogger, available bool) interfaces.EventStorage {
	return &EventStorage{
		db:        db,
		logger:    logger,
		available: available,
		seq:       uint64(time.Now().UnixNano()),
	}
}

// Available reports whether the diagnostics schema is provisioned
func (s *EventStorage) Available() bool {
	return s.available
}

func (s *EventStorage) AppendEvent(ctx context.Context, event *models.SourceEvent) error {
	if !s.available {
		return interfaces.ErrDiagnosticsUnavailable
	}

	event.Seq = atomic.AddUint64(&s.seq, 1)

	// Insert, never Upsert: the timeline is append-only and an ID
	// collision would be a bug worth surfacing.
	if err := s.db.Store().Insert(event.ID, *event); err != nil {
		return fmt.Errorf("failed to append source event: %w", err)
	}
	return nil
}

func (s *EventStorage) ListEvents(ctx context.Context, sourceID string) ([]*models.SourceEvent, error) {
	if !s.available {
		return nil, interfaces.ErrDiagnosticsUnavailable
	}

	var events []models.SourceEvent
	if err := s.db.Store().Find(&events, badgerhold.Where("SourceID").Eq(sourceID).Index("SourceID")); err != nil {
		return nil, fmt.Errorf("failed to list source events: %w", err)
	}

	result := make([]*models.SourceEvent, 0, len(events))
	for i := range events {
		result = append(result, &events[i])
	}

	// Total order: (CreatedAt, Seq)
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].Seq < result[j].Seq
	})

	return result, nil
}

func (s *EventStorage) DeleteEvents(ctx context.Context, sourceID string) error {
	if !s.available {
		return nil
	}

	var events []models.SourceEvent
	if err := s.db.Store().Find(&events, badgerhold.Where("SourceID").Eq(sourceID).Index("SourceID")); err != nil {
		return fmt.Errorf("failed to find events for source: %w", err)
	}

	for i := range events {
		if err := s.db.Store().Delete(events[i].ID, &models.SourceEvent{}); err != nil && err != badgerhold.ErrNotFound {
			s.logger.Warn().Err(err).Str("event_id", events[i].ID).Msg("Failed to delete source event")
		}
	}
	return nil
}
