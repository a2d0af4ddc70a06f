package badger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/interfaces"
	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/models"
)

// SourceStorage implements source persistence over Badger
type SourceStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewSourceStorage creates a new SourceStorage instance
func NewSourceStorage(db *BadgerDB, logger arbor.ILogger) interfaces.SourceStorage {
	return &SourceStorage{db: db, logger: logger}
}

func (s *SourceStorage) SaveSource(ctx context.Context, source *models.Source) error {
	if err := source.Validate(); err != nil {
		return fmt.Errorf("invalid source: %w", err)
	}

	source.UpdatedAt = time.Now()
	if err := s.db.Store().Upsert(source.ID, *source); err != nil {
		return fmt.Errorf("failed to save source: %w", err)
	}
	return nil
}

func (s *SourceStorage) GetSource(ctx context.Context, id string) (*models.Source, error) {
	var source models.Source
	if err := s.db.Store().Get(id, &source); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get source: %w", err)
	}
	return &source, nil
}

func (s *SourceStorage) ListSources(ctx context.Context, opts *interfaces.SourceListOptions) ([]*models.Source, error) {
	var sources []models.Source
	if err := s.db.Store().Find(&sources, nil); err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}

	var result []*models.Source
	for i := range sources {
		if opts != nil {
			if opts.TwinID != "" && sources[i].TwinID != opts.TwinID {
				continue
			}
			if opts.Status != "" && sources[i].Status != opts.Status {
				continue
			}
		}
		result = append(result, &sources[i])
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if opts != nil {
		if opts.Offset > 0 {
			if opts.Offset >= len(result) {
				return []*models.Source{}, nil
			}
			result = result[opts.Offset:]
		}
		if opts.Limit > 0 && opts.Limit < len(result) {
			result = result[:opts.Limit]
		}
	}

	return result, nil
}

func (s *SourceStorage) FindByContentHash(ctx context.Context, twinID, hash, excludeID string) ([]*models.Source, error) {
	if hash == "" {
		return nil, nil
	}

	var sources []models.Source
	if err := s.db.Store().Find(&sources, badgerhold.Where("ContentHash").Eq(hash).Index("ContentHash")); err != nil {
		return nil, fmt.Errorf("failed to query sources by content hash: %w", err)
	}

	var result []*models.Source
	for i := range sources {
		if sources[i].ID == excludeID {
			continue
		}
		if sources[i].TwinID != twinID {
			continue
		}
		if sources[i].Status != models.SourceStatusLive {
			continue
		}
		result = append(result, &sources[i])
	}
	return result, nil
}

func (s *SourceStorage) DeleteSource(ctx context.Context, id string) error {
	if err := s.db.Store().Delete(id, &models.Source{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return interfaces.ErrNotFound
		}
		return fmt.Errorf("failed to delete source: %w", err)
	}
	return nil
}
