package badger

import (
	"context"
	"fmt"
	"sort"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/interfaces"
	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/models"
)

// HealthStorage implements health check persistence over Badger
type HealthStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewHealthStorage creates a new HealthStorage instance
func NewHealthStorage(db *BadgerDB, logger arbor.ILogger) interfaces.HealthStorage {
	return &HealthStorage{db: db, logger: logger}
}

func (s *HealthStorage) AppendCheck(ctx context.Context, check *models.HealthCheck) error {
	if err := s.db.Store().Insert(check.ID, *check); err != nil {
		return fmt.Errorf("failed to append health check: %w", err)
	}
	return nil
}

func (s *HealthStorage) ListChecks(ctx context.Context, sourceID string) ([]*models.HealthCheck, error) {
	var checks []models.HealthCheck
	if err := s.db.Store().Find(&checks, badgerhold.Where("SourceID").Eq(sourceID).Index("SourceID")); err != nil {
		return nil, fmt.Errorf("failed to list health checks: %w", err)
	}

	result := make([]*models.HealthCheck, 0, len(checks))
	for i := range checks {
		result = append(result, &checks[i])
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	return result, nil
}

func (s *HealthStorage) DeleteChecks(ctx context.Context, sourceID string) error {
	var checks []models.HealthCheck
	if err := s.db.Store().Find(&checks, badgerhold.Where("SourceID").Eq(sourceID).Index("SourceID")); err != nil {
		return fmt.Errorf("failed to find health checks for source: %w", err)
	}

	for i := range checks {
		if err := s.db.Store().Delete(checks[i].ID, &models.HealthCheck{}); err != nil && err != badgerhold.ErrNotFound {
			s.logger.Warn().Err(err).Str("check_id", checks[i].ID).Msg("Failed to delete health check")
		}
	}
	return nil
}
