package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/interfaces"
	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/models"
)

// VectorStorage implements chunk embedding persistence over Badger
type VectorStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewVectorStorage creates a new VectorStorage instance
func NewVectorStorage(db *BadgerDB, logger arbor.ILogger) interfaces.VectorStorage {
	return &VectorStorage{db: db, logger: logger}
}

func (s *VectorStorage) SaveEmbeddings(ctx context.Context, embeddings []*models.ChunkEmbedding) error {
	for _, emb := range embeddings {
		if err := s.db.Store().Upsert(emb.ID, *emb); err != nil {
			return fmt.Errorf("failed to save embedding %s: %w", emb.ID, err)
		}
	}
	return nil
}

func (s *VectorStorage) ListEmbeddings(ctx context.Context, sourceID string) ([]*models.ChunkEmbedding, error) {
	var embeddings []models.ChunkEmbedding
	if err := s.db.Store().Find(&embeddings, badgerhold.Where("SourceID").Eq(sourceID).Index("SourceID")); err != nil {
		return nil, fmt.Errorf("failed to list embeddings: %w", err)
	}

	result := make([]*models.ChunkEmbedding, 0, len(embeddings))
	for i := range embeddings {
		result = append(result, &embeddings[i])
	}
	return result, nil
}

func (s *VectorStorage) DeleteEmbeddings(ctx context.Context, sourceID string) error {
	embeddings, err := s.ListEmbeddings(ctx, sourceID)
	if err != nil {
		return err
	}

	for _, emb := range embeddings {
		if err := s.db.Store().Delete(emb.ID, &models.ChunkEmbedding{}); err != nil && err != badgerhold.ErrNotFound {
			s.logger.Warn().Err(err).Str("embedding_id", emb.ID).Msg("Failed to delete embedding")
		}
	}
	return nil
}
