package index

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/interfaces"
	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/models"
)

// Service writes chunk vectors into the searchable index. The index is
// backed by VectorStorage; replacing a source's vectors is delete-then-
// insert so a re-run never leaves stale chunks behind.
type Service struct {
	vectors interfaces.VectorStorage
	logger  arbor.ILogger
}

// NewService creates a new index service
func NewService(vectors interfaces.VectorStorage, logger arbor.ILogger) interfaces.IndexService {
	return &Service{vectors: vectors, logger: logger}
}

// IndexChunks replaces the source's indexed vectors with the given set
func (s *Service) IndexChunks(ctx context.Context, source *models.Source, chunks []string, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunk/vector count mismatch: %d chunks, %d vectors", len(chunks), len(vectors))
	}
	if len(chunks) == 0 {
		return fmt.Errorf("nothing to index for source %s", source.ID)
	}

	if err := s.vectors.DeleteEmbeddings(ctx, source.ID); err != nil {
		return fmt.Errorf("failed to clear previous index entries: %w", err)
	}

	embeddings := make([]*models.ChunkEmbedding, len(chunks))
	for i := range chunks {
		embeddings[i] = &models.ChunkEmbedding{
			ID:         fmt.Sprintf("%s:%d", source.ID, i),
			SourceID:   source.ID,
			TwinID:     source.TwinID,
			ChunkIndex: i,
			Text:       chunks[i],
			Vector:     vectors[i],
		}
	}

	if err := s.vectors.SaveEmbeddings(ctx, embeddings); err != nil {
		return fmt.Errorf("failed to index chunks: %w", err)
	}

	s.logger.Info().
		Str("source_id", source.ID).
		Int("chunks", len(chunks)).
		Msg("Source indexed")

	return nil
}

// RemoveSource removes all indexed vectors for a source
func (s *Service) RemoveSource(ctx context.Context, sourceID string) error {
	return s.vectors.DeleteEmbeddings(ctx, sourceID)
}
