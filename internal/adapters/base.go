package adapters

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/interfaces"
	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/models"
)

// baseAdapter carries the content steps shared by every provider:
// chunking, embedding and indexing, plus document persistence at parse
// time. Provider adapters embed it and add their own fetch/parse logic.
type baseAdapter struct {
	transform interfaces.TransformService
	embedder  interfaces.EmbeddingService
	indexer   interfaces.IndexService
	documents interfaces.DocumentStorage
	logger    arbor.ILogger
}

// Deps bundles the collaborators every adapter needs
type Deps struct {
	Transform interfaces.TransformService
	Embedder  interfaces.EmbeddingService
	Indexer   interfaces.IndexService
	Documents interfaces.DocumentStorage
	Logger    arbor.ILogger
}

func newBase(deps Deps) baseAdapter {
	return baseAdapter{
		transform: deps.Transform,
		embedder:  deps.Embedder,
		indexer:   deps.Indexer,
		documents: deps.Documents,
		logger:    deps.Logger,
	}
}

// executeShared runs the provider-agnostic content steps. Returns false
// when the step is not one of them.
func (b *baseAdapter) executeShared(ctx context.Context, source *models.Source, step models.Step, payload *interfaces.StepPayload) (bool, error) {
	switch step {
	case models.StepChunked:
		return true, b.chunk(ctx, source, payload)
	case models.StepEmbedded:
		return true, b.embed(ctx, payload)
	case models.StepIndexed:
		return true, b.index(ctx, source, payload)
	default:
		return false, nil
	}
}

// persistDocument normalizes and stores the extracted content at parse
// time. A later retry rehydrates the payload from this record, so parse
// side effects never repeat. Also derives text, title accounting and the
// content hash onto the payload.
func (b *baseAdapter) persistDocument(ctx context.Context, source *models.Source, payload *interfaces.StepPayload) error {
	if payload.Text == "" && payload.Markdown != "" {
		text, err := b.transform.MarkdownToText(payload.Markdown)
		if err != nil {
			return models.NewStepFailure(models.ErrCodeParseFailed, "failed to render extracted markdown").WithCause(err)
		}
		payload.Text = text
	}
	payload.ContentHash = b.transform.Hash(payload.Text)

	now := time.Now()
	doc := &models.Document{
		SourceID:        source.ID,
		TwinID:          source.TwinID,
		Title:           payload.Title,
		ContentMarkdown: payload.Markdown,
		ContentText:     payload.Text,
		ContentHash:     payload.ContentHash,
		Metadata:        payload.Metadata,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := b.documents.SaveDocument(ctx, doc); err != nil {
		return fmt.Errorf("failed to persist extracted document: %w", err)
	}
	return nil
}

// chunk splits the extracted text for embedding
func (b *baseAdapter) chunk(ctx context.Context, source *models.Source, payload *interfaces.StepPayload) error {
	if payload.Text == "" && payload.Markdown != "" {
		text, err := b.transform.MarkdownToText(payload.Markdown)
		if err != nil {
			return models.NewStepFailure(models.ErrCodeChunkingFailed, "failed to render markdown for chunking").WithCause(err)
		}
		payload.Text = text
	}
	if payload.Text == "" {
		return models.NewStepFailure(models.ErrCodeContentEmpty, "no extracted text to chunk; re-ingest the source or upload its content as a file")
	}

	chunks := b.transform.Chunk(payload.Text)
	if len(chunks) == 0 {
		return models.NewStepFailure(models.ErrCodeChunkingFailed, "chunker produced no chunks from non-empty text")
	}
	payload.Chunks = chunks

	// Keep the persisted document in sync so a resumed run finds them
	doc, err := b.documents.GetDocument(ctx, source.ID)
	if err == nil {
		doc.Chunks = chunks
		doc.UpdatedAt = time.Now()
		if err := b.documents.SaveDocument(ctx, doc); err != nil {
			b.logger.Warn().Err(err).Str("source_id", source.ID).Msg("Failed to persist chunks")
		}
	}

	return nil
}

// embed generates vectors for the chunks
func (b *baseAdapter) embed(ctx context.Context, payload *interfaces.StepPayload) error {
	if len(payload.Chunks) == 0 {
		return models.NewStepFailure(models.ErrCodeEmbeddingsFailed, "no chunks available to embed")
	}

	vectors, err := b.embedder.EmbedTexts(ctx, payload.Chunks)
	if err != nil {
		return models.NewStepFailure(models.ErrCodeEmbeddingsFailed, "embedding generation failed").WithCause(err)
	}
	payload.Vectors = vectors
	return nil
}

// index writes the chunk vectors into the searchable index. Vectors are
// not persisted between runs; a resume landing here after a crash
// re-embeds before indexing.
func (b *baseAdapter) index(ctx context.Context, source *models.Source, payload *interfaces.StepPayload) error {
	if len(payload.Vectors) != len(payload.Chunks) {
		if err := b.embed(ctx, payload); err != nil {
			return err
		}
	}

	if err := b.indexer.IndexChunks(ctx, source, payload.Chunks, payload.Vectors); err != nil {
		return models.NewStepFailure(models.ErrCodeIndexingFailed, "failed to write chunks into the index").WithCause(err)
	}
	return nil
}
