package interfaces

import (
	"context"

	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/models"
)

// StepPayload carries extracted content between pipeline steps within one
// run. Adapters fill it progressively; the executor copies the derived
// fields (hash, counts, title) onto the source after each step.
type StepPayload struct {
	HTML        string
	Markdown    string
	Text        string
	Title       string
	Chunks      []string
	Vectors     [][]float32
	ContentHash string
	Metadata    map[string]interface{}
}

// ProviderAdapter executes the pipeline steps for one provider. Each
// adapter implements only the steps it needs (Performs) - local file
// ingestion skips fetching, for example. Adapters raise *models.StepFailure
// for conditions they can identify; anything else is classified generically.
type ProviderAdapter interface {
	Provider() models.Provider

	// Performs reports whether this provider executes the given step
	Performs(step models.Step) bool

	// Execute runs a single step under the executor's bounded timeout.
	// It must not write source status or events - that is the executor's
	// and the diagnostics recorder's job.
	Execute(ctx context.Context, source *models.Source, step models.Step, payload *StepPayload) error
}

// EmbeddingService generates embedding vectors for text chunks. Treated as
// an opaque, fallible, network-bound collaborator.
type EmbeddingService interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// IndexService writes chunk vectors into the searchable index
type IndexService interface {
	IndexChunks(ctx context.Context, source *models.Source, chunks []string, vectors [][]float32) error
	RemoveSource(ctx context.Context, sourceID string) error
}

// TransformService normalizes raw provider content
type TransformService interface {
	// HTMLToMarkdown converts an HTML document to markdown and extracts
	// the page title and main content.
	HTMLToMarkdown(html string, baseURL string) (markdown string, title string, err error)

	// MarkdownToText renders markdown to plain text
	MarkdownToText(markdown string) (string, error)

	// Chunk splits text into overlapping chunks for embedding
	Chunk(text string) []string

	// Hash returns the stable content fingerprint used for dedup
	Hash(text string) string
}
