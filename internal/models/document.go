package models

import "time"

// Document is the normalized extracted content for a source. It is written
// at parse/chunk time and rehydrates the pipeline payload when a retry
// resumes past the extraction steps, so completed steps never re-run their
// side effects.
//
// PRIMARY CONTENT FORMAT: markdown (ContentMarkdown field); ContentText is
// the rendered plain text used for length accounting and chunking.
type Document struct {
	SourceID string `json:"source_id" badgerhold:"key"`
	TwinID   string `json:"twin_id" badgerhold:"index"`

	Title           string   `json:"title,omitempty"`
	ContentMarkdown string   `json:"content_markdown"`
	ContentText     string   `json:"content_text"`
	Chunks          []string `json:"chunks,omitempty"`
	ContentHash     string   `json:"content_hash,omitempty"`

	Metadata map[string]interface{} `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ChunkEmbedding is one indexed chunk vector for a source
type ChunkEmbedding struct {
	ID         string    `json:"id" badgerhold:"key"` // source_id:chunk_index
	SourceID   string    `json:"source_id" badgerhold:"index"`
	TwinID     string    `json:"twin_id"`
	ChunkIndex int       `json:"chunk_index"`
	Text       string    `json:"text"`
	Vector     []float32 `json:"vector"`
	CreatedAt  time.Time `json:"created_at"`
}
