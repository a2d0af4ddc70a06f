package models

// IngestURLRequest is the payload for POST /api/sources
type IngestURLRequest struct {
	TwinID   string `json:"twin_id" validate:"required"`
	URL      string `json:"url" validate:"required,url"`
	Priority int    `json:"priority" validate:"gte=0,lte=10"`
}

// IngestResponse is returned promptly after enqueueing; it never waits on
// the pipeline itself.
type IngestResponse struct {
	SourceID string       `json:"source_id"`
	JobID    string       `json:"job_id"`
	Status   SourceStatus `json:"status"`
}

// RetryRequest is the payload for POST /api/sources/{id}/retry
type RetryRequest struct {
	// Reset re-runs the pipeline from scratch instead of resuming after
	// the last completed step.
	Reset bool `json:"reset"`
}

// RetryResponse returns the active job for the source; Existing is true
// when a duplicate retry found a job already queued or processing.
type RetryResponse struct {
	SourceID string `json:"source_id"`
	JobID    string `json:"job_id"`
	Existing bool   `json:"existing"`
}

// DrainRequest is the payload for POST /api/queue/drain
type DrainRequest struct {
	TwinID string `json:"twin_id" validate:"required"`
	Max    int    `json:"max" validate:"gte=0,lte=1000"`
}

// DrainResult reports a synchronous manual queue drain
type DrainResult struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
	Remaining int `json:"remaining"`
}
