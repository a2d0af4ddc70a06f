package health

import (
	"context"
	"errors"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/interfaces"
	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/models"
)

// Checker runs the post-hoc source health checks. It never blocks the
// pipeline: checks run after a run completes or fails, and re-running
// appends fresh records instead of mutating history.
type Checker struct {
	sources      interfaces.SourceStorage
	documents    interfaces.DocumentStorage
	checks       interfaces.HealthStorage
	bus          interfaces.EventService
	minTextChars int
	logger       arbor.ILogger
}

// NewChecker creates the health checker. minTextChars is the floor below
// which extracted text counts as trivially short.
func NewChecker(sources interfaces.SourceStorage, documents interfaces.DocumentStorage, checks interfaces.HealthStorage, bus interfaces.EventService, minTextChars int, logger arbor.ILogger) interfaces.HealthService {
	if minTextChars <= 0 {
		minTextChars = 40
	}
	return &Checker{
		sources:      sources,
		documents:    documents,
		checks:       checks,
		bus:          bus,
		minTextChars: minTextChars,
		logger:       logger,
	}
}

// RunChecks runs every check against the source, appends the records,
// and rolls the outcomes up into the source's health_status.
func (c *Checker) RunChecks(ctx context.Context, sourceID string) ([]*models.HealthCheck, error) {
	source, err := c.sources.GetSource(ctx, sourceID)
	if err != nil {
		return nil, err
	}

	doc, err := c.documents.GetDocument(ctx, sourceID)
	if err != nil && !errors.Is(err, interfaces.ErrNotFound) {
		return nil, fmt.Errorf("failed to load document: %w", err)
	}

	results := []*models.HealthCheck{
		c.checkEmptyExtraction(source, doc),
		c.checkDuplicate(ctx, source),
		c.checkChunkAnomaly(source, doc),
		c.checkMissingMetadata(source),
	}

	for _, check := range results {
		if err := c.checks.AppendCheck(ctx, check); err != nil {
			return nil, fmt.Errorf("failed to persist health check: %w", err)
		}
	}

	c.applyHealthStatus(ctx, source, results)
	c.publish(ctx, source, results)

	return results, nil
}

// ListChecks returns the accumulated check history for a source
func (c *Checker) ListChecks(ctx context.Context, sourceID string) ([]*models.HealthCheck, error) {
	return c.checks.ListChecks(ctx, sourceID)
}

// checkEmptyExtraction fails when the extracted text is empty or
// trivially short.
func (c *Checker) checkEmptyExtraction(source *models.Source, doc *models.Document) *models.HealthCheck {
	textLen := source.ExtractedTextLength
	if doc != nil && len(doc.ContentText) > textLen {
		textLen = len(doc.ContentText)
	}

	if textLen == 0 {
		return models.NewHealthCheck(source, models.CheckEmptyExtraction, models.CheckStatusFail,
			"no text was extracted from this source")
	}
	if textLen < c.minTextChars {
		check := models.NewHealthCheck(source, models.CheckEmptyExtraction, models.CheckStatusWarning,
			fmt.Sprintf("extracted text is trivially short (%d chars)", textLen))
		check.Metadata["text_length"] = textLen
		return check
	}

	check := models.NewHealthCheck(source, models.CheckEmptyExtraction, models.CheckStatusPass, "")
	check.Metadata["text_length"] = textLen
	return check
}

// checkDuplicate warns when another live source in the twin shares the
// content hash.
func (c *Checker) checkDuplicate(ctx context.Context, source *models.Source) *models.HealthCheck {
	if source.ContentHash == "" {
		return models.NewHealthCheck(source, models.CheckDuplicate, models.CheckStatusPass, "")
	}

	dupes, err := c.sources.FindByContentHash(ctx, source.TwinID, source.ContentHash, source.ID)
	if err != nil {
		c.logger.Warn().Err(err).Str("source_id", source.ID).Msg("Duplicate check lookup failed")
		return models.NewHealthCheck(source, models.CheckDuplicate, models.CheckStatusPass, "")
	}
	if len(dupes) == 0 {
		return models.NewHealthCheck(source, models.CheckDuplicate, models.CheckStatusPass, "")
	}

	check := models.NewHealthCheck(source, models.CheckDuplicate, models.CheckStatusWarning,
		fmt.Sprintf("content duplicates %d other live source(s) in this twin", len(dupes)))
	ids := make([]string, len(dupes))
	for i, d := range dupes {
		ids[i] = d.ID
	}
	check.Metadata["duplicate_source_ids"] = ids
	return check
}

// checkChunkAnomaly flags chunk counts wildly inconsistent with the
// extracted text length.
func (c *Checker) checkChunkAnomaly(source *models.Source, doc *models.Document) *models.HealthCheck {
	textLen := source.ExtractedTextLength
	if doc != nil && len(doc.ContentText) > textLen {
		textLen = len(doc.ContentText)
	}

	if source.Status == models.SourceStatusLive && source.ChunkCount == 0 {
		return models.NewHealthCheck(source, models.CheckChunkAnomaly, models.CheckStatusFail,
			"source is live but has no indexed chunks")
	}
	if textLen > 0 && source.ChunkCount > 0 {
		// A chunk per ~10 characters means the chunker misfired
		if source.ChunkCount > textLen/10 {
			check := models.NewHealthCheck(source, models.CheckChunkAnomaly, models.CheckStatusWarning,
				fmt.Sprintf("%d chunks for %d chars of text looks anomalous", source.ChunkCount, textLen))
			check.Metadata["chunk_count"] = source.ChunkCount
			check.Metadata["text_length"] = textLen
			return check
		}
	}

	return models.NewHealthCheck(source, models.CheckChunkAnomaly, models.CheckStatusPass, "")
}

// checkMissingMetadata warns when provenance metadata is absent
func (c *Checker) checkMissingMetadata(source *models.Source) *models.HealthCheck {
	var missing []string
	if source.Title == "" {
		missing = append(missing, "title")
	}
	if source.URL == "" && source.FileName == "" {
		missing = append(missing, "origin reference")
	}

	if len(missing) == 0 {
		return models.NewHealthCheck(source, models.CheckMissingMetadata, models.CheckStatusPass, "")
	}

	check := models.NewHealthCheck(source, models.CheckMissingMetadata, models.CheckStatusWarning,
		fmt.Sprintf("missing provenance metadata: %v", missing))
	check.Metadata["missing_fields"] = missing
	return check
}

// applyHealthStatus rolls check outcomes up into the source row: any fail
// or warning marks the source needs_attention; a fail on an errored
// source marks it failed outright.
func (c *Checker) applyHealthStatus(ctx context.Context, source *models.Source, results []*models.HealthCheck) {
	hasFail := false
	hasWarning := false
	for _, check := range results {
		switch check.Status {
		case models.CheckStatusFail:
			hasFail = true
		case models.CheckStatusWarning:
			hasWarning = true
		}
	}

	status := models.HealthStatusHealthy
	switch {
	case hasFail && source.Status == models.SourceStatusError:
		status = models.HealthStatusFailed
	case hasFail || hasWarning:
		status = models.HealthStatusNeedsAttention
	}

	if source.HealthStatus == status {
		return
	}
	source.HealthStatus = status
	if err := c.sources.SaveSource(ctx, source); err != nil {
		c.logger.Warn().Err(err).Str("source_id", source.ID).Msg("Failed to update health status")
	}
}

func (c *Checker) publish(ctx context.Context, source *models.Source, results []*models.HealthCheck) {
	if c.bus == nil {
		return
	}
	_ = c.bus.Publish(ctx, interfaces.Event{
		Type: interfaces.EventHealthChecked,
		Payload: map[string]interface{}{
			"source_id":     source.ID,
			"twin_id":       source.TwinID,
			"health_status": string(source.HealthStatus),
			"checks":        len(results),
		},
	})
}
