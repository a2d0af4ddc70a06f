package diagnostics

import (
	"context"

	"github.com/ternarybob/arbor"

	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/interfaces"
	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/models"
)

// Service reads the source timeline for API consumers
type Service struct {
	events  interfaces.EventStorage
	sources interfaces.SourceStorage
	logger  arbor.ILogger
}

// NewService creates a diagnostics read service
func NewService(events interfaces.EventStorage, sources interfaces.SourceStorage, logger arbor.ILogger) interfaces.DiagnosticsService {
	return &Service{events: events, sources: sources, logger: logger}
}

// Available reports whether the diagnostics schema is provisioned
func (s *Service) Available() bool {
	return s.events.Available()
}

// Timeline returns the ordered event log for a source. When diagnostics
// are not provisioned this returns ErrDiagnosticsUnavailable so callers
// can distinguish "no events yet" from "no timeline at all".
func (s *Service) Timeline(ctx context.Context, sourceID string) ([]*models.SourceEvent, error) {
	if _, err := s.sources.GetSource(ctx, sourceID); err != nil {
		return nil, err
	}
	return s.events.ListEvents(ctx, sourceID)
}
