package pipeline

import (
	"fmt"

	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/interfaces"
	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/models"
)

// Registry holds the provider adapters. Registration happens once during
// app wiring; lookups are read-only afterwards, so no locking is needed.
type Registry struct {
	adapters map[models.Provider]interfaces.ProviderAdapter
}

// NewRegistry creates an empty adapter registry
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[models.Provider]interfaces.ProviderAdapter)}
}

// Register adds an adapter for its provider
func (r *Registry) Register(adapter interfaces.ProviderAdapter) {
	r.adapters[adapter.Provider()] = adapter
}

// Get returns the adapter for a provider
func (r *Registry) Get(provider models.Provider) (interfaces.ProviderAdapter, error) {
	adapter, ok := r.adapters[provider]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for provider %s", provider)
	}
	return adapter, nil
}
