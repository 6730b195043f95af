// Package provider tracks the live call providers by owning component.
package provider

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/callbroker/callbroker/internal/resolve"
)

// Registry maps component names to their providers. Providers register when
// their transport comes up and unregister when it goes away; the resolver
// skips candidates whose component has no provider at dispatch time.
type Registry struct {
	logger *slog.Logger

	mu        sync.RWMutex
	providers map[string]resolve.Provider
}

// NewRegistry creates an empty provider registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:    logger.With("subsystem", "provider-registry"),
		providers: make(map[string]resolve.Provider),
	}
}

// Register binds a provider to a component, replacing any previous one.
func (r *Registry) Register(component string, p resolve.Provider) {
	r.mu.Lock()
	_, replaced := r.providers[component]
	r.providers[component] = p
	r.mu.Unlock()
	r.logger.Info("provider registered", "component", component, "replaced", replaced)
}

// Unregister removes the provider for a component, if any.
func (r *Registry) Unregister(component string) {
	r.mu.Lock()
	_, ok := r.providers[component]
	delete(r.providers, component)
	r.mu.Unlock()
	if ok {
		r.logger.Info("provider unregistered", "component", component)
	}
}

// Provider returns the provider for a component, or nil.
func (r *Registry) Provider(component string) resolve.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.providers[component]
}

// Components returns the registered component names in sorted order.
func (r *Registry) Components() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.providers))
	for c := range r.providers {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Count returns the number of registered providers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers)
}
