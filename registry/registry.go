// Package registry implements the orchestrator's provider registry: an
// immutable, read-only map from provider id to ProviderConfig with a
// stable priority-ordered iteration.
package registry

import (
	"fmt"
	"sort"

	"github.com/limmutable/orchestrator/orcherr"
	"github.com/limmutable/orchestrator/orchestrator"
)

// Registry is safe for concurrent reads without locking: it is built
// once at startup and never mutated.
type Registry struct {
	byID     map[orchestrator.ProviderID]orchestrator.ProviderConfig
	ordered  []orchestrator.ProviderID // stable, by ascending priority
}

// New validates and builds a Registry. It returns an
// *orcherr.ConfigurationError when a provider id is duplicated,
// priorities collide, or the orchestration config's provider_priority
// references an unknown provider.
func New(configs []orchestrator.ProviderConfig, priority []orchestrator.ProviderID) (*Registry, error) {
	byID := make(map[orchestrator.ProviderID]orchestrator.ProviderConfig, len(configs))
	seenPriority := make(map[int]orchestrator.ProviderID, len(configs))

	for _, cfg := range configs {
		cfg.Normalize()
		if _, dup := byID[cfg.ProviderName]; dup {
			return nil, &orcherr.ConfigurationError{Reason: fmt.Sprintf("duplicate provider id %q", cfg.ProviderName)}
		}
		if other, dup := seenPriority[cfg.Priority]; dup {
			return nil, &orcherr.ConfigurationError{Reason: fmt.Sprintf("provider %q and %q share priority %d", cfg.ProviderName, other, cfg.Priority)}
		}
		seenPriority[cfg.Priority] = cfg.ProviderName
		byID[cfg.ProviderName] = cfg
	}

	for _, id := range priority {
		if _, ok := byID[id]; !ok {
			return nil, &orcherr.ConfigurationError{Reason: fmt.Sprintf("provider_priority references unknown provider %q", id)}
		}
	}

	ordered := make([]orchestrator.ProviderID, 0, len(byID))
	for id := range byID {
		ordered = append(ordered, id)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return byID[ordered[i]].Priority < byID[ordered[j]].Priority
	})

	return &Registry{byID: byID, ordered: ordered}, nil
}

// Get returns the configuration for id, or false if unknown.
func (r *Registry) Get(id orchestrator.ProviderID) (orchestrator.ProviderConfig, bool) {
	cfg, ok := r.byID[id]
	return cfg, ok
}

// All returns every configured provider, ordered by ascending priority
// (1 = highest, listed first).
func (r *Registry) All() []orchestrator.ProviderConfig {
	out := make([]orchestrator.ProviderConfig, 0, len(r.ordered))
	for _, id := range r.ordered {
		out = append(out, r.byID[id])
	}
	return out
}

// Priority returns the stable priority order of provider ids.
func (r *Registry) Priority() []orchestrator.ProviderID {
	out := make([]orchestrator.ProviderID, len(r.ordered))
	copy(out, r.ordered)
	return out
}
