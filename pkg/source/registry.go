package source

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Registry holds the configured sources in registration order.
//
// Registry is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	sources []Source
	byName  map[string]Source
	logger  *slog.Logger
}

// NewRegistry creates a new source registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		byName: make(map[string]Source),
		logger: logger,
	}
}

// Register adds a source to the registry.
func (r *Registry) Register(source Source) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := source.Name()
	if _, exists := r.byName[name]; exists {
		return &DuplicateSourceError{Name: name}
	}

	r.sources = append(r.sources, source)
	r.byName[name] = source

	r.logger.Debug("registered source", slog.String("source", name))
	return nil
}

// Get returns a source by name, or nil.
func (r *Registry) Get(name string) Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byName[name]
}

// All returns all registered sources in registration order.
func (r *Registry) All() []Source {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Source, len(r.sources))
	copy(result, r.sources)
	return result
}

// Count returns the number of registered sources.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sources)
}

// FetchAll queries every source in order and concatenates their rules.
// The first failure is returned and no rules are reported, since a partial
// list cannot be told apart from routers having been removed.
func (r *Registry) FetchAll(ctx context.Context) ([]HostRule, error) {
	var all []HostRule
	for _, src := range r.All() {
		rules, err := src.Fetch(ctx)
		if err != nil {
			if _, ok := IsFetchError(err); !ok {
				err = NewFetchError(src.Name(), Unreachable, err)
			}
			return nil, fmt.Errorf("fetching rules: %w", err)
		}

		r.logger.Debug("fetched router rules",
			slog.String("source", src.Name()),
			slog.Int("routers", len(rules)),
		)
		all = append(all, rules...)
	}
	return all, nil
}
