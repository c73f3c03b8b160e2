// Package provider owns backend registration and the tiered selection
// algorithm that picks one backend per pipeline stage.
//
// Registries are explicit values passed to Selector.Pick on every call; there
// is no global registry. Guaranteed backends are never registered: the
// Selector constructs them once at startup and always has them to fall back
// on, so Pick cannot come up empty.
package provider

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"reelforge/internal/generation"
)

var (
	ErrInvalidBackend   = errors.New("invalid backend")
	ErrDuplicateBackend = errors.New("backend already registered")
)

// Registry holds the optional (Pro and Free) backends available per stage.
type Registry struct {
	mu       sync.RWMutex
	backends map[generation.Stage]map[string]generation.Backend
}

// NewRegistry returns an empty registry. An empty registry is valid: every
// selection falls through to the guaranteed backend.
func NewRegistry() *Registry {
	return &Registry{backends: make(map[generation.Stage]map[string]generation.Backend)}
}

// Register adds backend under stage. The backend must implement the stage's
// provider contract and must not claim the Guaranteed tier.
func (r *Registry) Register(stage generation.Stage, backend generation.Backend) error {
	if backend == nil {
		return fmt.Errorf("%w: nil backend for %s", ErrInvalidBackend, stage)
	}
	name := normalizeName(backend.Name())
	if name == "" {
		return fmt.Errorf("%w: backend for %s has no name", ErrInvalidBackend, stage)
	}
	if _, ok := generation.ParseStage(string(stage)); !ok {
		return fmt.Errorf("%w: unknown stage %q", ErrInvalidBackend, stage)
	}
	switch backend.Tier() {
	case generation.TierPro, generation.TierFree:
	case generation.TierGuaranteed:
		return fmt.Errorf("%w: %s claims the Guaranteed tier; guaranteed backends are built in", ErrInvalidBackend, name)
	default:
		return fmt.Errorf("%w: %s has unsupported tier %q", ErrInvalidBackend, name, backend.Tier())
	}
	if !generation.Implements(stage, backend) {
		return fmt.Errorf("%w: %s does not implement the %s provider contract", ErrInvalidBackend, name, stage)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	byName, ok := r.backends[stage]
	if !ok {
		byName = make(map[string]generation.Backend)
		r.backends[stage] = byName
	}
	if _, exists := byName[name]; exists {
		return fmt.Errorf("%w: %s/%s", ErrDuplicateBackend, stage, name)
	}
	byName[name] = backend
	return nil
}

// Lookup returns the backend registered under stage and name.
func (r *Registry) Lookup(stage generation.Stage, name string) (generation.Backend, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	backend, ok := r.backends[stage][normalizeName(name)]
	return backend, ok
}

// Names returns the sorted names registered for stage with the given tier.
func (r *Registry) Names(stage generation.Stage, tier generation.Tier) []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	for name, backend := range r.backends[stage] {
		if backend.Tier() == tier {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Len reports the number of registered backends across all stages.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	total := 0
	for _, byName := range r.backends {
		total += len(byName)
	}
	return total
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
