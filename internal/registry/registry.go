// Package registry holds the catalog of registered providers.
// Two independent pools are kept: general AI providers and scripture-only
// providers. Lists are always ordered by ascending priority, ties broken by
// registration order.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/versekeeper/versekeeper/pkg/contracts"
	"github.com/versekeeper/versekeeper/pkg/models"
)

// ErrMissingID is returned when a provider without an id is registered.
var ErrMissingID = errors.New("provider descriptor has no id")

type entry[P contracts.ScriptureProvider] struct {
	provider P
	seq      uint64
}

// Registry holds providers keyed by id. Thread-safe.
type Registry struct {
	mu        sync.RWMutex
	ai        map[string]entry[contracts.AIProvider]
	scripture map[string]entry[contracts.ScriptureProvider]
	seq       uint64
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		ai:        make(map[string]entry[contracts.AIProvider]),
		scripture: make(map[string]entry[contracts.ScriptureProvider]),
	}
}

// RegisterAI adds an AI provider, replacing any provider with the same id.
// A replaced provider keeps its original place in registration order.
// Only an untyped nil is rejected; a typed nil pointer reaches Descriptor and
// panics there.
func (r *Registry) RegisterAI(p contracts.AIProvider) error {
	if p == nil {
		return fmt.Errorf("register ai provider: %w", ErrMissingID)
	}
	d := p.Descriptor()
	if strings.TrimSpace(d.ID) == "" {
		return fmt.Errorf("register ai provider %q: %w", d.Name, ErrMissingID)
	}

	r.mu.Lock()
	seq := r.nextSeq()
	if prev, ok := r.ai[d.ID]; ok {
		seq = prev.seq
	}
	r.ai[d.ID] = entry[contracts.AIProvider]{provider: p, seq: seq}
	r.mu.Unlock()

	log.Info().Str("id", d.ID).Str("kind", string(d.ServiceType)).Int("priority", d.Priority).Msg("AI provider registered")
	return nil
}

// RegisterScripture adds a scripture-only provider, replacing any provider with
// the same id. A typed nil pointer panics in Descriptor, as with RegisterAI.
func (r *Registry) RegisterScripture(p contracts.ScriptureProvider) error {
	if p == nil {
		return fmt.Errorf("register scripture provider: %w", ErrMissingID)
	}
	d := p.Descriptor()
	if strings.TrimSpace(d.ID) == "" {
		return fmt.Errorf("register scripture provider %q: %w", d.Name, ErrMissingID)
	}

	r.mu.Lock()
	seq := r.nextSeq()
	if prev, ok := r.scripture[d.ID]; ok {
		seq = prev.seq
	}
	r.scripture[d.ID] = entry[contracts.ScriptureProvider]{provider: p, seq: seq}
	r.mu.Unlock()

	log.Info().Str("id", d.ID).Str("kind", string(d.ServiceType)).Int("priority", d.Priority).Msg("Scripture provider registered")
	return nil
}

// caller holds mu.
func (r *Registry) nextSeq() uint64 {
	r.seq++
	return r.seq
}

// Get looks up a provider by id in either pool. The AI pool wins on a clash.
func (r *Registry) Get(id string) (contracts.ScriptureProvider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.ai[id]; ok {
		return e.provider, true
	}
	if e, ok := r.scripture[id]; ok {
		return e.provider, true
	}
	return nil, false
}

// GetAI looks up an AI provider by id.
func (r *Registry) GetAI(id string) (contracts.AIProvider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.ai[id]
	return e.provider, ok
}

// List returns all AI providers sorted by priority.
func (r *Registry) List() []contracts.AIProvider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sorted(r.ai)
}

// ListScripture returns all scripture-only providers sorted by priority.
func (r *Registry) ListScripture() []contracts.ScriptureProvider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sorted(r.scripture)
}

// All returns the scripture-only pool followed by the AI pool, each sorted
// by priority. Both pools are read under one lock.
func (r *Registry) All() []contracts.ScriptureProvider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := sorted(r.scripture)
	for _, p := range sorted(r.ai) {
		out = append(out, p)
	}
	return out
}

// Available returns the AI providers whose IsInitialized is true.
func (r *Registry) Available() []contracts.AIProvider {
	return filterInitialized(r.List())
}

// AvailableScripture returns the initialized scripture-only providers.
func (r *Registry) AvailableScripture() []contracts.ScriptureProvider {
	return filterInitialized(r.ListScripture())
}

// Stats counts providers. Nothing is cached.
func (r *Registry) Stats() models.RegistryStats {
	r.mu.RLock()
	stats := models.RegistryStats{
		TotalProviders:     len(r.ai) + len(r.scripture),
		AIProviders:        len(r.ai),
		ScriptureProviders: len(r.scripture),
	}
	all := make([]contracts.ScriptureProvider, 0, stats.TotalProviders)
	for _, e := range r.ai {
		all = append(all, e.provider)
	}
	for _, e := range r.scripture {
		all = append(all, e.provider)
	}
	r.mu.RUnlock()

	for _, p := range all {
		if p.IsInitialized() {
			stats.AvailableProviders++
		}
	}
	return stats
}

// Clear empties both pools.
func (r *Registry) Clear() {
	r.mu.Lock()
	r.ai = make(map[string]entry[contracts.AIProvider])
	r.scripture = make(map[string]entry[contracts.ScriptureProvider])
	r.seq = 0
	r.mu.Unlock()
	log.Info().Msg("Provider registry cleared")
}

func sorted[P contracts.ScriptureProvider](pool map[string]entry[P]) []P {
	entries := make([]entry[P], 0, len(pool))
	for _, e := range pool {
		entries = append(entries, e)
	}
	// Map iteration is random, so order by seq first; the stable sort then
	// keeps registration order among equal priorities.
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].provider.Descriptor().Priority < entries[j].provider.Descriptor().Priority
	})

	out := make([]P, len(entries))
	for i, e := range entries {
		out[i] = e.provider
	}
	return out
}

func filterInitialized[P contracts.ScriptureProvider](in []P) []P {
	out := make([]P, 0, len(in))
	for _, p := range in {
		if p.IsInitialized() {
			out = append(out, p)
		}
	}
	return out
}
