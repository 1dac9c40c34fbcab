// Package persona manages the reviewer persona registry: ordered
// persona definitions consumed read-only by the review orchestrator.
package persona

import (
	"fmt"

	"github.com/Bluesun-Networks/VOS/internal/storage"
)

// Store is the persistence the registry sits on.
type Store interface {
	SavePersona(p *storage.Persona) error
	GetPersona(id string) (*storage.Persona, error)
	ListPersonas(activeOnly bool) ([]storage.Persona, error)
	SetPersonaActive(id string, active bool) error
}

// Registry provides ordered, validated access to personas.
type Registry struct {
	store Store
}

// NewRegistry creates a registry over the given store.
func NewRegistry(store Store) *Registry {
	return &Registry{store: store}
}

// ListActive returns active personas in dispatch order.
func (r *Registry) ListActive() ([]storage.Persona, error) {
	return r.store.ListPersonas(true)
}

// List returns all personas in dispatch order.
func (r *Registry) List() ([]storage.Persona, error) {
	return r.store.ListPersonas(false)
}

// Get returns one persona by ID.
func (r *Registry) Get(id string) (*storage.Persona, error) {
	return r.store.GetPersona(id)
}

// SetActive flips a persona's active flag.
func (r *Registry) SetActive(id string, active bool) error {
	return r.store.SetPersonaActive(id, active)
}

// Resolve returns the personas a review should dispatch to, in
// dispatch order. Empty ids means all active personas. Requested
// personas must exist and be active; duplicates collapse to the first
// occurrence.
func (r *Registry) Resolve(ids []string) ([]storage.Persona, error) {
	active, err := r.store.ListPersonas(true)
	if err != nil {
		return nil, err
	}

	if len(ids) == 0 {
		if len(active) == 0 {
			return nil, fmt.Errorf("no active personas configured")
		}
		return active, nil
	}

	byID := make(map[string]storage.Persona, len(active))
	for _, p := range active {
		byID[p.ID] = p
	}

	seen := make(map[string]bool, len(ids))
	var resolved []storage.Persona
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		p, ok := byID[id]
		if !ok {
			// Distinguish unknown from inactive for the error message.
			if existing, err := r.store.GetPersona(id); err == nil && !existing.IsActive {
				return nil, fmt.Errorf("persona %q (%s) is not active", existing.Name, id)
			}
			return nil, fmt.Errorf("persona %q: %w", id, storage.ErrNotFound)
		}
		resolved = append(resolved, p)
	}
	return resolved, nil
}

// ValidateWeights rejects personas with negative weights. The config
// boundary clamps weights to [0, 5]; a negative value reaching the
// engine means that boundary was bypassed.
func ValidateWeights(personas []storage.Persona) error {
	for _, p := range personas {
		if p.Weight < 0 {
			return fmt.Errorf("persona %q has negative weight %v", p.Name, p.Weight)
		}
	}
	return nil
}
