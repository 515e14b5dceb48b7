package host

import (
	"fmt"
	"sort"
	"sync"

	"ezvizswitch/internal/switches"
)

// Registry holds the live entities keyed by unique ID
type Registry struct {
	mu       sync.RWMutex
	entities map[string]*switches.Entity
}

// NewRegistry creates an empty entity registry
func NewRegistry() *Registry {
	return &Registry{
		entities: make(map[string]*switches.Entity),
	}
}

// Add registers an entity. Unique IDs must be non-empty and unused.
func (r *Registry) Add(e *switches.Entity) error {
	if e == nil {
		return fmt.Errorf("entity cannot be nil")
	}
	id := e.UniqueID()
	if id == "" {
		return fmt.Errorf("entity unique id cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entities[id]; exists {
		return fmt.Errorf("entity %s already registered", id)
	}
	r.entities[id] = e
	return nil
}

// Has reports whether an entity with the unique ID exists
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entities[id]
	return ok
}

// Get returns the entity for a unique ID, or nil if not found
func (r *Registry) Get(id string) *switches.Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entities[id]
}

// List returns all entities sorted by unique ID
func (r *Registry) List() []*switches.Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*switches.Entity, 0, len(r.entities))
	for _, e := range r.entities {
		result = append(result, e)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].UniqueID() < result[j].UniqueID()
	})
	return result
}

// IDs returns the sorted unique IDs
func (r *Registry) IDs() []string {
	entities := r.List()
	ids := make([]string, len(entities))
	for i, e := range entities {
		ids[i] = e.UniqueID()
	}
	return ids
}

// Len returns the number of registered entities
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entities)
}
