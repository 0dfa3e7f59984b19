package engine

import (
	"fmt"
	"sort"
	"sync"
)

// Registry owns the active set of component descriptors. It is passed
// by reference to whoever needs it; there is no process-wide registry.
//
// The registry is safe for concurrent use. Registration is expected to
// happen from a single writer during startup (or a manifest reload),
// with resolution reading snapshots concurrently; descriptors are
// copied on the way in and out, so a snapshot never changes under a
// running resolution.
type Registry struct {
	mu         sync.RWMutex
	components map[string]ComponentDescriptor
}

// NewRegistry creates an empty component registry.
func NewRegistry() *Registry {
	return &Registry{
		components: make(map[string]ComponentDescriptor),
	}
}

// Register adds a component descriptor to the registry. Registering an
// ID that already exists is rejected; deregister first to replace.
func (r *Registry) Register(desc ComponentDescriptor) error {
	if desc.ID == "" {
		return NewPermanentError("component descriptor has empty ID", nil).
			WithCode(ErrCodeValidation)
	}
	for _, dep := range desc.Dependencies {
		if dep.ID == "" {
			return NewPermanentError(
				fmt.Sprintf("component %s declares a dependency with empty ID", desc.ID), nil).
				WithCode(ErrCodeValidation).
				WithComponent(desc.ID)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.components[desc.ID]; exists {
		return NewConflictError(
			fmt.Sprintf("component already registered: %s", desc.ID), nil).
			WithCode(ErrCodeDuplicateComponent).
			WithComponent(desc.ID)
	}

	r.components[desc.ID] = desc.clone()
	return nil
}

// Deregister removes a component descriptor from the registry.
func (r *Registry) Deregister(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.components[id]; !exists {
		return NewPermanentError(
			fmt.Sprintf("component not registered: %s", id), nil).
			WithCode(ErrCodeComponentNotFound).
			WithComponent(id)
	}

	delete(r.components, id)
	return nil
}

// Get returns a copy of the descriptor for the given component ID.
func (r *Registry) Get(id string) (ComponentDescriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	desc, exists := r.components[id]
	if !exists {
		return ComponentDescriptor{}, NewPermanentError(
			fmt.Sprintf("component not registered: %s", id), nil).
			WithCode(ErrCodeComponentNotFound).
			WithComponent(id)
	}
	return desc.clone(), nil
}

// Has reports whether a component ID is registered.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.components[id]
	return exists
}

// Snapshot returns copies of all registered descriptors, sorted by ID.
// The snapshot is what resolution operates on; later registry changes
// do not affect it.
func (r *Registry) Snapshot() []ComponentDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	descs := make([]ComponentDescriptor, 0, len(r.components))
	for _, desc := range r.components {
		descs = append(descs, desc.clone())
	}
	sort.Slice(descs, func(i, j int) bool { return descs[i].ID < descs[j].ID })
	return descs
}

// IDs returns all registered component IDs, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.components))
	for id := range r.components {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of registered components.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.components)
}
