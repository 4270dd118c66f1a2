package registry

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"production_data_import/models"
)

// ProvisionFunc prepares storage for a machine before it becomes visible.
// Returning an error aborts the add.
type ProvisionFunc func(m models.Machine) error

// Registry is the source of truth for machine entities
type Registry struct {
	mu       sync.RWMutex
	machines []models.Machine
	seq      uint64
	now      func() time.Time
}

// New creates an empty registry
func New() *Registry {
	return &Registry{now: time.Now}
}

// Add validates the name, allocates the next id and commits the machine once provision succeeds
func (r *Registry) Add(name string, provision ProvisionFunc) (models.Machine, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Machine{}, fmt.Errorf("%w: machine name is required", models.ErrValidation)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	nextID := 1
	for _, m := range r.machines {
		if m.ID >= nextID {
			nextID = m.ID + 1
		}
	}

	machine := models.Machine{
		ID:         nextID,
		Name:       name,
		Active:     true,
		CreatedAt:  r.now(),
		Generation: r.seq + 1,
	}

	if provision != nil {
		if err := provision(machine); err != nil {
			return models.Machine{}, fmt.Errorf("failed to provision machine %q: %w", name, err)
		}
	}

	r.seq = machine.Generation
	r.machines = append(r.machines, machine)
	return machine, nil
}

// Remove deletes a machine; the last remaining machine can never be removed
func (r *Registry) Remove(id int) (models.Machine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexOf(id)
	if idx < 0 {
		return models.Machine{}, fmt.Errorf("%w: machine %d", models.ErrNotFound, id)
	}
	if len(r.machines) == 1 {
		return models.Machine{}, fmt.Errorf("%w: at least one machine must remain", models.ErrInvariant)
	}

	removed := r.machines[idx]
	r.machines = append(r.machines[:idx:idx], r.machines[idx+1:]...)
	return removed, nil
}

// Get returns the machine with the given id
func (r *Registry) Get(id int) (models.Machine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if idx := r.indexOf(id); idx >= 0 {
		return r.machines[idx], true
	}
	return models.Machine{}, false
}

// List returns the machines in insertion order
func (r *Registry) List() []models.Machine {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]models.Machine(nil), r.machines...)
}

// Len returns the number of registered machines
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.machines)
}

func (r *Registry) indexOf(id int) int {
	for i, m := range r.machines {
		if m.ID == id {
			return i
		}
	}
	return -1
}
