package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/Idosegev23/ldrsagent/pkg/models"
)

// ErrCapabilityNotFound indicates a route names a capability that is not
// registered. This is a configuration defect and is never retried.
var ErrCapabilityNotFound = errors.New("capability not found")

// Capability is a pluggable unit of work the orchestrator dispatches to.
// Implementations read the job's persisted knowledge pack and must not
// perform retrieval themselves.
type Capability interface {
	// ID returns the stable capability identifier routes refer to.
	ID() string
	// CanHandle reports whether the capability accepts the given intent.
	CanHandle(intent string) bool
	// Execute runs the capability against the job with the given input.
	// The input is the raw request for single-capability routes and the
	// expanded step input for plan steps.
	Execute(ctx context.Context, job *models.Job, input string) (*models.Result, error)
}

// CapabilityRegistry manages the set of registered capabilities.
// It provides thread-safe registration and lookup.
type CapabilityRegistry struct {
	// capabilities maps capability IDs to implementations.
	capabilities map[string]Capability
	// mu protects all fields.
	mu sync.RWMutex
}

// NewCapabilityRegistry creates a new CapabilityRegistry.
func NewCapabilityRegistry() *CapabilityRegistry {
	return &CapabilityRegistry{
		capabilities: make(map[string]Capability),
	}
}

// Register adds a capability to the registry.
// Registering the same ID twice replaces the previous entry.
func (r *CapabilityRegistry) Register(c Capability) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.capabilities[c.ID()] = c
}

// Get retrieves a capability by ID.
func (r *CapabilityRegistry) Get(id string) (Capability, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.capabilities[id]
	if !ok {
		return nil, fmt.Errorf("capability %q: %w", id, ErrCapabilityNotFound)
	}
	return c, nil
}

// IDs returns the registered capability IDs in stable order.
func (r *CapabilityRegistry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.capabilities))
	for id := range r.capabilities {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
