// Package graph provides a dependency graph for execution plan steps.
package graph

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/Idosegev23/ldrsagent/pkg/models"
)

// ErrCycleDetected indicates a circular dependency was found among plan steps.
var ErrCycleDetected = errors.New("circular dependency detected")

// ErrDanglingDependency indicates a step depends on an ID not present in the plan.
var ErrDanglingDependency = errors.New("dangling dependency reference")

// DependencyGraph represents a directed acyclic graph of step dependencies.
// Steps are nodes, and edges represent "blocked by" relationships.
type DependencyGraph struct {
	mu sync.RWMutex
	// nodes maps step ID to the step itself.
	nodes map[string]*models.ExecutionStep
	// edges maps step ID to IDs of steps it depends on (is blocked by).
	edges map[string][]string
	// completed tracks which steps have been marked complete.
	completed map[string]bool
}

// New creates a new empty dependency graph.
func New() *DependencyGraph {
	return &DependencyGraph{
		nodes:     make(map[string]*models.ExecutionStep),
		edges:     make(map[string][]string),
		completed: make(map[string]bool),
	}
}

// Build constructs the dependency graph from a slice of steps.
// Returns an error if a cycle is detected or a dependency references an
// unknown step. A step depending on itself counts as a cycle.
func (g *DependencyGraph) Build(steps []*models.ExecutionStep) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, step := range steps {
		g.nodes[step.ID] = step
		g.edges[step.ID] = nil
	}

	for _, step := range steps {
		for _, depID := range step.DependsOn {
			if _, exists := g.nodes[depID]; !exists {
				return fmt.Errorf("step %s depends on unknown step %s: %w", step.ID, depID, ErrDanglingDependency)
			}
			g.edges[step.ID] = append(g.edges[step.ID], depID)
		}
	}

	if g.hasCycleLocked() {
		return ErrCycleDetected
	}

	return nil
}

// HasCycle returns true if the graph contains a circular dependency.
// Uses depth-first search with coloring to detect back edges.
func (g *DependencyGraph) HasCycle() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.hasCycleLocked()
}

// hasCycleLocked is the internal implementation that assumes the lock is held.
func (g *DependencyGraph) hasCycleLocked() bool {
	// Color states: 0 = white (unvisited), 1 = gray (in progress), 2 = black (done).
	colors := make(map[string]int)
	for id := range g.nodes {
		colors[id] = 0
	}

	var hasCycle bool
	var visit func(id string) bool
	visit = func(id string) bool {
		colors[id] = 1

		for _, depID := range g.edges[id] {
			switch colors[depID] {
			case 1:
				// Found a back edge - cycle detected.
				return true
			case 0:
				if visit(depID) {
					return true
				}
			}
		}

		colors[id] = 2
		return false
	}

	for id := range g.nodes {
		if colors[id] == 0 {
			if visit(id) {
				hasCycle = true
				break
			}
		}
	}

	return hasCycle
}

// Batches partitions the steps into dependency-ordered batches.
// Each batch contains only steps whose every dependency appears in an
// earlier batch; steps within one batch are safe to run concurrently.
// The union of batches is exactly the input set, each step once.
// Returns an error instead of spinning if remaining steps can never become
// schedulable (a cycle or a dangling reference).
func (g *DependencyGraph) Batches() ([]models.ExecutionBatch, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	scheduled := make(map[string]bool, len(g.nodes))
	var batches []models.ExecutionBatch

	for len(scheduled) < len(g.nodes) {
		var members []*models.ExecutionStep
		for id, step := range g.nodes {
			if scheduled[id] {
				continue
			}
			ready := true
			for _, depID := range g.edges[id] {
				if !scheduled[depID] {
					ready = false
					break
				}
			}
			if ready {
				members = append(members, step)
			}
		}

		if len(members) == 0 {
			// No progress possible with unscheduled steps remaining.
			return nil, fmt.Errorf("%d steps unschedulable: %w", len(g.nodes)-len(scheduled), ErrCycleDetected)
		}

		// Deterministic order within the batch.
		sort.Slice(members, func(i, j int) bool {
			return members[i].Ordinal < members[j].Ordinal
		})

		for _, step := range members {
			scheduled[step.ID] = true
		}
		batches = append(batches, models.ExecutionBatch{
			Index: len(batches),
			Steps: members,
		})
	}

	return batches, nil
}

// GetReady returns step IDs that have no unmet dependencies and are not yet
// completed. These steps can be executed in parallel.
func (g *DependencyGraph) GetReady() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ready []string
	for id, step := range g.nodes {
		if g.completed[id] {
			continue
		}
		if step.Status == models.StepStatusDone || step.Status == models.StepStatusFailed {
			continue
		}

		allDepsComplete := true
		for _, depID := range g.edges[id] {
			if !g.completed[depID] {
				allDepsComplete = false
				break
			}
		}
		if allDepsComplete {
			ready = append(ready, id)
		}
	}

	sort.Slice(ready, func(i, j int) bool {
		return g.nodes[ready[i]].Ordinal < g.nodes[ready[j]].Ordinal
	})
	return ready
}

// MarkComplete marks a step as completed in the graph.
// This affects subsequent calls to GetReady.
func (g *DependencyGraph) MarkComplete(stepID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.completed[stepID] = true
}

// GetDependents returns the IDs of steps that depend on the given step.
func (g *DependencyGraph) GetDependents(stepID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var dependents []string
	for id, deps := range g.edges {
		for _, depID := range deps {
			if depID == stepID {
				dependents = append(dependents, id)
				break
			}
		}
	}
	return dependents
}
