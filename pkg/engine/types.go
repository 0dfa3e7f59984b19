package engine

import (
	"context"
	"encoding/json"
	"time"

	"github.com/openweft/weft/pkg/fingerprint"
)

// ComponentDescriptor declares a unit of application logic and its
// dependencies. Descriptors are registered once and treated as
// immutable; the registry copies them on the way in and out.
type ComponentDescriptor struct {
	// ID is the unique identifier for this component.
	ID string `json:"id"`

	// Description is an optional human-readable description.
	Description string `json:"description,omitempty"`

	// Dependencies lists the components that must initialize before this one.
	Dependencies []Dependency `json:"dependencies,omitempty"`

	// Labels are key-value pairs for organizing and selecting components.
	Labels map[string]string `json:"labels,omitempty"`
}

// clone returns a deep copy of the descriptor so registered descriptors
// stay immutable regardless of what callers do with their copies.
func (d ComponentDescriptor) clone() ComponentDescriptor {
	cp := d
	if d.Dependencies != nil {
		cp.Dependencies = make([]Dependency, len(d.Dependencies))
		copy(cp.Dependencies, d.Dependencies)
	}
	if d.Labels != nil {
		cp.Labels = make(map[string]string, len(d.Labels))
		for k, v := range d.Labels {
			cp.Labels[k] = v
		}
	}
	return cp
}

// Dependency represents an edge in the dependency graph.
type Dependency struct {
	// ID is the component this dependency points at.
	ID string `json:"id"`

	// Optional marks a soft dependency: it orders execution when the
	// target is part of the resolution, but a missing target is dropped
	// with a warning and a failed target does not block the dependent.
	Optional bool `json:"optional,omitempty"`
}

// ExecutionGraph is the resolved dependency graph for one resolution
// request: a deterministic topological order, per-node levels, and a
// reverse index for dependent lookups.
type ExecutionGraph struct {
	// Nodes maps component IDs to their graph nodes.
	Nodes map[string]*GraphNode `json:"nodes"`

	// Edges lists all dependency edges in the graph.
	Edges []GraphEdge `json:"edges"`

	// Order is the full topological order. Nodes within a level are
	// sorted lexicographically, so the order is deterministic.
	Order []string `json:"order"`

	// Levels groups component IDs by execution level. All dependencies
	// of a node live at strictly lower levels.
	Levels [][]string `json:"levels"`

	// Roots are the component IDs with no dependencies in this graph.
	Roots []string `json:"roots"`

	// Depth is the number of execution levels.
	Depth int `json:"depth"`

	// Warnings collects non-fatal resolution notes, such as optional
	// dependencies that were dropped because their target is absent.
	Warnings []string `json:"warnings,omitempty"`
}

// DependentsOf returns the IDs that directly depend on the given
// component. The reverse index is built during resolution, so the
// lookup itself is O(1) plus the returned slice.
func (g *ExecutionGraph) DependentsOf(id string) []string {
	node, ok := g.Nodes[id]
	if !ok {
		return nil
	}
	return node.Dependents
}

// DependenciesOf returns the IDs the given component directly depends
// on within this graph.
func (g *ExecutionGraph) DependenciesOf(id string) []string {
	node, ok := g.Nodes[id]
	if !ok {
		return nil
	}
	return node.Dependencies
}

// LevelOf returns the execution level of the given component, or -1 if
// the component is not part of this graph.
func (g *ExecutionGraph) LevelOf(id string) int {
	node, ok := g.Nodes[id]
	if !ok {
		return -1
	}
	return node.Level
}

// GraphNode represents a node in the execution graph.
type GraphNode struct {
	// ID is the component ID.
	ID string `json:"id"`

	// Level is the topological level: 0 for roots, otherwise one more
	// than the deepest dependency.
	Level int `json:"level"`

	// Dependencies are the incoming edges (components this depends on).
	Dependencies []string `json:"dependencies"`

	// Dependents are the outgoing edges (components that depend on this).
	Dependents []string `json:"dependents"`
}

// GraphEdge represents an edge in the execution graph.
type GraphEdge struct {
	// From is the dependency component ID.
	From string `json:"from"`

	// To is the dependent component ID.
	To string `json:"to"`

	// Optional marks a soft dependency edge.
	Optional bool `json:"optional,omitempty"`
}

// InvokeFunc is the opaque callback that executes a component's actual
// logic. The engine inspects only the returned value and error; the
// value must be JSON-serializable to be cached and handed to dependents.
type InvokeFunc func(ctx context.Context, inv Invocation) (interface{}, error)

// Invocation carries everything a component invocation sees.
type Invocation struct {
	// RunID is the ID of the run this invocation belongs to.
	RunID string `json:"run_id"`

	// ComponentID is the component being invoked.
	ComponentID string `json:"component_id"`

	// Input is the execution input for this component.
	Input interface{} `json:"input,omitempty"`

	// Params are the execution parameters for this component.
	Params map[string]interface{} `json:"params,omitempty"`

	// Dependencies holds the serialized results of this component's
	// direct dependencies that succeeded earlier in the run.
	Dependencies map[string]json.RawMessage `json:"dependencies,omitempty"`
}

// Request describes one orchestration run.
type Request struct {
	// Components are the requested component IDs. Empty means all
	// registered components. Required transitive dependencies are
	// always pulled in.
	Components []string `json:"components,omitempty"`

	// Input is the shared execution input used for fingerprinting and
	// handed to every invocation.
	Input interface{} `json:"input,omitempty"`

	// Params are the shared execution parameters.
	Params map[string]interface{} `json:"params,omitempty"`

	// ComponentInputs overrides Input for specific components.
	ComponentInputs map[string]interface{} `json:"component_inputs,omitempty"`

	// ComponentParams overrides Params for specific components.
	ComponentParams map[string]map[string]interface{} `json:"component_params,omitempty"`

	// CacheTTL overrides the cache-wide default TTL for results stored
	// during this run. Zero keeps the default.
	CacheTTL time.Duration `json:"cache_ttl,omitempty"`

	// Refresh skips cache lookups and re-invokes every component.
	// Fresh results are still stored.
	Refresh bool `json:"refresh,omitempty"`
}

// Run represents one orchestration run.
type Run struct {
	// ID is the unique identifier for this run.
	ID string `json:"id"`

	// Status is the current status of the run.
	Status RunStatus `json:"status"`

	// StartedAt is when the run started.
	StartedAt time.Time `json:"started_at"`

	// CompletedAt is when the run completed.
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Duration is the total run duration.
	Duration time.Duration `json:"duration"`

	// Components are the per-component results, keyed by component ID.
	Components map[string]*ComponentResult `json:"components"`

	// Order is the resolved execution order used by this run.
	Order []string `json:"order"`

	// Warnings are the resolution warnings for this run.
	Warnings []string `json:"warnings,omitempty"`

	// Summary provides statistics about the run.
	Summary RunSummary `json:"summary"`
}

// RunSummary provides statistics about a run.
type RunSummary struct {
	// Total is the total number of components in the run.
	Total int `json:"total"`

	// Succeeded is the number of components that succeeded.
	Succeeded int `json:"succeeded"`

	// Failed is the number of components whose invocation failed.
	Failed int `json:"failed"`

	// Blocked is the number of components blocked by failed dependencies.
	Blocked int `json:"blocked"`

	// Cancelled is the number of components that never ran due to cancellation.
	Cancelled int `json:"cancelled"`

	// CacheHits is the number of components served from the cache.
	CacheHits int `json:"cache_hits"`
}

// ComponentResult represents the outcome of one component within a run.
type ComponentResult struct {
	// ComponentID is the component this result belongs to.
	ComponentID string `json:"component_id"`

	// Status indicates how the component finished.
	Status ComponentStatus `json:"status"`

	// Value is the serialized component result, from the cache or from
	// a fresh invocation.
	Value json.RawMessage `json:"value,omitempty"`

	// CacheHit reports whether the value came from the cache.
	CacheHit bool `json:"cache_hit"`

	// CacheTier names the tier that served a cache hit ("fast" or "slow").
	CacheTier string `json:"cache_tier,omitempty"`

	// Fingerprint is the cache key computed for this component.
	Fingerprint fingerprint.Key `json:"fingerprint"`

	// StartedAt is when the component started.
	StartedAt time.Time `json:"started_at"`

	// CompletedAt is when the component completed.
	CompletedAt time.Time `json:"completed_at"`

	// Duration is the component execution time.
	Duration time.Duration `json:"duration"`

	// Error is the classified error, if the component did not succeed.
	Error *EngineError `json:"error,omitempty"`
}
