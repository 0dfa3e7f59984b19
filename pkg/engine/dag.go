package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

// GraphBuilder resolves component descriptors into an execution graph.
// It validates dependencies, detects cycles, and computes deterministic
// topological levels. A builder is stateless between calls; Resolve
// rebuilds everything from the descriptor snapshot it is handed.
type GraphBuilder struct {
	logger zerolog.Logger

	// components indexes the descriptor snapshot by ID
	components map[string]*ComponentDescriptor

	// included is the resolution closure: requested IDs plus required
	// transitive dependencies
	included map[string]bool

	// adjacency maps a component to the components that depend on it
	adjacency map[string][]string

	// reverse maps a component to the components it depends on
	reverse map[string][]string

	// optional marks edges (from -> to) that are soft dependencies
	optional map[string]map[string]bool

	// inDegree tracks the number of incoming edges for each node
	inDegree map[string]int

	// levels maps execution level to component IDs at that level
	levels [][]string

	// warnings collects non-fatal notes, such as dropped optional edges
	warnings []string
}

// NewGraphBuilder creates a new graph builder. The logger receives
// resolution warnings; the zero value is silent.
func NewGraphBuilder(logger zerolog.Logger) *GraphBuilder {
	return &GraphBuilder{
		logger: logger.With().Str("component", "resolver").Logger(),
	}
}

// Resolve builds an execution graph for the requested component IDs
// from the given descriptor snapshot. An empty id list resolves every
// descriptor in the snapshot. Required transitive dependencies are
// always pulled into the graph; optional dependencies order execution
// only when their target is part of it.
//
// A structural problem (unknown requested ID, duplicate descriptor,
// required dependency on an unregistered component, or a cycle) aborts
// the entire batch with a classified error and no side effects.
func (b *GraphBuilder) Resolve(descriptors []ComponentDescriptor, ids []string) (*ExecutionGraph, error) {
	b.reset()

	if err := b.index(descriptors); err != nil {
		return nil, err
	}

	if err := b.computeClosure(ids); err != nil {
		return nil, err
	}

	if len(b.included) == 0 {
		return &ExecutionGraph{
			Nodes:  make(map[string]*GraphNode),
			Edges:  make([]GraphEdge, 0),
			Order:  make([]string, 0),
			Levels: make([][]string, 0),
			Roots:  make([]string, 0),
		}, nil
	}

	b.buildEdges()

	if err := b.detectCycles(); err != nil {
		return nil, err
	}

	if err := b.computeLevels(); err != nil {
		return nil, err
	}

	return b.buildExecutionGraph(), nil
}

// reset clears all builder state from a previous resolution.
func (b *GraphBuilder) reset() {
	b.components = make(map[string]*ComponentDescriptor)
	b.included = make(map[string]bool)
	b.adjacency = make(map[string][]string)
	b.reverse = make(map[string][]string)
	b.optional = make(map[string]map[string]bool)
	b.inDegree = make(map[string]int)
	b.levels = make([][]string, 0)
	b.warnings = make([]string, 0)
}

// index validates and indexes the descriptor snapshot.
func (b *GraphBuilder) index(descriptors []ComponentDescriptor) error {
	for i := range descriptors {
		desc := &descriptors[i]
		if desc.ID == "" {
			return NewPermanentError("component descriptor has empty ID", nil).
				WithCode(ErrCodeValidation)
		}
		if _, exists := b.components[desc.ID]; exists {
			return NewPermanentError(
				fmt.Sprintf("duplicate component descriptor: %s", desc.ID), nil).
				WithCode(ErrCodeDuplicateComponent).
				WithComponent(desc.ID)
		}
		b.components[desc.ID] = desc
	}
	return nil
}

// computeClosure expands the requested ID set with required transitive
// dependencies. Unknown requested IDs and required dependencies on
// unregistered components abort the batch.
func (b *GraphBuilder) computeClosure(ids []string) error {
	var worklist []string
	if len(ids) == 0 {
		for id := range b.components {
			worklist = append(worklist, id)
		}
	} else {
		var notFound []string
		for _, id := range ids {
			if _, exists := b.components[id]; !exists {
				notFound = append(notFound, id)
				continue
			}
			worklist = append(worklist, id)
		}
		if len(notFound) > 0 {
			sort.Strings(notFound)
			return NewPermanentError(
				fmt.Sprintf("requested components not registered: %s", strings.Join(notFound, ", ")), nil).
				WithCode(ErrCodeComponentNotFound).
				WithDetail("missing", notFound)
		}
	}
	sort.Strings(worklist)

	missing := make(map[string][]string)
	for len(worklist) > 0 {
		id := worklist[0]
		worklist = worklist[1:]
		if b.included[id] {
			continue
		}
		b.included[id] = true

		for _, dep := range b.components[id].Dependencies {
			if dep.Optional {
				continue
			}
			if _, exists := b.components[dep.ID]; !exists {
				missing[dep.ID] = append(missing[dep.ID], id)
				continue
			}
			if !b.included[dep.ID] {
				worklist = append(worklist, dep.ID)
			}
		}
	}

	if len(missing) > 0 {
		ids := make([]string, 0, len(missing))
		for id := range missing {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		err := NewPermanentError(
			fmt.Sprintf("unresolved required dependencies: %s", strings.Join(ids, ", ")), nil).
			WithCode(ErrCodeUnresolvedDependency).
			WithDetail("missing", ids)
		for _, id := range ids {
			dependents := missing[id]
			sort.Strings(dependents)
			err = err.WithDetail("required_by_"+id, dependents)
		}
		return err
	}

	return nil
}

// buildEdges constructs the deduplicated edge set over the closure.
// Optional dependencies whose target is not part of the closure are
// dropped with a warning; a dependency declared both required and
// optional is treated as required.
func (b *GraphBuilder) buildEdges() {
	for id := range b.included {
		b.adjacency[id] = make([]string, 0)
		b.reverse[id] = make([]string, 0)
		b.inDegree[id] = 0
	}

	for id := range b.included {
		seen := make(map[string]bool)
		for _, dep := range b.components[id].Dependencies {
			if !b.included[dep.ID] {
				// Required targets are always in the closure, so this
				// is an optional edge with an absent target.
				b.warn(id, dep.ID)
				continue
			}
			if seen[dep.ID] {
				if !dep.Optional {
					b.markRequired(dep.ID, id)
				}
				continue
			}
			seen[dep.ID] = true

			b.adjacency[dep.ID] = append(b.adjacency[dep.ID], id)
			b.reverse[id] = append(b.reverse[id], dep.ID)
			b.inDegree[id]++
			if dep.Optional {
				if b.optional[dep.ID] == nil {
					b.optional[dep.ID] = make(map[string]bool)
				}
				b.optional[dep.ID][id] = true
			}
		}
	}

	// Sorted neighbor lists make cycle reports and level order
	// deterministic regardless of map iteration.
	for id := range b.adjacency {
		sort.Strings(b.adjacency[id])
	}
	for id := range b.reverse {
		sort.Strings(b.reverse[id])
	}
}

// warn records and logs a dropped optional dependency.
func (b *GraphBuilder) warn(id, depID string) {
	var msg string
	if _, registered := b.components[depID]; registered {
		msg = fmt.Sprintf("component %s: optional dependency %s is not part of this resolution, edge dropped", id, depID)
	} else {
		msg = fmt.Sprintf("component %s: optional dependency %s is not registered, edge dropped", id, depID)
	}
	b.warnings = append(b.warnings, msg)
	b.logger.Warn().
		Str("component_id", id).
		Str("dependency", depID).
		Msg("Dropping optional dependency with absent target")
}

// markRequired upgrades an already-recorded edge to required.
func (b *GraphBuilder) markRequired(from, to string) {
	if b.optional[from] != nil {
		delete(b.optional[from], to)
	}
}

// detectCycles uses depth-first search to detect circular dependencies.
// Nodes and neighbors are visited in sorted order, so the reported
// cycle is deterministic.
func (b *GraphBuilder) detectCycles() error {
	ids := make([]string, 0, len(b.included))
	for id := range b.included {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	visited := make(map[string]bool)
	recStack := make(map[string]bool)

	for _, id := range ids {
		if !visited[id] {
			if cycle := b.findCycle(id, visited, recStack, nil); cycle != nil {
				return NewPermanentError(
					fmt.Sprintf("circular dependency detected: %s", strings.Join(cycle, " -> ")), nil).
					WithCode(ErrCodeCycleDetected).
					WithDetail("cycle", cycle)
			}
		}
	}

	return nil
}

// findCycle performs DFS and returns the full cycle path from the first
// occurrence of the revisited node (e.g. [a b a]), or nil.
func (b *GraphBuilder) findCycle(
	nodeID string,
	visited map[string]bool,
	recStack map[string]bool,
	path []string,
) []string {
	visited[nodeID] = true
	recStack[nodeID] = true
	path = append(path, nodeID)

	for _, dependent := range b.adjacency[nodeID] {
		if !visited[dependent] {
			if cycle := b.findCycle(dependent, visited, recStack, path); cycle != nil {
				return cycle
			}
		} else if recStack[dependent] {
			for i, id := range path {
				if id == dependent {
					cycle := make([]string, 0, len(path)-i+1)
					cycle = append(cycle, path[i:]...)
					return append(cycle, dependent)
				}
			}
		}
	}

	recStack[nodeID] = false
	return nil
}

// computeLevels assigns execution levels using Kahn's algorithm.
// Components at the same level have no dependencies between them; the
// IDs within each level are sorted so the full order is deterministic.
func (b *GraphBuilder) computeLevels() error {
	inDegree := make(map[string]int, len(b.inDegree))
	for id, degree := range b.inDegree {
		inDegree[id] = degree
	}

	currentLevel := make([]string, 0)
	for id, degree := range inDegree {
		if degree == 0 {
			currentLevel = append(currentLevel, id)
		}
	}

	if len(currentLevel) == 0 && len(b.included) > 0 {
		return NewPermanentError("no root components found, all components have dependencies", nil).
			WithCode(ErrCodeInternal)
	}

	processed := 0
	for len(currentLevel) > 0 {
		sort.Strings(currentLevel)
		b.levels = append(b.levels, currentLevel)
		processed += len(currentLevel)

		nextLevel := make([]string, 0)
		for _, id := range currentLevel {
			for _, dependent := range b.adjacency[id] {
				inDegree[dependent]--
				if inDegree[dependent] == 0 {
					nextLevel = append(nextLevel, dependent)
				}
			}
		}
		currentLevel = nextLevel
	}

	// Cycle detection runs first, so every component must have been
	// assigned a level by now.
	if processed != len(b.included) {
		return NewPermanentError("failed to level all components, possible cycle", nil).
			WithCode(ErrCodeInternal)
	}

	return nil
}

// buildExecutionGraph assembles the final ExecutionGraph.
func (b *GraphBuilder) buildExecutionGraph() *ExecutionGraph {
	graph := &ExecutionGraph{
		Nodes:    make(map[string]*GraphNode, len(b.included)),
		Edges:    make([]GraphEdge, 0),
		Order:    make([]string, 0, len(b.included)),
		Levels:   b.levels,
		Roots:    make([]string, 0),
		Depth:    len(b.levels),
		Warnings: b.warnings,
	}

	for level, ids := range b.levels {
		for _, id := range ids {
			graph.Nodes[id] = &GraphNode{
				ID:           id,
				Level:        level,
				Dependencies: b.reverse[id],
				Dependents:   b.adjacency[id],
			}
			graph.Order = append(graph.Order, id)
			if level == 0 {
				graph.Roots = append(graph.Roots, id)
			}
		}
	}

	for from, tos := range b.adjacency {
		for _, to := range tos {
			graph.Edges = append(graph.Edges, GraphEdge{
				From:     from,
				To:       to,
				Optional: b.optional[from][to],
			})
		}
	}
	sort.Slice(graph.Edges, func(i, j int) bool {
		if graph.Edges[i].From != graph.Edges[j].From {
			return graph.Edges[i].From < graph.Edges[j].From
		}
		return graph.Edges[i].To < graph.Edges[j].To
	})

	return graph
}

// ValidateGraph performs consistency checks on a built graph.
func ValidateGraph(graph *ExecutionGraph) error {
	if graph == nil {
		return NewPermanentError("graph is nil", nil).WithCode(ErrCodeValidation)
	}

	if len(graph.Order) != len(graph.Nodes) {
		return NewPermanentError("graph order does not cover all nodes", nil).
			WithCode(ErrCodeInternal)
	}

	for _, edge := range graph.Edges {
		if _, exists := graph.Nodes[edge.From]; !exists {
			return NewPermanentError(
				fmt.Sprintf("edge references unknown component: %s", edge.From), nil).
				WithCode(ErrCodeInternal)
		}
		if _, exists := graph.Nodes[edge.To]; !exists {
			return NewPermanentError(
				fmt.Sprintf("edge references unknown component: %s", edge.To), nil).
				WithCode(ErrCodeInternal)
		}
	}

	for _, rootID := range graph.Roots {
		node := graph.Nodes[rootID]
		if len(node.Dependencies) > 0 {
			return NewPermanentError(
				fmt.Sprintf("root component %s has dependencies", rootID), nil).
				WithCode(ErrCodeInternal)
		}
	}

	for _, node := range graph.Nodes {
		for _, depID := range node.Dependencies {
			dep, exists := graph.Nodes[depID]
			if !exists {
				return NewPermanentError(
					fmt.Sprintf("component %s depends on unknown component %s", node.ID, depID), nil).
					WithCode(ErrCodeInternal)
			}
			if dep.Level >= node.Level {
				return NewPermanentError(
					fmt.Sprintf("component %s at level %d depends on %s at level %d",
						node.ID, node.Level, depID, dep.Level), nil).
					WithCode(ErrCodeInternal)
			}
		}
	}

	return nil
}

// ToDOT generates a DOT representation of the graph for visualization
// with Graphviz tools. Levels are grouped into dashed clusters; optional
// dependency edges are dashed.
func (g *ExecutionGraph) ToDOT() string {
	var sb strings.Builder

	sb.WriteString("digraph ExecutionGraph {\n")
	sb.WriteString("  rankdir=TB;\n")
	sb.WriteString("  node [shape=box, style=rounded];\n\n")

	for level, ids := range g.Levels {
		sb.WriteString(fmt.Sprintf("  subgraph cluster_level_%d {\n", level))
		sb.WriteString(fmt.Sprintf("    label=\"Level %d\";\n", level))
		sb.WriteString("    style=dashed;\n")
		for _, id := range ids {
			sb.WriteString(fmt.Sprintf("    %q;\n", id))
		}
		sb.WriteString("  }\n\n")
	}

	for _, edge := range g.Edges {
		style := "style=solid, color=black"
		if edge.Optional {
			style = "style=dashed, color=gray"
		}
		sb.WriteString(fmt.Sprintf("  %q -> %q [%s];\n", edge.From, edge.To, style))
	}

	sb.WriteString("}\n")
	return sb.String()
}
