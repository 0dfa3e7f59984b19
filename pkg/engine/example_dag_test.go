package engine_test

import (
	"fmt"
	"log"
	"strings"

	"github.com/rs/zerolog"

	"github.com/openweft/weft/pkg/engine"
)

// Example_graphResolution demonstrates resolving component descriptors
// into a leveled execution graph.
func Example_graphResolution() {
	// A small deployment pipeline:
	// 1. Provision the database
	// 2. Warm the cache and run migrations (both only need the database)
	// 3. Start the app server (needs migrations)
	// 4. Attach the load balancer (needs the app server)

	descriptors := []engine.ComponentDescriptor{
		{ID: "database"},
		{ID: "cache-warmer", Dependencies: []engine.Dependency{
			{ID: "database"},
		}},
		{ID: "migrations", Dependencies: []engine.Dependency{
			{ID: "database"},
		}},
		{ID: "app-server", Dependencies: []engine.Dependency{
			{ID: "migrations"},
		}},
		{ID: "load-balancer", Dependencies: []engine.Dependency{
			{ID: "app-server"},
		}},
	}

	builder := engine.NewGraphBuilder(zerolog.Nop())
	graph, err := builder.Resolve(descriptors, nil)
	if err != nil {
		log.Fatalf("Failed to resolve graph: %v", err)
	}

	fmt.Printf("Execution graph depth: %d levels\n", graph.Depth)
	fmt.Printf("Root components: %v\n", graph.Roots)

	for level, ids := range graph.Levels {
		fmt.Printf("Level %d: %v\n", level, ids)
	}

	// Generate DOT visualization for Graphviz tooling.
	dot := graph.ToDOT()
	fmt.Printf("\n%s\n", strings.SplitN(dot, "\n", 2)[0])

	// Output:
	// Execution graph depth: 4 levels
	// Root components: [database]
	// Level 0: [database]
	// Level 1: [cache-warmer migrations]
	// Level 2: [app-server]
	// Level 3: [load-balancer]
	//
	// digraph ExecutionGraph {
}

// Example_cycleDetection demonstrates the error reported for circular
// dependencies.
func Example_cycleDetection() {
	descriptors := []engine.ComponentDescriptor{
		{ID: "billing", Dependencies: []engine.Dependency{{ID: "ledger"}}},
		{ID: "ledger", Dependencies: []engine.Dependency{{ID: "billing"}}},
	}

	builder := engine.NewGraphBuilder(zerolog.Nop())
	_, err := builder.Resolve(descriptors, nil)

	engErr := err.(*engine.EngineError)
	fmt.Println("Code:", engErr.Code)
	fmt.Println("Cycle:", engErr.Details["cycle"])

	// Output:
	// Code: CYCLE_DETECTED
	// Cycle: [billing ledger billing]
}

// Example_requestedSubset demonstrates resolving only part of the
// registered components: the required closure is pulled in, the rest
// stays out.
func Example_requestedSubset() {
	descriptors := []engine.ComponentDescriptor{
		{ID: "storage"},
		{ID: "indexer", Dependencies: []engine.Dependency{{ID: "storage"}}},
		{ID: "search", Dependencies: []engine.Dependency{{ID: "indexer"}}},
		{ID: "reporting", Dependencies: []engine.Dependency{{ID: "storage"}}},
	}

	builder := engine.NewGraphBuilder(zerolog.Nop())
	graph, err := builder.Resolve(descriptors, []string{"search"})
	if err != nil {
		log.Fatalf("Failed to resolve graph: %v", err)
	}

	fmt.Printf("Resolved order: %v\n", graph.Order)
	fmt.Printf("Level of search: %d\n", graph.LevelOf("search"))
	fmt.Printf("Reporting included: %v\n", graph.LevelOf("reporting") >= 0)

	// Output:
	// Resolved order: [storage indexer search]
	// Level of search: 2
	// Reporting included: false
}
