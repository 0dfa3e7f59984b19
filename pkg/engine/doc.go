// Package engine provides the core types and operations of the Weft
// component orchestration engine.
//
// # Overview
//
// Weft coordinates the execution of interdependent components: each
// component declares the components it depends on, and the engine works
// out a deterministic execution order, reuses previously computed
// results through a tiered cache, and invokes the component callback
// only for work that cannot be served from cache. A full run flows
// through four stages:
//
//  1. Resolve - Expand the requested components into their required
//     closure and compute topological execution levels (GraphBuilder)
//  2. Fingerprint - Derive a deterministic cache key from each
//     component's effective input and params (fingerprint.New)
//  3. Cache - Look the key up in the tiered cache; hits skip
//     invocation entirely (cache.TieredCache)
//  4. Invoke - Call the opaque InvokeFunc for misses and cache the
//     serialized result (Orchestrator)
//
// # Core Domain Types
//
// The package defines the types that represent the execution model:
//
//   - ComponentDescriptor: A registered component and its declared
//     dependencies
//   - Dependency: A dependency declaration, required or optional
//   - ExecutionGraph: The resolved graph with nodes, edges, levels,
//     and a flattened deterministic order
//   - Invocation: Everything handed to the invoke callback for one
//     component execution
//   - Run: One orchestrated execution with per-component results and
//     a summary
//   - ComponentResult: The outcome of a single component, including
//     cache provenance and the classified error if any
//
// # Registry
//
// Components are registered explicitly on a Registry, which copies
// descriptors on the way in and out so callers can never mutate
// registered state. Registration order does not matter; resolution
// works from a sorted snapshot.
//
//	reg := engine.NewRegistry()
//	err := reg.Register(engine.ComponentDescriptor{
//	    ID:           "report",
//	    Dependencies: []engine.Dependency{{ID: "extract"}},
//	})
//
// # Resolution
//
// GraphBuilder.Resolve validates the descriptor snapshot, pulls the
// transitive required closure of the requested IDs, and levels the
// graph with Kahn's algorithm. Components in the same level are
// mutually independent and sorted lexicographically, so the full order
// is reproducible across processes. Cycles, unresolved required
// dependencies, duplicate or unknown IDs abort the whole batch with a
// classified error; optional dependencies whose target is absent are
// dropped with a warning instead.
//
// # Error Classification
//
// Errors are classified for intelligent retry logic:
//
//   - Transient: Temporary failures that may succeed on retry
//   - Throttled: Rate limiting that requires backoff
//   - Conflict: State conflicts requiring coordination
//   - Permanent: Non-recoverable errors
//
// Each error additionally carries a stable code (ErrCodeCycleDetected,
// ErrCodeBlockedByDependency, ...) for programmatic handling:
//
//	if engine.HasCode(err, engine.ErrCodeCycleDetected) {
//	    // Fix the registration cycle named in the error details.
//	}
//
// # Execution Semantics
//
// The Orchestrator executes level by level. Within a level execution
// is sequential by default; setting Parallelism > 1 runs a bounded
// worker pool that fully joins before the next level starts. A failing
// component fails only its own result: independent same-level siblings
// still run, while dependents reachable through required edges are
// short-circuited with status blocked and a BLOCKED_BY_DEPENDENCY
// error naming the upstream. Optional dependency failures never block.
// Cancelling the context stops the run between components and marks
// everything not yet started as cancelled.
//
// # Example Usage
//
// Basic flow for executing registered components:
//
//	orch, err := engine.NewOrchestrator(engine.OrchestratorConfig{
//	    Registry: reg,
//	    Cache:    tieredCache,
//	    Invoke:   invokeFn,
//	})
//
//	run, err := orch.Execute(ctx, engine.Request{
//	    Components: []string{"report"},
//	    Input:      map[string]string{"day": "2026-03-01"},
//	})
//
//	if run.Status == engine.RunStatusSucceeded {
//	    value := run.Components["report"].Value
//	    // ...
//	}
//
// # Thread Safety
//
// The Registry and the Orchestrator are safe for concurrent use; each
// Execute call carries its own resolver and run state. A GraphBuilder
// instance is single-use-at-a-time and cheap to construct per call.
package engine
