package engine_test

import (
	"context"
	"fmt"
	"log"

	"github.com/openweft/weft/pkg/cache"
	"github.com/openweft/weft/pkg/engine"
)

// Example_orchestration demonstrates a complete run: register
// components, resolve, and execute level by level.
func Example_orchestration() {
	reg := engine.NewRegistry()
	descriptors := []engine.ComponentDescriptor{
		{ID: "extract"},
		{ID: "transform", Dependencies: []engine.Dependency{{ID: "extract"}}},
		{ID: "report", Dependencies: []engine.Dependency{{ID: "transform"}}},
	}
	for _, desc := range descriptors {
		if err := reg.Register(desc); err != nil {
			log.Fatalf("Failed to register %s: %v", desc.ID, err)
		}
	}

	c, err := cache.NewTieredCache(cache.Config{Capacity: 128})
	if err != nil {
		log.Fatalf("Failed to create cache: %v", err)
	}

	orch, err := engine.NewOrchestrator(engine.OrchestratorConfig{
		Registry: reg,
		Cache:    c,
		Invoke: func(ctx context.Context, inv engine.Invocation) (interface{}, error) {
			return map[string]string{"stage": inv.ComponentID}, nil
		},
	})
	if err != nil {
		log.Fatalf("Failed to create orchestrator: %v", err)
	}

	run, err := orch.Execute(context.Background(), engine.Request{
		Input: map[string]string{"day": "2026-03-01"},
	})
	if err != nil {
		log.Fatalf("Execute failed: %v", err)
	}

	fmt.Println("Run status:", run.Status)
	for _, id := range run.Order {
		res := run.Components[id]
		fmt.Printf("%s: %s (cached: %v)\n", id, res.Status, res.CacheHit)
	}

	// Output:
	// Run status: succeeded
	// extract: succeeded (cached: false)
	// transform: succeeded (cached: false)
	// report: succeeded (cached: false)
}

// Example_cachedRerun demonstrates result reuse across runs: the second
// execution of an identical request is served entirely from cache.
func Example_cachedRerun() {
	reg := engine.NewRegistry()
	if err := reg.Register(engine.ComponentDescriptor{ID: "fetch"}); err != nil {
		log.Fatalf("Failed to register: %v", err)
	}

	c, err := cache.NewTieredCache(cache.Config{Capacity: 16})
	if err != nil {
		log.Fatalf("Failed to create cache: %v", err)
	}

	invocations := 0
	orch, err := engine.NewOrchestrator(engine.OrchestratorConfig{
		Registry: reg,
		Cache:    c,
		Invoke: func(ctx context.Context, inv engine.Invocation) (interface{}, error) {
			invocations++
			return map[string]int{"rows": 42}, nil
		},
	})
	if err != nil {
		log.Fatalf("Failed to create orchestrator: %v", err)
	}

	ctx := context.Background()
	first, err := orch.Execute(ctx, engine.Request{})
	if err != nil {
		log.Fatalf("First execute failed: %v", err)
	}
	second, err := orch.Execute(ctx, engine.Request{})
	if err != nil {
		log.Fatalf("Second execute failed: %v", err)
	}

	fmt.Println("First run cached:", first.Components["fetch"].CacheHit)
	fmt.Printf("Second run cached: %v (tier %s)\n",
		second.Components["fetch"].CacheHit, second.Components["fetch"].CacheTier)
	fmt.Println("Invocations:", invocations)

	// Output:
	// First run cached: false
	// Second run cached: true (tier fast)
	// Invocations: 1
}

// Example_failurePropagation demonstrates how one failing component
// blocks its required dependents but leaves independent siblings alone.
func Example_failurePropagation() {
	reg := engine.NewRegistry()
	descriptors := []engine.ComponentDescriptor{
		{ID: "auth"},
		{ID: "banner"},
		{ID: "profile", Dependencies: []engine.Dependency{{ID: "auth"}}},
	}
	for _, desc := range descriptors {
		if err := reg.Register(desc); err != nil {
			log.Fatalf("Failed to register %s: %v", desc.ID, err)
		}
	}

	c, err := cache.NewTieredCache(cache.Config{Capacity: 16})
	if err != nil {
		log.Fatalf("Failed to create cache: %v", err)
	}

	orch, err := engine.NewOrchestrator(engine.OrchestratorConfig{
		Registry: reg,
		Cache:    c,
		Invoke: func(ctx context.Context, inv engine.Invocation) (interface{}, error) {
			if inv.ComponentID == "auth" {
				return nil, fmt.Errorf("token service unreachable")
			}
			return "rendered", nil
		},
	})
	if err != nil {
		log.Fatalf("Failed to create orchestrator: %v", err)
	}

	run, err := orch.Execute(context.Background(), engine.Request{})
	if err != nil {
		log.Fatalf("Execute failed: %v", err)
	}

	fmt.Println("Run status:", run.Status)
	for _, id := range run.Order {
		fmt.Printf("%s: %s\n", id, run.Components[id].Status)
	}
	fmt.Println("Blocked by:", run.Components["profile"].Error.Details["blocked_by"])

	// Output:
	// Run status: partial
	// auth: failed
	// banner: succeeded
	// profile: blocked
	// Blocked by: [auth]
}

// Example_errorHandling demonstrates error classification and handling.
func Example_errorHandling() {
	// Create different error types
	transientErr := engine.NewTransientError("slow tier unreachable", nil).
		WithComponent("report").
		WithOperation("cache.put")

	permanentErr := engine.NewPermanentError("component not registered", nil).
		WithCode(engine.ErrCodeComponentNotFound).
		WithDetail("missing", []string{"reporting"})

	// Check error classification
	canRetry := engine.IsRetryable(transientErr)     // true - transient errors are retryable
	cannotRetry := !engine.IsRetryable(permanentErr) // true - permanent errors are not retryable

	_, _, _ = transientErr, permanentErr, canRetry && cannotRetry
}

// Example_statusValidation demonstrates status enum validation.
func Example_statusValidation() {
	// Validate status enums
	status := engine.RunStatusRunning
	isValid := status.Validate() == nil // Status is valid

	// Check status properties
	isActive := status.IsActive()         // Status is pending or running
	isNotTerminal := !status.IsTerminal() // Status has not reached a final state

	// Component statuses carry the same helpers
	blocked := engine.ComponentStatusBlocked
	isFinal := blocked.IsTerminal() // Blocked components never run again

	_, _, _, _ = isValid, isActive, isNotTerminal, isFinal
}
