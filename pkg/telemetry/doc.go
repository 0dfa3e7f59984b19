// Package telemetry provides comprehensive observability instrumentation for Weft.
//
// The telemetry package integrates structured logging (zerolog), distributed tracing
// (OpenTelemetry), metrics (Prometheus), and event publishing into a unified system
// for monitoring and debugging Weft orchestration runs.
//
// # Architecture
//
// The telemetry system is built on four pillars:
//
//  1. Structured Logging - Context-aware logging with zerolog
//  2. Distributed Tracing - OpenTelemetry traces with multiple exporters
//  3. Metrics Collection - Prometheus metrics for operational insights
//  4. Event Publishing - Async event system for audit and notifications
//
// # Usage
//
// Initialize telemetry at application startup:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceName = "weft"
//	cfg.ServiceVersion = "1.0.0"
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
//	// Start metrics server
//	if err := tel.StartMetricsServer(); err != nil {
//	    log.Fatal(err)
//	}
//
// Add telemetry to context:
//
//	ctx = tel.WithContext(ctx)
//
// # Structured Logging
//
// The logger provides component-specific logging with automatic context propagation:
//
//	logger := tel.Logger.NewComponentLogger("engine")
//	logger = logger.WithRunID("run-123").WithComponentID("fetch-users")
//	logger.Info("Starting component execution")
//	logger.WithError(err).Error("Execution failed")
//
// Log levels: trace, debug, info, warn, error, fatal
//
// # Distributed Tracing
//
// Tracing provides visibility into run flow and cache behavior:
//
//	ctx, span := tel.Tracer.Start(ctx, "operation.name")
//	defer span.End()
//
//	// Add attributes
//	span.SetAttributes(
//	    attribute.String("component.id", componentID),
//	    attribute.String("cache.outcome", "fast_hit"),
//	)
//
//	// Record errors
//	if err != nil {
//	    telemetry.RecordError(span, err)
//	}
//
// Supported exporters: OTLP (production), Stdout (development)
//
// # Metrics
//
// Prometheus metrics track orchestration and cache behavior:
//
//	// Record run execution
//	tel.Metrics.RecordRunStarted()
//	tel.Metrics.RecordRunCompleted("succeeded", duration)
//
//	// Record component execution
//	tel.Metrics.RecordComponentExecution("fetch-users", "succeeded", duration)
//
//	// Record cache behavior
//	tel.Metrics.RecordCacheRequest("fast_hit")
//	tel.Metrics.RecordCacheEviction("capacity")
//	tel.Metrics.SetCacheSize(entries, bytes)
//
//	// Record errors
//	tel.Metrics.RecordError("transient", "CACHE_STORAGE_FAILURE")
//
// Metrics are exposed via HTTP at /metrics (default: :9090/metrics)
//
// # Event Publishing
//
// The event system provides async publishing with buffering and filtering:
//
//	// Publish events
//	tel.Events.PublishRunStarted(runID, componentCount)
//	tel.Events.PublishComponentCached(runID, componentID, cacheKey, "slow")
//	tel.Events.PublishCacheDegraded("sqlite I/O error")
//
//	// Subscribe to events
//	tel.Events.Subscribe(func(event telemetry.Event) {
//	    fmt.Printf("Event: %s - %s\n", event.Type, event.Message)
//	}, telemetry.FilterByLevel("warning"))
//
// Event filters: FilterByLevel, FilterByType, FilterByRunID, FilterByComponentID
//
// # Context Helpers
//
// High-level helpers simplify common instrumentation patterns:
//
//	// Instrument an operation
//	ic := telemetry.StartOperation(ctx, "graph.resolve",
//	    attribute.Int("graph.requested", len(ids)))
//	defer ic.End(err)
//
//	ic.Logger.Info("Resolving dependency graph")
//
//	// Run context
//	ctx = telemetry.WithRunContext(ctx, runID, componentCount)
//	defer telemetry.EndRunContext(ctx, runID, status, duration, err)
//
//	// Component context
//	ctx = telemetry.WithComponentContext(ctx, runID, componentID)
//	defer telemetry.EndComponentContext(ctx, runID, componentID, status, err)
//
//	// Store operation
//	err := telemetry.RecordStoreOperation(ctx, "put", func() error {
//	    return store.Put(ctx, rec)
//	})
//
// # Configuration
//
// The package provides pre-configured setups for different environments:
//
//	// Development (verbose logging, stdout traces, full sampling)
//	cfg := telemetry.DevelopmentConfig()
//
//	// Production (JSON logs, OTLP traces, 10% sampling)
//	cfg := telemetry.ProductionConfig()
//
// # Common Metrics
//
// Key metrics exposed:
//
//  - weft_runs_started_total
//  - weft_runs_completed_total{status}
//  - weft_run_duration_seconds{status}
//  - weft_components_executed_total{status}
//  - weft_component_duration_seconds{component,status}
//  - weft_resolves_total{status}
//  - weft_cache_requests_total{outcome}
//  - weft_cache_evictions_total{reason}
//  - weft_cache_entries / weft_cache_bytes
//  - weft_store_calls_total{operation}
//  - weft_errors_by_class_total{class}
//  - weft_active_runs
//
// # Graceful Shutdown
//
// Always shut down telemetry gracefully to flush pending data:
//
//	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
//	defer cancel()
//
//	if err := tel.Shutdown(ctx); err != nil {
//	    log.Printf("Telemetry shutdown error: %v", err)
//	}
//
// This ensures all buffered events are published and all pending traces
// are exported.
package telemetry
