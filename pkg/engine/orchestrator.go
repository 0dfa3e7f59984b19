package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/openweft/weft/pkg/cache"
	"github.com/openweft/weft/pkg/fingerprint"
	"github.com/openweft/weft/pkg/telemetry"
)

// OrchestratorConfig configures an Orchestrator.
type OrchestratorConfig struct {
	// Registry supplies the component descriptors to resolve against.
	Registry *Registry

	// Cache stores component results keyed by fingerprint.
	Cache *cache.TieredCache

	// Invoke executes a single component on a cache miss. The engine
	// inspects only success or failure and the returned value.
	Invoke InvokeFunc

	// Parallelism bounds concurrent component executions within a
	// level. Values below 2 select sequential execution; the pool
	// always joins fully before the next level starts.
	Parallelism int

	// Telemetry receives run spans, metrics, events, and provides the
	// logger. Optional; a nil value disables instrumentation.
	Telemetry *telemetry.Telemetry
}

// Orchestrator coordinates component execution: it resolves the
// dependency graph, consults the cache per component, invokes the
// component callback on misses, and records per-run results.
//
// An Orchestrator is safe for concurrent use; each Execute call runs
// with its own resolver and run state.
type Orchestrator struct {
	registry    *Registry
	cache       *cache.TieredCache
	invoke      InvokeFunc
	parallelism int
	tel         *telemetry.Telemetry
	logger      zerolog.Logger

	mu   sync.RWMutex
	runs map[string]*Run
}

// NewOrchestrator creates an orchestrator from the given configuration.
func NewOrchestrator(cfg OrchestratorConfig) (*Orchestrator, error) {
	if cfg.Registry == nil {
		return nil, NewPermanentError("orchestrator requires a registry", nil).
			WithCode(ErrCodeValidation)
	}
	if cfg.Cache == nil {
		return nil, NewPermanentError("orchestrator requires a cache", nil).
			WithCode(ErrCodeValidation)
	}
	if cfg.Invoke == nil {
		return nil, NewPermanentError("orchestrator requires an invoke callback", nil).
			WithCode(ErrCodeValidation)
	}
	if cfg.Parallelism < 0 {
		return nil, NewPermanentError(
			fmt.Sprintf("parallelism must not be negative, got %d", cfg.Parallelism), nil).
			WithCode(ErrCodeValidation)
	}

	logger := zerolog.Nop()
	if cfg.Telemetry != nil {
		logger = cfg.Telemetry.Logger.Zerolog()
	}

	return &Orchestrator{
		registry:    cfg.Registry,
		cache:       cfg.Cache,
		invoke:      cfg.Invoke,
		parallelism: cfg.Parallelism,
		tel:         cfg.Telemetry,
		logger:      logger.With().Str("component", "orchestrator").Logger(),
		runs:        make(map[string]*Run),
	}, nil
}

// Resolve previews the execution graph for the requested component IDs
// against the current registry contents, without executing anything.
// An empty id list resolves every registered component.
func (o *Orchestrator) Resolve(ids []string) (*ExecutionGraph, error) {
	return NewGraphBuilder(o.logger).Resolve(o.registry.Snapshot(), ids)
}

// Execute resolves the requested components and runs them level by
// level. Each component is fingerprinted from its effective input and
// params; a cache hit reuses the stored value, a miss invokes the
// component callback and caches the result. A component failure marks
// its own result failed and blocks dependents reachable through
// required edges, but leaves independent same-level siblings untouched.
//
// Structural resolution errors (unknown components, unresolved required
// dependencies, cycles) fail the whole run before anything executes.
// Component failures do not: they are recorded in the returned Run.
func (o *Orchestrator) Execute(ctx context.Context, req Request) (*Run, error) {
	if req.CacheTTL < 0 {
		return nil, NewPermanentError(
			fmt.Sprintf("cache TTL must not be negative, got %s", req.CacheTTL), nil).
			WithCode(ErrCodeValidation)
	}

	runID := uuid.New().String()
	startedAt := time.Now()

	resolveStart := time.Now()
	graph, err := NewGraphBuilder(o.logger).Resolve(o.registry.Snapshot(), req.Components)
	if err != nil {
		if o.tel != nil {
			o.tel.Metrics.RecordResolve("failed", time.Since(resolveStart))
		}
		o.logger.Error().
			Err(err).
			Str("run_id", runID).
			Strs("components", req.Components).
			Msg("Resolution failed")
		return nil, err
	}
	if o.tel != nil {
		o.tel.Metrics.RecordResolve("succeeded", time.Since(resolveStart))
		ctx = o.tel.WithContext(ctx)
	}
	ctx = telemetry.WithRunContext(ctx, runID, len(graph.Order))

	o.logger.Info().
		Str("run_id", runID).
		Int("components", len(graph.Order)).
		Int("levels", graph.Depth).
		Msg("Run started")

	o.storeRun(&Run{
		ID:        runID,
		Status:    RunStatusRunning,
		StartedAt: startedAt,
		Order:     graph.Order,
		Warnings:  graph.Warnings,
		Summary:   RunSummary{Total: len(graph.Order)},
	})

	rs := newRunState(runID, graph)

	for _, level := range graph.Levels {
		if ctx.Err() != nil {
			break
		}
		o.executeLevel(ctx, rs, graph, req, level)
	}
	if ctx.Err() != nil {
		if n := rs.cancelPending(); n > 0 {
			o.logger.Warn().
				Str("run_id", runID).
				Int("cancelled", n).
				Msg("Run cancelled, remaining components skipped")
		}
	}

	run := rs.finalize(startedAt, graph)
	o.storeRun(run)

	var runErr error
	if run.Status == RunStatusFailed {
		runErr = NewPermanentError(
			fmt.Sprintf("%d of %d components failed", run.Summary.Failed, run.Summary.Total), nil).
			WithCode(ErrCodeInvocationFailed)
	}
	telemetry.EndRunContext(ctx, runID, string(run.Status), run.Duration, runErr)

	o.logger.Info().
		Str("run_id", runID).
		Str("status", string(run.Status)).
		Dur("duration", run.Duration).
		Int("succeeded", run.Summary.Succeeded).
		Int("failed", run.Summary.Failed).
		Int("blocked", run.Summary.Blocked).
		Int("cancelled", run.Summary.Cancelled).
		Int("cache_hits", run.Summary.CacheHits).
		Msg("Run completed")

	return run, nil
}

// GetRun returns a recorded run by ID. The returned run must be
// treated as read-only.
func (o *Orchestrator) GetRun(runID string) (*Run, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	run, ok := o.runs[runID]
	return run, ok
}

// Runs returns all recorded runs, most recent first.
func (o *Orchestrator) Runs() []*Run {
	o.mu.RLock()
	defer o.mu.RUnlock()
	runs := make([]*Run, 0, len(o.runs))
	for _, run := range o.runs {
		runs = append(runs, run)
	}
	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].StartedAt.Equal(runs[j].StartedAt) {
			return runs[i].StartedAt.After(runs[j].StartedAt)
		}
		return runs[i].ID < runs[j].ID
	})
	return runs
}

func (o *Orchestrator) storeRun(run *Run) {
	o.mu.Lock()
	o.runs[run.ID] = run
	o.mu.Unlock()
}

// executeLevel runs all components of one level, either sequentially
// or through a bounded worker pool, and returns only when every
// component of the level has been handled.
func (o *Orchestrator) executeLevel(ctx context.Context, rs *runState, graph *ExecutionGraph, req Request, ids []string) {
	workers := o.parallelism
	if workers > len(ids) {
		workers = len(ids)
	}

	if workers <= 1 {
		for _, id := range ids {
			if ctx.Err() != nil {
				return
			}
			o.executeComponent(ctx, rs, graph, req, id)
		}
		return
	}

	workQueue := make(chan string, len(ids))
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range workQueue {
				if ctx.Err() != nil {
					// Drain the queue; untouched components stay
					// pending and are cancelled after the level loop.
					continue
				}
				o.executeComponent(ctx, rs, graph, req, id)
			}
		}()
	}

	for _, id := range ids {
		workQueue <- id
	}
	close(workQueue)
	wg.Wait()
}

// executeComponent runs a single component: blocked check, fingerprint,
// cache lookup, invocation on miss, cache write on success.
func (o *Orchestrator) executeComponent(ctx context.Context, rs *runState, graph *ExecutionGraph, req Request, id string) {
	started := time.Now()

	if upstream := rs.blockedBy(id); len(upstream) > 0 {
		blockErr := NewPermanentError(
			fmt.Sprintf("component %s blocked by failed dependency %s", id, strings.Join(upstream, ", ")), nil).
			WithCode(ErrCodeBlockedByDependency).
			WithComponent(id).
			WithDetail("blocked_by", upstream)
		rs.markBlocked(id, started, blockErr)
		o.logger.Warn().
			Str("run_id", rs.runID).
			Str("component_id", id).
			Strs("blocked_by", upstream).
			Msg("Component blocked by failed dependency")
		if o.tel != nil {
			o.tel.Metrics.RecordComponentExecution(id, "blocked", 0)
			_ = o.tel.Events.PublishComponentBlocked(rs.runID, id, strings.Join(upstream, ", "))
		}
		return
	}

	input := req.Input
	if v, ok := req.ComponentInputs[id]; ok {
		input = v
	}
	params := req.Params
	if p, ok := req.ComponentParams[id]; ok {
		params = p
	}

	key := fingerprint.New(id, input, params)

	if !req.Refresh {
		if value, tier, ok := o.cache.GetWithTier(ctx, key); ok {
			rs.markCached(id, started, key, value, tier)
			o.logger.Debug().
				Str("run_id", rs.runID).
				Str("component_id", id).
				Str("tier", tier).
				Msg("Component result served from cache")
			if o.tel != nil {
				o.tel.Metrics.RecordComponentExecution(id, "cached", time.Since(started))
				_ = o.tel.Events.PublishComponentCached(rs.runID, id, key.String(), tier)
			}
			return
		}
	}

	rs.markRunning(id, started, key)
	cctx := telemetry.WithComponentContext(ctx, rs.runID, id)

	value, err := o.safeInvoke(cctx, Invocation{
		RunID:        rs.runID,
		ComponentID:  id,
		Input:        input,
		Params:       params,
		Dependencies: rs.dependencyValues(graph, id),
	})
	if err != nil {
		engErr := classifyInvocationError(id, err)
		status := ComponentStatusFailed
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			status = ComponentStatusCancelled
		}
		rs.markDone(id, status, engErr)
		o.logger.Error().
			Err(engErr).
			Str("run_id", rs.runID).
			Str("component_id", id).
			Msg("Component invocation failed")
		telemetry.EndComponentContext(cctx, rs.runID, id, string(status), engErr)
		return
	}

	raw, merr := json.Marshal(value)
	if merr != nil {
		engErr := NewPermanentError(
			fmt.Sprintf("component %s returned an unserializable value", id), merr).
			WithCode(ErrCodeSerializationFailure).
			WithComponent(id)
		rs.markDone(id, ComponentStatusFailed, engErr)
		o.logger.Error().
			Err(engErr).
			Str("run_id", rs.runID).
			Str("component_id", id).
			Msg("Component result serialization failed")
		telemetry.EndComponentContext(cctx, rs.runID, id, string(ComponentStatusFailed), engErr)
		return
	}

	// Put failures never fail the component; the cache has already
	// logged and counted the reason.
	var stored bool
	if req.CacheTTL > 0 {
		stored = o.cache.PutTTL(ctx, key, json.RawMessage(raw), req.CacheTTL)
	} else {
		stored = o.cache.Put(ctx, key, json.RawMessage(raw))
	}
	if !stored {
		o.logger.Warn().
			Str("run_id", rs.runID).
			Str("component_id", id).
			Str("cache_key", key.String()).
			Msg("Component result not cached")
	}

	rs.markSucceeded(id, raw)
	telemetry.EndComponentContext(cctx, rs.runID, id, string(ComponentStatusSucceeded), nil)
}

// safeInvoke calls the invoke callback, converting panics into errors
// so one component cannot take down the whole run.
func (o *Orchestrator) safeInvoke(ctx context.Context, inv Invocation) (value interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewPermanentError(
				fmt.Sprintf("component %s panicked: %v", inv.ComponentID, r), nil).
				WithCode(ErrCodeInvocationFailed).
				WithComponent(inv.ComponentID)
		}
	}()
	return o.invoke(ctx, inv)
}

// classifyInvocationError wraps an invocation error as an EngineError,
// preserving an existing classification.
func classifyInvocationError(componentID string, err error) *EngineError {
	var engErr *EngineError
	if errors.As(err, &engErr) {
		if engErr.Code == "" {
			engErr = engErr.WithCode(ErrCodeInvocationFailed)
		}
		if engErr.Component == "" {
			engErr = engErr.WithComponent(componentID)
		}
		return engErr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return NewTransientError(
			fmt.Sprintf("component %s cancelled", componentID), err).
			WithCode(ErrCodeInvocationFailed).
			WithComponent(componentID)
	}
	return NewPermanentError(
		fmt.Sprintf("component %s invocation failed", componentID), err).
		WithCode(ErrCodeInvocationFailed).
		WithComponent(componentID)
}

// runState tracks per-run execution state shared between level workers.
// All result mutation goes through its mutex; the results map itself is
// fully populated before the first level starts and never changes shape.
type runState struct {
	runID string

	mu      sync.Mutex
	results map[string]*ComponentResult

	// required maps a component to its required direct dependencies,
	// sorted by ID.
	required map[string][]string
}

func newRunState(runID string, graph *ExecutionGraph) *runState {
	rs := &runState{
		runID:    runID,
		results:  make(map[string]*ComponentResult, len(graph.Order)),
		required: make(map[string][]string),
	}
	for _, id := range graph.Order {
		rs.results[id] = &ComponentResult{
			ComponentID: id,
			Status:      ComponentStatusPending,
		}
	}
	for _, edge := range graph.Edges {
		if !edge.Optional {
			rs.required[edge.To] = append(rs.required[edge.To], edge.From)
		}
	}
	return rs
}

// blockedBy returns the required direct dependencies of id that did not
// succeed. Dependencies run in earlier levels, so their results are
// terminal by the time id is considered.
func (rs *runState) blockedBy(id string) []string {
	reqs := rs.required[id]
	if len(reqs) == 0 {
		return nil
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	var blocked []string
	for _, depID := range reqs {
		if rs.results[depID].Status != ComponentStatusSucceeded {
			blocked = append(blocked, depID)
		}
	}
	return blocked
}

// dependencyValues collects the cached or computed values of id's
// succeeded direct dependencies, keyed by component ID. Failed optional
// dependencies are simply absent.
func (rs *runState) dependencyValues(graph *ExecutionGraph, id string) map[string]json.RawMessage {
	node := graph.Nodes[id]
	if node == nil || len(node.Dependencies) == 0 {
		return nil
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	deps := make(map[string]json.RawMessage, len(node.Dependencies))
	for _, depID := range node.Dependencies {
		if res, ok := rs.results[depID]; ok && res.Status == ComponentStatusSucceeded {
			deps[depID] = res.Value
		}
	}
	if len(deps) == 0 {
		return nil
	}
	return deps
}

func (rs *runState) markRunning(id string, started time.Time, key fingerprint.Key) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	res := rs.results[id]
	res.Status = ComponentStatusRunning
	res.StartedAt = started
	res.Fingerprint = key
}

func (rs *runState) markCached(id string, started time.Time, key fingerprint.Key, value []byte, tier string) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	res := rs.results[id]
	res.Status = ComponentStatusSucceeded
	res.StartedAt = started
	res.CompletedAt = time.Now()
	res.Duration = res.CompletedAt.Sub(started)
	res.Fingerprint = key
	res.Value = value
	res.CacheHit = true
	res.CacheTier = tier
}

func (rs *runState) markBlocked(id string, started time.Time, blockErr *EngineError) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	res := rs.results[id]
	res.Status = ComponentStatusBlocked
	res.StartedAt = started
	res.CompletedAt = time.Now()
	res.Duration = res.CompletedAt.Sub(started)
	res.Error = blockErr
}

// markDone finishes a previously running component with the given
// terminal status and error.
func (rs *runState) markDone(id string, status ComponentStatus, resErr *EngineError) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	res := rs.results[id]
	res.Status = status
	res.CompletedAt = time.Now()
	res.Duration = res.CompletedAt.Sub(res.StartedAt)
	res.Error = resErr
}

func (rs *runState) markSucceeded(id string, value json.RawMessage) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	res := rs.results[id]
	res.Status = ComponentStatusSucceeded
	res.CompletedAt = time.Now()
	res.Duration = res.CompletedAt.Sub(res.StartedAt)
	res.Value = value
}

// cancelPending marks every component that never started as cancelled
// and returns how many were affected.
func (rs *runState) cancelPending() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	now := time.Now()
	n := 0
	for _, res := range rs.results {
		if res.Status == ComponentStatusPending {
			res.Status = ComponentStatusCancelled
			res.StartedAt = now
			res.CompletedAt = now
			n++
		}
	}
	return n
}

// finalize computes the run summary and overall status from the
// component results.
func (rs *runState) finalize(startedAt time.Time, graph *ExecutionGraph) *Run {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	completedAt := time.Now()
	summary := RunSummary{Total: len(graph.Order)}
	for _, res := range rs.results {
		switch res.Status {
		case ComponentStatusSucceeded:
			summary.Succeeded++
			if res.CacheHit {
				summary.CacheHits++
			}
		case ComponentStatusFailed:
			summary.Failed++
		case ComponentStatusBlocked:
			summary.Blocked++
		case ComponentStatusCancelled:
			summary.Cancelled++
		}
	}

	var status RunStatus
	switch {
	case summary.Cancelled > 0:
		status = RunStatusCancelled
	case summary.Succeeded == summary.Total:
		status = RunStatusSucceeded
	case summary.Succeeded > 0:
		status = RunStatusPartial
	default:
		status = RunStatusFailed
	}

	return &Run{
		ID:          rs.runID,
		Status:      status,
		StartedAt:   startedAt,
		CompletedAt: &completedAt,
		Duration:    completedAt.Sub(startedAt),
		Components:  rs.results,
		Order:       graph.Order,
		Warnings:    graph.Warnings,
		Summary:     summary,
	}
}
