package engine

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/openweft/weft/pkg/cache"
	"github.com/openweft/weft/pkg/config"
	"github.com/openweft/weft/pkg/stores"
	"github.com/openweft/weft/pkg/telemetry"
)

// NewOrchestratorFromConfig builds the engine stack described by a
// runtime configuration: telemetry, the slow-tier store matching the
// configured backend, the tiered cache with its optional expiry
// sweeper, and the orchestrator on top.
//
// The returned cleanup function stops background loops and closes the
// store and telemetry in reverse construction order; callers defer it
// next to the constructor. When an error is returned, everything
// constructed up to that point has already been torn down and the
// cleanup function is nil.
func NewOrchestratorFromConfig(ctx context.Context, cfg *config.Config, registry *Registry, invoke InvokeFunc) (*Orchestrator, func(), error) {
	if cfg == nil {
		return nil, nil, NewPermanentError("configuration is required", nil).
			WithCode(ErrCodeValidation).
			WithOperation("setup")
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, nil, NewPermanentError("invalid configuration", err).
			WithCode(ErrCodeValidation).
			WithOperation("setup")
	}

	tel, err := telemetry.NewTelemetry(cfg.ToTelemetryConfig())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	logger := tel.Logger.Zerolog().With().Str("component", "setup").Logger()

	slow, gc, err := buildStore(ctx, cfg, tel)
	if err != nil {
		shutdownTelemetry(tel)
		return nil, nil, err
	}

	tiered, err := cache.NewTieredCache(cache.Config{
		Capacity:   cfg.Cache.Capacity,
		MaxBytes:   cfg.Cache.MaxBytes,
		Eviction:   cfg.Cache.Eviction,
		DefaultTTL: cfg.Cache.DefaultTTL.Std(),
		Slow:       slow,
		Logger:     tel.Logger.NewComponentLogger("cache").Zerolog(),
		Metrics:    tel.Metrics,
	})
	if err != nil {
		closeStore(slow, logger)
		shutdownTelemetry(tel)
		return nil, nil, fmt.Errorf("failed to initialize cache: %w", err)
	}

	var sweeper *cache.Sweeper
	if interval := cfg.Cache.SweepInterval.Std(); interval > 0 {
		sweeper, err = cache.NewSweeper(tiered, interval, tel.Logger.NewComponentLogger("sweeper").Zerolog())
		if err != nil {
			closeStore(slow, logger)
			shutdownTelemetry(tel)
			return nil, nil, fmt.Errorf("failed to initialize sweeper: %w", err)
		}
	}

	orch, err := NewOrchestrator(OrchestratorConfig{
		Registry:    registry,
		Cache:       tiered,
		Invoke:      invoke,
		Parallelism: cfg.Engine.Parallelism,
		Telemetry:   tel,
	})
	if err != nil {
		closeStore(slow, logger)
		shutdownTelemetry(tel)
		return nil, nil, err
	}

	if sweeper != nil {
		sweeper.Start()
	}
	if gc != nil {
		gc.Start()
	}

	cleanup := func() {
		if sweeper != nil {
			sweeper.Stop()
		}
		if gc != nil {
			gc.Stop()
		}
		closeStore(slow, logger)
		shutdownTelemetry(tel)
	}

	return orch, cleanup, nil
}

// buildStore constructs the slow-tier store for the configured backend
// and runs its Init and Migrate lifecycle. The badger backend also
// returns a value-log GC runner when gc_interval is set; the caller
// starts it once the rest of the stack is up.
func buildStore(ctx context.Context, cfg *config.Config, tel *telemetry.Telemetry) (stores.SlowStore, *stores.GCRunner, error) {
	var slow stores.SlowStore
	var gc *stores.GCRunner

	switch cfg.Store.Backend {
	case config.BackendNone:
		return nil, nil, nil

	case config.BackendSQLite:
		st, err := stores.NewSQLiteStore(stores.Config{Path: cfg.Store.Path})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize sqlite store: %w", err)
		}
		slow = st

	case config.BackendBadger:
		st, err := stores.NewBadgerStore(stores.BadgerConfig{
			Path:       cfg.Store.Path,
			InMemory:   cfg.Store.InMemory,
			SyncWrites: cfg.Store.SyncWrites,
			Logger:     tel.Logger.NewComponentLogger("store").Zerolog(),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize badger store: %w", err)
		}
		if interval := cfg.Store.GCInterval.Std(); interval > 0 {
			gc, err = stores.NewGCRunner(st, interval)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to initialize badger GC runner: %w", err)
			}
		}
		slow = st

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	if err := slow.Init(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to open %s store: %w", cfg.Store.Backend, err)
	}
	if err := slow.Migrate(ctx); err != nil {
		_ = slow.Close()
		return nil, nil, fmt.Errorf("failed to migrate %s store: %w", cfg.Store.Backend, err)
	}

	return slow, gc, nil
}

func closeStore(slow stores.SlowStore, logger zerolog.Logger) {
	if slow == nil {
		return
	}
	if err := slow.Close(); err != nil {
		logger.Warn().Err(err).Msg("Failed to close slow-tier store")
	}
}

func shutdownTelemetry(tel *telemetry.Telemetry) {
	_ = tel.Shutdown(context.Background())
}
