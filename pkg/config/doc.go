// Package config provides runtime configuration for the Weft engine.
//
// # Overview
//
// Configuration is a single YAML document with four sections: engine
// (orchestration), cache (the tiered execution cache), store (the
// slow-tier persistence backend), and telemetry (logging, metrics,
// tracing, events). Load reads a file, overlays it on the defaults,
// and validates the result; nothing downstream sees a half-formed
// Config.
//
// # Usage Example
//
//	cfg, err := config.Load("weft.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	orch, cleanup, err := engine.NewOrchestratorFromConfig(ctx, cfg, registry, invoke)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer cleanup()
//
// # Configuration Structure
//
// A complete configuration file:
//
//	engine:
//	  parallelism: 4
//
//	cache:
//	  capacity: 4096
//	  max_bytes: 67108864
//	  eviction: lru
//	  default_ttl: 15m
//	  sweep_interval: 1m
//
//	store:
//	  backend: sqlite
//	  path: weft.db
//
//	telemetry:
//	  service_name: weft
//	  log_level: info
//	  log_format: console
//	  metrics_enabled: true
//	  metrics_listen: ":9090"
//
// Durations are written in Go time.ParseDuration notation ("30s",
// "5m", "1h30m").
//
// # Validation
//
// Struct tags drive validation via go-playground/validator: eviction
// must be one of lru, lfu, fifo; the store backend one of sqlite,
// badger, none. Backend-specific constraints (a sqlite backend needs a
// path) are checked in Validate after tag validation passes.
package config
