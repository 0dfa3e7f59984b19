package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/openweft/weft/pkg/config"
)

// quietSetupConfig returns a runtime configuration suited to tests: no
// persistence, no background loops, errors-only logging.
func quietSetupConfig() *config.Config {
	cfg := config.Default()
	cfg.Store.Backend = config.BackendNone
	cfg.Cache.SweepInterval = 0
	cfg.Telemetry.LogLevel = "error"
	cfg.Telemetry.MetricsEnabled = false
	cfg.Telemetry.TracingEnabled = false
	cfg.Telemetry.EventsEnabled = false
	return cfg
}

// echoInvoke returns each component's own ID as its result value.
func echoInvoke(_ context.Context, inv Invocation) (interface{}, error) {
	return map[string]string{"id": inv.ComponentID}, nil
}

// TestNewOrchestratorFromConfig tests building and running the full
// stack with the fast tier only.
func TestNewOrchestratorFromConfig(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(ComponentDescriptor{ID: "alpha"}); err != nil {
		t.Fatalf("Failed to register alpha: %v", err)
	}
	if err := reg.Register(ComponentDescriptor{ID: "beta", Dependencies: []Dependency{{ID: "alpha"}}}); err != nil {
		t.Fatalf("Failed to register beta: %v", err)
	}

	orch, cleanup, err := NewOrchestratorFromConfig(context.Background(), quietSetupConfig(), reg, echoInvoke)
	if err != nil {
		t.Fatalf("Failed to build orchestrator from config: %v", err)
	}
	defer cleanup()

	run, err := orch.Execute(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if run.Status != RunStatusSucceeded {
		t.Errorf("Expected run to succeed, got %s", run.Status)
	}
	if len(run.Components) != 2 {
		t.Errorf("Expected 2 component results, got %d", len(run.Components))
	}
}

// TestNewOrchestratorFromConfig_SQLite tests the sqlite slow-tier
// backend end to end, including database creation on disk.
func TestNewOrchestratorFromConfig_SQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weft.db")

	cfg := quietSetupConfig()
	cfg.Store.Backend = config.BackendSQLite
	cfg.Store.Path = path

	reg := NewRegistry()
	if err := reg.Register(ComponentDescriptor{ID: "alpha"}); err != nil {
		t.Fatalf("Failed to register alpha: %v", err)
	}

	orch, cleanup, err := NewOrchestratorFromConfig(context.Background(), cfg, reg, echoInvoke)
	if err != nil {
		t.Fatalf("Failed to build orchestrator from config: %v", err)
	}

	run, err := orch.Execute(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if run.Status != RunStatusSucceeded {
		t.Errorf("Expected run to succeed, got %s", run.Status)
	}

	cleanup()

	if _, err := os.Stat(path); err != nil {
		t.Errorf("Expected database file at %s: %v", path, err)
	}
}

// TestNewOrchestratorFromConfig_Badger tests the badger slow-tier
// backend in in-memory mode.
func TestNewOrchestratorFromConfig_Badger(t *testing.T) {
	cfg := quietSetupConfig()
	cfg.Store.Backend = config.BackendBadger
	cfg.Store.InMemory = true

	reg := NewRegistry()
	if err := reg.Register(ComponentDescriptor{ID: "alpha"}); err != nil {
		t.Fatalf("Failed to register alpha: %v", err)
	}

	orch, cleanup, err := NewOrchestratorFromConfig(context.Background(), cfg, reg, echoInvoke)
	if err != nil {
		t.Fatalf("Failed to build orchestrator from config: %v", err)
	}
	defer cleanup()

	run, err := orch.Execute(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if run.Status != RunStatusSucceeded {
		t.Errorf("Expected run to succeed, got %s", run.Status)
	}
}

// TestNewOrchestratorFromConfig_Sweeper tests that a configured sweeper
// starts and stops cleanly with the stack.
func TestNewOrchestratorFromConfig_Sweeper(t *testing.T) {
	cfg := quietSetupConfig()
	cfg.Cache.SweepInterval = config.Duration(10 * time.Millisecond)

	reg := NewRegistry()
	if err := reg.Register(ComponentDescriptor{ID: "alpha"}); err != nil {
		t.Fatalf("Failed to register alpha: %v", err)
	}

	orch, cleanup, err := NewOrchestratorFromConfig(context.Background(), cfg, reg, echoInvoke)
	if err != nil {
		t.Fatalf("Failed to build orchestrator from config: %v", err)
	}

	if _, err := orch.Execute(context.Background(), Request{}); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	// Let the sweeper tick at least once before shutdown.
	time.Sleep(30 * time.Millisecond)
	cleanup()
}

// TestNewOrchestratorFromConfig_NilConfig tests that a missing
// configuration is rejected.
func TestNewOrchestratorFromConfig_NilConfig(t *testing.T) {
	_, cleanup, err := NewOrchestratorFromConfig(context.Background(), nil, NewRegistry(), echoInvoke)
	if err == nil {
		t.Fatal("Expected error for nil config, got nil")
	}
	if cleanup != nil {
		t.Error("Expected nil cleanup on error")
	}
	if !HasCode(err, ErrCodeValidation) {
		t.Errorf("Expected VALIDATION error, got: %v", err)
	}
}

// TestNewOrchestratorFromConfig_InvalidConfig tests that validation
// failures surface as classified errors.
func TestNewOrchestratorFromConfig_InvalidConfig(t *testing.T) {
	cfg := quietSetupConfig()
	cfg.Cache.Eviction = "random"

	_, cleanup, err := NewOrchestratorFromConfig(context.Background(), cfg, NewRegistry(), echoInvoke)
	if err == nil {
		t.Fatal("Expected error for invalid eviction strategy, got nil")
	}
	if cleanup != nil {
		t.Error("Expected nil cleanup on error")
	}
	if !HasCode(err, ErrCodeValidation) {
		t.Errorf("Expected VALIDATION error, got: %v", err)
	}
}
