package engine

import (
	"testing"
)

// TestRegistry_RegisterAndGet tests basic registration and retrieval.
func TestRegistry_RegisterAndGet(t *testing.T) {
	reg := NewRegistry()

	err := reg.Register(ComponentDescriptor{
		ID:          "loader",
		Description: "loads source data",
		Labels:      map[string]string{"team": "data"},
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	desc, err := reg.Get("loader")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if desc.Description != "loads source data" {
		t.Errorf("Expected description to round-trip, got %q", desc.Description)
	}
	if !reg.Has("loader") {
		t.Error("Expected Has to report registered component")
	}
	if reg.Len() != 1 {
		t.Errorf("Expected 1 component, got %d", reg.Len())
	}
}

// TestRegistry_DuplicateRejected tests that re-registering an ID fails.
func TestRegistry_DuplicateRejected(t *testing.T) {
	reg := NewRegistry()

	if err := reg.Register(ComponentDescriptor{ID: "dup"}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	err := reg.Register(ComponentDescriptor{ID: "dup"})
	if err == nil {
		t.Fatal("Expected duplicate registration to fail")
	}
	if !HasCode(err, ErrCodeDuplicateComponent) {
		t.Errorf("Expected code %s, got %v", ErrCodeDuplicateComponent, err)
	}
	if reg.Len() != 1 {
		t.Errorf("Expected registry unchanged, got %d components", reg.Len())
	}
}

// TestRegistry_EmptyIDRejected tests validation of empty IDs.
func TestRegistry_EmptyIDRejected(t *testing.T) {
	reg := NewRegistry()

	if err := reg.Register(ComponentDescriptor{}); err == nil {
		t.Fatal("Expected empty ID to be rejected")
	}

	err := reg.Register(ComponentDescriptor{
		ID:           "app",
		Dependencies: []Dependency{{ID: ""}},
	})
	if err == nil {
		t.Fatal("Expected empty dependency ID to be rejected")
	}
	if !HasCode(err, ErrCodeValidation) {
		t.Errorf("Expected code %s, got %v", ErrCodeValidation, err)
	}
}

// TestRegistry_Deregister tests component removal.
func TestRegistry_Deregister(t *testing.T) {
	reg := NewRegistry()

	if err := reg.Register(ComponentDescriptor{ID: "temp"}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := reg.Deregister("temp"); err != nil {
		t.Fatalf("Deregister failed: %v", err)
	}
	if reg.Has("temp") {
		t.Error("Expected component to be gone after Deregister")
	}

	err := reg.Deregister("temp")
	if err == nil {
		t.Fatal("Expected deregistering unknown component to fail")
	}
	if !HasCode(err, ErrCodeComponentNotFound) {
		t.Errorf("Expected code %s, got %v", ErrCodeComponentNotFound, err)
	}
}

// TestRegistry_CopySemantics tests that descriptors are copied on the way
// in and out, so callers cannot mutate registered state.
func TestRegistry_CopySemantics(t *testing.T) {
	reg := NewRegistry()

	original := ComponentDescriptor{
		ID:           "app",
		Dependencies: []Dependency{{ID: "db"}},
		Labels:       map[string]string{"tier": "backend"},
	}
	if err := reg.Register(original); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	// Mutating the caller's copy must not affect the registry.
	original.Dependencies[0].ID = "mutated"
	original.Labels["tier"] = "mutated"

	stored, err := reg.Get("app")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if stored.Dependencies[0].ID != "db" {
		t.Errorf("Expected stored dependency db, got %s", stored.Dependencies[0].ID)
	}
	if stored.Labels["tier"] != "backend" {
		t.Errorf("Expected stored label backend, got %s", stored.Labels["tier"])
	}

	// Mutating the returned copy must not affect the registry either.
	stored.Dependencies[0].ID = "mutated"
	again, _ := reg.Get("app")
	if again.Dependencies[0].ID != "db" {
		t.Error("Expected Get to return an independent copy")
	}
}

// TestRegistry_SnapshotSorted tests that Snapshot returns descriptors in
// ID order.
func TestRegistry_SnapshotSorted(t *testing.T) {
	reg := NewRegistry()

	for _, id := range []string{"zeta", "alpha", "mid"} {
		if err := reg.Register(ComponentDescriptor{ID: id}); err != nil {
			t.Fatalf("Register %s failed: %v", id, err)
		}
	}

	snapshot := reg.Snapshot()
	if len(snapshot) != 3 {
		t.Fatalf("Expected 3 descriptors, got %d", len(snapshot))
	}
	expected := []string{"alpha", "mid", "zeta"}
	for i, id := range expected {
		if snapshot[i].ID != id {
			t.Errorf("Expected snapshot[%d] = %s, got %s", i, id, snapshot[i].ID)
		}
	}

	ids := reg.IDs()
	for i, id := range expected {
		if ids[i] != id {
			t.Errorf("Expected ids[%d] = %s, got %s", i, id, ids[i])
		}
	}
}

// TestRegistry_GetUnknown tests retrieval of an unregistered component.
func TestRegistry_GetUnknown(t *testing.T) {
	reg := NewRegistry()

	_, err := reg.Get("nope")
	if err == nil {
		t.Fatal("Expected error for unknown component")
	}
	if !HasCode(err, ErrCodeComponentNotFound) {
		t.Errorf("Expected code %s, got %v", ErrCodeComponentNotFound, err)
	}
}
