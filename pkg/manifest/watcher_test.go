package manifest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestWatchReload tests that editing a watched manifest triggers a
// reload carrying the fresh contents.
func TestWatchReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "components.cue")
	if err := os.WriteFile(path, []byte("components: {alpha: {}}\n"), 0o644); err != nil {
		t.Fatalf("Failed to write manifest file: %v", err)
	}

	loader := testLoader()
	reloaded := make(chan *ParsedManifest, 4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := loader.Watch(ctx, []string{path}, func(m *ParsedManifest) error {
		reloaded <- m
		return nil
	})
	if err != nil {
		t.Fatalf("Failed to start watching: %v", err)
	}

	updated := `
components: {
	alpha: {}
	beta: {dependencies: [{id: "alpha"}]}
}
`
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatalf("Failed to update manifest file: %v", err)
	}

	select {
	case m := <-reloaded:
		if len(m.Errors) > 0 {
			t.Fatalf("Reload carried errors: %v", m.Errors)
		}
		if len(m.Components) != 2 {
			t.Errorf("Expected 2 components after reload, got %d", len(m.Components))
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for reload")
	}
}

// TestWatchDeliversParseErrors tests that a reload of a broken
// manifest hands the errors to the callback instead of dropping the
// reload.
func TestWatchDeliversParseErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "components.cue")
	if err := os.WriteFile(path, []byte("components: {alpha: {}}\n"), 0o644); err != nil {
		t.Fatalf("Failed to write manifest file: %v", err)
	}

	loader := testLoader()
	reloaded := make(chan *ParsedManifest, 4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := loader.Watch(ctx, []string{path}, func(m *ParsedManifest) error {
		reloaded <- m
		return nil
	})
	if err != nil {
		t.Fatalf("Failed to start watching: %v", err)
	}

	if err := os.WriteFile(path, []byte("components: {"), 0o644); err != nil {
		t.Fatalf("Failed to update manifest file: %v", err)
	}

	select {
	case m := <-reloaded:
		if len(m.Errors) == 0 {
			t.Error("Expected reload to carry parse errors")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for reload")
	}
}

// TestStopWatching tests that stopping the watcher is clean and
// repeatable.
func TestStopWatching(t *testing.T) {
	path := filepath.Join(t.TempDir(), "components.cue")
	if err := os.WriteFile(path, []byte("components: {alpha: {}}\n"), 0o644); err != nil {
		t.Fatalf("Failed to write manifest file: %v", err)
	}

	loader := testLoader()
	err := loader.Watch(context.Background(), []string{path}, func(*ParsedManifest) error {
		return nil
	})
	if err != nil {
		t.Fatalf("Failed to start watching: %v", err)
	}

	if err := loader.StopWatching(); err != nil {
		t.Errorf("StopWatching failed: %v", err)
	}

	// A loader that never watched stops cleanly too.
	if err := testLoader().StopWatching(); err != nil {
		t.Errorf("StopWatching on idle loader failed: %v", err)
	}
}
