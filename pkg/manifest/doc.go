// Package manifest provides CUE manifest parsing for component
// discovery.
//
// # Overview
//
// The engine core takes descriptors through explicit Registry.Register
// calls and nothing else. This package is the optional bootstrap in
// front of that: CUE manifests declare components and their
// dependencies, the loader validates the declarations, and Apply turns
// them into registration calls. Programs that register components in
// code never need this package.
//
// # Features
//
//   - CUE manifest parsing from files, directories, and inline content
//   - Schema validation with built-in component and dependency schemas
//   - Struct-tag validation of decoded declarations
//   - Error reporting with file locations and line numbers
//   - Manifest merging from multiple sources via CUE unification
//   - Hot reload of manifest sources through an fsnotify watcher
//
// # Usage Example
//
//	loader := manifest.NewLoader(logger)
//
//	reg := engine.NewRegistry()
//	parsed, err := loader.Bootstrap(ctx, []string{"components.cue"}, reg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Optionally reload on file changes.
//	err = loader.Watch(ctx, []string{"components.cue"}, func(m *manifest.ParsedManifest) error {
//	    fresh := engine.NewRegistry()
//	    return m.Apply(fresh)
//	})
//
// # Manifest Structure
//
// Components are declared as a map keyed by component ID, or as a
// list of declarations carrying their own id fields:
//
//	metadata: {
//	    name:    "payments"
//	    version: "1"
//	}
//
//	components: {
//	    database: {}
//	    migrations: {
//	        dependencies: [{id: "database"}]
//	    }
//	    "api-server": {
//	        description: "public API"
//	        dependencies: [
//	            {id: "migrations"},
//	            {id: "metrics", optional: true},
//	        ]
//	        labels: {tier: "frontend"}
//	    }
//	}
//
// Multiple sources unify into one manifest, so shared declarations can
// live in a base file with environment-specific overlays on top.
//
// # Error Handling
//
// Parse and validation problems carry source positions:
//
//	ValidationError{
//	    File:     "components.cue",
//	    Line:     12,
//	    Column:   5,
//	    Path:     "components.api-server",
//	    Message:  "validation failed: ...",
//	    Severity: "error",
//	}
//
// Load collects them on the ParsedManifest rather than failing fast,
// so one broken declaration does not hide the rest. Apply refuses
// manifests that carry errors.
//
// # Thread Safety
//
// A Loader may be shared across goroutines for parsing. Watch starts a
// single background goroutine; call it once per Loader.
package manifest
