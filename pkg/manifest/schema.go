package manifest

import (
	"context"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// SchemaRegistry manages CUE schemas for manifest validation.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a new schema registry with the built-in
// component and dependency schemas.
func NewSchemaRegistry() *SchemaRegistry {
	sr := &SchemaRegistry{
		ctx:     cuecontext.New(),
		schemas: make(map[string]cue.Value),
	}

	sr.registerBuiltInSchemas()

	return sr
}

// registerBuiltInSchemas registers all built-in schemas. The built-in
// definitions share one source so cross-references resolve.
func (sr *SchemaRegistry) registerBuiltInSchemas() {
	sr.RegisterSchema("component", builtinSchema, "#Component")
	sr.RegisterSchema("dependency", builtinSchema, "#Dependency")
	sr.RegisterSchema("metadata", builtinSchema, "#Metadata")
}

// RegisterSchema compiles a CUE schema source and registers the
// definition at defPath under the given name. An empty defPath
// registers the whole compiled value.
func (sr *SchemaRegistry) RegisterSchema(name, schema, defPath string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(schema)
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	if defPath != "" {
		val = val.LookupPath(cue.ParsePath(defPath))
		if !val.Exists() {
			return fmt.Errorf("schema %s: definition %s not found", name, defPath)
		}
	}

	sr.schemas[name] = val
	return nil
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// ListSchemas returns all registered schema names.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	return names
}

// ValidateAgainstSchema validates data against a named schema by
// unifying the encoded data with the schema definition.
func (sr *SchemaRegistry) ValidateAgainstSchema(ctx context.Context, schemaName string, data interface{}) error {
	schema, ok := sr.GetSchema(schemaName)
	if !ok {
		return fmt.Errorf("schema %s not found", schemaName)
	}

	dataVal := sr.ctx.Encode(data)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	unified := schema.Unify(dataVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	return nil
}

// ValidateComponent validates a component declaration against the
// component schema.
func (sr *SchemaRegistry) ValidateComponent(ctx context.Context, component ComponentConfig) error {
	return sr.ValidateAgainstSchema(ctx, "component", component)
}

// ValidateDependency validates a dependency declaration against the
// dependency schema.
func (sr *SchemaRegistry) ValidateDependency(ctx context.Context, dependency DependencyConfig) error {
	return sr.ValidateAgainstSchema(ctx, "dependency", dependency)
}

// Built-in schema definitions

const builtinSchema = `
// Component schema for Weft component declarations
#Component: {
	// ID uniquely identifies the component
	id: string & =~"^[a-zA-Z0-9_.-]+$"

	// Description is an optional human-readable description
	description?: string

	// Dependencies lists components that must initialize first
	dependencies?: [...#Dependency]

	// Labels are key-value pairs for organizing components
	labels?: {[string]: string}
}

// Dependency schema for component dependency declarations
#Dependency: {
	// ID is the depended-on component
	id: string & =~"^[a-zA-Z0-9_.-]+$"

	// Optional marks a soft dependency
	optional?: bool
}

// Metadata schema for the manifest metadata block
#Metadata: {
	// Name is the manifest name
	name?: string

	// Version is the manifest content version
	version?: string
}
`
