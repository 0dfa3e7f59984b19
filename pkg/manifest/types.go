package manifest

import (
	"fmt"
	"time"

	"github.com/openweft/weft/pkg/engine"
)

// ComponentConfig is one component declaration from a manifest.
type ComponentConfig struct {
	// ID uniquely identifies the component.
	ID string `json:"id" validate:"required"`

	// Description is an optional human-readable description.
	Description string `json:"description,omitempty"`

	// Dependencies lists components that must initialize before this one.
	Dependencies []DependencyConfig `json:"dependencies,omitempty" validate:"omitempty,dive"`

	// Labels are key-value pairs for organizing and selecting components.
	Labels map[string]string `json:"labels,omitempty"`
}

// DependencyConfig is a dependency declaration within a component.
type DependencyConfig struct {
	// ID is the depended-on component.
	ID string `json:"id" validate:"required"`

	// Optional marks a soft dependency: ordering only, no blocking.
	Optional bool `json:"optional,omitempty"`
}

// Metadata describes the manifest itself.
type Metadata struct {
	// Name is the manifest name.
	Name string `json:"name,omitempty"`

	// Version is the manifest content version.
	Version string `json:"version,omitempty"`
}

// ParsedManifest is the result of loading one or more manifest sources.
type ParsedManifest struct {
	// Metadata is the manifest metadata block, if present.
	Metadata Metadata `json:"metadata"`

	// Components are the declared components.
	Components []ComponentConfig `json:"components"`

	// SourceFiles are the CUE files that were parsed.
	SourceFiles []string `json:"source_files"`

	// ParsedAt is when the manifest was parsed.
	ParsedAt time.Time `json:"parsed_at"`

	// Errors lists any validation errors.
	Errors []ValidationError `json:"errors,omitempty"`
}

// ValidationError represents a manifest validation error with location
// information.
type ValidationError struct {
	// File is the source file path.
	File string `json:"file,omitempty"`

	// Line is the line number (1-indexed).
	Line int `json:"line,omitempty"`

	// Column is the column number (1-indexed).
	Column int `json:"column,omitempty"`

	// Path is the CUE path to the error (e.g., "components.database").
	Path string `json:"path,omitempty"`

	// Message is the error message.
	Message string `json:"message"`

	// Severity is the error severity (error, warning, info).
	Severity string `json:"severity"`
}

// ToDescriptor converts the declaration into an engine descriptor.
func (c ComponentConfig) ToDescriptor() engine.ComponentDescriptor {
	desc := engine.ComponentDescriptor{
		ID:          c.ID,
		Description: c.Description,
		Labels:      c.Labels,
	}
	for _, dep := range c.Dependencies {
		desc.Dependencies = append(desc.Dependencies, engine.Dependency{
			ID:       dep.ID,
			Optional: dep.Optional,
		})
	}
	return desc
}

// Component returns the declaration with the given ID, or nil.
func (m *ParsedManifest) Component(id string) *ComponentConfig {
	for i := range m.Components {
		if m.Components[i].ID == id {
			return &m.Components[i]
		}
	}
	return nil
}

// Apply registers every declared component on the registry. It refuses
// to apply a manifest that carries validation errors. Registration
// stops at the first failure; components registered before the failure
// stay registered.
func (m *ParsedManifest) Apply(reg *engine.Registry) error {
	if reg == nil {
		return fmt.Errorf("registry must not be nil")
	}
	if len(m.Errors) > 0 {
		return fmt.Errorf("manifest has validation errors: %v", m.Errors)
	}

	for _, c := range m.Components {
		if err := reg.Register(c.ToDescriptor()); err != nil {
			return fmt.Errorf("failed to register component %s: %w", c.ID, err)
		}
	}

	return nil
}
