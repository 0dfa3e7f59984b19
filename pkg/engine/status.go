package engine

import (
	"encoding/json"
	"fmt"
)

// RunStatus represents the overall status of an orchestration run.
type RunStatus string

const (
	// RunStatusPending indicates the run is created but not yet started.
	RunStatusPending RunStatus = "pending"

	// RunStatusRunning indicates the run is currently executing.
	RunStatusRunning RunStatus = "running"

	// RunStatusSucceeded indicates every component in the run succeeded.
	RunStatusSucceeded RunStatus = "succeeded"

	// RunStatusFailed indicates the run failed with no successful components.
	RunStatusFailed RunStatus = "failed"

	// RunStatusCancelled indicates the run was cancelled before completion.
	RunStatusCancelled RunStatus = "cancelled"

	// RunStatusPartial indicates the run partially succeeded (some components failed or were blocked).
	RunStatusPartial RunStatus = "partial"
)

// IsTerminal returns true if the run status represents a final state.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusSucceeded || s == RunStatusFailed ||
		s == RunStatusCancelled || s == RunStatusPartial
}

// IsActive returns true if the run is currently active (pending or running).
func (s RunStatus) IsActive() bool {
	return s == RunStatusPending || s == RunStatusRunning
}

// Validate checks if the run status is valid.
func (s RunStatus) Validate() error {
	switch s {
	case RunStatusPending, RunStatusRunning, RunStatusSucceeded,
		RunStatusFailed, RunStatusCancelled, RunStatusPartial:
		return nil
	default:
		return fmt.Errorf("invalid run status: %s", s)
	}
}

// ComponentStatus represents the execution status of a single component
// within a run.
type ComponentStatus string

const (
	// ComponentStatusPending indicates the component is waiting to execute.
	ComponentStatusPending ComponentStatus = "pending"

	// ComponentStatusRunning indicates the component is currently executing.
	ComponentStatusRunning ComponentStatus = "running"

	// ComponentStatusSucceeded indicates the component completed successfully.
	ComponentStatusSucceeded ComponentStatus = "succeeded"

	// ComponentStatusFailed indicates the component's invocation failed.
	ComponentStatusFailed ComponentStatus = "failed"

	// ComponentStatusBlocked indicates the component was short-circuited
	// because a required upstream dependency did not succeed.
	ComponentStatusBlocked ComponentStatus = "blocked"

	// ComponentStatusCancelled indicates the component never ran because
	// the run was cancelled.
	ComponentStatusCancelled ComponentStatus = "cancelled"
)

// IsTerminal returns true if the component status represents a final state.
func (s ComponentStatus) IsTerminal() bool {
	return s == ComponentStatusSucceeded || s == ComponentStatusFailed ||
		s == ComponentStatusBlocked || s == ComponentStatusCancelled
}

// IsActive returns true if the component is currently active.
func (s ComponentStatus) IsActive() bool {
	return s == ComponentStatusPending || s == ComponentStatusRunning
}

// Validate checks if the component status is valid.
func (s ComponentStatus) Validate() error {
	switch s {
	case ComponentStatusPending, ComponentStatusRunning, ComponentStatusSucceeded,
		ComponentStatusFailed, ComponentStatusBlocked, ComponentStatusCancelled:
		return nil
	default:
		return fmt.Errorf("invalid component status: %s", s)
	}
}

// MarshalJSON implements custom JSON marshaling for type-safe enum serialization.
func (s RunStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (s *RunStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = RunStatus(str)
	return s.Validate()
}

// MarshalJSON implements custom JSON marshaling for type-safe enum serialization.
func (s ComponentStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (s *ComponentStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = ComponentStatus(str)
	return s.Validate()
}
