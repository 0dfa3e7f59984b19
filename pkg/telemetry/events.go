package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event represents a telemetry event in the Weft system.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type is the event type.
	Type string `json:"type"`

	// Source identifies where the event originated.
	Source string `json:"source"`

	// RunID is the associated run ID, if applicable.
	RunID string `json:"run_id,omitempty"`

	// ComponentID is the associated component ID, if applicable.
	ComponentID string `json:"component_id,omitempty"`

	// CacheKey is the associated cache key, if applicable.
	CacheKey string `json:"cache_key,omitempty"`

	// Message is a human-readable event message.
	Message string `json:"message"`

	// Level is the event severity level (info, warning, error).
	Level string `json:"level"`

	// Data contains additional event-specific data.
	Data map[string]interface{} `json:"data,omitempty"`
}

// EventType constants for common event types.
const (
	EventTypeRunStarted         = "run.started"
	EventTypeRunCompleted       = "run.completed"
	EventTypeRunFailed          = "run.failed"
	EventTypeComponentStarted   = "component.started"
	EventTypeComponentCompleted = "component.completed"
	EventTypeComponentFailed    = "component.failed"
	EventTypeComponentBlocked   = "component.blocked"
	EventTypeComponentCached    = "component.cached"
	EventTypeCacheDegraded      = "cache.degraded"
	EventTypeCacheRecovered     = "cache.recovered"
	EventTypeManifestReloaded   = "manifest.reloaded"
	EventTypeError              = "error"
)

// EventLevel constants for event severity.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// EventSubscriber is a function that handles events.
type EventSubscriber func(event Event)

// EventFilter determines if an event should be processed.
type EventFilter func(event Event) bool

// EventPublisher manages event publishing and subscriptions.
type EventPublisher struct {
	config      EventsConfig
	buffer      chan Event
	subscribers []subscriberEntry
	filters     []EventFilter
	wg          sync.WaitGroup
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
}

type subscriberEntry struct {
	subscriber EventSubscriber
	filter     EventFilter
}

// NewEventPublisher creates a new event publisher with the given configuration.
func NewEventPublisher(cfg EventsConfig) (*EventPublisher, error) {
	if !cfg.Enabled {
		return &EventPublisher{config: cfg}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())

	ep := &EventPublisher{
		config:      cfg,
		buffer:      make(chan Event, cfg.BufferSize),
		subscribers: make([]subscriberEntry, 0),
		filters:     make([]EventFilter, 0),
		ctx:         ctx,
		cancel:      cancel,
	}

	// Start the event processing goroutine
	if cfg.EnableAsync {
		ep.wg.Add(1)
		go ep.processEvents()
	}

	// Start the periodic flush goroutine
	if cfg.FlushInterval > 0 {
		ep.wg.Add(1)
		go ep.periodicFlush()
	}

	return ep, nil
}

// Publish publishes an event to all subscribers.
func (ep *EventPublisher) Publish(event Event) error {
	if !ep.config.Enabled {
		return nil
	}

	// Set ID and timestamp if not already set
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	// Apply global filters
	ep.mu.RLock()
	for _, filter := range ep.filters {
		if !filter(event) {
			ep.mu.RUnlock()
			return nil // Event filtered out
		}
	}
	ep.mu.RUnlock()

	// Send to buffer if async, otherwise process immediately
	if ep.config.EnableAsync {
		select {
		case ep.buffer <- event:
			return nil
		case <-ep.ctx.Done():
			return fmt.Errorf("event publisher stopped")
		default:
			// Buffer full, drop event or log warning
			return fmt.Errorf("event buffer full, event dropped")
		}
	}

	// Synchronous publishing
	ep.deliverEvent(event)
	return nil
}

// PublishRunStarted publishes a run started event.
func (ep *EventPublisher) PublishRunStarted(runID string, components int) error {
	return ep.Publish(Event{
		Type:    EventTypeRunStarted,
		Source:  "engine",
		RunID:   runID,
		Message: fmt.Sprintf("Run %s started with %d components", runID, components),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"components": components,
		},
	})
}

// PublishRunCompleted publishes a run completed event.
func (ep *EventPublisher) PublishRunCompleted(runID, status string, duration time.Duration) error {
	return ep.Publish(Event{
		Type:    EventTypeRunCompleted,
		Source:  "engine",
		RunID:   runID,
		Message: fmt.Sprintf("Run %s completed with status: %s", runID, status),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"status":   status,
			"duration": duration.Seconds(),
		},
	})
}

// PublishRunFailed publishes a run failed event.
func (ep *EventPublisher) PublishRunFailed(runID, reason string) error {
	return ep.Publish(Event{
		Type:    EventTypeRunFailed,
		Source:  "engine",
		RunID:   runID,
		Message: fmt.Sprintf("Run %s failed: %s", runID, reason),
		Level:   EventLevelError,
		Data: map[string]interface{}{
			"reason": reason,
		},
	})
}

// PublishComponentStarted publishes a component started event.
func (ep *EventPublisher) PublishComponentStarted(runID, componentID string) error {
	return ep.Publish(Event{
		Type:        EventTypeComponentStarted,
		Source:      "engine",
		RunID:       runID,
		ComponentID: componentID,
		Message:     fmt.Sprintf("Component %s started", componentID),
		Level:       EventLevelInfo,
	})
}

// PublishComponentCompleted publishes a component completed event.
func (ep *EventPublisher) PublishComponentCompleted(runID, componentID string, duration time.Duration) error {
	return ep.Publish(Event{
		Type:        EventTypeComponentCompleted,
		Source:      "engine",
		RunID:       runID,
		ComponentID: componentID,
		Message:     fmt.Sprintf("Component %s completed", componentID),
		Level:       EventLevelInfo,
		Data: map[string]interface{}{
			"duration": duration.Seconds(),
		},
	})
}

// PublishComponentFailed publishes a component failed event.
func (ep *EventPublisher) PublishComponentFailed(runID, componentID, reason string) error {
	return ep.Publish(Event{
		Type:        EventTypeComponentFailed,
		Source:      "engine",
		RunID:       runID,
		ComponentID: componentID,
		Message:     fmt.Sprintf("Component %s failed: %s", componentID, reason),
		Level:       EventLevelError,
		Data: map[string]interface{}{
			"reason": reason,
		},
	})
}

// PublishComponentBlocked publishes an event for a component short-circuited
// by a failed upstream dependency.
func (ep *EventPublisher) PublishComponentBlocked(runID, componentID, upstream string) error {
	return ep.Publish(Event{
		Type:        EventTypeComponentBlocked,
		Source:      "engine",
		RunID:       runID,
		ComponentID: componentID,
		Message:     fmt.Sprintf("Component %s blocked by failed dependency %s", componentID, upstream),
		Level:       EventLevelWarning,
		Data: map[string]interface{}{
			"upstream": upstream,
		},
	})
}

// PublishComponentCached publishes an event for a component served from cache.
func (ep *EventPublisher) PublishComponentCached(runID, componentID, cacheKey, tier string) error {
	return ep.Publish(Event{
		Type:        EventTypeComponentCached,
		Source:      "engine",
		RunID:       runID,
		ComponentID: componentID,
		CacheKey:    cacheKey,
		Message:     fmt.Sprintf("Component %s served from %s tier", componentID, tier),
		Level:       EventLevelInfo,
		Data: map[string]interface{}{
			"tier": tier,
		},
	})
}

// PublishCacheDegraded publishes an event for slow-tier degradation.
func (ep *EventPublisher) PublishCacheDegraded(reason string) error {
	return ep.Publish(Event{
		Type:    EventTypeCacheDegraded,
		Source:  "cache",
		Message: fmt.Sprintf("Cache degraded to fast tier only: %s", reason),
		Level:   EventLevelWarning,
		Data: map[string]interface{}{
			"reason": reason,
		},
	})
}

// PublishCacheRecovered publishes an event for slow-tier recovery.
func (ep *EventPublisher) PublishCacheRecovered() error {
	return ep.Publish(Event{
		Type:    EventTypeCacheRecovered,
		Source:  "cache",
		Message: "Cache slow tier recovered",
		Level:   EventLevelInfo,
	})
}

// PublishManifestReloaded publishes an event for a manifest reload.
func (ep *EventPublisher) PublishManifestReloaded(path string, components int) error {
	return ep.Publish(Event{
		Type:    EventTypeManifestReloaded,
		Source:  "manifest",
		Message: fmt.Sprintf("Manifest %s reloaded with %d components", path, components),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"path":       path,
			"components": components,
		},
	})
}

// Subscribe adds a new event subscriber.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.subscribers = append(ep.subscribers, subscriberEntry{
		subscriber: subscriber,
		filter:     filter,
	})
}

// AddFilter adds a global event filter.
func (ep *EventPublisher) AddFilter(filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.filters = append(ep.filters, filter)
}

// processEvents processes events from the buffer asynchronously.
func (ep *EventPublisher) processEvents() {
	defer ep.wg.Done()

	batch := make([]Event, 0, ep.config.MaxBatchSize)

	for {
		select {
		case event := <-ep.buffer:
			batch = append(batch, event)

			// Flush batch if it reaches max size
			if len(batch) >= ep.config.MaxBatchSize {
				ep.flushBatch(batch)
				batch = make([]Event, 0, ep.config.MaxBatchSize)
			}

		case <-ep.ctx.Done():
			// Flush remaining events before shutting down
			if len(batch) > 0 {
				ep.flushBatch(batch)
			}
			return
		}
	}
}

// periodicFlush flushes events periodically.
func (ep *EventPublisher) periodicFlush() {
	defer ep.wg.Done()

	ticker := time.NewTicker(ep.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// Trigger flush by draining buffer
			// This is handled by the processEvents goroutine
		case <-ep.ctx.Done():
			return
		}
	}
}

// flushBatch delivers a batch of events to subscribers.
func (ep *EventPublisher) flushBatch(events []Event) {
	for _, event := range events {
		ep.deliverEvent(event)
	}
}

// deliverEvent delivers an event to all subscribers.
func (ep *EventPublisher) deliverEvent(event Event) {
	ep.mu.RLock()
	defer ep.mu.RUnlock()

	for _, entry := range ep.subscribers {
		// Apply subscriber-specific filter
		if entry.filter != nil && !entry.filter(event) {
			continue
		}

		// Call subscriber in a goroutine to avoid blocking
		go entry.subscriber(event)
	}
}

// Shutdown gracefully shuts down the event publisher.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	if !ep.config.Enabled {
		return nil
	}

	// Signal shutdown
	ep.cancel()

	// Wait for processing to complete with timeout
	done := make(chan struct{})
	go func() {
		ep.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event publisher shutdown timeout")
	}
}

// Common event filters.

// FilterByLevel creates a filter that only allows events of a specific level or higher.
func FilterByLevel(minLevel string) EventFilter {
	levels := map[string]int{
		EventLevelInfo:    0,
		EventLevelWarning: 1,
		EventLevelError:   2,
	}

	minLevelValue := levels[minLevel]

	return func(event Event) bool {
		return levels[event.Level] >= minLevelValue
	}
}

// FilterByType creates a filter that only allows events of specific types.
func FilterByType(types ...string) EventFilter {
	typeSet := make(map[string]bool)
	for _, t := range types {
		typeSet[t] = true
	}

	return func(event Event) bool {
		return typeSet[event.Type]
	}
}

// FilterByRunID creates a filter that only allows events for a specific run.
func FilterByRunID(runID string) EventFilter {
	return func(event Event) bool {
		return event.RunID == runID
	}
}

// FilterByComponentID creates a filter that only allows events for a specific component.
func FilterByComponentID(componentID string) EventFilter {
	return func(event Event) bool {
		return event.ComponentID == componentID
	}
}
