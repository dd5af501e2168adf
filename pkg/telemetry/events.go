package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is a lifecycle notification emitted by a worker.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type is the event type.
	Type string `json:"type"`

	// Source identifies where the event originated.
	Source string `json:"source"`

	// WorkerID is the worker the event belongs to.
	WorkerID string `json:"worker_id,omitempty"`

	// Kind is the resource kind, if applicable.
	Kind string `json:"kind,omitempty"`

	// Handle is the resource handle, if applicable.
	Handle uint64 `json:"handle,omitempty"`

	// Name is a global asset or file name, if applicable.
	Name string `json:"name,omitempty"`

	// Message is a human-readable event message.
	Message string `json:"message"`

	// Level is the event severity level (info, warning, error).
	Level string `json:"level"`

	// Data contains additional event-specific data.
	Data map[string]interface{} `json:"data,omitempty"`
}

// EventType constants.
const (
	EventTypeWorkerStarted    = "worker.started"
	EventTypeWorkerStopped    = "worker.stopped"
	EventTypeResourceCreated  = "resource.created"
	EventTypeResourceReleased = "resource.released"
	EventTypeAssetRegistered  = "asset.registered"
	EventTypeAssetRemoved     = "asset.removed"
	EventTypeRequestFailed    = "request.failed"
	EventTypeCallbackUnrouted = "callback.unrouted"
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
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 1
	}

	ctx, cancel := context.WithCancel(context.Background())

	ep := &EventPublisher{
		config: cfg,
		buffer: make(chan Event, cfg.BufferSize),
		ctx:    ctx,
		cancel: cancel,
	}

	if cfg.EnableAsync {
		ep.wg.Add(1)
		go ep.processEvents()
	}

	return ep, nil
}

// Publish publishes an event to all subscribers.
func (ep *EventPublisher) Publish(event Event) error {
	if !ep.config.Enabled {
		return nil
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if ep.config.EnableAsync {
		select {
		case <-ep.ctx.Done():
			return fmt.Errorf("event publisher stopped")
		default:
		}
		select {
		case ep.buffer <- event:
			return nil
		default:
			return fmt.Errorf("event buffer full, event dropped")
		}
	}

	ep.deliverEvent(event)
	return nil
}

// PublishWorkerStarted publishes a worker started event.
func (ep *EventPublisher) PublishWorkerStarted(workerID, device string) error {
	return ep.Publish(Event{
		Type:     EventTypeWorkerStarted,
		Source:   "worker",
		WorkerID: workerID,
		Message:  fmt.Sprintf("Worker %s started on %s device", workerID, device),
		Level:    EventLevelInfo,
		Data: map[string]interface{}{
			"device": device,
		},
	})
}

// PublishWorkerStopped publishes a worker stopped event.
func (ep *EventPublisher) PublishWorkerStopped(workerID string, uptime time.Duration) error {
	return ep.Publish(Event{
		Type:     EventTypeWorkerStopped,
		Source:   "worker",
		WorkerID: workerID,
		Message:  fmt.Sprintf("Worker %s stopped", workerID),
		Level:    EventLevelInfo,
		Data: map[string]interface{}{
			"uptime": uptime.Seconds(),
		},
	})
}

// PublishResourceCreated publishes a resource created event.
func (ep *EventPublisher) PublishResourceCreated(workerID, kind string, handle uint64) error {
	return ep.Publish(Event{
		Type:     EventTypeResourceCreated,
		Source:   "client",
		WorkerID: workerID,
		Kind:     kind,
		Handle:   handle,
		Message:  fmt.Sprintf("Created %s %d", kind, handle),
		Level:    EventLevelInfo,
	})
}

// PublishResourceReleased publishes a resource released event.
func (ep *EventPublisher) PublishResourceReleased(workerID, kind string, handle uint64) error {
	return ep.Publish(Event{
		Type:     EventTypeResourceReleased,
		Source:   "client",
		WorkerID: workerID,
		Kind:     kind,
		Handle:   handle,
		Message:  fmt.Sprintf("Released %s %d", kind, handle),
		Level:    EventLevelInfo,
	})
}

// PublishAssetRegistered publishes a global asset registration event.
func (ep *EventPublisher) PublishAssetRegistered(workerID, kind, name string, handle uint64) error {
	return ep.Publish(Event{
		Type:     EventTypeAssetRegistered,
		Source:   "worker",
		WorkerID: workerID,
		Kind:     kind,
		Handle:   handle,
		Name:     name,
		Message:  fmt.Sprintf("Registered %s %d as global asset %q", kind, handle, name),
		Level:    EventLevelInfo,
	})
}

// PublishAssetRemoved publishes a global asset removal event.
func (ep *EventPublisher) PublishAssetRemoved(workerID, kind, name string) error {
	return ep.Publish(Event{
		Type:     EventTypeAssetRemoved,
		Source:   "worker",
		WorkerID: workerID,
		Kind:     kind,
		Name:     name,
		Message:  fmt.Sprintf("Removed global %s asset %q", kind, name),
		Level:    EventLevelInfo,
	})
}

// PublishRequestFailed publishes a failed request event.
func (ep *EventPublisher) PublishRequestFailed(workerID, operation, reason string) error {
	return ep.Publish(Event{
		Type:     EventTypeRequestFailed,
		Source:   "client",
		WorkerID: workerID,
		Message:  fmt.Sprintf("Request %s failed: %s", operation, reason),
		Level:    EventLevelError,
		Data: map[string]interface{}{
			"operation": operation,
			"reason":    reason,
		},
	})
}

// PublishCallbackUnrouted publishes an event for a callback that had no
// listener registered under its handle.
func (ep *EventPublisher) PublishCallbackUnrouted(kind string, handle uint64, callback string) error {
	return ep.Publish(Event{
		Type:    EventTypeCallbackUnrouted,
		Source:  "commandqueue",
		Kind:    kind,
		Handle:  handle,
		Message: fmt.Sprintf("No listener for %s on %s %d", callback, kind, handle),
		Level:   EventLevelWarning,
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

// processEvents processes events from the buffer asynchronously.
func (ep *EventPublisher) processEvents() {
	defer ep.wg.Done()

	batch := make([]Event, 0, ep.config.MaxBatchSize)

	for {
		select {
		case event := <-ep.buffer:
			batch = append(batch, event)
			if len(batch) >= ep.config.MaxBatchSize || len(ep.buffer) == 0 {
				ep.flushBatch(batch)
				batch = batch[:0]
			}

		case <-ep.ctx.Done():
			for {
				select {
				case event := <-ep.buffer:
					batch = append(batch, event)
				default:
					ep.flushBatch(batch)
					return
				}
			}
		}
	}
}

// flushBatch delivers a batch of events to subscribers.
func (ep *EventPublisher) flushBatch(events []Event) {
	for _, event := range events {
		ep.deliverEvent(event)
	}
}

// deliverEvent delivers an event to all subscribers in subscription order.
func (ep *EventPublisher) deliverEvent(event Event) {
	ep.mu.RLock()
	defer ep.mu.RUnlock()

	for _, entry := range ep.subscribers {
		if entry.filter != nil && !entry.filter(event) {
			continue
		}
		entry.subscriber(event)
	}
}

// Shutdown gracefully shuts down the event publisher, delivering buffered
// events first.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	if !ep.config.Enabled {
		return nil
	}

	ep.cancel()

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

// FilterByWorker creates a filter that only allows events for one worker.
func FilterByWorker(workerID string) EventFilter {
	return func(event Event) bool {
		return event.WorkerID == workerID
	}
}
