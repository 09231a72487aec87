// Package events provides the typed event bus that decouples the playback
// engine's components from their observers.
package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
)

// EventBus is the subscribe/publish contract shared across modules.
type EventBus interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	PublishAsync(event Event) error
	Subscribe(handler EventHandler, types ...EventType) (*Subscription, error)
	Unsubscribe(subscriptionID string) error
}

type eventBus struct {
	logger hclog.Logger

	mu            sync.RWMutex
	subscriptions map[string]*Subscription
	eventChannel  chan Event
	running       bool
	stopCh        chan struct{}
	wg            sync.WaitGroup
}

// NewEventBus creates a new event bus instance
func NewEventBus(logger hclog.Logger, bufferSize int) EventBus {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &eventBus{
		logger:        logger.Named("event-bus"),
		subscriptions: make(map[string]*Subscription),
		eventChannel:  make(chan Event, bufferSize),
		stopCh:        make(chan struct{}),
	}
}

// Start starts the event processor
func (eb *eventBus) Start(ctx context.Context) error {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.running {
		return fmt.Errorf("event bus is already running")
	}
	eb.running = true
	eb.stopCh = make(chan struct{})

	eb.wg.Add(1)
	go eb.processEvents(ctx)

	eb.logger.Debug("event bus started", "buffer_size", cap(eb.eventChannel))
	return nil
}

// Stop stops the event bus gracefully
func (eb *eventBus) Stop(ctx context.Context) error {
	eb.mu.Lock()
	if !eb.running {
		eb.mu.Unlock()
		return nil
	}
	eb.running = false
	eb.mu.Unlock()

	close(eb.stopCh)

	done := make(chan struct{})
	go func() {
		eb.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		eb.logger.Warn("event bus stop timed out")
		return ctx.Err()
	}
}

// PublishAsync queues an event without blocking. Events are dropped when the
// buffer is full; observers are advisory, never load-bearing.
func (eb *eventBus) PublishAsync(event Event) error {
	eb.mu.RLock()
	running := eb.running
	eb.mu.RUnlock()
	if !running {
		return fmt.Errorf("event bus is not running")
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Type == "" {
		return fmt.Errorf("event type is required")
	}

	select {
	case eb.eventChannel <- event:
		return nil
	default:
		eb.logger.Warn("event channel full, dropping event", "event_type", event.Type)
		return fmt.Errorf("event channel full")
	}
}

// Subscribe registers a handler for the given event types. An empty type list
// matches every event.
func (eb *eventBus) Subscribe(handler EventHandler, types ...EventType) (*Subscription, error) {
	if handler == nil {
		return nil, fmt.Errorf("handler is required")
	}

	sub := &Subscription{
		ID:      uuid.New().String(),
		Types:   types,
		handler: handler,
	}

	eb.mu.Lock()
	eb.subscriptions[sub.ID] = sub
	eb.mu.Unlock()

	eb.logger.Debug("subscription created", "subscription_id", sub.ID, "types", types)
	return sub, nil
}

// Unsubscribe removes a subscription
func (eb *eventBus) Unsubscribe(subscriptionID string) error {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if _, exists := eb.subscriptions[subscriptionID]; !exists {
		return fmt.Errorf("subscription not found: %s", subscriptionID)
	}
	delete(eb.subscriptions, subscriptionID)
	return nil
}

func (eb *eventBus) processEvents(ctx context.Context) {
	defer eb.wg.Done()

	for {
		select {
		case <-eb.stopCh:
			return
		case <-ctx.Done():
			return
		case event := <-eb.eventChannel:
			eb.dispatch(event)
		}
	}
}

func (eb *eventBus) dispatch(event Event) {
	eb.mu.RLock()
	var matching []*Subscription
	for _, sub := range eb.subscriptions {
		if sub.matches(event.Type) {
			matching = append(matching, sub)
		}
	}
	eb.mu.RUnlock()

	for _, sub := range matching {
		eb.deliver(sub, event)
	}
}

func (eb *eventBus) deliver(sub *Subscription, event Event) {
	defer func() {
		if r := recover(); r != nil {
			eb.logger.Error("panic in event handler", "subscription_id", sub.ID, "error", r)
		}
	}()
	sub.handler(event)
}

func (s *Subscription) matches(t EventType) bool {
	if len(s.Types) == 0 {
		return true
	}
	for _, st := range s.Types {
		if st == t {
			return true
		}
	}
	return false
}
