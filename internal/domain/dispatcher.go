package domain

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"webcaf.gov.uk/webcaf/internal/pkg/logger"
)

// EventHandler processes a domain event.
type EventHandler func(ctx context.Context, event *DomainEvent) error

// EventPublisher is what services depend on.
type EventPublisher interface {
	Dispatch(ctx context.Context, event *DomainEvent) error
}

// EventDispatcher routes domain events to registered handlers in process.
// Durable follow-up work is handed to River by a handler, never done inline.
type EventDispatcher struct {
	mu       sync.RWMutex
	handlers map[EventType][]EventHandler
	all      []EventHandler
}

// NewEventDispatcher creates an empty dispatcher.
func NewEventDispatcher() *EventDispatcher {
	return &EventDispatcher{handlers: make(map[EventType][]EventHandler)}
}

// Register adds a handler for one event type.
func (d *EventDispatcher) Register(eventType EventType, handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[eventType] = append(d.handlers[eventType], handler)
}

// RegisterAll adds a handler that sees every event (the audit trail).
func (d *EventDispatcher) RegisterAll(handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.all = append(d.all, handler)
}

// Dispatch calls every matching handler in registration order. A failing
// handler does not stop the others; all failures are joined.
func (d *EventDispatcher) Dispatch(ctx context.Context, event *DomainEvent) error {
	d.mu.RLock()
	handlers := make([]EventHandler, 0, len(d.all)+len(d.handlers[event.EventType]))
	handlers = append(handlers, d.all...)
	handlers = append(handlers, d.handlers[event.EventType]...)
	d.mu.RUnlock()

	var errs []error
	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			logger.Error("event handler failed",
				zap.String("event_type", string(event.EventType)),
				zap.String("event_id", event.EventID),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("handler for %s: %w", event.EventType, err))
		}
	}
	return errors.Join(errs...)
}
