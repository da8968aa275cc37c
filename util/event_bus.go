// util/event_bus.go

package util

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	logger "github.com/mitselek/esmuseum-map-app-sub006/logging"
	"github.com/mitselek/esmuseum-map-app-sub006/model"
)

// Event types published by the processing queue.
const (
	EventPassCompleted = "pass.completed"
	EventPassFailed    = "pass.failed"
)

// Event is one published pass outcome or other notice.
type Event struct {
	Type    string
	Payload interface{}
}

// EventHandler is a function that handles an event
type EventHandler func(context.Context, Event) error

// handlerError is a failed delivery, reported by processErrors.
type handlerError struct {
	eventType string
	err       error
}

// EventBus fans events out to subscribers, each delivery on its own
// goroutine. Handler errors are logged and never reach the publisher.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[string][]EventHandler
	errors      chan handlerError
	inflight    sync.WaitGroup
}

func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[string][]EventHandler),
		errors:      make(chan handlerError, 100),
	}
}

func (eb *EventBus) Subscribe(eventType string, handler EventHandler) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscribers[eventType] = append(eb.subscribers[eventType], handler)
}

// OnPassCompleted subscribes fn to successful passes.
func (eb *EventBus) OnPassCompleted(fn func(context.Context, model.PassResult) error) {
	eb.Subscribe(EventPassCompleted, func(ctx context.Context, e Event) error {
		result, ok := e.Payload.(model.PassResult)
		if !ok {
			return fmt.Errorf("unexpected %s payload %T", e.Type, e.Payload)
		}
		return fn(ctx, result)
	})
}

// OnPassFailed subscribes fn to failed passes.
func (eb *EventBus) OnPassFailed(fn func(context.Context, model.PassFailure) error) {
	eb.Subscribe(EventPassFailed, func(ctx context.Context, e Event) error {
		failure, ok := e.Payload.(model.PassFailure)
		if !ok {
			return fmt.Errorf("unexpected %s payload %T", e.Type, e.Payload)
		}
		return fn(ctx, failure)
	})
}

func (eb *EventBus) PublishPassCompleted(ctx context.Context, result model.PassResult) {
	eb.Publish(ctx, EventPassCompleted, result)
}

func (eb *EventBus) PublishPassFailed(ctx context.Context, failure model.PassFailure) {
	eb.Publish(ctx, EventPassFailed, failure)
}

// Publish delivers payload to every subscriber of eventType and returns
// without waiting for them.
func (eb *EventBus) Publish(ctx context.Context, eventType string, payload interface{}) {
	eb.mu.RLock()
	handlers := eb.subscribers[eventType]
	eb.mu.RUnlock()

	event := Event{Type: eventType, Payload: payload}
	eb.inflight.Add(len(handlers))
	for _, handler := range handlers {
		go eb.deliver(ctx, handler, event)
	}
}

func (eb *EventBus) deliver(ctx context.Context, handler EventHandler, event Event) {
	defer eb.inflight.Done()

	err := handler(ctx, event)
	if err == nil {
		return
	}
	select {
	case eb.errors <- handlerError{eventType: event.Type, err: err}:
	default:
		logger.Error("Event error channel full",
			zap.String("eventType", event.Type),
			zap.Error(err))
	}
}

// Start drains handler errors into the log until ctx ends.
func (eb *EventBus) Start(ctx context.Context) {
	go eb.processErrors(ctx)
}

// Wait blocks until every handler started so far has returned.
func (eb *EventBus) Wait() {
	eb.inflight.Wait()
}

func (eb *EventBus) processErrors(ctx context.Context) {
	for {
		select {
		case he := <-eb.errors:
			logger.Error("Event handler failed",
				zap.String("eventType", he.eventType),
				zap.Error(he.err))
		case <-ctx.Done():
			return
		}
	}
}
