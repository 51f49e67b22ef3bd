package eventbus

import (
	"context"

	"github.com/sirupsen/logrus"
)

// EventSource is a standalone sender of events of type E. It has the listener
// storage of a bus slot but no queue and no hierarchy: Fire delivers directly
// to the listeners added to this source, on the calling goroutine.
type EventSource[E any] struct {
	name         string
	logger       *logrus.Entry
	errorHandler ErrorHandler
	slot         *listenerSlot
}

// NewEventSource accepts the bus options; only the name, logger and error
// handler apply.
func NewEventSource[E any](options ...EventBusOption) *EventSource[E] {
	optional := BuildEventBusOptional(options...)
	source := &EventSource[E]{
		name:         optional.name,
		logger:       optional.logger.WithField("source", optional.name),
		errorHandler: optional.errorHandler,
	}
	if source.errorHandler == nil {
		source.errorHandler = LogErrorHandler(source.logger)
	}
	source.slot = newListenerSlot(TypeOf[E](), source.reportFailure)
	return source
}

func (source *EventSource[E]) AddListener(listener Listener, options ...ListenerOption) error {
	if listener == nil {
		return ErrListenerNil
	}
	if BuildListenerOptional(options...).weak {
		wrapped, err := newWeakListener(source.slot, listener)
		if err != nil {
			return err
		}
		listener = wrapped
	}
	source.slot.add(listener)
	return nil
}

func (source *EventSource[E]) AddWeakListener(listener Listener) error {
	return source.AddListener(listener, WithWeakOption())
}

func (source *EventSource[E]) RemoveListener(listener Listener) bool {
	if listener == nil {
		return false
	}
	return source.slot.remove(listener)
}

// Fire sends event to all listeners in the order they were added and reports
// whether any listener handled it. A nil event is not sent.
func (source *EventSource[E]) Fire(ctx context.Context, event E) bool {
	if isNilEvent(event) {
		return false
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return source.slot.fire(ctx, event)
}

func (source *EventSource[E]) HasListeners() bool {
	return source.ListenerCount() > 0
}

func (source *EventSource[E]) ListenerCount() int {
	return len(source.slot.listeners())
}

func (source *EventSource[E]) Listeners() []Listener {
	return source.slot.listeners()
}

func (source *EventSource[E]) reportFailure(_ context.Context, failure *ListenerError) {
	defer func() {
		if r := recover(); r != nil {
			source.logger.WithField("panic", r).Error("[eventbus] event source error handler panicked")
		}
	}()
	source.errorHandler(ErrorOption{
		Title:     "[eventbus] event source listener failed",
		BusName:   source.name,
		EventType: failure.EventType,
		Event:     failure.Event,
		Message:   describeEvent(failure.Event),
		Listener:  failure.Listener,
		Panic:     failure.Panic,
		Stack:     failure.Stack,
		Error:     failure,
	})
}
