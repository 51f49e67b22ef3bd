package eventbus

import (
	"context"
	"errors"
	"reflect"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"
)

// LocalEventBus dispatches events synchronously to listeners in the same
// process.
//
// Published events go through a FIFO queue drained by a single goroutine at a
// time: the first publisher that finds the bus idle drains the queue, including
// events published concurrently or from inside listeners, before Publish
// returns. Other publishers return as soon as their event is queued. Events of
// one publisher are therefore delivered in publish order, and a listener never
// sees a nested event before the event it is handling has reached every other
// listener.
type LocalEventBus struct {
	id       string
	name     string
	registry *registry
	queue    eventQueue
	draining atomic.Bool

	errorHandler     ErrorHandler
	unhandledHandler UnhandledHandler
	logger           *logrus.Entry
	tracer           trace.Tracer
	maxLoopTimes     int32

	published  atomic.Uint64
	dispatched atomic.Uint64
	unhandled  atomic.Uint64
	failures   atomic.Uint64
	rejected   atomic.Uint64
}

func NewLocalEventBus(options ...EventBusOption) *LocalEventBus {
	optional := BuildEventBusOptional(options...)
	eventBus := &LocalEventBus{
		id:               uuid.NewString(),
		name:             optional.name,
		unhandledHandler: optional.unhandledHandler,
		tracer:           optional.tracer,
		maxLoopTimes:     optional.maxLoopTimes,
	}
	eventBus.logger = optional.logger.WithFields(logrus.Fields{
		"bus":    eventBus.name,
		"bus_id": eventBus.id,
	})
	eventBus.errorHandler = optional.errorHandler
	if eventBus.errorHandler == nil {
		eventBus.errorHandler = LogErrorHandler(eventBus.logger)
	}
	eventBus.registry = newRegistry(optional.hierarchy.clone(), eventBus.reportFailure)
	var _ EventBus = eventBus
	return eventBus
}

func (eventBus *LocalEventBus) ID() string {
	return eventBus.id
}

func (eventBus *LocalEventBus) Name() string {
	return eventBus.name
}

// Register adds listener for events of eventType and of every type below it in
// the hierarchy. Registering the same listener twice makes it receive every
// event twice. Register is safe to call from inside a listener; the new
// listener does not see the event currently being dispatched to its slot.
func (eventBus *LocalEventBus) Register(eventType reflect.Type, listener Listener, options ...ListenerOption) error {
	optional := BuildListenerOptional(options...)
	return eventBus.registry.register(eventType, listener, optional.weak)
}

// Unregister removes one registration of listener for eventType, or for every
// event type if eventType is nil. It reports whether anything was removed.
func (eventBus *LocalEventBus) Unregister(eventType reflect.Type, listener Listener) bool {
	return eventBus.registry.unregister(eventType, listener)
}

// Publish queues event and, unless another goroutine is already draining the
// queue, delivers it and everything queued meanwhile before returning.
//
// Listener failures are reported to the ErrorHandler, never returned. If ctx
// was prepared with WithEventBus, Publish fails with ErrEventLoopOverflow once
// the configured number of publications with it is reached.
func (eventBus *LocalEventBus) Publish(ctx context.Context, event interface{}) error {
	if isNilEvent(event) {
		return ErrEventNil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := eventBus.countLoop(ctx); err != nil {
		eventBus.rejected.Add(1)
		return err
	}
	eventBus.published.Add(1)
	eventBus.queue.push(queuedEvent{ctx: ctx, event: event})
	eventBus.drain()
	return nil
}

func (eventBus *LocalEventBus) countLoop(ctx context.Context) error {
	times, err := MustGetLoopTimes(ctx)
	if errors.Is(err, ErrCtxNotFoundLoopTimes) {
		return nil
	}
	if err != nil {
		return err
	}
	for {
		n := atomic.LoadInt32(times)
		if n >= eventBus.maxLoopTimes {
			return ErrEventLoopOverflow
		}
		if atomic.CompareAndSwapInt32(times, n, n+1) {
			return nil
		}
	}
}

func (eventBus *LocalEventBus) drain() {
	for eventBus.draining.CompareAndSwap(false, true) {
		eventBus.drainQueue()
		// a publisher may have queued after the last pop but before the store
		if eventBus.queue.len() == 0 {
			return
		}
	}
}

func (eventBus *LocalEventBus) drainQueue() {
	defer eventBus.draining.Store(false)
	for {
		item, ok := eventBus.queue.pop()
		if !ok {
			return
		}
		eventBus.dispatchEvent(item.ctx, item.event)
	}
}

func (eventBus *LocalEventBus) dispatchEvent(ctx context.Context, event interface{}) {
	eventType := reflect.TypeOf(event)
	ctx, span := eventBus.startDispatchSpan(ctx, eventType)
	dispatched := false
	for _, slot := range eventBus.registry.resolveChain(eventType) {
		if slot.fire(ctx, event) {
			dispatched = true
		}
	}
	eventBus.endDispatchSpan(span, dispatched)
	if dispatched {
		eventBus.dispatched.Add(1)
		return
	}
	eventBus.unhandled.Add(1)
	if eventBus.unhandledHandler != nil {
		eventBus.safeDo("[eventbus] unhandled handler panicked", func() {
			eventBus.unhandledHandler(ctx, event)
		})
	}
}

func (eventBus *LocalEventBus) reportFailure(ctx context.Context, failure *ListenerError) {
	eventBus.failures.Add(1)
	eventBus.recordFailure(ctx, failure)
	title := "[eventbus] listener returned an error"
	if failure.Panic != nil {
		title = "[eventbus] listener panicked"
	}
	eventBus.safeDo("[eventbus] error handler panicked", func() {
		eventBus.errorHandler(ErrorOption{
			Title:     title,
			BusID:     eventBus.id,
			BusName:   eventBus.name,
			EventType: failure.EventType,
			Event:     failure.Event,
			Message:   describeEvent(failure.Event),
			Listener:  failure.Listener,
			Panic:     failure.Panic,
			Stack:     failure.Stack,
			Error:     failure,
		})
	})
}

// safeDo runs a hook, a panic is logged and swallowed so the drain loop keeps
// going.
func (eventBus *LocalEventBus) safeDo(title string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			eventBus.logger.WithField("panic", r).Error(title)
		}
	}()
	fn()
}

// Listeners returns the live listeners registered for exactly eventType.
func (eventBus *LocalEventBus) Listeners(eventType reflect.Type) []Listener {
	return eventBus.registry.listeners(eventType)
}

func (eventBus *LocalEventBus) ListenerCount(eventType reflect.Type) int {
	return len(eventBus.registry.listeners(eventType))
}

func (eventBus *LocalEventBus) Stats() Stats {
	return Stats{
		Published:        eventBus.published.Load(),
		Dispatched:       eventBus.dispatched.Load(),
		Unhandled:        eventBus.unhandled.Load(),
		ListenerFailures: eventBus.failures.Load(),
		Rejected:         eventBus.rejected.Load(),
		Pending:          eventBus.queue.len(),
		EventTypes:       eventBus.registry.size(),
	}
}
