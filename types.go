package eventbus

import (
	"context"
	"reflect"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"
)

type ctxKey string

type EventBusOptional struct {
	name             string
	errorHandler     ErrorHandler
	unhandledHandler UnhandledHandler
	logger           *logrus.Entry
	hierarchy        *Hierarchy
	maxLoopTimes     int32
	tracer           trace.Tracer
}

type EventBusOption func(optional *EventBusOptional)

// ErrorHandler receives listener failures. It runs on the goroutine draining
// the queue, so it must not block.
type ErrorHandler func(option ErrorOption)

// UnhandledHandler is called for a published event that reached no listener in
// its whole dispatch chain.
type UnhandledHandler func(ctx context.Context, event interface{})

type ErrorOption struct {
	Title     string
	BusID     string
	BusName   string
	EventType reflect.Type
	Event     interface{}
	Message   string
	Listener  Listener
	Panic     interface{}
	Stack     string
	Error     error
}

func WithNameOption(name string) EventBusOption {
	return func(optional *EventBusOptional) {
		optional.name = name
	}
}

func WithErrHandlerOption(errorHandler ErrorHandler) EventBusOption {
	if errorHandler == nil {
		panic("err handler is nil")
	}
	return func(optional *EventBusOptional) {
		optional.errorHandler = errorHandler
	}
}

func WithUnhandledOption(unhandledHandler UnhandledHandler) EventBusOption {
	if unhandledHandler == nil {
		panic("unhandled handler is nil")
	}
	return func(optional *EventBusOptional) {
		optional.unhandledHandler = unhandledHandler
	}
}

func WithLoggerOption(logger *logrus.Entry) EventBusOption {
	if logger == nil {
		panic("logger is nil")
	}
	return func(optional *EventBusOptional) {
		optional.logger = logger
	}
}

// WithHierarchyOption sets the type hierarchy. The bus keeps a copy, later
// changes to hierarchy are not seen.
func WithHierarchyOption(hierarchy *Hierarchy) EventBusOption {
	if hierarchy == nil {
		panic("hierarchy is nil")
	}
	return func(optional *EventBusOptional) {
		optional.hierarchy = hierarchy
	}
}

// WithMaxLoopTimesOption limits how many events can be published with a context
// prepared by WithEventBus.
func WithMaxLoopTimesOption(maxLoopTimes int) EventBusOption {
	return func(optional *EventBusOptional) {
		if maxLoopTimes <= 0 || maxLoopTimes > DefaultMaxLoopTimes {
			maxLoopTimes = DefaultMaxLoopTimes
		}
		optional.maxLoopTimes = int32(maxLoopTimes)
	}
}

// WithTracerOption records a span for every dispatched event.
func WithTracerOption(tracer trace.Tracer) EventBusOption {
	if tracer == nil {
		panic("tracer is nil")
	}
	return func(optional *EventBusOptional) {
		optional.tracer = tracer
	}
}

type ListenerOption func(optional *ListenerOptional)

type ListenerOptional struct {
	weak bool
}

// WithWeakOption registers the listener through a weak reference: the bus does
// not keep it alive, and it is dropped once garbage collected. The listener
// must be a pointer, and the caller must keep it reachable as long as it should
// receive events.
//
// A pointer to a value smaller than 16 bytes that holds no pointers is rejected
// with ErrWeakListenerTooSmall: the runtime packs such values into shared
// blocks, and a neighbour staying alive would keep the listener registered.
// Add a pointer field or grow the type to register it weakly.
func WithWeakOption() ListenerOption {
	return func(optional *ListenerOptional) {
		optional.weak = true
	}
}

type Stats struct {
	Published        uint64 `json:"published"`
	Dispatched       uint64 `json:"dispatched"`
	Unhandled        uint64 `json:"unhandled"`
	ListenerFailures uint64 `json:"listener_failures"`
	Rejected         uint64 `json:"rejected"`
	Pending          int    `json:"pending"`
	EventTypes       int    `json:"event_types"`
}
