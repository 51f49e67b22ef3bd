package eventbus

import (
	"errors"
	"fmt"
	"reflect"
)

var (
	ErrCtxNil               = errors.New("err ctx nil")
	ErrCtxNotFoundLoopTimes = errors.New("err ctx not found loop times")
	ErrCtxLoopTimesType     = errors.New("err ctx loop times type")
	ErrEventNil             = errors.New("err event nil")
	ErrEventLoopOverflow    = errors.New("event loop overflow")
	ErrEventTypeNil         = errors.New("err event type nil")
	ErrUnsupportedEventType = errors.New("err unsupported event type")
	ErrListenerNil          = errors.New("err listener nil")
	ErrListenerNotPointer   = errors.New("err weak listener must be a non-nil pointer")
	ErrWeakListenerTooSmall = errors.New("err weak listener too small to be collected")
	ErrHierarchyCycle       = errors.New("err type hierarchy cycle")
	ErrListenerFailure      = errors.New("listener failure")
	ErrConfigInvalid        = errors.New("err config invalid")
)

// ListenerError is reported to the ErrorHandler when a listener returns an
// error or panics while handling an event.
type ListenerError struct {
	Event     interface{}
	EventType reflect.Type
	Listener  Listener

	// Err is the error returned by the listener, or an error describing the
	// recovered panic.
	Err error

	// Panic is the value passed to panic(), nil if the listener returned an error.
	Panic interface{}
	Stack string
}

func (e *ListenerError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("listener %T panicked on event %v: %v", e.Listener, e.EventType, e.Panic)
	}
	return fmt.Sprintf("listener %T failed on event %v: %v", e.Listener, e.EventType, e.Err)
}

func (e *ListenerError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match any ListenerError against ErrListenerFailure.
func (e *ListenerError) Is(target error) bool {
	return target == ErrListenerFailure
}

func unsupportedEventType(eventType reflect.Type) error {
	return fmt.Errorf("%w: %v is an interface, register a concrete type or AnyType", ErrUnsupportedEventType, eventType)
}
