package eventbus

import (
	"context"
	"reflect"
	"unsafe"
)

// Listener receives the events it was registered for.
//
// A listener may publish, register and unregister from inside OnEvent. A
// returned error or a panic is reported to the bus ErrorHandler and never
// reaches the publisher.
type Listener interface {
	OnEvent(ctx context.Context, event interface{}) error
}

// EqualityListener is a Listener that is matched by Equal instead of identity
// when it is unregistered, as long as MatchedByEquality returns true. This allows
// removing a listener by passing a new, equal instance.
type EqualityListener interface {
	Listener
	MatchedByEquality() bool
	Equal(other Listener) bool
}

type funcListener struct {
	fn func(ctx context.Context, event interface{}) error
}

func (l *funcListener) OnEvent(ctx context.Context, event interface{}) error {
	return l.fn(ctx, event)
}

// ListenerFunc adapts fn to a Listener. Every call returns a distinct handle,
// keep it to unregister the listener later.
func ListenerFunc(fn func(ctx context.Context, event interface{}) error) Listener {
	if fn == nil {
		panic("listener func is nil")
	}
	return &funcListener{fn: fn}
}

type typedListener[E any] struct {
	fn func(ctx context.Context, event E) error
}

func (l *typedListener[E]) OnEvent(ctx context.Context, event interface{}) error {
	e, ok := As[E](event)
	if !ok {
		return nil
	}
	return l.fn(ctx, e)
}

// Func adapts a typed fn to a Listener. Events are converted with As; events
// that cannot be converted to E are ignored.
func Func[E any](fn func(ctx context.Context, event E) error) Listener {
	if fn == nil {
		panic("listener func is nil")
	}
	return &typedListener[E]{fn: fn}
}

// As converts event to E. Besides a plain type assertion it follows the chain
// of structs embedded by value as first field, so an event embedding E yields
// the embedded value, and a pointer to such an event also yields a pointer to
// the embedded value.
func As[E any](event interface{}) (E, bool) {
	if e, ok := event.(E); ok {
		return e, true
	}
	var zero E
	target := TypeOf[E]()
	value := reflect.ValueOf(event)
	wantPointer := false
	switch value.Kind() {
	case reflect.Pointer:
		if value.IsNil() {
			return zero, false
		}
		// pointer events only convert to pointers, like the pointer hierarchy
		if target.Kind() != reflect.Pointer {
			return zero, false
		}
		value = value.Elem()
		wantPointer = true
		target = target.Elem()
	case reflect.Struct:
		// addressable copy, so unexported embedded fields can be read
		addressable := reflect.New(value.Type()).Elem()
		addressable.Set(value)
		value = addressable
	default:
		return zero, false
	}
	for firstEmbeddedStruct(value.Type()) != nil {
		value = value.Field(0)
		if value.Type() != target {
			continue
		}
		pointer := reflect.NewAt(target, unsafe.Pointer(value.UnsafeAddr()))
		if wantPointer {
			e, ok := pointer.Interface().(E)
			return e, ok
		}
		e, ok := pointer.Elem().Interface().(E)
		return e, ok
	}
	return zero, false
}

// matches reports whether the registered entry is the candidate: the same
// instance, or equal by value if registered asks for equality matching. Weak
// entries are resolved first; a dead weak entry only matches itself.
func matches(candidate, registered Listener) bool {
	if sameListener(candidate, registered) {
		return true
	}
	if w, ok := registered.(*weakListener); ok {
		target, alive := w.resolve()
		if !alive {
			return false
		}
		registered = target
		if sameListener(candidate, registered) {
			return true
		}
	}
	if eq, ok := registered.(EqualityListener); ok && eq.MatchedByEquality() {
		return eq.Equal(candidate)
	}
	return false
}

func sameListener(a, b Listener) (same bool) {
	if a == nil || b == nil {
		return a == b
	}
	typ := reflect.TypeOf(a)
	if typ != reflect.TypeOf(b) || !typ.Comparable() {
		return false
	}
	// comparable struct types may still hold incomparable values in interface fields
	defer func() {
		if recover() != nil {
			same = false
		}
	}()
	return a == b
}

// unwrapListener returns the listener behind a weak entry, or nil if it was
// garbage collected.
func unwrapListener(l Listener) Listener {
	if w, ok := l.(*weakListener); ok {
		target, alive := w.resolve()
		if !alive {
			return nil
		}
		return target
	}
	return l
}
