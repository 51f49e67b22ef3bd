package eventbus

import (
	"context"
	"fmt"
	"reflect"
	"unsafe"
	"weak"
)

// weakListener wraps a pointer listener without keeping it reachable. Once the
// listener has been garbage collected the wrapper is inert and removes itself
// from the slot holding it.
type weakListener struct {
	slot *listenerSlot
	typ  reflect.Type
	ref  weak.Pointer[byte]
}

func newWeakListener(slot *listenerSlot, listener Listener) (*weakListener, error) {
	value := reflect.ValueOf(listener)
	if value.Kind() != reflect.Pointer || value.IsNil() {
		return nil, fmt.Errorf("%w: got %T", ErrListenerNotPointer, listener)
	}
	elem := value.Type().Elem()
	if elem.Size() == 0 {
		return nil, fmt.Errorf("%w: %T points to a zero-sized value", ErrListenerNotPointer, listener)
	}
	if elem.Size() < TinyAllocatorSize && pointerFree(elem) {
		return nil, fmt.Errorf("%w: %T points to %d bytes without pointers", ErrWeakListenerTooSmall, listener, elem.Size())
	}
	return &weakListener{
		slot: slot,
		typ:  value.Type(),
		ref:  weak.Make((*byte)(value.UnsafePointer())),
	}, nil
}

// pointerFree reports whether values of typ hold no pointers, which makes small
// allocations of typ eligible for the runtime's tiny allocator.
func pointerFree(typ reflect.Type) bool {
	switch typ.Kind() {
	case reflect.Bool, reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return true
	case reflect.Array:
		return typ.Len() == 0 || pointerFree(typ.Elem())
	case reflect.Struct:
		for i := 0; i < typ.NumField(); i++ {
			if !pointerFree(typ.Field(i).Type) {
				return false
			}
		}
		return true
	}
	return false
}

// resolve returns the wrapped listener, or false if it was garbage collected.
func (w *weakListener) resolve() (Listener, bool) {
	ptr := w.ref.Value()
	if ptr == nil {
		return nil, false
	}
	return reflect.NewAt(w.typ.Elem(), unsafe.Pointer(ptr)).Interface().(Listener), true
}

func (w *weakListener) collected() bool {
	return w.ref.Value() == nil
}

// prune removes the wrapper from its slot. It is a no-op if the slot already
// compacted it away.
func (w *weakListener) prune() {
	if w.slot != nil {
		w.slot.remove(w)
	}
}

func (w *weakListener) OnEvent(ctx context.Context, event interface{}) error {
	listener, alive := w.resolve()
	if !alive {
		w.prune()
		return nil
	}
	return listener.OnEvent(ctx, event)
}

func isCollectedWeakListener(listener Listener) bool {
	w, ok := listener.(*weakListener)
	return ok && w.collected()
}

// trimWeakListeners compacts collected weak listeners out of listeners in place
// and returns the new count. Freed tail slots are cleared.
func trimWeakListeners(listeners []Listener) int {
	count := 0
	for _, listener := range listeners {
		if isCollectedWeakListener(listener) {
			continue
		}
		listeners[count] = listener
		count++
	}
	clear(listeners[count:])
	return count
}
