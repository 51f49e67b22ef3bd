package eventbus

import (
	"fmt"
	"reflect"
	"sync"
)

// AnyType is the root of every event type hierarchy. Listeners registered for
// AnyType receive all events.
var AnyType = reflect.TypeOf((*interface{})(nil)).Elem()

// TypeOf returns the dispatch key of events of type E.
func TypeOf[E any]() reflect.Type {
	return reflect.TypeOf((*E)(nil)).Elem()
}

// Hierarchy is the supertype relation used to build dispatch chains.
//
// The parent of a type is, in order of precedence:
//   - the parent declared with Extend;
//   - for a struct whose first field is an embedded struct, the embedded type
//     (for a pointer to such a struct, the pointer to the embedded struct);
//   - AnyType.
type Hierarchy struct {
	mu      sync.RWMutex
	parents map[reflect.Type]reflect.Type
}

func NewHierarchy() *Hierarchy {
	return &Hierarchy{
		parents: make(map[reflect.Type]reflect.Type),
	}
}

// Extend declares parent as the immediate supertype of child.
func (h *Hierarchy) Extend(child, parent reflect.Type) error {
	if child == nil || parent == nil {
		return ErrEventTypeNil
	}
	if child == AnyType {
		return fmt.Errorf("%w: %v is the root type", ErrHierarchyCycle, child)
	}
	if child.Kind() == reflect.Interface {
		return unsupportedEventType(child)
	}
	if parent.Kind() == reflect.Interface && parent != AnyType {
		return unsupportedEventType(parent)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for t := parent; t != nil; t = h.parentLocked(t) {
		if t == child {
			return fmt.Errorf("%w: %v already is an ancestor of %v", ErrHierarchyCycle, child, parent)
		}
	}
	h.parents[child] = parent
	return nil
}

// Parent returns the immediate supertype of eventType, or nil for AnyType.
func (h *Hierarchy) Parent(eventType reflect.Type) reflect.Type {
	if h == nil {
		return embeddedParent(eventType)
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.parentLocked(eventType)
}

func (h *Hierarchy) parentLocked(eventType reflect.Type) reflect.Type {
	if parent, ok := h.parents[eventType]; ok {
		return parent
	}
	return embeddedParent(eventType)
}

// Chain returns eventType followed by all its ancestors up to AnyType.
func (h *Hierarchy) Chain(eventType reflect.Type) []reflect.Type {
	var chain []reflect.Type
	for t := eventType; t != nil; t = h.Parent(t) {
		chain = append(chain, t)
	}
	return chain
}

func (h *Hierarchy) clone() *Hierarchy {
	c := NewHierarchy()
	if h == nil {
		return c
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for child, parent := range h.parents {
		c.parents[child] = parent
	}
	return c
}

func embeddedParent(eventType reflect.Type) reflect.Type {
	if eventType == nil || eventType == AnyType {
		return nil
	}
	switch eventType.Kind() {
	case reflect.Struct:
		if embedded := firstEmbeddedStruct(eventType); embedded != nil {
			return embedded
		}
	case reflect.Pointer:
		if embedded := firstEmbeddedStruct(eventType.Elem()); embedded != nil {
			return reflect.PointerTo(embedded)
		}
	}
	return AnyType
}

// firstEmbeddedStruct returns the type of the first field of t if it is a
// struct embedded by value. Embedded pointers are ignored, they could form
// cycles.
func firstEmbeddedStruct(t reflect.Type) reflect.Type {
	if t.Kind() != reflect.Struct || t.NumField() == 0 {
		return nil
	}
	field := t.Field(0)
	if !field.Anonymous || field.Type.Kind() != reflect.Struct {
		return nil
	}
	return field.Type
}
