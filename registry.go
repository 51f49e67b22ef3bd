package eventbus

import (
	"reflect"
	"sync"
)

// registryEntry binds an event type to its listener slot. parent is the entry of
// the immediate supertype, nil for AnyType; it is computed once when the entry
// is created.
type registryEntry struct {
	eventType reflect.Type
	parent    *registryEntry
	slot      *listenerSlot
}

// registry maps event types to listener slots. Entries are created lazily
// together with all ancestor entries and never replaced.
type registry struct {
	mu        sync.RWMutex
	entries   map[reflect.Type]*registryEntry
	hierarchy *Hierarchy
	report    failureReporter
}

func newRegistry(hierarchy *Hierarchy, report failureReporter) *registry {
	return &registry{
		entries:   make(map[reflect.Type]*registryEntry),
		hierarchy: hierarchy,
		report:    report,
	}
}

func checkEventType(eventType reflect.Type) error {
	if eventType == nil {
		return ErrEventTypeNil
	}
	if eventType.Kind() == reflect.Interface && eventType != AnyType {
		return unsupportedEventType(eventType)
	}
	return nil
}

func (r *registry) get(eventType reflect.Type) *registryEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[eventType]
}

func (r *registry) getRequired(eventType reflect.Type) *registryEntry {
	if entry := r.get(eventType); entry != nil {
		return entry
	}
	var parent *registryEntry
	if parentType := r.hierarchy.Parent(eventType); parentType != nil {
		parent = r.getRequired(parentType)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.entries[eventType]; ok {
		return entry
	}
	entry := &registryEntry{
		eventType: eventType,
		parent:    parent,
		slot:      newListenerSlot(eventType, r.report),
	}
	r.entries[eventType] = entry
	return entry
}

// find returns the entry of the most specific registered type in the ancestry
// of eventType, or nil.
func (r *registry) find(eventType reflect.Type) *registryEntry {
	for t := eventType; t != nil; t = r.hierarchy.Parent(t) {
		if entry := r.get(t); entry != nil {
			return entry
		}
	}
	return nil
}

// resolveChain returns the slots to fire for an event of eventType, most
// specific first.
func (r *registry) resolveChain(eventType reflect.Type) []*listenerSlot {
	var chain []*listenerSlot
	for entry := r.find(eventType); entry != nil; entry = entry.parent {
		chain = append(chain, entry.slot)
	}
	return chain
}

func (r *registry) register(eventType reflect.Type, listener Listener, weak bool) error {
	if listener == nil {
		return ErrListenerNil
	}
	if err := checkEventType(eventType); err != nil {
		return err
	}
	entry := r.getRequired(eventType)
	if weak {
		wrapped, err := newWeakListener(entry.slot, listener)
		if err != nil {
			return err
		}
		listener = wrapped
	}
	entry.slot.add(listener)
	return nil
}

// unregister removes listener from the slot of eventType, or the first match
// in every slot if eventType is nil.
func (r *registry) unregister(eventType reflect.Type, listener Listener) bool {
	if listener == nil {
		return false
	}
	if eventType != nil {
		entry := r.get(eventType)
		if entry == nil {
			return false
		}
		return entry.slot.remove(listener)
	}
	removed := false
	for _, entry := range r.snapshot() {
		if entry.slot.remove(listener) {
			removed = true
		}
	}
	return removed
}

func (r *registry) snapshot() []*registryEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries := make([]*registryEntry, 0, len(r.entries))
	for _, entry := range r.entries {
		entries = append(entries, entry)
	}
	return entries
}

func (r *registry) listeners(eventType reflect.Type) []Listener {
	entry := r.get(eventType)
	if entry == nil {
		return nil
	}
	return entry.slot.listeners()
}

func (r *registry) size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
