package eventbus

import (
	"context"
	"fmt"
	"reflect"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

type failureReporter func(ctx context.Context, failure *ListenerError)

// listenerSlot stores the listeners of a single dispatch target.
//
// Writers are serialized by mu, which is never held while listeners run.
// firing counts the iterations in flight, or is -1 while a writer rewrites the
// current listener array in place. Writers only rewrite in place when they can
// claim the slot with no iteration in flight; otherwise the change is written to
// a fresh array and in-flight iterations keep their snapshot.
type listenerSlot struct {
	eventType reflect.Type
	report    failureReporter

	mu      sync.Mutex
	firing  atomic.Int32
	current atomic.Value // adapterHolder
}

type adapterHolder struct {
	adapter listenerAdapter
}

func newListenerSlot(eventType reflect.Type, report failureReporter) *listenerSlot {
	slot := &listenerSlot{
		eventType: eventType,
		report:    report,
	}
	slot.current.Store(adapterHolder{adapter: emptyAdapter{}})
	return slot
}

func (s *listenerSlot) load() listenerAdapter {
	return s.current.Load().(adapterHolder).adapter
}

func (s *listenerSlot) store(adapter listenerAdapter) {
	s.current.Store(adapterHolder{adapter: adapter})
}

func (s *listenerSlot) enter() {
	for {
		n := s.firing.Load()
		if n >= 0 && s.firing.CompareAndSwap(n, n+1) {
			return
		}
		// a writer is compacting in place, which never runs user code
		runtime.Gosched()
	}
}

func (s *listenerSlot) exit() {
	s.firing.Add(-1)
}

// claim reports whether the writer may rewrite the listener array in place.
// A successful claim must be followed by release.
func (s *listenerSlot) claim() bool {
	return s.firing.CompareAndSwap(0, -1)
}

func (s *listenerSlot) release() {
	s.firing.Store(0)
}

func (s *listenerSlot) add(listener Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exclusive := s.claim()
	s.store(s.load().add(listener, !exclusive))
	if exclusive {
		s.release()
	}
}

// remove drops the first entry matching listener. Matching may run Equal of a
// registered listener, which is free to register or unregister, so it runs on a
// snapshot without holding mu and the match is located again under mu.
func (s *listenerSlot) remove(listener Listener) bool {
	for {
		s.enter()
		snapshot := s.load()
		index := indexOfListener(snapshot, listener)
		var matched Listener
		if index >= 0 {
			matched = snapshot.rawListener(index)
		}
		s.exit()

		s.mu.Lock()
		adapter := s.load()
		if adapter != snapshot && index >= 0 {
			index = indexOfEntry(adapter, matched)
			if index < 0 {
				// removed or compacted away meanwhile
				s.mu.Unlock()
				continue
			}
		}
		exclusive := s.claim()
		if next := adapter.without(index, !exclusive); next != nil {
			s.store(next)
		}
		if exclusive {
			s.release()
		}
		s.mu.Unlock()
		return index >= 0
	}
}

func indexOfEntry(adapter listenerAdapter, entry Listener) int {
	for i, n := 0, adapter.count(); i < n; i++ {
		if sameListener(entry, adapter.rawListener(i)) {
			return i
		}
	}
	return -1
}

func indexOfListener(adapter listenerAdapter, listener Listener) int {
	for i, n := 0, adapter.count(); i < n; i++ {
		if matches(listener, adapter.rawListener(i)) {
			return i
		}
	}
	return -1
}

// fire sends event to every listener of the current snapshot in insertion
// order and reports whether at least one listener returned normally.
func (s *listenerSlot) fire(ctx context.Context, event interface{}) bool {
	s.enter()
	defer s.exit()
	adapter := s.load()
	dispatched := false
	for i, n := 0, adapter.count(); i < n; i++ {
		if s.invoke(ctx, event, adapter.rawListener(i)) {
			dispatched = true
		}
	}
	return dispatched
}

func (s *listenerSlot) invoke(ctx context.Context, event interface{}, listener Listener) (handled bool) {
	if w, ok := listener.(*weakListener); ok {
		target, alive := w.resolve()
		if !alive {
			w.prune()
			return false
		}
		listener = target
	}
	defer func() {
		if r := recover(); r != nil {
			s.fail(ctx, &ListenerError{
				Event:     event,
				EventType: reflect.TypeOf(event),
				Listener:  listener,
				Err:       fmt.Errorf("panic: %v", r),
				Panic:     r,
				Stack:     string(debug.Stack()),
			})
			handled = false
		}
	}()
	if err := listener.OnEvent(ctx, event); err != nil {
		s.fail(ctx, &ListenerError{
			Event:     event,
			EventType: reflect.TypeOf(event),
			Listener:  listener,
			Err:       err,
		})
		return false
	}
	return true
}

func (s *listenerSlot) fail(ctx context.Context, failure *ListenerError) {
	if s.report != nil {
		s.report(ctx, failure)
	}
}

// count returns the number of stored entries, including weak listeners that
// were collected but not yet pruned.
func (s *listenerSlot) count() int {
	s.enter()
	defer s.exit()
	return s.load().count()
}

// listeners returns the live listeners, weak entries unwrapped.
func (s *listenerSlot) listeners() []Listener {
	s.enter()
	defer s.exit()
	adapter := s.load()
	result := make([]Listener, 0, adapter.count())
	for i, n := 0, adapter.count(); i < n; i++ {
		if listener := unwrapListener(adapter.rawListener(i)); listener != nil {
			result = append(result, listener)
		}
	}
	return result
}

// listenerAdapter is the closed set of storage states of a slot: no listener,
// one listener or many listeners.
type listenerAdapter interface {
	add(listener Listener, iterating bool) listenerAdapter
	// without drops the entry at index (-1 for none) together with collected
	// weak listeners. It returns nil if nothing changed.
	without(index int, iterating bool) listenerAdapter
	count() int
	rawListener(index int) Listener
}

type emptyAdapter struct{}

func (emptyAdapter) add(listener Listener, _ bool) listenerAdapter {
	return &singleAdapter{listener: listener}
}

func (emptyAdapter) without(int, bool) listenerAdapter {
	return nil
}

func (emptyAdapter) count() int {
	return 0
}

func (emptyAdapter) rawListener(int) Listener {
	return nil
}

type singleAdapter struct {
	listener Listener
}

func (a *singleAdapter) add(listener Listener, _ bool) listenerAdapter {
	listeners := make([]Listener, 0, MultiInitialCapacity)
	return &multiAdapter{listeners: append(listeners, a.listener, listener)}
}

func (a *singleAdapter) without(index int, _ bool) listenerAdapter {
	if index == 0 || isCollectedWeakListener(a.listener) {
		return emptyAdapter{}
	}
	return nil
}

func (a *singleAdapter) count() int {
	return 1
}

func (a *singleAdapter) rawListener(index int) Listener {
	if index == 0 {
		return a.listener
	}
	return nil
}

// multiAdapter holds two or more listeners. The capacity of listeners is the
// backing array; snapshots sharing an array never read past their own length.
type multiAdapter struct {
	listeners []Listener
}

func (a *multiAdapter) add(listener Listener, iterating bool) listenerAdapter {
	listeners := a.listeners
	if len(listeners) == cap(listeners) && !iterating {
		listeners = listeners[:trimWeakListeners(listeners)]
		if len(listeners) == 0 {
			return &singleAdapter{listener: listener}
		}
	}
	if len(listeners) < cap(listeners) {
		return &multiAdapter{listeners: append(listeners, listener)}
	}
	grown := make([]Listener, len(listeners), cap(listeners)*GrowthNumerator/GrowthDenominator+1)
	copy(grown, listeners)
	return &multiAdapter{listeners: append(grown, listener)}
}

func (a *multiAdapter) without(index int, iterating bool) listenerAdapter {
	if index < 0 {
		collected := false
		for _, registered := range a.listeners {
			if isCollectedWeakListener(registered) {
				collected = true
				break
			}
		}
		if !collected {
			return nil
		}
	}
	var kept []Listener
	if iterating {
		kept = make([]Listener, 0, cap(a.listeners))
	} else {
		kept = a.listeners[:0]
	}
	for i, registered := range a.listeners {
		if i == index || isCollectedWeakListener(registered) {
			continue
		}
		kept = append(kept, registered)
	}
	if !iterating {
		clear(a.listeners[len(kept):])
	}
	switch len(kept) {
	case 0:
		return emptyAdapter{}
	case 1:
		return &singleAdapter{listener: kept[0]}
	}
	return &multiAdapter{listeners: kept}
}

func (a *multiAdapter) count() int {
	return len(a.listeners)
}

func (a *multiAdapter) rawListener(index int) Listener {
	if index >= 0 && index < len(a.listeners) {
		return a.listeners[index]
	}
	return nil
}
