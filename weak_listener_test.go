package eventbus

import (
	"context"
	"errors"
	"runtime"
	"sync/atomic"
	"testing"
)

func TestWeakListener_Pruned(t *testing.T) {
	var unhandled atomic.Int32
	eventBus := NewLocalEventBus(WithUnhandledOption(func(ctx context.Context, event interface{}) {
		unhandled.Add(1)
	}))
	calls := new(atomic.Int32)
	if err := registerWeakCounter(eventBus, calls); err != nil {
		t.Errorf("register weak listener,err:%s", err.Error())
		return
	}
	if calls.Load() != 1 {
		t.Errorf("weak listener should receive events while reachable, got %d", calls.Load())
		return
	}
	collectGarbage()
	slot := eventBus.registry.get(TypeOf[string]()).slot
	if slot.count() != 1 {
		t.Errorf("collected entry stays stored until the next fire, got %d", slot.count())
		return
	}
	if eventBus.ListenerCount(TypeOf[string]()) != 0 {
		t.Errorf("collected entry must not be listed")
		return
	}
	_ = eventBus.Publish(context.Background(), "after")
	if calls.Load() != 1 {
		t.Errorf("collected listener must not be invoked, got %d", calls.Load())
		return
	}
	if unhandled.Load() != 1 {
		t.Errorf("event reaching only a collected listener is unhandled, got %d", unhandled.Load())
		return
	}
	if slot.count() != 0 {
		t.Errorf("fire should prune the collected entry, got %d", slot.count())
	}
}

func TestWeakListener_KeptAlive(t *testing.T) {
	eventBus := NewLocalEventBus()
	calls := new(atomic.Int32)
	counter := &weakCounter{calls: calls}
	if err := eventBus.Register(TypeOf[string](), counter, WithWeakOption()); err != nil {
		t.Errorf("register,err:%s", err.Error())
		return
	}
	collectGarbage()
	_ = eventBus.Publish(context.Background(), "x")
	if calls.Load() != 1 {
		t.Errorf("reachable weak listener should be invoked, got %d", calls.Load())
		return
	}
	listeners := eventBus.Listeners(TypeOf[string]())
	if len(listeners) != 1 || listeners[0] != Listener(counter) {
		t.Errorf("listeners should unwrap weak entries, got %v", listeners)
		return
	}
	if !eventBus.Unregister(TypeOf[string](), counter) {
		t.Errorf("weak entry should be removable with the listener itself")
	}
	runtime.KeepAlive(counter)
}

func TestWeakListener_SelfRemoval(t *testing.T) {
	slot := newListenerSlot(TypeOf[string](), nil)
	calls := new(atomic.Int32)
	w := addWeakCounter(slot, calls)
	collectGarbage()
	if err := w.OnEvent(context.Background(), "x"); err != nil {
		t.Errorf("collected weak listener should ignore events,err:%s", err.Error())
		return
	}
	if slot.count() != 0 {
		t.Errorf("collected weak listener should remove itself, got %d entries", slot.count())
		return
	}
	// already gone, nothing to do
	w.prune()
}

func TestWeakListener_TrimOnGrowth(t *testing.T) {
	slot := newListenerSlot(TypeOf[string](), nil)
	rec := new(recorder)
	a, b := rec.listener("a"), rec.listener("b")
	slot.add(a)
	addWeakCounter(slot, new(atomic.Int32))
	collectGarbage()
	slot.add(b)
	multi, ok := slot.load().(*multiAdapter)
	if !ok || cap(multi.listeners) != MultiInitialCapacity || len(multi.listeners) != 2 {
		t.Errorf("full array should be trimmed before growing, got %T", slot.load())
		return
	}
	if multi.listeners[0] != a || multi.listeners[1] != b {
		t.Errorf("trim should keep order, got %v", multi.listeners)
	}
}

func TestWeakListener_NotPointer(t *testing.T) {
	if _, err := newWeakListener(nil, valueListener{}); !errors.Is(err, ErrListenerNotPointer) {
		t.Errorf("value listener should be rejected, got %v", err)
	}
	if _, err := newWeakListener(nil, (*weakCounter)(nil)); !errors.Is(err, ErrListenerNotPointer) {
		t.Errorf("nil pointer should be rejected, got %v", err)
	}
	if _, err := newWeakListener(nil, &emptyListener{}); !errors.Is(err, ErrListenerNotPointer) {
		t.Errorf("pointer to zero-sized value should be rejected, got %v", err)
	}
}

func TestWeakListener_TooSmall(t *testing.T) {
	eventBus := NewLocalEventBus()
	if err := eventBus.Register(TypeOf[string](), &tinyListener{}, WithWeakOption()); !errors.Is(err, ErrWeakListenerTooSmall) {
		t.Errorf("small pointer-free listener should be rejected, got %v", err)
		return
	}
	if eventBus.ListenerCount(TypeOf[string]()) != 0 {
		t.Errorf("rejected listener must not be stored")
		return
	}
	if err := eventBus.Register(TypeOf[string](), &tinyListener{}); err != nil {
		t.Errorf("strong registration is not restricted,err:%s", err.Error())
		return
	}
	if _, err := newWeakListener(nil, &paddedListener{}); err != nil {
		t.Errorf("16 byte pointer-free listener should be accepted,err:%s", err.Error())
		return
	}
	if _, err := newWeakListener(nil, &weakCounter{calls: new(atomic.Int32)}); err != nil {
		t.Errorf("small listener holding a pointer should be accepted,err:%s", err.Error())
	}
}

// registerWeakCounter registers a listener that is only reachable through its
// weak entry once this function returns.
//
//go:noinline
func registerWeakCounter(eventBus *LocalEventBus, calls *atomic.Int32) error {
	counter := &weakCounter{calls: calls}
	if err := eventBus.Register(TypeOf[string](), counter, WithWeakOption()); err != nil {
		return err
	}
	err := eventBus.Publish(context.Background(), "before")
	runtime.KeepAlive(counter)
	return err
}

//go:noinline
func addWeakCounter(slot *listenerSlot, calls *atomic.Int32) *weakListener {
	w, err := newWeakListener(slot, &weakCounter{calls: calls})
	if err != nil {
		panic(err)
	}
	slot.add(w)
	return w
}

func collectGarbage() {
	runtime.GC()
	runtime.GC()
}

// weakCounter holds a pointer so it is never placed in the tiny allocator, whose
// blocks are shared and freed together.
type weakCounter struct {
	calls *atomic.Int32
}

func (p *weakCounter) OnEvent(ctx context.Context, event interface{}) error {
	p.calls.Add(1)
	return nil
}

type emptyListener struct{}

func (*emptyListener) OnEvent(ctx context.Context, event interface{}) error {
	return nil
}

type tinyListener struct {
	n int32
}

func (l *tinyListener) OnEvent(ctx context.Context, event interface{}) error {
	l.n++
	return nil
}

type paddedListener struct {
	n    int64
	seen [2]int32
}

func (*paddedListener) OnEvent(ctx context.Context, event interface{}) error {
	return nil
}
