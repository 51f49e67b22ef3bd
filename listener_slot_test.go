package eventbus

import (
	"context"
	"errors"
	"reflect"
	"sync/atomic"
	"testing"

	"golang.org/x/sync/errgroup"
)

func TestListenerSlot_States(t *testing.T) {
	slot := newListenerSlot(TypeOf[string](), nil)
	if _, ok := slot.load().(emptyAdapter); !ok {
		t.Errorf("new slot should be empty, got %T", slot.load())
		return
	}
	if slot.fire(context.Background(), "x") {
		t.Errorf("empty slot must report not dispatched")
		return
	}
	rec := new(recorder)
	a, b := rec.listener("a"), rec.listener("b")
	slot.add(a)
	if _, ok := slot.load().(*singleAdapter); !ok {
		t.Errorf("one listener should be stored as single, got %T", slot.load())
		return
	}
	slot.add(b)
	multi, ok := slot.load().(*multiAdapter)
	if !ok || cap(multi.listeners) != MultiInitialCapacity {
		t.Errorf("two listeners should be stored as multi with capacity %d, got %T", MultiInitialCapacity, slot.load())
		return
	}
	if !slot.remove(a) {
		t.Errorf("remove a should succeed")
		return
	}
	single, ok := slot.load().(*singleAdapter)
	if !ok || single.listener != b {
		t.Errorf("multi of two should shrink to single b, got %T", slot.load())
		return
	}
	if slot.remove(a) {
		t.Errorf("removing a missing listener should report false")
		return
	}
	if !slot.remove(b) {
		t.Errorf("remove b should succeed")
		return
	}
	if _, ok := slot.load().(emptyAdapter); !ok {
		t.Errorf("slot should be empty again, got %T", slot.load())
	}
}

func TestListenerSlot_Growth(t *testing.T) {
	slot := newListenerSlot(TypeOf[string](), nil)
	rec := new(recorder)
	wantCaps := []int{0, 0, 2, 4, 4, 7, 7, 7, 11}
	for i := 1; i < len(wantCaps); i++ {
		slot.add(rec.listener("l"))
		multi, ok := slot.load().(*multiAdapter)
		if !ok {
			continue
		}
		if cap(multi.listeners) != wantCaps[i] || len(multi.listeners) != i {
			t.Errorf("after %d adds want cap %d, got len %d cap %d", i, wantCaps[i], len(multi.listeners), cap(multi.listeners))
			return
		}
	}
}

func TestListenerSlot_RemoveInPlace(t *testing.T) {
	slot := newListenerSlot(TypeOf[string](), nil)
	rec := new(recorder)
	a, b, c := rec.listener("a"), rec.listener("b"), rec.listener("c")
	slot.add(a)
	slot.add(b)
	slot.add(c)
	before := slot.load().(*multiAdapter)
	slot.remove(a)
	after := slot.load().(*multiAdapter)
	if &before.listeners[0] != &after.listeners[0] {
		t.Errorf("removal without iteration should reuse the backing array")
		return
	}
	if before.listeners[2] != nil {
		t.Errorf("vacated tail should be cleared")
		return
	}
	slot.fire(context.Background(), "x")
	if got := rec.list(); !reflect.DeepEqual(got, []string{"b", "c"}) {
		t.Errorf("order should be kept after shift, got %v", got)
	}
}

func TestListenerSlot_RemoveWhileFiring(t *testing.T) {
	slot := newListenerSlot(TypeOf[string](), nil)
	rec := new(recorder)
	a, c := rec.listener("a"), rec.listener("c")
	var snapshot *multiAdapter
	b := ListenerFunc(func(ctx context.Context, event interface{}) error {
		rec.add("b")
		snapshot = slot.load().(*multiAdapter)
		slot.remove(a)
		slot.remove(c)
		return nil
	})
	slot.add(a)
	slot.add(b)
	slot.add(c)
	iterated := slot.load().(*multiAdapter)
	if !slot.fire(context.Background(), "x") {
		t.Errorf("fire should report dispatched")
		return
	}
	if got := rec.list(); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Errorf("in-flight iteration should see its snapshot, got %v", got)
		return
	}
	if snapshot != iterated || len(iterated.listeners) != 3 || iterated.listeners[2] != c {
		t.Errorf("snapshot being iterated must not be modified")
		return
	}
	single, ok := slot.load().(*singleAdapter)
	if !ok || single.listener != b {
		t.Errorf("only b should remain, got %T", slot.load())
	}
}

func TestListenerSlot_AddWhileFiring(t *testing.T) {
	slot := newListenerSlot(TypeOf[string](), nil)
	rec := new(recorder)
	late := rec.listener("late")
	slot.add(ListenerFunc(func(ctx context.Context, event interface{}) error {
		rec.add("early")
		if len(rec.list()) == 1 {
			slot.add(late)
			slot.add(late)
			slot.add(late)
		}
		return nil
	}))
	slot.add(rec.listener("second"))
	slot.fire(context.Background(), "x")
	if got := rec.list(); !reflect.DeepEqual(got, []string{"early", "second"}) {
		t.Errorf("listeners added while firing wait for the next fire, got %v", got)
		return
	}
	if slot.count() != 5 {
		t.Errorf("want 5 entries, got %d", slot.count())
	}
}

func TestListenerSlot_Failures(t *testing.T) {
	var failures []*ListenerError
	slot := newListenerSlot(TypeOf[string](), func(ctx context.Context, failure *ListenerError) {
		failures = append(failures, failure)
	})
	boom := errors.New("boom")
	slot.add(ListenerFunc(func(ctx context.Context, event interface{}) error {
		return boom
	}))
	if slot.fire(context.Background(), "x") {
		t.Errorf("a failing listener does not handle the event")
		return
	}
	if len(failures) != 1 || !errors.Is(failures[0], boom) || failures[0].Panic != nil {
		t.Errorf("returned error should be reported, got %v", failures)
		return
	}
	slot.add(ListenerFunc(func(ctx context.Context, event interface{}) error {
		panic(boom)
	}))
	slot.fire(context.Background(), "y")
	if len(failures) != 3 || failures[2].Panic != boom || failures[2].Event != "y" {
		t.Errorf("panic should be reported after the error, got %v", failures)
		return
	}
	if slot.firing.Load() != 0 {
		t.Errorf("firing marker must be cleared after a panic")
	}
}

func TestListenerSlot_ConcurrentFireAndMutate(t *testing.T) {
	slot := newListenerSlot(TypeOf[int](), nil)
	var calls atomic.Int64
	stable := ListenerFunc(func(ctx context.Context, event interface{}) error {
		calls.Add(1)
		return nil
	})
	slot.add(stable)
	var group errgroup.Group
	for i := 0; i < 4; i++ {
		group.Go(func() error {
			for j := 0; j < 1000; j++ {
				slot.fire(context.Background(), j)
			}
			return nil
		})
		group.Go(func() error {
			for j := 0; j < 1000; j++ {
				l := ListenerFunc(func(ctx context.Context, event interface{}) error { return nil })
				slot.add(l)
				if !slot.remove(l) {
					return errors.New("added listener not found")
				}
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		t.Errorf("concurrent mutation,err:%s", err.Error())
		return
	}
	if calls.Load() != 4000 {
		t.Errorf("stable listener should see every fire, got %d", calls.Load())
	}
	if slot.count() != 1 {
		t.Errorf("only the stable listener should remain, got %d", slot.count())
	}
}
