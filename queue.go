package eventbus

import (
	"context"
	"sync"
)

type queuedEvent struct {
	ctx   context.Context
	event interface{}
}

// eventQueue is the unbounded FIFO of published events waiting for the drain
// loop. Events keep the context they were published with.
type eventQueue struct {
	mu    sync.Mutex
	items []queuedEvent
	head  int
}

func (q *eventQueue) push(item queuedEvent) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, item)
}

func (q *eventQueue) pop() (queuedEvent, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.head == len(q.items) {
		return queuedEvent{}, false
	}
	item := q.items[q.head]
	q.items[q.head] = queuedEvent{}
	q.head++
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	} else if q.head > 64 && q.head*2 > len(q.items) {
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}
	return item, true
}

func (q *eventQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}
