package eventbus

import (
	"context"
	"reflect"
)

type EventBus interface {
	Register(eventType reflect.Type, listener Listener, options ...ListenerOption) error
	Unregister(eventType reflect.Type, listener Listener) bool
	Publish(ctx context.Context, event interface{}) error
}

// Subscribe registers fn for events of type E and returns the listener handle
// needed to unregister it.
func Subscribe[E any](eventBus EventBus, fn func(ctx context.Context, event E) error, options ...ListenerOption) (Listener, error) {
	listener := Func(fn)
	if err := eventBus.Register(TypeOf[E](), listener, options...); err != nil {
		return nil, err
	}
	return listener, nil
}
