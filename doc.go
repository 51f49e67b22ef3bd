// Package eventbus is an in-process publish/subscribe bus keyed by event type.
//
// Listeners are registered for a reflect.Type and receive events of that type
// and of every subtype. A type's parent is declared with Hierarchy.Extend, or
// derived from a struct embedded by value as first field, and AnyType is the
// root of every chain. For an event, the most specific listeners run first and
// AnyType listeners run last.
//
//	eventBus := eventbus.NewLocalEventBus()
//	_, err := eventbus.Subscribe(eventBus, func(ctx context.Context, event OrderPaid) error {
//		return nil
//	})
//	err = eventBus.Publish(ctx, OrderPaid{})
//
// Publish never runs listeners recursively: events published from inside a
// listener, or concurrently from other goroutines, are queued and delivered by
// the goroutine already draining the queue. Listener failures go to the
// ErrorHandler; events nobody listens to go to the UnhandledHandler.
//
// Listeners can be registered weakly with WithWeakOption, the bus then drops
// them once they are garbage collected.
package eventbus
