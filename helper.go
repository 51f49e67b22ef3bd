package eventbus

import (
	"context"
	"fmt"
	"reflect"

	jsoniter "github.com/json-iterator/go"
)

func WithEventBus(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	loopTimes := ctx.Value(CtxEventBusLoopTimes)
	if loopTimes != nil {
		if _, ok := loopTimes.(*int32); ok {
			return ctx
		}
	}
	return context.WithValue(ctx, CtxEventBusLoopTimes, new(int32))
}

func MustGetLoopTimes(ctx context.Context) (*int32, error) {
	if ctx == nil {
		return nil, ErrCtxNil
	}
	times := ctx.Value(CtxEventBusLoopTimes)
	if times == nil {
		return nil, ErrCtxNotFoundLoopTimes
	}
	t, ok := times.(*int32)
	if ok {
		return t, nil
	}
	return nil, ErrCtxLoopTimesType
}

func BuildListenerOptional(options ...ListenerOption) ListenerOptional {
	optional := ListenerOptional{}
	for _, opt := range options {
		if opt != nil {
			opt(&optional)
		}
	}
	return optional
}

func BuildEventBusOptional(options ...EventBusOption) EventBusOptional {
	optional := EventBusOptional{
		name:         DefaultBusName,
		maxLoopTimes: DefaultMaxLoopTimes,
	}
	for _, opt := range options {
		if opt != nil {
			opt(&optional)
		}
	}
	if optional.logger == nil {
		optional.logger = defaultLogger()
	}
	return optional
}

// isNilEvent reports whether event is absent: a nil interface or a nil value
// of a nillable kind.
func isNilEvent(event interface{}) bool {
	if event == nil {
		return true
	}
	value := reflect.ValueOf(event)
	switch value.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface, reflect.UnsafePointer:
		return value.IsNil()
	}
	return false
}

// describeEvent renders event for logs and error options.
func describeEvent(event interface{}) string {
	message, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalToString(event)
	if err != nil {
		return fmt.Sprintf("%+v", event)
	}
	return message
}
