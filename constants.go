package eventbus

import "math"

// common
const (
	CtxEventBusLoopTimes ctxKey = "ctx_event_bus_loop_times"
	DefaultMaxLoopTimes         = math.MaxUint16
	DefaultBusName              = "default"
)

// listener storage
const (
	MultiInitialCapacity = 2
	GrowthNumerator      = 3
	GrowthDenominator    = 2
	// pointer-free allocations below this size share runtime memory blocks
	TinyAllocatorSize = 16
)

// config keys
const (
	ConfigKeyName         = "name"
	ConfigKeyMaxLoopTimes = "max_loop_times"
	ConfigKeyLogLevel     = "log_level"
	ConfigKeyLogUnhandled = "log_unhandled"
)

// tracing
const (
	TracerName            = "github.com/moshangguang/local-event-bus"
	SpanNameDispatch      = "eventbus.dispatch"
	AttrEventType         = "eventbus.event_type"
	AttrBusName           = "eventbus.bus"
	AttrDispatched        = "eventbus.dispatched"
	MessagingSystemEvents = "local-event-bus"
)
