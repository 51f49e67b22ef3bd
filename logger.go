package eventbus

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

func defaultLogger() *logrus.Entry {
	return logrus.WithField("process", "eventbus")
}

// newLevelLogger returns a logger writing at level, detached from the standard
// logger so the level of other users is left alone.
func newLevelLogger(level logrus.Level) *logrus.Entry {
	logger := logrus.New()
	logger.SetLevel(level)
	return logger.WithField("process", "eventbus")
}

// LogErrorHandler returns an ErrorHandler logging every failure at error level.
func LogErrorHandler(logger *logrus.Entry) ErrorHandler {
	if logger == nil {
		logger = defaultLogger()
	}
	return func(option ErrorOption) {
		entry := logger.WithFields(logrus.Fields{
			"bus":        option.BusName,
			"bus_id":     option.BusID,
			"event_type": fmt.Sprint(option.EventType),
			"event":      option.Message,
			"listener":   fmt.Sprintf("%T", option.Listener),
		})
		if option.Panic != nil {
			entry = entry.WithFields(logrus.Fields{
				"panic": option.Panic,
				"stack": option.Stack,
			})
		}
		entry.WithError(option.Error).Error(option.Title)
	}
}

// LogUnhandledHandler returns an UnhandledHandler logging events nobody
// listened to at warn level.
func LogUnhandledHandler(logger *logrus.Entry) UnhandledHandler {
	if logger == nil {
		logger = defaultLogger()
	}
	return func(ctx context.Context, event interface{}) {
		logger.WithFields(logrus.Fields{
			"event_type": fmt.Sprintf("%T", event),
			"event":      describeEvent(event),
		}).Warn("[eventbus] event has no listener")
	}
}
