package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	eventbus "github.com/moshangguang/local-event-bus"
)

// <1>define the events, OrderPaid is an OrderEvent because it embeds it first
type OrderEvent struct {
	OrderID string
}

type OrderPaid struct {
	OrderEvent
	Amount int
}

type OrderCancelled struct {
	OrderEvent
	Reason string
}

func main() {
	configPath := flag.String("config", "", "optional YAML bus config")
	metricsAddr := flag.String("metrics", "", "serve Prometheus metrics on this address and block")
	flag.Parse()

	config := eventbus.Config{Name: "orders", LogUnhandled: true}
	if *configPath != "" {
		loaded, err := eventbus.LoadConfigYAML(*configPath)
		if err != nil {
			logrus.WithError(err).Fatal("load config")
		}
		config = loaded
	}
	//<2>create the bus, failures go to the error handler and never to the publisher
	eventBus, err := eventbus.NewLocalEventBusFromConfig(config,
		eventbus.WithTracerOption(otel.Tracer(eventbus.TracerName)),
		eventbus.WithErrHandlerOption(func(option eventbus.ErrorOption) {
			logrus.WithField("event", option.Message).WithError(option.Error).Warn(option.Title)
		}),
	)
	if err != nil {
		logrus.WithError(err).Fatal("create bus")
	}
	//<3>register listeners, the OrderEvent listener also sees every subtype
	if _, err := eventbus.Subscribe(eventBus, func(ctx context.Context, event OrderEvent) error {
		fmt.Println("order event", event.OrderID)
		return nil
	}); err != nil {
		panic(err)
	}
	if _, err := eventbus.Subscribe(eventBus, func(ctx context.Context, event OrderPaid) error {
		fmt.Println("order paid", event.OrderID, event.Amount)
		if event.Amount <= 0 {
			return errors.New("invalid amount")
		}
		//<4>publishing from a listener queues the event behind the current one
		return eventBus.Publish(ctx, "receipt for "+event.OrderID)
	}); err != nil {
		panic(err)
	}
	if _, err := eventbus.Subscribe(eventBus, func(ctx context.Context, receipt string) error {
		fmt.Println(receipt)
		return nil
	}); err != nil {
		panic(err)
	}
	ctx := eventbus.WithEventBus(context.Background())
	//<5>publish
	for _, event := range []interface{}{
		OrderPaid{OrderEvent: OrderEvent{OrderID: "A-1"}, Amount: 42},
		OrderPaid{OrderEvent: OrderEvent{OrderID: "A-2"}},
		OrderCancelled{OrderEvent: OrderEvent{OrderID: "A-3"}, Reason: "out of stock"},
		42,
	} {
		if err := eventBus.Publish(ctx, event); err != nil {
			panic(err)
		}
	}
	fmt.Printf("%+v\n", eventBus.Stats())

	if *metricsAddr == "" {
		return
	}
	registry := prometheus.NewRegistry()
	registry.MustRegister(eventbus.NewCollector(eventBus))
	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{EnableOpenMetrics: true}))
	logrus.WithField("addr", *metricsAddr).Info("serving metrics")
	if err := http.ListenAndServe(*metricsAddr, nil); err != nil {
		logrus.WithError(err).Fatal("serve metrics")
	}
}
