package eventbus

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "eventbus"

// Collector exports the Stats of a LocalEventBus as Prometheus metrics, labeled
// with the bus name.
type Collector struct {
	eventBus *LocalEventBus

	published        *prometheus.Desc
	dispatched       *prometheus.Desc
	unhandled        *prometheus.Desc
	listenerFailures *prometheus.Desc
	rejected         *prometheus.Desc
	pending          *prometheus.Desc
	eventTypes       *prometheus.Desc
}

func NewCollector(eventBus *LocalEventBus) *Collector {
	labels := prometheus.Labels{"bus": eventBus.Name()}
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(metricsNamespace, "", name), help, nil, labels)
	}
	return &Collector{
		eventBus:         eventBus,
		published:        desc("events_published_total", "Events accepted by Publish."),
		dispatched:       desc("events_dispatched_total", "Events delivered to at least one listener."),
		unhandled:        desc("events_unhandled_total", "Events that reached no listener."),
		listenerFailures: desc("listener_failures_total", "Listener invocations that returned an error or panicked."),
		rejected:         desc("events_rejected_total", "Publications rejected by the loop guard."),
		pending:          desc("queue_pending", "Events queued and not yet dispatched."),
		eventTypes:       desc("event_types", "Event types with a listener slot."),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.published
	ch <- c.dispatched
	ch <- c.unhandled
	ch <- c.listenerFailures
	ch <- c.rejected
	ch <- c.pending
	ch <- c.eventTypes
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	stats := c.eventBus.Stats()
	ch <- prometheus.MustNewConstMetric(c.published, prometheus.CounterValue, float64(stats.Published))
	ch <- prometheus.MustNewConstMetric(c.dispatched, prometheus.CounterValue, float64(stats.Dispatched))
	ch <- prometheus.MustNewConstMetric(c.unhandled, prometheus.CounterValue, float64(stats.Unhandled))
	ch <- prometheus.MustNewConstMetric(c.listenerFailures, prometheus.CounterValue, float64(stats.ListenerFailures))
	ch <- prometheus.MustNewConstMetric(c.rejected, prometheus.CounterValue, float64(stats.Rejected))
	ch <- prometheus.MustNewConstMetric(c.pending, prometheus.GaugeValue, float64(stats.Pending))
	ch <- prometheus.MustNewConstMetric(c.eventTypes, prometheus.GaugeValue, float64(stats.EventTypes))
}
