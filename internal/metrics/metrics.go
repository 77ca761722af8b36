// Package metrics exports tuple space statistics to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dyluth/tuplespace/pkg/space"
)

// StatsSource is the read side of a space the collector needs.
type StatsSource interface {
	Stats() space.Stats
	Size() int
}

// NewRegistry creates a registry with Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// SpaceCollector reads space counters at scrape time.
type SpaceCollector struct {
	source StatsSource

	operations *prometheus.Desc
	misses     *prometheus.Desc
	blocking   *prometheus.Desc
	listeners  *prometheus.Desc
	expired    *prometheus.Desc
	dropped    *prometheus.Desc
	size       *prometheus.Desc
}

var _ prometheus.Collector = (*SpaceCollector)(nil)

// NewSpaceCollector creates a collector for source. instance is attached as a
// constant label.
func NewSpaceCollector(source StatsSource, instance string) *SpaceCollector {
	labels := prometheus.Labels{"instance": instance}
	desc := func(name, help string, variable ...string) *prometheus.Desc {
		return prometheus.NewDesc("tuplespace_"+name, help, variable, labels)
	}

	return &SpaceCollector{
		source:     source,
		operations: desc("operations_total", "Successful operations by kind", "op"),
		misses:     desc("missed_total", "Reads and takes that found no match", "op"),
		blocking:   desc("blocking_calls", "Calls currently blocked waiting for a match", "op"),
		listeners:  desc("listeners", "Registered event listeners"),
		expired:    desc("expired_total", "Tuples evicted after their lease ran out"),
		dropped:    desc("dropped_events_total", "Events dropped because the event pool rejected them"),
		size:       desc("tuples", "Tuples currently stored"),
	}
}

// Describe implements prometheus.Collector.
func (c *SpaceCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.operations
	ch <- c.misses
	ch <- c.blocking
	ch <- c.listeners
	ch <- c.expired
	ch <- c.dropped
	ch <- c.size
}

// Collect implements prometheus.Collector.
func (c *SpaceCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.source.Stats()

	ch <- prometheus.MustNewConstMetric(c.operations, prometheus.CounterValue, float64(s.Reads), "read")
	ch <- prometheus.MustNewConstMetric(c.operations, prometheus.CounterValue, float64(s.Takes), "take")
	ch <- prometheus.MustNewConstMetric(c.operations, prometheus.CounterValue, float64(s.Writes), "write")
	ch <- prometheus.MustNewConstMetric(c.misses, prometheus.CounterValue, float64(s.MissedReads), "read")
	ch <- prometheus.MustNewConstMetric(c.misses, prometheus.CounterValue, float64(s.MissedTakes), "take")
	ch <- prometheus.MustNewConstMetric(c.blocking, prometheus.GaugeValue, float64(s.BlockingReads), "read")
	ch <- prometheus.MustNewConstMetric(c.blocking, prometheus.GaugeValue, float64(s.BlockingTakes), "take")
	ch <- prometheus.MustNewConstMetric(c.listeners, prometheus.GaugeValue, float64(s.Listeners))
	ch <- prometheus.MustNewConstMetric(c.expired, prometheus.CounterValue, float64(s.Expired))
	ch <- prometheus.MustNewConstMetric(c.dropped, prometheus.CounterValue, float64(s.DroppedEvents))
	ch <- prometheus.MustNewConstMetric(c.size, prometheus.GaugeValue, float64(c.source.Size()))
}
