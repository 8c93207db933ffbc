package stresstest

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "relaybench"

// Collector exposes an Aggregator to Prometheus. Values are read from a
// snapshot at scrape time.
type Collector struct {
	stats *Aggregator

	target      *prometheus.Desc
	attempts    *prometheus.Desc
	alive       *prometheus.Desc
	finished    *prometheus.Desc
	completed   *prometheus.Desc
	connectTime *prometheus.Desc
	requests    *prometheus.Desc
	roundTrip   *prometheus.Desc
}

// NewCollector creates a Collector for stats
func NewCollector(stats *Aggregator) *Collector {
	return &Collector{
		stats: stats,
		target: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "", "connections_target"),
			"Requested connection count.", nil, nil),
		attempts: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "", "connection_attempts_total"),
			"Connect attempts issued.", nil, nil),
		alive: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "", "connections_alive"),
			"Connections currently established.", nil, nil),
		finished: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "", "connections_finished_total"),
			"Connections finished, by outcome.", []string{"outcome"}, nil),
		completed: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "", "connections_completed_total"),
			"Connection lifecycles fully finished.", nil, nil),
		connectTime: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "", "connect_seconds_total"),
			"Cumulative time spent establishing successful connections.", nil, nil),
		requests: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "", "requests_total"),
			"Request cycles, by result.", []string{"result"}, nil),
		roundTrip: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "", "round_trip_seconds_total"),
			"Cumulative REQ to EOSE latency.", nil, nil),
	}
}

// Describe implements prometheus.Collector
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.target
	ch <- c.attempts
	ch <- c.alive
	ch <- c.finished
	ch <- c.completed
	ch <- c.connectTime
	ch <- c.requests
	ch <- c.roundTrip
}

// Collect implements prometheus.Collector
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	conn, events := c.stats.Snapshot()

	ch <- prometheus.MustNewConstMetric(c.target, prometheus.GaugeValue, float64(conn.Total))
	ch <- prometheus.MustNewConstMetric(c.attempts, prometheus.CounterValue, float64(conn.Connecting))
	ch <- prometheus.MustNewConstMetric(c.alive, prometheus.GaugeValue, float64(conn.Alive))
	ch <- prometheus.MustNewConstMetric(c.finished, prometheus.CounterValue, float64(conn.Closed), OutcomeClosed.String())
	ch <- prometheus.MustNewConstMetric(c.finished, prometheus.CounterValue, float64(conn.Lost), OutcomeLost.String())
	ch <- prometheus.MustNewConstMetric(c.finished, prometheus.CounterValue, float64(conn.Errored), OutcomeError.String())
	ch <- prometheus.MustNewConstMetric(c.completed, prometheus.CounterValue, float64(conn.Completed))
	ch <- prometheus.MustNewConstMetric(c.connectTime, prometheus.CounterValue, conn.SuccessTime.Seconds())
	ch <- prometheus.MustNewConstMetric(c.requests, prometheus.CounterValue, float64(events.Total), "sent")
	ch <- prometheus.MustNewConstMetric(c.requests, prometheus.CounterValue, float64(events.Completed), "completed")
	ch <- prometheus.MustNewConstMetric(c.requests, prometheus.CounterValue, float64(events.Errored), "errored")
	ch <- prometheus.MustNewConstMetric(c.roundTrip, prometheus.CounterValue, events.RoundTripTime.Seconds())
}
