// Package metrics exposes Prometheus counters for job execution, stream
// delivery, and push notifications. All record methods are safe on a nil
// *Collector so instrumentation can be left unwired in tests.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	registry *prometheus.Registry

	jobsSubmitted *prometheus.CounterVec
	jobsCompleted *prometheus.CounterVec
	jobDuration   *prometheus.HistogramVec
	subscriptions prometheus.Gauge
	broadcasts    prometheus.Counter
	notifications *prometheus.CounterVec
}

// NewCollector builds a collector backed by its own registry, so multiple
// instances can coexist in one process.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		jobsSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "remoteprompt_jobs_submitted_total",
			Help: "Jobs accepted for execution, by runner.",
		}, []string{"runner"}),
		jobsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "remoteprompt_jobs_completed_total",
			Help: "Jobs reaching a terminal status, by runner and status.",
		}, []string{"runner", "status"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "remoteprompt_job_duration_seconds",
			Help:    "Wall time from running to terminal status.",
			Buckets: []float64{1, 5, 15, 60, 300, 900, 1800},
		}, []string{"runner"}),
		subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "remoteprompt_stream_subscriptions",
			Help: "Live event stream subscriptions.",
		}),
		broadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "remoteprompt_stream_broadcasts_total",
			Help: "Payloads fanned out to stream subscribers.",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "remoteprompt_notifications_total",
			Help: "Push notification attempts, by outcome.",
		}, []string{"outcome"}),
	}
	c.registry.MustRegister(
		c.jobsSubmitted,
		c.jobsCompleted,
		c.jobDuration,
		c.subscriptions,
		c.broadcasts,
		c.notifications,
	)
	return c
}

// Handler serves the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) RecordSubmitted(runner string) {
	if c == nil {
		return
	}
	c.jobsSubmitted.WithLabelValues(runner).Inc()
}

func (c *Collector) RecordCompleted(runner, status string, seconds float64) {
	if c == nil {
		return
	}
	c.jobsCompleted.WithLabelValues(runner, status).Inc()
	c.jobDuration.WithLabelValues(runner).Observe(seconds)
}

func (c *Collector) SubscriptionOpened() {
	if c == nil {
		return
	}
	c.subscriptions.Inc()
}

func (c *Collector) SubscriptionClosed() {
	if c == nil {
		return
	}
	c.subscriptions.Dec()
}

func (c *Collector) RecordBroadcast() {
	if c == nil {
		return
	}
	c.broadcasts.Inc()
}

func (c *Collector) RecordNotification(outcome string) {
	if c == nil {
		return
	}
	c.notifications.WithLabelValues(outcome).Inc()
}
