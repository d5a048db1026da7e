// Package metrics collects client-side counters for requests, refreshes, and live traffic.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder is what the gateway, session manager, and synchronizer report to
type Recorder interface {
	RecordRequest(method string, status int, latency time.Duration)
	RecordRefresh(ok bool)
	RecordLiveMessage(kind string, applied bool)
}

// Noop discards everything
type Noop struct{}

func (Noop) RecordRequest(string, int, time.Duration) {}
func (Noop) RecordRefresh(bool)                       {}
func (Noop) RecordLiveMessage(string, bool)           {}

// Collector is the Prometheus implementation
type Collector struct {
	requests       *prometheus.CounterVec
	requestLatency prometheus.Histogram
	refreshes      *prometheus.CounterVec
	liveMessages   *prometheus.CounterVec
}

// NewCollector registers the client metrics with reg
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "commenthub_requests_total",
			Help: "Requests sent to the comment service by method and status",
		}, []string{"method", "status"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "commenthub_request_latency_seconds",
			Help:    "Latency of requests to the comment service",
			Buckets: prometheus.DefBuckets,
		}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "commenthub_token_refresh_total",
			Help: "Access token refresh attempts by outcome",
		}, []string{"outcome"}),
		liveMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "commenthub_live_messages_total",
			Help: "Live channel messages by type and whether they changed the tree",
		}, []string{"type", "applied"}),
	}
	reg.MustRegister(c.requests, c.requestLatency, c.refreshes, c.liveMessages)
	return c
}

func (c *Collector) RecordRequest(method string, status int, latency time.Duration) {
	c.requests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	c.requestLatency.Observe(latency.Seconds())
}

func (c *Collector) RecordRefresh(ok bool) {
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	c.refreshes.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordLiveMessage(kind string, applied bool) {
	c.liveMessages.WithLabelValues(kind, strconv.FormatBool(applied)).Inc()
}
