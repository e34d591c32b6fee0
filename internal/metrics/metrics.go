// ABOUTME: Prometheus metrics for gateway calls, correlation waits and endpoints.
// ABOUTME: Metrics implements bridge.Observer and serves its own registry.

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/2389/soap-gateway/internal/bridge"
	"github.com/2389/soap-gateway/internal/exchange"
)

const namespace = "soapgw"

// Metrics holds the gateway's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	PendingCalls     *prometheus.GaugeVec
	CallsTotal       *prometheus.CounterVec
	CallDuration     *prometheus.HistogramVec
	LateReplies      prometheus.Counter
	DuplicateReplies *prometheus.CounterVec
	EndpointUp       *prometheus.GaugeVec
	HTTPRequests     *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
}

var _ bridge.Observer = (*Metrics)(nil)

// New creates the collectors and registers them, with Go runtime and
// process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		PendingCalls: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "bridge",
				Name:      "pending_calls",
				Help:      "In-out calls waiting for a correlated reply",
			},
			[]string{"service"},
		),
		CallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "bridge",
				Name:      "calls_total",
				Help:      "Calls dispatched to the fabric by outcome",
			},
			[]string{"service", "pattern", "outcome"},
		),
		CallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "bridge",
				Name:      "call_duration_seconds",
				Help:      "Time from dispatch to reply, fault or timeout",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 15, 30},
			},
			[]string{"service", "pattern"},
		),
		LateReplies: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "bridge",
				Name:      "late_replies_total",
				Help:      "Replies that arrived after their caller stopped waiting",
			},
		),
		DuplicateReplies: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "bridge",
				Name:      "duplicate_replies_total",
				Help:      "Replies discarded because the call was already answered",
			},
			[]string{"service"},
		),
		EndpointUp: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "endpoint",
				Name:      "up",
				Help:      "1 while a gateway endpoint is started",
			},
			[]string{"direction", "service"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "SOAP requests served by status code",
			},
			[]string{"code", "method"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "SOAP request latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"code", "method"},
		),
	}

	m.registry.MustRegister(
		m.PendingCalls,
		m.CallsTotal,
		m.CallDuration,
		m.LateReplies,
		m.DuplicateReplies,
		m.EndpointUp,
		m.HTTPRequests,
		m.HTTPDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Instrument wraps a SOAP endpoint handler with request counters.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	return promhttp.InstrumentHandlerDuration(m.HTTPDuration,
		promhttp.InstrumentHandlerCounter(m.HTTPRequests, next))
}

// SetEndpointUp records whether an endpoint is started.
func (m *Metrics) SetEndpointUp(direction, service string, up bool) {
	v := 0.0
	if up {
		v = 1
	}
	m.EndpointUp.WithLabelValues(direction, service).Set(v)
}

// CallStarted implements bridge.Observer.
func (m *Metrics) CallStarted(service string, pattern exchange.Pattern) {
	if pattern == exchange.InOut {
		m.PendingCalls.WithLabelValues(service).Inc()
	}
}

// CallFinished implements bridge.Observer.
func (m *Metrics) CallFinished(service string, pattern exchange.Pattern, outcome bridge.Outcome, elapsed time.Duration) {
	if pattern == exchange.InOut {
		m.PendingCalls.WithLabelValues(service).Dec()
	}
	m.CallsTotal.WithLabelValues(service, pattern.String(), string(outcome)).Inc()
	m.CallDuration.WithLabelValues(service, pattern.String()).Observe(elapsed.Seconds())
}

// LateReply implements bridge.Observer.
func (m *Metrics) LateReply() {
	m.LateReplies.Inc()
}

// DuplicateReply implements bridge.Observer.
func (m *Metrics) DuplicateReply(service string) {
	m.DuplicateReplies.WithLabelValues(service).Inc()
}
