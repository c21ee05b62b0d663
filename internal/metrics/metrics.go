package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records HTTP and authentication metrics in Prometheus
type Collector struct {
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	rejections      *prometheus.CounterVec
	authEvents      *prometheus.CounterVec
}

// NewCollector registers the gatekeeper metrics on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeeper_http_requests_total",
			Help: "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gatekeeper_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeeper_rejections_total",
			Help: "Requests refused by status code and error code.",
		}, []string{"status", "code"}),
		authEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeeper_auth_events_total",
			Help: "Authentication operations by event and outcome.",
		}, []string{"event", "outcome"}),
	}

	reg.MustRegister(
		c.requests,
		c.requestDuration,
		c.rejections,
		c.authEvents,
	)

	return c
}

func (c *Collector) ObserveRequest(method, route string, status int, duration time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	c.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.requestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordRejection counts a failure response. code may be empty.
func (c *Collector) RecordRejection(status int, code string) {
	if code == "" {
		code = "none"
	}
	c.rejections.WithLabelValues(strconv.Itoa(status), code).Inc()
}

func (c *Collector) RecordAuthEvent(event, outcome string) {
	c.authEvents.WithLabelValues(event, outcome).Inc()
}

// Handler returns the HTTP handler for Prometheus scrapes.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
