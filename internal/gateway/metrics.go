package gateway

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the coordinator's Prometheus instrumentation: request
// latency and in-flight count for the HTTP surface, so operators can watch
// dispatch throughput the same way they'd watch any other request-serving
// component.
type Metrics struct {
	requestDuration *prometheus.HistogramVec
	inFlight        prometheus.Gauge
	registry        *prometheus.Registry
}

// NewMetrics registers the coordinator's collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "coordinator_http_request_duration_seconds",
			Help:    "HTTP request latency by method, route, and status code.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "coordinator_http_requests_in_flight",
			Help: "Number of HTTP requests currently being served.",
		}),
		registry: reg,
	}
	reg.MustRegister(m.requestDuration, m.inFlight, prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	return m
}

// Handler exposes the registry in Prometheus text exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware wraps next, recording request duration and in-flight count per
// (method, route, status).
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.inFlight.Inc()
		defer m.inFlight.Dec()

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if rp := chiRoutePattern(r); rp != "" {
			route = rp
		}
		m.requestDuration.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).
			Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
