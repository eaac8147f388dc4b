// Package metrics exposes the Prometheus collectors shared by the server, the
// session scanner and the dashboard poller.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles every collector. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	registry        *prometheus.Registry
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	scanDuration    *prometheus.HistogramVec
	liveTasks       *prometheus.GaugeVec
	fetchFailures   *prometheus.CounterVec
}

// New builds the collectors on a private registry together with the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mission_control",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests served, by route pattern and status code.",
		}, []string{"route", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mission_control",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		scanDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mission_control",
			Subsystem: "scanner",
			Name:      "duration_seconds",
			Help:      "Time spent scanning session files.",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1},
		}, []string{"op"}),
		liveTasks: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "mission_control",
			Subsystem: "scanner",
			Name:      "live_tasks",
			Help:      "Live tasks found by the last scan, by lane.",
		}, []string{"lane"}),
		fetchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mission_control",
			Subsystem: "poller",
			Name:      "fetch_failures_total",
			Help:      "Failed dashboard fetches by section.",
		}, []string{"section"}),
	}
	reg.MustRegister(
		m.requests, m.requestDuration, m.scanDuration, m.liveTasks, m.fetchFailures,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveScan records one scanner pass.
func (m *Metrics) ObserveScan(op string, d time.Duration) {
	if m == nil {
		return
	}
	m.scanDuration.WithLabelValues(op).Observe(d.Seconds())
}

// SetLiveTasks replaces the per-lane live task gauge.
func (m *Metrics) SetLiveTasks(byLane map[string]int) {
	if m == nil {
		return
	}
	m.liveTasks.Reset()
	for lane, n := range byLane {
		m.liveTasks.WithLabelValues(lane).Set(float64(n))
	}
}

// IncFetchFailure counts a failed poller fetch.
func (m *Metrics) IncFetchFailure(section string) {
	if m == nil {
		return
	}
	m.fetchFailures.WithLabelValues(section).Inc()
}

// Instrument wraps next, labelling requests with the ServeMux pattern that
// matched them.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		m.requests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
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

// Unwrap lets http.ResponseController reach the underlying writer.
func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }
