package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes application metrics that are safe to scrape via Prometheus.
type Metrics struct {
	registry            *prometheus.Registry
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	pollCyclesTotal     prometheus.Counter
	pollCycleDuration   prometheus.Histogram
	ecpRequests         *prometheus.CounterVec
	candidatesTotal     *prometheus.CounterVec
	devices             prometheus.Gauge
}

// New creates a fresh Metrics registry with HTTP, poll, and ECP metrics registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rokubridge",
		Name:      "http_requests_total",
		Help:      "Count of HTTP requests processed by the bridge",
	}, []string{"method", "path", "status"})

	httpRequestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "rokubridge",
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests served by the bridge",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	pollCyclesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "rokubridge",
		Name:      "poll_cycles_total",
		Help:      "Total number of poll cycles executed",
	})

	pollCycleDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "rokubridge",
		Name:      "poll_cycle_duration_seconds",
		Help:      "Duration of one full poll cycle across all devices",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	})

	ecpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rokubridge",
		Name:      "ecp_requests_total",
		Help:      "Count of ECP requests to devices by outcome",
	}, []string{"outcome"})

	candidatesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rokubridge",
		Name:      "discovery_candidates_total",
		Help:      "Count of discovery candidates handled by result",
	}, []string{"result"})

	devices := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "rokubridge",
		Name:      "devices",
		Help:      "Number of known device records",
	})

	registry.MustRegister(
		httpRequests,
		httpRequestDuration,
		pollCyclesTotal,
		pollCycleDuration,
		ecpRequests,
		candidatesTotal,
		devices,
	)

	return &Metrics{
		registry:            registry,
		httpRequests:        httpRequests,
		httpRequestDuration: httpRequestDuration,
		pollCyclesTotal:     pollCyclesTotal,
		pollCycleDuration:   pollCycleDuration,
		ecpRequests:         ecpRequests,
		candidatesTotal:     candidatesTotal,
		devices:             devices,
	}
}

// ObserveHTTPRequest records a single HTTP request/response cycle.
func (m *Metrics) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{
		"method": method,
		"path":   path,
		"status": strconv.Itoa(status),
	}
	m.httpRequests.With(labels).Inc()
	m.httpRequestDuration.With(labels).Observe(duration.Seconds())
}

// ObservePollCycle records one completed poll cycle.
func (m *Metrics) ObservePollCycle(duration time.Duration) {
	if m == nil {
		return
	}
	m.pollCyclesTotal.Inc()
	m.pollCycleDuration.Observe(duration.Seconds())
}

// IncECPRequest counts one ECP round-trip. Outcome is "ok", "unreachable",
// "restricted", or "error".
func (m *Metrics) IncECPRequest(outcome string) {
	if m == nil {
		return
	}
	m.ecpRequests.WithLabelValues(outcome).Inc()
}

// IncCandidate counts a handled discovery candidate. Result is "claimed",
// "known", "unreachable", or "error".
func (m *Metrics) IncCandidate(result string) {
	if m == nil {
		return
	}
	m.candidatesTotal.WithLabelValues(result).Inc()
}

// SetDeviceCount publishes the current device-record count.
func (m *Metrics) SetDeviceCount(n int) {
	if m == nil {
		return
	}
	m.devices.Set(float64(n))
}

// Handler exposes the Prometheus registry over HTTP.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("metrics unavailable"))
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
