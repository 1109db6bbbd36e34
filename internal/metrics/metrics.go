// Package metrics exposes Prometheus metrics for resolution, builds and
// the HTTP server.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/leapstack-labs/barrel/pkg/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Resolve results used as label values.
const (
	ResultOK             = "ok"
	ResultModuleNotFound = "module_not_found"
	ResultCollision      = "collision"
	ResultExportNotFound = "export_not_found"
	ResultInvalid        = "invalid_manifest"
	ResultCycle          = "cycle"
	ResultCanceled       = "canceled"
	ResultError          = "error"
)

// Metrics owns a registry and every collector barrel reports.
type Metrics struct {
	reg     *prometheus.Registry
	handler http.Handler

	resolveTotal    *prometheus.CounterVec
	resolveDuration prometheus.Histogram
	surfaceSize     *prometheus.GaugeVec
	buildTotal      *prometheus.CounterVec
	watchBatches    prometheus.Counter
	watchFiles      prometheus.Counter

	inflight prometheus.Gauge
	reqTotal *prometheus.CounterVec
	reqDur   *prometheus.HistogramVec
}

// New returns a fresh registry with the Go and process collectors and
// barrel's own metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		resolveTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "barrel_resolve_total",
			Help: "Manifest resolutions by result",
		}, []string{"result"}),
		resolveDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "barrel_resolve_duration_seconds",
			Help:    "Time to resolve a manifest into its export surface",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		surfaceSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "barrel_surface_symbols",
			Help: "Number of exported symbols in the last successful resolution",
		}, []string{"manifest"}),
		buildTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "barrel_build_total",
			Help: "Bundle builds by status",
		}, []string{"status"}),
		watchBatches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "barrel_watch_batches_total",
			Help: "Debounced batches of file changes",
		}),
		watchFiles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "barrel_watch_files_total",
			Help: "Changed files reported by the watcher",
		}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Current number of in-flight HTTP requests",
		}),
		reqTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by method, route, and status",
		}, []string{"method", "route", "status"}),
		reqDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Request latency by method and route",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"method", "route"}),
	}
	reg.MustRegister(
		m.resolveTotal,
		m.resolveDuration,
		m.surfaceSize,
		m.buildTotal,
		m.watchBatches,
		m.watchFiles,
		m.inflight,
		m.reqTotal,
		m.reqDur,
	)

	m.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
	m.reg = reg
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return m.handler
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// ObserveResolve records one resolution. It satisfies resolve.Observer.
func (m *Metrics) ObserveResolve(manifest string, surface *core.Surface, err error, elapsed time.Duration) {
	m.resolveTotal.WithLabelValues(ResultOf(err)).Inc()
	m.resolveDuration.Observe(elapsed.Seconds())
	if err == nil && surface != nil {
		m.surfaceSize.WithLabelValues(manifest).Set(float64(surface.Len()))
	}
}

// ObserveBuild records one bundle build.
func (m *Metrics) ObserveBuild(status core.BuildStatus) {
	m.buildTotal.WithLabelValues(string(status)).Inc()
}

// ObserveWatchBatch records one debounced batch of changed files.
func (m *Metrics) ObserveWatchBatch(files int) {
	m.watchBatches.Inc()
	m.watchFiles.Add(float64(files))
}

// ResultOf maps a resolve error to its result label.
func ResultOf(err error) string {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, core.ErrModuleNotFound):
		return ResultModuleNotFound
	case errors.Is(err, core.ErrExportCollision):
		return ResultCollision
	case errors.Is(err, core.ErrExportNotFound):
		return ResultExportNotFound
	case errors.Is(err, core.ErrInvalidManifest):
		return ResultInvalid
	case errors.Is(err, core.ErrReexportCycle):
		return ResultCycle
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ResultCanceled
	default:
		return ResultError
	}
}
