package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics stores Prometheus collectors used by the API, the orchestrator,
// and the job workers.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	stepItemsTotal      *prometheus.CounterVec
	stepItemDuration    *prometheus.HistogramVec
	batchesTotal        *prometheus.CounterVec
	jobItemsTotal       *prometheus.CounterVec
	jobWorkerInflight   *prometheus.GaugeVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "provision_engine",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "provision_engine",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		stepItemsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "provision_engine",
				Name:      "step_items_total",
				Help:      "Total number of step items processed by step name and outcome.",
			},
			[]string{"step", "outcome"},
		),
		stepItemDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "provision_engine",
				Name:      "step_item_duration_seconds",
				Help:      "External collaborator call duration per step item.",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
			},
			[]string{"step"},
		),
		batchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "provision_engine",
				Name:      "batches_total",
				Help:      "Total number of batches reaching a status by status.",
			},
			[]string{"status"},
		),
		jobItemsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "provision_engine",
				Name:      "job_items_total",
				Help:      "Total number of background job items by kind and outcome.",
			},
			[]string{"kind", "outcome"},
		),
		jobWorkerInflight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "provision_engine",
				Name:      "job_worker_inflight",
				Help:      "Current number of in-flight job worker operations by kind.",
			},
			[]string{"kind"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.stepItemsTotal,
		m.stepItemDuration,
		m.batchesTotal,
		m.jobItemsTotal,
		m.jobWorkerInflight,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) IncStepItem(step string, outcome string) {
	if m == nil {
		return
	}
	m.stepItemsTotal.WithLabelValues(normalizeLabel(step), normalizeLabel(outcome)).Inc()
}

func (m *Metrics) ObserveStepItemDuration(step string, duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.stepItemDuration.WithLabelValues(normalizeLabel(step)).Observe(seconds)
}

func (m *Metrics) IncBatchStatus(status string) {
	if m == nil {
		return
	}
	m.batchesTotal.WithLabelValues(normalizeLabel(status)).Inc()
}

func (m *Metrics) IncJobItem(kind string, outcome string) {
	if m == nil {
		return
	}
	m.jobItemsTotal.WithLabelValues(normalizeLabel(kind), normalizeLabel(outcome)).Inc()
}

func (m *Metrics) IncJobWorkerInFlight(kind string) {
	if m == nil {
		return
	}
	m.jobWorkerInflight.WithLabelValues(normalizeLabel(kind)).Inc()
}

func (m *Metrics) DecJobWorkerInFlight(kind string) {
	if m == nil {
		return
	}
	m.jobWorkerInflight.WithLabelValues(normalizeLabel(kind)).Dec()
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}

func normalizeLabel(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
