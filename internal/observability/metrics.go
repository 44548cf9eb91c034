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

// Metrics stores Prometheus collectors used by API and worker flows.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal        *prometheus.CounterVec
	httpRequestDuration      *prometheus.HistogramVec
	deliveriesSentTotal   *prometheus.CounterVec
	deliveriesFailedTotal *prometheus.CounterVec
	deliverySendDuration *prometheus.HistogramVec
	workerInflight           *prometheus.GaugeVec
	retryScheduledTotal      *prometheus.CounterVec
	abandonedTotal           *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "webhook_relay",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "webhook_relay",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		deliveriesSentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "webhook_relay",
				Name:      "deliveries_sent_total",
				Help:      "Total number of webhook deliveries that completed successfully.",
			},
			[]string{"provider"},
		),
		deliveriesFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "webhook_relay",
				Name:      "deliveries_failed_total",
				Help:      "Total number of webhook deliveries that ended in failed state.",
			},
			[]string{"provider", "reason"},
		),
		deliverySendDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "webhook_relay",
				Name:      "delivery_send_duration_seconds",
				Help:      "Endpoint send duration in seconds grouped by provider.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"provider"},
		),
		workerInflight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "webhook_relay",
				Name:      "worker_inflight",
				Help:      "Current number of in-flight delivery attempts grouped by provider.",
			},
			[]string{"provider"},
		),
		retryScheduledTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "webhook_relay",
				Name:      "retry_scheduled_total",
				Help:      "Total number of deliveries scheduled for retry.",
			},
			[]string{"provider"},
		),
		abandonedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "webhook_relay",
				Name:      "deliveries_abandoned_total",
				Help:      "Total number of stale failed deliveries moved to abandoned.",
			},
			[]string{"provider"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.deliveriesSentTotal,
		m.deliveriesFailedTotal,
		m.deliverySendDuration,
		m.workerInflight,
		m.retryScheduledTotal,
		m.abandonedTotal,
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

func (m *Metrics) IncDeliverySent(provider string) {
	if m == nil {
		return
	}
	m.deliveriesSentTotal.WithLabelValues(normalizeProvider(provider)).Inc()
}

func (m *Metrics) IncDeliveryFailed(provider string, reason string) {
	if m == nil {
		return
	}
	reasonLabel := strings.TrimSpace(strings.ToLower(reason))
	if reasonLabel == "" {
		reasonLabel = "unknown"
	}
	m.deliveriesFailedTotal.WithLabelValues(normalizeProvider(provider), reasonLabel).Inc()
}

func (m *Metrics) ObserveDeliverySendDuration(provider string, duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.deliverySendDuration.WithLabelValues(normalizeProvider(provider)).Observe(seconds)
}

func (m *Metrics) IncWorkerInFlight(provider string) {
	if m == nil {
		return
	}
	m.workerInflight.WithLabelValues(normalizeProvider(provider)).Inc()
}

func (m *Metrics) DecWorkerInFlight(provider string) {
	if m == nil {
		return
	}
	m.workerInflight.WithLabelValues(normalizeProvider(provider)).Dec()
}

func (m *Metrics) IncRetryScheduled(provider string) {
	if m == nil {
		return
	}
	m.retryScheduledTotal.WithLabelValues(normalizeProvider(provider)).Inc()
}

func (m *Metrics) IncAbandoned(provider string) {
	if m == nil {
		return
	}
	m.abandonedTotal.WithLabelValues(normalizeProvider(provider)).Inc()
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

func normalizeProvider(provider string) string {
	normalized := strings.ToLower(strings.TrimSpace(provider))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
