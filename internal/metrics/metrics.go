package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/congo-pay/miniwallet/internal/apperr"
	"github.com/congo-pay/miniwallet/internal/jsend"
)

const namespace = "miniwallet"

// Metrics holds the service's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	walletOperations *prometheus.CounterVec
	walletDuration   *prometheus.HistogramVec
	httpRequests     *prometheus.CounterVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		gatherer: reg,
		walletOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "wallet",
				Name:      "operations_total",
				Help:      "Wallet operations partitioned by operation and outcome.",
			},
			[]string{"operation", "outcome"},
		),
		walletDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "wallet",
				Name:      "operation_duration_seconds",
				Help:      "Wallet operation latency including lock wait.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "HTTP requests partitioned by method, route and status.",
			},
			[]string{"method", "route", "status"},
		),
	}
}

// ObserveOperation records one wallet operation. outcome is "ok" or the
// failure kind.
func (m *Metrics) ObserveOperation(operation, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.walletOperations.WithLabelValues(operation, outcome).Inc()
	m.walletDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// Operations exposes the operation counter for assertions.
func (m *Metrics) Operations() *prometheus.CounterVec {
	return m.walletOperations
}

// Middleware counts HTTP requests by matched route.
func (m *Metrics) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()
		if m == nil {
			return err
		}
		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = jsend.StatusFor(apperr.KindOf(err))
			}
		}
		route := "unmatched"
		if r := c.Route(); r != nil && r.Path != "" {
			route = utils.CopyString(r.Path)
		}
		m.httpRequests.WithLabelValues(utils.CopyString(c.Method()), route, strconv.Itoa(status)).Inc()
		return err
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{}))
}
