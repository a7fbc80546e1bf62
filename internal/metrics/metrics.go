package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

// Metrics holds every collector exposed on /metrics. All Record* methods are
// safe on a nil receiver, so services can run without a registry in tests.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Sales
	SalesCreated      prometheus.Counter
	SalesCancelled    prometheus.Counter
	SaleAmount        prometheus.Histogram
	InsufficientStock *prometheus.CounterVec

	// Cash sessions
	SessionsOpened         prometheus.Counter
	SessionsClosed         prometheus.Counter
	SessionCloseDifference prometheus.Histogram

	// Inventory
	InventoryMovements *prometheus.CounterVec

	// Receipts and delivery
	ReceiptJobs         *prometheus.CounterVec
	CircuitBreakerState *prometheus.GaugeVec
}

// Config holds metrics configuration
type Config struct {
	Namespace string
}

func DefaultConfig() *Config {
	return &Config{Namespace: "retailpos"}
}

// New creates a Metrics instance on its own registry.
func New(cfg *Config) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	ns := cfg.Namespace
	m := &Metrics{registry: registry}

	m.HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	m.HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)
	m.HTTPRequestsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: ns,
		Name:      "http_requests_in_flight",
		Help:      "Number of HTTP requests currently being processed",
	})

	m.SalesCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "sales_created_total",
		Help:      "Sales committed",
	})
	m.SalesCancelled = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "sales_cancelled_total",
		Help:      "Sales moved to cancelada",
	})
	m.SaleAmount = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: ns,
		Name:      "sale_amount",
		Help:      "Total amount per committed sale",
		Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
	})
	m.InsufficientStock = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "insufficient_stock_rejections_total",
			Help:      "Sale attempts rejected for insufficient stock",
		},
		[]string{"stage"},
	)

	m.SessionsOpened = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "cash_sessions_opened_total",
		Help:      "Cash register sessions opened",
	})
	m.SessionsClosed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "cash_sessions_closed_total",
		Help:      "Cash register sessions closed",
	})
	m.SessionCloseDifference = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: ns,
		Name:      "cash_session_close_difference",
		Help:      "Actual minus expected amount at session close",
		Buckets:   []float64{-100, -50, -10, -1, 0, 1, 10, 50, 100},
	})

	m.InventoryMovements = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "inventory_movements_total",
			Help:      "Inventory movements written, by kind",
		},
		[]string{"kind"},
	)

	m.ReceiptJobs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "receipt_jobs_total",
			Help:      "Receipt and email jobs processed",
		},
		[]string{"job", "status"},
	)
	m.CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	registry.MustRegister(
		m.HTTPRequestsTotal, m.HTTPRequestDuration, m.HTTPRequestsInFlight,
		m.SalesCreated, m.SalesCancelled, m.SaleAmount, m.InsufficientStock,
		m.SessionsOpened, m.SessionsClosed, m.SessionCloseDifference,
		m.InventoryMovements, m.ReceiptJobs, m.CircuitBreakerState,
	)
	return m
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// GinMiddleware records request count, latency and in-flight requests. The
// path label is the route template, never the raw URL.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		m.HTTPRequestsInFlight.Inc()
		c.Next()
		m.HTTPRequestsInFlight.Dec()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.RecordHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}

func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func (m *Metrics) RecordSaleCreated(total decimal.Decimal) {
	if m == nil {
		return
	}
	m.SalesCreated.Inc()
	m.SaleAmount.Observe(total.InexactFloat64())
}

func (m *Metrics) RecordSaleCancelled() {
	if m == nil {
		return
	}
	m.SalesCancelled.Inc()
}

// RecordInsufficientStock: stage is "precheck" or "commit".
func (m *Metrics) RecordInsufficientStock(stage string) {
	if m == nil {
		return
	}
	m.InsufficientStock.WithLabelValues(stage).Inc()
}

func (m *Metrics) RecordSessionOpened() {
	if m == nil {
		return
	}
	m.SessionsOpened.Inc()
}

func (m *Metrics) RecordSessionClosed(difference decimal.Decimal) {
	if m == nil {
		return
	}
	m.SessionsClosed.Inc()
	m.SessionCloseDifference.Observe(difference.InexactFloat64())
}

func (m *Metrics) RecordInventoryMovement(kind string) {
	if m == nil {
		return
	}
	m.InventoryMovements.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordReceiptJob(job string, success bool) {
	if m == nil {
		return
	}
	status := "success"
	if !success {
		status = "failure"
	}
	m.ReceiptJobs.WithLabelValues(job, status).Inc()
}

func (m *Metrics) SetCircuitBreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}
