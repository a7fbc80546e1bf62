package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordSaleCreated(decimal.NewFromInt(10))
		m.RecordSaleCancelled()
		m.RecordInsufficientStock("precheck")
		m.RecordSessionOpened()
		m.RecordSessionClosed(decimal.NewFromInt(-5))
		m.RecordInventoryMovement("ajuste")
		m.RecordReceiptJob("receipt", true)
		m.SetCircuitBreakerState("smtp", 2)
	})
}

func TestBusinessCounters(t *testing.T) {
	m := New(DefaultConfig())

	m.RecordSaleCreated(decimal.NewFromInt(30))
	m.RecordSaleCreated(decimal.NewFromInt(12))
	m.RecordInsufficientStock("commit")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.SalesCreated))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.InsufficientStock.WithLabelValues("commit")))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.InsufficientStock.WithLabelValues("precheck")))
}

func TestGinMiddlewareUsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New(DefaultConfig())

	r := gin.New()
	r.Use(m.GinMiddleware())
	r.GET("/v1/ventas/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/metrics", gin.WrapH(m.Handler()))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/ventas/abc", nil))
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/v1/ventas/:id", "200")))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "retailpos_http_requests_total"))
}
