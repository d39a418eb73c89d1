package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderMetrics_NilSafe(t *testing.T) {
	var m *OrderMetrics
	assert.NotPanics(t, func() {
		m.ObservePlacement(OutcomePlaced, time.Now())
		m.ObserveCompensation(false)
		m.AddOrderValue(12.5)
	})
}

func TestOrderMetrics_Counts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOrderMetrics(reg)

	m.ObservePlacement(OutcomePlaced, time.Now())
	m.ObservePlacement(OutcomePlaced, time.Now())
	m.ObservePlacement(OutcomeConflict, time.Now())
	m.ObserveCompensation(true)
	m.AddOrderValue(10)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Placements.WithLabelValues(OutcomePlaced)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Placements.WithLabelValues(OutcomeConflict)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Compensations.WithLabelValues("ok")))
	assert.Equal(t, 10.0, testutil.ToFloat64(m.OrderValue))
}

func TestServerMetrics_Middleware(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewServerMetrics(reg)

	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/v1/products/:id", func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/products/abc", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues("/v1/products/:id", http.MethodGet, "204")))
}
