package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "hawkinsfarm"

type ServerMetrics struct {
	Requests  *prometheus.CounterVec
	LatencyMS *prometheus.HistogramVec
}

func NewServerMetrics(reg prometheus.Registerer) *ServerMetrics {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"route", "method", "status"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_ms",
		Help:      "HTTP request latency in milliseconds.",
		Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"route", "method"})

	reg.MustRegister(requests, latency)
	return &ServerMetrics{Requests: requests, LatencyMS: latency}
}

// Middleware records one observation per request, labelled by route pattern.
func (m *ServerMetrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method
			m.Requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
			m.LatencyMS.WithLabelValues(route, method).Observe(float64(time.Since(start).Milliseconds()))
			return err
		}
	}
}

// Order placement outcomes.
const (
	OutcomePlaced            = "placed"
	OutcomeValidation        = "validation"
	OutcomeForbidden         = "forbidden"
	OutcomeNotFound          = "not_found"
	OutcomeInsufficientStock = "insufficient_stock"
	OutcomeConflict          = "conflict"
	OutcomeStorage           = "storage"
)

// OrderMetrics is safe to use on a nil receiver, which records nothing.
type OrderMetrics struct {
	Placements     *prometheus.CounterVec
	Compensations  *prometheus.CounterVec
	PlaceLatencyMS prometheus.Histogram
	OrderValue     prometheus.Counter
}

func NewOrderMetrics(reg prometheus.Registerer) *OrderMetrics {
	m := &OrderMetrics{
		Placements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "placements_total",
			Help:      "Order placement attempts by outcome.",
		}, []string{"outcome"}),
		Compensations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "stock_compensations_total",
			Help:      "Compensating stock increments by result.",
		}, []string{"result"}),
		PlaceLatencyMS: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "placement_duration_ms",
			Help:      "Order placement latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}),
		OrderValue: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "placed_value_total",
			Help:      "Sum of total_amount over placed orders.",
		}),
	}
	reg.MustRegister(m.Placements, m.Compensations, m.PlaceLatencyMS, m.OrderValue)
	return m
}

func (m *OrderMetrics) ObservePlacement(outcome string, started time.Time) {
	if m == nil {
		return
	}
	m.Placements.WithLabelValues(outcome).Inc()
	m.PlaceLatencyMS.Observe(float64(time.Since(started).Milliseconds()))
}

func (m *OrderMetrics) AddOrderValue(v float64) {
	if m == nil {
		return
	}
	m.OrderValue.Add(v)
}

func (m *OrderMetrics) ObserveCompensation(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.Compensations.WithLabelValues(result).Inc()
}

func Handler() http.Handler {
	return promhttp.Handler()
}
