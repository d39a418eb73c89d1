package handlers

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/labstack/echo/v4"
)

// Version is reported by the health endpoints.
const Version = "1.0.0"

const healthCheckTimeout = 2 * time.Second

// Pinger is anything the health endpoints can probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// HealthHandlers handles health check and monitoring endpoints
type HealthHandlers struct {
	db      Pinger
	redis   Pinger
	storage Pinger
	started time.Time
}

// NewHealthHandlers takes the database, cache and object storage probes.
// A nil probe is reported as "disabled".
func NewHealthHandlers(db, redis, storage Pinger) *HealthHandlers {
	return &HealthHandlers{db: db, redis: redis, storage: storage, started: time.Now()}
}

// HealthStatus represents the overall health status
type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Services  map[string]string `json:"services"`
	Uptime    string            `json:"uptime"`
	Version   string            `json:"version"`
}

type checkResult struct {
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

func check(ctx context.Context, p Pinger) checkResult {
	if p == nil {
		return checkResult{Status: "disabled"}
	}
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	start := time.Now()
	err := p.Ping(ctx)
	res := checkResult{Status: "healthy", LatencyMS: time.Since(start).Milliseconds()}
	if err != nil {
		res.Status = "unhealthy"
		res.Message = err.Error()
	}
	return res
}

func (h *HealthHandlers) checks(ctx context.Context) map[string]checkResult {
	return map[string]checkResult{
		"database": check(ctx, h.db),
		"redis":    check(ctx, h.redis),
		"storage":  check(ctx, h.storage),
	}
}

// HealthCheck reports each dependency; any failing probe degrades the
// response to 206.
func (h *HealthHandlers) HealthCheck(c echo.Context) error {
	health := &HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Services:  make(map[string]string),
		Version:   Version,
		Uptime:    time.Since(h.started).Round(time.Second).String(),
	}
	for name, res := range h.checks(c.Request().Context()) {
		health.Services[name] = res.Status
		if res.Status == "unhealthy" {
			health.Status = "degraded"
		}
	}

	statusCode := http.StatusOK
	if health.Status == "degraded" {
		statusCode = http.StatusPartialContent
	}
	return c.JSON(statusCode, health)
}

// ReadinessCheck reports ready only when the database and Redis answer;
// order placement needs both.
func (h *HealthHandlers) ReadinessCheck(c echo.Context) error {
	ctx := c.Request().Context()
	for name, p := range map[string]Pinger{"database": h.db, "redis": h.redis} {
		if res := check(ctx, p); res.Status == "unhealthy" {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status":  "not_ready",
				"message": fmt.Sprintf("%s unavailable", name),
			})
		}
	}
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ready",
		"message": "All systems operational",
	})
}

// LivenessCheck determines if the application is running (basic liveness probe)
func (h *HealthHandlers) LivenessCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":    "alive",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// DetailedHealthCheck provides detailed health information
func (h *HealthHandlers) DetailedHealthCheck(c echo.Context) error {
	checks := h.checks(c.Request().Context())
	overall := "healthy"
	for _, res := range checks {
		if res.Status == "unhealthy" {
			overall = "degraded"
		}
	}

	statusCode := http.StatusOK
	if overall == "degraded" {
		statusCode = http.StatusPartialContent
	}
	return c.JSON(statusCode, map[string]interface{}{
		"overall_status": overall,
		"checks":         checks,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"version":        Version,
		"goroutines":     runtime.NumGoroutine(),
		"uptime":         time.Since(h.started).Round(time.Second).String(),
	})
}
