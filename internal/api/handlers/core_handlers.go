package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pinger is a dependency whose reachability decides readiness
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// CoreHandlers contains health and metrics handlers
type CoreHandlers struct {
	checks  map[string]Pinger
	gather  prometheus.Gatherer
	version string
	clock   clock.Clock
	started time.Time
}

// NewCoreHandlers creates the health handlers. checks are keyed by service name
// (database, redis).
func NewCoreHandlers(checks map[string]Pinger, gather prometheus.Gatherer, version string, clk clock.Clock) *CoreHandlers {
	if clk == nil {
		clk = clock.NewDefaultClock()
	}
	if gather == nil {
		gather = prometheus.DefaultGatherer
	}
	return &CoreHandlers{
		checks:  checks,
		gather:  gather,
		version: version,
		clock:   clk,
		started: clk.Now(),
	}
}

// HealthCheck represents a health check result
type HealthCheck struct {
	Service   string        `json:"service"`
	Status    string        `json:"status"`
	Latency   time.Duration `json:"latency"`
	Error     string        `json:"error,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// HealthResponse represents the overall health response
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version"`
	Uptime    time.Duration          `json:"uptime"`
	Checks    map[string]HealthCheck `json:"checks"`
}

func (h *CoreHandlers) runChecks(ctx context.Context) (map[string]HealthCheck, bool) {
	results := make(map[string]HealthCheck, len(h.checks))
	healthy := true
	for name, pinger := range h.checks {
		start := h.clock.Now()
		check := HealthCheck{Service: name, Status: "healthy", Timestamp: start}
		if err := pinger.Ping(ctx); err != nil {
			check.Status = "unhealthy"
			check.Error = err.Error()
			healthy = false
		}
		check.Latency = h.clock.Now().Sub(start)
		results[name] = check
	}
	return results, healthy
}

// Health reports every dependency check
func (h *CoreHandlers) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	checks, healthy := h.runChecks(ctx)
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: h.clock.Now(),
		Version:   h.version,
		Uptime:    h.clock.Now().Sub(h.started),
		Checks:    checks,
	}
	statusCode := http.StatusOK
	if !healthy {
		response.Status = "unhealthy"
		statusCode = http.StatusServiceUnavailable
	}
	c.JSON(statusCode, response)
}

// Ready checks if the application is ready to serve traffic
func (h *CoreHandlers) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	checks, ready := h.runChecks(ctx)
	status, statusCode := "ready", http.StatusOK
	if !ready {
		status, statusCode = "not_ready", http.StatusServiceUnavailable
	}
	c.JSON(statusCode, gin.H{
		"status":    status,
		"timestamp": h.clock.Now(),
		"checks":    checks,
	})
}

// Live checks if the application is alive
func (h *CoreHandlers) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"timestamp": h.clock.Now(),
		"uptime":    h.clock.Now().Sub(h.started),
	})
}

// Metrics exposes Prometheus metrics
func (h *CoreHandlers) Metrics() gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(h.gather, promhttp.HandlerOpts{}))
}
