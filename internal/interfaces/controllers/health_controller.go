package controllers

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

const healthCheckTimeout = 2 * time.Second

// Pinger reports whether a backing store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to the Pinger interface
type PingFunc func(ctx context.Context) error

// Ping calls f(ctx)
func (f PingFunc) Ping(ctx context.Context) error {
	return f(ctx)
}

// HealthController handles health check endpoints
type HealthController struct {
	backend string
	pinger  Pinger
}

// NewHealthController creates a new HealthController instance. pinger may be
// nil for backends that cannot become unavailable.
func NewHealthController(backend string, pinger Pinger) *HealthController {
	return &HealthController{
		backend: backend,
		pinger:  pinger,
	}
}

// GetName returns the name of this controller for logging
func (c *HealthController) GetName() string {
	return "HealthController"
}

// HealthCheck handles GET /health requests to check server health
func (c *HealthController) HealthCheck(ctx echo.Context) error {
	if c.pinger != nil {
		pingCtx, cancel := context.WithTimeout(ctx.Request().Context(), healthCheckTimeout)
		defer cancel()
		if err := c.pinger.Ping(pingCtx); err != nil {
			log.Printf("[HEALTH] %s registry unreachable: %v", c.backend, err)
			return ctx.JSON(http.StatusServiceUnavailable, map[string]string{
				"status":   "unavailable",
				"registry": c.backend,
			})
		}
	}
	return ctx.JSON(http.StatusOK, map[string]string{
		"status":   "ok",
		"registry": c.backend,
	})
}
