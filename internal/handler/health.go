package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PingFunc adapts a function, such as a Redis ping, to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) PingContext(ctx context.Context) error { return f(ctx) }

// Health serves liveness and readiness.  Cache is optional.
type Health struct {
	DB    Pinger
	Cache Pinger
}

// Healthz reports that the process is up.
func (h *Health) Healthz(c echo.Context) error {
	return respond(c, http.StatusOK, "ok", nil)
}

// Readyz pings the database and, when configured, Redis.
func (h *Health) Readyz(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	checks := map[string]string{}
	ready := true
	for name, p := range map[string]Pinger{"database": h.DB, "redis": h.Cache} {
		if p == nil {
			continue
		}
		if err := p.PingContext(ctx); err != nil {
			checks[name] = "down"
			ready = false
			continue
		}
		checks[name] = "up"
	}
	if !ready {
		return c.JSON(http.StatusServiceUnavailable, Envelope{Success: false, Message: "not ready", Data: checks})
	}
	return respond(c, http.StatusOK, "ready", checks)
}
