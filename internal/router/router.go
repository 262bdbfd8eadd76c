// Package router registers the HTTP routes.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/clinic-appointments/internal/handler"
	"github.com/iliyamo/clinic-appointments/internal/middleware"
	"github.com/iliyamo/clinic-appointments/internal/model"
)

// Handlers groups the endpoint handlers.
type Handlers struct {
	Health       *handler.Health
	Auth         *handler.AuthHandler
	Doctors      *handler.DoctorHandler
	Appointments *handler.AppointmentHandler
	Reminders    *handler.ReminderHandler
}

// Middleware carries the route level middleware.  Nil entries are
// skipped.
type Middleware struct {
	JWTSecret string
	// RateLimit runs on every /v1 route.
	RateLimit echo.MiddlewareFunc
	// Cache serves the public directory reads.
	Cache echo.MiddlewareFunc
	// Invalidate purges the cache after directory writes.
	Invalidate echo.MiddlewareFunc
}

func use(mws ...echo.MiddlewareFunc) []echo.MiddlewareFunc {
	out := make([]echo.MiddlewareFunc, 0, len(mws))
	for _, m := range mws {
		if m != nil {
			out = append(out, m)
		}
	}
	return out
}

// Register wires every route onto e.
func Register(e *echo.Echo, h Handlers, mw Middleware) {
	e.GET("/healthz", h.Health.Healthz)
	e.GET("/readyz", h.Health.Readyz)

	v1 := e.Group("/v1", use(mw.RateLimit)...)
	authn := middleware.JWTAuth(mw.JWTSecret)

	registerAuth(v1, h.Auth, authn)
	registerDoctors(v1, h.Doctors, h.Appointments, authn, mw)
	registerAppointments(v1, h.Appointments, authn)
	registerReminders(v1, h.Reminders, authn)
}

func registerAuth(v1 *echo.Group, a *handler.AuthHandler, authn echo.MiddlewareFunc) {
	g := v1.Group("/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)
	g.POST("/logout", a.Logout)

	v1.GET("/me", a.Me, authn)
}

// staff is the set of roles allowed to manage a doctor profile.  The
// services further restrict a Doctor to their own profile.
var staff = []model.Role{model.RoleDoctor, model.RoleAdmin}
