package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/clinic-appointments/internal/handler"
	"github.com/iliyamo/clinic-appointments/internal/middleware"
	"github.com/iliyamo/clinic-appointments/internal/model"
)

func registerAppointments(v1 *echo.Group, a *handler.AppointmentHandler, authn echo.MiddlewareFunc) {
	g := v1.Group("/appointments", authn)
	g.POST("", a.Book, middleware.RequireRole(model.RolePatient))
	g.GET("/my-appointments", a.My)
	g.GET("/upcoming", a.Upcoming)
	g.GET("/history", a.History)
	g.GET("/:id", a.Get)
	g.PATCH("/:id/status", a.UpdateStatus, middleware.RequireRole(staff...))
	g.POST("/:id/cancel", a.Cancel)
	g.POST("/:id/prescription", a.Prescription, middleware.RequireRole(staff...))
}
