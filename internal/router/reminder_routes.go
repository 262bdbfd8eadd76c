package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/clinic-appointments/internal/handler"
	"github.com/iliyamo/clinic-appointments/internal/middleware"
	"github.com/iliyamo/clinic-appointments/internal/model"
)

func registerReminders(v1 *echo.Group, r *handler.ReminderHandler, authn echo.MiddlewareFunc) {
	g := v1.Group("/reminders", authn, middleware.RequireRole(model.RolePatient))
	g.GET("", r.List)
	g.GET("/active", r.Active)
	g.GET("/today", r.Active)
	g.GET("/:id", r.Get)
	g.POST("", r.Create)
	g.PUT("/:id", r.Update)
	g.PATCH("/:id/toggle", r.Toggle)
	g.DELETE("/:id", r.Delete)
	g.POST("/:id/log", r.LogIntake)
}
