package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/clinic-appointments/internal/handler"
	"github.com/iliyamo/clinic-appointments/internal/middleware"
)

func registerDoctors(v1 *echo.Group, d *handler.DoctorHandler, a *handler.AppointmentHandler, authn echo.MiddlewareFunc, mw Middleware) {
	// Public directory reads are cached.  Available slots change with
	// every booking and are not.
	pub := v1.Group("/doctors")
	cached := use(mw.Cache)
	pub.GET("", d.List, cached...)
	pub.GET("/search", d.Search, cached...)
	pub.GET("/specializations", d.Specializations, cached...)
	pub.GET("/available", d.Available, cached...)
	pub.GET("/:id", d.Get, cached...)
	pub.GET("/:id/schedule", d.Schedule, cached...)
	pub.GET("/:id/available-slots", a.AvailableSlots)

	owner := v1.Group("/doctors", authn, middleware.RequireRole(staff...))
	writes := use(mw.Invalidate)
	owner.PATCH("/:id/availability", d.SetAvailability, writes...)
	owner.PUT("/:id", d.UpdateProfile, writes...)
	owner.POST("/:id/schedules", d.CreateSchedule, writes...)
	owner.PUT("/:id/schedules/:scheduleId", d.UpdateSchedule, writes...)
	owner.GET("/:id/leaves", d.ListLeaves)
	owner.POST("/:id/leaves", d.CreateLeave, writes...)
	owner.DELETE("/:id/leaves/:leaveId", d.DeleteLeave, writes...)
	owner.GET("/:id/appointments", a.DoctorAppointments)
}
