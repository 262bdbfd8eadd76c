package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/clinic-appointments/internal/middleware"
	"github.com/iliyamo/clinic-appointments/internal/model"
	"github.com/iliyamo/clinic-appointments/internal/service"
)

// ReminderHandler serves the caller's medicine reminders.
type ReminderHandler struct {
	Reminders *service.Reminders
}

type reminderReq struct {
	MedicineName    string      `json:"medicine_name" validate:"required,max=200"`
	Dosage          string      `json:"dosage" validate:"required,max=100"`
	Frequency       string      `json:"frequency" validate:"required,max=50"`
	CustomFrequency string      `json:"custom_frequency" validate:"max=100"`
	Times           []string    `json:"times" validate:"required,min=1"`
	StartDate       *model.Date `json:"start_date"`
	EndDate         *model.Date `json:"end_date"`
	Notes           string      `json:"notes"`
}

func (r reminderReq) input() service.ReminderInput {
	return service.ReminderInput{
		MedicineName:    r.MedicineName,
		Dosage:          r.Dosage,
		Frequency:       r.Frequency,
		CustomFrequency: r.CustomFrequency,
		Times:           r.Times,
		StartDate:       r.StartDate,
		EndDate:         r.EndDate,
		Notes:           r.Notes,
	}
}

type intakeReq struct {
	ScheduledTime string `json:"scheduled_time" validate:"required"`
	Status        string `json:"status" validate:"omitempty,oneof=taken missed skipped"`
	Notes         string `json:"notes"`
}

func (h *ReminderHandler) List(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	rows, err := h.Reminders.List(ctx, middleware.IdentityFrom(c))
	if err != nil {
		return fail(err)
	}
	return respond(c, http.StatusOK, "", rows)
}

// Active lists reminders in effect today.  It also serves /today.
func (h *ReminderHandler) Active(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	rows, err := h.Reminders.Active(ctx, middleware.IdentityFrom(c))
	if err != nil {
		return fail(err)
	}
	return respond(c, http.StatusOK, "", rows)
}

func (h *ReminderHandler) Get(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	m, err := h.Reminders.Get(ctx, middleware.IdentityFrom(c), id)
	if err != nil {
		return fail(err)
	}
	return respond(c, http.StatusOK, "", m)
}

func (h *ReminderHandler) Create(c echo.Context) error {
	var req reminderReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	m, err := h.Reminders.Create(ctx, middleware.IdentityFrom(c), req.input())
	if err != nil {
		return fail(err)
	}
	return respond(c, http.StatusCreated, "reminder created", m)
}

func (h *ReminderHandler) Update(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	var req reminderReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	m, err := h.Reminders.Update(ctx, middleware.IdentityFrom(c), id, req.input())
	if err != nil {
		return fail(err)
	}
	return respond(c, http.StatusOK, "reminder updated", m)
}

func (h *ReminderHandler) Toggle(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	on, err := h.Reminders.Toggle(ctx, middleware.IdentityFrom(c), id)
	if err != nil {
		return fail(err)
	}
	msg := "reminder deactivated"
	if on {
		msg = "reminder activated"
	}
	return respond(c, http.StatusOK, msg, map[string]bool{"is_active": on})
}

func (h *ReminderHandler) Delete(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Reminders.Delete(ctx, middleware.IdentityFrom(c), id); err != nil {
		return fail(err)
	}
	return respond(c, http.StatusOK, "reminder deleted", nil)
}

// LogIntake records a dose against the reminder.
func (h *ReminderHandler) LogIntake(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	var req intakeReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	l, err := h.Reminders.LogIntake(ctx, middleware.IdentityFrom(c), id, service.IntakeInput{
		ScheduledTime: req.ScheduledTime,
		Status:        req.Status,
		Notes:         req.Notes,
	})
	if err != nil {
		return fail(err)
	}
	return respond(c, http.StatusCreated, "intake logged", l)
}
