package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/clinic-appointments/internal/middleware"
	"github.com/iliyamo/clinic-appointments/internal/model"
	"github.com/iliyamo/clinic-appointments/internal/pagination"
	"github.com/iliyamo/clinic-appointments/internal/service"
)

// AppointmentHandler serves booking, the lifecycle transitions and the
// appointment views.
type AppointmentHandler struct {
	Lifecycle    *service.Lifecycle
	Queries      *service.Queries
	Availability *service.Availability
}

type bookReq struct {
	DoctorID uint64 `json:"doctor_id" validate:"required"`
	DateTime string `json:"date_time" validate:"required"`
	Symptoms string `json:"symptoms" validate:"max=2000"`
	Notes    string `json:"notes" validate:"max=2000"`
}

type statusReq struct {
	Status string `json:"status" validate:"required"`
}

type cancelReq struct {
	Reason string `json:"reason"`
}

type medicineReq struct {
	MedicineName string `json:"medicine_name" validate:"required,max=200"`
	Dosage       string `json:"dosage" validate:"required,max=100"`
	Frequency    string `json:"frequency" validate:"required,max=100"`
	Duration     string `json:"duration" validate:"max=100"`
	Instructions string `json:"instructions"`
}

type prescriptionReq struct {
	Diagnosis    string        `json:"diagnosis"`
	Notes        string        `json:"notes"`
	FollowUpDate *model.Date   `json:"follow_up_date"`
	Medicines    []medicineReq `json:"medicines" validate:"dive"`
}

// Book creates a Pending appointment for the caller.
func (h *AppointmentHandler) Book(c echo.Context) error {
	var req bookReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	d, err := h.Lifecycle.BookAppointment(ctx, middleware.IdentityFrom(c), service.BookRequest{
		DoctorID: req.DoctorID,
		DateTime: req.DateTime,
		Symptoms: req.Symptoms,
		Notes:    req.Notes,
	})
	if err != nil {
		return fail(err)
	}
	return respond(c, http.StatusCreated, "appointment booked", d)
}

// My lists every appointment visible to the caller, newest first.
func (h *AppointmentHandler) My(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	rows, err := h.Queries.MyAppointments(ctx, middleware.IdentityFrom(c))
	if err != nil {
		return fail(err)
	}
	return respond(c, http.StatusOK, "", rows)
}

func (h *AppointmentHandler) Upcoming(c echo.Context) error {
	p := pagination.Parse(c.QueryParam("limit"), "", service.DefaultUpcomingLimit, service.MaxUpcomingLimit)
	ctx, cancel := reqCtx(c)
	defer cancel()
	rows, err := h.Queries.UpcomingAppointments(ctx, middleware.IdentityFrom(c), p.Limit)
	if err != nil {
		return fail(err)
	}
	return respond(c, http.StatusOK, "", rows)
}

// History pages through the caller's appointments, optionally filtered
// by ?status=.
func (h *AppointmentHandler) History(c echo.Context) error {
	p := pagination.FromContext(c)
	ctx, cancel := reqCtx(c)
	defer cancel()
	rows, err := h.Queries.AppointmentHistory(ctx, middleware.IdentityFrom(c), service.HistoryFilter{
		Status: c.QueryParam("status"),
		Limit:  p.Limit,
		Offset: p.Offset,
	})
	if err != nil {
		return fail(err)
	}
	return c.JSON(http.StatusOK, Envelope{Success: true, Data: map[string]any{
		"items":       rows,
		"limit":       p.Limit,
		"offset":      p.Offset,
		"next_offset": nextOffset(p, len(rows)),
	}})
}

func nextOffset(p pagination.Params, n int) *int {
	if n < p.Limit {
		return nil
	}
	next := p.NextOffset()
	return &next
}

func (h *AppointmentHandler) Get(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	d, err := h.Queries.AppointmentByID(ctx, middleware.IdentityFrom(c), id)
	if err != nil {
		return fail(err)
	}
	return respond(c, http.StatusOK, "", d)
}

// UpdateStatus moves an appointment along the lifecycle.
func (h *AppointmentHandler) UpdateStatus(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	var req statusReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	d, err := h.Lifecycle.UpdateStatus(ctx, middleware.IdentityFrom(c), id, req.Status)
	if err != nil {
		return fail(err)
	}
	return respond(c, http.StatusOK, "appointment status updated", d)
}

// Cancel cancels an appointment.  The body and its reason are optional.
func (h *AppointmentHandler) Cancel(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	var req cancelReq
	if err := bindOptional(c, &req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	d, err := h.Lifecycle.Cancel(ctx, middleware.IdentityFrom(c), id, req.Reason)
	if err != nil {
		return fail(err)
	}
	return respond(c, http.StatusOK, "appointment cancelled", d)
}

// Prescription records a prescription and completes the appointment.
func (h *AppointmentHandler) Prescription(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	var req prescriptionReq
	if err := bind(c, &req); err != nil {
		return err
	}
	meds := make([]model.PrescriptionMedicine, 0, len(req.Medicines))
	for _, m := range req.Medicines {
		meds = append(meds, model.PrescriptionMedicine{
			MedicineName: m.MedicineName,
			Dosage:       m.Dosage,
			Frequency:    m.Frequency,
			Duration:     m.Duration,
			Instructions: m.Instructions,
		})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	p, err := h.Lifecycle.AttachPrescriptionAndComplete(ctx, middleware.IdentityFrom(c), id, service.PrescriptionInput{
		Diagnosis:    req.Diagnosis,
		Notes:        req.Notes,
		FollowUpDate: req.FollowUpDate,
		Medicines:    meds,
	})
	if err != nil {
		return fail(err)
	}
	return respond(c, http.StatusCreated, "prescription added and appointment completed", p)
}

// DoctorAppointments lists a doctor's book, optionally for one ?date=.
func (h *AppointmentHandler) DoctorAppointments(c echo.Context) error {
	doctorID, err := idParam(c, "id")
	if err != nil {
		return err
	}
	var date *model.Date
	if raw := strings.TrimSpace(c.QueryParam("date")); raw != "" {
		d, err := model.ParseDate(raw)
		if err != nil {
			return fail(service.InvalidArgument("date must be YYYY-MM-DD"))
		}
		date = &d
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	rows, err := h.Queries.DoctorAppointments(ctx, middleware.IdentityFrom(c), doctorID, date)
	if err != nil {
		return fail(err)
	}
	return respond(c, http.StatusOK, "", rows)
}

// AvailableSlots returns a doctor's slots for ?date=, booked ones
// flagged.
func (h *AppointmentHandler) AvailableSlots(c echo.Context) error {
	doctorID, err := idParam(c, "id")
	if err != nil {
		return err
	}
	raw := strings.TrimSpace(c.QueryParam("date"))
	if raw == "" {
		return fail(service.InvalidArgument("date is required"))
	}
	date, err := model.ParseDate(raw)
	if err != nil {
		return fail(service.InvalidArgument("date must be YYYY-MM-DD"))
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	av, err := h.Availability.GetAvailableSlots(ctx, doctorID, date)
	if err != nil {
		return fail(err)
	}
	if av.Slots == nil {
		av.Slots = []model.SlotAvailability{}
	}
	msg := ""
	if len(av.Slots) == 0 {
		msg = "doctor is not available on this day"
	}
	return respond(c, http.StatusOK, msg, av)
}
