package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/clinic-appointments/internal/middleware"
	"github.com/iliyamo/clinic-appointments/internal/model"
	"github.com/iliyamo/clinic-appointments/internal/repository"
	"github.com/iliyamo/clinic-appointments/internal/service"
)

// DoctorHandler serves the doctor directory together with schedule and
// leave administration.
type DoctorHandler struct {
	Directory *service.Directory
}

type availabilityReq struct {
	IsAvailable *bool `json:"is_available" validate:"required"`
}

type profileReq struct {
	Specialization  *string  `json:"specialization" validate:"omitempty,min=1,max=100"`
	Qualification   *string  `json:"qualification" validate:"omitempty,max=200"`
	ExperienceYears *int     `json:"experience_years" validate:"omitempty,gte=0"`
	ConsultationFee *float64 `json:"consultation_fee" validate:"omitempty,gte=0"`
	RoomNumber      *string  `json:"room_number" validate:"omitempty,max=20"`
	Bio             *string  `json:"bio"`
}

type scheduleReq struct {
	DayOfWeek *model.Weekday   `json:"day_of_week" validate:"required"`
	StartTime *model.TimeOfDay `json:"start_time" validate:"required"`
	EndTime   *model.TimeOfDay `json:"end_time" validate:"required"`
	IsActive  *bool            `json:"is_active"`
}

func (r scheduleReq) input() service.ScheduleInput {
	return service.ScheduleInput{
		DayOfWeek: *r.DayOfWeek,
		StartTime: *r.StartTime,
		EndTime:   *r.EndTime,
		IsActive:  r.IsActive,
	}
}

type leaveReq struct {
	StartDate model.Date `json:"start_date"`
	EndDate   model.Date `json:"end_date"`
	Reason    string     `json:"reason" validate:"max=500"`
}

func (h *DoctorHandler) List(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	rows, err := h.Directory.ListDoctors(ctx)
	if err != nil {
		return fail(err)
	}
	return respond(c, http.StatusOK, "", rows)
}

func (h *DoctorHandler) Available(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	rows, err := h.Directory.AvailableDoctors(ctx)
	if err != nil {
		return fail(err)
	}
	return respond(c, http.StatusOK, "", rows)
}

// Search filters by ?q=, ?specialization= and ?available=true.
func (h *DoctorHandler) Search(c echo.Context) error {
	f := repository.DoctorFilter{
		Query:          c.QueryParam("q"),
		Specialization: c.QueryParam("specialization"),
	}
	if raw := c.QueryParam("available"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return fail(service.InvalidArgument("available must be true or false"))
		}
		f.AvailableOnly = v
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	rows, err := h.Directory.SearchDoctors(ctx, f)
	if err != nil {
		return fail(err)
	}
	return respond(c, http.StatusOK, "", rows)
}

func (h *DoctorHandler) Specializations(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	rows, err := h.Directory.Specializations(ctx)
	if err != nil {
		return fail(err)
	}
	return respond(c, http.StatusOK, "", rows)
}

func (h *DoctorHandler) Get(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	p, err := h.Directory.GetDoctor(ctx, id)
	if err != nil {
		return fail(err)
	}
	return respond(c, http.StatusOK, "", p)
}

func (h *DoctorHandler) Schedule(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	rows, err := h.Directory.DoctorSchedule(ctx, id)
	if err != nil {
		return fail(err)
	}
	return respond(c, http.StatusOK, "", rows)
}

func (h *DoctorHandler) SetAvailability(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	var req availabilityReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	d, err := h.Directory.SetAvailability(ctx, middleware.IdentityFrom(c), id, *req.IsAvailable)
	if err != nil {
		return fail(err)
	}
	return respond(c, http.StatusOK, "availability updated", d)
}

func (h *DoctorHandler) UpdateProfile(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	var req profileReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	d, err := h.Directory.UpdateProfile(ctx, middleware.IdentityFrom(c), id, repository.DoctorUpdate{
		Specialization:  trimmed(req.Specialization),
		Qualification:   trimmed(req.Qualification),
		ExperienceYears: req.ExperienceYears,
		ConsultationFee: req.ConsultationFee,
		RoomNumber:      trimmed(req.RoomNumber),
		Bio:             req.Bio,
	})
	if err != nil {
		return fail(err)
	}
	return respond(c, http.StatusOK, "profile updated", d)
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}

func (h *DoctorHandler) CreateSchedule(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	var req scheduleReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	s, err := h.Directory.CreateSchedule(ctx, middleware.IdentityFrom(c), id, req.input())
	if err != nil {
		return fail(err)
	}
	return respond(c, http.StatusCreated, "schedule created", s)
}

func (h *DoctorHandler) UpdateSchedule(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	scheduleID, err := idParam(c, "scheduleId")
	if err != nil {
		return err
	}
	var req scheduleReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	s, err := h.Directory.UpdateSchedule(ctx, middleware.IdentityFrom(c), id, scheduleID, req.input())
	if err != nil {
		return fail(err)
	}
	return respond(c, http.StatusOK, "schedule updated", s)
}

func (h *DoctorHandler) ListLeaves(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	rows, err := h.Directory.ListLeaves(ctx, middleware.IdentityFrom(c), id)
	if err != nil {
		return fail(err)
	}
	return respond(c, http.StatusOK, "", rows)
}

func (h *DoctorHandler) CreateLeave(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	var req leaveReq
	if err := bind(c, &req); err != nil {
		return err
	}
	if req.StartDate.IsZero() || req.EndDate.IsZero() {
		return fail(service.InvalidArgument("start_date and end_date are required"))
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	l, err := h.Directory.CreateLeave(ctx, middleware.IdentityFrom(c), id, service.LeaveInput{
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		Reason:    req.Reason,
	})
	if err != nil {
		return fail(err)
	}
	return respond(c, http.StatusCreated, "leave created", l)
}

func (h *DoctorHandler) DeleteLeave(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	leaveID, err := idParam(c, "leaveId")
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Directory.DeleteLeave(ctx, middleware.IdentityFrom(c), id, leaveID); err != nil {
		return fail(err)
	}
	return respond(c, http.StatusOK, "leave deleted", nil)
}
