package router

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/clinic-appointments/internal/handler"
	"github.com/iliyamo/clinic-appointments/internal/utils"
)

const secret = "router-secret"

// marker short-circuits a route so tests can see which middleware ran
// without touching the services.
func marker(code int, body string) echo.MiddlewareFunc {
	return func(echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error { return c.String(code, body) }
	}
}

func newServer() *echo.Echo {
	e := echo.New()
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = handler.HTTPErrorHandler(zerolog.Nop())
	Register(e, Handlers{
		Health:       &handler.Health{},
		Auth:         &handler.AuthHandler{},
		Doctors:      &handler.DoctorHandler{},
		Appointments: &handler.AppointmentHandler{},
		Reminders:    &handler.ReminderHandler{},
	}, Middleware{
		JWTSecret:  secret,
		Cache:      marker(http.StatusOK, "cached"),
		Invalidate: marker(http.StatusAccepted, "invalidated"),
	})
	return e
}

func bearer(t *testing.T, role string) string {
	t.Helper()
	tok, err := utils.NewAccessToken(secret, 1, role, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	return "Bearer " + tok.Token
}

func TestRoutes(t *testing.T) {
	e := newServer()
	cases := []struct {
		name   string
		method string
		path   string
		role   string
		code   int
		body   string
	}{
		{"liveness", http.MethodGet, "/healthz", "", http.StatusOK, ""},
		{"directory cached", http.MethodGet, "/v1/doctors", "", http.StatusOK, "cached"},
		{"search cached", http.MethodGet, "/v1/doctors/search?q=derm", "", http.StatusOK, "cached"},
		{"profile cached", http.MethodGet, "/v1/doctors/3", "", http.StatusOK, "cached"},
		{"slots not cached", http.MethodGet, "/v1/doctors/3/available-slots", "", http.StatusBadRequest, ""},
		{"me requires token", http.MethodGet, "/v1/me", "", http.StatusUnauthorized, ""},
		{"book requires token", http.MethodPost, "/v1/appointments", "", http.StatusUnauthorized, ""},
		{"doctor cannot book", http.MethodPost, "/v1/appointments", "Doctor", http.StatusForbidden, ""},
		{"patient cannot set status", http.MethodPatch, "/v1/appointments/1/status", "Patient", http.StatusForbidden, ""},
		{"patient cannot edit schedule", http.MethodPost, "/v1/doctors/1/schedules", "Patient", http.StatusForbidden, ""},
		{"doctor write invalidates", http.MethodPatch, "/v1/doctors/1/availability", "Doctor", http.StatusAccepted, "invalidated"},
		{"admin write invalidates", http.MethodDelete, "/v1/doctors/1/leaves/2", "Admin", http.StatusAccepted, "invalidated"},
		{"reminders are for patients", http.MethodGet, "/v1/reminders", "Doctor", http.StatusForbidden, ""},
		{"unknown route", http.MethodGet, "/v2/nothing", "", http.StatusNotFound, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, nil)
			if tc.role != "" {
				req.Header.Set(echo.HeaderAuthorization, bearer(t, tc.role))
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)
			if rec.Code != tc.code {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tc.code, rec.Body)
			}
			if tc.body != "" && rec.Body.String() != tc.body {
				t.Fatalf("body = %q, want %q", rec.Body, tc.body)
			}
		})
	}
}
