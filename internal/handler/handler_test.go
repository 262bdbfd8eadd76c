package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/clinic-appointments/internal/service"
)

func newEcho(logs *bytes.Buffer) *echo.Echo {
	e := echo.New()
	e.Validator = NewValidator()
	e.HTTPErrorHandler = HTTPErrorHandler(zerolog.New(logs))
	return e
}

func httptestRequest(method, target, body string) *http.Request {
	if body == "" {
		return httptest.NewRequest(method, target, nil)
	}
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func httptestServe(e *echo.Echo, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func serve(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	return httptestServe(e, httptestRequest(method, target, body))
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) Envelope {
	t.Helper()
	var env Envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("body %q is not an envelope: %v", rec.Body.String(), err)
	}
	return env
}

func TestErrorKindsMapToStatus(t *testing.T) {
	cases := []struct {
		err  error
		code int
		msg  string
	}{
		{service.NotFound("doctor not found"), http.StatusNotFound, "doctor not found"},
		{service.InvalidArgument("bad date"), http.StatusBadRequest, "bad date"},
		{service.Conflict("this time slot is already booked"), http.StatusConflict, "this time slot is already booked"},
		{service.Forbidden("not yours"), http.StatusForbidden, "not yours"},
		{service.Unauthenticated("login"), http.StatusUnauthorized, "login"},
		{service.Internal("insert", errors.New("Error 1146: table missing")), http.StatusInternalServerError, internalMessage},
		{errors.New("plain"), http.StatusInternalServerError, internalMessage},
	}
	for _, tc := range cases {
		t.Run(tc.msg, func(t *testing.T) {
			var logs bytes.Buffer
			e := newEcho(&logs)
			e.GET("/x", func(c echo.Context) error { return fail(tc.err) })

			rec := serve(e, http.MethodGet, "/x", "")
			if rec.Code != tc.code {
				t.Fatalf("status = %d, want %d", rec.Code, tc.code)
			}
			env := decodeEnvelope(t, rec)
			if env.Success || env.Message != tc.msg || env.Data != nil {
				t.Fatalf("envelope = %+v", env)
			}
			if tc.code == http.StatusInternalServerError {
				if !strings.Contains(logs.String(), "request failed") {
					t.Errorf("server error not logged: %q", logs.String())
				}
				if strings.Contains(rec.Body.String(), "1146") {
					t.Errorf("cause leaked to client: %q", rec.Body.String())
				}
			} else if logs.Len() != 0 {
				t.Errorf("client error logged: %q", logs.String())
			}
		})
	}
}

func TestFrameworkErrorsUseEnvelope(t *testing.T) {
	var logs bytes.Buffer
	e := newEcho(&logs)
	e.GET("/only-get", func(c echo.Context) error { return respond(c, http.StatusOK, "", nil) })

	rec := serve(e, http.MethodGet, "/missing", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	if env := decodeEnvelope(t, rec); env.Success || env.Message != "Not Found" {
		t.Fatalf("envelope = %+v", env)
	}

	rec = serve(e, http.MethodPost, "/only-get", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", rec.Code)
	}
	decodeEnvelope(t, rec)

	rec = serve(e, http.MethodHead, "/missing", "")
	if rec.Code != http.StatusNotFound || rec.Body.Len() != 0 {
		t.Fatalf("HEAD = %d %q", rec.Code, rec.Body.String())
	}
}

func TestRespondEnvelope(t *testing.T) {
	e := newEcho(&bytes.Buffer{})
	e.GET("/ok", func(c echo.Context) error {
		return respond(c, http.StatusCreated, "made", map[string]int{"id": 3})
	})
	rec := serve(e, http.MethodGet, "/ok", "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d", rec.Code)
	}
	want := `{"success":true,"message":"made","data":{"id":3}}`
	if got := strings.TrimSpace(rec.Body.String()); got != want {
		t.Fatalf("body = %s, want %s", got, want)
	}
}

func TestIDParam(t *testing.T) {
	e := newEcho(&bytes.Buffer{})
	e.GET("/things/:id", func(c echo.Context) error {
		id, err := idParam(c, "id")
		if err != nil {
			return err
		}
		return respond(c, http.StatusOK, "", id)
	})
	for _, raw := range []string{"0", "-1", "abc", "1.5"} {
		if rec := serve(e, http.MethodGet, "/things/"+raw, ""); rec.Code != http.StatusBadRequest {
			t.Errorf("id %q: status = %d", raw, rec.Code)
		}
	}
	rec := serve(e, http.MethodGet, "/things/42", "")
	if env := decodeEnvelope(t, rec); rec.Code != http.StatusOK || env.Data != float64(42) {
		t.Fatalf("id 42: %d %+v", rec.Code, env)
	}
}

func TestValidatorMessages(t *testing.T) {
	v := NewValidator()
	err := v.Validate(&registerReq{Email: "not-an-email", Password: "short"})
	if service.KindOf(err) != service.KindInvalidArgument {
		t.Fatalf("kind = %v", service.KindOf(err))
	}
	msg := service.MessageOf(err)
	for _, want := range []string{
		"email must be a valid email",
		"password must be at least 8 characters",
		"full_name is required",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q missing %q", msg, want)
		}
	}

	err = v.Validate(&intakeReq{ScheduledTime: "2026-03-01T09:00", Status: "forgotten"})
	if !strings.Contains(service.MessageOf(err), "status must be one of [taken missed skipped]") {
		t.Errorf("oneof message = %q", service.MessageOf(err))
	}
	if err := v.Validate(&loginReq{Email: "a@b.co", Password: "x"}); err != nil {
		t.Errorf("valid login rejected: %v", err)
	}
}

func TestBindRejectsMalformedBody(t *testing.T) {
	e := newEcho(&bytes.Buffer{})
	e.POST("/login", func(c echo.Context) error {
		var req loginReq
		if err := bind(c, &req); err != nil {
			return err
		}
		return respond(c, http.StatusOK, "", nil)
	})
	rec := serve(e, http.MethodPost, "/login", `{"email":`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if env := decodeEnvelope(t, rec); env.Message != "invalid request body" {
		t.Fatalf("message = %q", env.Message)
	}
	rec = serve(e, http.MethodPost, "/login", `{"email":"x"}`)
	if env := decodeEnvelope(t, rec); rec.Code != http.StatusBadRequest || !strings.HasPrefix(env.Message, "validation failed") {
		t.Fatalf("validation: %d %q", rec.Code, env.Message)
	}
}

func TestBindOptionalBody(t *testing.T) {
	e := newEcho(&bytes.Buffer{})
	e.POST("/cancel", func(c echo.Context) error {
		var req cancelReq
		if err := bindOptional(c, &req); err != nil {
			return err
		}
		return respond(c, http.StatusOK, req.Reason, nil)
	})

	cases := []struct {
		name    string
		body    string
		chunked bool
		status  int
		message string
	}{
		{"no body", "", false, http.StatusOK, ""},
		{"sized body", `{"reason":"feeling better"}`, false, http.StatusOK, "feeling better"},
		{"chunked body", `{"reason":"travelling"}`, true, http.StatusOK, "travelling"},
		{"chunked empty body", "", true, http.StatusOK, ""},
		{"malformed", `{"reason":`, false, http.StatusBadRequest, "invalid request body"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/cancel", strings.NewReader(tc.body))
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			if tc.chunked {
				req.ContentLength = -1
			}
			rec := httptestServe(e, req)
			if env := decodeEnvelope(t, rec); rec.Code != tc.status || env.Message != tc.message {
				t.Fatalf("got %d %q, want %d %q", rec.Code, env.Message, tc.status, tc.message)
			}
		})
	}
}

func TestAvailableSlotsRequiresDate(t *testing.T) {
	e := newEcho(&bytes.Buffer{})
	h := &AppointmentHandler{}
	e.GET("/doctors/:id/available-slots", h.AvailableSlots)

	rec := serve(e, http.MethodGet, "/doctors/1/available-slots", "")
	if env := decodeEnvelope(t, rec); rec.Code != http.StatusBadRequest || env.Message != "date is required" {
		t.Fatalf("missing date: %d %q", rec.Code, env.Message)
	}
	rec = serve(e, http.MethodGet, "/doctors/1/available-slots?date=02-03-2026", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad date: %d", rec.Code)
	}
}

type fakePinger struct{ err error }

func (p fakePinger) PingContext(context.Context) error { return p.err }

func TestHealth(t *testing.T) {
	cases := []struct {
		name  string
		h     *Health
		code  int
		state map[string]string
	}{
		{"db only", &Health{DB: fakePinger{}}, http.StatusOK, map[string]string{"database": "up"}},
		{"both up", &Health{DB: fakePinger{}, Cache: PingFunc(func(context.Context) error { return nil })}, http.StatusOK, map[string]string{"database": "up", "redis": "up"}},
		{"db down", &Health{DB: fakePinger{err: errors.New("refused")}}, http.StatusServiceUnavailable, map[string]string{"database": "down"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := newEcho(&bytes.Buffer{})
			e.GET("/readyz", tc.h.Readyz)
			rec := serve(e, http.MethodGet, "/readyz", "")
			if rec.Code != tc.code {
				t.Fatalf("status = %d, want %d", rec.Code, tc.code)
			}
			var body struct {
				Data map[string]string `json:"data"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatal(err)
			}
			if fmt.Sprint(body.Data) != fmt.Sprint(tc.state) {
				t.Fatalf("checks = %v, want %v", body.Data, tc.state)
			}
		})
	}

	e := newEcho(&bytes.Buffer{})
	e.GET("/healthz", (&Health{}).Healthz)
	if rec := serve(e, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Fatalf("healthz = %d", rec.Code)
	}
}
