package middleware

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/clinic-appointments/internal/config"
	"github.com/iliyamo/clinic-appointments/internal/model"
	"github.com/iliyamo/clinic-appointments/internal/utils"
)

const secret = "test-secret"

func newCtx(method, target string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func ok(c echo.Context) error { return c.String(http.StatusOK, "ok") }

func httpCode(t *testing.T, err error) int {
	t.Helper()
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("expected *echo.HTTPError, got %T (%v)", err, err)
	}
	return he.Code
}

func TestJWTAuth_StoresIdentity(t *testing.T) {
	tok, err := utils.NewAccessToken(secret, 7, "Doctor", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	c, _ := newCtx(http.MethodGet, "/v1/me")
	c.Request().Header.Set(echo.HeaderAuthorization, "Bearer "+tok.Token)

	var got model.Identity
	err = JWTAuth(secret)(func(c echo.Context) error {
		got = IdentityFrom(c)
		return nil
	})(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.UserID != 7 || got.Role != model.RoleDoctor {
		t.Fatalf("identity = %+v", got)
	}
	if c.Get("user_id") != "7" || c.Get("role") != "Doctor" {
		t.Errorf("context strings = %v %v", c.Get("user_id"), c.Get("role"))
	}
}

func TestJWTAuth_Rejects(t *testing.T) {
	badRole, _ := utils.NewAccessToken(secret, 7, "janitor", time.Minute)
	expired, _ := utils.NewAccessToken(secret, 7, "Patient", -time.Minute)
	cases := map[string]string{
		"missing":  "",
		"scheme":   "Basic abc",
		"garbage":  "Bearer nope",
		"expired":  "Bearer " + expired.Token,
		"bad role": "Bearer " + badRole.Token,
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			c, _ := newCtx(http.MethodGet, "/v1/me")
			if header != "" {
				c.Request().Header.Set(echo.HeaderAuthorization, header)
			}
			called := false
			err := JWTAuth(secret)(func(echo.Context) error { called = true; return nil })(c)
			if called {
				t.Fatal("next handler ran")
			}
			if code := httpCode(t, err); code != http.StatusUnauthorized {
				t.Errorf("status = %d", code)
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	mw := RequireRole(model.RoleDoctor, model.RoleAdmin)

	c, _ := newCtx(http.MethodGet, "/")
	if code := httpCode(t, mw(ok)(c)); code != http.StatusUnauthorized {
		t.Errorf("anonymous: %d", code)
	}

	c, _ = newCtx(http.MethodGet, "/")
	SetIdentity(c, model.Identity{UserID: 1, Role: model.RolePatient})
	if code := httpCode(t, mw(ok)(c)); code != http.StatusForbidden {
		t.Errorf("patient: %d", code)
	}

	c, rec := newCtx(http.MethodGet, "/")
	SetIdentity(c, model.Identity{UserID: 1, Role: model.RoleAdmin})
	if err := mw(ok)(c); err != nil || rec.Code != http.StatusOK {
		t.Errorf("admin: %v %d", err, rec.Code)
	}
}

func TestRequestID(t *testing.T) {
	c, rec := newCtx(http.MethodGet, "/")
	var seen string
	_ = RequestID()(func(c echo.Context) error { seen = RequestIDFrom(c); return nil })(c)
	if seen == "" || rec.Header().Get(RequestIDHeader) != seen {
		t.Errorf("generated id %q, header %q", seen, rec.Header().Get(RequestIDHeader))
	}

	c, rec = newCtx(http.MethodGet, "/")
	c.Request().Header.Set(RequestIDHeader, "abc-123")
	_ = RequestID()(ok)(c)
	if rec.Header().Get(RequestIDHeader) != "abc-123" {
		t.Errorf("incoming id not preserved: %q", rec.Header().Get(RequestIDHeader))
	}
}

func TestLogger_RecordsErrorStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	c, rec := newCtx(http.MethodGet, "/v1/doctors/9")
	c.Set("request_id", "rid-1")

	err := Logger(logger)(func(echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "doctor not found")
	})(c)
	if err != nil {
		t.Fatalf("logger should hand the error to the error handler, got %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Errorf("response status = %d", rec.Code)
	}
	line := buf.String()
	for _, want := range []string{`"status":404`, `"request_id":"rid-1"`, `"path":"/v1/doctors/9"`, `"level":"warn"`} {
		if !strings.Contains(line, want) {
			t.Errorf("log line %s missing %s", line, want)
		}
	}
}

func TestRecovery(t *testing.T) {
	var buf bytes.Buffer
	c, _ := newCtx(http.MethodGet, "/panic")
	err := Recovery(zerolog.New(&buf))(func(echo.Context) error { panic("boom") })(c)
	if code := httpCode(t, err); code != http.StatusInternalServerError {
		t.Errorf("status = %d", code)
	}
	if !strings.Contains(buf.String(), "boom") {
		t.Errorf("panic not logged: %s", buf.String())
	}

	c, rec := newCtx(http.MethodGet, "/ok")
	if err := Recovery(zerolog.Nop())(ok)(c); err != nil || rec.Code != http.StatusOK {
		t.Errorf("pass-through: %v %d", err, rec.Code)
	}
}

type fakeLimiter struct {
	decision Decision
	err      error
	keys     []string
}

func (f *fakeLimiter) Take(_ context.Context, key string) (Decision, error) {
	f.keys = append(f.keys, key)
	return f.decision, f.err
}

func TestRateLimit(t *testing.T) {
	cfg := config.RateLimitConfig{Enabled: true, Capacity: 5, Prefix: "rl", KeyStrategy: "user"}

	allow := &fakeLimiter{decision: Decision{Allowed: true, Remaining: 4}}
	c, rec := newCtx(http.MethodGet, "/")
	SetIdentity(c, model.Identity{UserID: 20, Role: model.RolePatient})
	if err := RateLimit(cfg, allow, zerolog.Nop())(ok)(c); err != nil {
		t.Fatal(err)
	}
	if rec.Header().Get("X-RateLimit-Remaining") != "4" || allow.keys[0] != "rl:user:20" {
		t.Errorf("headers %v, key %v", rec.Header(), allow.keys)
	}

	block := &fakeLimiter{decision: Decision{RetryAfter: 1500 * time.Millisecond}}
	c, rec = newCtx(http.MethodGet, "/")
	err := RateLimit(cfg, block, zerolog.Nop())(ok)(c)
	if code := httpCode(t, err); code != http.StatusTooManyRequests {
		t.Errorf("status = %d", code)
	}
	if rec.Header().Get("Retry-After") != "2" || block.keys[0] != "rl:user:anon" {
		t.Errorf("retry-after %q, key %v", rec.Header().Get("Retry-After"), block.keys)
	}

	broken := &fakeLimiter{err: errors.New("redis down")}
	c, rec = newCtx(http.MethodGet, "/")
	if err := RateLimit(cfg, broken, zerolog.Nop())(ok)(c); err != nil || rec.Code != http.StatusOK {
		t.Errorf("limiter errors should fail open: %v %d", err, rec.Code)
	}
}

func TestDisabledRedisMiddlewarePassThrough(t *testing.T) {
	for name, mw := range map[string]echo.MiddlewareFunc{
		"ratelimit":  NewTokenBucket(config.RateLimitConfig{Enabled: true}, nil, zerolog.Nop()),
		"cache":      NewRedisCache(config.CacheConfig{Enabled: true}, nil, zerolog.Nop()),
		"invalidate": NewCacheInvalidator(config.CacheConfig{Enabled: true}, nil, zerolog.Nop()),
	} {
		c, rec := newCtx(http.MethodGet, "/")
		if err := mw(ok)(c); err != nil || rec.Code != http.StatusOK {
			t.Errorf("%s: %v %d", name, err, rec.Code)
		}
	}
}

func TestCachePayloadRoundTrip(t *testing.T) {
	h := http.Header{"Content-Type": {"application/json"}}
	bs, err := encodePayload(http.StatusOK, h, []byte(`{"success":true}`))
	if err != nil {
		t.Fatal(err)
	}
	status, hdr, body, ok := decodePayload(bs)
	if !ok || status != http.StatusOK || hdr.Get("Content-Type") != "application/json" || string(body) != `{"success":true}` {
		t.Fatalf("decoded %d %v %q %v", status, hdr, body, ok)
	}
	if _, _, _, ok := decodePayload(bs[:5]); ok {
		t.Error("short payload decoded")
	}
}

func TestCacheKeyIncludesQuery(t *testing.T) {
	cfg := config.CacheConfig{Prefix: "cache", KeyStrategy: "route_query"}
	a, _ := newCtx(http.MethodGet, "/v1/doctors/search?q=derm")
	b, _ := newCtx(http.MethodGet, "/v1/doctors/search?q=cardio")
	ka, kb := cacheKeyFrom(cfg, a), cacheKeyFrom(cfg, b)
	if ka == kb || !strings.HasPrefix(ka, "cache:") {
		t.Errorf("keys %q %q", ka, kb)
	}
	cfg.KeyStrategy = "route"
	if cacheKeyFrom(cfg, a) != cacheKeyFrom(cfg, b) {
		t.Error("route strategy should ignore the query")
	}
}

func TestCaptureWriterOverflow(t *testing.T) {
	rec := httptest.NewRecorder()
	cw := &captureWriter{ResponseWriter: rec, status: http.StatusOK, limit: 4}
	_, _ = cw.Write([]byte("abc"))
	_, _ = cw.Write([]byte("def"))
	if !cw.overflow || cw.buf.Len() != 0 {
		t.Errorf("overflow=%v buffered=%d", cw.overflow, cw.buf.Len())
	}
	if rec.Body.String() != "abcdef" {
		t.Errorf("client body = %q", rec.Body.String())
	}
}
