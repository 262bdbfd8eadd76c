// Package handler holds the HTTP handlers.  Every response, success or
// failure, uses the {success, message, data} envelope.
package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/clinic-appointments/internal/middleware"
	"github.com/iliyamo/clinic-appointments/internal/service"
)

const requestTimeout = 5 * time.Second

// Envelope is the body of every response.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

func respond(c echo.Context, status int, msg string, data any) error {
	return c.JSON(status, Envelope{Success: true, Message: msg, Data: data})
}

func statusOf(k service.Kind) int {
	switch k {
	case service.KindUnauthenticated:
		return http.StatusUnauthorized
	case service.KindForbidden:
		return http.StatusForbidden
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindInvalidArgument:
		return http.StatusBadRequest
	case service.KindConflict:
		return http.StatusConflict
	case service.KindInternal:
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}

const internalMessage = "internal server error"

// fail converts err into an *echo.HTTPError for the error handler.  The
// cause of an internal error rides along in Internal and is only logged.
func fail(err error) error {
	k := service.KindOf(err)
	msg := service.MessageOf(err)
	if k == service.KindInternal {
		msg = internalMessage
	}
	return &echo.HTTPError{Code: statusOf(k), Message: msg, Internal: err}
}

// HTTPErrorHandler writes errors in the envelope.  Server errors are
// logged with the request id and the wrapped cause.
func HTTPErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		he := asHTTPError(err)
		if he.Code >= http.StatusInternalServerError {
			cause := err
			if he.Internal != nil {
				cause = he.Internal
			}
			logger.Error().
				Err(cause).
				Str("request_id", middleware.RequestIDFrom(c)).
				Str("method", c.Request().Method).
				Str("path", c.Request().URL.Path).
				Msg("request failed")
		}
		msg, ok := he.Message.(string)
		if !ok || msg == "" {
			msg = http.StatusText(he.Code)
		}
		body := Envelope{Success: false, Message: msg}
		if c.Request().Method == http.MethodHead {
			err = c.NoContent(he.Code)
		} else {
			err = c.JSON(he.Code, body)
		}
		if err != nil {
			logger.Error().Err(err).Msg("write error response")
		}
	}
}

func asHTTPError(err error) *echo.HTTPError {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		if inner, ok := he.Message.(*echo.HTTPError); ok {
			return inner
		}
		return he
	}
	var se *service.Error
	if errors.As(err, &se) {
		return fail(err).(*echo.HTTPError)
	}
	return &echo.HTTPError{Code: http.StatusInternalServerError, Message: internalMessage, Internal: err}
}

// reqCtx bounds a handler's store calls.
func reqCtx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), requestTimeout)
}

// idParam parses a positive numeric path parameter.
func idParam(c echo.Context, name string) (uint64, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, fail(service.Invalidf("invalid %s", name))
	}
	return id, nil
}

// bind decodes the body into req and validates it.
func bind(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return fail(service.InvalidArgument("invalid request body"))
	}
	if err := c.Validate(req); err != nil {
		return fail(err)
	}
	return nil
}

// bindOptional decodes an optional body into req.  An absent or empty body
// leaves req untouched; a chunked body is decoded like any other.
func bindOptional(c echo.Context, req any) error {
	if c.Request().ContentLength == 0 {
		return nil
	}
	if err := c.Bind(req); err != nil && !errors.Is(err, io.EOF) {
		return fail(service.InvalidArgument("invalid request body"))
	}
	return nil
}
