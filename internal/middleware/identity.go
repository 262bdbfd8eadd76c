package middleware

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/clinic-appointments/internal/model"
)

// Context keys set by JWTAuth and RequestID.
const (
	ctxIdentity  = "identity"
	ctxUserID    = "user_id"
	ctxRole      = "role"
	ctxRequestID = "request_id"
)

// IdentityFrom returns the caller stored by JWTAuth.  Unauthenticated
// requests yield the zero Identity.
func IdentityFrom(c echo.Context) model.Identity {
	id, _ := c.Get(ctxIdentity).(model.Identity)
	return id
}

// SetIdentity stores id on the context.
func SetIdentity(c echo.Context, id model.Identity) {
	c.Set(ctxIdentity, id)
	c.Set(ctxUserID, strconv.FormatUint(id.UserID, 10))
	c.Set(ctxRole, id.Role.String())
}

// RequestIDFrom returns the id assigned by RequestID, or "".
func RequestIDFrom(c echo.Context) string {
	rid, _ := c.Get(ctxRequestID).(string)
	return rid
}

// currentUserID is the user part of rate limit keys.
func currentUserID(c echo.Context) string {
	if s, ok := c.Get(ctxUserID).(string); ok && s != "" {
		return s
	}
	return "anon"
}
