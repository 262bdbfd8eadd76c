// Package pagination reads limit/offset query parameters.
package pagination

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Params holds pagination parameters extracted from a request.
type Params struct {
	Limit  int
	Offset int
}

// FromContext reads ?limit= and ?offset=.  Missing or non-positive
// limits fall back to DefaultLimit and large ones are capped at MaxLimit.
func FromContext(c echo.Context) Params {
	return Parse(c.QueryParam("limit"), c.QueryParam("offset"), DefaultLimit, MaxLimit)
}

// Parse is FromContext with explicit bounds.
func Parse(limitParam, offsetParam string, def, max int) Params {
	limit, _ := strconv.Atoi(limitParam)
	if limit <= 0 {
		limit = def
	}
	if limit > max {
		limit = max
	}
	offset, _ := strconv.Atoi(offsetParam)
	if offset < 0 {
		offset = 0
	}
	return Params{Limit: limit, Offset: offset}
}

// NextOffset returns the offset for the next page.
func (p Params) NextOffset() int { return p.Offset + p.Limit }
