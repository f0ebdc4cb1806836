// Package request holds small parsing helpers shared by the HTTP handlers.
package request

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"konsinyasi-backend/internal/apperror"
	"konsinyasi-backend/internal/validation"
)

const DateLayout = "2006-01-02"

// ParamID reads a positive numeric route parameter.
func ParamID(c *fiber.Ctx, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Params(name), 10, 64)
	if err != nil || id == 0 {
		return 0, apperror.Validationf("invalid %s", name).WithDetail(name, "numeric")
	}
	return uint(id), nil
}

// QueryUint returns nil for an absent or malformed value.
func QueryUint(c *fiber.Ctx, name string) *uint {
	v, err := strconv.ParseUint(c.Query(name), 10, 64)
	if err != nil || v == 0 {
		return nil
	}
	id := uint(v)
	return &id
}

// QueryDate returns nil for an absent value and a validation error for a bad one.
func QueryDate(c *fiber.Ctx, name string) (*time.Time, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, nil
	}
	t, err := ParseDate(raw)
	if err != nil {
		return nil, apperror.Validationf("%s must be YYYY-MM-DD", name).WithDetail(name, "date")
	}
	return &t, nil
}

// ParseDate accepts YYYY-MM-DD or RFC 3339.
func ParseDate(raw string) (time.Time, error) {
	if t, err := time.Parse(DateLayout, raw); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, raw)
}

// Body parses JSON (or form) input into dst and validates it.
func Body(c *fiber.Ctx, dst any) error {
	if err := c.BodyParser(dst); err != nil {
		return apperror.Validation("invalid request body")
	}
	return validation.Struct(dst)
}

// InFuture reports whether day d is after the calendar day of now.
func InFuture(d, now time.Time) bool {
	y, m, dd := now.Date()
	endOfToday := time.Date(y, m, dd, 23, 59, 59, int(time.Second-time.Nanosecond), now.Location())
	return d.After(endOfToday)
}
