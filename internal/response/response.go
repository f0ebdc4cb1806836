package response

import (
	"errors"
	"math"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"konsinyasi-backend/internal/apperror"
)

// Envelope is the shape of every API response.
type Envelope struct {
	Success bool              `json:"success"`
	Code    int               `json:"code"`
	Message string            `json:"message"`
	Data    any               `json:"data"`
	Meta    *Meta             `json:"meta"`
	Errors  map[string]string `json:"errors"`
}

type Meta struct {
	CurrentPage int   `json:"current_page"`
	PerPage     int   `json:"per_page"`
	Total       int64 `json:"total"`
	LastPage    int   `json:"last_page"`
	From        int   `json:"from"`
	To          int   `json:"to"`
}

type Page struct {
	Page    int
	PerPage int
}

func (p Page) Offset() int {
	return (p.Page - 1) * p.PerPage
}

const maxPerPage = 100

// PageParams reads ?page= and ?per_page=, clamping to sane values.
func PageParams(c *fiber.Ctx, defaultPerPage int) Page {
	page, err := strconv.Atoi(c.Query("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	perPage, err := strconv.Atoi(c.Query("per_page", strconv.Itoa(defaultPerPage)))
	if err != nil || perPage < 1 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	return Page{Page: page, PerPage: perPage}
}

// NewMeta builds paging metadata for count rows returned from total.
func NewMeta(p Page, total int64, count int) *Meta {
	lastPage := int(math.Ceil(float64(total) / float64(p.PerPage)))
	if lastPage < 1 {
		lastPage = 1
	}
	m := &Meta{
		CurrentPage: p.Page,
		PerPage:     p.PerPage,
		Total:       total,
		LastPage:    lastPage,
	}
	if count > 0 {
		m.From = p.Offset() + 1
		m.To = p.Offset() + count
	}
	return m
}

func OK(c *fiber.Ctx, status int, message string, data any) error {
	return c.Status(status).JSON(Envelope{
		Success: true,
		Code:    status,
		Message: message,
		Data:    data,
	})
}

func Paged(c *fiber.Ctx, message string, data any, meta *Meta) error {
	return c.Status(fiber.StatusOK).JSON(Envelope{
		Success: true,
		Code:    fiber.StatusOK,
		Message: message,
		Data:    data,
		Meta:    meta,
	})
}

// ErrorHandler renders AppError, fiber.Error and unexpected errors as envelopes.
// Only unexpected errors are logged; their message never reaches the client.
func ErrorHandler(logger *logrus.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		if appErr, ok := apperror.As(err); ok {
			if appErr.HTTPStatus >= fiber.StatusInternalServerError {
				logUnexpected(logger, c, err)
			}
			return c.Status(appErr.HTTPStatus).JSON(Envelope{
				Success: false,
				Code:    appErr.HTTPStatus,
				Message: appErr.Message,
				Errors:  withKind(appErr),
			})
		}

		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(Envelope{
				Success: false,
				Code:    fe.Code,
				Message: fe.Message,
			})
		}

		logUnexpected(logger, c, err)
		return c.Status(fiber.StatusInternalServerError).JSON(Envelope{
			Success: false,
			Code:    fiber.StatusInternalServerError,
			Message: "internal server error",
		})
	}
}

func withKind(appErr *apperror.AppError) map[string]string {
	out := make(map[string]string, len(appErr.Details)+1)
	for k, v := range appErr.Details {
		out[k] = v
	}
	out["kind"] = appErr.Code
	return out
}

func logUnexpected(logger *logrus.Logger, c *fiber.Ctx, err error) {
	logger.WithFields(logrus.Fields{
		"method": c.Method(),
		"path":   c.Path(),
	}).Error(err.Error())
}
