package apperror

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
)

const (
	CodeValidation           = "VALIDATION_ERROR"
	CodeQuantityExceeded     = "QUANTITY_EXCEEDED"
	CodeConsignmentNotActive = "CONSIGNMENT_NOT_ACTIVE"
	CodeReferentialIntegrity = "REFERENTIAL_INTEGRITY"
	CodeNotFound             = "NOT_FOUND"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeForbidden            = "FORBIDDEN"
	CodeInternal             = "INTERNAL_ERROR"
)

// AppError is an error the HTTP layer can render without leaking internals.
type AppError struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Details    map[string]string `json:"details,omitempty"`
	HTTPStatus int               `json:"-"`
	Err        error             `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func (e *AppError) WithDetails(details map[string]string) *AppError {
	e.Details = details
	return e
}

func (e *AppError) WithDetail(key, value string) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

func (e *AppError) Wrap(err error) *AppError {
	e.Err = err
	return e
}

func New(code string, message string, httpStatus int) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: httpStatus}
}

func Validation(message string) *AppError {
	return New(CodeValidation, message, http.StatusUnprocessableEntity)
}

func Validationf(format string, args ...any) *AppError {
	return Validation(fmt.Sprintf(format, args...))
}

func QuantityExceeded(message string) *AppError {
	return New(CodeQuantityExceeded, message, http.StatusUnprocessableEntity)
}

func ConsignmentNotActive(code string) *AppError {
	return New(CodeConsignmentNotActive,
		fmt.Sprintf("consignment %s is no longer active", code),
		http.StatusConflict)
}

func ReferentialIntegrity(message string) *AppError {
	return New(CodeReferentialIntegrity, message, http.StatusConflict)
}

func NotFound(resource string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

func NotFoundWithID(resource string, id uint) *AppError {
	return NotFound(resource).WithDetail("id", fmt.Sprint(id))
}

func Unauthorized(message string) *AppError {
	if message == "" {
		message = "authentication required"
	}
	return New(CodeUnauthorized, message, http.StatusUnauthorized)
}

func Forbidden(message string) *AppError {
	if message == "" {
		message = "access denied"
	}
	return New(CodeForbidden, message, http.StatusForbidden)
}

func Internal(err error) *AppError {
	return New(CodeInternal, "internal server error", http.StatusInternalServerError).Wrap(err)
}

// As extracts the first *AppError in err's chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

func HasCode(err error, code string) bool {
	appErr, ok := As(err)
	return ok && appErr.Code == code
}

// FromValidation turns validator output into a field-level validation error.
// Anything else is returned as a plain validation error with its message.
func FromValidation(err error) *AppError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return Validation(err.Error())
	}
	details := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		key := fe.Namespace()
		if key == "" {
			key = fe.Field()
		}
		details[trimRoot(key)] = fe.Tag()
	}
	return Validation("request validation failed").WithDetails(details)
}

// "CreateInput.items[0].qty" -> "items[0].qty"
func trimRoot(ns string) string {
	for i := 0; i < len(ns); i++ {
		if ns[i] == '.' {
			return ns[i+1:]
		}
	}
	return ns
}
