package validation

import (
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"konsinyasi-backend/internal/apperror"
)

var (
	once     sync.Once
	validate *validator.Validate
)

// Validator returns the shared instance. Field names in errors follow json tags.
func Validator() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				return fld.Name
			}
			return name
		})
	})
	return validate
}

// Struct validates s and returns a VALIDATION_ERROR with field details.
func Struct(s any) error {
	if err := Validator().Struct(s); err != nil {
		return apperror.FromValidation(err)
	}
	return nil
}
