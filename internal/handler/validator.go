package handler

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/explanation-reservation/internal/utils"
)

// RequestValidator adapts go-playground/validator to echo.Validator.
type RequestValidator struct {
	v *validator.Validate
}

// NewRequestValidator registers the custom tags used by request DTOs:
// phone accepts 010-dddd-dddd or the same 11 digits without dashes.
func NewRequestValidator() *RequestValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return utils.ValidPhone(utils.NormalizePhone(fl.Field().String()))
	})
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &RequestValidator{v: v}
}

// Validate implements echo.Validator.
func (rv *RequestValidator) Validate(i any) error {
	if err := rv.v.Struct(i); err != nil {
		var ves validator.ValidationErrors
		if errors.As(err, &ves) {
			return validationError(ves)
		}
		return err
	}
	return nil
}

// ValidationError lists field problems in request order.
type ValidationError struct {
	Fields map[string]string
	first  string
}

func (e *ValidationError) Error() string { return e.first }

func validationError(ves validator.ValidationErrors) *ValidationError {
	out := &ValidationError{Fields: make(map[string]string, len(ves))}
	for _, fe := range ves {
		msg := fieldMessage(fe)
		out.Fields[fe.Field()] = msg
		if out.first == "" {
			out.first = fe.Field() + ": " + msg
		}
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "oneof":
		return "must be one of " + fe.Param()
	case "phone":
		return "must look like 010-1234-5678"
	case "email":
		return "must be an email address"
	case "gtefield":
		return "must not be before " + fe.Param()
	}
	return "is invalid"
}

// bindValid binds the request into dst and validates it.
func bindValid(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return errBadBody
	}
	return c.Validate(dst)
}
