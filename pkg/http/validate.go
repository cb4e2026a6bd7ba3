package http

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// report fields by their json name
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// ReadAndValidateRequest binds the request into req, fills defaults and validates it.
// It returns nil or a []ValidationError.
func ReadAndValidateRequest(c echo.Context, req interface{}) interface{} {
	if err := c.Bind(req); err != nil {
		return toValidationErrors(err)
	}
	if errs := ValidateStruct(c.Request().Context(), req); errs != nil {
		return errs
	}
	return nil
}

// ValidateStruct applies defaults and validation tags to v outside of a request.
func ValidateStruct(ctx context.Context, v interface{}) []ValidationError {
	if err := defaults.Set(v); err != nil {
		return toValidationErrors(err)
	}
	if err := validate.StructCtx(ctx, v); err != nil {
		return toValidationErrors(err)
	}
	return nil
}

// JoinValidationErrors flattens validation errors into one error for non-HTTP callers.
func JoinValidationErrors(errs []ValidationError) error {
	if len(errs) == 0 {
		return nil
	}
	out := make([]error, 0, len(errs))
	for _, e := range errs {
		out = append(out, errors.New(e.Message))
	}
	return errors.Join(out...)
}

func toValidationErrors(err error) []ValidationError {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		errs := make([]ValidationError, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			errs = append(errs, ValidationError{
				Code:    "ERR_" + strings.ToUpper(fe.Tag()),
				Field:   fe.Field(),
				Message: fieldMessage(fe),
				Params:  fieldParams(fe),
			})
		}
		return errs
	}

	msg := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg = fmt.Sprintf("%v", he.Message)
	}
	return []ValidationError{{Code: "ERR_UNKNOWN", Message: msg}}
}

var tagMessages = map[string]string{
	"required": "%s is required",
	"alpha":    "%s must contain letters only",
	"len":      "%s must have length %s",
	"gtfield":  "%s must be greater than %s",
	"gt":       "%s must be greater than %s",
	"gte":      "%s must be at least %s",
	"lt":       "%s must be less than %s",
	"lte":      "%s must be at most %s",
}

func fieldMessage(fe validator.FieldError) string {
	field, param := fe.Field(), fe.Param()
	switch tag := fe.Tag(); tag {
	case "required", "alpha":
		return fmt.Sprintf(tagMessages[tag], field)
	case "min", "max":
		bound := "at least"
		if tag == "max" {
			bound = "at most"
		}
		switch fe.Kind() {
		case reflect.String:
			return fmt.Sprintf("%s must be %s %s characters", field, bound, param)
		case reflect.Slice, reflect.Array, reflect.Map:
			return fmt.Sprintf("%s must have %s %s items", field, bound, param)
		}
		return fmt.Sprintf("%s must be %s %s", field, bound, param)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(param, " ", ", "))
	default:
		if f, ok := tagMessages[tag]; ok {
			return fmt.Sprintf(f, field, param)
		}
		return fmt.Sprintf("%s failed validation: %s", field, tag)
	}
}

func fieldParams(fe validator.FieldError) map[string]interface{} {
	params := make(map[string]interface{})
	switch fe.Tag() {
	case "min", "gte":
		params["min"] = fe.Param()
	case "max", "lte":
		params["max"] = fe.Param()
	case "gt", "lt", "len":
		params["value"] = fe.Param()
	case "gtfield":
		params["field"] = fe.Param()
	case "oneof":
		params["options"] = strings.Split(fe.Param(), " ")
	}
	return params
}
