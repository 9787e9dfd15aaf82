package marketdata

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/AldoManuel/juchifood/src/config"
	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

// Field names in errors are the JSON names, so they match what the client sent.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterValidation("campus_location", func(fl validator.FieldLevel) bool {
		return config.Config.IsValidLocation(fl.Field().String())
	})
	v.RegisterValidation("finite", func(fl validator.FieldLevel) bool {
		f := fl.Field().Float()
		return !math.IsNaN(f) && !math.IsInf(f, 0)
	})
	return v
}

var fieldMessages = map[string]string{
	"email":       "Please enter a valid email address.",
	"password":    fmt.Sprintf("The password must be at least %d characters long.", MinPasswordLength),
	"name":        "Please enter a name.",
	"description": "Please enter a description.",
	"location":    "Please choose one of the campus locations.",
	"price":       "The price must be a positive number.",
}

// Runs the struct's validate tags. The first failing field comes back as an
// *InputError.
func validateInput(in any) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return err
	}

	fe := fieldErrs[0]
	msg, ok := fieldMessages[fe.Field()]
	if !ok {
		msg = "This value is not valid."
	}
	return &InputError{Field: fe.Field(), Message: msg}
}

func trimPtr(s *string) *string {
	if s == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*s)
	return &trimmed
}
