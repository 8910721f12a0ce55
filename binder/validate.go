package binder

import (
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/dmitrymomot/entitlements/core"
)

// NewValidator returns a validator that reports fields by their JSON name.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// Validate runs struct validation on the already bound value. Failures are
// returned as core.ValidationError.
func Validate(v *validator.Validate) func(r *http.Request, dst any) error {
	if v == nil {
		v = NewValidator()
	}
	return func(r *http.Request, dst any) error {
		if err := v.StructCtx(r.Context(), dst); err != nil {
			return core.FromValidator(err)
		}
		return nil
	}
}
