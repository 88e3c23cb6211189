// Package validation checks configuration structs against their validate tags
// and reports failures as InvalidConfig errors.
package validation

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/Aidin1998/feedrelay/pkg/errors"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report fields by their configuration key rather than the Go name
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Struct validates s. It returns nil when every constraint holds, otherwise an
// InvalidConfig error explained by message with one field error per failure.
func Struct(s any, message string) *errors.Error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	invalid := errors.InvalidConfig.Explain("%s", message)

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return invalid.Wrap(err)
	}
	for _, fe := range verrs {
		invalid = invalid.WithField(fe.Tag(), fieldPath(fe.Namespace()), fe.Error())
	}
	return invalid
}

// fieldPath drops the root type name from a validator namespace.
func fieldPath(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}
