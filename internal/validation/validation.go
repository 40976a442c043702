// README: Request validation built on validator/v10.
package validation

import (
	validatorv10 "github.com/go-playground/validator/v10"
)

var validate = validatorv10.New()

// Struct validates the tagged fields of a request struct.
func Struct(v any) error {
	return validate.Struct(v)
}

// ErrorsToMap flattens validator errors into field → message pairs for responses.
func ErrorsToMap(err error) map[string]string {
	out := map[string]string{}
	if ve, ok := err.(validatorv10.ValidationErrors); ok {
		for _, fe := range ve {
			out[fe.Field()] = "failed on " + fe.Tag()
		}
		return out
	}
	out["error"] = err.Error()
	return out
}
