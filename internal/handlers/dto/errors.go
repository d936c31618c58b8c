package dto

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// FormKey holds errors that do not belong to a single field.
const FormKey = "Form"

// FieldErrors maps a form struct field name to a message shown next to it.
type FieldErrors map[string]string

func (e FieldErrors) Add(field, message string) {
	if _, ok := e[field]; !ok {
		e[field] = message
	}
}

func (e FieldErrors) Any() bool {
	return len(e) > 0
}

// FromBinding turns a gin binding error into field messages.
func FromBinding(err error) FieldErrors {
	out := FieldErrors{}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		out.Add(FormKey, "Invalid form submission.")
		return out
	}
	for _, fe := range verrs {
		out.Add(fe.Field(), message(fe))
	}
	return out
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "email":
		return "Invalid email address."
	case "min":
		return fmt.Sprintf("Field must be at least %s characters long.", fe.Param())
	case "max":
		return fmt.Sprintf("Field cannot be longer than %s characters.", fe.Param())
	case "eqfield":
		return "Field must be equal to password."
	case "gt":
		return fmt.Sprintf("Number must be greater than %s.", fe.Param())
	default:
		return "Invalid value."
	}
}
