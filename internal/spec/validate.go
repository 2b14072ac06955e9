package spec

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// validate is shared by all entities. Field names in errors are the form
// field names taken from the `p4` struct tag.
var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := f.Tag.Get("p4")
		if name == "" || name == "-" {
			return f.Name
		}

		return name
	})

	mustRegister(validate, "p4id", func(fl validator.FieldLevel) bool {
		return idProblem(fl.Field().String()) == ""
	})
	mustRegister(validate, "depotpath", func(fl validator.FieldLevel) bool {
		return strings.HasPrefix(fl.Field().String(), "//")
	})
}

// mustRegister adds a custom validation tag, panicking if the validator
// refuses it.
func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register %q validation: %v", tag, err))
	}
}

// idProblem returns why id is not a valid spec identifier, or "" when it
// is valid.
func idProblem(id string) string {
	switch {
	case id == "":
		return "Id is required."
	case strings.IndexFunc(id, unicode.IsSpace) >= 0:
		return "Whitespace is not permitted in ids."
	case strings.HasPrefix(id, "-"):
		return "First character cannot be minus (-)."
	case strings.ContainsAny(id, "@#%*"):
		return "Revision characters ('@', '#') and wildcards " +
			"('%', '*') are not permitted."
	case strings.Contains(id, "..."):
		return "Ellipsis (...) is not permitted in ids."
	case isNumeric(id):
		return "Purely numeric values are not allowed."
	}

	return ""
}

// ValidateID checks a spec identifier.
func ValidateID(field, id string) error {
	if msg := idProblem(id); msg != "" {
		kind := InvalidFormat
		if id == "" {
			kind = Required
		}

		return NewValidationError(kind, field, msg)
	}

	return nil
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}

	return true
}

// validateStruct runs the struct tags of v and converts failures into a
// ValidationError.
func validateStruct(v any) *ValidationError {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return NewValidationError(InvalidType, "", err.Error())
	}

	out := &ValidationError{}
	for _, fe := range fieldErrs {
		switch fe.Tag() {
		case "required":
			out.Add(Required, fe.Field(), "Value is required.")

		case "oneof":
			out.Add(InvalidType, fe.Field(), "Value must be one of: "+
				fe.Param()+".")

		case "p4id":
			out.Add(InvalidFormat, fe.Field(),
				idProblem(fmt.Sprint(fe.Value())))

		case "depotpath":
			out.Add(InvalidFormat, fe.Field(),
				"Path must begin with '//'.")

		default:
			out.Add(InvalidFormat, fe.Field(), "Failed '"+fe.Tag()+
				"' check.")
		}
	}

	return out
}
