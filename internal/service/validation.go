package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/iliyamo/video-share-api/internal/utils"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report fields by their wire name so messages match what clients sent
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	// bcrypt refuses inputs longer than 72 bytes; max counts runes
	_ = v.RegisterValidation("pwbytes", func(fl validator.FieldLevel) bool {
		return len(fl.Field().String()) <= utils.MaxPasswordBytes
	})
	return v
}

var fieldLabels = map[string]string{
	"username":        "Username",
	"email":           "Email",
	"fullName":        "Full Name",
	"password":        "Password",
	"currentPassword": "Current password",
	"newPassword":     "New password",
}

// validateStruct runs every rule on s and returns one message per failed
// field.  It never stops at the first failure.
func validateStruct(s any) []string {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return []string{err.Error()}
	}
	out := make([]string, 0, len(ves))
	for _, fe := range ves {
		out = append(out, fieldMessage(fe))
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	label, ok := fieldLabels[fe.Field()]
	if !ok {
		label = fe.Field()
	}
	switch fe.Tag() {
	case "required":
		return label + " is required."
	case "min":
		return fmt.Sprintf("%s must be at least %s characters long.", label, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be less than %s characters long.", label, fe.Param())
	case "email":
		return label + " must be a valid email address."
	case "pwbytes":
		return fmt.Sprintf("%s must be at most %d bytes long.", label, utils.MaxPasswordBytes)
	case "nefield":
		return label + " must differ from the current password."
	}
	return label + " is invalid."
}
