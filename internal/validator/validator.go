package validator

import (
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var revisionPattern = regexp.MustCompile(`^[0-9a-f]{12}$`)

// Validates and reports errors by the names used in config files and
// requests
type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i any) error {
	return cv.validator.Struct(i)
}

// "head" or a revision ID
func ValidRevision(s string) bool {
	return s == "head" || revisionPattern.MatchString(s)
}

func validateRevision(fl validator.FieldLevel) bool {
	return ValidRevision(fl.Field().String())
}

func Create() CustomValidator {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		for _, tag := range []string{"mapstructure", "param"} {
			name := strings.SplitN(field.Tag.Get(tag), ",", 2)[0]
			if name != "" {
				return name
			}
		}

		jsonName := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if jsonName == "-" {
			return ""
		}
		if jsonName == "-," {
			return "-"
		}
		return jsonName
	})

	// only fails on programmer error
	_ = validate.RegisterValidation("revision", validateRevision)

	return CustomValidator{validator: validate}
}
