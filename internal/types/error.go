package types

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Body of every error response
type Error struct {
	// Per-field reasons for validation failures
	Fields  map[string]string `json:"fields,omitempty"`
	Message string            `json:"message"`
}

func StringError(err string) Error {
	return Error{Message: err}
}

func ValidationError(err error) Error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return Error{Message: "validation error"}
	}

	fields := make(map[string]string, len(validationErrors))
	for _, fieldError := range validationErrors {
		fields[fieldError.Field()] = fmt.Sprintf("failed %q check", fieldError.Tag())
	}

	return Error{Message: "validation error", Fields: fields}
}
