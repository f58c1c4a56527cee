// Package validation wires custom field validators into gin's binding
// engine and formats validation failures for API responses.
package validation

import (
	"regexp"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var (
	// Agent names are what operators type into /api/forward; keep them to a
	// shell- and URL-safe subset.
	agentNameRegex = regexp.MustCompile(`^[a-zA-Z0-9_.-]{1,64}$`)

	// Uppercase HTTP verbs plus the reserved heartbeat method.
	methodRegex = regexp.MustCompile(`^(GET|POST|PUT|PATCH|DELETE|HEAD|OPTIONS|HEARTBEAT)$`)
)

// Register installs the custom validators on gin's default binding validator.
// Call once at startup before any request is served.
func Register() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterValidation("agentname", validateAgentName)
		v.RegisterValidation("httpverb", validateHTTPVerb)
	}
}

func validateAgentName(fl validator.FieldLevel) bool {
	return agentNameRegex.MatchString(fl.Field().String())
}

func validateHTTPVerb(fl validator.FieldLevel) bool {
	return methodRegex.MatchString(fl.Field().String())
}

// FieldError is one field-level validation failure.
type FieldError struct {
	Field string `json:"field"`
	Tag   string `json:"tag"`
	Value string `json:"value,omitempty"`
}

// FormatError flattens a validator error into field-level details the API
// can return. Non-validator errors yield nil.
func FormatError(err error) []FieldError {
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return nil
	}

	out := make([]FieldError, 0, len(validationErrors))
	for _, e := range validationErrors {
		out = append(out, FieldError{
			Field: e.Field(),
			Tag:   e.Tag(),
			Value: e.Param(),
		})
	}
	return out
}
