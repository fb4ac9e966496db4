// Package generr provides the structured errors raised by the generation pipeline.
package generr

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType is the category of a generation error.
type ErrorType string

const (
	// TypeValidation indicates a sentiment score that is missing or outside [0,1].
	TypeValidation ErrorType = "validation"
	// TypeConfiguration indicates an unknown algorithm, bad dimensions or bad tuning.
	TypeConfiguration ErrorType = "configuration"
	// TypeNumericalInstability indicates a simulation that produced non-finite values.
	TypeNumericalInstability ErrorType = "numerical_instability"
)

// Error is a generation error with a type, message and optional context.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// HTTPStatus maps the error type to a status code for the HTTP collaborator.
func (e *Error) HTTPStatus() int {
	switch e.Type {
	case TypeValidation, TypeConfiguration:
		return http.StatusBadRequest
	case TypeNumericalInstability:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// ValidationError creates a new validation error.
func ValidationError(message string) *Error {
	return &Error{
		Type:    TypeValidation,
		Message: message,
		Context: make(map[string]any),
	}
}

// ConfigurationError creates a new configuration error.
func ConfigurationError(message string) *Error {
	return &Error{
		Type:    TypeConfiguration,
		Message: message,
		Context: make(map[string]any),
	}
}

// NumericalInstabilityError creates a new numerical instability error.
func NumericalInstabilityError(message string) *Error {
	return &Error{
		Type:    TypeNumericalInstability,
		Message: message,
		Context: make(map[string]any),
	}
}

// WithContext adds a context field to the error (chainable).
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// ErrorResponse is the JSON body sent to HTTP clients.
type ErrorResponse struct {
	Error   string         `json:"error"`
	Type    ErrorType      `json:"type"`
	Context map[string]any `json:"context,omitempty"`
}

// ToResponse converts an Error to an ErrorResponse.
func (e *Error) ToResponse() ErrorResponse {
	return ErrorResponse{
		Error:   e.Message,
		Type:    e.Type,
		Context: e.Context,
	}
}

// As returns the *Error in err's chain, if any.
func As(err error) (*Error, bool) {
	var ge *Error
	if errors.As(err, &ge) {
		return ge, true
	}
	return nil, false
}

func isType(err error, t ErrorType) bool {
	ge, ok := As(err)
	return ok && ge.Type == t
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool { return isType(err, TypeValidation) }

// IsConfiguration reports whether err is a configuration error.
func IsConfiguration(err error) bool { return isType(err, TypeConfiguration) }

// IsNumericalInstability reports whether err is a numerical instability error.
func IsNumericalInstability(err error) bool { return isType(err, TypeNumericalInstability) }
