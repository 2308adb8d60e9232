package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Error bodies returned by the resource routes.
const (
	msgValidationFailed = "Validation failed"
	msgFetchFailed      = "Failed to fetch resources"
	msgFetchOneFailed   = "Failed to fetch resource"
	msgCreateFailed     = "Failed to create resource"
	msgNotFound         = "Resource not found"
)

// ErrValidationFailed matches every *ValidationError.
var ErrValidationFailed = errors.New("validation failed")

// FieldError describes one invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError reports invalid request input.
type ValidationError struct {
	Details []FieldError
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Details))
	for _, d := range e.Details {
		parts = append(parts, d.Field+": "+d.Message)
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(parts, "; "))
}

// Is matches ErrValidationFailed.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Error   string       `json:"error"`
	Details []FieldError `json:"details,omitempty"`
}

// newValidationError converts a binding error into a ValidationError.
func newValidationError(err error) *ValidationError {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		details := make([]FieldError, 0, len(verrs))
		for _, fe := range verrs {
			details = append(details, FieldError{
				Field:   strings.ToLower(fe.Field()),
				Message: fieldMessage(fe),
			})
		}
		return &ValidationError{Details: details}
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &typeErr) && typeErr.Field != "":
		return &ValidationError{Details: []FieldError{{
			Field:   strings.ToLower(typeErr.Field),
			Message: "Expected " + typeErr.Type.String(),
		}}}
	case errors.Is(err, io.EOF):
		return &ValidationError{Details: []FieldError{{Field: "body", Message: "Request body is required"}}}
	case errors.As(err, &syntaxErr), errors.As(err, &typeErr), errors.Is(err, io.ErrUnexpectedEOF):
		return &ValidationError{Details: []FieldError{{Field: "body", Message: "Invalid JSON body"}}}
	default:
		return &ValidationError{Details: []FieldError{{Field: "body", Message: err.Error()}}}
	}
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch {
	case field == "Email":
		return "Invalid email"
	case fe.Tag() == "required", field == "Name" && fe.Tag() == "min":
		return field + " is required"
	case fe.Tag() == "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
