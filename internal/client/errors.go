package client

import (
	"fmt"
	"net/http"
)

// StatusError reports a non-2xx response from the resource API.
type StatusError struct {
	Method string
	URL    string
	Code   int

	// Message is the "error" field of the response body, if any.
	Message string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Code)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.URL, e.Code, msg)
}
