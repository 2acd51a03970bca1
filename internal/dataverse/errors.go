package dataverse

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound is wrapped by APIError for 404 responses.
	ErrNotFound = errors.New("record not found")
	// ErrThrottled is wrapped by APIError for 429 responses (service protection limits).
	ErrThrottled = errors.New("service protection limit exceeded")
	// ErrUnauthorized is wrapped by APIError for 401 and 403 responses.
	ErrUnauthorized = errors.New("not authorized")
)

// APIError is a non-success response of the Web API.
type APIError struct {
	StatusCode int
	// Code is the platform error code, e.g. 0x80040217.
	Code    string
	Message string
	Err     error
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.Code != "" {
		return fmt.Sprintf("dataverse: %d %s: %s", e.StatusCode, e.Code, msg)
	}
	return fmt.Sprintf("dataverse: %d: %s", e.StatusCode, msg)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// newAPIError maps a status code and decoded envelope to an APIError.
func newAPIError(status int, code, message string) *APIError {
	var sentinel error
	switch status {
	case http.StatusNotFound:
		sentinel = ErrNotFound
	case http.StatusTooManyRequests:
		sentinel = ErrThrottled
	case http.StatusUnauthorized, http.StatusForbidden:
		sentinel = ErrUnauthorized
	}
	return &APIError{StatusCode: status, Code: code, Message: message, Err: sentinel}
}
