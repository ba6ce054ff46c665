package client

import (
	"fmt"
	"net/http"
)

// ErrorClass represents a classification of request errors.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassUnexpected represents any other non-2xx status.
	ErrorClassUnexpected ErrorClass = "unexpected"
)

// TransportError is a network-layer failure on any request.
type TransportError struct {
	Method string
	URL    string
	Class  ErrorClass
	Err    error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %s error: %v", e.Method, e.URL, e.Class, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// StatusError is a response that arrived with a non-2xx status.
type StatusError struct {
	URL        string
	StatusCode int
	Class      ErrorClass
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: %s error (status %d %s)",
		e.URL, e.Class, e.StatusCode, http.StatusText(e.StatusCode))
}

// classifyStatus categorizes a non-2xx status for observability.
func classifyStatus(code int) ErrorClass {
	switch {
	case code >= 400 && code < 500:
		return ErrorClassClient
	case code >= 500:
		return ErrorClassServer
	default:
		return ErrorClassUnexpected
	}
}
