package activityapi

import (
	"errors"
	"fmt"
)

// ValidationError is a client-side rejection that never reaches the network.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NetworkError indicates that no response was received.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// HTTPError is a non-2xx response. Message carries the server-provided
// message when the body has one.
type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	return e.Message
}

// TimeoutError indicates a request exceeded its deadline.
type TimeoutError struct {
	Op      string
	Timeout string
}

func (e *TimeoutError) Error() string {
	if e.Timeout == "" {
		return fmt.Sprintf("%s timed out", e.Op)
	}
	return fmt.Sprintf("%s timed out after %s", e.Op, e.Timeout)
}

// ParseError indicates a success response whose body could not be understood.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse server response: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// IsRetryable reports whether an error may succeed on a later attempt.
// Validation failures are final; everything else is worth another try.
func IsRetryable(err error) bool {
	var validation *ValidationError
	return err != nil && !errors.As(err, &validation)
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Status
	}
	return 0
}
