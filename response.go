package repositories

import (
	"fmt"
	"net/http"
)

// Response is the uniform envelope returned by every repository operation.
//
// A succeeded Response carries the Value (and optionally the backend StatusCode) and never a Message or Err.
// A failed Response always carries a Message. Err is only set when the failure was unexpected
// (transport or unclassified backend failure); cataloged business outcomes like "not found" leave Err nil
// so callers can branch on them without treating them as incidents.
type Response[T any] struct {
	Succeeded  bool   `json:"succeeded"`
	Value      T      `json:"value,omitempty"`
	Message    string `json:"message,omitempty"`
	Err        error  `json:"-"`
	StatusCode int    `json:"status_code,omitempty"`
}

// Succeeded returns a succeeded Response wrapping value.
func Succeeded[T any](value T) Response[T] {
	return Response[T]{
		Succeeded: true,
		Value:     value,
	}
}

// SucceededWithStatus returns a succeeded Response wrapping value and the backend status code.
func SucceededWithStatus[T any](value T, statusCode int) Response[T] {
	return Response[T]{
		Succeeded:  true,
		Value:      value,
		StatusCode: statusCode,
	}
}

// Failed returns a failed Response. An empty message is replaced by err's text, or by the
// status text when err is nil too, so a failed Response never lacks a Message.
func Failed[T any](message string, err error, statusCode int) Response[T] {
	if message == "" {
		switch {
		case err != nil:
			message = err.Error()
		case statusCode > 0:
			message = http.StatusText(statusCode)
		default:
			message = "operation failed"
		}
	}
	return Response[T]{
		Message:    message,
		Err:        err,
		StatusCode: statusCode,
	}
}

// ResponseFrom re-types a failed Response, carrying over Message, Err & StatusCode.
// Value of a succeeded source is dropped, use it for failure propagation only.
func ResponseFrom[T any, U any](r Response[U]) Response[T] {
	return Response[T]{
		Succeeded:  r.Succeeded,
		Message:    r.Message,
		Err:        r.Err,
		StatusCode: r.StatusCode,
	}
}

// IsExpectedFailure reports whether the Response is a failure that was classified as an expected business outcome.
func (r Response[T]) IsExpectedFailure() bool {
	return !r.Succeeded && r.Err == nil
}

// Unwrap returns the Value and a nil error on success, otherwise the zero value and an error describing the failure.
func (r Response[T]) Unwrap() (T, error) {
	if r.Succeeded {
		return r.Value, nil
	}
	var zero T
	if r.Err != nil {
		return zero, fmt.Errorf("%s: %w", r.Message, r.Err)
	}
	return zero, fmt.Errorf("%s (status %d)", r.Message, r.StatusCode)
}

// ErrorText returns the underlying error text, if any. Used when the envelope gets serialized.
func (r Response[T]) ErrorText() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}
