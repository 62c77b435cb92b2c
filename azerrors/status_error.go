package azerrors

import "fmt"

// StatusError is a backend failure translated to a status code and error code. Backends return it for
// native conditions the catalog knows about so classification can do a structured match.
type StatusError struct {
	Status  int
	Code    string
	Message string
	Err     error
}

// NewStatusError returns a StatusError for the catalog entry, wrapping the native cause (may be nil).
func NewStatusError(e AzError, cause error) *StatusError {
	return &StatusError{
		Status:  e.Status,
		Code:    e.Code,
		Message: e.Message,
		Err:     cause,
	}
}

func (e *StatusError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (%s, status %d), details: %v", e.Message, e.Code, e.Status, e.Err)
	}
	return fmt.Sprintf("%s (%s, status %d)", e.Message, e.Code, e.Status)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// ErrorCode returns the error code.
func (e *StatusError) ErrorCode() string {
	return e.Code
}

// HTTPStatusCode returns the status code.
func (e *StatusError) HTTPStatusCode() int {
	return e.Status
}
