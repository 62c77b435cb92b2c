package repositories

import (
	"errors"
	"fmt"
)

// ErrorCode enumerates caller/programmer error conditions detected before any network attempt.
type ErrorCode int

const (
	Unknown ErrorCode = iota
	NilArgument
	EmptyArgument
	InvalidArgument
)

func (c ErrorCode) String() string {
	switch c {
	case NilArgument:
		return "nil argument"
	case EmptyArgument:
		return "empty argument"
	case InvalidArgument:
		return "invalid argument"
	default:
		return "unknown"
	}
}

// Error is the caller error type. UserData typically holds the offending argument name.
type Error struct {
	Code     ErrorCode
	Err      error
	UserData any
}

func (e Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%v, user data: %v", e.Code, e.UserData)
	}
	return fmt.Errorf("%v, user data: %v, details: %w", e.Code, e.UserData, e.Err).Error()
}

func (e Error) Unwrap() error {
	return e.Err
}

// Is matches another Error by Code so callers can do errors.Is(err, repositories.Error{Code: NilArgument}).
func (e Error) Is(target error) bool {
	var t Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// NewNilArgumentError returns an Error for a required argument that was nil.
func NewNilArgumentError(name string) error {
	return Error{
		Code:     NilArgument,
		Err:      fmt.Errorf("%s can't be nil", name),
		UserData: name,
	}
}

// NewEmptyArgumentError returns an Error for a required argument that was empty.
func NewEmptyArgumentError(name string) error {
	return Error{
		Code:     EmptyArgument,
		Err:      fmt.Errorf("%s can't be empty", name),
		UserData: name,
	}
}

// NewInvalidArgumentError returns an Error for an argument with an unsupported value.
func NewInvalidArgumentError(name string, reason string) error {
	return Error{
		Code:     InvalidArgument,
		Err:      fmt.Errorf("%s is invalid, %s", name, reason),
		UserData: name,
	}
}

// IsCallerError reports whether err is (or wraps) a caller Error.
func IsCallerError(err error) bool {
	var e Error
	return errors.As(err, &e)
}
