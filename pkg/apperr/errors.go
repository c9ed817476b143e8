package apperr

import (
	"errors"
	"fmt"
)

// Code discriminates domain failures so callers can switch on the
// violation class instead of matching error strings.
type Code string

const (
	CodeNotFound           Code = "NOT_FOUND"
	CodeInvalidArgument    Code = "INVALID_ARGUMENT"
	CodePreconditionFailed Code = "PRECONDITION_FAILED"
	CodeExpired            Code = "EXPIRED"
	CodeConflict           Code = "CONFLICT"
	CodeInternal           Code = "INTERNAL"
)

type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func Wrap(code Code, err error, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

func NotFound(format string, args ...interface{}) *Error {
	return New(CodeNotFound, format, args...)
}

func InvalidArgument(format string, args ...interface{}) *Error {
	return New(CodeInvalidArgument, format, args...)
}

func PreconditionFailed(format string, args ...interface{}) *Error {
	return New(CodePreconditionFailed, format, args...)
}

func Expired(format string, args ...interface{}) *Error {
	return New(CodeExpired, format, args...)
}

func Conflict(format string, args ...interface{}) *Error {
	return New(CodeConflict, format, args...)
}

func Internal(err error, message string) *Error {
	return Wrap(CodeInternal, err, message)
}

// CodeOf extracts the discriminant from err, walking the wrap chain.
// Unrecognized errors report CodeInternal.
func CodeOf(err error) Code {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

// IsCode reports whether err carries the given discriminant.
func IsCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}
