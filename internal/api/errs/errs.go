// Package errs provides types and support related to web error functionality.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrCode represents an error classification independent of transport.
type ErrCode struct{ value int }

var (
	OK                 = ErrCode{value: 0}
	InvalidArgument    = ErrCode{value: 3}
	NotFound           = ErrCode{value: 5}
	AlreadyExists      = ErrCode{value: 6}
	ResourceExhausted  = ErrCode{value: 8}
	FailedPrecondition = ErrCode{value: 9}
	Aborted            = ErrCode{value: 10}
	Internal           = ErrCode{value: 13}
	Unavailable        = ErrCode{value: 14}
)

var codeNames = map[int]string{
	0:  "ok",
	3:  "invalid_argument",
	5:  "not_found",
	6:  "already_exists",
	8:  "resource_exhausted",
	9:  "failed_precondition",
	10: "aborted",
	13: "internal",
	14: "unavailable",
}

var httpStatus = map[int]int{
	0:  http.StatusOK,
	3:  http.StatusBadRequest,
	5:  http.StatusNotFound,
	6:  http.StatusConflict,
	8:  http.StatusTooManyRequests,
	9:  http.StatusConflict,
	10: http.StatusConflict,
	13: http.StatusInternalServerError,
	14: http.StatusServiceUnavailable,
}

// String returns the code's wire name.
func (ec ErrCode) String() string { return codeNames[ec.value] }

// HTTPStatus returns the HTTP status the code maps to.
func (ec ErrCode) HTTPStatus() int {
	if status, ok := httpStatus[ec.value]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// Error represents an error in the system classified with an ErrCode.
type Error struct {
	Code    ErrCode `json:"code"`
	Message string  `json:"message"`
}

// New constructs an error based on an app error.
func New(code ErrCode, err error) *Error {
	return &Error{Code: code, Message: err.Error()}
}

// Newf constructs an error based on an error format.
func Newf(code ErrCode, format string, v ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, v...)}
}

// Error implements the error interface.
func (e *Error) Error() string { return e.Message }

// HTTPStatus returns the HTTP status for the error's code.
func (e *Error) HTTPStatus() int { return e.Code.HTTPStatus() }

// IsError tests the concrete error is of the Error type.
func IsError(err error) bool {
	var er *Error
	return errors.As(err, &er)
}

// GetError returns a copy of the Error pointer from the error chain.
func GetError(err error) *Error {
	var er *Error
	if !errors.As(err, &er) {
		return nil
	}
	return er
}
