package usecase

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	ErrorInvalidInput    ErrorCode = "INVALID_INPUT"
	ErrorSessionNotFound ErrorCode = "SESSION_NOT_FOUND"
	ErrorInternal        ErrorCode = "INTERNAL_ERROR"
)

// Reasons refine a code for logs and for callers that phrase their own
// message, such as the empty-input prompt.
const (
	ReasonEmptyInput       = "empty_input"
	ReasonInputTooLong     = "input_too_long"
	ReasonMissingSessionID = "missing_session_id"
	ReasonUnknownSession   = "unknown_session"
	ReasonSessionRead      = "session_read_error"
	ReasonSessionWrite     = "session_write_error"
)

// Error is returned by SalesService for every failure a caller must map to a
// response. Err is the underlying cause, when there is one.
type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

// CodeOf returns the code carried by err, or ErrorInternal for errors that
// did not come from the use case.
func CodeOf(err error) ErrorCode {
	var ue *Error
	if errors.As(err, &ue) && ue.Code != "" {
		return ue.Code
	}
	return ErrorInternal
}

// ReasonOf returns the reason carried by err, or "" when there is none.
func ReasonOf(err error) string {
	var ue *Error
	if errors.As(err, &ue) {
		return ue.Reason
	}
	return ""
}

// IsEmptyInput reports whether err rejected a blank user message.
func IsEmptyInput(err error) bool {
	return CodeOf(err) == ErrorInvalidInput && ReasonOf(err) == ReasonEmptyInput
}
