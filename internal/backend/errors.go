package backend

import (
	"errors"
	"fmt"
)

// ErrorCode is the machine readable code a backend operation fails with.
// Codes are surfaced to callers untranslated.
type ErrorCode string

const (
	ErrNameRequired        ErrorCode = "ERR_NAME_REQUIRED"
	ErrNameExists          ErrorCode = "ERR_NAME_EXISTS"
	ErrNameInvalid         ErrorCode = "ERR_NAME_INVALID"
	ErrMsixvcNotSpecified  ErrorCode = "ERR_MSIXVC_NOT_SPECIFIED"
	ErrExtract             ErrorCode = "ERR_EXTRACT"
	ErrLaunchGame          ErrorCode = "ERR_LAUNCH_GAME"
	ErrIO                  ErrorCode = "ERR_IO"
	ErrInheritSource       ErrorCode = "ERR_INHERIT_SOURCE_NOT_FOUND"
	ErrLoaderUnavailable   ErrorCode = "ERR_LOADER_UNAVAILABLE"
	ErrDownload            ErrorCode = "ERR_DOWNLOAD"
	ErrCancelled           ErrorCode = "ERR_CANCELLED"
	ErrNotImplemented      ErrorCode = "ERR_NOT_IMPLEMENTED"
	ErrDependencyInstaller ErrorCode = "ERR_DEPENDENCY_INSTALLER"
	ErrUnknown             ErrorCode = "ERR_UNKNOWN"
)

// Error carries a backend error code together with the operation that
// produced it. Label is the human readable type name ("Release"/"Preview")
// used for message interpolation.
type Error struct {
	Code  ErrorCode
	Op    string
	Label string
	Err   error
}

func (e *Error) Error() string {
	msg := string(e.Code)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by code so callers can compare against Fail(code).
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return other.Code == e.Code && other.Op == "" && other.Err == nil
}

// Fail builds an *Error for op with the given code.
func Fail(op string, code ErrorCode, err error) *Error {
	return &Error{Code: code, Op: op, Err: err}
}

// Code returns a bare error usable as an errors.Is target.
func Code(code ErrorCode) error {
	return &Error{Code: code}
}

// CodeOf extracts the error code carried by err. Errors that do not carry
// a code report ErrUnknown; nil reports an empty code.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var be *Error
	if errors.As(err, &be) {
		return be.Code
	}
	return ErrUnknown
}

// WithLabel returns a copy of err annotated with label. Errors without a
// code are wrapped under ErrUnknown.
func WithLabel(err error, label string) error {
	if err == nil {
		return nil
	}
	var be *Error
	if errors.As(err, &be) {
		cp := *be
		cp.Label = label
		return &cp
	}
	return &Error{Code: ErrUnknown, Label: label, Err: err}
}
