// Package errs defines the typed error taxonomy surfaced to clients.
// Pipeline code wraps causes with fmt.Errorf as usual; only failures that
// change the caller-visible outcome get a Code.
package errs

import (
	"errors"
	"fmt"
)

type Code string

const (
	CodeUnsupportedCodec      Code = "UNSUPPORTED_CODEC"
	CodeCorruptContainer      Code = "CORRUPT_CONTAINER"
	CodeDetectorUnavailable   Code = "DETECTOR_UNAVAILABLE"
	CodeUnknownFrameReference Code = "UNKNOWN_FRAME_REFERENCE"
	CodeStorageFailure        Code = "STORAGE_FAILURE"
	CodeOversizedUpload       Code = "OVERSIZED_UPLOAD"
	CodeInvalidRequest        Code = "INVALID_REQUEST"
	CodeJobNotFound           Code = "JOB_NOT_FOUND"
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

func (e *Error) Unwrap() error { return e.Err }

func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func Wrap(code Code, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf extracts the taxonomy code from err, if any.
func CodeOf(err error) (Code, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return "", false
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	c, ok := CodeOf(err)
	return ok && c == code
}
