// Package apperr is the error taxonomy shared by the check-in engine and
// its adapters. Every failure the engine surfaces carries one Code.
package apperr

import (
	"errors"
	"fmt"
)

type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches any *Error carrying the same code, so callers can test
// errors.Is(err, apperr.ErrNotFound) regardless of the message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func Wrap(code Code, message string, cause error) error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func InvalidInput(msg string) error { return New(CodeInvalidInput, msg) }

func NotFound(msg string) error { return New(CodeNotFound, msg) }

func Internal(msg string, cause error) error { return Wrap(CodeInternal, msg, cause) }

// TooFarError is the admission gate rejection. It carries the measured
// distance so adapters can tell the student how far off they are.
type TooFarError struct {
	DistanceMeters float64
	AllowedRadius  int
	LocationName   string
}

func (e *TooFarError) Error() string {
	return fmt.Sprintf("too far from %s: %.0fm away, allowed radius is %dm",
		e.LocationName, e.DistanceMeters, e.AllowedRadius)
}

func (e *TooFarError) Is(target error) bool {
	var t *Error
	return errors.As(target, &t) && t.Code == CodeTooFar
}

func TooFar(distance float64, radius int, locationName string) error {
	return &TooFarError{DistanceMeters: distance, AllowedRadius: radius, LocationName: locationName}
}

// CodeOf returns the code of the first *Error or *TooFarError in err's
// chain. Errors outside the taxonomy report CodeInternal.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var tf *TooFarError
	if errors.As(err, &tf) {
		return CodeTooFar
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// MessageOf returns the user-facing message for err, hiding the cause of
// internal failures.
func MessageOf(err error) string {
	var tf *TooFarError
	if errors.As(err, &tf) {
		return tf.Error()
	}
	var e *Error
	if errors.As(err, &e) && e.Code != CodeInternal {
		return e.Message
	}
	return "internal error"
}
