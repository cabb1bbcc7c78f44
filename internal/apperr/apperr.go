package apperr

import (
	"context"
	"errors"

	"golang.org/x/text/language"

	"github.com/fleettrack/backend/internal/i18n"
	"github.com/fleettrack/backend/pkg/database"
)

// Error is a coded failure. Args fill the code's message template.
type Error struct {
	Code  Code
	Args  []any
	Cause error
}

// New creates an error for code.
func New(code Code, args ...any) *Error {
	return &Error{Code: code, Args: args}
}

// Wrap creates an error for code that keeps cause for logging.
func Wrap(code Code, cause error, args ...any) *Error {
	return &Error{Code: code, Args: args, Cause: cause}
}

func (e *Error) Error() string {
	msg := i18n.Default().Base(string(e.Code), e.Args...)
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Localize renders the user-facing message for tag. The cause is never included.
func (e *Error) Localize(b *i18n.Bundle, tag language.Tag) string {
	return b.Sprintf(tag, string(e.Code), e.Args...)
}

// CodeOf returns the code carried by err, or CodeInternal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// Is reports whether err carries code.
func Is(err error, code Code) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

// Upstream classifies a failure of an external call. Coded errors pass through,
// deadline overruns become UpstreamTimeout and anything else UpstreamUnavailable.
func Upstream(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(CodeUpstreamTimeout, err)
	}
	return Wrap(CodeUpstreamUnavailable, err)
}

// Store classifies a repository failure. Missing rows become notFound and
// anything uncoded is treated as an upstream failure.
func Store(err error, notFound Code) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, database.ErrNotFound) {
		return New(notFound)
	}
	return Upstream(err)
}
