// Package fault defines the error taxonomy shared by the chat components.
// Every error carries a Kind so handlers can map it to a user-visible reply
// and loggers can report a stable err_code.
package fault

import (
	"errors"
	"strings"
)

// Kind classifies a chat failure.
type Kind string

const (
	MissingUsername Kind = "missing_username"
	MissingArgument Kind = "missing_argument"
	InvalidNumber   Kind = "invalid_number"
	EmptyTranscript Kind = "empty_transcript"
	ServiceError    Kind = "service_error"
	DeliveryError   Kind = "delivery_error"
)

// Error is a classified chat failure. Op names the operation that failed,
// Detail carries a short machine-friendly qualifier (command name, upstream
// error class) and Err the wrapped cause, if any.
type Error struct {
	Kind   Kind
	Op     string
	Detail string
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if e.Detail != "" {
		b.WriteString(" (")
		b.WriteString(e.Detail)
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes the cause for errors.Is/As.
func (e *Error) Unwrap() error { return e.Err }

// Code reports the kind in upper snake case; the telegram handler summary
// logs it as err_code.
func (e *Error) Code() string { return strings.ToUpper(string(e.Kind)) }

// Is matches any *Error of the same kind, so sentinel values work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Detail == "" && t.Err == nil
}

// Sentinels usable as errors.Is targets.
var (
	ErrMissingUsername = &Error{Kind: MissingUsername}
	ErrMissingArgument = &Error{Kind: MissingArgument}
	ErrInvalidNumber   = &Error{Kind: InvalidNumber}
	ErrEmptyTranscript = &Error{Kind: EmptyTranscript}
	ErrService         = &Error{Kind: ServiceError}
	ErrDelivery        = &Error{Kind: DeliveryError}
)

// New builds a classified error.
func New(kind Kind, op, detail string, err error) *Error {
	return &Error{Kind: kind, Op: op, Detail: detail, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// DetailOf returns the detail of the first *Error in err's chain, or "".
func DetailOf(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Detail
	}
	return ""
}
