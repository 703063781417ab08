// Package apperr defines the error classes shared by the ingestion and chat
// paths. Call sites still wrap with fmt.Errorf; the Kind survives wrapping.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindConfig     Kind = "config"
	KindTransport  Kind = "transport"
	KindUpstream   Kind = "upstream"
	KindValidation Kind = "validation"
	KindRateLimit  Kind = "rate_limit"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
)

type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, msg)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func Config(op, message string) *Error     { return New(KindConfig, op, message) }
func Validation(op, message string) *Error { return New(KindValidation, op, message) }
func NotFound(op, message string) *Error   { return New(KindNotFound, op, message) }
func Conflict(op, message string) *Error   { return New(KindConflict, op, message) }

// KindOf returns the Kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message returns the human-readable part of the first *Error in err's chain.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Message != "" {
			return e.Message
		}
		if e.Err != nil {
			return e.Err.Error()
		}
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
