package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so the HTTP layer can render it without
// inspecting messages.
type Kind string

const (
	KindAlreadyInitialized Kind = "already_initialized"
	KindNotFound           Kind = "not_found"
	KindAlreadyEnabled     Kind = "already_enabled"
	KindAlreadyDisabled    Kind = "already_disabled"
	KindNotEnabled         Kind = "not_enabled"
	KindInvalidAmount      Kind = "invalid_amount"
	KindInsufficientFunds  Kind = "insufficient_funds"
	KindDuplicateReference Kind = "duplicate_reference"
	KindInvalidRequest     Kind = "invalid_request"
	KindUnauthorized       Kind = "unauthorized"
	KindUnavailable        Kind = "unavailable"
	KindInternal           Kind = "internal"
)

// Error is a classified failure. Subject names the offending identifier
// (customer xid, reference id, ...) when there is one.
type Error struct {
	Kind    Kind
	Subject string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds a classified error.
func New(kind Kind, subject, message string) *Error {
	return &Error{Kind: kind, Subject: subject, Message: message}
}

// Wrap classifies an underlying error.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Unavailable marks a store or infrastructure failure that is safe to retry.
func Unavailable(err error) *Error {
	return Wrap(KindUnavailable, "service unavailable", err)
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// Message returns the user-facing message for err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return "internal error"
}

// ClientCorrectable reports whether the caller can fix the failure by
// changing the request.
func (k Kind) ClientCorrectable() bool {
	switch k {
	case KindUnavailable, KindInternal, KindUnauthorized:
		return false
	default:
		return true
	}
}
