package chat

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindValidation Kind = iota + 1
	KindAuthorization
	KindNotFound
	KindPersistence
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not found"
	case KindPersistence:
		return "persistence"
	default:
		return "unknown"
	}
}

var (
	ErrValidation    = &Error{Kind: KindValidation}
	ErrAuthorization = &Error{Kind: KindAuthorization}
	ErrNotFound      = &Error{Kind: KindNotFound}
	ErrPersistence   = &Error{Kind: KindPersistence}
)

// Error is returned by every Registry and MessageStore operation that fails.
// errors.Is matches any two Errors of the same Kind.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", msg, e.Err.Error())
	}

	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Retryable reports whether the caller may repeat the action.
func (e *Error) Retryable() bool {
	return e.Kind == KindPersistence
}

func validationError(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

func authorizationError(msg string) *Error {
	return &Error{Kind: KindAuthorization, Message: msg}
}

func notFoundError(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

const persistenceMessage = "storage unavailable, try again later"

// persistenceError keeps op for the logs and shows clients a fixed message.
func persistenceError(op string, err error) *Error {
	return &Error{Kind: KindPersistence, Message: persistenceMessage, Err: fmt.Errorf("%s: %w", op, err)}
}

// KindOf returns the Kind of err, or zero when err is not a chat error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
