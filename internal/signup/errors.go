package signup

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the closed set of failures a signup surfaces to its caller. Lost
// races and secondary-effect failures never become a Kind; they degrade or
// turn into a warning on a successful response.
type Kind int

const (
	KindInput Kind = iota + 1
	KindAuth
	KindConflict
	KindNotFound
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindAuth:
		return "auth"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindFatal:
		return "fatal"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// HTTPStatus maps the kind onto the signup endpoint's status codes.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindInput:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Kind.String() + ": " + e.Msg + ": " + e.Err.Error()
	}
	return e.Kind.String() + ": " + e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func inputError(msg string) *Error    { return &Error{Kind: KindInput, Msg: msg} }
func notFoundError(msg string) *Error { return &Error{Kind: KindNotFound, Msg: msg} }
func conflictError(msg string) *Error { return &Error{Kind: KindConflict, Msg: msg} }

func authError(msg string, err error) *Error {
	return &Error{Kind: KindAuth, Msg: msg, Err: err}
}

func fatalError(msg string, err error) *Error {
	return &Error{Kind: KindFatal, Msg: msg, Err: err}
}

// KindOf reports the Kind of err; anything that is not an *Error is fatal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindFatal
}
