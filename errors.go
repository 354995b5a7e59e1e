package recipeagent

import (
	"context"
	"errors"
	"net"
	"net/http"
)

// Error kinds surfaced to the caller of a turn.
var (
	ErrValidation      = errors.New("validation error")
	ErrPayloadTooLarge = errors.New("payload too large")
	ErrDomainRefusal   = errors.New("request is outside the recipe domain")
	ErrInternal        = errors.New("internal error")
)

// Error carries a user-safe message together with its kind. The wrapped
// cause is kept for logs and never rendered to users.
type Error struct {
	Kind error
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Msg != "" {
		return e.Kind.Error() + ": " + e.Msg
	}
	return e.Kind.Error()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func NewError(kind error, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: cause}
}

// StatusCode maps an error to the HTTP status the outer layer should use.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrDomainRefusal):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// StatusFor is StatusCode for a whole turn outcome; a refused turn is a
// 422 even though HandleTurn returns no error for it.
func StatusFor(resp Response, err error) int {
	if err == nil && resp.Refused {
		return http.StatusUnprocessableEntity
	}
	return StatusCode(err)
}

// UserMessage returns the text that may be shown to a user for err.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Msg != "" {
		return e.Msg
	}
	switch StatusCode(err) {
	case http.StatusBadRequest:
		return "The request was not valid."
	case http.StatusRequestEntityTooLarge:
		return "The upload is too large."
	case http.StatusUnprocessableEntity:
		return "I can only help with recipes and cooking."
	}
	return "Something went wrong on our side. Please try again."
}

type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient marks err as worth retrying.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err may succeed if the call is repeated.
// Explicitly marked errors, deadlines and network timeouts qualify;
// cancellation by the caller does not.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var te *transientError
	if errors.As(err, &te) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
