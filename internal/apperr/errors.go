// Package apperr defines the error taxonomy shared by every service.
//
// Administrative callers get InvalidUsage / NotFound / Forbidden errors whose
// messages are safe to show. Everything else is Internal and must be logged,
// never echoed.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for transport mapping.
type Kind int

const (
	KindInternal Kind = iota
	KindInvalidUsage
	KindNotFound
	KindForbidden
)

func (k Kind) String() string {
	switch k {
	case KindInvalidUsage:
		return "invalid_usage"
	case KindNotFound:
		return "resource_not_found"
	case KindForbidden:
		return "forbidden"
	default:
		return "internal_server_error"
	}
}

// Error is a classified error. Field names the offending input, if any.
type Error struct {
	Kind    Kind
	Message string
	Field   string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Message != "":
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	case e.Err != nil:
		return e.Err.Error()
	default:
		return e.Message
	}
}

func (e *Error) Unwrap() error { return e.Err }

// InvalidUsage reports malformed or missing caller input.
func InvalidUsage(field, msg string) *Error {
	return &Error{Kind: KindInvalidUsage, Field: field, Message: msg}
}

// InvalidUsagef wraps a sentinel so callers can still match it with errors.Is.
func InvalidUsagef(err error, field, format string, args ...any) *Error {
	return &Error{Kind: KindInvalidUsage, Field: field, Message: fmt.Sprintf(format, args...), Err: err}
}

// NotFound reports an absent entity.
func NotFound(entity, id string) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s %s not found", entity, id)}
}

// Forbidden reports an entity that exists but is not the caller's, or a
// request whose method does not match the entity's state.
func Forbidden(msg string) *Error {
	return &Error{Kind: KindForbidden, Message: msg}
}

// Internal wraps anything unexpected.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Err: err}
}

// KindOf returns the kind of err, or KindInternal when it is unclassified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps a kind to its response code.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindInvalidUsage:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the text that may be shown to an administrative
// caller. Internal errors collapse to a generic message.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal {
		if e.Message != "" {
			return e.Message
		}
		return e.Kind.String()
	}
	return "internal server error"
}
