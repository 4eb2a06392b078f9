// Package apperr defines the caller-visible failure taxonomy shared by every
// handler and store in the service.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Kind is a stable failure category that maps onto a transport status.
type Kind string

const (
	InvalidInput Kind = "INVALID_INPUT"
	Unauthorized Kind = "UNAUTHORIZED"
	NotFound     Kind = "NOT_FOUND"
	Conflict     Kind = "CONFLICT"
	Unavailable  Kind = "UNAVAILABLE"
	Internal     Kind = "INTERNAL"
)

// Error carries a Kind, a message safe to show to callers, and the
// underlying cause, which is logged but never serialized.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

func Invalid(message string) *Error         { return New(InvalidInput, message) }
func Unauthenticated(message string) *Error { return New(Unauthorized, message) }
func Missing(message string) *Error         { return New(NotFound, message) }

// KindOf reports the Kind of err. Errors that were never classified are Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// MessageOf returns the caller-safe message for err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != Internal {
		return e.Message
	}
	return "internal error"
}

// Status maps a Kind onto an HTTP status code.
func Status(kind Kind) int {
	switch kind {
	case InvalidInput:
		return http.StatusBadRequest
	case Unauthorized:
		return http.StatusUnauthorized
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	case Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// FromStore classifies an error returned by the persistence layer; resource
// names the record involved ("video", "account"). Already classified errors
// pass through unchanged.
func FromStore(err error, resource string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return Wrap(NotFound, resource+" not found", err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return Wrap(Unavailable, "service temporarily unavailable", err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505":
			return Wrap(Conflict, "resource already exists", err)
		case pgErr.Code == "23503":
			return Wrap(NotFound, "referenced resource not found", err)
		case pgErr.Code == "22P02":
			return Wrap(InvalidInput, "malformed identifier", err)
		case strings.HasPrefix(pgErr.Code, "08"), strings.HasPrefix(pgErr.Code, "57"), pgErr.Code == "40001":
			return Wrap(Unavailable, "service temporarily unavailable", err)
		}
		return Wrap(Internal, "failed to access "+resource, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) || pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return Wrap(Unavailable, "service temporarily unavailable", err)
	}

	return Wrap(Internal, "failed to access "+resource, err)
}
