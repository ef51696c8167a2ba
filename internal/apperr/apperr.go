// Package apperr defines the error taxonomy shared by services and HTTP
// handlers.  Services return *Error values; the HTTP error handler maps the
// Kind to a status code and renders the failure envelope.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindConflict
	KindUnauthenticated
	KindForbidden
	KindNotFound
	KindUploadFailed
	KindTimeout
)

// Status returns the HTTP status code for k.
func (k Kind) Status() int {
	switch k {
	case KindValidation, KindConflict:
		return http.StatusBadRequest
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindUploadFailed:
		return http.StatusBadGateway
	case KindTimeout:
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindUploadFailed:
		return "upload_failed"
	case KindTimeout:
		return "timeout"
	}
	return "internal"
}

// Error is a classified failure.  Message is safe to show to clients;
// Details carries per-field validation messages; Err is the internal cause
// and is only logged.
type Error struct {
	Kind    Kind
	Message string
	Details []string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Client-facing messages for credential failures are deliberately generic.
const (
	MsgInvalidCredentials  = "Invalid username or password."
	MsgInvalidRefreshToken = "Invalid or expired refresh token."
	MsgInvalidToken        = "Invalid or expired token."
	MsgInternal            = "Internal server error."
)

func New(kind Kind, msg string) *Error { return &Error{Kind: kind, Message: msg} }

// Wrap classifies cause.  A context deadline anywhere in the chain turns the
// result into a Timeout regardless of kind.
func Wrap(kind Kind, msg string, cause error) *Error {
	if errors.Is(cause, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Message: "Upstream call timed out.", Err: cause}
	}
	return &Error{Kind: kind, Message: msg, Err: cause}
}

func Validation(details []string) *Error {
	return &Error{Kind: KindValidation, Message: "Validation failed.", Details: details}
}

func Conflict(msg string) *Error { return New(KindConflict, msg) }
func Unauthenticated(msg string) *Error { return New(KindUnauthenticated, msg) }
func Forbidden(msg string) *Error { return New(KindForbidden, msg) }
func NotFound(msg string) *Error { return New(KindNotFound, msg) }
func Internal(cause error) *Error { return Wrap(KindInternal, MsgInternal, cause) }
func UploadFailed(cause error) *Error { return Wrap(KindUploadFailed, "File upload failed.", cause) }
func InvalidCredentials() *Error { return Unauthenticated(MsgInvalidCredentials) }
func InvalidRefreshToken() *Error { return Unauthenticated(MsgInvalidRefreshToken) }

// KindOf returns the Kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindInternal
}
