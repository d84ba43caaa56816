package services

import (
	"errors"
	"net/http"
)

// ErrorKind classifies a service failure. Handlers map it to an HTTP status.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindNotAuthenticated
	KindNotFound
	KindInvalidOperation
	KindForbidden
	KindConflict
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotAuthenticated:
		return "not_authenticated"
	case KindNotFound:
		return "not_found"
	case KindInvalidOperation:
		return "invalid_operation"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// HTTPStatus returns the response status for the kind.
// Conflict answers 400, not 409, for client compatibility.
func (k ErrorKind) HTTPStatus() int {
	switch k {
	case KindNotAuthenticated:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidOperation, KindConflict:
		return http.StatusBadRequest
	case KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// Error is the error type returned by every service operation.
// Message is safe to show to the client; Err, when set, is the underlying cause.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func internalError(message string, err error) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

// KindOf returns the kind carried by err. Errors that are not *Error are Internal.
func KindOf(err error) ErrorKind {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr.Kind
	}
	return KindInternal
}

var (
	ErrNotAuthenticated = newError(KindNotAuthenticated, "Not authenticated")

	ErrMissingTarget   = newError(KindInvalidOperation, "target_userid is required")
	ErrUserNotFound    = newError(KindNotFound, "User not found")
	ErrSelfRequest     = newError(KindInvalidOperation, "You cannot send a friend request to yourself")
	ErrBlockedByTarget = newError(KindForbidden, "you are blocked by this user")
	ErrTargetBlocked   = newError(KindForbidden, "you have blocked this user")
	ErrAlreadyFriends  = newError(KindConflict, "Already friends with this user")
	ErrRequestPending  = newError(KindConflict, "Friend request already pending")

	ErrMissingRequestID = newError(KindInvalidOperation, "request_id is required")
	ErrInvalidAction    = newError(KindInvalidOperation, "Invalid action")
	ErrRequestNotFound  = newError(KindNotFound, "Request not found")

	ErrSelfBlock      = newError(KindInvalidOperation, "You cannot block yourself")
	ErrAlreadyBlocked = newError(KindConflict, "User already blocked")
	ErrReasonTooLong  = newError(KindInvalidOperation, "Reason must be at most 255 characters")
)
