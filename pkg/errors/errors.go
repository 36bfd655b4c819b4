package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches errors sharing the same code so callers can compare against the
// predefined values even after Clone or Wrap.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Generic errors.
var (
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrDependency         = New("DEPENDENCY_ERROR", http.StatusBadGateway, "upstream dependency failed")
	ErrCacheMiss          = New("CACHE_MISS", http.StatusNotFound, "cache miss")
	ErrInvalidTimeInput   = New("INVALID_TIME_INPUT", http.StatusBadRequest, "invalid date or time input")
	ErrConcurrentModified = New("CONCURRENT_MODIFICATION", http.StatusConflict, "resource was modified concurrently, reload and retry")
)

// Scheduling conflicts.
var (
	ErrSlotOccupiedByGroup     = New("SLOT_OCCUPIED_BY_GROUP", http.StatusConflict, "slot is already filled by a group")
	ErrSlotNotOpen             = New("SLOT_NOT_OPEN", http.StatusConflict, "slot is not open")
	ErrDuplicateRole           = New("DUPLICATE_ROLE", http.StatusConflict, "role already exists on this event")
	ErrMusicianAlreadyAssigned = New("MUSICIAN_ALREADY_ASSIGNED", http.StatusConflict, "musician already fills a role on this event")
)

// Invitation conflicts.
var (
	ErrAlreadyMember     = New("ALREADY_MEMBER", http.StatusConflict, "a musician with this email is already a member of this church")
	ErrAlreadyElsewhere  = New("ALREADY_ELSEWHERE", http.StatusConflict, "this email is already registered with another church")
	ErrInvitationPending = New("INVITATION_PENDING", http.StatusConflict, "a pending invitation already exists for this email")
	ErrInvitationExpired = New("INVITATION_EXPIRED", http.StatusGone, "invitation has expired")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// HasCode reports whether err carries the provided code.
func HasCode(err error, code string) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == code
}
