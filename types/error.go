package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the orchestration core.
type ErrorCode string

// Room error codes
const (
	ErrRoomNotFound      ErrorCode = "ROOM_NOT_FOUND"
	ErrRunInProgress     ErrorCode = "RUN_IN_PROGRESS"
	ErrNoEligibleSpeaker ErrorCode = "NO_ELIGIBLE_SPEAKER"
	ErrShuttingDown      ErrorCode = "SHUTTING_DOWN"
)

// Persona error codes
const (
	ErrPersonaNotFound ErrorCode = "PERSONA_NOT_FOUND"
	ErrDirectory       ErrorCode = "DIRECTORY_ERROR"
)

// Generation error codes
const (
	ErrGenerationFailed ErrorCode = "GENERATION_FAILED"
	ErrGenerationEmpty  ErrorCode = "GENERATION_EMPTY"
	ErrRateLimited      ErrorCode = "RATE_LIMITED"
	ErrTimeout          ErrorCode = "TIMEOUT"
)

// Configuration and request error codes
const (
	ErrInvalidConfig  ErrorCode = "INVALID_CONFIG"
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST"
	ErrInternalError  ErrorCode = "INTERNAL_ERROR"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
	RoomID    string    `json:"room_id,omitempty"`
	Cause     error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error carrying the same code, so sentinel values such as
// orchestrator.ErrRunInProgress work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithRoom sets the room the error refers to.
func (e *Error) WithRoom(roomID string) *Error {
	e.RoomID = roomID
	return e
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsNotFound reports whether err is a room or persona not-found error.
func IsNotFound(err error) bool {
	switch GetErrorCode(err) {
	case ErrRoomNotFound, ErrPersonaNotFound:
		return true
	}
	return false
}
