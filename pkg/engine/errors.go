package engine

import (
	"errors"
	"fmt"

	"github.com/animkit/animkit/pkg/protocol"
)

// ErrorClass classifies an engine failure.
type ErrorClass string

const (
	// ErrorClassNotFound indicates an unknown handle, name or property path.
	ErrorClassNotFound ErrorClass = "not_found"

	// ErrorClassInvalid indicates a malformed argument, such as a value of
	// the wrong type or an out of range list index.
	ErrorClassInvalid ErrorClass = "invalid"

	// ErrorClassDecode indicates a payload the engine could not decode.
	ErrorClassDecode ErrorClass = "decode"

	// ErrorClassConflict indicates a handle that is already in use.
	ErrorClassConflict ErrorClass = "conflict"
)

// EngineError represents a classified engine error with context.
// nolint:revive // EngineError is intentionally named to distinguish from standard errors
type EngineError struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Kind is the resource kind involved, if applicable.
	Kind protocol.Kind `json:"kind,omitempty"`

	// Handle is the resource handle involved, if applicable.
	Handle protocol.Handle `json:"handle,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	msg := e.Message
	if e.Kind != "" && e.Handle != protocol.InvalidHandle {
		msg = fmt.Sprintf("%s (%s %d)", msg, e.Kind, e.Handle)
	}
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s", e.Class, msg, e.Err.Error())
	}
	return fmt.Sprintf("[%s] %s", e.Class, msg)
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewNotFoundError reports an unknown handle of kind.
func NewNotFoundError(kind protocol.Kind, h protocol.Handle) *EngineError {
	return &EngineError{
		Class:   ErrorClassNotFound,
		Message: fmt.Sprintf("unknown %s", kind),
		Code:    ErrCodeUnknownHandle,
		Kind:    kind,
		Handle:  h,
	}
}

// NewMissingNameError reports an unknown named object.
func NewMissingNameError(what, name string) *EngineError {
	return &EngineError{
		Class:   ErrorClassNotFound,
		Message: fmt.Sprintf("no %s named %q", what, name),
		Code:    ErrCodeUnknownName,
	}
}

// NewInvalidError creates a new invalid-argument error.
func NewInvalidError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassInvalid,
		Message: message,
		Code:    ErrCodeInvalidArgument,
		Err:     err,
	}
}

// NewDecodeError creates a new decode error for kind.
func NewDecodeError(kind protocol.Kind, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassDecode,
		Message: fmt.Sprintf("failed to decode %s", kind),
		Code:    ErrCodeDecodeFailed,
		Kind:    kind,
		Err:     err,
	}
}

// NewConflictError reports a handle that is already allocated.
func NewConflictError(kind protocol.Kind, h protocol.Handle) *EngineError {
	return &EngineError{
		Class:   ErrorClassConflict,
		Message: "handle already in use",
		Code:    ErrCodeHandleInUse,
		Kind:    kind,
		Handle:  h,
	}
}

// WithHandle adds resource context to an error.
func (e *EngineError) WithHandle(kind protocol.Kind, h protocol.Handle) *EngineError {
	e.Kind = kind
	e.Handle = h
	return e
}

// WithCode adds an error code to an error.
func (e *EngineError) WithCode(code string) *EngineError {
	e.Code = code
	return e
}

// IsNotFound returns true if the error is classified as not found.
func IsNotFound(err error) bool {
	return hasClass(err, ErrorClassNotFound)
}

// IsInvalid returns true if the error is classified as invalid.
func IsInvalid(err error) bool {
	return hasClass(err, ErrorClassInvalid)
}

// IsDecode returns true if the error is classified as a decode failure.
func IsDecode(err error) bool {
	return hasClass(err, ErrorClassDecode)
}

// IsConflict returns true if the error is classified as a conflict.
func IsConflict(err error) bool {
	return hasClass(err, ErrorClassConflict)
}

func hasClass(err error, class ErrorClass) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == class
	}
	return false
}

// Common error codes.
const (
	ErrCodeUnknownHandle   = "UNKNOWN_HANDLE"
	ErrCodeUnknownName     = "UNKNOWN_NAME"
	ErrCodeUnknownProperty = "UNKNOWN_PROPERTY"
	ErrCodeInvalidArgument = "INVALID_ARGUMENT"
	ErrCodeTypeMismatch    = "TYPE_MISMATCH"
	ErrCodeIndexOutOfRange = "INDEX_OUT_OF_RANGE"
	ErrCodeDecodeFailed    = "DECODE_FAILED"
	ErrCodeHandleInUse     = "HANDLE_IN_USE"
	ErrCodeInvalidScene    = "INVALID_SCENE"
)
