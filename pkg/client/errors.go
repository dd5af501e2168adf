package client

import (
	"errors"
	"fmt"

	"github.com/animkit/animkit/pkg/protocol"
)

// Sentinels wrapped by the typed errors below, for use with errors.Is.
var (
	// ErrFailedDecoding is wrapped by FailedDecodingError.
	ErrFailedDecoding = errors.New("failed decoding")

	// ErrInvalidName is wrapped by every Invalid*Error returned when a
	// create-by-name call names something the file does not contain.
	ErrInvalidName = errors.New("invalid name")

	// ErrInvalidFile is wrapped by InvalidFileError.
	ErrInvalidFile = errors.New("invalid file")

	// ErrMissingDevice is returned by NewWorker when no rendering device is
	// available.
	ErrMissingDevice = errors.New("no rendering device available")

	// ErrMissingData is returned when a property has no readable value.
	ErrMissingData = errors.New("missing data")
)

// FailedDecodingError reports an image, font or audio payload the engine
// could not decode.
type FailedDecodingError struct {
	Kind    protocol.Kind
	Message string
}

func (e *FailedDecodingError) Error() string {
	return fmt.Sprintf("failed to decode %s: %s", e.Kind, e.Message)
}

func (e *FailedDecodingError) Unwrap() error { return ErrFailedDecoding }

// InvalidFileError reports a file the engine could not load.
type InvalidFileError struct {
	Message string
}

func (e *InvalidFileError) Error() string {
	return "invalid file: " + e.Message
}

func (e *InvalidFileError) Unwrap() error { return ErrInvalidFile }

// InvalidArtboardError reports an artboard name the file does not contain.
type InvalidArtboardError struct {
	Name string
}

func (e *InvalidArtboardError) Error() string {
	return fmt.Sprintf("invalid artboard %q", e.Name)
}

func (e *InvalidArtboardError) Unwrap() error { return ErrInvalidName }

// InvalidStateMachineError reports a state machine name the artboard does
// not contain.
type InvalidStateMachineError struct {
	Name string
}

func (e *InvalidStateMachineError) Error() string {
	return fmt.Sprintf("invalid state machine %q", e.Name)
}

func (e *InvalidStateMachineError) Unwrap() error { return ErrInvalidName }

// InvalidViewModelError reports a view model name the file does not contain.
type InvalidViewModelError struct {
	Name string
}

func (e *InvalidViewModelError) Error() string {
	return fmt.Sprintf("invalid view model %q", e.Name)
}

func (e *InvalidViewModelError) Unwrap() error { return ErrInvalidName }

// InvalidViewModelInstanceError reports an instance name the view model does
// not contain.
type InvalidViewModelInstanceError struct {
	Name string
}

func (e *InvalidViewModelInstanceError) Error() string {
	return fmt.Sprintf("invalid view model instance %q", e.Name)
}

func (e *InvalidViewModelInstanceError) Unwrap() error { return ErrInvalidName }

// CommandError is a failure the engine reported for a query or mutation.
type CommandError struct {
	Kind    protocol.Kind
	Handle  protocol.Handle
	Message string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s %d: %s", e.Kind, e.Handle, e.Message)
}

// ValueMismatchError reports a property whose value is not of the requested
// type.
type ValueMismatchError struct {
	Path     string
	Expected protocol.DataType
	Actual   protocol.DataType
}

func (e *ValueMismatchError) Error() string {
	return fmt.Sprintf("property %q is %s, not %s", e.Path, e.Actual, e.Expected)
}
