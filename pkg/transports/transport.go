// Package transports carries commands from a command queue to a command
// server and callbacks back again, either in-process or over a byte stream.
package transports

import (
	"errors"

	"github.com/animkit/animkit/pkg/protocol"
)

// ErrClosed is returned when sending on a transport whose peer or self has
// been closed.
var ErrClosed = errors.New("transport closed")

// Transport is the queue side of a command channel.
type Transport interface {
	// Send delivers a command to the server. Commands are delivered in the
	// order Send is called.
	Send(cmd *protocol.Command) error

	// Recv blocks until the next callback arrives. It returns io.EOF once
	// the server side is gone.
	Recv() (*protocol.Callback, error)

	// Close releases the transport. Pending Recv calls return io.EOF.
	Close() error
}

// ServerTransport is the server side of a command channel.
type ServerTransport interface {
	// Recv blocks until the next command arrives. It returns io.EOF once
	// the queue side is gone and no commands remain buffered.
	Recv() (*protocol.Command, error)

	// Send delivers a callback to the queue.
	Send(cb *protocol.Callback) error

	// Close releases the transport.
	Close() error
}

// TransportError represents an error from the transport layer.
type TransportError struct {
	// Op is the operation that failed (e.g., "send", "recv", "spawn")
	Op string

	// Err is the underlying error
	Err error
}

func (e *TransportError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
