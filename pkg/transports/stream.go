package transports

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/animkit/animkit/pkg/protocol"
)

// StreamTransport is the queue side of a JSON-lines command channel, for
// example the stdin/stdout of an animkit-server process.
type StreamTransport struct {
	encoder *protocol.Encoder
	decoder *protocol.Decoder
	closer  io.Closer

	mu     sync.Mutex
	ready  *protocol.ReadyMessage
	exit   *protocol.ExitMessage
	closed bool
}

// NewStreamTransport wraps r and w. closer, if non-nil, is invoked by Close.
func NewStreamTransport(r io.Reader, w io.Writer, closer io.Closer) *StreamTransport {
	return &StreamTransport{
		encoder: protocol.NewEncoder(w),
		decoder: protocol.NewDecoder(r),
		closer:  closer,
	}
}

// WaitReady blocks until the server announces READY or the timeout expires.
// It must be called before the transport is handed to a command queue.
func (t *StreamTransport) WaitReady(ctx context.Context, timeout time.Duration) (*protocol.ReadyMessage, error) {
	readyCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	readyCh := make(chan *protocol.ReadyMessage, 1)
	errCh := make(chan error, 1)

	go func() {
		msg, err := t.decoder.Decode()
		if err != nil {
			errCh <- err
			return
		}
		if msg.Type != protocol.MessageTypeReady {
			errCh <- fmt.Errorf("expected READY, got %s", msg.Type)
			return
		}
		var ready protocol.ReadyMessage
		if err := protocol.ParseData(msg.Data, &ready); err != nil {
			errCh <- err
			return
		}
		readyCh <- &ready
	}()

	select {
	case <-readyCtx.Done():
		return nil, fmt.Errorf("timeout waiting for READY message")
	case err := <-errCh:
		return nil, fmt.Errorf("failed to receive READY: %w", err)
	case ready := <-readyCh:
		t.mu.Lock()
		t.ready = ready
		t.mu.Unlock()
		return ready, nil
	}
}

// Ready returns the READY message received from the server, if any.
func (t *StreamTransport) Ready() *protocol.ReadyMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ready
}

// Exit returns the EXIT message received from the server, if any.
func (t *StreamTransport) Exit() *protocol.ExitMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.exit
}

// Send implements Transport.
func (t *StreamTransport) Send(cmd *protocol.Command) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return &TransportError{Op: "send", Err: ErrClosed}
	}
	if err := t.encoder.EncodeCommand(cmd); err != nil {
		return &TransportError{Op: "send", Err: err}
	}
	return nil
}

// Recv implements Transport. READY messages are recorded and skipped; an
// EXIT message ends the stream.
func (t *StreamTransport) Recv() (*protocol.Callback, error) {
	for {
		msg, err := t.decoder.Decode()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, &TransportError{Op: "recv", Err: err}
		}

		switch msg.Type {
		case protocol.MessageTypeCallback:
			cb, err := protocol.DecodeCallback(msg)
			if err != nil {
				return nil, &TransportError{Op: "recv", Err: err}
			}
			return cb, nil

		case protocol.MessageTypeReady:
			var ready protocol.ReadyMessage
			if err := protocol.ParseData(msg.Data, &ready); err == nil {
				t.mu.Lock()
				t.ready = &ready
				t.mu.Unlock()
			}

		case protocol.MessageTypeExit:
			var exit protocol.ExitMessage
			if err := protocol.ParseData(msg.Data, &exit); err == nil {
				t.mu.Lock()
				t.exit = &exit
				t.mu.Unlock()
			}
			return nil, io.EOF

		default:
			return nil, &TransportError{Op: "recv", Err: fmt.Errorf("unexpected message type: %s", msg.Type)}
		}
	}
}

// Close implements Transport.
func (t *StreamTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	if t.closer != nil {
		return t.closer.Close()
	}
	return nil
}

// StreamServerTransport is the server side of a JSON-lines command channel.
type StreamServerTransport struct {
	encoder *protocol.Encoder
	decoder *protocol.Decoder
	closer  io.Closer

	mu       sync.Mutex
	closed   bool
	received int
}

// NewStreamServerTransport wraps r and w. closer, if non-nil, is invoked by
// Close.
func NewStreamServerTransport(r io.Reader, w io.Writer, closer io.Closer) *StreamServerTransport {
	return &StreamServerTransport{
		encoder: protocol.NewEncoder(w),
		decoder: protocol.NewDecoder(r),
		closer:  closer,
	}
}

// SendReady announces that the server accepts commands.
func (t *StreamServerTransport) SendReady(ready *protocol.ReadyMessage) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.encoder.EncodeReady(ready)
}

// SendExit announces that the server is stopping.
func (t *StreamServerTransport) SendExit(reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.encoder.EncodeExit(&protocol.ExitMessage{
		Reason:        reason,
		CommandsTotal: t.received,
	})
}

// Recv implements ServerTransport.
func (t *StreamServerTransport) Recv() (*protocol.Command, error) {
	msg, err := t.decoder.Decode()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, &TransportError{Op: "recv", Err: err}
	}

	cmd, err := protocol.DecodeCommand(msg)
	if err != nil {
		return nil, &TransportError{Op: "recv", Err: err}
	}

	t.mu.Lock()
	t.received++
	t.mu.Unlock()
	return cmd, nil
}

// Send implements ServerTransport.
func (t *StreamServerTransport) Send(cb *protocol.Callback) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return &TransportError{Op: "send", Err: ErrClosed}
	}
	if err := t.encoder.EncodeCallback(cb); err != nil {
		return &TransportError{Op: "send", Err: err}
	}
	return nil
}

// Close implements ServerTransport.
func (t *StreamServerTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	if t.closer != nil {
		return t.closer.Close()
	}
	return nil
}
