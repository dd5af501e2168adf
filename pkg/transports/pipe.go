package transports

import (
	"io"
	"sync"

	"github.com/animkit/animkit/pkg/protocol"
)

// DefaultPipeBuffer is the per-direction buffer used when NewPipe is given a
// non-positive size.
const DefaultPipeBuffer = 256

type pipe struct {
	commands  chan *protocol.Command
	callbacks chan *protocol.Callback

	queueOnce  sync.Once
	queueDone  chan struct{}
	serverOnce sync.Once
	serverDone chan struct{}
}

// NewPipe returns the two ends of an in-process transport.
func NewPipe(buffer int) (Transport, ServerTransport) {
	if buffer <= 0 {
		buffer = DefaultPipeBuffer
	}
	p := &pipe{
		commands:   make(chan *protocol.Command, buffer),
		callbacks:  make(chan *protocol.Callback, buffer),
		queueDone:  make(chan struct{}),
		serverDone: make(chan struct{}),
	}
	return &pipeQueueEnd{p}, &pipeServerEnd{p}
}

type pipeQueueEnd struct{ p *pipe }

func (e *pipeQueueEnd) Send(cmd *protocol.Command) error {
	select {
	case <-e.p.queueDone:
		return &TransportError{Op: "send", Err: ErrClosed}
	case <-e.p.serverDone:
		return &TransportError{Op: "send", Err: ErrClosed}
	default:
	}

	select {
	case e.p.commands <- cmd:
		return nil
	case <-e.p.queueDone:
		return &TransportError{Op: "send", Err: ErrClosed}
	case <-e.p.serverDone:
		return &TransportError{Op: "send", Err: ErrClosed}
	}
}

func (e *pipeQueueEnd) Recv() (*protocol.Callback, error) {
	select {
	case cb := <-e.p.callbacks:
		return cb, nil
	case <-e.p.queueDone:
		return nil, io.EOF
	case <-e.p.serverDone:
		select {
		case cb := <-e.p.callbacks:
			return cb, nil
		default:
			return nil, io.EOF
		}
	}
}

func (e *pipeQueueEnd) Close() error {
	e.p.queueOnce.Do(func() { close(e.p.queueDone) })
	return nil
}

type pipeServerEnd struct{ p *pipe }

func (e *pipeServerEnd) Recv() (*protocol.Command, error) {
	select {
	case cmd := <-e.p.commands:
		return cmd, nil
	case <-e.p.serverDone:
		return nil, io.EOF
	case <-e.p.queueDone:
		select {
		case cmd := <-e.p.commands:
			return cmd, nil
		default:
			return nil, io.EOF
		}
	}
}

func (e *pipeServerEnd) Send(cb *protocol.Callback) error {
	select {
	case <-e.p.serverDone:
		return &TransportError{Op: "send", Err: ErrClosed}
	case <-e.p.queueDone:
		return &TransportError{Op: "send", Err: ErrClosed}
	default:
	}

	select {
	case e.p.callbacks <- cb:
		return nil
	case <-e.p.serverDone:
		return &TransportError{Op: "send", Err: ErrClosed}
	case <-e.p.queueDone:
		return &TransportError{Op: "send", Err: ErrClosed}
	}
}

func (e *pipeServerEnd) Close() error {
	e.p.serverOnce.Do(func() { close(e.p.serverDone) })
	return nil
}
