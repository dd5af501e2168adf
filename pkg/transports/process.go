package transports

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"
)

// Process is a StreamTransport connected to a child animkit-server.
type Process struct {
	*StreamTransport
	cmd   *exec.Cmd
	stdin io.WriteCloser
}

// Spawn starts the server binary at path and waits for its READY message.
func Spawn(ctx context.Context, path string, startupTimeout time.Duration, args ...string) (*Process, error) {
	if startupTimeout == 0 {
		startupTimeout = 10 * time.Second
	}

	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &TransportError{Op: "spawn", Err: fmt.Errorf("failed to open stdin: %w", err)}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &TransportError{Op: "spawn", Err: fmt.Errorf("failed to open stdout: %w", err)}
	}
	if err := cmd.Start(); err != nil {
		return nil, &TransportError{Op: "spawn", Err: fmt.Errorf("failed to start server: %w", err)}
	}

	p := &Process{
		cmd:   cmd,
		stdin: stdin,
	}
	p.StreamTransport = NewStreamTransport(stdout, stdin, closerFunc(p.shutdown))

	if _, err := p.WaitReady(ctx, startupTimeout); err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return nil, &TransportError{Op: "spawn", Err: err}
	}

	return p, nil
}

// PID returns the child process id.
func (p *Process) PID() int {
	return p.cmd.Process.Pid
}

// shutdown closes stdin so the server sees EOF, then reaps it.
func (p *Process) shutdown() error {
	if err := p.stdin.Close(); err != nil {
		return fmt.Errorf("failed to close stdin: %w", err)
	}
	if err := p.cmd.Wait(); err != nil {
		return fmt.Errorf("server exited: %w", err)
	}
	return nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
