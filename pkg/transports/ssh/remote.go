// Package ssh runs animkit-server on a remote host. The worker protocol is
// carried over the stdin and stdout of an SSH session, and the server
// binary can be copied to the host over SFTP first.
package ssh

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"

	"github.com/animkit/animkit/pkg/transports"
)

// Remote is a StreamTransport connected to animkit-server over SSH.
type Remote struct {
	*transports.StreamTransport

	client  *ssh.Client
	session *ssh.Session
	stdin   io.WriteCloser
	log     zerolog.Logger
	stop    chan struct{}
}

type options struct {
	upload         string
	startupTimeout time.Duration
	stderr         io.Writer
	logger         zerolog.Logger
}

// Option configures Spawn.
type Option func(*options)

// WithUpload copies the local binary at localPath to the remote command path
// before starting it. The copy is skipped when the remote file already has
// the same SHA-256.
func WithUpload(localPath string) Option {
	return func(o *options) { o.upload = localPath }
}

// WithStartupTimeout bounds the wait for the server's READY message.
func WithStartupTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.startupTimeout = d
		}
	}
}

// WithStderr receives the remote server's stderr. The default is os.Stderr.
func WithStderr(w io.Writer) Option {
	return func(o *options) { o.stderr = w }
}

func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Spawn connects to the host in cfg, runs command with args and waits for
// its READY message.
func Spawn(ctx context.Context, cfg *Config, command string, args []string, opts ...Option) (*Remote, error) {
	o := options{
		startupTimeout: 10 * time.Second,
		stderr:         os.Stderr,
		logger:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if err := cfg.Validate(); err != nil {
		return nil, &transports.TransportError{Op: "ssh-config", Err: err}
	}

	client, err := dial(ctx, cfg)
	if err != nil {
		return nil, err
	}
	r := &Remote{
		client: client,
		log:    o.logger.With().Str("component", "ssh").Str("host", cfg.Address()).Logger(),
		stop:   make(chan struct{}),
	}

	if o.upload != "" {
		if _, err := upload(ctx, client, o.upload, command, r.log); err != nil {
			_ = client.Close()
			return nil, err
		}
	}

	if err := r.start(ctx, command, args, o); err != nil {
		_ = client.Close()
		return nil, err
	}

	if cfg.KeepAliveInterval > 0 {
		go r.keepAlive(cfg.KeepAliveInterval)
	}

	r.log.Info().
		Str("command", command).
		Str("device", r.Ready().Device).
		Msg("Remote server ready")
	return r, nil
}

// dial connects with a deadline covering the TCP dial and the handshake.
func dial(ctx context.Context, cfg *Config) (*ssh.Client, error) {
	clientConfig, err := cfg.BuildSSHClientConfig()
	if err != nil {
		return nil, &transports.TransportError{Op: "connect", Err: err}
	}

	address := cfg.Address()
	dialer := net.Dialer{Timeout: cfg.ConnectionTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, &transports.TransportError{Op: "connect", Err: err}
	}

	_ = conn.SetDeadline(time.Now().Add(cfg.ConnectionTimeout))
	c, chans, reqs, err := ssh.NewClientConn(conn, address, clientConfig)
	if err != nil {
		_ = conn.Close()
		return nil, &transports.TransportError{Op: "connect", Err: err}
	}
	_ = conn.SetDeadline(time.Time{})

	return ssh.NewClient(c, chans, reqs), nil
}

func (r *Remote) start(ctx context.Context, command string, args []string, o options) error {
	session, err := r.client.NewSession()
	if err != nil {
		return &transports.TransportError{Op: "spawn", Err: fmt.Errorf("failed to open session: %w", err)}
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		_ = session.Close()
		return &transports.TransportError{Op: "spawn", Err: fmt.Errorf("failed to open stdin: %w", err)}
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		_ = session.Close()
		return &transports.TransportError{Op: "spawn", Err: fmt.Errorf("failed to open stdout: %w", err)}
	}
	session.Stderr = o.stderr

	line := commandLine(command, args)
	r.log.Debug().Str("command", line).Msg("Starting remote server")
	if err := session.Start(line); err != nil {
		_ = session.Close()
		return &transports.TransportError{Op: "spawn", Err: fmt.Errorf("failed to start server: %w", err)}
	}

	r.session = session
	r.stdin = stdin
	r.StreamTransport = transports.NewStreamTransport(stdout, stdin, closerFunc(r.shutdown))

	if _, err := r.WaitReady(ctx, o.startupTimeout); err != nil {
		_ = session.Close()
		return &transports.TransportError{Op: "spawn", Err: err}
	}
	return nil
}

// shutdown closes stdin so the server sees EOF, waits for it to exit and
// closes the connection.
func (r *Remote) shutdown() error {
	close(r.stop)

	var errs []error
	if err := r.stdin.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close stdin: %w", err))
	}
	if err := r.session.Wait(); err != nil {
		errs = append(errs, fmt.Errorf("server exited: %w", err))
	}
	if err := r.client.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		errs = append(errs, err)
	}
	r.log.Debug().Msg("Remote server stopped")
	return errors.Join(errs...)
}

func (r *Remote) keepAlive(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			if _, _, err := r.client.SendRequest("keepalive@openssh.com", true, nil); err != nil {
				r.log.Warn().Err(err).Msg("Keep-alive failed")
				return
			}
		}
	}
}

// upload copies localPath to remotePath over SFTP and marks it executable.
// It reports whether anything was copied.
func upload(ctx context.Context, client *ssh.Client, localPath, remotePath string, log zerolog.Logger) (bool, error) {
	startTime := time.Now()

	localFile, err := os.Open(localPath)
	if err != nil {
		return false, &transports.TransportError{Op: "upload", Err: fmt.Errorf("failed to open local file: %w", err)}
	}
	defer localFile.Close()

	localSum, err := checksum(localFile)
	if err != nil {
		return false, &transports.TransportError{Op: "upload", Err: fmt.Errorf("failed to hash local file: %w", err)}
	}
	if _, err := localFile.Seek(0, io.SeekStart); err != nil {
		return false, &transports.TransportError{Op: "upload", Err: err}
	}

	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		return false, &transports.TransportError{Op: "sftp-init", Err: fmt.Errorf("failed to create SFTP client: %w", err)}
	}
	defer sftpClient.Close()

	if remoteFile, err := sftpClient.Open(remotePath); err == nil {
		remoteSum, err := checksum(remoteFile)
		_ = remoteFile.Close()
		if err == nil && remoteSum == localSum {
			log.Debug().Str("remote", remotePath).Str("checksum", localSum).Msg("Remote binary up to date")
			return false, nil
		}
	}

	if err := sftpClient.MkdirAll(path.Dir(remotePath)); err != nil {
		return false, &transports.TransportError{Op: "upload", Err: fmt.Errorf("failed to create remote directory: %w", err)}
	}
	remoteFile, err := sftpClient.Create(remotePath)
	if err != nil {
		return false, &transports.TransportError{Op: "upload", Err: fmt.Errorf("failed to create remote file: %w", err)}
	}
	written, err := copyWithContext(ctx, remoteFile, localFile)
	if cerr := remoteFile.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return false, &transports.TransportError{Op: "upload", Err: fmt.Errorf("failed to copy file: %w", err)}
	}
	if err := sftpClient.Chmod(remotePath, 0o755); err != nil {
		return false, &transports.TransportError{Op: "upload", Err: fmt.Errorf("failed to set permissions: %w", err)}
	}

	log.Info().
		Str("local", localPath).
		Str("remote", remotePath).
		Int64("bytes", written).
		Dur("duration", time.Since(startTime)).
		Msg("Server binary uploaded")
	return true, nil
}

func checksum(r io.Reader) (string, error) {
	hash := sha256.New()
	if _, err := io.Copy(hash, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}

// copyWithContext copies src to dst, checking ctx between chunks.
func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, 32*1024)
	var written int64

	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		nr, rerr := src.Read(buf)
		if nr > 0 {
			nw, werr := dst.Write(buf[:nr])
			written += int64(nw)
			if werr != nil {
				return written, werr
			}
			if nw != nr {
				return written, io.ErrShortWrite
			}
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, rerr
		}
	}
}

// commandLine quotes each word for a POSIX shell.
func commandLine(command string, args []string) string {
	words := make([]string, 0, len(args)+1)
	for _, w := range append([]string{command}, args...) {
		words = append(words, "'"+strings.ReplaceAll(w, "'", `'\''`)+"'")
	}
	return strings.Join(words, " ")
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
