// Package scenario runs Starlark scripts against a worker. A script loads
// files and assets, creates artboards, state machines and view model
// instances, and drives them through the same client API an application
// uses. Plain values left in the script's globals become its output.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/animkit/animkit/pkg/client"
	"github.com/animkit/animkit/pkg/telemetry"
)

// DefaultTimeout bounds a script that sets no timeout of its own.
const DefaultTimeout = 30 * time.Second

// Result is the outcome of one script.
type Result struct {
	Output        map[string]interface{} `json:"output"`
	Printed       []string               `json:"printed,omitempty"`
	Advanced      time.Duration          `json:"advanced"`
	ExecutionTime time.Duration          `json:"execution_time"`
	Error         string                 `json:"error,omitempty"`
}

// Runner executes scripts on one worker. Files and assets named by a script
// are read from fsys.
type Runner struct {
	worker  *client.Worker
	fsys    fs.FS
	timeout time.Duration
	log     *telemetry.Logger
}

// Option configures a Runner.
type Option func(*Runner)

func WithTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

func WithLogger(log *telemetry.Logger) Option {
	return func(r *Runner) { r.log = log.NewComponentLogger("scenario") }
}

// NewRunner creates a runner for w.
func NewRunner(w *client.Worker, fsys fs.FS, opts ...Option) *Runner {
	r := &Runner{
		worker:  w,
		fsys:    fsys,
		timeout: DefaultTimeout,
		log:     w.Telemetry().Logger.NewComponentLogger("scenario"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// session is the state of one script run.
type session struct {
	ctx      context.Context
	worker   *client.Worker
	deps     *client.Dependencies
	fsys     fs.FS
	owned    []interface{ Close() error }
	printed  []string
	advanced float64
}

func (s *session) own(c interface{ Close() error }) {
	s.owned = append(s.owned, c)
}

// release closes everything the script created, newest first.
func (s *session) release() error {
	var errs []error
	for i := len(s.owned) - 1; i >= 0; i-- {
		errs = append(errs, s.owned[i].Close())
	}
	s.owned = nil
	return errors.Join(errs...)
}

// Run executes script. Resources the script creates are released when it
// finishes, whether or not it succeeded.
func (r *Runner) Run(ctx context.Context, name, script string, input map[string]interface{}) (*Result, error) {
	startTime := time.Now()

	op := telemetry.StartOperation(r.worker.Telemetry().WithContext(ctx), "scenario.run", attribute.String("script", name))
	evalCtx, cancel := context.WithTimeout(op.Ctx, r.timeout)
	defer cancel()

	s := &session{
		ctx:    evalCtx,
		worker: r.worker,
		deps:   r.worker.Dependencies(),
		fsys:   r.fsys,
	}
	thread := &starlark.Thread{
		Name: name,
		Print: func(_ *starlark.Thread, msg string) {
			s.printed = append(s.printed, msg)
			r.log.Debugf("%s: %s", name, msg)
		},
	}

	done := make(chan struct{})
	var (
		result *Result
		err    error
	)
	go func() {
		defer close(done)
		result, err = r.evaluate(thread, s, name, script, input)
	}()

	select {
	case <-done:
	case <-evalCtx.Done():
		thread.Cancel(evalCtx.Err().Error())
		<-done
	}

	if rerr := s.release(); rerr != nil {
		r.log.WithError(rerr).Warnf("%s: releasing script resources", name)
	}

	if result == nil {
		result = &Result{}
	}
	result.Printed = s.printed
	result.Advanced = time.Duration(s.advanced * float64(time.Second))
	result.ExecutionTime = time.Since(startTime)
	if errors.Is(evalCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		err = fmt.Errorf("script %s timed out after %v", name, r.timeout)
	}
	op.End(err)
	if err != nil {
		result.Error = err.Error()
		return result, err
	}
	return result, nil
}

func (r *Runner) evaluate(thread *starlark.Thread, s *session, name, script string, input map[string]interface{}) (*Result, error) {
	predeclared := starlark.StringDict{
		"struct":       starlarkstruct.Default,
		"load_file":    starlark.NewBuiltin("load_file", s.loadFile),
		"decode_image": starlark.NewBuiltin("decode_image", s.decodeAsset),
		"decode_font":  starlark.NewBuiltin("decode_font", s.decodeAsset),
		"decode_audio": starlark.NewBuiltin("decode_audio", s.decodeAsset),
	}

	for key, val := range input {
		starlarkVal, err := toStarlarkValue(val)
		if err != nil {
			return nil, fmt.Errorf("failed to convert input %s: %w", key, err)
		}
		predeclared[key] = starlarkVal
	}

	globals, err := starlark.ExecFile(thread, name, script, predeclared)
	if err != nil {
		var evalErr *starlark.EvalError
		if errors.As(err, &evalErr) {
			return nil, fmt.Errorf("script failed: %s", evalErr.Backtrace())
		}
		return nil, fmt.Errorf("script failed: %w", err)
	}

	output := make(map[string]interface{})
	for key, val := range globals {
		if len(key) > 0 && key[0] == '_' {
			continue
		}
		goVal, err := fromStarlarkValue(val)
		if errors.Is(err, errOpaque) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to convert output %s: %w", key, err)
		}
		output[key] = goVal
	}

	return &Result{Output: output}, nil
}

func (s *session) read(fnName, path string) ([]byte, error) {
	data, err := fs.ReadFile(s.fsys, path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fnName, err)
	}
	return data, nil
}

func (s *session) loadFile(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var path string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "path", &path); err != nil {
		return nil, err
	}
	data, err := s.read(b.Name(), path)
	if err != nil {
		return nil, err
	}
	f, err := s.worker.LoadFile(s.ctx, data)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", b.Name(), path, err)
	}
	s.own(f)
	return s.fileObject(f), nil
}

func (s *session) decodeAsset(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var path string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "path", &path); err != nil {
		return nil, err
	}
	data, err := s.read(b.Name(), path)
	if err != nil {
		return nil, err
	}

	switch b.Name() {
	case "decode_image":
		img, err := s.worker.DecodeImage(s.ctx, data)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", b.Name(), path, err)
		}
		s.own(img)
		return s.assetObject("image", img.Handle(), img), nil
	case "decode_font":
		font, err := s.worker.DecodeFont(s.ctx, data)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", b.Name(), path, err)
		}
		s.own(font)
		return s.assetObject("font", font.Handle(), font), nil
	default:
		audio, err := s.worker.DecodeAudio(s.ctx, data)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", b.Name(), path, err)
		}
		s.own(audio)
		return s.assetObject("audio", audio.Handle(), audio), nil
	}
}
