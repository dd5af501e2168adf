package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/animkit/animkit/pkg/commandqueue"
	"github.com/animkit/animkit/pkg/dispatch"
	"github.com/animkit/animkit/pkg/engine"
	"github.com/animkit/animkit/pkg/protocol"
	"github.com/animkit/animkit/pkg/server"
	"github.com/animkit/animkit/pkg/telemetry"
	"github.com/animkit/animkit/pkg/transports"
)

// WorkerService issues worker-level commands: queue lifecycle and the
// engine-side global asset registry.
type WorkerService struct {
	*base
	q commandqueue.WorkerCommands
}

// NewWorkerService wraps q. Calls run on exec.
func NewWorkerService(q commandqueue.WorkerCommands, exec *dispatch.Executor, tel *telemetry.Telemetry) *WorkerService {
	return &WorkerService{base: newBase(exec, tel), q: q}
}

func (s *WorkerService) Start() { s.q.Start() }

// Disconnect asks the server to stop once every command issued so far has
// run.
func (s *WorkerService) Disconnect() error {
	return s.exec.Sync(s.q.Disconnect)
}

func (s *WorkerService) Stop() { s.q.Stop() }

// AddGlobalAsset registers h under name for files loaded afterwards.
func (s *WorkerService) AddGlobalAsset(kind protocol.Kind, name string, h protocol.Handle) error {
	return fire(s.base, s.q, func(id protocol.RequestID) { s.issueAdd(kind, name, h, id) })
}

func (s *WorkerService) RemoveGlobalAsset(kind protocol.Kind, name string) error {
	return fire(s.base, s.q, func(id protocol.RequestID) { s.issueRemove(kind, name, id) })
}

func (s *WorkerService) issueAdd(kind protocol.Kind, name string, h protocol.Handle, id protocol.RequestID) {
	switch kind {
	case protocol.KindImage:
		s.q.AddGlobalImageAsset(name, h, id)
	case protocol.KindFont:
		s.q.AddGlobalFontAsset(name, h, id)
	case protocol.KindAudio:
		s.q.AddGlobalAudioAsset(name, h, id)
	}
}

func (s *WorkerService) issueRemove(kind protocol.Kind, name string, id protocol.RequestID) {
	switch kind {
	case protocol.KindImage:
		s.q.RemoveGlobalImageAsset(name, id)
	case protocol.KindFont:
		s.q.RemoveGlobalFontAsset(name, id)
	case protocol.KindAudio:
		s.q.RemoveGlobalAudioAsset(name, id)
	}
}

// WorkerOption configures a Worker.
type WorkerOption func(*workerOptions)

type workerOptions struct {
	devices   engine.DeviceProvider
	tel       *telemetry.Telemetry
	transport transports.Transport
	recorder  commandqueue.Recorder
	engine    engine.Engine
	id        string
	buffer    int
}

// WithDeviceProvider selects how the rendering device is found.
func WithDeviceProvider(p engine.DeviceProvider) WorkerOption {
	return func(o *workerOptions) { o.devices = p }
}

func WithTelemetry(tel *telemetry.Telemetry) WorkerOption {
	return func(o *workerOptions) { o.tel = tel }
}

// WithTransport connects to a server that is already running elsewhere,
// such as an animkit-server child process. No local server is started.
func WithTransport(t transports.Transport) WorkerOption {
	return func(o *workerOptions) { o.transport = t }
}

// WithRecorder journals every command and callback.
func WithRecorder(r commandqueue.Recorder) WorkerOption {
	return func(o *workerOptions) { o.recorder = r }
}

// WithEngine runs the local server on e instead of a fresh engine.Memory.
func WithEngine(e engine.Engine) WorkerOption {
	return func(o *workerOptions) { o.engine = e }
}

func WithWorkerID(id string) WorkerOption {
	return func(o *workerOptions) { o.id = id }
}

// WithCallbackBuffer sets how many commands and callbacks the local pipe
// holds before a sender blocks.
func WithCallbackBuffer(n int) WorkerOption {
	return func(o *workerOptions) { o.buffer = n }
}

// DefaultCallbackBuffer is the local pipe capacity when none is set.
const DefaultCallbackBuffer = 64

// Worker owns one engine instance: its command queue, the server driving
// it and the executor every request is tracked on. It also keeps the global
// asset registry, holding registered assets alive until they are removed.
type Worker struct {
	id      string
	device  *engine.Device
	engine  engine.Engine
	tel     *telemetry.Telemetry
	log     *telemetry.Logger

	exec   *dispatch.Executor
	queue  *commandqueue.CommandQueue
	server *server.Server
	svc    *WorkerService
	deps   *Dependencies

	// Owned by exec.
	images map[string]*Image
	fonts  map[string]*Font
	audio  map[string]*Audio

	stopper *workerStopper
	life    *lifetime
}

// workerStopper holds what shutting a worker down needs. It must not
// reference the Worker, so an unreachable Worker can still be stopped.
type workerStopper struct {
	id      string
	tel     *telemetry.Telemetry
	log     *telemetry.Logger
	started time.Time
	exec    *dispatch.Executor
	queue   *commandqueue.CommandQueue
	server  *server.Server
	svc     *WorkerService

	once sync.Once
	err  error
}

// stop disconnects from the server once queued commands have run, then
// stops the queue and the executor.
func (st *workerStopper) stop() error {
	st.once.Do(func() {
		if err := st.svc.Disconnect(); err != nil {
			st.err = fmt.Errorf("disconnecting: %w", err)
		}
		if st.server != nil {
			<-st.server.Done()
		} else if st.err == nil {
			<-st.queue.Done()
		}
		st.svc.Stop()
		st.exec.Close()

		uptime := time.Since(st.started)
		if perr := st.tel.Events.PublishWorkerStopped(st.id, uptime); perr != nil {
			st.log.WithError(perr).Debug("publishing worker stopped")
		}
		st.log.Infof("worker stopped after %s", uptime.Round(time.Millisecond))
	})
	return st.err
}

// NewWorker starts a worker. It fails with ErrMissingDevice when the device
// provider yields no device.
func NewWorker(opts ...WorkerOption) (*Worker, error) {
	o := workerOptions{devices: engine.DefaultDeviceProvider, buffer: DefaultCallbackBuffer}
	for _, opt := range opts {
		opt(&o)
	}
	if o.tel == nil {
		o.tel = telemetry.NewNop()
	}
	if o.id == "" {
		o.id = uuid.NewString()
	}

	device, err := o.devices.Device()
	if err != nil {
		return nil, fmt.Errorf("resolving device: %w", err)
	}
	if device == nil {
		return nil, ErrMissingDevice
	}

	w := &Worker{
		id:      o.id,
		device:  device,
		tel:     o.tel,
		log:     o.tel.Logger.NewComponentLogger("worker").WithWorkerID(o.id),
		images:  make(map[string]*Image),
		fonts:   make(map[string]*Font),
		audio:   make(map[string]*Audio),
	}

	t := o.transport
	if t == nil {
		e := o.engine
		if e == nil {
			if e, err = engine.NewMemory(device); err != nil {
				return nil, err
			}
		}
		w.engine = e

		queueEnd, serverEnd := transports.NewPipe(o.buffer)
		w.server = server.New(serverEnd, e, server.WithTelemetry(o.tel), server.WithWorkerID(o.id))
		w.server.Start()
		t = queueEnd
	}

	qopts := []commandqueue.Option{commandqueue.WithTelemetry(o.tel)}
	if o.recorder != nil {
		qopts = append(qopts, commandqueue.WithRecorder(o.recorder))
	}
	w.queue = commandqueue.New(t, qopts...)
	w.exec = dispatch.New()
	w.svc = NewWorkerService(w.queue, w.exec, o.tel)
	w.deps = NewDependencies(w.queue, w.exec, o.tel)
	w.svc.Start()

	st := &workerStopper{
		id:      w.id,
		tel:     w.tel,
		log:     w.log,
		started: time.Now(),
		exec:    w.exec,
		queue:   w.queue,
		server:  w.server,
		svc:     w.svc,
	}
	w.stopper = st
	w.life = newLifetime(w, func() { go st.stop() })

	if err := o.tel.Events.PublishWorkerStarted(w.id, device.Name); err != nil {
		w.log.WithError(err).Debug("publishing worker started")
	}
	w.log.Infof("worker started on %s", device.Name)
	return w, nil
}

func (w *Worker) ID() string { return w.id }

func (w *Worker) Device() *engine.Device { return w.device }

// Engine returns the engine driven by the local server, or nil when the
// worker talks to a remote one.
func (w *Worker) Engine() engine.Engine { return w.engine }

func (w *Worker) Dependencies() *Dependencies { return w.deps }

func (w *Worker) Telemetry() *telemetry.Telemetry { return w.tel }

// Close disconnects from the server once queued commands have run, then
// stops the queue and the executor. Requests still waiting stay blocked
// until their contexts end. A worker that becomes unreachable without Close
// is stopped in the background.
func (w *Worker) Close() error {
	w.life.close()
	return w.stopper.stop()
}

// LoadFile loads a scene file.
func (w *Worker) LoadFile(ctx context.Context, data []byte) (*File, error) {
	h, err := w.deps.Files.LoadFile(ctx, data)
	if err != nil {
		return nil, err
	}
	return NewFile(h, w.deps), nil
}

func (w *Worker) DecodeImage(ctx context.Context, data []byte) (*Image, error) {
	h, err := w.deps.Images.DecodeImage(ctx, data)
	if err != nil {
		return nil, err
	}
	return NewImage(h, w.deps), nil
}

func (w *Worker) DecodeFont(ctx context.Context, data []byte) (*Font, error) {
	h, err := w.deps.Fonts.DecodeFont(ctx, data)
	if err != nil {
		return nil, err
	}
	return NewFont(h, w.deps), nil
}

func (w *Worker) DecodeAudio(ctx context.Context, data []byte) (*Audio, error) {
	h, err := w.deps.Audio.DecodeAudio(ctx, data)
	if err != nil {
		return nil, err
	}
	return NewAudio(h, w.deps), nil
}

// AddGlobalImageAsset registers img under name. A name already in use is
// overwritten without removing the previous image first.
func (w *Worker) AddGlobalImageAsset(img *Image, name string) error {
	return addGlobal(w, protocol.KindImage, w.images, name, img, img.Handle())
}

func (w *Worker) AddGlobalFontAsset(font *Font, name string) error {
	return addGlobal(w, protocol.KindFont, w.fonts, name, font, font.Handle())
}

func (w *Worker) AddGlobalAudioAsset(audio *Audio, name string) error {
	return addGlobal(w, protocol.KindAudio, w.audio, name, audio, audio.Handle())
}

func (w *Worker) RemoveGlobalImageAsset(name string) error {
	return removeGlobal(w, protocol.KindImage, w.images, name)
}

func (w *Worker) RemoveGlobalFontAsset(name string) error {
	return removeGlobal(w, protocol.KindFont, w.fonts, name)
}

func (w *Worker) RemoveGlobalAudioAsset(name string) error {
	return removeGlobal(w, protocol.KindAudio, w.audio, name)
}

// GlobalImage returns the image registered under name.
func (w *Worker) GlobalImage(name string) (*Image, bool) {
	return lookupGlobal(w, w.images, name)
}

func (w *Worker) GlobalFont(name string) (*Font, bool) {
	return lookupGlobal(w, w.fonts, name)
}

func (w *Worker) GlobalAudio(name string) (*Audio, bool) {
	return lookupGlobal(w, w.audio, name)
}

func addGlobal[T any](w *Worker, kind protocol.Kind, registry map[string]*T, name string, res *T, h protocol.Handle) error {
	s := w.svc
	return s.exec.Sync(func() {
		s.issueAdd(kind, name, h, s.q.NextRequestID())
		registry[name] = res
	})
}

func removeGlobal[T any](w *Worker, kind protocol.Kind, registry map[string]*T, name string) error {
	s := w.svc
	return s.exec.Sync(func() {
		s.issueRemove(kind, name, s.q.NextRequestID())
		delete(registry, name)
	})
}

func lookupGlobal[T any](w *Worker, registry map[string]*T, name string) (*T, bool) {
	var (
		res *T
		ok  bool
	)
	if err := w.exec.Sync(func() { res, ok = registry[name] }); err != nil {
		return nil, false
	}
	return res, ok
}
