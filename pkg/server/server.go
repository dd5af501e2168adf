// Package server executes commands from a command queue against an engine
// and answers with callbacks.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/animkit/animkit/pkg/engine"
	"github.com/animkit/animkit/pkg/protocol"
	"github.com/animkit/animkit/pkg/telemetry"
	"github.com/animkit/animkit/pkg/transports"
)

// Option configures a Server.
type Option func(*Server)

// WithTelemetry attaches logging, tracing, metrics and events.
func WithTelemetry(tel *telemetry.Telemetry) Option {
	return func(s *Server) {
		s.log = tel.Logger.NewComponentLogger("server")
		s.tracer = tel.Tracer
		s.metrics = tel.Metrics
		s.events = tel.Events
	}
}

// WithWorkerID tags logs and events with the owning worker.
func WithWorkerID(id string) Option {
	return func(s *Server) { s.workerID = id }
}

// Server runs commands one at a time in arrival order.
type Server struct {
	transport transports.ServerTransport
	engine    engine.Engine
	workerID  string

	log     *telemetry.Logger
	tracer  *telemetry.Tracer
	metrics *telemetry.Metrics
	events  *telemetry.EventPublisher

	// Owned by the serving goroutine.
	subscriptions map[subscriptionKey][]subscription
	globals       map[protocol.Kind]map[string]bool

	mu       sync.Mutex
	commands int

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
}

type subscriptionKey struct {
	vmi  protocol.Handle
	path string
}

type subscription struct {
	id       protocol.RequestID
	dataType protocol.DataType
}

// New creates a server reading commands from t and executing them on e.
func New(t transports.ServerTransport, e engine.Engine, opts ...Option) *Server {
	s := &Server{
		transport:     t,
		engine:        e,
		log:           telemetry.NewNopLogger(),
		subscriptions: make(map[subscriptionKey][]subscription),
		globals:       make(map[protocol.Kind]map[string]bool),
		done:          make(chan struct{}),
	}
	s.tracer, _ = telemetry.NewTracer(telemetry.TracingConfig{}, "animkit", "", "")
	s.metrics, _ = telemetry.NewMetrics(telemetry.MetricsConfig{})
	s.events, _ = telemetry.NewEventPublisher(telemetry.EventsConfig{})
	for _, opt := range opts {
		opt(s)
	}
	if s.workerID != "" {
		s.log = s.log.WithWorkerID(s.workerID)
	}
	return s
}

// Start serves on a new goroutine.
func (s *Server) Start() {
	go func() { _ = s.Serve(context.Background()) }()
}

// Serve processes commands until the queue disconnects, the transport is
// closed or ctx is done. It may be called once.
func (s *Server) Serve(ctx context.Context) error {
	started := false
	s.startOnce.Do(func() { started = true })
	if !started {
		return errors.New("server already started")
	}
	defer close(s.done)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = s.transport.Close()
		case <-stop:
		}
	}()

	for {
		cmd, err := s.transport.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			s.log.WithError(err).Error("command stream failed")
			return err
		}

		s.handle(ctx, cmd)

		if cmd.Type == protocol.CommandDisconnect {
			s.log.Debug("queue disconnected")
			return s.transport.Close()
		}
	}
}

// Stop closes the transport and waits for Serve to return.
func (s *Server) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		err = s.transport.Close()
		s.startOnce.Do(func() { close(s.done) })
		<-s.done
	})
	return err
}

// Done is closed once Serve has returned.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// Commands returns the number of commands processed.
func (s *Server) Commands() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commands
}

func (s *Server) handle(ctx context.Context, cmd *protocol.Command) {
	_, span := s.tracer.StartCommandSpan(ctx, cmd)
	timer := telemetry.NewTimer()

	callbacks, err := s.execute(cmd)

	status := "ok"
	if err != nil {
		status = "error"
		telemetry.RecordError(span, err)
		callbacks = s.failure(cmd, err)
	} else {
		telemetry.RecordSuccess(span)
	}
	span.End()
	s.metrics.RecordServerCommand(string(cmd.Type), status, timer.Duration())

	s.mu.Lock()
	s.commands++
	s.mu.Unlock()

	for _, cb := range callbacks {
		if err := s.transport.Send(cb); err != nil {
			s.log.WithRequestID(cb.RequestID).WithError(err).Warnf("callback %s not sent", cb.Type)
			return
		}
	}
}

var errorCallbacks = map[protocol.Kind]protocol.CallbackType{
	protocol.KindFile:              protocol.CallbackFileError,
	protocol.KindArtboard:          protocol.CallbackArtboardError,
	protocol.KindStateMachine:      protocol.CallbackStateMachineError,
	protocol.KindImage:             protocol.CallbackImageError,
	protocol.KindFont:              protocol.CallbackFontError,
	protocol.KindAudio:             protocol.CallbackAudioError,
	protocol.KindViewModelInstance: protocol.CallbackViewModelInstanceError,
}

// failure turns a failed command into the error callback of its kind.
// Worker commands have no listener and are only logged.
func (s *Server) failure(cmd *protocol.Command, err error) []*protocol.Callback {
	kind := cmd.Type.Kind()
	s.log.WithHandle(kind, cmd.Handle).WithRequestID(cmd.RequestID).WithError(err).
		Warnf("%s failed", cmd.Type)
	_ = s.events.PublishRequestFailed(s.workerID, string(cmd.Type), err.Error())

	errType, ok := errorCallbacks[kind]
	if !ok {
		return nil
	}
	return []*protocol.Callback{{
		Type:      errType,
		RequestID: cmd.RequestID,
		Handle:    cmd.Handle,
		Origin:    cmd.Type,
		Message:   err.Error(),
	}}
}

func reply(cmd *protocol.Command, t protocol.CallbackType) *protocol.Callback {
	return &protocol.Callback{Type: t, RequestID: cmd.RequestID, Handle: cmd.Handle}
}

func one(cb *protocol.Callback) []*protocol.Callback {
	return []*protocol.Callback{cb}
}

func (s *Server) created(kind protocol.Kind, h protocol.Handle) {
	s.metrics.RecordResourceCreated(string(kind))
	_ = s.events.PublishResourceCreated(s.workerID, string(kind), uint64(h))
}

func (s *Server) released(kind protocol.Kind, h protocol.Handle) {
	s.metrics.RecordResourceReleased(string(kind))
	_ = s.events.PublishResourceReleased(s.workerID, string(kind), uint64(h))
}

// execute runs cmd and returns the callbacks answering it.
func (s *Server) execute(cmd *protocol.Command) ([]*protocol.Callback, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	e := s.engine

	switch cmd.Type {
	// Files
	case protocol.CommandLoadFile:
		if err := e.LoadFile(cmd.Handle, cmd.Data); err != nil {
			return nil, err
		}
		s.created(protocol.KindFile, cmd.Handle)
		return one(reply(cmd, protocol.CallbackFileLoaded)), nil

	case protocol.CommandDeleteFile:
		if err := e.DeleteFile(cmd.Handle); err != nil {
			return nil, err
		}
		s.released(protocol.KindFile, cmd.Handle)
		return one(reply(cmd, protocol.CallbackFileDeleted)), nil

	case protocol.CommandRequestArtboardNames:
		names, err := e.ArtboardNames(cmd.Handle)
		if err != nil {
			return nil, err
		}
		cb := reply(cmd, protocol.CallbackArtboardsListed)
		cb.Names = names
		return one(cb), nil

	case protocol.CommandRequestViewModelNames:
		names, err := e.ViewModelNames(cmd.Handle)
		if err != nil {
			return nil, err
		}
		cb := reply(cmd, protocol.CallbackViewModelsListed)
		cb.Names = names
		return one(cb), nil

	case protocol.CommandRequestInstanceNames:
		names, err := e.InstanceNames(cmd.Handle, cmd.Name)
		if err != nil {
			return nil, err
		}
		cb := reply(cmd, protocol.CallbackInstanceNamesListed)
		cb.ViewModel = cmd.Name
		cb.Names = names
		return one(cb), nil

	case protocol.CommandRequestPropertyDefs:
		props, err := e.PropertyDefinitions(cmd.Handle, cmd.Name)
		if err != nil {
			return nil, err
		}
		cb := reply(cmd, protocol.CallbackPropertiesListed)
		cb.ViewModel = cmd.Name
		cb.Properties = props
		return one(cb), nil

	case protocol.CommandRequestViewModelEnums:
		enums, err := e.Enums(cmd.Handle)
		if err != nil {
			return nil, err
		}
		cb := reply(cmd, protocol.CallbackEnumsListed)
		cb.Enums = enums
		return one(cb), nil

	// Artboards
	case protocol.CommandCreateArtboard:
		if err := e.CreateArtboard(cmd.Handle, cmd.Parent, cmd.Name); err != nil {
			return nil, err
		}
		s.created(protocol.KindArtboard, cmd.Handle)
		return nil, nil

	case protocol.CommandRequestStateMachines:
		names, err := e.StateMachineNames(cmd.Handle)
		if err != nil {
			return nil, err
		}
		cb := reply(cmd, protocol.CallbackStateMachineNamesListed)
		cb.Names = names
		return one(cb), nil

	case protocol.CommandRequestDefaultViewModel:
		vm, instance, err := e.DefaultViewModel(cmd.Handle)
		if err != nil {
			return nil, err
		}
		cb := reply(cmd, protocol.CallbackDefaultViewModelReceived)
		cb.ViewModel = vm
		cb.Instance = instance
		return one(cb), nil

	case protocol.CommandSetArtboardSize:
		return nil, e.SetArtboardSize(cmd.Handle, cmd.Width, cmd.Height, cmd.Scale)

	case protocol.CommandResetArtboardSize:
		return nil, e.ResetArtboardSize(cmd.Handle)

	case protocol.CommandDeleteArtboard:
		if err := e.DeleteArtboard(cmd.Handle); err != nil {
			return nil, err
		}
		s.released(protocol.KindArtboard, cmd.Handle)
		return one(reply(cmd, protocol.CallbackArtboardDeleted)), nil

	// State machines
	case protocol.CommandCreateStateMachine:
		if err := e.CreateStateMachine(cmd.Handle, cmd.Parent, cmd.Name); err != nil {
			return nil, err
		}
		s.created(protocol.KindStateMachine, cmd.Handle)
		return nil, nil

	case protocol.CommandAdvanceStateMachine:
		return nil, e.AdvanceStateMachine(cmd.Handle, cmd.Delta)

	case protocol.CommandBindViewModelInstance:
		return nil, e.BindViewModelInstance(cmd.Handle, cmd.Target)

	case protocol.CommandPointerEvent:
		return nil, e.PointerEvent(cmd.Handle, *cmd.Pointer)

	case protocol.CommandDeleteStateMachine:
		if err := e.DeleteStateMachine(cmd.Handle); err != nil {
			return nil, err
		}
		s.released(protocol.KindStateMachine, cmd.Handle)
		return nil, nil

	// Assets
	case protocol.CommandDecodeImage:
		if err := e.DecodeImage(cmd.Handle, cmd.Data); err != nil {
			return nil, err
		}
		s.created(protocol.KindImage, cmd.Handle)
		return one(reply(cmd, protocol.CallbackImageDecoded)), nil

	case protocol.CommandDeleteImage:
		if err := e.DeleteImage(cmd.Handle); err != nil {
			return nil, err
		}
		s.released(protocol.KindImage, cmd.Handle)
		return one(reply(cmd, protocol.CallbackImageDeleted)), nil

	case protocol.CommandDecodeFont:
		if err := e.DecodeFont(cmd.Handle, cmd.Data); err != nil {
			return nil, err
		}
		s.created(protocol.KindFont, cmd.Handle)
		return one(reply(cmd, protocol.CallbackFontDecoded)), nil

	case protocol.CommandDeleteFont:
		if err := e.DeleteFont(cmd.Handle); err != nil {
			return nil, err
		}
		s.released(protocol.KindFont, cmd.Handle)
		return nil, nil

	case protocol.CommandDecodeAudio:
		if err := e.DecodeAudio(cmd.Handle, cmd.Data); err != nil {
			return nil, err
		}
		s.created(protocol.KindAudio, cmd.Handle)
		return one(reply(cmd, protocol.CallbackAudioDecoded)), nil

	case protocol.CommandDeleteAudio:
		if err := e.DeleteAudio(cmd.Handle); err != nil {
			return nil, err
		}
		s.released(protocol.KindAudio, cmd.Handle)
		return nil, nil

	// Worker
	case protocol.CommandAddGlobalAsset:
		if err := e.AddGlobalAsset(cmd.AssetKind, cmd.Name, cmd.Target); err != nil {
			return nil, err
		}
		s.setGlobal(cmd.AssetKind, cmd.Name, true)
		_ = s.events.PublishAssetRegistered(s.workerID, string(cmd.AssetKind), cmd.Name, uint64(cmd.Target))
		return nil, nil

	case protocol.CommandRemoveGlobalAsset:
		if err := e.RemoveGlobalAsset(cmd.AssetKind, cmd.Name); err != nil {
			return nil, err
		}
		s.setGlobal(cmd.AssetKind, cmd.Name, false)
		_ = s.events.PublishAssetRemoved(s.workerID, string(cmd.AssetKind), cmd.Name)
		return nil, nil

	case protocol.CommandDisconnect:
		return nil, nil
	}

	if cmd.Type.Kind() == protocol.KindViewModelInstance {
		return s.executeInstance(cmd)
	}
	return nil, fmt.Errorf("unsupported command type: %s", cmd.Type)
}

func (s *Server) setGlobal(kind protocol.Kind, name string, registered bool) {
	names, ok := s.globals[kind]
	if !ok {
		names = make(map[string]bool)
		s.globals[kind] = names
	}
	if registered {
		names[name] = true
	} else {
		delete(names, name)
	}
	s.metrics.SetGlobalAssets(string(kind), len(names))
}
