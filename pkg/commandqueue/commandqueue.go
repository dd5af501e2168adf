package commandqueue

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/animkit/animkit/pkg/protocol"
	"github.com/animkit/animkit/pkg/telemetry"
	"github.com/animkit/animkit/pkg/transports"
)

// Recorder observes every command sent and every callback received, in
// order. Implementations must not block.
type Recorder interface {
	RecordCommand(cmd *protocol.Command)
	RecordCallback(cb *protocol.Callback)
}

// Option configures a CommandQueue.
type Option func(*CommandQueue)

// WithTelemetry attaches logging, metrics and events.
func WithTelemetry(tel *telemetry.Telemetry) Option {
	return func(q *CommandQueue) {
		q.log = tel.Logger.NewComponentLogger("commandqueue")
		q.metrics = tel.Metrics
		q.events = tel.Events
	}
}

// WithRecorder attaches a command journal.
func WithRecorder(r Recorder) Option {
	return func(q *CommandQueue) { q.recorder = r }
}

// CommandQueue implements Queue over a transports.Transport. Handles are
// allocated here, so a create call can return one before the server has
// seen the command.
type CommandQueue struct {
	transport transports.Transport
	log       *telemetry.Logger
	metrics   *telemetry.Metrics
	events    *telemetry.EventPublisher
	recorder  Recorder

	requests atomic.Uint64
	handles  atomic.Uint64

	// sendMu keeps recorder order identical to wire order.
	sendMu sync.Mutex

	files     listeners[FileListener]
	artboards listeners[ArtboardListener]
	images    listeners[ImageListener]
	fonts     listeners[FontListener]
	audio     listeners[AudioListener]
	instances listeners[ViewModelInstanceListener]

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
}

var _ Queue = (*CommandQueue)(nil)

// New creates a command queue on t. Call Start before expecting callbacks.
func New(t transports.Transport, opts ...Option) *CommandQueue {
	q := &CommandQueue{
		transport: t,
		log:       telemetry.NewNopLogger(),
		done:      make(chan struct{}),
	}
	q.metrics, _ = telemetry.NewMetrics(telemetry.MetricsConfig{})
	q.events, _ = telemetry.NewEventPublisher(telemetry.EventsConfig{})
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// NextRequestID implements RequestIDSource. IDs start at 0.
func (q *CommandQueue) NextRequestID() protocol.RequestID {
	return protocol.RequestID(q.requests.Add(1) - 1)
}

func (q *CommandQueue) allocHandle() protocol.Handle {
	return protocol.Handle(q.handles.Add(1))
}

// Start launches the callback router.
func (q *CommandQueue) Start() {
	q.startOnce.Do(func() {
		go q.route()
	})
}

// Disconnect asks the server to stop after the commands already queued.
func (q *CommandQueue) Disconnect() {
	q.send(&protocol.Command{Type: protocol.CommandDisconnect, RequestID: q.NextRequestID()})
}

// Stop closes the transport and waits for the router to drain.
func (q *CommandQueue) Stop() {
	q.stopOnce.Do(func() {
		if err := q.transport.Close(); err != nil {
			q.log.WithError(err).Warn("closing transport")
		}
		q.startOnce.Do(func() { close(q.done) })
		<-q.done
	})
}

// Done is closed once the router has exited.
func (q *CommandQueue) Done() <-chan struct{} {
	return q.done
}

// send hands cmd to the transport. A request that cannot be sent is answered
// locally with an error callback so no caller waits on it.
func (q *CommandQueue) send(cmd *protocol.Command) {
	q.sendMu.Lock()
	err := q.transport.Send(cmd)
	if err == nil && q.recorder != nil {
		q.recorder.RecordCommand(cmd)
	}
	q.sendMu.Unlock()

	if err == nil {
		q.metrics.RecordCommandIssued(string(cmd.Type.Kind()), string(cmd.Type))
		return
	}

	q.log.WithRequestID(cmd.RequestID).WithError(err).Warnf("command %s not sent", cmd.Type)
	if errType, ok := errorCallbacks[cmd.Type.Kind()]; ok {
		q.dispatch(&protocol.Callback{
			Type:      errType,
			RequestID: cmd.RequestID,
			Handle:    cmd.Handle,
			Origin:    cmd.Type,
			Message:   err.Error(),
		})
	}
}

var errorCallbacks = map[protocol.Kind]protocol.CallbackType{
	protocol.KindFile:              protocol.CallbackFileError,
	protocol.KindArtboard:          protocol.CallbackArtboardError,
	protocol.KindImage:             protocol.CallbackImageError,
	protocol.KindFont:              protocol.CallbackFontError,
	protocol.KindAudio:             protocol.CallbackAudioError,
	protocol.KindViewModelInstance: protocol.CallbackViewModelInstanceError,
}

func (q *CommandQueue) route() {
	defer close(q.done)

	for {
		cb, err := q.transport.Recv()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				q.log.WithError(err).Error("callback stream failed")
			}
			return
		}
		if q.recorder != nil {
			q.recorder.RecordCallback(cb)
		}
		q.dispatch(cb)
	}
}

// dispatch delivers cb to the listener registered for its kind and handle.
func (q *CommandQueue) dispatch(cb *protocol.Callback) {
	kind := cb.Type.Kind()
	delivered := false

	switch kind {
	case protocol.KindFile:
		if l, ok := q.files.get(cb.Handle); ok {
			delivered = true
			deliverFile(l, cb)
			if cb.Type == protocol.CallbackFileError && cb.Origin == protocol.CommandLoadFile {
				q.files.remove(cb.Handle)
			}
		}
	case protocol.KindArtboard:
		if l, ok := q.artboards.get(cb.Handle); ok {
			delivered = true
			deliverArtboard(l, cb)
		}
	case protocol.KindImage:
		if l, ok := q.images.get(cb.Handle); ok {
			delivered = true
			deliverImage(l, cb)
			if cb.Type == protocol.CallbackImageError && cb.Origin == protocol.CommandDecodeImage {
				q.images.remove(cb.Handle)
			}
		}
	case protocol.KindFont:
		if l, ok := q.fonts.get(cb.Handle); ok {
			delivered = true
			deliverFont(l, cb)
			if cb.Type == protocol.CallbackFontError && cb.Origin == protocol.CommandDecodeFont {
				q.fonts.remove(cb.Handle)
			}
		}
	case protocol.KindAudio:
		if l, ok := q.audio.get(cb.Handle); ok {
			delivered = true
			deliverAudio(l, cb)
			if cb.Type == protocol.CallbackAudioError && cb.Origin == protocol.CommandDecodeAudio {
				q.audio.remove(cb.Handle)
			}
		}
	case protocol.KindViewModelInstance:
		if l, ok := q.instances.get(cb.Handle); ok {
			delivered = true
			deliverInstance(l, cb)
		}
	}

	if delivered {
		q.metrics.RecordCallbackRouted(string(kind), string(cb.Type))
		return
	}

	q.metrics.RecordCallbackDropped("no_listener")
	log := q.log.WithHandle(kind, cb.Handle).WithRequestID(cb.RequestID)
	if cb.Type.IsError() {
		log.Warnf("unrouted %s: %s", cb.Type, cb.Message)
		_ = q.events.PublishCallbackUnrouted(string(kind), uint64(cb.Handle), string(cb.Type))
		return
	}
	log.Debugf("dropped %s with no listener", cb.Type)
}

func deliverFile(l FileListener, cb *protocol.Callback) {
	switch cb.Type {
	case protocol.CallbackFileLoaded:
		l.OnFileLoaded(cb.Handle, cb.RequestID)
	case protocol.CallbackFileDeleted:
		l.OnFileDeleted(cb.Handle, cb.RequestID)
	case protocol.CallbackFileError:
		l.OnFileError(cb.Handle, cb.RequestID, cb.Message)
	case protocol.CallbackArtboardsListed:
		l.OnArtboardsListed(cb.Handle, cb.RequestID, cb.Names)
	case protocol.CallbackViewModelsListed:
		l.OnViewModelsListed(cb.Handle, cb.RequestID, cb.Names)
	case protocol.CallbackInstanceNamesListed:
		l.OnViewModelInstanceNamesListed(cb.Handle, cb.RequestID, cb.ViewModel, cb.Names)
	case protocol.CallbackPropertiesListed:
		l.OnViewModelPropertiesListed(cb.Handle, cb.RequestID, cb.ViewModel, cb.Properties)
	case protocol.CallbackEnumsListed:
		l.OnViewModelEnumsListed(cb.Handle, cb.RequestID, cb.Enums)
	}
}

func deliverArtboard(l ArtboardListener, cb *protocol.Callback) {
	switch cb.Type {
	case protocol.CallbackStateMachineNamesListed:
		l.OnStateMachineNamesListed(cb.Handle, cb.Names, cb.RequestID)
	case protocol.CallbackDefaultViewModelReceived:
		l.OnDefaultViewModelInfoReceived(cb.Handle, cb.RequestID, cb.ViewModel, cb.Instance)
	case protocol.CallbackArtboardDeleted:
		l.OnArtboardDeleted(cb.Handle, cb.RequestID)
	case protocol.CallbackArtboardError:
		l.OnArtboardError(cb.Handle, cb.RequestID, cb.Message)
	}
}

func deliverImage(l ImageListener, cb *protocol.Callback) {
	switch cb.Type {
	case protocol.CallbackImageDecoded:
		l.OnImageDecoded(cb.Handle, cb.RequestID)
	case protocol.CallbackImageDeleted:
		l.OnImageDeleted(cb.Handle, cb.RequestID)
	case protocol.CallbackImageError:
		l.OnImageError(cb.Handle, cb.RequestID, cb.Message)
	}
}

func deliverFont(l FontListener, cb *protocol.Callback) {
	switch cb.Type {
	case protocol.CallbackFontDecoded:
		l.OnFontDecoded(cb.Handle, cb.RequestID)
	case protocol.CallbackFontError:
		l.OnFontError(cb.Handle, cb.RequestID, cb.Message)
	}
}

func deliverAudio(l AudioListener, cb *protocol.Callback) {
	switch cb.Type {
	case protocol.CallbackAudioDecoded:
		l.OnAudioDecoded(cb.Handle, cb.RequestID)
	case protocol.CallbackAudioError:
		l.OnAudioError(cb.Handle, cb.RequestID, cb.Message)
	}
}

func deliverInstance(l ViewModelInstanceListener, cb *protocol.Callback) {
	switch cb.Type {
	case protocol.CallbackViewModelDataReceived:
		if cb.Value != nil {
			l.OnViewModelDataReceived(cb.Handle, cb.RequestID, cb.Path, *cb.Value)
		}
	case protocol.CallbackInstanceNameReceived:
		l.OnViewModelInstanceNameReceived(cb.Handle, cb.RequestID, cb.Instance)
	case protocol.CallbackListSizeReceived:
		l.OnViewModelListSizeReceived(cb.Handle, cb.RequestID, cb.Path, cb.Size)
	case protocol.CallbackViewModelInstanceError:
		l.OnViewModelInstanceError(cb.Handle, cb.RequestID, cb.Message)
	}
}

// listeners maps handles of one kind to their listener.
type listeners[L any] struct {
	mu sync.Mutex
	m  map[protocol.Handle]L
}

func (ls *listeners[L]) set(h protocol.Handle, l L) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if ls.m == nil {
		ls.m = make(map[protocol.Handle]L)
	}
	ls.m[h] = l
}

func (ls *listeners[L]) get(h protocol.Handle) (L, bool) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	l, ok := ls.m[h]
	return l, ok
}

func (ls *listeners[L]) remove(h protocol.Handle) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	delete(ls.m, h)
}

func (ls *listeners[L]) len() int {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return len(ls.m)
}

// File commands

func (q *CommandQueue) LoadFile(data []byte, l FileListener, id protocol.RequestID) {
	h := q.allocHandle()
	q.files.set(h, l)
	q.send(&protocol.Command{Type: protocol.CommandLoadFile, RequestID: id, Handle: h, Data: data})
}

func (q *CommandQueue) DeleteFile(file protocol.Handle, id protocol.RequestID) {
	q.send(&protocol.Command{Type: protocol.CommandDeleteFile, RequestID: id, Handle: file})
}

func (q *CommandQueue) DeleteFileListener(file protocol.Handle) {
	q.files.remove(file)
}

func (q *CommandQueue) RequestArtboardNames(file protocol.Handle, id protocol.RequestID) {
	q.send(&protocol.Command{Type: protocol.CommandRequestArtboardNames, RequestID: id, Handle: file})
}

func (q *CommandQueue) RequestViewModelNames(file protocol.Handle, id protocol.RequestID) {
	q.send(&protocol.Command{Type: protocol.CommandRequestViewModelNames, RequestID: id, Handle: file})
}

func (q *CommandQueue) RequestViewModelInstanceNames(file protocol.Handle, viewModel string, id protocol.RequestID) {
	q.send(&protocol.Command{Type: protocol.CommandRequestInstanceNames, RequestID: id, Handle: file, Name: viewModel})
}

func (q *CommandQueue) RequestViewModelPropertyDefinitions(file protocol.Handle, viewModel string, id protocol.RequestID) {
	q.send(&protocol.Command{Type: protocol.CommandRequestPropertyDefs, RequestID: id, Handle: file, Name: viewModel})
}

func (q *CommandQueue) RequestViewModelEnums(file protocol.Handle, id protocol.RequestID) {
	q.send(&protocol.Command{Type: protocol.CommandRequestViewModelEnums, RequestID: id, Handle: file})
}

// Artboard commands

func (q *CommandQueue) CreateDefaultArtboard(file protocol.Handle, l ArtboardListener, id protocol.RequestID) protocol.Handle {
	return q.CreateArtboardNamed(file, "", l, id)
}

// CreateArtboardNamed creates the named artboard, or the default one when
// name is empty.
func (q *CommandQueue) CreateArtboardNamed(file protocol.Handle, name string, l ArtboardListener, id protocol.RequestID) protocol.Handle {
	h := q.allocHandle()
	q.artboards.set(h, l)
	q.send(&protocol.Command{Type: protocol.CommandCreateArtboard, RequestID: id, Handle: h, Parent: file, Name: name})
	return h
}

func (q *CommandQueue) RequestStateMachineNames(artboard protocol.Handle, id protocol.RequestID) {
	q.send(&protocol.Command{Type: protocol.CommandRequestStateMachines, RequestID: id, Handle: artboard})
}

func (q *CommandQueue) RequestDefaultViewModelInfo(artboard, file protocol.Handle, id protocol.RequestID) {
	q.send(&protocol.Command{Type: protocol.CommandRequestDefaultViewModel, RequestID: id, Handle: artboard, Parent: file})
}

func (q *CommandQueue) SetArtboardSize(artboard protocol.Handle, width, height, scale float32, id protocol.RequestID) {
	q.send(&protocol.Command{
		Type:      protocol.CommandSetArtboardSize,
		RequestID: id,
		Handle:    artboard,
		Width:     width,
		Height:    height,
		Scale:     scale,
	})
}

func (q *CommandQueue) ResetArtboardSize(artboard protocol.Handle, id protocol.RequestID) {
	q.send(&protocol.Command{Type: protocol.CommandResetArtboardSize, RequestID: id, Handle: artboard})
}

func (q *CommandQueue) DeleteArtboard(artboard protocol.Handle, id protocol.RequestID) {
	q.send(&protocol.Command{Type: protocol.CommandDeleteArtboard, RequestID: id, Handle: artboard})
}

func (q *CommandQueue) DeleteArtboardListener(artboard protocol.Handle) {
	q.artboards.remove(artboard)
}

// State machine commands

func (q *CommandQueue) CreateDefaultStateMachine(artboard protocol.Handle, id protocol.RequestID) protocol.Handle {
	return q.CreateStateMachineNamed(artboard, "", id)
}

// CreateStateMachineNamed creates the named state machine, or the default one
// when name is empty.
func (q *CommandQueue) CreateStateMachineNamed(artboard protocol.Handle, name string, id protocol.RequestID) protocol.Handle {
	h := q.allocHandle()
	q.send(&protocol.Command{Type: protocol.CommandCreateStateMachine, RequestID: id, Handle: h, Parent: artboard, Name: name})
	return h
}

func (q *CommandQueue) AdvanceStateMachine(sm protocol.Handle, dt time.Duration, id protocol.RequestID) {
	q.send(&protocol.Command{Type: protocol.CommandAdvanceStateMachine, RequestID: id, Handle: sm, Delta: dt})
}

func (q *CommandQueue) BindViewModelInstance(sm, vmi protocol.Handle, id protocol.RequestID) {
	q.send(&protocol.Command{Type: protocol.CommandBindViewModelInstance, RequestID: id, Handle: sm, Target: vmi})
}

func (q *CommandQueue) SendPointerEvent(sm protocol.Handle, ev protocol.PointerEvent, id protocol.RequestID) {
	q.send(&protocol.Command{Type: protocol.CommandPointerEvent, RequestID: id, Handle: sm, Pointer: &ev})
}

func (q *CommandQueue) DeleteStateMachine(sm protocol.Handle, id protocol.RequestID) {
	q.send(&protocol.Command{Type: protocol.CommandDeleteStateMachine, RequestID: id, Handle: sm})
}

// Asset commands

func (q *CommandQueue) DecodeImage(data []byte, l ImageListener, id protocol.RequestID) {
	h := q.allocHandle()
	q.images.set(h, l)
	q.send(&protocol.Command{Type: protocol.CommandDecodeImage, RequestID: id, Handle: h, Data: data})
}

func (q *CommandQueue) DeleteImage(image protocol.Handle, id protocol.RequestID) {
	q.send(&protocol.Command{Type: protocol.CommandDeleteImage, RequestID: id, Handle: image})
}

func (q *CommandQueue) DeleteImageListener(image protocol.Handle) {
	q.images.remove(image)
}

func (q *CommandQueue) DecodeFont(data []byte, l FontListener, id protocol.RequestID) {
	h := q.allocHandle()
	q.fonts.set(h, l)
	q.send(&protocol.Command{Type: protocol.CommandDecodeFont, RequestID: id, Handle: h, Data: data})
}

// DeleteFont deletes the font and drops its listener; fonts get no deleted
// callback.
func (q *CommandQueue) DeleteFont(font protocol.Handle, id protocol.RequestID) {
	q.fonts.remove(font)
	q.send(&protocol.Command{Type: protocol.CommandDeleteFont, RequestID: id, Handle: font})
}

func (q *CommandQueue) DecodeAudio(data []byte, l AudioListener, id protocol.RequestID) {
	h := q.allocHandle()
	q.audio.set(h, l)
	q.send(&protocol.Command{Type: protocol.CommandDecodeAudio, RequestID: id, Handle: h, Data: data})
}

// DeleteAudio deletes the audio clip and drops its listener.
func (q *CommandQueue) DeleteAudio(audio protocol.Handle, id protocol.RequestID) {
	q.audio.remove(audio)
	q.send(&protocol.Command{Type: protocol.CommandDeleteAudio, RequestID: id, Handle: audio})
}

// View model instance commands

func (q *CommandQueue) CreateViewModelInstance(file protocol.Handle, src protocol.InstanceSource, l ViewModelInstanceListener, id protocol.RequestID) protocol.Handle {
	h := q.allocHandle()
	q.instances.set(h, l)
	q.send(&protocol.Command{Type: protocol.CommandCreateInstance, RequestID: id, Handle: h, Parent: file, Source: &src})
	return h
}

func (q *CommandQueue) ReferenceNestedViewModelInstance(vmi protocol.Handle, path string, l ViewModelInstanceListener, id protocol.RequestID) protocol.Handle {
	h := q.allocHandle()
	q.instances.set(h, l)
	q.send(&protocol.Command{Type: protocol.CommandReferenceNested, RequestID: id, Handle: h, Parent: vmi, Path: path})
	return h
}

func (q *CommandQueue) ReferenceListViewModelInstance(vmi protocol.Handle, path string, index int, l ViewModelInstanceListener, id protocol.RequestID) protocol.Handle {
	h := q.allocHandle()
	q.instances.set(h, l)
	q.send(&protocol.Command{Type: protocol.CommandReferenceListItem, RequestID: id, Handle: h, Parent: vmi, Path: path, Index: index})
	return h
}

func (q *CommandQueue) RequestViewModelInstanceName(vmi protocol.Handle, id protocol.RequestID) {
	q.send(&protocol.Command{Type: protocol.CommandRequestInstanceName, RequestID: id, Handle: vmi})
}

func (q *CommandQueue) RequestViewModelInstanceValue(vmi protocol.Handle, path string, dt protocol.DataType, id protocol.RequestID) {
	q.send(&protocol.Command{Type: protocol.CommandRequestValue, RequestID: id, Handle: vmi, Path: path, DataType: dt})
}

func (q *CommandQueue) SetViewModelInstanceValue(vmi protocol.Handle, path string, v protocol.Value, id protocol.RequestID) {
	q.send(&protocol.Command{Type: protocol.CommandSetValue, RequestID: id, Handle: vmi, Path: path, Value: &v, DataType: v.Type})
}

func (q *CommandQueue) FireViewModelTrigger(vmi protocol.Handle, path string, id protocol.RequestID) {
	q.send(&protocol.Command{Type: protocol.CommandFireTrigger, RequestID: id, Handle: vmi, Path: path, DataType: protocol.DataTypeTrigger})
}

func (q *CommandQueue) SetViewModelInstanceImage(vmi protocol.Handle, path string, image protocol.Handle, id protocol.RequestID) {
	q.send(&protocol.Command{Type: protocol.CommandSetImage, RequestID: id, Handle: vmi, Path: path, Target: image})
}

func (q *CommandQueue) SetViewModelInstanceArtboard(vmi protocol.Handle, path string, artboard protocol.Handle, id protocol.RequestID) {
	q.send(&protocol.Command{Type: protocol.CommandSetArtboard, RequestID: id, Handle: vmi, Path: path, Target: artboard})
}

func (q *CommandQueue) SetViewModelInstanceNested(vmi protocol.Handle, path string, nested protocol.Handle, id protocol.RequestID) {
	q.send(&protocol.Command{Type: protocol.CommandSetNestedInstance, RequestID: id, Handle: vmi, Path: path, Target: nested})
}

func (q *CommandQueue) RequestViewModelInstanceListSize(vmi protocol.Handle, path string, id protocol.RequestID) {
	q.send(&protocol.Command{Type: protocol.CommandRequestListSize, RequestID: id, Handle: vmi, Path: path})
}

func (q *CommandQueue) AppendViewModelInstanceListItem(vmi protocol.Handle, path string, item protocol.Handle, id protocol.RequestID) {
	q.send(&protocol.Command{Type: protocol.CommandAppendListItem, RequestID: id, Handle: vmi, Path: path, Target: item})
}

func (q *CommandQueue) InsertViewModelInstanceListItem(vmi protocol.Handle, path string, item protocol.Handle, index int, id protocol.RequestID) {
	q.send(&protocol.Command{Type: protocol.CommandInsertListItem, RequestID: id, Handle: vmi, Path: path, Target: item, Index: index})
}

func (q *CommandQueue) RemoveViewModelInstanceListItem(vmi protocol.Handle, path string, index int, id protocol.RequestID) {
	q.send(&protocol.Command{Type: protocol.CommandRemoveListItem, RequestID: id, Handle: vmi, Path: path, Index: index})
}

func (q *CommandQueue) SwapViewModelInstanceListItems(vmi protocol.Handle, path string, a, b int, id protocol.RequestID) {
	q.send(&protocol.Command{Type: protocol.CommandSwapListItems, RequestID: id, Handle: vmi, Path: path, Index: a, Index2: b})
}

func (q *CommandQueue) SubscribeToViewModelProperty(vmi protocol.Handle, path string, dt protocol.DataType, id protocol.RequestID) {
	q.send(&protocol.Command{Type: protocol.CommandSubscribe, RequestID: id, Handle: vmi, Path: path, DataType: dt})
}

func (q *CommandQueue) UnsubscribeFromViewModelProperty(vmi protocol.Handle, path string, dt protocol.DataType, id protocol.RequestID) {
	q.send(&protocol.Command{Type: protocol.CommandUnsubscribe, RequestID: id, Handle: vmi, Path: path, DataType: dt})
}

// DeleteViewModelInstance deletes the instance and drops its listener.
func (q *CommandQueue) DeleteViewModelInstance(vmi protocol.Handle, id protocol.RequestID) {
	q.instances.remove(vmi)
	q.send(&protocol.Command{Type: protocol.CommandDeleteInstance, RequestID: id, Handle: vmi})
}

// Worker commands

func (q *CommandQueue) AddGlobalImageAsset(name string, image protocol.Handle, id protocol.RequestID) {
	q.addGlobal(protocol.KindImage, name, image, id)
}

func (q *CommandQueue) AddGlobalFontAsset(name string, font protocol.Handle, id protocol.RequestID) {
	q.addGlobal(protocol.KindFont, name, font, id)
}

func (q *CommandQueue) AddGlobalAudioAsset(name string, audio protocol.Handle, id protocol.RequestID) {
	q.addGlobal(protocol.KindAudio, name, audio, id)
}

func (q *CommandQueue) RemoveGlobalImageAsset(name string, id protocol.RequestID) {
	q.removeGlobal(protocol.KindImage, name, id)
}

func (q *CommandQueue) RemoveGlobalFontAsset(name string, id protocol.RequestID) {
	q.removeGlobal(protocol.KindFont, name, id)
}

func (q *CommandQueue) RemoveGlobalAudioAsset(name string, id protocol.RequestID) {
	q.removeGlobal(protocol.KindAudio, name, id)
}

func (q *CommandQueue) addGlobal(kind protocol.Kind, name string, h protocol.Handle, id protocol.RequestID) {
	q.send(&protocol.Command{Type: protocol.CommandAddGlobalAsset, RequestID: id, AssetKind: kind, Name: name, Target: h})
}

func (q *CommandQueue) removeGlobal(kind protocol.Kind, name string, id protocol.RequestID) {
	q.send(&protocol.Command{Type: protocol.CommandRemoveGlobalAsset, RequestID: id, AssetKind: kind, Name: name})
}
