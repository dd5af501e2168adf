// Package commandqueue is the single submission channel between resource
// services and a command server.
//
// Commands are fire-and-forget. Results come back only through listener
// callbacks, tagged with the request ID supplied at issue time. Listener
// methods are invoked on the queue's router goroutine, never on the caller's.
package commandqueue

import (
	"time"

	"github.com/animkit/animkit/pkg/protocol"
)

// RequestIDSource issues request IDs.
type RequestIDSource interface {
	// NextRequestID returns a fresh ID on every call.
	NextRequestID() protocol.RequestID
}

// FileCommands is the slice of the queue used by the file service.
type FileCommands interface {
	RequestIDSource

	// LoadFile allocates a file handle and reports it through
	// l.OnFileLoaded or l.OnFileError.
	LoadFile(data []byte, l FileListener, id protocol.RequestID)
	DeleteFile(file protocol.Handle, id protocol.RequestID)
	DeleteFileListener(file protocol.Handle)
	RequestArtboardNames(file protocol.Handle, id protocol.RequestID)
	RequestViewModelNames(file protocol.Handle, id protocol.RequestID)
	RequestViewModelInstanceNames(file protocol.Handle, viewModel string, id protocol.RequestID)
	RequestViewModelPropertyDefinitions(file protocol.Handle, viewModel string, id protocol.RequestID)
	RequestViewModelEnums(file protocol.Handle, id protocol.RequestID)
}

// ArtboardCommands is the slice of the queue used by the artboard service.
type ArtboardCommands interface {
	RequestIDSource

	CreateDefaultArtboard(file protocol.Handle, l ArtboardListener, id protocol.RequestID) protocol.Handle
	CreateArtboardNamed(file protocol.Handle, name string, l ArtboardListener, id protocol.RequestID) protocol.Handle
	RequestStateMachineNames(artboard protocol.Handle, id protocol.RequestID)
	RequestDefaultViewModelInfo(artboard, file protocol.Handle, id protocol.RequestID)
	SetArtboardSize(artboard protocol.Handle, width, height, scale float32, id protocol.RequestID)
	ResetArtboardSize(artboard protocol.Handle, id protocol.RequestID)
	DeleteArtboard(artboard protocol.Handle, id protocol.RequestID)
	DeleteArtboardListener(artboard protocol.Handle)
}

// StateMachineCommands is the slice of the queue used by the state machine
// service. None of these produce a success callback.
type StateMachineCommands interface {
	RequestIDSource

	CreateDefaultStateMachine(artboard protocol.Handle, id protocol.RequestID) protocol.Handle
	CreateStateMachineNamed(artboard protocol.Handle, name string, id protocol.RequestID) protocol.Handle
	AdvanceStateMachine(sm protocol.Handle, dt time.Duration, id protocol.RequestID)
	BindViewModelInstance(sm, vmi protocol.Handle, id protocol.RequestID)
	SendPointerEvent(sm protocol.Handle, ev protocol.PointerEvent, id protocol.RequestID)
	DeleteStateMachine(sm protocol.Handle, id protocol.RequestID)
}

// ImageCommands is the slice of the queue used by the image service.
type ImageCommands interface {
	RequestIDSource

	// DecodeImage allocates an image handle and reports it through
	// l.OnImageDecoded or l.OnImageError.
	DecodeImage(data []byte, l ImageListener, id protocol.RequestID)
	DeleteImage(image protocol.Handle, id protocol.RequestID)
	DeleteImageListener(image protocol.Handle)
}

// FontCommands is the slice of the queue used by the font service.
type FontCommands interface {
	RequestIDSource

	DecodeFont(data []byte, l FontListener, id protocol.RequestID)
	DeleteFont(font protocol.Handle, id protocol.RequestID)
}

// AudioCommands is the slice of the queue used by the audio service.
type AudioCommands interface {
	RequestIDSource

	DecodeAudio(data []byte, l AudioListener, id protocol.RequestID)
	DeleteAudio(audio protocol.Handle, id protocol.RequestID)
}

// ViewModelInstanceCommands is the slice of the queue used by the view model
// instance service. Paths address nested properties as "a/b/c".
type ViewModelInstanceCommands interface {
	RequestIDSource

	CreateViewModelInstance(file protocol.Handle, src protocol.InstanceSource, l ViewModelInstanceListener, id protocol.RequestID) protocol.Handle
	ReferenceNestedViewModelInstance(vmi protocol.Handle, path string, l ViewModelInstanceListener, id protocol.RequestID) protocol.Handle
	ReferenceListViewModelInstance(vmi protocol.Handle, path string, index int, l ViewModelInstanceListener, id protocol.RequestID) protocol.Handle
	RequestViewModelInstanceName(vmi protocol.Handle, id protocol.RequestID)
	RequestViewModelInstanceValue(vmi protocol.Handle, path string, dt protocol.DataType, id protocol.RequestID)
	SetViewModelInstanceValue(vmi protocol.Handle, path string, v protocol.Value, id protocol.RequestID)
	FireViewModelTrigger(vmi protocol.Handle, path string, id protocol.RequestID)
	SetViewModelInstanceImage(vmi protocol.Handle, path string, image protocol.Handle, id protocol.RequestID)
	SetViewModelInstanceArtboard(vmi protocol.Handle, path string, artboard protocol.Handle, id protocol.RequestID)
	SetViewModelInstanceNested(vmi protocol.Handle, path string, nested protocol.Handle, id protocol.RequestID)
	RequestViewModelInstanceListSize(vmi protocol.Handle, path string, id protocol.RequestID)
	AppendViewModelInstanceListItem(vmi protocol.Handle, path string, item protocol.Handle, id protocol.RequestID)
	InsertViewModelInstanceListItem(vmi protocol.Handle, path string, item protocol.Handle, index int, id protocol.RequestID)
	RemoveViewModelInstanceListItem(vmi protocol.Handle, path string, index int, id protocol.RequestID)
	SwapViewModelInstanceListItems(vmi protocol.Handle, path string, a, b int, id protocol.RequestID)
	SubscribeToViewModelProperty(vmi protocol.Handle, path string, dt protocol.DataType, id protocol.RequestID)
	// UnsubscribeFromViewModelProperty ends the subscription opened with id.
	UnsubscribeFromViewModelProperty(vmi protocol.Handle, path string, dt protocol.DataType, id protocol.RequestID)
	DeleteViewModelInstance(vmi protocol.Handle, id protocol.RequestID)
}

// WorkerCommands is the slice of the queue used by a worker.
type WorkerCommands interface {
	RequestIDSource

	AddGlobalImageAsset(name string, image protocol.Handle, id protocol.RequestID)
	AddGlobalFontAsset(name string, font protocol.Handle, id protocol.RequestID)
	AddGlobalAudioAsset(name string, audio protocol.Handle, id protocol.RequestID)
	RemoveGlobalImageAsset(name string, id protocol.RequestID)
	RemoveGlobalFontAsset(name string, id protocol.RequestID)
	RemoveGlobalAudioAsset(name string, id protocol.RequestID)

	// Start begins routing callbacks.
	Start()
	// Disconnect asks the server to finish queued commands and stop.
	Disconnect()
	// Stop closes the transport and waits for the router to exit.
	Stop()
}

// Queue is the full command surface.
type Queue interface {
	FileCommands
	ArtboardCommands
	StateMachineCommands
	ImageCommands
	FontCommands
	AudioCommands
	ViewModelInstanceCommands
	WorkerCommands
}

// FileListener receives callbacks for one file handle.
type FileListener interface {
	OnFileLoaded(file protocol.Handle, id protocol.RequestID)
	OnFileDeleted(file protocol.Handle, id protocol.RequestID)
	OnFileError(file protocol.Handle, id protocol.RequestID, message string)
	OnArtboardsListed(file protocol.Handle, id protocol.RequestID, names []string)
	OnViewModelsListed(file protocol.Handle, id protocol.RequestID, names []string)
	OnViewModelInstanceNamesListed(file protocol.Handle, id protocol.RequestID, viewModel string, names []string)
	OnViewModelPropertiesListed(file protocol.Handle, id protocol.RequestID, viewModel string, props []protocol.PropertyInfo)
	OnViewModelEnumsListed(file protocol.Handle, id protocol.RequestID, enums []protocol.EnumInfo)
}

// ArtboardListener receives callbacks for one artboard handle.
type ArtboardListener interface {
	OnStateMachineNamesListed(artboard protocol.Handle, names []string, id protocol.RequestID)
	OnDefaultViewModelInfoReceived(artboard protocol.Handle, id protocol.RequestID, viewModel, instance string)
	OnArtboardDeleted(artboard protocol.Handle, id protocol.RequestID)
	OnArtboardError(artboard protocol.Handle, id protocol.RequestID, message string)
}

// ImageListener receives callbacks for one image handle.
type ImageListener interface {
	OnImageDecoded(image protocol.Handle, id protocol.RequestID)
	OnImageDeleted(image protocol.Handle, id protocol.RequestID)
	OnImageError(image protocol.Handle, id protocol.RequestID, message string)
}

// FontListener receives callbacks for one font handle.
type FontListener interface {
	OnFontDecoded(font protocol.Handle, id protocol.RequestID)
	OnFontError(font protocol.Handle, id protocol.RequestID, message string)
}

// AudioListener receives callbacks for one audio handle.
type AudioListener interface {
	OnAudioDecoded(audio protocol.Handle, id protocol.RequestID)
	OnAudioError(audio protocol.Handle, id protocol.RequestID, message string)
}

// ViewModelInstanceListener receives callbacks for one view model instance.
// OnViewModelDataReceived carries the request ID of the get or subscribe
// command that asked for the value.
type ViewModelInstanceListener interface {
	OnViewModelDataReceived(vmi protocol.Handle, id protocol.RequestID, path string, v protocol.Value)
	OnViewModelInstanceNameReceived(vmi protocol.Handle, id protocol.RequestID, name string)
	OnViewModelListSizeReceived(vmi protocol.Handle, id protocol.RequestID, path string, size int)
	OnViewModelInstanceError(vmi protocol.Handle, id protocol.RequestID, message string)
}
