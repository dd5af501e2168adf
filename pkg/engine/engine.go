package engine

import (
	"time"

	"github.com/animkit/animkit/pkg/protocol"
)

// Engine executes commands on native-side objects. Calls are made from a
// single goroutine, in command order.
type Engine interface {
	FileEngine
	ArtboardEngine
	StateMachineEngine
	AssetEngine
	ViewModelEngine
}

// FileEngine loads files and answers queries about their contents.
type FileEngine interface {
	LoadFile(h protocol.Handle, data []byte) error
	DeleteFile(h protocol.Handle) error
	ArtboardNames(file protocol.Handle) ([]string, error)
	ViewModelNames(file protocol.Handle) ([]string, error)
	InstanceNames(file protocol.Handle, viewModel string) ([]string, error)
	PropertyDefinitions(file protocol.Handle, viewModel string) ([]protocol.PropertyInfo, error)
	Enums(file protocol.Handle) ([]protocol.EnumInfo, error)
}

// ArtboardEngine manages artboard instances.
type ArtboardEngine interface {
	// CreateArtboard instantiates the named artboard of file, or the
	// default artboard when name is empty.
	CreateArtboard(h, file protocol.Handle, name string) error
	StateMachineNames(artboard protocol.Handle) ([]string, error)
	DefaultViewModel(artboard protocol.Handle) (viewModel, instance string, err error)
	SetArtboardSize(artboard protocol.Handle, width, height, scale float32) error
	ResetArtboardSize(artboard protocol.Handle) error
	DeleteArtboard(artboard protocol.Handle) error
}

// StateMachineEngine manages state machine instances.
type StateMachineEngine interface {
	// CreateStateMachine instantiates the named state machine of artboard,
	// or the default one when name is empty.
	CreateStateMachine(h, artboard protocol.Handle, name string) error
	AdvanceStateMachine(sm protocol.Handle, dt time.Duration) error
	BindViewModelInstance(sm, vmi protocol.Handle) error
	PointerEvent(sm protocol.Handle, ev protocol.PointerEvent) error
	DeleteStateMachine(sm protocol.Handle) error
}

// AssetEngine decodes shared assets and keeps the global asset registry.
type AssetEngine interface {
	DecodeImage(h protocol.Handle, data []byte) error
	DeleteImage(h protocol.Handle) error
	DecodeFont(h protocol.Handle, data []byte) error
	DeleteFont(h protocol.Handle) error
	DecodeAudio(h protocol.Handle, data []byte) error
	DeleteAudio(h protocol.Handle) error

	// AddGlobalAsset registers h under name, replacing any asset of the
	// same kind already registered under that name.
	AddGlobalAsset(kind protocol.Kind, name string, h protocol.Handle) error
	RemoveGlobalAsset(kind protocol.Kind, name string) error
}

// ViewModelEngine manages view model instances and their properties. Paths
// address nested properties as "a/b/c".
type ViewModelEngine interface {
	CreateInstance(h, file protocol.Handle, src protocol.InstanceSource) error
	ReferenceNested(h, parent protocol.Handle, path string) error
	ReferenceListItem(h, parent protocol.Handle, path string, index int) error
	InstanceName(vmi protocol.Handle) (string, error)
	Value(vmi protocol.Handle, path string) (protocol.Value, error)
	SetValue(vmi protocol.Handle, path string, v protocol.Value) error
	FireTrigger(vmi protocol.Handle, path string) error
	SetImage(vmi protocol.Handle, path string, image protocol.Handle) error
	SetArtboard(vmi protocol.Handle, path string, artboard protocol.Handle) error
	SetNested(vmi protocol.Handle, path string, nested protocol.Handle) error
	ListSize(vmi protocol.Handle, path string) (int, error)
	AppendListItem(vmi protocol.Handle, path string, item protocol.Handle) error
	InsertListItem(vmi protocol.Handle, path string, item protocol.Handle, index int) error
	RemoveListItem(vmi protocol.Handle, path string, index int) error
	SwapListItems(vmi protocol.Handle, path string, a, b int) error
	DeleteInstance(vmi protocol.Handle) error
}
