// Package protocol defines the command and callback messages exchanged between
// an animkit command queue and the command server that drives the engine.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Handle identifies an engine-side object. Handles are only meaningful
// relative to the command queue that allocated them.
type Handle uint64

// InvalidHandle is never issued by a command queue.
const InvalidHandle Handle = 0

// RequestID correlates one issued command with its eventual callback.
type RequestID uint64

// Kind names the resource kind a handle or callback refers to.
type Kind string

const (
	KindFile              Kind = "file"
	KindArtboard          Kind = "artboard"
	KindStateMachine      Kind = "state_machine"
	KindImage             Kind = "image"
	KindFont              Kind = "font"
	KindAudio             Kind = "audio"
	KindViewModelInstance Kind = "view_model_instance"
	KindWorker            Kind = "worker"
)

// MessageType represents the type of a framed message on a stream transport.
type MessageType string

const (
	// MessageTypeReady is sent by a server once it accepts commands
	MessageTypeReady MessageType = "READY"
	// MessageTypeCommand carries a Command from the queue to the server
	MessageTypeCommand MessageType = "CMD"
	// MessageTypeCallback carries a Callback from the server to the queue
	MessageTypeCallback MessageType = "CALLBACK"
	// MessageTypeExit is sent by a server before it stops
	MessageTypeExit MessageType = "EXIT"
)

// Message is the envelope for all framed messages.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// ReadyMessage is sent when the server is ready to receive commands.
type ReadyMessage struct {
	Version  string            `json:"version"`
	Device   string            `json:"device"`
	PID      int               `json:"pid"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ExitMessage is sent before the server terminates.
type ExitMessage struct {
	Reason        string `json:"reason"`
	CommandsTotal int    `json:"commands_total"`
}

// CommandType identifies a command.
type CommandType string

const (
	CommandLoadFile                CommandType = "file.load"
	CommandDeleteFile              CommandType = "file.delete"
	CommandRequestArtboardNames    CommandType = "file.artboard_names"
	CommandRequestViewModelNames   CommandType = "file.view_model_names"
	CommandRequestInstanceNames    CommandType = "file.instance_names"
	CommandRequestPropertyDefs     CommandType = "file.property_definitions"
	CommandRequestViewModelEnums   CommandType = "file.view_model_enums"
	CommandCreateArtboard          CommandType = "artboard.create"
	CommandRequestStateMachines    CommandType = "artboard.state_machine_names"
	CommandRequestDefaultViewModel CommandType = "artboard.default_view_model"
	CommandSetArtboardSize         CommandType = "artboard.set_size"
	CommandResetArtboardSize       CommandType = "artboard.reset_size"
	CommandDeleteArtboard          CommandType = "artboard.delete"
	CommandCreateStateMachine      CommandType = "state_machine.create"
	CommandAdvanceStateMachine     CommandType = "state_machine.advance"
	CommandBindViewModelInstance   CommandType = "state_machine.bind"
	CommandPointerEvent            CommandType = "state_machine.pointer"
	CommandDeleteStateMachine      CommandType = "state_machine.delete"
	CommandDecodeImage             CommandType = "image.decode"
	CommandDeleteImage             CommandType = "image.delete"
	CommandDecodeFont              CommandType = "font.decode"
	CommandDeleteFont              CommandType = "font.delete"
	CommandDecodeAudio             CommandType = "audio.decode"
	CommandDeleteAudio             CommandType = "audio.delete"
	CommandCreateInstance          CommandType = "vmi.create"
	CommandReferenceNested         CommandType = "vmi.reference_nested"
	CommandReferenceListItem       CommandType = "vmi.reference_list_item"
	CommandRequestInstanceName     CommandType = "vmi.name"
	CommandRequestValue            CommandType = "vmi.get"
	CommandSetValue                CommandType = "vmi.set"
	CommandFireTrigger             CommandType = "vmi.fire"
	CommandSetImage                CommandType = "vmi.set_image"
	CommandSetArtboard             CommandType = "vmi.set_artboard"
	CommandSetNestedInstance       CommandType = "vmi.set_nested"
	CommandRequestListSize         CommandType = "vmi.list_size"
	CommandAppendListItem          CommandType = "vmi.list_append"
	CommandInsertListItem          CommandType = "vmi.list_insert"
	CommandRemoveListItem          CommandType = "vmi.list_remove"
	CommandSwapListItems           CommandType = "vmi.list_swap"
	CommandSubscribe               CommandType = "vmi.subscribe"
	CommandUnsubscribe             CommandType = "vmi.unsubscribe"
	CommandDeleteInstance          CommandType = "vmi.delete"
	CommandAddGlobalAsset          CommandType = "worker.add_global_asset"
	CommandRemoveGlobalAsset       CommandType = "worker.remove_global_asset"
	CommandDisconnect              CommandType = "worker.disconnect"
)

var commandKinds = map[CommandType]Kind{
	CommandLoadFile:                KindFile,
	CommandDeleteFile:              KindFile,
	CommandRequestArtboardNames:    KindFile,
	CommandRequestViewModelNames:   KindFile,
	CommandRequestInstanceNames:    KindFile,
	CommandRequestPropertyDefs:     KindFile,
	CommandRequestViewModelEnums:   KindFile,
	CommandCreateArtboard:          KindArtboard,
	CommandRequestStateMachines:    KindArtboard,
	CommandRequestDefaultViewModel: KindArtboard,
	CommandSetArtboardSize:         KindArtboard,
	CommandResetArtboardSize:       KindArtboard,
	CommandDeleteArtboard:          KindArtboard,
	CommandCreateStateMachine:      KindStateMachine,
	CommandAdvanceStateMachine:     KindStateMachine,
	CommandBindViewModelInstance:   KindStateMachine,
	CommandPointerEvent:            KindStateMachine,
	CommandDeleteStateMachine:      KindStateMachine,
	CommandDecodeImage:             KindImage,
	CommandDeleteImage:             KindImage,
	CommandDecodeFont:              KindFont,
	CommandDeleteFont:              KindFont,
	CommandDecodeAudio:             KindAudio,
	CommandDeleteAudio:             KindAudio,
	CommandCreateInstance:          KindViewModelInstance,
	CommandReferenceNested:         KindViewModelInstance,
	CommandReferenceListItem:       KindViewModelInstance,
	CommandRequestInstanceName:     KindViewModelInstance,
	CommandRequestValue:            KindViewModelInstance,
	CommandSetValue:                KindViewModelInstance,
	CommandFireTrigger:             KindViewModelInstance,
	CommandSetImage:                KindViewModelInstance,
	CommandSetArtboard:             KindViewModelInstance,
	CommandSetNestedInstance:       KindViewModelInstance,
	CommandRequestListSize:         KindViewModelInstance,
	CommandAppendListItem:          KindViewModelInstance,
	CommandInsertListItem:          KindViewModelInstance,
	CommandRemoveListItem:          KindViewModelInstance,
	CommandSwapListItems:           KindViewModelInstance,
	CommandSubscribe:               KindViewModelInstance,
	CommandUnsubscribe:             KindViewModelInstance,
	CommandDeleteInstance:          KindViewModelInstance,
	CommandAddGlobalAsset:          KindWorker,
	CommandRemoveGlobalAsset:       KindWorker,
	CommandDisconnect:              KindWorker,
}

// Kind returns the resource kind the command operates on.
func (ct CommandType) Kind() Kind {
	return commandKinds[ct]
}

// Validate checks if the command type is known.
func (ct CommandType) Validate() error {
	if _, ok := commandKinds[ct]; !ok {
		return fmt.Errorf("invalid command type: %s", ct)
	}
	return nil
}

// InstanceMode selects how a view model instance is created.
type InstanceMode string

const (
	InstanceBlank   InstanceMode = "blank"
	InstanceDefault InstanceMode = "default"
	InstanceNamed   InstanceMode = "named"
)

// InstanceSource describes where a new view model instance comes from.
// When Artboard is set the view model is the artboard's default view model,
// otherwise ViewModel names it.
type InstanceSource struct {
	Mode      InstanceMode `json:"mode"`
	Artboard  Handle       `json:"artboard,omitempty"`
	ViewModel string       `json:"view_model,omitempty"`
	Instance  string       `json:"instance,omitempty"`
}

// PointerKind is the phase of a pointer event forwarded to a state machine.
type PointerKind string

const (
	PointerDown PointerKind = "down"
	PointerMove PointerKind = "move"
	PointerUp   PointerKind = "up"
	PointerExit PointerKind = "exit"
)

// PointerEvent is a pointer position in artboard space.
type PointerEvent struct {
	Kind PointerKind `json:"kind"`
	X    float32     `json:"x"`
	Y    float32     `json:"y"`
}

// Command is a single request sent from a queue to a server. Fields not
// used by a command type are left zero.
type Command struct {
	Type      CommandType     `json:"type"`
	RequestID RequestID       `json:"request_id"`
	Handle    Handle          `json:"handle,omitempty"`
	Parent    Handle          `json:"parent,omitempty"`
	Target    Handle          `json:"target,omitempty"`
	AssetKind Kind            `json:"asset_kind,omitempty"`
	Name      string          `json:"name,omitempty"`
	Path      string          `json:"path,omitempty"`
	Data      []byte          `json:"data,omitempty"`
	Value     *Value          `json:"value,omitempty"`
	DataType  DataType        `json:"data_type,omitempty"`
	Source    *InstanceSource `json:"source,omitempty"`
	Pointer   *PointerEvent   `json:"pointer,omitempty"`
	Width     float32         `json:"width,omitempty"`
	Height    float32         `json:"height,omitempty"`
	Scale     float32         `json:"scale,omitempty"`
	Delta     time.Duration   `json:"delta,omitempty"`
	Index     int             `json:"index,omitempty"`
	Index2    int             `json:"index2,omitempty"`
}

// Validate checks if the command is well formed.
func (c *Command) Validate() error {
	if err := c.Type.Validate(); err != nil {
		return err
	}
	switch c.Type {
	case CommandDecodeImage, CommandDecodeFont, CommandDecodeAudio, CommandLoadFile:
		if c.Handle == InvalidHandle {
			return fmt.Errorf("%s requires a handle", c.Type)
		}
	case CommandAddGlobalAsset, CommandRemoveGlobalAsset:
		if c.Name == "" {
			return fmt.Errorf("%s requires a name", c.Type)
		}
		switch c.AssetKind {
		case KindImage, KindFont, KindAudio:
		default:
			return fmt.Errorf("%s: invalid asset kind %q", c.Type, c.AssetKind)
		}
	case CommandCreateInstance:
		if c.Source == nil {
			return fmt.Errorf("%s requires a source", c.Type)
		}
	case CommandPointerEvent:
		if c.Pointer == nil {
			return fmt.Errorf("%s requires a pointer event", c.Type)
		}
	}
	return nil
}

// CallbackType identifies a listener callback.
type CallbackType string

const (
	CallbackFileLoaded               CallbackType = "file.loaded"
	CallbackFileDeleted              CallbackType = "file.deleted"
	CallbackFileError                CallbackType = "file.error"
	CallbackArtboardsListed          CallbackType = "file.artboards_listed"
	CallbackViewModelsListed         CallbackType = "file.view_models_listed"
	CallbackInstanceNamesListed      CallbackType = "file.instance_names_listed"
	CallbackPropertiesListed         CallbackType = "file.properties_listed"
	CallbackEnumsListed              CallbackType = "file.enums_listed"
	CallbackStateMachineNamesListed  CallbackType = "artboard.state_machine_names_listed"
	CallbackDefaultViewModelReceived CallbackType = "artboard.default_view_model_received"
	CallbackArtboardDeleted          CallbackType = "artboard.deleted"
	CallbackArtboardError            CallbackType = "artboard.error"
	CallbackImageDecoded             CallbackType = "image.decoded"
	CallbackImageDeleted             CallbackType = "image.deleted"
	CallbackImageError               CallbackType = "image.error"
	CallbackFontDecoded              CallbackType = "font.decoded"
	CallbackFontError                CallbackType = "font.error"
	CallbackAudioDecoded             CallbackType = "audio.decoded"
	CallbackAudioError               CallbackType = "audio.error"
	CallbackViewModelDataReceived    CallbackType = "vmi.data_received"
	CallbackInstanceNameReceived     CallbackType = "vmi.name_received"
	CallbackListSizeReceived         CallbackType = "vmi.list_size_received"
	CallbackViewModelInstanceError   CallbackType = "vmi.error"
	CallbackStateMachineError        CallbackType = "state_machine.error"
)

var callbackKinds = map[CallbackType]Kind{
	CallbackFileLoaded:               KindFile,
	CallbackFileDeleted:              KindFile,
	CallbackFileError:                KindFile,
	CallbackArtboardsListed:          KindFile,
	CallbackViewModelsListed:         KindFile,
	CallbackInstanceNamesListed:      KindFile,
	CallbackPropertiesListed:         KindFile,
	CallbackEnumsListed:              KindFile,
	CallbackStateMachineNamesListed:  KindArtboard,
	CallbackDefaultViewModelReceived: KindArtboard,
	CallbackArtboardDeleted:          KindArtboard,
	CallbackArtboardError:            KindArtboard,
	CallbackImageDecoded:             KindImage,
	CallbackImageDeleted:             KindImage,
	CallbackImageError:               KindImage,
	CallbackFontDecoded:              KindFont,
	CallbackFontError:                KindFont,
	CallbackAudioDecoded:             KindAudio,
	CallbackAudioError:               KindAudio,
	CallbackViewModelDataReceived:    KindViewModelInstance,
	CallbackInstanceNameReceived:     KindViewModelInstance,
	CallbackListSizeReceived:         KindViewModelInstance,
	CallbackViewModelInstanceError:   KindViewModelInstance,
	CallbackStateMachineError:        KindStateMachine,
}

// Kind returns the resource kind whose listener receives the callback.
func (ct CallbackType) Kind() Kind {
	return callbackKinds[ct]
}

// Validate checks if the callback type is known.
func (ct CallbackType) Validate() error {
	if _, ok := callbackKinds[ct]; !ok {
		return fmt.Errorf("invalid callback type: %s", ct)
	}
	return nil
}

// IsError reports whether the callback carries a failure message.
func (ct CallbackType) IsError() bool {
	switch ct {
	case CallbackFileError, CallbackArtboardError, CallbackImageError,
		CallbackFontError, CallbackAudioError, CallbackViewModelInstanceError,
		CallbackStateMachineError:
		return true
	}
	return false
}

// Callback is a single result sent from a server back to a queue.
type Callback struct {
	Type       CallbackType   `json:"type"`
	RequestID  RequestID      `json:"request_id"`
	Handle     Handle         `json:"handle"`
	Origin     CommandType    `json:"origin,omitempty"`
	Message    string         `json:"message,omitempty"`
	Names      []string       `json:"names,omitempty"`
	ViewModel  string         `json:"view_model,omitempty"`
	Instance   string         `json:"instance,omitempty"`
	Properties []PropertyInfo `json:"properties,omitempty"`
	Enums      []EnumInfo     `json:"enums,omitempty"`
	Path       string         `json:"path,omitempty"`
	Value      *Value         `json:"value,omitempty"`
	Size       int            `json:"size,omitempty"`
}

// Validate checks if the callback is well formed.
func (c *Callback) Validate() error {
	if err := c.Type.Validate(); err != nil {
		return err
	}
	if c.Type.IsError() && c.Message == "" {
		return fmt.Errorf("%s requires a message", c.Type)
	}
	if c.Type == CallbackViewModelDataReceived && c.Value == nil {
		return fmt.Errorf("%s requires a value", c.Type)
	}
	return nil
}
