package engine

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/animkit/animkit/pkg/protocol"
)

// Memory is an in-process Engine. It keeps decoded metadata and scene
// structure but renders nothing.
type Memory struct {
	mu     sync.Mutex
	device *Device

	files         *Arena[*fileData]
	artboards     *Arena[*artboardData]
	stateMachines *Arena[*stateMachineData]
	images        *Arena[ImageInfo]
	fonts         *Arena[FontInfo]
	audio         *Arena[AudioInfo]
	instances     *Arena[*instanceData]

	globals map[protocol.Kind]map[string]protocol.Handle
}

var _ Engine = (*Memory)(nil)

type fileData struct {
	scene *Scene
}

type artboardData struct {
	scene  *Scene
	doc    *ArtboardDoc
	width  float32
	height float32
	scale  float32
}

type stateMachineData struct {
	artboard protocol.Handle
	name     string
	elapsed  time.Duration
	bound    protocol.Handle
	pointer  *protocol.PointerEvent
}

// NewMemory creates an empty engine bound to device.
func NewMemory(device *Device) (*Memory, error) {
	if device == nil {
		return nil, NewInvalidError("no rendering device", nil)
	}
	return &Memory{
		device:        device,
		files:         NewArena[*fileData](protocol.KindFile),
		artboards:     NewArena[*artboardData](protocol.KindArtboard),
		stateMachines: NewArena[*stateMachineData](protocol.KindStateMachine),
		images:        NewArena[ImageInfo](protocol.KindImage),
		fonts:         NewArena[FontInfo](protocol.KindFont),
		audio:         NewArena[AudioInfo](protocol.KindAudio),
		instances:     NewArena[*instanceData](protocol.KindViewModelInstance),
		globals: map[protocol.Kind]map[string]protocol.Handle{
			protocol.KindImage: {},
			protocol.KindFont:  {},
			protocol.KindAudio: {},
		},
	}, nil
}

// Device returns the device the engine is bound to.
func (m *Memory) Device() *Device {
	return m.device
}

// Files

func (m *Memory) LoadFile(h protocol.Handle, data []byte) error {
	scene, err := ParseScene(data)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.files.Put(h, &fileData{scene: scene})
}

func (m *Memory) DeleteFile(h protocol.Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.files.Delete(h)
}

func (m *Memory) scene(file protocol.Handle) (*Scene, error) {
	f, err := m.files.Get(file)
	if err != nil {
		return nil, err
	}
	return f.scene, nil
}

func (m *Memory) ArtboardNames(file protocol.Handle) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	scene, err := m.scene(file)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(scene.Artboards))
	for _, ab := range scene.Artboards {
		names = append(names, ab.Name)
	}
	return names, nil
}

func (m *Memory) ViewModelNames(file protocol.Handle) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	scene, err := m.scene(file)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(scene.ViewModels))
	for _, vm := range scene.ViewModels {
		names = append(names, vm.Name)
	}
	return names, nil
}

func (m *Memory) InstanceNames(file protocol.Handle, viewModel string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	vm, err := m.viewModel(file, viewModel)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(vm.Instances))
	for _, inst := range vm.Instances {
		names = append(names, inst.Name)
	}
	return names, nil
}

func (m *Memory) PropertyDefinitions(file protocol.Handle, viewModel string) ([]protocol.PropertyInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	vm, err := m.viewModel(file, viewModel)
	if err != nil {
		return nil, err
	}
	props := make([]protocol.PropertyInfo, 0, len(vm.Properties))
	for _, p := range vm.Properties {
		props = append(props, protocol.PropertyInfo{Name: p.Name, Type: p.Type})
	}
	return props, nil
}

func (m *Memory) Enums(file protocol.Handle) ([]protocol.EnumInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	scene, err := m.scene(file)
	if err != nil {
		return nil, err
	}
	enums := make([]protocol.EnumInfo, 0, len(scene.Enums))
	for _, e := range scene.Enums {
		enums = append(enums, protocol.EnumInfo{Name: e.Name, Values: append([]string(nil), e.Values...)})
	}
	return enums, nil
}

func (m *Memory) viewModel(file protocol.Handle, name string) (*ViewModelDoc, error) {
	scene, err := m.scene(file)
	if err != nil {
		return nil, err
	}
	vm := scene.viewModel(name)
	if vm == nil {
		return nil, NewMissingNameError("view model", name)
	}
	return vm, nil
}

// Artboards

func (m *Memory) CreateArtboard(h, file protocol.Handle, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	scene, err := m.scene(file)
	if err != nil {
		return err
	}

	doc := &scene.Artboards[0]
	if name != "" {
		if doc = scene.artboard(name); doc == nil {
			return NewMissingNameError("artboard", name)
		}
	}

	return m.artboards.Put(h, &artboardData{
		scene:  scene,
		doc:    doc,
		width:  doc.Width,
		height: doc.Height,
		scale:  1,
	})
}

func (m *Memory) StateMachineNames(artboard protocol.Handle) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ab, err := m.artboards.Get(artboard)
	if err != nil {
		return nil, err
	}
	return append([]string{}, ab.doc.StateMachines...), nil
}

func (m *Memory) DefaultViewModel(artboard protocol.Handle) (string, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ab, err := m.artboards.Get(artboard)
	if err != nil {
		return "", "", err
	}
	if ab.doc.ViewModel == "" {
		return "", "", &EngineError{
			Class:   ErrorClassNotFound,
			Message: fmt.Sprintf("artboard %q has no view model", ab.doc.Name),
			Code:    ErrCodeUnknownName,
			Kind:    protocol.KindArtboard,
			Handle:  artboard,
		}
	}

	vm := ab.scene.viewModel(ab.doc.ViewModel)
	instance := ""
	if len(vm.Instances) > 0 {
		instance = vm.Instances[0].Name
	}
	return vm.Name, instance, nil
}

func (m *Memory) SetArtboardSize(artboard protocol.Handle, width, height, scale float32) error {
	if width <= 0 || height <= 0 || scale <= 0 {
		return NewInvalidError(fmt.Sprintf("invalid artboard size %gx%g@%g", width, height, scale), nil)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ab, err := m.artboards.Get(artboard)
	if err != nil {
		return err
	}
	ab.width, ab.height, ab.scale = width, height, scale
	return nil
}

func (m *Memory) ResetArtboardSize(artboard protocol.Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ab, err := m.artboards.Get(artboard)
	if err != nil {
		return err
	}
	ab.width, ab.height, ab.scale = ab.doc.Width, ab.doc.Height, 1
	return nil
}

func (m *Memory) DeleteArtboard(artboard protocol.Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.artboards.Delete(artboard)
}

// ArtboardSize returns the current size and scale of an artboard.
func (m *Memory) ArtboardSize(artboard protocol.Handle) (width, height, scale float32, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ab, err := m.artboards.Get(artboard)
	if err != nil {
		return 0, 0, 0, err
	}
	return ab.width, ab.height, ab.scale, nil
}

// State machines

func (m *Memory) CreateStateMachine(h, artboard protocol.Handle, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ab, err := m.artboards.Get(artboard)
	if err != nil {
		return err
	}

	if name == "" {
		if len(ab.doc.StateMachines) == 0 {
			return NewMissingNameError("default state machine on artboard", ab.doc.Name)
		}
		name = ab.doc.StateMachines[0]
	} else if !contains(ab.doc.StateMachines, name) {
		return NewMissingNameError("state machine", name)
	}

	return m.stateMachines.Put(h, &stateMachineData{artboard: artboard, name: name})
}

func (m *Memory) AdvanceStateMachine(sm protocol.Handle, dt time.Duration) error {
	if dt < 0 {
		return NewInvalidError(fmt.Sprintf("negative time step %s", dt), nil)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.stateMachines.Get(sm)
	if err != nil {
		return err
	}
	s.elapsed += dt
	return nil
}

func (m *Memory) BindViewModelInstance(sm, vmi protocol.Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.stateMachines.Get(sm)
	if err != nil {
		return err
	}
	if !m.instances.Has(vmi) {
		return NewNotFoundError(protocol.KindViewModelInstance, vmi)
	}
	s.bound = vmi
	return nil
}

func (m *Memory) PointerEvent(sm protocol.Handle, ev protocol.PointerEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.stateMachines.Get(sm)
	if err != nil {
		return err
	}
	s.pointer = &ev
	return nil
}

func (m *Memory) DeleteStateMachine(sm protocol.Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stateMachines.Delete(sm)
}

// StateMachineState is a snapshot of a state machine instance.
type StateMachineState struct {
	Name     string
	Artboard protocol.Handle
	Elapsed  time.Duration
	Bound    protocol.Handle
	Pointer  *protocol.PointerEvent
}

// StateMachine returns a snapshot of sm.
func (m *Memory) StateMachine(sm protocol.Handle) (StateMachineState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.stateMachines.Get(sm)
	if err != nil {
		return StateMachineState{}, err
	}
	return StateMachineState{
		Name:     s.name,
		Artboard: s.artboard,
		Elapsed:  s.elapsed,
		Bound:    s.bound,
		Pointer:  s.pointer,
	}, nil
}

// Assets

func (m *Memory) DecodeImage(h protocol.Handle, data []byte) error {
	info, err := decodeImage(data)
	if err != nil {
		return annotate(err, protocol.KindImage, h)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.images.Put(h, info)
}

func (m *Memory) DeleteImage(h protocol.Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.images.Delete(h)
}

func (m *Memory) DecodeFont(h protocol.Handle, data []byte) error {
	info, err := decodeFont(data)
	if err != nil {
		return annotate(err, protocol.KindFont, h)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fonts.Put(h, info)
}

func (m *Memory) DeleteFont(h protocol.Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fonts.Delete(h)
}

func (m *Memory) DecodeAudio(h protocol.Handle, data []byte) error {
	info, err := decodeAudio(data)
	if err != nil {
		return annotate(err, protocol.KindAudio, h)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.audio.Put(h, info)
}

func (m *Memory) DeleteAudio(h protocol.Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.audio.Delete(h)
}

// Image returns the metadata of a decoded image.
func (m *Memory) Image(h protocol.Handle) (ImageInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.images.Get(h)
}

// Font returns the metadata of a decoded font.
func (m *Memory) Font(h protocol.Handle) (FontInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fonts.Get(h)
}

// Audio returns the metadata of a decoded audio clip.
func (m *Memory) Audio(h protocol.Handle) (AudioInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.audio.Get(h)
}

func (m *Memory) assetExists(kind protocol.Kind, h protocol.Handle) bool {
	switch kind {
	case protocol.KindImage:
		return m.images.Has(h)
	case protocol.KindFont:
		return m.fonts.Has(h)
	case protocol.KindAudio:
		return m.audio.Has(h)
	}
	return false
}

func (m *Memory) AddGlobalAsset(kind protocol.Kind, name string, h protocol.Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	registry, ok := m.globals[kind]
	if !ok {
		return NewInvalidError(fmt.Sprintf("%s cannot be a global asset", kind), nil)
	}
	if !m.assetExists(kind, h) {
		return NewNotFoundError(kind, h)
	}
	registry[name] = h
	return nil
}

func (m *Memory) RemoveGlobalAsset(kind protocol.Kind, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	registry, ok := m.globals[kind]
	if !ok {
		return NewInvalidError(fmt.Sprintf("%s cannot be a global asset", kind), nil)
	}
	if _, ok := registry[name]; !ok {
		return NewMissingNameError("global "+string(kind)+" asset", name)
	}
	delete(registry, name)
	return nil
}

// GlobalAsset returns the handle registered under name.
func (m *Memory) GlobalAsset(kind protocol.Kind, name string) (protocol.Handle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.globals[kind][name]
	return h, ok
}

// Stats counts live objects by kind.
type Stats struct {
	Files         int
	Artboards     int
	StateMachines int
	Images        int
	Fonts         int
	Audio         int
	Instances     int
	GlobalAssets  int
}

// Stats returns the number of live objects.
func (m *Memory) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	globals := 0
	for _, registry := range m.globals {
		globals += len(registry)
	}
	return Stats{
		Files:         m.files.Len(),
		Artboards:     m.artboards.Len(),
		StateMachines: m.stateMachines.Len(),
		Images:        m.images.Len(),
		Fonts:         m.fonts.Len(),
		Audio:         m.audio.Len(),
		Instances:     m.instances.Len(),
		GlobalAssets:  globals,
	}
}

func annotate(err error, kind protocol.Kind, h protocol.Handle) error {
	var e *EngineError
	if errors.As(err, &e) {
		e.WithHandle(kind, h)
	}
	return err
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
