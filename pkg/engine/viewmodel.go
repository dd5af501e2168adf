package engine

import (
	"fmt"
	"strings"

	"github.com/animkit/animkit/pkg/protocol"
)

// instanceData is one view model instance. Several handles may refer to the
// same instanceData when it is reached through a nested property or a list.
type instanceData struct {
	scene     *Scene
	vm        *ViewModelDoc
	name      string
	values    map[string]protocol.Value
	triggers  map[string]int
	nested    map[string]*instanceData
	lists     map[string][]*instanceData
	images    map[string]protocol.Handle
	artboards map[string]protocol.Handle
}

func newInstanceData(scene *Scene, vm *ViewModelDoc, doc *InstanceDoc) (*instanceData, error) {
	inst := &instanceData{
		scene:     scene,
		vm:        vm,
		values:    make(map[string]protocol.Value),
		triggers:  make(map[string]int),
		nested:    make(map[string]*instanceData),
		lists:     make(map[string][]*instanceData),
		images:    make(map[string]protocol.Handle),
		artboards: make(map[string]protocol.Handle),
	}
	for i := range vm.Properties {
		p := &vm.Properties[i]
		if p.Type.Scalar() {
			inst.values[p.Name] = scene.zero(p)
		}
	}
	if doc == nil {
		return inst, nil
	}

	inst.name = doc.Name
	for key, raw := range doc.Values {
		p := vm.property(key)
		if p == nil {
			return nil, NewMissingNameError("property", key).WithCode(ErrCodeUnknownProperty)
		}
		v, err := scene.convert(p, raw)
		if err != nil {
			return nil, NewInvalidError("invalid initial value", err).WithCode(ErrCodeTypeMismatch)
		}
		inst.values[p.Name] = v
	}
	return inst, nil
}

// nestedInstance returns the instance held by a viewModel property, creating
// a blank one on first access.
func (inst *instanceData) nestedInstance(p *PropertyDoc) (*instanceData, error) {
	if child, ok := inst.nested[p.Name]; ok {
		return child, nil
	}
	vm := inst.scene.viewModel(p.ViewModel)
	if vm == nil {
		return nil, NewMissingNameError("view model", p.ViewModel)
	}
	child, err := newInstanceData(inst.scene, vm, nil)
	if err != nil {
		return nil, err
	}
	inst.nested[p.Name] = child
	return child, nil
}

// resolve walks path and returns the instance owning the final property.
func (inst *instanceData) resolve(path string) (*instanceData, *PropertyDoc, error) {
	if path == "" {
		return nil, nil, NewInvalidError("empty property path", nil)
	}

	owner := inst
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		p := owner.vm.property(seg)
		if p == nil {
			return nil, nil, &EngineError{
				Class:   ErrorClassNotFound,
				Message: fmt.Sprintf("view model %q has no property %q", owner.vm.Name, seg),
				Code:    ErrCodeUnknownProperty,
			}
		}
		if i == len(segments)-1 {
			return owner, p, nil
		}
		if p.Type != protocol.DataTypeViewModel {
			return nil, nil, typeMismatch(p, protocol.DataTypeViewModel)
		}
		next, err := owner.nestedInstance(p)
		if err != nil {
			return nil, nil, err
		}
		owner = next
	}
	return owner, nil, nil
}

func typeMismatch(p *PropertyDoc, want protocol.DataType) *EngineError {
	return NewInvalidError(fmt.Sprintf("property %q is a %s, not a %s", p.Name, p.Type, want), nil).
		WithCode(ErrCodeTypeMismatch)
}

func indexOutOfRange(p *PropertyDoc, index, size int) *EngineError {
	return NewInvalidError(fmt.Sprintf("index %d out of range for list %q of size %d", index, p.Name, size), nil).
		WithCode(ErrCodeIndexOutOfRange)
}

func (m *Memory) property(vmi protocol.Handle, path string, want protocol.DataType) (*instanceData, *PropertyDoc, error) {
	inst, err := m.instances.Get(vmi)
	if err != nil {
		return nil, nil, err
	}
	owner, p, err := inst.resolve(path)
	if err != nil {
		return nil, nil, annotate(err, protocol.KindViewModelInstance, vmi)
	}
	if want != protocol.DataTypeAny && p.Type != want {
		return nil, nil, typeMismatch(p, want).WithHandle(protocol.KindViewModelInstance, vmi)
	}
	return owner, p, nil
}

func (m *Memory) CreateInstance(h, file protocol.Handle, src protocol.InstanceSource) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	scene, err := m.scene(file)
	if err != nil {
		return err
	}

	var vm *ViewModelDoc
	if src.Artboard != protocol.InvalidHandle {
		ab, err := m.artboards.Get(src.Artboard)
		if err != nil {
			return err
		}
		if ab.doc.ViewModel == "" {
			return NewMissingNameError("view model for artboard", ab.doc.Name)
		}
		vm = ab.scene.viewModel(ab.doc.ViewModel)
		scene = ab.scene
	} else {
		if vm = scene.viewModel(src.ViewModel); vm == nil {
			return NewMissingNameError("view model", src.ViewModel)
		}
	}

	var doc *InstanceDoc
	switch src.Mode {
	case protocol.InstanceBlank:
	case protocol.InstanceDefault:
		if len(vm.Instances) > 0 {
			doc = &vm.Instances[0]
		}
	case protocol.InstanceNamed:
		if doc = vm.instance(src.Instance); doc == nil {
			return NewMissingNameError("instance of "+vm.Name, src.Instance)
		}
	default:
		return NewInvalidError(fmt.Sprintf("unknown instance mode %q", src.Mode), nil)
	}

	inst, err := newInstanceData(scene, vm, doc)
	if err != nil {
		return err
	}
	return m.instances.Put(h, inst)
}

func (m *Memory) ReferenceNested(h, parent protocol.Handle, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	owner, p, err := m.property(parent, path, protocol.DataTypeViewModel)
	if err != nil {
		return err
	}
	child, err := owner.nestedInstance(p)
	if err != nil {
		return err
	}
	return m.instances.Put(h, child)
}

func (m *Memory) ReferenceListItem(h, parent protocol.Handle, path string, index int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	owner, p, err := m.property(parent, path, protocol.DataTypeList)
	if err != nil {
		return err
	}
	items := owner.lists[p.Name]
	if index < 0 || index >= len(items) {
		return indexOutOfRange(p, index, len(items)).WithHandle(protocol.KindViewModelInstance, parent)
	}
	return m.instances.Put(h, items[index])
}

func (m *Memory) InstanceName(vmi protocol.Handle) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inst, err := m.instances.Get(vmi)
	if err != nil {
		return "", err
	}
	return inst.name, nil
}

// Value returns the current value at path. Properties that are not scalars
// read as a value of type none.
func (m *Memory) Value(vmi protocol.Handle, path string) (protocol.Value, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	owner, p, err := m.property(vmi, path, protocol.DataTypeAny)
	if err != nil {
		return protocol.Value{}, err
	}
	switch {
	case p.Type.Scalar():
		return owner.values[p.Name], nil
	case p.Type == protocol.DataTypeTrigger:
		return protocol.Value{Type: protocol.DataTypeTrigger, Number: float64(owner.triggers[p.Name])}, nil
	}
	return protocol.Value{Type: protocol.DataTypeNone}, nil
}

func (m *Memory) SetValue(vmi protocol.Handle, path string, v protocol.Value) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !v.Type.Scalar() {
		return NewInvalidError(fmt.Sprintf("values of type %s cannot be set", v.Type), nil).
			WithCode(ErrCodeTypeMismatch)
	}
	owner, p, err := m.property(vmi, path, v.Type)
	if err != nil {
		return err
	}
	if p.Type == protocol.DataTypeEnum {
		e := owner.scene.enum(p.Enum)
		if e == nil || !contains(e.Values, v.Enum) {
			return NewInvalidError(fmt.Sprintf("%q is not a value of enum %q", v.Enum, p.Enum), nil)
		}
	}
	owner.values[p.Name] = v
	return nil
}

func (m *Memory) FireTrigger(vmi protocol.Handle, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	owner, p, err := m.property(vmi, path, protocol.DataTypeTrigger)
	if err != nil {
		return err
	}
	owner.triggers[p.Name]++
	return nil
}

func (m *Memory) SetImage(vmi protocol.Handle, path string, image protocol.Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	owner, p, err := m.property(vmi, path, protocol.DataTypeAssetImage)
	if err != nil {
		return err
	}
	if image != protocol.InvalidHandle && !m.images.Has(image) {
		return NewNotFoundError(protocol.KindImage, image)
	}
	owner.images[p.Name] = image
	return nil
}

func (m *Memory) SetArtboard(vmi protocol.Handle, path string, artboard protocol.Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	owner, p, err := m.property(vmi, path, protocol.DataTypeArtboard)
	if err != nil {
		return err
	}
	if artboard != protocol.InvalidHandle && !m.artboards.Has(artboard) {
		return NewNotFoundError(protocol.KindArtboard, artboard)
	}
	owner.artboards[p.Name] = artboard
	return nil
}

func (m *Memory) SetNested(vmi protocol.Handle, path string, nested protocol.Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	owner, p, err := m.property(vmi, path, protocol.DataTypeViewModel)
	if err != nil {
		return err
	}
	child, err := m.instances.Get(nested)
	if err != nil {
		return err
	}
	if child.vm.Name != p.ViewModel {
		return NewInvalidError(fmt.Sprintf("property %q holds %s, not %s", p.Name, p.ViewModel, child.vm.Name), nil).
			WithCode(ErrCodeTypeMismatch)
	}
	owner.nested[p.Name] = child
	return nil
}

func (m *Memory) ListSize(vmi protocol.Handle, path string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	owner, p, err := m.property(vmi, path, protocol.DataTypeList)
	if err != nil {
		return 0, err
	}
	return len(owner.lists[p.Name]), nil
}

func (m *Memory) listItem(p *PropertyDoc, item protocol.Handle) (*instanceData, error) {
	inst, err := m.instances.Get(item)
	if err != nil {
		return nil, err
	}
	if inst.vm.Name != p.ViewModel {
		return nil, NewInvalidError(fmt.Sprintf("list %q holds %s, not %s", p.Name, p.ViewModel, inst.vm.Name), nil).
			WithCode(ErrCodeTypeMismatch)
	}
	return inst, nil
}

func (m *Memory) AppendListItem(vmi protocol.Handle, path string, item protocol.Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	owner, p, err := m.property(vmi, path, protocol.DataTypeList)
	if err != nil {
		return err
	}
	inst, err := m.listItem(p, item)
	if err != nil {
		return err
	}
	owner.lists[p.Name] = append(owner.lists[p.Name], inst)
	return nil
}

func (m *Memory) InsertListItem(vmi protocol.Handle, path string, item protocol.Handle, index int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	owner, p, err := m.property(vmi, path, protocol.DataTypeList)
	if err != nil {
		return err
	}
	items := owner.lists[p.Name]
	if index < 0 || index > len(items) {
		return indexOutOfRange(p, index, len(items)).WithHandle(protocol.KindViewModelInstance, vmi)
	}
	inst, err := m.listItem(p, item)
	if err != nil {
		return err
	}
	items = append(items, nil)
	copy(items[index+1:], items[index:])
	items[index] = inst
	owner.lists[p.Name] = items
	return nil
}

func (m *Memory) RemoveListItem(vmi protocol.Handle, path string, index int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	owner, p, err := m.property(vmi, path, protocol.DataTypeList)
	if err != nil {
		return err
	}
	items := owner.lists[p.Name]
	if index < 0 || index >= len(items) {
		return indexOutOfRange(p, index, len(items)).WithHandle(protocol.KindViewModelInstance, vmi)
	}
	owner.lists[p.Name] = append(items[:index], items[index+1:]...)
	return nil
}

func (m *Memory) SwapListItems(vmi protocol.Handle, path string, a, b int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	owner, p, err := m.property(vmi, path, protocol.DataTypeList)
	if err != nil {
		return err
	}
	items := owner.lists[p.Name]
	for _, i := range []int{a, b} {
		if i < 0 || i >= len(items) {
			return indexOutOfRange(p, i, len(items)).WithHandle(protocol.KindViewModelInstance, vmi)
		}
	}
	items[a], items[b] = items[b], items[a]
	return nil
}

func (m *Memory) DeleteInstance(vmi protocol.Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.instances.Delete(vmi)
}

// ImageAt returns the image handle assigned to an assetImage property.
func (m *Memory) ImageAt(vmi protocol.Handle, path string) (protocol.Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	owner, p, err := m.property(vmi, path, protocol.DataTypeAssetImage)
	if err != nil {
		return protocol.InvalidHandle, err
	}
	return owner.images[p.Name], nil
}
