package client

import (
	"context"

	"github.com/animkit/animkit/pkg/commandqueue"
	"github.com/animkit/animkit/pkg/pending"
	"github.com/animkit/animkit/pkg/protocol"
)

// ViewModelInstanceService creates view model instances and reads, writes
// and watches their properties.
type ViewModelInstanceService struct {
	*base
	q commandqueue.ViewModelInstanceCommands

	values  *pending.Map[protocol.Value]
	names   *pending.Map[string]
	sizes   *pending.Map[int]
	streams *pending.Streams[protocol.Value]
}

var _ commandqueue.ViewModelInstanceListener = (*ViewModelInstanceService)(nil)

func newViewModelInstanceService(q commandqueue.ViewModelInstanceCommands, b *base) *ViewModelInstanceService {
	return &ViewModelInstanceService{
		base:    b,
		q:       q,
		values:  pending.NewMap[protocol.Value](),
		names:   pending.NewMap[string](),
		sizes:   pending.NewMap[int](),
		streams: pending.NewStreams[protocol.Value](),
	}
}

func (s *ViewModelInstanceService) create(file protocol.Handle, src protocol.InstanceSource) (protocol.Handle, error) {
	return allocate(s.base, s.q, func(id protocol.RequestID) protocol.Handle {
		return s.q.CreateViewModelInstance(file, src, s, id)
	})
}

// CreateBlankForArtboard creates an instance of artboard's default view
// model with every property at its zero value.
func (s *ViewModelInstanceService) CreateBlankForArtboard(file, artboard protocol.Handle) (protocol.Handle, error) {
	return s.create(file, protocol.InstanceSource{Mode: protocol.InstanceBlank, Artboard: artboard})
}

// CreateDefaultForArtboard copies the default instance of artboard's
// default view model.
func (s *ViewModelInstanceService) CreateDefaultForArtboard(file, artboard protocol.Handle) (protocol.Handle, error) {
	return s.create(file, protocol.InstanceSource{Mode: protocol.InstanceDefault, Artboard: artboard})
}

func (s *ViewModelInstanceService) CreateNamedForArtboard(file, artboard protocol.Handle, instance string) (protocol.Handle, error) {
	return s.create(file, protocol.InstanceSource{Mode: protocol.InstanceNamed, Artboard: artboard, Instance: instance})
}

func (s *ViewModelInstanceService) CreateBlank(file protocol.Handle, viewModel string) (protocol.Handle, error) {
	return s.create(file, protocol.InstanceSource{Mode: protocol.InstanceBlank, ViewModel: viewModel})
}

func (s *ViewModelInstanceService) CreateDefault(file protocol.Handle, viewModel string) (protocol.Handle, error) {
	return s.create(file, protocol.InstanceSource{Mode: protocol.InstanceDefault, ViewModel: viewModel})
}

func (s *ViewModelInstanceService) CreateNamed(file protocol.Handle, viewModel, instance string) (protocol.Handle, error) {
	return s.create(file, protocol.InstanceSource{Mode: protocol.InstanceNamed, ViewModel: viewModel, Instance: instance})
}

// ReferenceNested returns a handle to the instance held by the view model
// property at path.
func (s *ViewModelInstanceService) ReferenceNested(vmi protocol.Handle, path string) (protocol.Handle, error) {
	return allocate(s.base, s.q, func(id protocol.RequestID) protocol.Handle {
		return s.q.ReferenceNestedViewModelInstance(vmi, path, s, id)
	})
}

// ReferenceListItem returns a handle to the instance at index of the list
// property at path.
func (s *ViewModelInstanceService) ReferenceListItem(vmi protocol.Handle, path string, index int) (protocol.Handle, error) {
	return allocate(s.base, s.q, func(id protocol.RequestID) protocol.Handle {
		return s.q.ReferenceListViewModelInstance(vmi, path, index, s, id)
	})
}

func (s *ViewModelInstanceService) Name(ctx context.Context, vmi protocol.Handle) (string, error) {
	return call(ctx, s.base, s.q, s.names, operation{"view_model_instance.name", protocol.KindViewModelInstance, vmi},
		func(id protocol.RequestID) { s.q.RequestViewModelInstanceName(vmi, id) })
}

// Value reads the property at path. A property with no readable value fails
// with ErrMissingData, and one of a type other than dt with
// *ValueMismatchError. DataTypeAny accepts every readable type.
func (s *ViewModelInstanceService) Value(ctx context.Context, vmi protocol.Handle, path string, dt protocol.DataType) (protocol.Value, error) {
	v, err := call(ctx, s.base, s.q, s.values, operation{"view_model_instance.value", protocol.KindViewModelInstance, vmi},
		func(id protocol.RequestID) { s.q.RequestViewModelInstanceValue(vmi, path, dt, id) })
	if err != nil {
		return protocol.Value{}, err
	}
	if v.Type == protocol.DataTypeNone || v.Type == "" {
		return protocol.Value{}, ErrMissingData
	}
	if dt != protocol.DataTypeAny && v.Type != dt {
		return protocol.Value{}, &ValueMismatchError{Path: path, Expected: dt, Actual: v.Type}
	}
	return v, nil
}

func (s *ViewModelInstanceService) String(ctx context.Context, vmi protocol.Handle, path string) (string, error) {
	v, err := s.Value(ctx, vmi, path, protocol.DataTypeString)
	return v.String, err
}

func (s *ViewModelInstanceService) Number(ctx context.Context, vmi protocol.Handle, path string) (float64, error) {
	v, err := s.Value(ctx, vmi, path, protocol.DataTypeNumber)
	return v.Number, err
}

func (s *ViewModelInstanceService) Bool(ctx context.Context, vmi protocol.Handle, path string) (bool, error) {
	v, err := s.Value(ctx, vmi, path, protocol.DataTypeBoolean)
	return v.Bool, err
}

func (s *ViewModelInstanceService) Color(ctx context.Context, vmi protocol.Handle, path string) (protocol.Color, error) {
	v, err := s.Value(ctx, vmi, path, protocol.DataTypeColor)
	return v.Color, err
}

func (s *ViewModelInstanceService) Enum(ctx context.Context, vmi protocol.Handle, path string) (string, error) {
	v, err := s.Value(ctx, vmi, path, protocol.DataTypeEnum)
	return v.Enum, err
}

func (s *ViewModelInstanceService) ListSize(ctx context.Context, vmi protocol.Handle, path string) (int, error) {
	return call(ctx, s.base, s.q, s.sizes, operation{"view_model_instance.list_size", protocol.KindViewModelInstance, vmi},
		func(id protocol.RequestID) { s.q.RequestViewModelInstanceListSize(vmi, path, id) })
}

func (s *ViewModelInstanceService) SetValue(vmi protocol.Handle, path string, v protocol.Value) error {
	return fire(s.base, s.q, func(id protocol.RequestID) { s.q.SetViewModelInstanceValue(vmi, path, v, id) })
}

func (s *ViewModelInstanceService) SetString(vmi protocol.Handle, path, value string) error {
	return s.SetValue(vmi, path, protocol.StringValue(value))
}

func (s *ViewModelInstanceService) SetNumber(vmi protocol.Handle, path string, value float64) error {
	return s.SetValue(vmi, path, protocol.NumberValue(value))
}

func (s *ViewModelInstanceService) SetBool(vmi protocol.Handle, path string, value bool) error {
	return s.SetValue(vmi, path, protocol.BoolValue(value))
}

func (s *ViewModelInstanceService) SetColor(vmi protocol.Handle, path string, value protocol.Color) error {
	return s.SetValue(vmi, path, protocol.ColorValue(value))
}

func (s *ViewModelInstanceService) SetEnum(vmi protocol.Handle, path, value string) error {
	return s.SetValue(vmi, path, protocol.EnumValue(value))
}

func (s *ViewModelInstanceService) FireTrigger(vmi protocol.Handle, path string) error {
	return fire(s.base, s.q, func(id protocol.RequestID) { s.q.FireViewModelTrigger(vmi, path, id) })
}

// SetImage points the image property at path to image. InvalidHandle clears
// it.
func (s *ViewModelInstanceService) SetImage(vmi protocol.Handle, path string, image protocol.Handle) error {
	return fire(s.base, s.q, func(id protocol.RequestID) { s.q.SetViewModelInstanceImage(vmi, path, image, id) })
}

func (s *ViewModelInstanceService) SetArtboard(vmi protocol.Handle, path string, artboard protocol.Handle) error {
	return fire(s.base, s.q, func(id protocol.RequestID) { s.q.SetViewModelInstanceArtboard(vmi, path, artboard, id) })
}

func (s *ViewModelInstanceService) SetViewModelInstance(vmi protocol.Handle, path string, nested protocol.Handle) error {
	return fire(s.base, s.q, func(id protocol.RequestID) { s.q.SetViewModelInstanceNested(vmi, path, nested, id) })
}

func (s *ViewModelInstanceService) AppendListItem(vmi protocol.Handle, path string, item protocol.Handle) error {
	return fire(s.base, s.q, func(id protocol.RequestID) { s.q.AppendViewModelInstanceListItem(vmi, path, item, id) })
}

func (s *ViewModelInstanceService) InsertListItem(vmi protocol.Handle, path string, item protocol.Handle, index int) error {
	return fire(s.base, s.q, func(id protocol.RequestID) { s.q.InsertViewModelInstanceListItem(vmi, path, item, index, id) })
}

func (s *ViewModelInstanceService) RemoveListItem(vmi protocol.Handle, path string, index int) error {
	return fire(s.base, s.q, func(id protocol.RequestID) { s.q.RemoveViewModelInstanceListItem(vmi, path, index, id) })
}

func (s *ViewModelInstanceService) SwapListItems(vmi protocol.Handle, path string, a, b int) error {
	return fire(s.base, s.q, func(id protocol.RequestID) { s.q.SwapViewModelInstanceListItems(vmi, path, a, b, id) })
}

// Subscribe calls fn on the executor with the new value each time the
// property at path is set or fired, until the subscription is cancelled.
// fn must not block or call back into the client synchronously.
func (s *ViewModelInstanceService) Subscribe(vmi protocol.Handle, path string, dt protocol.DataType, fn func(protocol.Value)) (*Subscription, error) {
	sub := &Subscription{svc: s, vmi: vmi, path: path, dataType: dt}
	err := s.exec.Sync(func() {
		sub.id = s.q.NextRequestID()
		s.streams.Add(sub.id, fn)
		s.q.SubscribeToViewModelProperty(vmi, path, dt, sub.id)
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (s *ViewModelInstanceService) SubscribeString(vmi protocol.Handle, path string, fn func(string)) (*Subscription, error) {
	return s.subscribeTyped(vmi, path, protocol.DataTypeString, func(v protocol.Value) { fn(v.String) })
}

func (s *ViewModelInstanceService) SubscribeNumber(vmi protocol.Handle, path string, fn func(float64)) (*Subscription, error) {
	return s.subscribeTyped(vmi, path, protocol.DataTypeNumber, func(v protocol.Value) { fn(v.Number) })
}

func (s *ViewModelInstanceService) SubscribeBool(vmi protocol.Handle, path string, fn func(bool)) (*Subscription, error) {
	return s.subscribeTyped(vmi, path, protocol.DataTypeBoolean, func(v protocol.Value) { fn(v.Bool) })
}

func (s *ViewModelInstanceService) SubscribeColor(vmi protocol.Handle, path string, fn func(protocol.Color)) (*Subscription, error) {
	return s.subscribeTyped(vmi, path, protocol.DataTypeColor, func(v protocol.Value) { fn(v.Color) })
}

func (s *ViewModelInstanceService) SubscribeEnum(vmi protocol.Handle, path string, fn func(string)) (*Subscription, error) {
	return s.subscribeTyped(vmi, path, protocol.DataTypeEnum, func(v protocol.Value) { fn(v.Enum) })
}

// SubscribeTrigger calls fn each time the trigger at path fires.
func (s *ViewModelInstanceService) SubscribeTrigger(vmi protocol.Handle, path string, fn func()) (*Subscription, error) {
	return s.subscribeTyped(vmi, path, protocol.DataTypeTrigger, func(protocol.Value) { fn() })
}

func (s *ViewModelInstanceService) subscribeTyped(vmi protocol.Handle, path string, dt protocol.DataType, fn func(protocol.Value)) (*Subscription, error) {
	return s.Subscribe(vmi, path, dt, func(v protocol.Value) {
		if v.Type != dt {
			s.log.WithHandle(protocol.KindViewModelInstance, vmi).Debugf("subscription on %q got %s, want %s", path, v.Type, dt)
			return
		}
		fn(v)
	})
}

// DeleteViewModelInstance deletes vmi. Its subscriptions end with it.
func (s *ViewModelInstanceService) DeleteViewModelInstance(vmi protocol.Handle) error {
	return fire(s.base, s.q, func(id protocol.RequestID) { s.q.DeleteViewModelInstance(vmi, id) })
}

func (s *ViewModelInstanceService) release(vmi protocol.Handle) {
	s.post("view model instance release", func() { s.q.DeleteViewModelInstance(vmi, s.q.NextRequestID()) })
}

// OnViewModelDataReceived feeds a subscription if id names one, otherwise
// it answers a pending read.
func (s *ViewModelInstanceService) OnViewModelDataReceived(vmi protocol.Handle, id protocol.RequestID, _ string, v protocol.Value) {
	s.post("view model data received", func() {
		if s.streams.Yield(id, v) {
			return
		}
		s.settled(s.values.Resolve(id, v), protocol.KindViewModelInstance, vmi, id, "view model data received")
	})
}

func (s *ViewModelInstanceService) OnViewModelInstanceNameReceived(vmi protocol.Handle, id protocol.RequestID, name string) {
	s.post("instance name received", func() {
		s.settled(s.names.Resolve(id, name), protocol.KindViewModelInstance, vmi, id, "instance name received")
	})
}

func (s *ViewModelInstanceService) OnViewModelListSizeReceived(vmi protocol.Handle, id protocol.RequestID, _ string, size int) {
	s.post("list size received", func() {
		s.settled(s.sizes.Resolve(id, size), protocol.KindViewModelInstance, vmi, id, "list size received")
	})
}

// OnViewModelInstanceError rejects the read it answers. A failed
// subscription is closed.
func (s *ViewModelInstanceService) OnViewModelInstanceError(vmi protocol.Handle, id protocol.RequestID, message string) {
	s.post("view model instance error", func() {
		err := &CommandError{Kind: protocol.KindViewModelInstance, Handle: vmi, Message: message}
		if rejectAny(id, err, s.values.Reject, s.names.Reject, s.sizes.Reject) {
			return
		}
		log := s.log.WithHandle(protocol.KindViewModelInstance, vmi).WithRequestID(id)
		if s.streams.Finish(id) {
			log.Warnf("subscription closed: %s", message)
			return
		}
		log.Warnf("view model instance error: %s", message)
	})
}

// Subscription is an open property subscription.
type Subscription struct {
	svc      *ViewModelInstanceService
	id       protocol.RequestID
	vmi      protocol.Handle
	path     string
	dataType protocol.DataType
}

// ID returns the request ID values are delivered under.
func (sub *Subscription) ID() protocol.RequestID { return sub.id }

// Cancel stops delivery and unsubscribes this subscription on the engine.
// Other subscriptions on the same path and type are unaffected.
func (sub *Subscription) Cancel() error {
	s := sub.svc
	return s.exec.Sync(func() {
		if !s.streams.Finish(sub.id) {
			return
		}
		s.q.UnsubscribeFromViewModelProperty(sub.vmi, sub.path, sub.dataType, sub.id)
	})
}

// ViewModelInstance is a live set of data-binding values.
type ViewModelInstance struct {
	handle protocol.Handle
	deps   *Dependencies
	life   *lifetime
}

// NewViewModelInstance wraps an existing instance handle.
func NewViewModelInstance(h protocol.Handle, deps *Dependencies) *ViewModelInstance {
	vmi := &ViewModelInstance{handle: h, deps: deps}
	svc := deps.Instances
	vmi.life = newLifetime(vmi, func() { svc.release(h) })
	return vmi
}

func (vmi *ViewModelInstance) Handle() protocol.Handle { return vmi.handle }

// Equal reports whether vmi and o refer to the same engine object.
func (vmi *ViewModelInstance) Equal(o *ViewModelInstance) bool {
	return o != nil && vmi.handle == o.handle
}

// Close deletes the instance. Later calls do nothing.
func (vmi *ViewModelInstance) Close() error {
	vmi.life.close()
	return nil
}

func (vmi *ViewModelInstance) Name(ctx context.Context) (string, error) {
	return vmi.deps.Instances.Name(ctx, vmi.handle)
}

func (vmi *ViewModelInstance) Value(ctx context.Context, path string, dt protocol.DataType) (protocol.Value, error) {
	return vmi.deps.Instances.Value(ctx, vmi.handle, path, dt)
}

func (vmi *ViewModelInstance) String(ctx context.Context, path string) (string, error) {
	return vmi.deps.Instances.String(ctx, vmi.handle, path)
}

func (vmi *ViewModelInstance) Number(ctx context.Context, path string) (float64, error) {
	return vmi.deps.Instances.Number(ctx, vmi.handle, path)
}

func (vmi *ViewModelInstance) Bool(ctx context.Context, path string) (bool, error) {
	return vmi.deps.Instances.Bool(ctx, vmi.handle, path)
}

func (vmi *ViewModelInstance) Color(ctx context.Context, path string) (protocol.Color, error) {
	return vmi.deps.Instances.Color(ctx, vmi.handle, path)
}

func (vmi *ViewModelInstance) Enum(ctx context.Context, path string) (string, error) {
	return vmi.deps.Instances.Enum(ctx, vmi.handle, path)
}

func (vmi *ViewModelInstance) ListSize(ctx context.Context, path string) (int, error) {
	return vmi.deps.Instances.ListSize(ctx, vmi.handle, path)
}

func (vmi *ViewModelInstance) SetString(path, value string) error {
	return vmi.deps.Instances.SetString(vmi.handle, path, value)
}

func (vmi *ViewModelInstance) SetNumber(path string, value float64) error {
	return vmi.deps.Instances.SetNumber(vmi.handle, path, value)
}

func (vmi *ViewModelInstance) SetBool(path string, value bool) error {
	return vmi.deps.Instances.SetBool(vmi.handle, path, value)
}

func (vmi *ViewModelInstance) SetColor(path string, value protocol.Color) error {
	return vmi.deps.Instances.SetColor(vmi.handle, path, value)
}

func (vmi *ViewModelInstance) SetEnum(path, value string) error {
	return vmi.deps.Instances.SetEnum(vmi.handle, path, value)
}

func (vmi *ViewModelInstance) FireTrigger(path string) error {
	return vmi.deps.Instances.FireTrigger(vmi.handle, path)
}

// SetImage binds img to the image property at path; nil clears it.
func (vmi *ViewModelInstance) SetImage(path string, img *Image) error {
	h := protocol.InvalidHandle
	if img != nil {
		h = img.Handle()
	}
	return vmi.deps.Instances.SetImage(vmi.handle, path, h)
}

// SetArtboard binds a to the artboard property at path; nil clears it.
func (vmi *ViewModelInstance) SetArtboard(path string, a *Artboard) error {
	h := protocol.InvalidHandle
	if a != nil {
		h = a.Handle()
	}
	return vmi.deps.Instances.SetArtboard(vmi.handle, path, h)
}

// SetViewModelInstance replaces the nested instance at path.
func (vmi *ViewModelInstance) SetViewModelInstance(path string, nested *ViewModelInstance) error {
	return vmi.deps.Instances.SetViewModelInstance(vmi.handle, path, nested.Handle())
}

// Nested returns the instance held by the view model property at path.
func (vmi *ViewModelInstance) Nested(path string) (*ViewModelInstance, error) {
	h, err := vmi.deps.Instances.ReferenceNested(vmi.handle, path)
	if err != nil {
		return nil, err
	}
	return NewViewModelInstance(h, vmi.deps), nil
}

// ListItem returns the instance at index of the list property at path.
func (vmi *ViewModelInstance) ListItem(path string, index int) (*ViewModelInstance, error) {
	h, err := vmi.deps.Instances.ReferenceListItem(vmi.handle, path, index)
	if err != nil {
		return nil, err
	}
	return NewViewModelInstance(h, vmi.deps), nil
}

func (vmi *ViewModelInstance) AppendListItem(path string, item *ViewModelInstance) error {
	return vmi.deps.Instances.AppendListItem(vmi.handle, path, item.Handle())
}

func (vmi *ViewModelInstance) InsertListItem(path string, item *ViewModelInstance, index int) error {
	return vmi.deps.Instances.InsertListItem(vmi.handle, path, item.Handle(), index)
}

func (vmi *ViewModelInstance) RemoveListItem(path string, index int) error {
	return vmi.deps.Instances.RemoveListItem(vmi.handle, path, index)
}

func (vmi *ViewModelInstance) SwapListItems(path string, a, b int) error {
	return vmi.deps.Instances.SwapListItems(vmi.handle, path, a, b)
}

func (vmi *ViewModelInstance) Subscribe(path string, dt protocol.DataType, fn func(protocol.Value)) (*Subscription, error) {
	return vmi.deps.Instances.Subscribe(vmi.handle, path, dt, fn)
}

func (vmi *ViewModelInstance) SubscribeString(path string, fn func(string)) (*Subscription, error) {
	return vmi.deps.Instances.SubscribeString(vmi.handle, path, fn)
}

func (vmi *ViewModelInstance) SubscribeNumber(path string, fn func(float64)) (*Subscription, error) {
	return vmi.deps.Instances.SubscribeNumber(vmi.handle, path, fn)
}

func (vmi *ViewModelInstance) SubscribeBool(path string, fn func(bool)) (*Subscription, error) {
	return vmi.deps.Instances.SubscribeBool(vmi.handle, path, fn)
}

func (vmi *ViewModelInstance) SubscribeColor(path string, fn func(protocol.Color)) (*Subscription, error) {
	return vmi.deps.Instances.SubscribeColor(vmi.handle, path, fn)
}

func (vmi *ViewModelInstance) SubscribeEnum(path string, fn func(string)) (*Subscription, error) {
	return vmi.deps.Instances.SubscribeEnum(vmi.handle, path, fn)
}

func (vmi *ViewModelInstance) SubscribeTrigger(path string, fn func()) (*Subscription, error) {
	return vmi.deps.Instances.SubscribeTrigger(vmi.handle, path, fn)
}
