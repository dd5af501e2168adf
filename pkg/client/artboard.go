package client

import (
	"context"

	"github.com/animkit/animkit/pkg/commandqueue"
	"github.com/animkit/animkit/pkg/pending"
	"github.com/animkit/animkit/pkg/protocol"
)

// ViewModelInfo names an artboard's default view model and its default
// instance. Instance is empty when the view model has no instances.
type ViewModelInfo struct {
	ViewModel string
	Instance  string
}

// ArtboardService creates artboards and answers artboard queries.
type ArtboardService struct {
	*base
	q commandqueue.ArtboardCommands

	names   *pending.Map[[]string]
	info    *pending.Map[ViewModelInfo]
	deleted *pending.Map[struct{}]
}

var _ commandqueue.ArtboardListener = (*ArtboardService)(nil)

func newArtboardService(q commandqueue.ArtboardCommands, b *base) *ArtboardService {
	return &ArtboardService{
		base:    b,
		q:       q,
		names:   pending.NewMap[[]string](),
		info:    pending.NewMap[ViewModelInfo](),
		deleted: pending.NewMap[struct{}](),
	}
}

// CreateArtboard instantiates the named artboard of file, or its default
// artboard when name is empty. The handle is usable immediately.
func (s *ArtboardService) CreateArtboard(name string, file protocol.Handle) (protocol.Handle, error) {
	return allocate(s.base, s.q, func(id protocol.RequestID) protocol.Handle {
		if name == "" {
			return s.q.CreateDefaultArtboard(file, s, id)
		}
		return s.q.CreateArtboardNamed(file, name, s, id)
	})
}

func (s *ArtboardService) StateMachineNames(ctx context.Context, artboard protocol.Handle) ([]string, error) {
	return call(ctx, s.base, s.q, s.names, operation{"artboard.state_machine_names", protocol.KindArtboard, artboard},
		func(id protocol.RequestID) { s.q.RequestStateMachineNames(artboard, id) })
}

// DefaultViewModelInfo asks which view model artboard binds by default.
func (s *ArtboardService) DefaultViewModelInfo(ctx context.Context, artboard, file protocol.Handle) (ViewModelInfo, error) {
	return call(ctx, s.base, s.q, s.info, operation{"artboard.default_view_model", protocol.KindArtboard, artboard},
		func(id protocol.RequestID) { s.q.RequestDefaultViewModelInfo(artboard, file, id) })
}

func (s *ArtboardService) SetSize(artboard protocol.Handle, width, height, scale float32) error {
	return fire(s.base, s.q, func(id protocol.RequestID) { s.q.SetArtboardSize(artboard, width, height, scale, id) })
}

func (s *ArtboardService) ResetSize(artboard protocol.Handle) error {
	return fire(s.base, s.q, func(id protocol.RequestID) { s.q.ResetArtboardSize(artboard, id) })
}

// DeleteArtboard deletes artboard and waits for the engine to confirm. The
// listener registration is removed once the delete is confirmed.
func (s *ArtboardService) DeleteArtboard(ctx context.Context, artboard protocol.Handle) error {
	_, err := await(ctx, s.base, operation{"artboard.delete", protocol.KindArtboard, artboard},
		func() <-chan pending.Result[struct{}] { return s.issueDelete(artboard) })
	return err
}

func (s *ArtboardService) DeleteArtboardListener(artboard protocol.Handle) error {
	return s.exec.Sync(func() { s.q.DeleteArtboardListener(artboard) })
}

func (s *ArtboardService) issueDelete(artboard protocol.Handle) <-chan pending.Result[struct{}] {
	id := s.q.NextRequestID()
	ch := then(s.deleted, id, func() { s.q.DeleteArtboardListener(artboard) })
	s.q.DeleteArtboard(artboard, id)
	return ch
}

func (s *ArtboardService) release(artboard protocol.Handle) {
	s.post("artboard release", func() { s.issueDelete(artboard) })
}

func (s *ArtboardService) OnStateMachineNamesListed(artboard protocol.Handle, names []string, id protocol.RequestID) {
	s.post("state machine names listed", func() {
		s.settled(s.names.Resolve(id, names), protocol.KindArtboard, artboard, id, "state machine names listed")
	})
}

func (s *ArtboardService) OnDefaultViewModelInfoReceived(artboard protocol.Handle, id protocol.RequestID, viewModel, instance string) {
	s.post("default view model received", func() {
		info := ViewModelInfo{ViewModel: viewModel, Instance: instance}
		s.settled(s.info.Resolve(id, info), protocol.KindArtboard, artboard, id, "default view model received")
	})
}

func (s *ArtboardService) OnArtboardDeleted(artboard protocol.Handle, id protocol.RequestID) {
	s.post("artboard deleted", func() {
		s.settled(s.deleted.Resolve(id, struct{}{}), protocol.KindArtboard, artboard, id, "artboard deleted")
	})
}

// OnArtboardError rejects the request it answers, if one is pending.
// Failures of fire-and-forget commands are only logged.
func (s *ArtboardService) OnArtboardError(artboard protocol.Handle, id protocol.RequestID, message string) {
	s.post("artboard error", func() {
		err := &CommandError{Kind: protocol.KindArtboard, Handle: artboard, Message: message}
		if !rejectAny(id, err, s.names.Reject, s.info.Reject, s.deleted.Reject) {
			s.log.WithHandle(protocol.KindArtboard, artboard).WithRequestID(id).Warnf("artboard error: %s", message)
		}
	})
}

// Artboard is an artboard instance created from a file.
type Artboard struct {
	handle protocol.Handle
	file   protocol.Handle
	deps   *Dependencies
	life   *lifetime
}

// NewArtboard wraps an existing artboard handle created from file.
func NewArtboard(h, file protocol.Handle, deps *Dependencies) *Artboard {
	a := &Artboard{handle: h, file: file, deps: deps}
	svc := deps.Artboards
	a.life = newLifetime(a, func() { svc.release(h) })
	return a
}

func (a *Artboard) Handle() protocol.Handle { return a.handle }

// Equal reports whether a and o refer to the same engine object.
func (a *Artboard) Equal(o *Artboard) bool {
	return o != nil && a.handle == o.handle
}

// Close deletes the artboard. Later calls do nothing.
func (a *Artboard) Close() error {
	a.life.close()
	return nil
}

func (a *Artboard) StateMachineNames(ctx context.Context) ([]string, error) {
	return a.deps.Artboards.StateMachineNames(ctx, a.handle)
}

func (a *Artboard) DefaultViewModelInfo(ctx context.Context) (ViewModelInfo, error) {
	return a.deps.Artboards.DefaultViewModelInfo(ctx, a.handle, a.file)
}

// SetSize overrides the artboard bounds used for layout.
func (a *Artboard) SetSize(width, height, scale float32) error {
	return a.deps.Artboards.SetSize(a.handle, width, height, scale)
}

func (a *Artboard) ResetSize() error {
	return a.deps.Artboards.ResetSize(a.handle)
}

// CreateStateMachine instantiates the named state machine, or the default
// one when name is empty. A name the artboard does not contain fails with
// *InvalidStateMachineError before anything is created.
func (a *Artboard) CreateStateMachine(ctx context.Context, name string) (*StateMachine, error) {
	if name != "" {
		names, err := a.StateMachineNames(ctx)
		if err != nil {
			return nil, err
		}
		if !contains(names, name) {
			return nil, &InvalidStateMachineError{Name: name}
		}
	}
	h, err := a.deps.StateMachines.CreateStateMachine(name, a.handle)
	if err != nil {
		return nil, err
	}
	return NewStateMachine(h, a.deps), nil
}

// CreateViewModelInstance creates an instance of the artboard's default
// view model.
func (a *Artboard) CreateViewModelInstance(ctx context.Context, mode protocol.InstanceMode, instance string) (*ViewModelInstance, error) {
	src := protocol.InstanceSource{Mode: mode, Artboard: a.handle, Instance: instance}
	return createViewModelInstance(ctx, a.deps, a.file, src)
}
