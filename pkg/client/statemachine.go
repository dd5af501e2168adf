package client

import (
	"time"

	"github.com/animkit/animkit/pkg/commandqueue"
	"github.com/animkit/animkit/pkg/protocol"
)

// StateMachineService drives state machines. Every command is
// fire-and-forget; failures reach the log only.
type StateMachineService struct {
	*base
	q commandqueue.StateMachineCommands
}

func newStateMachineService(q commandqueue.StateMachineCommands, b *base) *StateMachineService {
	return &StateMachineService{base: b, q: q}
}

// CreateStateMachine instantiates the named state machine of artboard, or
// its default state machine when name is empty.
func (s *StateMachineService) CreateStateMachine(name string, artboard protocol.Handle) (protocol.Handle, error) {
	return allocate(s.base, s.q, func(id protocol.RequestID) protocol.Handle {
		if name == "" {
			return s.q.CreateDefaultStateMachine(artboard, id)
		}
		return s.q.CreateStateMachineNamed(artboard, name, id)
	})
}

func (s *StateMachineService) AdvanceStateMachine(sm protocol.Handle, dt time.Duration) error {
	return fire(s.base, s.q, func(id protocol.RequestID) { s.q.AdvanceStateMachine(sm, dt, id) })
}

func (s *StateMachineService) BindViewModelInstance(sm, vmi protocol.Handle) error {
	return fire(s.base, s.q, func(id protocol.RequestID) { s.q.BindViewModelInstance(sm, vmi, id) })
}

func (s *StateMachineService) PointerDown(sm protocol.Handle, x, y float32) error {
	return s.pointer(sm, protocol.PointerDown, x, y)
}

func (s *StateMachineService) PointerMove(sm protocol.Handle, x, y float32) error {
	return s.pointer(sm, protocol.PointerMove, x, y)
}

func (s *StateMachineService) PointerUp(sm protocol.Handle, x, y float32) error {
	return s.pointer(sm, protocol.PointerUp, x, y)
}

func (s *StateMachineService) PointerExit(sm protocol.Handle, x, y float32) error {
	return s.pointer(sm, protocol.PointerExit, x, y)
}

func (s *StateMachineService) pointer(sm protocol.Handle, kind protocol.PointerKind, x, y float32) error {
	ev := protocol.PointerEvent{Kind: kind, X: x, Y: y}
	return fire(s.base, s.q, func(id protocol.RequestID) { s.q.SendPointerEvent(sm, ev, id) })
}

func (s *StateMachineService) DeleteStateMachine(sm protocol.Handle) error {
	return fire(s.base, s.q, func(id protocol.RequestID) { s.q.DeleteStateMachine(sm, id) })
}

func (s *StateMachineService) release(sm protocol.Handle) {
	s.post("state machine release", func() { s.q.DeleteStateMachine(sm, s.q.NextRequestID()) })
}

// StateMachine is a state machine instance on an artboard.
type StateMachine struct {
	handle protocol.Handle
	deps   *Dependencies
	life   *lifetime
}

// NewStateMachine wraps an existing state machine handle.
func NewStateMachine(h protocol.Handle, deps *Dependencies) *StateMachine {
	sm := &StateMachine{handle: h, deps: deps}
	svc := deps.StateMachines
	sm.life = newLifetime(sm, func() { svc.release(h) })
	return sm
}

func (sm *StateMachine) Handle() protocol.Handle { return sm.handle }

// Equal reports whether sm and o refer to the same engine object.
func (sm *StateMachine) Equal(o *StateMachine) bool {
	return o != nil && sm.handle == o.handle
}

// Close deletes the state machine. Later calls do nothing.
func (sm *StateMachine) Close() error {
	sm.life.close()
	return nil
}

// Advance moves the state machine forward by dt.
func (sm *StateMachine) Advance(dt time.Duration) error {
	return sm.deps.StateMachines.AdvanceStateMachine(sm.handle, dt)
}

// Bind attaches vmi as the state machine's data context.
func (sm *StateMachine) Bind(vmi *ViewModelInstance) error {
	return sm.deps.StateMachines.BindViewModelInstance(sm.handle, vmi.Handle())
}

func (sm *StateMachine) PointerDown(x, y float32) error {
	return sm.deps.StateMachines.PointerDown(sm.handle, x, y)
}

func (sm *StateMachine) PointerMove(x, y float32) error {
	return sm.deps.StateMachines.PointerMove(sm.handle, x, y)
}

func (sm *StateMachine) PointerUp(x, y float32) error {
	return sm.deps.StateMachines.PointerUp(sm.handle, x, y)
}

func (sm *StateMachine) PointerExit(x, y float32) error {
	return sm.deps.StateMachines.PointerExit(sm.handle, x, y)
}
