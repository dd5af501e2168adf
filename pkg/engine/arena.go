package engine

import "github.com/animkit/animkit/pkg/protocol"

// Arena holds the live objects of one kind keyed by the handle the command
// queue allocated for them.
type Arena[T any] struct {
	kind  protocol.Kind
	items map[protocol.Handle]T
}

// NewArena creates an empty arena for kind.
func NewArena[T any](kind protocol.Kind) *Arena[T] {
	return &Arena[T]{kind: kind, items: make(map[protocol.Handle]T)}
}

// Put registers v under h.
func (a *Arena[T]) Put(h protocol.Handle, v T) error {
	if h == protocol.InvalidHandle {
		return NewInvalidError("invalid handle", nil).WithHandle(a.kind, h)
	}
	if _, ok := a.items[h]; ok {
		return NewConflictError(a.kind, h)
	}
	a.items[h] = v
	return nil
}

// Get returns the object registered under h.
func (a *Arena[T]) Get(h protocol.Handle) (T, error) {
	v, ok := a.items[h]
	if !ok {
		var zero T
		return zero, NewNotFoundError(a.kind, h)
	}
	return v, nil
}

// Delete removes the object registered under h.
func (a *Arena[T]) Delete(h protocol.Handle) error {
	if _, ok := a.items[h]; !ok {
		return NewNotFoundError(a.kind, h)
	}
	delete(a.items, h)
	return nil
}

// Has reports whether h is registered.
func (a *Arena[T]) Has(h protocol.Handle) bool {
	_, ok := a.items[h]
	return ok
}

// Len returns the number of live objects.
func (a *Arena[T]) Len() int {
	return len(a.items)
}
