// Package pending implements request tables that bridge listener callbacks
// back to the callers that issued the matching commands.
//
// Tables are not synchronized. Each one is owned by a single service and is
// only touched from that service's dispatch.Executor.
package pending

import (
	"context"

	"github.com/animkit/animkit/pkg/protocol"
)

// Result is the outcome delivered to a waiting caller.
type Result[T any] struct {
	Value T
	Err   error
}

// Map tracks single-resolution requests that produce a T.
type Map[T any] struct {
	entries map[protocol.RequestID]func(Result[T])
}

// NewMap creates an empty table.
func NewMap[T any]() *Map[T] {
	return &Map[T]{entries: make(map[protocol.RequestID]func(Result[T]))}
}

// Add registers id and returns a channel that receives exactly one Result
// if the request is ever resolved or rejected.
func (m *Map[T]) Add(id protocol.RequestID) <-chan Result[T] {
	ch := make(chan Result[T], 1)
	m.Then(id, func(r Result[T]) { ch <- r })
	return ch
}

// Then registers id with a continuation that runs on resolution. A second
// registration for a live id replaces the first.
func (m *Map[T]) Then(id protocol.RequestID, fn func(Result[T])) {
	m.entries[id] = fn
}

// Resolve completes id with v. It reports false, and does nothing, if id is
// not pending.
func (m *Map[T]) Resolve(id protocol.RequestID, v T) bool {
	return m.complete(id, Result[T]{Value: v})
}

// Reject completes id with err. It reports false, and does nothing, if id is
// not pending.
func (m *Map[T]) Reject(id protocol.RequestID, err error) bool {
	return m.complete(id, Result[T]{Err: err})
}

// Has reports whether id is pending.
func (m *Map[T]) Has(id protocol.RequestID) bool {
	_, ok := m.entries[id]
	return ok
}

// Len returns the number of pending requests.
func (m *Map[T]) Len() int {
	return len(m.entries)
}

func (m *Map[T]) complete(id protocol.RequestID, r Result[T]) bool {
	fn, ok := m.entries[id]
	if !ok {
		return false
	}
	delete(m.entries, id)
	fn(r)
	return true
}

// Streams tracks multi-value requests such as property subscriptions.
type Streams[T any] struct {
	entries map[protocol.RequestID]func(T)
}

// NewStreams creates an empty stream table.
func NewStreams[T any]() *Streams[T] {
	return &Streams[T]{entries: make(map[protocol.RequestID]func(T))}
}

// Add registers a stream under id.
func (s *Streams[T]) Add(id protocol.RequestID, fn func(T)) {
	s.entries[id] = fn
}

// Yield delivers v to the stream registered under id.
func (s *Streams[T]) Yield(id protocol.RequestID, v T) bool {
	fn, ok := s.entries[id]
	if !ok {
		return false
	}
	fn(v)
	return true
}

// Finish removes the stream registered under id.
func (s *Streams[T]) Finish(id protocol.RequestID) bool {
	if _, ok := s.entries[id]; !ok {
		return false
	}
	delete(s.entries, id)
	return true
}

// Has reports whether a stream is registered under id.
func (s *Streams[T]) Has(id protocol.RequestID) bool {
	_, ok := s.entries[id]
	return ok
}

// Len returns the number of open streams.
func (s *Streams[T]) Len() int {
	return len(s.entries)
}

// Await blocks until ch delivers a result or ctx is done. Abandoning the
// wait leaves the request registered in its table.
func Await[T any](ctx context.Context, ch <-chan Result[T]) (T, error) {
	select {
	case r := <-ch:
		return r.Value, r.Err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
