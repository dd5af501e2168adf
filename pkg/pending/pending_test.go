package pending

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/animkit/animkit/pkg/protocol"
)

func TestMapResolvesByRequestID(t *testing.T) {
	m := NewMap[string]()

	a := m.Add(1)
	b := m.Add(2)
	require.Equal(t, 2, m.Len())

	// Reverse order.
	require.True(t, m.Resolve(2, "b"))
	require.True(t, m.Resolve(1, "a"))

	ctx := context.Background()
	va, err := Await(ctx, a)
	require.NoError(t, err)
	vb, err := Await(ctx, b)
	require.NoError(t, err)

	assert.Equal(t, "a", va)
	assert.Equal(t, "b", vb)
	assert.Zero(t, m.Len())
}

func TestMapDuplicateResolutionIsNoop(t *testing.T) {
	m := NewMap[protocol.Handle]()
	ch := m.Add(7)

	assert.True(t, m.Resolve(7, 42))
	assert.False(t, m.Resolve(7, 43))
	assert.False(t, m.Reject(7, errors.New("late")))
	assert.False(t, m.Resolve(99, 1), "unknown id")

	h, err := Await(context.Background(), ch)
	require.NoError(t, err)
	assert.Equal(t, protocol.Handle(42), h)

	select {
	case r := <-ch:
		t.Fatalf("unexpected second result %+v", r)
	default:
	}
}

func TestMapReject(t *testing.T) {
	m := NewMap[int]()
	ch := m.Add(3)
	boom := errors.New("boom")

	require.True(t, m.Reject(3, boom))
	_, err := Await(context.Background(), ch)
	assert.ErrorIs(t, err, boom)
}

func TestMapThen(t *testing.T) {
	m := NewMap[int]()
	var got []Result[int]
	m.Then(5, func(r Result[int]) { got = append(got, r) })

	assert.True(t, m.Has(5))
	m.Resolve(5, 10)
	m.Resolve(5, 11)

	require.Len(t, got, 1)
	assert.Equal(t, 10, got[0].Value)
	assert.False(t, m.Has(5))
}

func TestAwaitCancelledLeavesEntry(t *testing.T) {
	m := NewMap[int]()
	ch := m.Add(1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := Await(ctx, ch)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, m.Len(), "abandoned request stays pending")

	// A late answer still clears it.
	assert.True(t, m.Resolve(1, 5))
	assert.Zero(t, m.Len())
}

func TestStreams(t *testing.T) {
	s := NewStreams[float64]()
	var got []float64
	s.Add(4, func(v float64) { got = append(got, v) })

	assert.True(t, s.Yield(4, 1))
	assert.True(t, s.Yield(4, 2))
	assert.False(t, s.Yield(5, 3))
	assert.Equal(t, 1, s.Len())

	assert.True(t, s.Finish(4))
	assert.False(t, s.Finish(4))
	assert.False(t, s.Yield(4, 4))

	assert.Equal(t, []float64{1, 2}, got)
}
