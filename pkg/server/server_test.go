package server

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/animkit/animkit/pkg/engine"
	"github.com/animkit/animkit/pkg/protocol"
	"github.com/animkit/animkit/pkg/transports"
)

const scene = `
artboards:
  - name: Main
    width: 100
    height: 100
    stateMachines: [Idle]
    viewModel: Player
viewModels:
  - name: Player
    properties:
      - {name: score, type: number}
      - {name: hit, type: trigger}
    instances:
      - name: One
        values: {score: 1}
`

type harness struct {
	t      *testing.T
	queue  transports.Transport
	server *Server
	engine *engine.Memory
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mem, err := engine.NewMemory(engine.HeadlessDevice())
	require.NoError(t, err)

	queueEnd, serverEnd := transports.NewPipe(16)
	s := New(serverEnd, mem, WithWorkerID("test"))
	s.Start()
	t.Cleanup(func() {
		_ = queueEnd.Close()
		_ = s.Stop()
	})
	return &harness{t: t, queue: queueEnd, server: s, engine: mem}
}

func (h *harness) send(cmd *protocol.Command) {
	h.t.Helper()
	require.NoError(h.t, h.queue.Send(cmd))
}

func (h *harness) recv() *protocol.Callback {
	h.t.Helper()
	type result struct {
		cb  *protocol.Callback
		err error
	}
	ch := make(chan result, 1)
	go func() {
		cb, err := h.queue.Recv()
		ch <- result{cb, err}
	}()
	select {
	case r := <-ch:
		require.NoError(h.t, r.err)
		return r.cb
	case <-time.After(2 * time.Second):
		h.t.Fatal("timed out waiting for callback")
		return nil
	}
}

func (h *harness) load(file protocol.Handle) {
	h.t.Helper()
	h.send(&protocol.Command{Type: protocol.CommandLoadFile, RequestID: 0, Handle: file, Data: []byte(scene)})
	cb := h.recv()
	require.Equal(h.t, protocol.CallbackFileLoaded, cb.Type)
}

func TestServerFileQueries(t *testing.T) {
	h := newHarness(t)
	h.load(1)

	h.send(&protocol.Command{Type: protocol.CommandRequestArtboardNames, RequestID: 1, Handle: 1})
	cb := h.recv()
	assert.Equal(t, protocol.CallbackArtboardsListed, cb.Type)
	assert.Equal(t, protocol.RequestID(1), cb.RequestID)
	assert.Equal(t, protocol.Handle(1), cb.Handle)
	assert.Equal(t, []string{"Main"}, cb.Names)

	h.send(&protocol.Command{Type: protocol.CommandRequestInstanceNames, RequestID: 2, Handle: 1, Name: "Player"})
	cb = h.recv()
	assert.Equal(t, protocol.CallbackInstanceNamesListed, cb.Type)
	assert.Equal(t, "Player", cb.ViewModel)
	assert.Equal(t, []string{"One"}, cb.Names)

	h.send(&protocol.Command{Type: protocol.CommandRequestArtboardNames, RequestID: 3, Handle: 9})
	cb = h.recv()
	assert.Equal(t, protocol.CallbackFileError, cb.Type)
	assert.Equal(t, protocol.CommandRequestArtboardNames, cb.Origin)
	assert.Contains(t, cb.Message, "unknown file")

	h.send(&protocol.Command{Type: protocol.CommandDeleteFile, RequestID: 4, Handle: 1})
	cb = h.recv()
	assert.Equal(t, protocol.CallbackFileDeleted, cb.Type)
	assert.Equal(t, protocol.RequestID(4), cb.RequestID)
}

func TestServerDecodeFailure(t *testing.T) {
	h := newHarness(t)

	h.send(&protocol.Command{Type: protocol.CommandDecodeImage, RequestID: 0, Handle: 42, Data: []byte{0x89, 0x50, 0x4E, 0x47}})
	cb := h.recv()
	assert.Equal(t, protocol.CallbackImageError, cb.Type)
	assert.Equal(t, protocol.Handle(42), cb.Handle)
	assert.Equal(t, protocol.CommandDecodeImage, cb.Origin)
	assert.NotEmpty(t, cb.Message)
	assert.Equal(t, 0, h.engine.Stats().Images)
}

func TestServerCreateIsSilent(t *testing.T) {
	h := newHarness(t)
	h.load(1)

	h.send(&protocol.Command{Type: protocol.CommandCreateArtboard, RequestID: 1, Handle: 2, Parent: 1})
	h.send(&protocol.Command{Type: protocol.CommandCreateStateMachine, RequestID: 2, Handle: 3, Parent: 2})
	h.send(&protocol.Command{Type: protocol.CommandAdvanceStateMachine, RequestID: 3, Handle: 3, Delta: time.Second})
	h.send(&protocol.Command{Type: protocol.CommandRequestStateMachines, RequestID: 4, Handle: 2})

	cb := h.recv()
	assert.Equal(t, protocol.CallbackStateMachineNamesListed, cb.Type)
	assert.Equal(t, protocol.RequestID(4), cb.RequestID)
	assert.Equal(t, []string{"Idle"}, cb.Names)

	state, err := h.engine.StateMachine(3)
	require.NoError(t, err)
	assert.Equal(t, time.Second, state.Elapsed)
	assert.Equal(t, 5, h.server.Commands())
}

func TestServerStateMachineError(t *testing.T) {
	h := newHarness(t)

	h.send(&protocol.Command{Type: protocol.CommandAdvanceStateMachine, RequestID: 7, Handle: 3, Delta: time.Second})
	cb := h.recv()
	assert.Equal(t, protocol.CallbackStateMachineError, cb.Type)
	assert.Equal(t, protocol.RequestID(7), cb.RequestID)
}

func TestServerWorkerErrorsAreNotAnswered(t *testing.T) {
	h := newHarness(t)
	h.load(1)

	h.send(&protocol.Command{Type: protocol.CommandAddGlobalAsset, RequestID: 1, AssetKind: protocol.KindImage, Name: "logo", Target: 99})
	h.send(&protocol.Command{Type: protocol.CommandRequestViewModelNames, RequestID: 2, Handle: 1})

	cb := h.recv()
	assert.Equal(t, protocol.CallbackViewModelsListed, cb.Type)
	assert.Equal(t, protocol.RequestID(2), cb.RequestID)
	_, ok := h.engine.GlobalAsset(protocol.KindImage, "logo")
	assert.False(t, ok)
}

func TestServerSubscriptions(t *testing.T) {
	h := newHarness(t)
	h.load(1)

	src := &protocol.InstanceSource{Mode: protocol.InstanceNamed, ViewModel: "Player", Instance: "One"}
	h.send(&protocol.Command{Type: protocol.CommandCreateInstance, RequestID: 1, Handle: 5, Parent: 1, Source: src})
	h.send(&protocol.Command{Type: protocol.CommandSubscribe, RequestID: 2, Handle: 5, Path: "score", DataType: protocol.DataTypeNumber})

	v := protocol.NumberValue(10)
	h.send(&protocol.Command{Type: protocol.CommandSetValue, RequestID: 3, Handle: 5, Path: "score", Value: &v})
	cb := h.recv()
	assert.Equal(t, protocol.CallbackViewModelDataReceived, cb.Type)
	assert.Equal(t, protocol.RequestID(2), cb.RequestID)
	assert.Equal(t, "score", cb.Path)
	require.NotNil(t, cb.Value)
	assert.Equal(t, protocol.NumberValue(10), *cb.Value)

	h.send(&protocol.Command{Type: protocol.CommandUnsubscribe, RequestID: 2, Handle: 5, Path: "score", DataType: protocol.DataTypeNumber})
	v = protocol.NumberValue(11)
	h.send(&protocol.Command{Type: protocol.CommandSetValue, RequestID: 5, Handle: 5, Path: "score", Value: &v})
	h.send(&protocol.Command{Type: protocol.CommandRequestValue, RequestID: 6, Handle: 5, Path: "score", DataType: protocol.DataTypeNumber})

	cb = h.recv()
	assert.Equal(t, protocol.RequestID(6), cb.RequestID)
	assert.Equal(t, protocol.NumberValue(11), *cb.Value)

	h.send(&protocol.Command{Type: protocol.CommandSubscribe, RequestID: 7, Handle: 5, Path: "missing", DataType: protocol.DataTypeNumber})
	cb = h.recv()
	assert.Equal(t, protocol.CallbackViewModelInstanceError, cb.Type)
	assert.Equal(t, protocol.RequestID(7), cb.RequestID)
}

func TestServerUnsubscribeRemovesOnlyThatSubscription(t *testing.T) {
	h := newHarness(t)
	h.load(1)

	src := &protocol.InstanceSource{Mode: protocol.InstanceNamed, ViewModel: "Player", Instance: "One"}
	h.send(&protocol.Command{Type: protocol.CommandCreateInstance, RequestID: 1, Handle: 5, Parent: 1, Source: src})
	h.send(&protocol.Command{Type: protocol.CommandSubscribe, RequestID: 2, Handle: 5, Path: "score", DataType: protocol.DataTypeNumber})
	h.send(&protocol.Command{Type: protocol.CommandSubscribe, RequestID: 3, Handle: 5, Path: "score", DataType: protocol.DataTypeNumber})
	h.send(&protocol.Command{Type: protocol.CommandUnsubscribe, RequestID: 2, Handle: 5, Path: "score", DataType: protocol.DataTypeNumber})

	v := protocol.NumberValue(7)
	h.send(&protocol.Command{Type: protocol.CommandSetValue, RequestID: 4, Handle: 5, Path: "score", Value: &v})
	h.send(&protocol.Command{Type: protocol.CommandRequestValue, RequestID: 5, Handle: 5, Path: "score", DataType: protocol.DataTypeNumber})

	cb := h.recv()
	assert.Equal(t, protocol.CallbackViewModelDataReceived, cb.Type)
	assert.Equal(t, protocol.RequestID(3), cb.RequestID)
	require.NotNil(t, cb.Value)
	assert.Equal(t, protocol.NumberValue(7), *cb.Value)

	cb = h.recv()
	assert.Equal(t, protocol.RequestID(5), cb.RequestID)
}

func TestServerDisconnect(t *testing.T) {
	h := newHarness(t)

	h.send(&protocol.Command{Type: protocol.CommandDisconnect, RequestID: 0})

	select {
	case <-h.server.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop after disconnect")
	}
	_, err := h.queue.Recv()
	assert.ErrorIs(t, err, io.EOF)
}

func TestServerServeContext(t *testing.T) {
	mem, err := engine.NewMemory(engine.HeadlessDevice())
	require.NoError(t, err)
	_, serverEnd := transports.NewPipe(1)
	s := New(serverEnd, mem)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve(ctx) }()
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	assert.Error(t, s.Serve(context.Background()))
}

func TestServerStopWithoutStart(t *testing.T) {
	mem, err := engine.NewMemory(engine.HeadlessDevice())
	require.NoError(t, err)
	_, serverEnd := transports.NewPipe(1)
	s := New(serverEnd, mem)

	require.NoError(t, s.Stop())
	<-s.Done()
}
