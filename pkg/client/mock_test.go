package client

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/animkit/animkit/pkg/commandqueue"
	"github.com/animkit/animkit/pkg/dispatch"
	"github.com/animkit/animkit/pkg/protocol"
)

// recordedCall is one method invocation seen by mockQueue.
type recordedCall struct {
	method string
	id     protocol.RequestID
	handle protocol.Handle
	target protocol.Handle
	name   string
	path   string
	data   []byte
	value  protocol.Value
}

// mockQueue records every command and hands out sequential IDs and handles.
// reply, when set, runs after a call is recorded so a test can answer it
// through the services' listener methods.
type mockQueue struct {
	mu      sync.Mutex
	calls   []recordedCall
	ids     protocol.RequestID
	handles protocol.Handle
	reply   func(recordedCall)
}

var _ commandqueue.Queue = (*mockQueue)(nil)

func newMockQueue() *mockQueue {
	return &mockQueue{handles: 100}
}

func (q *mockQueue) record(c recordedCall) {
	q.mu.Lock()
	q.calls = append(q.calls, c)
	reply := q.reply
	q.mu.Unlock()
	if reply != nil {
		reply(c)
	}
}

func (q *mockQueue) alloc() protocol.Handle {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handles++
	return q.handles
}

func (q *mockQueue) setReply(fn func(recordedCall)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.reply = fn
}

// snapshot returns the calls recorded so far.
func (q *mockQueue) snapshot() []recordedCall {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]recordedCall(nil), q.calls...)
}

func (q *mockQueue) find(method string) []recordedCall {
	var out []recordedCall
	for _, c := range q.snapshot() {
		if c.method == method {
			out = append(out, c)
		}
	}
	return out
}

func (q *mockQueue) indexOf(method string) int {
	for i, c := range q.snapshot() {
		if c.method == method {
			return i
		}
	}
	return -1
}

// waitFor blocks until n calls of method have been recorded.
func (q *mockQueue) waitFor(t *testing.T, method string, n int) []recordedCall {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(q.find(method)) >= n
	}, 2*time.Second, time.Millisecond, "waiting for %d %s call(s)", n, method)
	return q.find(method)
}

func (q *mockQueue) NextRequestID() protocol.RequestID {
	q.mu.Lock()
	defer q.mu.Unlock()
	id := q.ids
	q.ids++
	return id
}

func (q *mockQueue) LoadFile(data []byte, _ commandqueue.FileListener, id protocol.RequestID) {
	q.record(recordedCall{method: "LoadFile", id: id, data: data})
}

func (q *mockQueue) DeleteFile(file protocol.Handle, id protocol.RequestID) {
	q.record(recordedCall{method: "DeleteFile", id: id, handle: file})
}

func (q *mockQueue) DeleteFileListener(file protocol.Handle) {
	q.record(recordedCall{method: "DeleteFileListener", handle: file})
}

func (q *mockQueue) RequestArtboardNames(file protocol.Handle, id protocol.RequestID) {
	q.record(recordedCall{method: "RequestArtboardNames", id: id, handle: file})
}

func (q *mockQueue) RequestViewModelNames(file protocol.Handle, id protocol.RequestID) {
	q.record(recordedCall{method: "RequestViewModelNames", id: id, handle: file})
}

func (q *mockQueue) RequestViewModelInstanceNames(file protocol.Handle, viewModel string, id protocol.RequestID) {
	q.record(recordedCall{method: "RequestViewModelInstanceNames", id: id, handle: file, name: viewModel})
}

func (q *mockQueue) RequestViewModelPropertyDefinitions(file protocol.Handle, viewModel string, id protocol.RequestID) {
	q.record(recordedCall{method: "RequestViewModelPropertyDefinitions", id: id, handle: file, name: viewModel})
}

func (q *mockQueue) RequestViewModelEnums(file protocol.Handle, id protocol.RequestID) {
	q.record(recordedCall{method: "RequestViewModelEnums", id: id, handle: file})
}

func (q *mockQueue) CreateDefaultArtboard(file protocol.Handle, _ commandqueue.ArtboardListener, id protocol.RequestID) protocol.Handle {
	h := q.alloc()
	q.record(recordedCall{method: "CreateDefaultArtboard", id: id, handle: h, target: file})
	return h
}

func (q *mockQueue) CreateArtboardNamed(file protocol.Handle, name string, _ commandqueue.ArtboardListener, id protocol.RequestID) protocol.Handle {
	h := q.alloc()
	q.record(recordedCall{method: "CreateArtboardNamed", id: id, handle: h, target: file, name: name})
	return h
}

func (q *mockQueue) RequestStateMachineNames(artboard protocol.Handle, id protocol.RequestID) {
	q.record(recordedCall{method: "RequestStateMachineNames", id: id, handle: artboard})
}

func (q *mockQueue) RequestDefaultViewModelInfo(artboard, file protocol.Handle, id protocol.RequestID) {
	q.record(recordedCall{method: "RequestDefaultViewModelInfo", id: id, handle: artboard, target: file})
}

func (q *mockQueue) SetArtboardSize(artboard protocol.Handle, _, _, _ float32, id protocol.RequestID) {
	q.record(recordedCall{method: "SetArtboardSize", id: id, handle: artboard})
}

func (q *mockQueue) ResetArtboardSize(artboard protocol.Handle, id protocol.RequestID) {
	q.record(recordedCall{method: "ResetArtboardSize", id: id, handle: artboard})
}

func (q *mockQueue) DeleteArtboard(artboard protocol.Handle, id protocol.RequestID) {
	q.record(recordedCall{method: "DeleteArtboard", id: id, handle: artboard})
}

func (q *mockQueue) DeleteArtboardListener(artboard protocol.Handle) {
	q.record(recordedCall{method: "DeleteArtboardListener", handle: artboard})
}

func (q *mockQueue) CreateDefaultStateMachine(artboard protocol.Handle, id protocol.RequestID) protocol.Handle {
	h := q.alloc()
	q.record(recordedCall{method: "CreateDefaultStateMachine", id: id, handle: h, target: artboard})
	return h
}

func (q *mockQueue) CreateStateMachineNamed(artboard protocol.Handle, name string, id protocol.RequestID) protocol.Handle {
	h := q.alloc()
	q.record(recordedCall{method: "CreateStateMachineNamed", id: id, handle: h, target: artboard, name: name})
	return h
}

func (q *mockQueue) AdvanceStateMachine(sm protocol.Handle, _ time.Duration, id protocol.RequestID) {
	q.record(recordedCall{method: "AdvanceStateMachine", id: id, handle: sm})
}

func (q *mockQueue) BindViewModelInstance(sm, vmi protocol.Handle, id protocol.RequestID) {
	q.record(recordedCall{method: "BindViewModelInstance", id: id, handle: sm, target: vmi})
}

func (q *mockQueue) SendPointerEvent(sm protocol.Handle, ev protocol.PointerEvent, id protocol.RequestID) {
	q.record(recordedCall{method: "SendPointerEvent", id: id, handle: sm, name: string(ev.Kind)})
}

func (q *mockQueue) DeleteStateMachine(sm protocol.Handle, id protocol.RequestID) {
	q.record(recordedCall{method: "DeleteStateMachine", id: id, handle: sm})
}

func (q *mockQueue) DecodeImage(data []byte, _ commandqueue.ImageListener, id protocol.RequestID) {
	q.record(recordedCall{method: "DecodeImage", id: id, data: data})
}

func (q *mockQueue) DeleteImage(image protocol.Handle, id protocol.RequestID) {
	q.record(recordedCall{method: "DeleteImage", id: id, handle: image})
}

func (q *mockQueue) DeleteImageListener(image protocol.Handle) {
	q.record(recordedCall{method: "DeleteImageListener", handle: image})
}

func (q *mockQueue) DecodeFont(data []byte, _ commandqueue.FontListener, id protocol.RequestID) {
	q.record(recordedCall{method: "DecodeFont", id: id, data: data})
}

func (q *mockQueue) DeleteFont(font protocol.Handle, id protocol.RequestID) {
	q.record(recordedCall{method: "DeleteFont", id: id, handle: font})
}

func (q *mockQueue) DecodeAudio(data []byte, _ commandqueue.AudioListener, id protocol.RequestID) {
	q.record(recordedCall{method: "DecodeAudio", id: id, data: data})
}

func (q *mockQueue) DeleteAudio(audio protocol.Handle, id protocol.RequestID) {
	q.record(recordedCall{method: "DeleteAudio", id: id, handle: audio})
}

func (q *mockQueue) CreateViewModelInstance(file protocol.Handle, src protocol.InstanceSource, _ commandqueue.ViewModelInstanceListener, id protocol.RequestID) protocol.Handle {
	h := q.alloc()
	q.record(recordedCall{method: "CreateViewModelInstance", id: id, handle: h, target: file, name: src.Instance})
	return h
}

func (q *mockQueue) ReferenceNestedViewModelInstance(vmi protocol.Handle, path string, _ commandqueue.ViewModelInstanceListener, id protocol.RequestID) protocol.Handle {
	h := q.alloc()
	q.record(recordedCall{method: "ReferenceNestedViewModelInstance", id: id, handle: h, target: vmi, path: path})
	return h
}

func (q *mockQueue) ReferenceListViewModelInstance(vmi protocol.Handle, path string, _ int, _ commandqueue.ViewModelInstanceListener, id protocol.RequestID) protocol.Handle {
	h := q.alloc()
	q.record(recordedCall{method: "ReferenceListViewModelInstance", id: id, handle: h, target: vmi, path: path})
	return h
}

func (q *mockQueue) RequestViewModelInstanceName(vmi protocol.Handle, id protocol.RequestID) {
	q.record(recordedCall{method: "RequestViewModelInstanceName", id: id, handle: vmi})
}

func (q *mockQueue) RequestViewModelInstanceValue(vmi protocol.Handle, path string, _ protocol.DataType, id protocol.RequestID) {
	q.record(recordedCall{method: "RequestViewModelInstanceValue", id: id, handle: vmi, path: path})
}

func (q *mockQueue) SetViewModelInstanceValue(vmi protocol.Handle, path string, v protocol.Value, id protocol.RequestID) {
	q.record(recordedCall{method: "SetViewModelInstanceValue", id: id, handle: vmi, path: path, value: v})
}

func (q *mockQueue) FireViewModelTrigger(vmi protocol.Handle, path string, id protocol.RequestID) {
	q.record(recordedCall{method: "FireViewModelTrigger", id: id, handle: vmi, path: path})
}

func (q *mockQueue) SetViewModelInstanceImage(vmi protocol.Handle, path string, image protocol.Handle, id protocol.RequestID) {
	q.record(recordedCall{method: "SetViewModelInstanceImage", id: id, handle: vmi, path: path, target: image})
}

func (q *mockQueue) SetViewModelInstanceArtboard(vmi protocol.Handle, path string, artboard protocol.Handle, id protocol.RequestID) {
	q.record(recordedCall{method: "SetViewModelInstanceArtboard", id: id, handle: vmi, path: path, target: artboard})
}

func (q *mockQueue) SetViewModelInstanceNested(vmi protocol.Handle, path string, nested protocol.Handle, id protocol.RequestID) {
	q.record(recordedCall{method: "SetViewModelInstanceNested", id: id, handle: vmi, path: path, target: nested})
}

func (q *mockQueue) RequestViewModelInstanceListSize(vmi protocol.Handle, path string, id protocol.RequestID) {
	q.record(recordedCall{method: "RequestViewModelInstanceListSize", id: id, handle: vmi, path: path})
}

func (q *mockQueue) AppendViewModelInstanceListItem(vmi protocol.Handle, path string, item protocol.Handle, id protocol.RequestID) {
	q.record(recordedCall{method: "AppendViewModelInstanceListItem", id: id, handle: vmi, path: path, target: item})
}

func (q *mockQueue) InsertViewModelInstanceListItem(vmi protocol.Handle, path string, item protocol.Handle, _ int, id protocol.RequestID) {
	q.record(recordedCall{method: "InsertViewModelInstanceListItem", id: id, handle: vmi, path: path, target: item})
}

func (q *mockQueue) RemoveViewModelInstanceListItem(vmi protocol.Handle, path string, _ int, id protocol.RequestID) {
	q.record(recordedCall{method: "RemoveViewModelInstanceListItem", id: id, handle: vmi, path: path})
}

func (q *mockQueue) SwapViewModelInstanceListItems(vmi protocol.Handle, path string, _, _ int, id protocol.RequestID) {
	q.record(recordedCall{method: "SwapViewModelInstanceListItems", id: id, handle: vmi, path: path})
}

func (q *mockQueue) SubscribeToViewModelProperty(vmi protocol.Handle, path string, _ protocol.DataType, id protocol.RequestID) {
	q.record(recordedCall{method: "SubscribeToViewModelProperty", id: id, handle: vmi, path: path})
}

func (q *mockQueue) UnsubscribeFromViewModelProperty(vmi protocol.Handle, path string, _ protocol.DataType, id protocol.RequestID) {
	q.record(recordedCall{method: "UnsubscribeFromViewModelProperty", id: id, handle: vmi, path: path})
}

func (q *mockQueue) DeleteViewModelInstance(vmi protocol.Handle, id protocol.RequestID) {
	q.record(recordedCall{method: "DeleteViewModelInstance", id: id, handle: vmi})
}

func (q *mockQueue) AddGlobalImageAsset(name string, image protocol.Handle, id protocol.RequestID) {
	q.record(recordedCall{method: "AddGlobalImageAsset", id: id, name: name, handle: image})
}

func (q *mockQueue) AddGlobalFontAsset(name string, font protocol.Handle, id protocol.RequestID) {
	q.record(recordedCall{method: "AddGlobalFontAsset", id: id, name: name, handle: font})
}

func (q *mockQueue) AddGlobalAudioAsset(name string, audio protocol.Handle, id protocol.RequestID) {
	q.record(recordedCall{method: "AddGlobalAudioAsset", id: id, name: name, handle: audio})
}

func (q *mockQueue) RemoveGlobalImageAsset(name string, id protocol.RequestID) {
	q.record(recordedCall{method: "RemoveGlobalImageAsset", id: id, name: name})
}

func (q *mockQueue) RemoveGlobalFontAsset(name string, id protocol.RequestID) {
	q.record(recordedCall{method: "RemoveGlobalFontAsset", id: id, name: name})
}

func (q *mockQueue) RemoveGlobalAudioAsset(name string, id protocol.RequestID) {
	q.record(recordedCall{method: "RemoveGlobalAudioAsset", id: id, name: name})
}

func (q *mockQueue) Start()      { q.record(recordedCall{method: "Start"}) }
func (q *mockQueue) Disconnect() { q.record(recordedCall{method: "Disconnect"}) }
func (q *mockQueue) Stop()       { q.record(recordedCall{method: "Stop"}) }

// newTestDeps wires every service to a fresh mock queue.
func newTestDeps(t *testing.T) (*Dependencies, *mockQueue) {
	t.Helper()
	q := newMockQueue()
	exec := dispatch.New()
	t.Cleanup(exec.Close)
	return NewDependencies(q, exec, nil), q
}

// onExec reads service state from the executor that owns it.
func onExec[T any](t *testing.T, deps *Dependencies, fn func() T) T {
	t.Helper()
	var v T
	require.NoError(t, deps.Executor.Sync(func() { v = fn() }))
	return v
}
