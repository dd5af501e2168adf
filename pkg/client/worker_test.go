package client

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/animkit/animkit/pkg/dispatch"
	"github.com/animkit/animkit/pkg/engine"
	"github.com/animkit/animkit/pkg/protocol"
)

const workerScene = `
artboards:
  - name: Main
    width: 200
    height: 100
    stateMachines: [Idle, Run]
    viewModel: Player
  - name: Hud
    width: 50
    height: 50
viewModels:
  - name: Player
    properties:
      - {name: name, type: string}
      - {name: score, type: number}
      - {name: jump, type: trigger}
    instances:
      - name: One
        values: {name: Ada, score: 1}
`

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))))
	return buf.Bytes()
}

func newTestWorker(t *testing.T) (*Worker, *engine.Memory) {
	t.Helper()
	mem, err := engine.NewMemory(engine.HeadlessDevice())
	require.NoError(t, err)
	w, err := NewWorker(WithEngine(mem), WithWorkerID("test"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w, mem
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestNewWorkerRequiresDevice(t *testing.T) {
	noDevice := engine.DeviceProviderFunc(func() (*engine.Device, error) { return nil, nil })
	_, err := NewWorker(WithDeviceProvider(noDevice))
	assert.ErrorIs(t, err, ErrMissingDevice)
}

func TestWorkerFileGraph(t *testing.T) {
	w, mem := newTestWorker(t)
	ctx := testContext(t)

	file, err := w.LoadFile(ctx, []byte(workerScene))
	require.NoError(t, err)

	names, err := file.ArtboardNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Main", "Hud"}, names)

	props, err := file.ViewModelProperties(ctx, "Player")
	require.NoError(t, err)
	assert.Len(t, props, 3)

	_, err = file.CreateArtboard(ctx, "Missing")
	var badArtboard *InvalidArtboardError
	require.ErrorAs(t, err, &badArtboard)

	artboard, err := file.CreateArtboard(ctx, "Main")
	require.NoError(t, err)
	smNames, err := artboard.StateMachineNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Idle", "Run"}, smNames)

	info, err := artboard.DefaultViewModelInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, ViewModelInfo{ViewModel: "Player", Instance: "One"}, info)

	_, err = artboard.CreateStateMachine(ctx, "Fly")
	var badSM *InvalidStateMachineError
	require.ErrorAs(t, err, &badSM)

	sm, err := artboard.CreateStateMachine(ctx, "Run")
	require.NoError(t, err)
	require.NoError(t, sm.Advance(250*time.Millisecond))
	require.NoError(t, sm.PointerDown(10, 20))

	// A round trip through the server orders the checks after the
	// fire-and-forget commands above.
	_, err = artboard.StateMachineNames(ctx)
	require.NoError(t, err)
	state, err := mem.StateMachine(sm.Handle())
	require.NoError(t, err)
	assert.Equal(t, "Run", state.Name)
	assert.Equal(t, 250*time.Millisecond, state.Elapsed)

	hud, err := file.CreateArtboard(ctx, "Hud")
	require.NoError(t, err)
	_, err = hud.DefaultViewModelInfo(ctx)
	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, protocol.KindArtboard, cmdErr.Kind)

	require.NoError(t, artboard.Close())
	require.NoError(t, file.Close())
	assert.Eventually(t, func() bool { return mem.Stats().Files == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestWorkerViewModelInstance(t *testing.T) {
	w, _ := newTestWorker(t)
	ctx := testContext(t)

	file, err := w.LoadFile(ctx, []byte(workerScene))
	require.NoError(t, err)
	artboard, err := file.CreateArtboard(ctx, "")
	require.NoError(t, err)

	vmi, err := artboard.CreateViewModelInstance(ctx, protocol.InstanceNamed, "One")
	require.NoError(t, err)

	name, err := vmi.Name(ctx)
	require.NoError(t, err)
	assert.Equal(t, "One", name)

	score, err := vmi.Number(ctx, "score")
	require.NoError(t, err)
	assert.Equal(t, 1.0, score)

	_, err = vmi.Bool(ctx, "score")
	var mismatch *ValueMismatchError
	require.ErrorAs(t, err, &mismatch)

	_, err = vmi.Number(ctx, "missing")
	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)

	updates := make(chan float64, 4)
	sub, err := vmi.SubscribeNumber("score", func(v float64) { updates <- v })
	require.NoError(t, err)
	jumps := make(chan struct{}, 4)
	_, err = vmi.SubscribeTrigger("jump", func() { jumps <- struct{}{} })
	require.NoError(t, err)

	require.NoError(t, vmi.SetNumber("score", 42))
	assert.Equal(t, 42.0, receive(t, updates))
	require.NoError(t, vmi.FireTrigger("jump"))
	receive(t, jumps)

	require.NoError(t, sub.Cancel())
	require.NoError(t, vmi.SetNumber("score", 43))
	score, err = vmi.Number(ctx, "score")
	require.NoError(t, err)
	assert.Equal(t, 43.0, score)
	assert.Empty(t, updates)

	sm, err := artboard.CreateStateMachine(ctx, "")
	require.NoError(t, err)
	require.NoError(t, sm.Bind(vmi))

	_, err = file.CreateViewModelInstance(ctx, protocol.InstanceSource{Mode: protocol.InstanceNamed, ViewModel: "Player", Instance: "Two"})
	var badInstance *InvalidViewModelInstanceError
	require.ErrorAs(t, err, &badInstance)

	blank, err := file.CreateViewModelInstance(ctx, protocol.InstanceSource{Mode: protocol.InstanceBlank, ViewModel: "Player"})
	require.NoError(t, err)
	title, err := blank.String(ctx, "name")
	require.NoError(t, err)
	assert.Empty(t, title)
}

func TestInstanceServiceCreateModes(t *testing.T) {
	w, _ := newTestWorker(t)
	ctx := testContext(t)

	file, err := w.LoadFile(ctx, []byte(workerScene))
	require.NoError(t, err)
	artboard, err := file.CreateArtboard(ctx, "Main")
	require.NoError(t, err)

	svc := w.Dependencies().Instances
	fh, ah := file.Handle(), artboard.Handle()

	tests := []struct {
		name   string
		create func() (protocol.Handle, error)
		score  float64
	}{
		{"blank by view model", func() (protocol.Handle, error) { return svc.CreateBlank(fh, "Player") }, 0},
		{"default by view model", func() (protocol.Handle, error) { return svc.CreateDefault(fh, "Player") }, 1},
		{"named by view model", func() (protocol.Handle, error) { return svc.CreateNamed(fh, "Player", "One") }, 1},
		{"blank for artboard", func() (protocol.Handle, error) { return svc.CreateBlankForArtboard(fh, ah) }, 0},
		{"default for artboard", func() (protocol.Handle, error) { return svc.CreateDefaultForArtboard(fh, ah) }, 1},
		{"named for artboard", func() (protocol.Handle, error) { return svc.CreateNamedForArtboard(fh, ah, "One") }, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := tt.create()
			require.NoError(t, err)
			assert.NotEqual(t, protocol.InvalidHandle, h)

			score, err := svc.Number(ctx, h, "score")
			require.NoError(t, err)
			assert.Equal(t, tt.score, score)
		})
	}
}

func TestWorkerAssets(t *testing.T) {
	w, mem := newTestWorker(t)
	ctx := testContext(t)

	_, err := w.DecodeImage(ctx, []byte{0x89, 0x50, 0x4E, 0x47})
	assert.ErrorIs(t, err, ErrFailedDecoding)

	img, err := w.DecodeImage(ctx, pngBytes(t))
	require.NoError(t, err)
	font, err := w.DecodeFont(ctx, goregular.TTF)
	require.NoError(t, err)

	_, err = w.LoadFile(ctx, []byte("artboards: ["))
	assert.ErrorIs(t, err, ErrInvalidFile)

	require.NoError(t, w.AddGlobalFontAsset(font, "body"))
	got, ok := w.GlobalFont("body")
	require.True(t, ok)
	assert.True(t, got.Equal(font))

	require.NoError(t, w.RemoveGlobalFontAsset("body"))
	_, ok = w.GlobalFont("body")
	assert.False(t, ok)

	require.NoError(t, img.Close())
	assert.Eventually(t, func() bool { return mem.Stats().Images == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestWorkerGlobalAssetOverwrite(t *testing.T) {
	w, mem := newTestWorker(t)
	ctx := testContext(t)

	first, err := w.DecodeImage(ctx, pngBytes(t))
	require.NoError(t, err)
	second, err := w.DecodeImage(ctx, pngBytes(t))
	require.NoError(t, err)
	require.False(t, first.Equal(second))

	require.NoError(t, w.AddGlobalImageAsset(first, "logo"))
	require.NoError(t, w.AddGlobalImageAsset(second, "logo"))

	got, ok := w.GlobalImage("logo")
	require.True(t, ok)
	assert.True(t, got.Equal(second))
	assert.False(t, got.Equal(first))

	// Flush the fire-and-forget registrations through the server.
	_, err = w.DecodeImage(ctx, pngBytes(t))
	require.NoError(t, err)
	h, ok := mem.GlobalAsset(protocol.KindImage, "logo")
	require.True(t, ok)
	assert.Equal(t, second.Handle(), h)
}

func TestWorkerClose(t *testing.T) {
	w, _ := newTestWorker(t)
	ctx := testContext(t)

	img, err := w.DecodeImage(ctx, pngBytes(t))
	require.NoError(t, err)

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	_, err = w.LoadFile(ctx, []byte(workerScene))
	assert.ErrorIs(t, err, dispatch.ErrStopped)
	require.NoError(t, img.Close())
}

func TestWorkerCancelKeepsSiblingSubscription(t *testing.T) {
	w, _ := newTestWorker(t)
	ctx := testContext(t)

	file, err := w.LoadFile(ctx, []byte(workerScene))
	require.NoError(t, err)
	artboard, err := file.CreateArtboard(ctx, "")
	require.NoError(t, err)
	vmi, err := artboard.CreateViewModelInstance(ctx, protocol.InstanceNamed, "One")
	require.NoError(t, err)

	first := make(chan float64, 4)
	second := make(chan float64, 4)
	subA, err := vmi.SubscribeNumber("score", func(v float64) { first <- v })
	require.NoError(t, err)
	_, err = vmi.SubscribeNumber("score", func(v float64) { second <- v })
	require.NoError(t, err)

	require.NoError(t, subA.Cancel())
	require.NoError(t, vmi.SetNumber("score", 7))
	_, err = vmi.Number(ctx, "score")
	require.NoError(t, err)

	assert.Equal(t, 7.0, receive(t, second))
	assert.Empty(t, first)
}

// startDetachedWorker starts a worker and drops it without Close.
func startDetachedWorker(t *testing.T, mem *engine.Memory) <-chan struct{} {
	t.Helper()
	w, err := NewWorker(WithEngine(mem))
	require.NoError(t, err)
	return w.server.Done()
}

func TestUnreachableWorkerStops(t *testing.T) {
	mem, err := engine.NewMemory(engine.HeadlessDevice())
	require.NoError(t, err)

	done := startDetachedWorker(t, mem)
	assert.Eventually(t, func() bool {
		runtime.GC()
		select {
		case <-done:
			return true
		default:
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)
}
