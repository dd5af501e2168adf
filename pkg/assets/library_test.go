package assets

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/animkit/animkit/pkg/client"
	"github.com/animkit/animkit/pkg/engine"
	"github.com/animkit/animkit/pkg/policy"
	"github.com/animkit/animkit/pkg/protocol"
)

var wav = []byte("RIFF\x24\x00\x00\x00WAVEfmt \x10\x00\x00\x00\x01\x00\x01\x00\x44\xac\x00\x00\x88\x58\x01\x00\x02\x00\x10\x00data\x00\x00\x00\x00")

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))))
	return buf.Bytes()
}

func newWorker(t *testing.T) (*client.Worker, *engine.Memory) {
	t.Helper()
	mem, err := engine.NewMemory(engine.HeadlessDevice())
	require.NoError(t, err)
	w, err := client.NewWorker(client.WithEngine(mem))
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w, mem
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestNameOf(t *testing.T) {
	assert.Equal(t, "logo", NameOf("/assets/logo.png"))
	assert.Equal(t, "theme.dark", NameOf("theme.dark.ttf"))
	assert.Equal(t, "README", NameOf("README"))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want protocol.Kind
	}{
		{"png", pngBytes(t), protocol.KindImage},
		{"ttf", goregular.TTF, protocol.KindFont},
		{"wav", wav, protocol.KindAudio},
		{"text", []byte("hello"), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, _ := classify(tt.data)
			assert.Equal(t, tt.want, kind)
		})
	}
}

func TestLoadRegistersGlobals(t *testing.T) {
	w, mem := newWorker(t)
	dir := t.TempDir()
	writeFile(t, dir, "logo.png", pngBytes(t))
	writeFile(t, dir, "body.ttf", goregular.TTF)
	writeFile(t, dir, "click.wav", wav)
	writeFile(t, dir, "notes.txt", []byte("not an asset"))
	writeFile(t, dir, ".hidden.png", pngBytes(t))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o700))
	writeFile(t, filepath.Join(dir, "nested"), "deep.png", pngBytes(t))

	lib := New(w, dir)
	require.NoError(t, lib.Load(context.Background()))

	got := lib.Assets()
	require.Len(t, got, 3)
	assert.Equal(t, "body", got[0].Name)
	assert.Equal(t, protocol.KindFont, got[0].Kind)
	assert.Equal(t, "click", got[1].Name)
	assert.Equal(t, protocol.KindAudio, got[1].Kind)
	assert.Equal(t, "logo", got[2].Name)
	assert.Equal(t, "image/png", got[2].MIME)

	img, ok := w.GlobalImage("logo")
	require.True(t, ok)
	assert.Equal(t, got[2].Handle, img.Handle())
	_, ok = w.GlobalFont("body")
	assert.True(t, ok)
	_, ok = w.GlobalAudio("click")
	assert.True(t, ok)

	require.NoError(t, lib.Close())
	_, ok = w.GlobalImage("logo")
	assert.False(t, ok)
	assert.Empty(t, lib.Assets())
	assert.Eventually(t, func() bool {
		st := mem.Stats()
		return st.Images == 0 && st.Fonts == 0 && st.Audio == 0
	}, 2*time.Second, 5*time.Millisecond)
}

func TestSyncReplacesAndRemoves(t *testing.T) {
	w, _ := newWorker(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "logo.png", pngBytes(t))
	ctx := context.Background()

	lib := New(w, dir)
	t.Cleanup(func() { _ = lib.Close() })
	require.NoError(t, lib.Sync(ctx, path))
	first, ok := w.GlobalImage("logo")
	require.True(t, ok)

	require.NoError(t, lib.Sync(ctx, path))
	second, ok := w.GlobalImage("logo")
	require.True(t, ok)
	assert.False(t, first.Equal(second))
	assert.Len(t, lib.Assets(), 1)

	require.NoError(t, os.Remove(path))
	require.NoError(t, lib.Sync(ctx, path))
	_, ok = w.GlobalImage("logo")
	assert.False(t, ok)

	bad := writeFile(t, dir, "broken.txt", []byte("plain text"))
	assert.ErrorIs(t, lib.Sync(ctx, bad), ErrUnsupported)
}

func TestPolicyDeniesAsset(t *testing.T) {
	w, _ := newWorker(t)
	dir := t.TempDir()
	ctx := context.Background()

	pe, err := policy.NewEngine(ctx, w.Telemetry().Logger.Zerolog().With().Logger())
	require.NoError(t, err)
	require.NoError(t, pe.Add(ctx, policy.Policy{
		Name:     "no-audio",
		Severity: policy.SeverityError,
		Enabled:  true,
		Rego: `package animkit.test.audio

import rego.v1

deny contains "audio is disabled" if input.asset.kind == "audio"
`,
	}))

	lib := New(w, dir, WithPolicy(pe))
	t.Cleanup(func() { _ = lib.Close() })

	click := writeFile(t, dir, "click.wav", wav)
	err = lib.Sync(ctx, click)
	assert.ErrorIs(t, err, ErrDenied)
	assert.Contains(t, err.Error(), "audio is disabled")
	_, ok := w.GlobalAudio("click")
	assert.False(t, ok)

	writeFile(t, dir, "logo.png", pngBytes(t))
	writeFile(t, dir, "2x logo.png", pngBytes(t))
	require.NoError(t, lib.Load(ctx))
	got := lib.Assets()
	require.Len(t, got, 2)
	assert.Equal(t, "2x logo", got[0].Name)
	assert.Equal(t, "logo", got[1].Name)
}

func TestWatchFollowsDirectory(t *testing.T) {
	w, _ := newWorker(t)
	dir := t.TempDir()
	logo := writeFile(t, dir, "logo.png", pngBytes(t))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	lib := New(w, dir, WithDebounce(10*time.Millisecond))
	require.NoError(t, lib.Watch(ctx))
	t.Cleanup(func() { _ = lib.Close() })

	_, ok := w.GlobalImage("logo")
	require.True(t, ok)

	writeFile(t, dir, "icon.png", pngBytes(t))
	assert.Eventually(t, func() bool {
		_, ok := w.GlobalImage("icon")
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, os.Remove(logo))
	assert.Eventually(t, func() bool {
		_, ok := w.GlobalImage("logo")
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
}
