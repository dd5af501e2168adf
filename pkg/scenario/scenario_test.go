package scenario

import (
	"context"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/animkit/animkit/pkg/client"
	"github.com/animkit/animkit/pkg/engine"
	"github.com/animkit/animkit/pkg/protocol"
)

const scene = `
artboards:
  - name: Main
    width: 200
    height: 100
    stateMachines: [Idle]
    viewModel: Player
viewModels:
  - name: Player
    properties:
      - {name: title, type: string}
      - {name: score, type: number}
      - {name: jump, type: trigger}
    instances:
      - name: One
        values: {title: Ada, score: 1}
`

func newRunner(t *testing.T, opts ...Option) (*Runner, *engine.Memory) {
	t.Helper()
	mem, err := engine.NewMemory(engine.HeadlessDevice())
	require.NoError(t, err)
	w, err := client.NewWorker(client.WithEngine(mem))
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	fsys := fstest.MapFS{
		"scene.yaml": {Data: []byte(scene)},
		"broken.png": {Data: []byte{0x89, 0x50, 0x4E, 0x47}},
	}
	return NewRunner(w, fsys, opts...), mem
}

func TestRunDrivesWorker(t *testing.T) {
	r, mem := newRunner(t)

	script := `
f = load_file("scene.yaml")
artboards = f.artboard_names()
ab = f.artboard("Main")
machines = ab.state_machine_names()
sm = ab.state_machine()
vmi = ab.instance(mode = "named", name = "One")
sm.bind(vmi)

def play(n):
    for i in range(n):
        sm.advance(step)

play(3)
vmi.set("score", vmi.get("score") + 41)
vmi.fire("jump")
score = vmi.get("score")
jumps = vmi.get("jump")
title = vmi.name()
print("done", title)
_hidden = 1
`
	res, err := r.Run(context.Background(), "drive.star", script, map[string]interface{}{"step": 0.5})
	require.NoError(t, err)

	assert.Equal(t, []interface{}{"Main"}, res.Output["artboards"])
	assert.Equal(t, []interface{}{"Idle"}, res.Output["machines"])
	assert.Equal(t, 42.0, res.Output["score"])
	assert.Equal(t, int64(1), res.Output["jumps"])
	assert.Equal(t, "One", res.Output["title"])
	assert.Equal(t, 0.5, res.Output["step"])
	assert.NotContains(t, res.Output, "_hidden")
	assert.NotContains(t, res.Output, "vmi")
	assert.Equal(t, []string{"done One"}, res.Printed)
	assert.Equal(t, 1500*time.Millisecond, res.Advanced)

	// Everything the script created is released when it ends.
	assert.Eventually(t, func() bool {
		st := mem.Stats()
		return st.Files == 0 && st.Artboards == 0 && st.StateMachines == 0 && st.Instances == 0
	}, 2*time.Second, 5*time.Millisecond)
}

func TestRunReportsClientErrors(t *testing.T) {
	r, _ := newRunner(t)

	tests := []struct {
		name   string
		script string
		want   string
	}{
		{
			name:   "unknown state machine",
			script: "ab = load_file(\"scene.yaml\").artboard()\nab.state_machine(\"Run\")\n",
			want:   "Run",
		},
		{
			name:   "bad image",
			script: "decode_image(\"broken.png\")\n",
			want:   "decode_image broken.png",
		},
		{
			name:   "missing file",
			script: "load_file(\"nope.yaml\")\n",
			want:   "nope.yaml",
		},
		{
			name:   "type mismatch",
			script: "f = load_file(\"scene.yaml\")\nf.instance(\"Player\").set(\"score\", \"high\")\n",
			want:   "cannot assign string to a number property",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := r.Run(context.Background(), "fail.star", tt.script, nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.Equal(t, err.Error(), res.Error)
		})
	}
}

func TestRunTimeout(t *testing.T) {
	r, _ := newRunner(t, WithTimeout(50*time.Millisecond))

	script := `
def spin():
    n = 0
    for i in range(100000000):
        n += i
    return n
spin()
`
	res, err := r.Run(context.Background(), "spin.star", script, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
	assert.NotEmpty(t, res.Error)
}

func TestValueConversion(t *testing.T) {
	v, err := toValue(protocol.DataTypeColor, fromValue(protocol.ColorValue(protocol.NewColor(255, 1, 2, 3))))
	require.NoError(t, err)
	assert.Equal(t, protocol.NewColor(255, 1, 2, 3), v.Color)

	_, err = toValue(protocol.DataTypeTrigger, fromValue(protocol.TriggerValue()))
	assert.Error(t, err)
}
