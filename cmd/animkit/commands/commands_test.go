package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/animkit/animkit/pkg/protocol"
	"github.com/animkit/animkit/pkg/stores"
)

const playerScene = `
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

// workspace writes the scene and a quiet config into a temp dir.
func workspace(t *testing.T, extraConfig string) (dir, scene, cfg string) {
	t.Helper()
	dir = t.TempDir()
	scene = filepath.Join(dir, "player.yaml")
	require.NoError(t, os.WriteFile(scene, []byte(playerScene), 0o600))

	cfg = filepath.Join(dir, "animkit.yaml")
	body := "telemetry:\n  logging:\n    level: error\n" + extraConfig
	require.NoError(t, os.WriteFile(cfg, []byte(body), 0o600))
	return dir, scene, cfg
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cmd := newRootCommand("test", "none", "today")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func TestInspect(t *testing.T) {
	_, scene, cfg := workspace(t, "")

	out, err := execute(t, "inspect", scene, "-c", cfg, "--json")
	require.NoError(t, err)

	var report fileReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.Len(t, report.Artboards, 2)
	assert.Equal(t, "Main", report.Artboards[0].Name)
	assert.Equal(t, []string{"Idle", "Run"}, report.Artboards[0].StateMachines)
	assert.Equal(t, "Player", report.Artboards[0].ViewModel)
	assert.Equal(t, "Hud", report.Artboards[1].Name)
	assert.Empty(t, report.Artboards[1].ViewModel)

	require.Len(t, report.ViewModels, 1)
	assert.Equal(t, []string{"One"}, report.ViewModels[0].Instances)
	assert.Len(t, report.ViewModels[0].Properties, 3)

	text, err := execute(t, "inspect", scene, "-c", cfg)
	require.NoError(t, err)
	assert.Contains(t, text, "View model Player (instances: One)")
	assert.Contains(t, text, "Idle, Run")
}

func TestInspectMissingFile(t *testing.T) {
	dir, _, cfg := workspace(t, "")
	_, err := execute(t, "inspect", filepath.Join(dir, "nope.yaml"), "-c", cfg)
	assert.Error(t, err)
}

func TestPlay(t *testing.T) {
	_, scene, cfg := workspace(t, "")

	out, err := execute(t, "play", scene, "-c", cfg, "--json",
		"--artboard", "Main", "--state-machine", "Run", "--instance", "One",
		"--set", "score=5", "--set", "jump=",
		"--watch", "score", "--watch", "jump",
		"--duration", "500ms", "--fps", "10")
	require.NoError(t, err)

	var report playReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 5, report.Frames)
	assert.Equal(t, 500*time.Millisecond, report.Advanced)
	assert.Equal(t, "One", report.Instance)
	assert.Equal(t, "5", report.Final["score"])
	assert.Equal(t, "fired 1", report.Final["jump"])
	var sawScore bool
	for _, c := range report.Changes {
		if c.Path == "score" && c.Value == "5" {
			sawScore = true
		}
	}
	assert.True(t, sawScore, "changes: %+v", report.Changes)
}

func TestPlayRejectsBadInput(t *testing.T) {
	_, scene, cfg := workspace(t, "")

	tests := []struct {
		name string
		args []string
	}{
		{"zero fps", []string{"--fps", "0"}},
		{"half a click", []string{"--click", "1"}},
		{"unknown artboard", []string{"--artboard", "Nope"}},
		{"unknown property", []string{"--watch", "lives"}},
		{"bad number", []string{"--set", "score=lots"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, append([]string{"play", scene, "-c", cfg}, tt.args...)...)
			assert.Error(t, err)
		})
	}
}

func TestScript(t *testing.T) {
	dir, _, cfg := workspace(t, "")
	script := filepath.Join(dir, "score.star")
	require.NoError(t, os.WriteFile(script, []byte(`
f = load_file("player.yaml")
vmi = f.artboard("Main").instance(mode = "named", name = "One")
vmi.set("score", target)
score = vmi.get("score")
print("scored", score)
`), 0o600))

	out, err := execute(t, "script", script, "-c", cfg, "--input", "target=7", "--json")
	require.NoError(t, err)

	var result struct {
		Output  map[string]interface{} `json:"output"`
		Printed []string               `json:"printed"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, 7.0, result.Output["score"])
	assert.Equal(t, []string{"scored 7.0"}, result.Printed)

	failing := filepath.Join(dir, "fail.star")
	require.NoError(t, os.WriteFile(failing, []byte(`fail("boom")`), 0o600))
	_, err = execute(t, "script", failing, "-c", cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestJournal(t *testing.T) {
	db := filepath.Join(t.TempDir(), "journal.db")
	_, scene, cfg := workspace(t, "journal:\n  enabled: true\n  path: "+db+"\n")

	_, err := execute(t, "inspect", scene, "-c", cfg)
	require.NoError(t, err)

	out, err := execute(t, "journal", "list", "-c", cfg, "--json")
	require.NoError(t, err)
	var summaries []stores.SessionSummary
	require.NoError(t, json.Unmarshal([]byte(out), &summaries))
	require.Len(t, summaries, 1)
	sum := summaries[0]
	assert.NotNil(t, sum.Session.EndedAt)
	assert.Positive(t, sum.Commands)
	assert.Positive(t, sum.Callbacks)
	// The Hud artboard has no default view model.
	assert.Positive(t, sum.Errors)

	out, err = execute(t, "journal", "show", sum.Session.ID, "--db", db, "--type", string(protocol.CallbackFileLoaded), "--json")
	require.NoError(t, err)
	var shown struct {
		Commands int             `json:"commands"`
		Entries  []stores.Entry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &shown))
	assert.Equal(t, sum.Commands, shown.Commands)
	require.Len(t, shown.Entries, 1)
	assert.Equal(t, stores.DirectionCallback, shown.Entries[0].Direction)

	_, err = execute(t, "journal", "show", sum.Session.ID, "--db", db, "--direction", "sideways")
	assert.Error(t, err)

	_, err = execute(t, "journal", "delete", sum.Session.ID, "--db", db)
	require.NoError(t, err)
	out, err = execute(t, "journal", "list", "--db", db, "--json")
	require.NoError(t, err)
	assert.JSONEq(t, "[]", out)
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		dt      protocol.DataType
		in      string
		want    protocol.Value
		wantErr bool
	}{
		{protocol.DataTypeString, "hi", protocol.StringValue("hi"), false},
		{protocol.DataTypeNumber, "2.5", protocol.NumberValue(2.5), false},
		{protocol.DataTypeNumber, "x", protocol.Value{}, true},
		{protocol.DataTypeBoolean, "true", protocol.BoolValue(true), false},
		{protocol.DataTypeBoolean, "maybe", protocol.Value{}, true},
		{protocol.DataTypeEnum, "left", protocol.EnumValue("left"), false},
		{protocol.DataTypeColor, "#336699", protocol.ColorValue(protocol.NewColor(0xff, 0x33, 0x66, 0x99)), false},
		{protocol.DataTypeColor, "80336699", protocol.ColorValue(protocol.NewColor(0x80, 0x33, 0x66, 0x99)), false},
		{protocol.DataTypeColor, "#3366", protocol.Value{}, true},
		{protocol.DataTypeList, "[]", protocol.Value{}, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.dt)+"/"+tt.in, func(t *testing.T) {
			got, err := parseValue(tt.dt, tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, `"Ada"`, formatValue(protocol.StringValue("Ada")))
	assert.Equal(t, "3", formatValue(protocol.NumberValue(3)))
	assert.Equal(t, "#FF336699", formatValue(protocol.ColorValue(protocol.NewColor(0xff, 0x33, 0x66, 0x99))))
}

func TestAssetPolicies(t *testing.T) {
	dir := t.TempDir()
	assetsDir := filepath.Join(dir, "assets")
	policyDir := filepath.Join(dir, "policies")
	require.NoError(t, os.Mkdir(assetsDir, 0o700))
	require.NoError(t, os.Mkdir(policyDir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(policyDir, "strict.rego"), []byte(`package animkit.test.strict

import rego.v1

deny contains "no audio" if input.asset.kind == "audio"
`), 0o600))

	_, scene, cfg := workspace(t, "assets:\n  dir: "+assetsDir+"\n  policies: ["+policyDir+"]\n")
	_, err := execute(t, "inspect", scene, "-c", cfg)
	require.NoError(t, err)

	_, scene, cfg = workspace(t, "assets:\n  dir: "+assetsDir+"\n  policies: ["+filepath.Join(dir, "missing")+"]\n")
	_, err = execute(t, "inspect", scene, "-c", cfg)
	assert.ErrorContains(t, err, "missing")
}
