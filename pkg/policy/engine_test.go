package policy

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(context.Background(), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	return e
}

func imageInput(name string, size int64) *Input {
	return &Input{
		Asset: AssetInput{
			Name: name,
			Kind: "image",
			MIME: "image/png",
			Size: size,
			Path: "/assets/" + name + ".png",
		},
		Context: InputContext{WorkerID: "worker-1", Operation: "register"},
	}
}

func TestNewEngineLoadsBuiltins(t *testing.T) {
	e := newTestEngine(t)

	policies := e.Policies()
	if len(policies) != len(BuiltinPolicies()) {
		t.Fatalf("Policies() = %d, want %d", len(policies), len(BuiltinPolicies()))
	}
	for _, p := range policies {
		if !p.Enabled {
			t.Errorf("built-in policy %s is disabled", p.Name)
		}
	}
}

func TestEvaluateBuiltins(t *testing.T) {
	e := newTestEngine(t)

	tests := []struct {
		name         string
		input        *Input
		wantAllowed  bool
		wantViolated int
		wantWarnings int
	}{
		{name: "plain image", input: imageInput("logo", 1024), wantAllowed: true},
		{name: "oversized image", input: imageInput("logo", MaxAssetBytes+1), wantAllowed: false, wantViolated: 1},
		{name: "at size limit", input: imageInput("logo", MaxAssetBytes), wantAllowed: true},
		{name: "whitespace name", input: imageInput("my logo", 10), wantAllowed: true, wantWarnings: 1},
		{name: "leading digit", input: imageInput("3d", 10), wantAllowed: true, wantWarnings: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := e.Evaluate(context.Background(), tt.input)
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			if d.Allowed != tt.wantAllowed {
				t.Errorf("Allowed = %v, want %v", d.Allowed, tt.wantAllowed)
			}
			if len(d.Violations) != tt.wantViolated {
				t.Errorf("Violations = %v, want %d", d.Violations, tt.wantViolated)
			}
			if len(d.Warnings) != tt.wantWarnings {
				t.Errorf("Warnings = %v, want %d", d.Warnings, tt.wantWarnings)
			}
			if len(d.EvaluatedPolicies) != len(BuiltinPolicies()) {
				t.Errorf("EvaluatedPolicies = %v", d.EvaluatedPolicies)
			}
		})
	}
}

func TestViolationCarriesAsset(t *testing.T) {
	e := newTestEngine(t)

	d, err := e.Evaluate(context.Background(), imageInput("poster", MaxAssetBytes*2))
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if len(d.Violations) != 1 {
		t.Fatalf("Violations = %v, want 1", d.Violations)
	}
	v := d.Violations[0]
	if v.Asset != "poster" || v.Policy != "asset-size" || v.Severity != SeverityError {
		t.Errorf("violation = %+v", v)
	}
	if v.Message == "" {
		t.Error("violation has no message")
	}
}

func TestLoadPaths(t *testing.T) {
	dir := t.TempDir()
	writePolicy(t, dir, "no-audio.rego", `package animkit.custom.audio

import rego.v1

deny contains msg if {
	input.asset.kind == "audio"
	msg := sprintf("audio asset %s is not allowed", [input.asset.name])
}
`)
	writePolicy(t, dir, "quiet.rego", `package animkit.custom.quiet

import rego.v1

deny contains "plain string denial" if {
	input.asset.name == "noisy"
}
`)
	writePolicy(t, dir, "README.md", "not a policy")

	e := newTestEngine(t)
	if err := e.LoadPaths(context.Background(), []string{dir}); err != nil {
		t.Fatalf("LoadPaths() error = %v", err)
	}

	audio := imageInput("click", 10)
	audio.Asset.Kind = "audio"
	d, err := e.Evaluate(context.Background(), audio)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if d.Allowed {
		t.Fatal("audio asset allowed")
	}
	if got := d.Violations[0].Message; got != "audio asset click is not allowed" {
		t.Errorf("message = %q", got)
	}
	if got := d.Violations[0].Policy; got != "no-audio" {
		t.Errorf("policy = %q", got)
	}

	d, err = e.Evaluate(context.Background(), imageInput("noisy", 10))
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if d.Allowed || d.Violations[0].Message != "plain string denial" {
		t.Errorf("decision = %+v", d)
	}
}

func TestAddRejectsInvalidRego(t *testing.T) {
	e := newTestEngine(t)

	err := e.Add(context.Background(), Policy{Name: "broken", Rego: "package broken\n\ndeny contains {"})
	if err == nil {
		t.Fatal("Add() succeeded for invalid rego")
	}

	if err := e.LoadPaths(context.Background(), []string{filepath.Join(t.TempDir(), "missing")}); err == nil {
		t.Error("LoadPaths() succeeded for missing directory")
	}
}

func TestDisablePolicy(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	if err := e.DisablePolicy("asset-size"); err != nil {
		t.Fatalf("DisablePolicy() error = %v", err)
	}
	d, err := e.Evaluate(ctx, imageInput("logo", MaxAssetBytes*4))
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !d.Allowed {
		t.Errorf("disabled policy still denied: %+v", d.Violations)
	}

	if err := e.EnablePolicy("asset-size"); err != nil {
		t.Fatalf("EnablePolicy() error = %v", err)
	}
	d, err = e.Evaluate(ctx, imageInput("logo", MaxAssetBytes*4))
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if d.Allowed {
		t.Error("re-enabled policy did not deny")
	}

	if err := e.DisablePolicy("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("DisablePolicy(missing) error = %v, want ErrNotFound", err)
	}
}

func writePolicy(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}
