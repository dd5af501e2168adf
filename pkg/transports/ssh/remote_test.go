package ssh

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/animkit/animkit/pkg/client"
	"github.com/animkit/animkit/pkg/transports"
)

const remoteScene = `
artboards:
  - name: Main
    width: 100
    height: 100
    stateMachines: [Idle]
`

func TestSpawnRunsWorkerOverSession(t *testing.T) {
	srv := newTestSSHServer(t)
	ctx := context.Background()

	remote, err := Spawn(ctx, srv.passwordConfig(), "/opt/animkit/animkit-server",
		[]string{"--worker-id", "it's me"}, WithStderr(io.Discard), WithStartupTimeout(5*time.Second))
	if err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}

	if got := remote.Ready().Device; got != "remote-headless" {
		t.Errorf("Ready().Device = %q", got)
	}
	want := `'/opt/animkit/animkit-server' '--worker-id' 'it'\''s me'`
	if got := srv.executed(); len(got) != 1 || got[0] != want {
		t.Errorf("executed = %q, want %q", got, want)
	}

	w, err := client.NewWorker(client.WithTransport(remote))
	if err != nil {
		_ = remote.Close()
		t.Fatalf("NewWorker() error = %v", err)
	}

	file, err := w.LoadFile(ctx, []byte(remoteScene))
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	names, err := file.ArtboardNames(ctx)
	if err != nil {
		t.Fatalf("ArtboardNames() error = %v", err)
	}
	if len(names) != 1 || names[0] != "Main" {
		t.Errorf("ArtboardNames() = %v", names)
	}

	if err := w.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestSpawnRejectsBadPassword(t *testing.T) {
	srv := newTestSSHServer(t)

	cfg := srv.passwordConfig()
	cfg.Password = "wrong"
	cfg.ConnectionTimeout = 2 * time.Second

	_, err := Spawn(context.Background(), cfg, "animkit-server", nil)
	if err == nil {
		t.Fatal("Spawn() succeeded with a bad password")
	}
	var terr *transports.TransportError
	if !errors.As(err, &terr) || terr.Op != "connect" {
		t.Errorf("error = %v, want connect TransportError", err)
	}
	if len(srv.executed()) != 0 {
		t.Error("command executed without authentication")
	}
}

func TestSpawnRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig("", "testuser")

	_, err := Spawn(context.Background(), cfg, "animkit-server", nil)
	var terr *transports.TransportError
	if !errors.As(err, &terr) || terr.Op != "ssh-config" {
		t.Errorf("error = %v, want ssh-config TransportError", err)
	}
}

func TestSpawnUploadsBinary(t *testing.T) {
	srv := newTestSSHServer(t)

	local := filepath.Join(t.TempDir(), "animkit-server")
	if err := os.WriteFile(local, []byte("#!/bin/sh\nexit 0\n"), 0o700); err != nil {
		t.Fatal(err)
	}
	remotePath := filepath.Join(t.TempDir(), "bin", "animkit-server")

	remote, err := Spawn(context.Background(), srv.passwordConfig(), remotePath, nil,
		WithUpload(local), WithStderr(io.Discard))
	if err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}
	defer remote.Close()

	data, err := os.ReadFile(remotePath)
	if err != nil {
		t.Fatalf("remote binary missing: %v", err)
	}
	if string(data) != "#!/bin/sh\nexit 0\n" {
		t.Errorf("remote binary = %q", data)
	}
	info, err := os.Stat(remotePath)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm()&0o100 == 0 {
		t.Errorf("remote binary mode = %v, want executable", info.Mode())
	}
}

func TestUploadSkipsUnchangedBinary(t *testing.T) {
	srv := newTestSSHServer(t)
	ctx := context.Background()

	conn, err := dial(ctx, srv.passwordConfig())
	if err != nil {
		t.Fatalf("dial() error = %v", err)
	}
	defer conn.Close()

	local := filepath.Join(t.TempDir(), "animkit-server")
	remotePath := filepath.Join(t.TempDir(), "animkit-server")
	payload := bytes.Repeat([]byte("animkit"), 10000)
	if err := os.WriteFile(local, payload, 0o600); err != nil {
		t.Fatal(err)
	}

	steps := []struct {
		name   string
		change []byte
		want   bool
	}{
		{name: "first upload", want: true},
		{name: "unchanged", want: false},
		{name: "changed", change: []byte("v2"), want: true},
	}
	for _, step := range steps {
		if step.change != nil {
			if err := os.WriteFile(local, step.change, 0o600); err != nil {
				t.Fatal(err)
			}
		}
		copied, err := upload(ctx, conn, local, remotePath, zerolog.Nop())
		if err != nil {
			t.Fatalf("%s: upload() error = %v", step.name, err)
		}
		if copied != step.want {
			t.Errorf("%s: copied = %v, want %v", step.name, copied, step.want)
		}
	}

	data, err := os.ReadFile(remotePath)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "v2" {
		t.Errorf("remote content = %q, want v2", data)
	}
}

func TestCopyWithContextStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var dst bytes.Buffer
	_, err := copyWithContext(ctx, &dst, bytes.NewReader([]byte("data")))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if dst.Len() != 0 {
		t.Errorf("copied %d bytes after cancel", dst.Len())
	}
}

func TestCommandLine(t *testing.T) {
	tests := []struct {
		command string
		args    []string
		want    string
	}{
		{"animkit-server", nil, `'animkit-server'`},
		{"/usr/bin/animkit-server", []string{"-c", "/etc/animkit.yaml"}, `'/usr/bin/animkit-server' '-c' '/etc/animkit.yaml'`},
		{"srv", []string{"a b", "$HOME"}, `'srv' 'a b' '$HOME'`},
	}
	for _, tt := range tests {
		if got := commandLine(tt.command, tt.args); got != tt.want {
			t.Errorf("commandLine(%q, %q) = %s, want %s", tt.command, tt.args, got, tt.want)
		}
	}
}
