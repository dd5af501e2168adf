package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/animkit/animkit/pkg/telemetry"
	"github.com/animkit/animkit/pkg/transports/ssh"
)

// Config is the configuration of an animkit worker and its tooling.
type Config struct {
	// Worker configures the command queue and executor.
	Worker WorkerConfig `yaml:"worker"`

	// Assets configures the global asset directory.
	Assets AssetsConfig `yaml:"assets"`

	// Journal configures command journaling.
	Journal JournalConfig `yaml:"journal"`

	// Scenario configures script execution.
	Scenario ScenarioConfig `yaml:"scenario"`

	// Server selects an external server process, local or over SSH. When
	// Command is empty the worker runs an in-process server.
	Server ServerConfig `yaml:"server"`

	// Telemetry configures logging, tracing, metrics and events.
	Telemetry *telemetry.Config `yaml:"telemetry" validate:"required"`
}

// WorkerConfig configures one worker.
type WorkerConfig struct {
	// ID names the worker in logs and events. Empty means a random UUID.
	ID string `yaml:"id"`

	// Device selects the rendering device (headless).
	Device string `yaml:"device" validate:"oneof=headless"`

	// CallbackBuffer is the capacity of the in-process command pipe.
	CallbackBuffer int `yaml:"callback_buffer" validate:"gte=1,lte=65536"`
}

// AssetsConfig configures the global asset directory. Every image, font and
// audio file in Dir is decoded and registered under its file name without
// extension.
type AssetsConfig struct {
	Dir string `yaml:"dir"`

	// Watch keeps the registry in sync with Dir while the worker runs.
	Watch bool `yaml:"watch"`

	// Debounce coalesces bursts of file events.
	Debounce time.Duration `yaml:"debounce" validate:"gte=0"`

	// Policies lists Rego files or directories evaluated before a file is
	// registered, in addition to the built-in policies.
	Policies []string `yaml:"policies"`
}

// JournalConfig configures the SQLite command journal.
type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path" validate:"required_if=Enabled true"`

	// Buffer is how many entries may wait for the writer.
	Buffer int `yaml:"buffer" validate:"gte=0"`

	// Retention prunes sessions older than this on startup. Zero keeps all.
	Retention time.Duration `yaml:"retention" validate:"gte=0"`
}

// ScenarioConfig configures script execution.
type ScenarioConfig struct {
	// Timeout bounds one script run.
	Timeout time.Duration `yaml:"timeout" validate:"gt=0"`
}

// ServerConfig selects an external animkit-server binary.
type ServerConfig struct {
	Command        string        `yaml:"command"`
	Args           []string      `yaml:"args"`
	StartupTimeout time.Duration `yaml:"startup_timeout" validate:"gte=0"`

	// SSH runs Command on a remote host instead of as a child process.
	SSH *ssh.Config `yaml:"ssh"`

	// Upload is a local binary copied to Command on the SSH host before it
	// is started.
	Upload string `yaml:"upload"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Worker: WorkerConfig{
			Device:         "headless",
			CallbackBuffer: 64,
		},
		Assets: AssetsConfig{
			Debounce: 100 * time.Millisecond,
		},
		Journal: JournalConfig{
			Path:   "animkit.db",
			Buffer: 1024,
		},
		Scenario: ScenarioConfig{
			Timeout: 30 * time.Second,
		},
		Server: ServerConfig{
			StartupTimeout: 10 * time.Second,
		},
		Telemetry: telemetry.DefaultConfig(),
	}
}

// Load reads path over DefaultConfig and validates the result. Files ending
// in .cue are evaluated as CUE, anything else is YAML.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg *Config
	if filepath.Ext(path) == ".cue" {
		cfg, err = ParseCUE(data, path)
	} else {
		cfg, err = Parse(data)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over DefaultConfig and validates the result. Unknown
// keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader([]byte(os.ExpandEnv(string(data)))))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks every section.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return fmt.Errorf("invalid config: %s fails %q", verrs[0].Namespace(), verrs[0].Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("invalid telemetry config: %w", err)
	}
	if c.Server.SSH != nil {
		if c.Server.Command == "" {
			return errors.New("invalid config: server.ssh requires server.command")
		}
		if err := c.Server.SSH.Validate(); err != nil {
			return fmt.Errorf("invalid ssh config: %w", err)
		}
	} else if c.Server.Upload != "" {
		return errors.New("invalid config: server.upload requires server.ssh")
	}
	return nil
}
