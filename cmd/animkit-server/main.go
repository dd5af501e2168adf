// Package main implements animkit-server, an engine host that reads
// commands as JSON lines on stdin and writes callbacks to stdout. A worker
// started with a process transport drives it; logs go to stderr.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/animkit/animkit/pkg/config"
	"github.com/animkit/animkit/pkg/engine"
	"github.com/animkit/animkit/pkg/protocol"
	"github.com/animkit/animkit/pkg/server"
	"github.com/animkit/animkit/pkg/telemetry"
	"github.com/animkit/animkit/pkg/transports"
)

// Version information (set via ldflags during build)
var Version = "dev"

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := newRootCommand().Execute(); err != nil {
		log.Error().Err(err).Msg("Server failed")
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath, workerID string

	cmd := &cobra.Command{
		Use:   "animkit-server",
		Short: "Engine host speaking the animkit protocol on stdio",
		Long: `animkit-server hosts an engine for one worker. Commands arrive as JSON
lines on stdin and callbacks are written to stdout. It announces itself
with a ready message and says goodbye with an exit message.

It is normally started by a worker whose config sets server.command.`,
		Version:       Version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, workerID)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "config file path")
	cmd.Flags().StringVar(&workerID, "worker-id", "", "worker id to tag logs with")

	return cmd
}

func run(configPath, workerID string) error {
	cfg := config.DefaultConfig()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return err
		}
	}
	// stdout carries the protocol.
	if cfg.Telemetry.Logging.Output == "stdout" {
		cfg.Telemetry.Logging.Output = "stderr"
	}

	tel, err := telemetry.NewTelemetry(cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("failed to set up telemetry: %w", err)
	}
	defer func() { _ = tel.Shutdown(context.Background()) }()

	device, err := engine.DefaultDeviceProvider.Device()
	if err != nil {
		return fmt.Errorf("failed to resolve device: %w", err)
	}
	e, err := engine.NewMemory(device)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	t := transports.NewStreamServerTransport(os.Stdin, os.Stdout, nil)
	if err := t.SendReady(&protocol.ReadyMessage{
		Version: Version,
		Device:  device.Name,
		PID:     os.Getpid(),
	}); err != nil {
		return fmt.Errorf("failed to send ready: %w", err)
	}

	opts := []server.Option{server.WithTelemetry(tel)}
	if workerID != "" {
		opts = append(opts, server.WithWorkerID(workerID))
	}
	srv := server.New(t, e, opts...)

	reason := "disconnected"
	serveErr := srv.Serve(ctx)
	switch {
	case serveErr != nil:
		reason = "error"
	case ctx.Err() != nil:
		reason = "signal"
	}
	if err := t.SendExit(reason); err != nil {
		log.Debug().Err(err).Msg("Exit message not sent")
	}
	return serveErr
}
