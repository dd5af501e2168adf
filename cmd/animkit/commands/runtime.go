package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/animkit/animkit/pkg/assets"
	"github.com/animkit/animkit/pkg/client"
	"github.com/animkit/animkit/pkg/config"
	"github.com/animkit/animkit/pkg/engine"
	"github.com/animkit/animkit/pkg/policy"
	"github.com/animkit/animkit/pkg/stores"
	"github.com/animkit/animkit/pkg/telemetry"
	"github.com/animkit/animkit/pkg/transports"
	"github.com/animkit/animkit/pkg/transports/ssh"
)

// loadConfig reads --config, or the defaults when it is not set.
func loadConfig() (*config.Config, error) {
	cfg := config.DefaultConfig()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return nil, err
		}
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}
	return cfg, nil
}

// runtime is a worker plus everything the config attaches to it.
type runtime struct {
	cfg     *config.Config
	tel     *telemetry.Telemetry
	conn    transports.Transport // external server until the worker owns it
	store   *stores.SQLiteStore
	journal *stores.Journal
	worker  *client.Worker
	library *assets.Library
}

// startRuntime builds a worker from cfg. With watch set and assets.watch
// enabled the asset directory is followed until Close.
func startRuntime(ctx context.Context, cfg *config.Config, watch bool) (rt *runtime, err error) {
	tel, err := telemetry.NewTelemetry(cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("failed to set up telemetry: %w", err)
	}
	rt = &runtime{cfg: cfg, tel: tel}
	defer func() {
		if err != nil {
			_ = rt.Close(context.Background())
			rt = nil
		}
	}()

	id := cfg.Worker.ID
	if id == "" {
		id = uuid.NewString()
	}
	opts := []client.WorkerOption{
		client.WithTelemetry(tel),
		client.WithWorkerID(id),
		client.WithCallbackBuffer(cfg.Worker.CallbackBuffer),
	}

	var device string
	args := append([]string{"--worker-id", id}, cfg.Server.Args...)
	switch {
	case cfg.Server.SSH != nil:
		sshOpts := []ssh.Option{
			ssh.WithStartupTimeout(cfg.Server.StartupTimeout),
			ssh.WithLogger(*tel.Logger.Zerolog()),
		}
		if cfg.Server.Upload != "" {
			sshOpts = append(sshOpts, ssh.WithUpload(cfg.Server.Upload))
		}
		remote, err := ssh.Spawn(ctx, cfg.Server.SSH, cfg.Server.Command, args, sshOpts...)
		if err != nil {
			return nil, err
		}
		rt.conn, device = remote, remote.Ready().Device
		opts = append(opts, client.WithTransport(remote))
	case cfg.Server.Command != "":
		proc, err := transports.Spawn(ctx, cfg.Server.Command, cfg.Server.StartupTimeout, args...)
		if err != nil {
			return nil, err
		}
		rt.conn, device = proc, proc.Ready().Device
		opts = append(opts, client.WithTransport(proc))
	default:
		d, err := engine.DefaultDeviceProvider.Device()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve device: %w", err)
		}
		if d != nil {
			device = d.Name
		}
	}

	if cfg.Journal.Enabled {
		if err := rt.openJournal(ctx, id, device); err != nil {
			return nil, err
		}
		opts = append(opts, client.WithRecorder(rt.journal))
	}

	rt.worker, err = client.NewWorker(opts...)
	if err != nil {
		return nil, err
	}
	rt.conn = nil

	if cfg.Assets.Dir != "" {
		libOpts := []assets.Option{assets.WithDebounce(cfg.Assets.Debounce)}
		if len(cfg.Assets.Policies) > 0 {
			pe, err := policy.NewEngine(ctx, *tel.Logger.Zerolog())
			if err != nil {
				return nil, err
			}
			if err := pe.LoadPaths(ctx, cfg.Assets.Policies); err != nil {
				return nil, err
			}
			libOpts = append(libOpts, assets.WithPolicy(pe))
		}
		rt.library = assets.New(rt.worker, cfg.Assets.Dir, libOpts...)
		if watch && cfg.Assets.Watch {
			err = rt.library.Watch(ctx)
		} else {
			err = rt.library.Load(ctx)
		}
		if err != nil {
			return nil, err
		}
	}

	return rt, nil
}

func (rt *runtime) openJournal(ctx context.Context, workerID, device string) error {
	store, err := stores.NewSQLiteStore(stores.Config{Path: rt.cfg.Journal.Path})
	if err != nil {
		return err
	}
	rt.store = store
	if err := store.Init(ctx); err != nil {
		return err
	}
	if err := store.Migrate(ctx); err != nil {
		return err
	}

	log := rt.tel.Logger.NewComponentLogger("cli")
	if rt.cfg.Journal.Retention > 0 {
		n, err := store.PruneSessions(ctx, time.Now().Add(-rt.cfg.Journal.Retention))
		if err != nil {
			return err
		}
		if n > 0 {
			log.Infof("pruned %d journal sessions", n)
		}
	}

	metadata, err := json.Marshal(map[string]interface{}{
		"args":   os.Args[1:],
		"server": rt.cfg.Server.Command,
	})
	if err != nil {
		return err
	}
	rt.journal, err = stores.NewJournal(ctx, store, &stores.Session{
		ID:       uuid.NewString(),
		WorkerID: workerID,
		Device:   device,
		Metadata: string(metadata),
	}, stores.WithJournalLogger(rt.tel.Logger), stores.WithJournalBuffer(rt.cfg.Journal.Buffer))
	if err != nil {
		return err
	}
	log.WithField("session", rt.journal.SessionID()).Debug("journaling worker traffic")
	return nil
}

// Close tears down in reverse order of construction.
func (rt *runtime) Close(ctx context.Context) error {
	var errs []error
	if rt.library != nil {
		errs = append(errs, rt.library.Close())
	}
	if rt.worker != nil {
		errs = append(errs, rt.worker.Close())
	}
	if rt.conn != nil {
		errs = append(errs, rt.conn.Close())
	}
	if rt.journal != nil {
		if n := rt.journal.Dropped(); n > 0 {
			rt.tel.Logger.Warnf("journal dropped %d entries", n)
		}
		errs = append(errs, rt.journal.Close(ctx))
	}
	if rt.store != nil {
		errs = append(errs, rt.store.Close())
	}
	errs = append(errs, rt.tel.Shutdown(ctx))
	return errors.Join(errs...)
}

// loadFile reads path and loads it into the worker.
func (rt *runtime) loadFile(ctx context.Context, path string) (*client.File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	file, err := rt.worker.LoadFile(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return file, nil
}

// withRuntime loads the config, runs fn on a fresh runtime and closes it.
func withRuntime(ctx context.Context, watch bool, fn func(*runtime) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	rt, err := startRuntime(ctx, cfg, watch)
	if err != nil {
		return err
	}

	runErr := fn(rt)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return errors.Join(runErr, rt.Close(shutdownCtx))
}
