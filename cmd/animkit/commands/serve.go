package commands

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/animkit/animkit/pkg/engine"
	"github.com/animkit/animkit/pkg/telemetry"
)

func newServeCommand() *cobra.Command {
	var statsInterval time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a long-lived worker",
		Long: `Start a worker and keep it running until interrupted.

While serving, the asset directory is followed when assets.watch is set,
metrics are exposed on telemetry.metrics.listen_address, and every command
and callback is journaled when journal.enabled is set.`,
		Example: `  # Serve with a config file
  animkit serve --config animkit.yaml

  # Log engine object counts every ten seconds
  animkit serve -c animkit.yaml --stats-interval 10s`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withRuntime(ctx, true, func(rt *runtime) error {
				metricsErr := rt.tel.StartMetricsServer()
				rt.tel.Events.Subscribe(func(e telemetry.Event) {
					log.Debug().
						Str("type", e.Type).
						Str("kind", e.Kind).
						Uint64("handle", e.Handle).
						Str("name", e.Name).
						Msg(e.Message)
				}, telemetry.FilterByWorker(rt.worker.ID()))

				event := log.Info().
					Str("worker_id", rt.worker.ID()).
					Str("assets", rt.cfg.Assets.Dir)
				if rt.library != nil {
					event = event.Int("global_assets", len(rt.library.Assets()))
				}
				if rt.journal != nil {
					event = event.Str("journal_session", rt.journal.SessionID())
				}
				event.Msg("Worker serving")

				var tick <-chan time.Time
				if statsInterval > 0 {
					ticker := time.NewTicker(statsInterval)
					defer ticker.Stop()
					tick = ticker.C
				}

				for {
					select {
					case <-ctx.Done():
						log.Info().Msg("Shutting down worker")
						return nil
					case err, ok := <-metricsErr:
						if ok && err != nil {
							return err
						}
						metricsErr = nil
					case <-tick:
						logStats(rt)
					}
				}
			})
		},
	}

	cmd.Flags().DurationVar(&statsInterval, "stats-interval", 0, "log engine object counts at this interval")

	return cmd
}

func logStats(rt *runtime) {
	mem, ok := rt.worker.Engine().(*engine.Memory)
	if !ok {
		return
	}
	st := mem.Stats()
	event := log.Info().
		Int("files", st.Files).
		Int("artboards", st.Artboards).
		Int("state_machines", st.StateMachines).
		Int("instances", st.Instances).
		Int("images", st.Images).
		Int("fonts", st.Fonts).
		Int("audio", st.Audio).
		Int("global_assets", st.GlobalAssets)
	if rt.journal != nil {
		event = event.Uint64("journal_dropped", rt.journal.Dropped())
	}
	event.Msg("Engine stats")
}
