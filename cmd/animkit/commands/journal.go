package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/animkit/animkit/pkg/stores"
)

var journalPath string

func newJournalCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Browse recorded worker sessions",
		Long: `Read the SQLite journal written when journal.enabled is set. Each worker
run is a session holding every command sent and callback received, in
order.`,
	}

	cmd.PersistentFlags().StringVar(&journalPath, "db", "", "journal database (default: journal.path from config)")

	cmd.AddCommand(newJournalListCommand())
	cmd.AddCommand(newJournalShowCommand())
	cmd.AddCommand(newJournalPruneCommand())
	cmd.AddCommand(newJournalDeleteCommand())

	return cmd
}

// withStore opens the journal database, creating it if needed.
func withStore(ctx context.Context, fn func(*stores.SQLiteStore) error) error {
	path := journalPath
	if path == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		path = cfg.Journal.Path
	}

	store, err := stores.NewSQLiteStore(stores.Config{Path: path})
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Init(ctx); err != nil {
		return err
	}
	if err := store.Migrate(ctx); err != nil {
		return err
	}
	return fn(store)
}

func newJournalListCommand() *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withStore(ctx, func(store *stores.SQLiteStore) error {
				sessions, err := store.ListSessions(ctx, limit, offset)
				if err != nil {
					return err
				}

				summaries := make([]*stores.SessionSummary, 0, len(sessions))
				for _, s := range sessions {
					sum, err := store.SummarizeSession(ctx, s.ID)
					if err != nil {
						return err
					}
					summaries = append(summaries, sum)
				}

				if jsonOutput {
					return writeJSON(cmd.OutOrStdout(), summaries)
				}
				t := newTable(cmd, "SESSION", "WORKER", "STARTED", "DURATION", "COMMANDS", "CALLBACKS", "ERRORS")
				for _, sum := range summaries {
					s := sum.Session
					duration := "running"
					if s.EndedAt != nil {
						duration = s.EndedAt.Sub(s.StartedAt).Round(time.Millisecond).String()
					}
					t.row(s.ID, s.WorkerID, s.StartedAt.Local().Format(time.DateTime), duration, sum.Commands, sum.Callbacks, sum.Errors)
				}
				return t.flush()
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum sessions to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "sessions to skip")

	return cmd
}

func newJournalShowCommand() *cobra.Command {
	var (
		direction string
		typ       string
		requestID uint64
		limit     int
		payload   bool
	)

	cmd := &cobra.Command{
		Use:   "show <session>",
		Short: "Show the entries of a session",
		Example: `  # Everything a session did
  animkit journal show 6f1c...

  # Only errors reported for images
  animkit journal show 6f1c... --type image.error

  # One request and its answer
  animkit journal show 6f1c... --request 42 --payload`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter stores.EntryFilter
			switch direction {
			case "":
			case string(stores.DirectionCommand), string(stores.DirectionCallback):
				d := stores.Direction(direction)
				filter.Direction = &d
			default:
				return fmt.Errorf("--direction must be %s or %s", stores.DirectionCommand, stores.DirectionCallback)
			}
			if typ != "" {
				filter.Type = &typ
			}
			if cmd.Flags().Changed("request") {
				filter.RequestID = &requestID
			}

			ctx := cmd.Context()
			return withStore(ctx, func(store *stores.SQLiteStore) error {
				sum, err := store.SummarizeSession(ctx, args[0])
				if err != nil {
					return err
				}
				entries, err := store.ListEntries(ctx, args[0], filter, limit, 0)
				if err != nil {
					return err
				}

				if jsonOutput {
					return writeJSON(cmd.OutOrStdout(), struct {
						*stores.SessionSummary
						Entries []*stores.Entry `json:"entries"`
					}{sum, entries})
				}

				fmt.Fprintf(cmd.OutOrStdout(), "session %s (worker %s, device %s): %d commands, %d callbacks, %d errors\n\n",
					sum.Session.ID, sum.Session.WorkerID, sum.Session.Device, sum.Commands, sum.Callbacks, sum.Errors)

				header := []interface{}{"SEQ", "AT", "DIR", "TYPE", "REQUEST", "HANDLE", "DATA"}
				if payload {
					header = append(header, "PAYLOAD")
				}
				t := newTable(cmd, header...)
				for _, e := range entries {
					at := e.RecordedAt.Sub(sum.Session.StartedAt).Round(time.Microsecond)
					row := []interface{}{e.Seq, at, e.Direction, e.Type, e.RequestID, e.Handle, e.DataSize}
					if payload {
						row = append(row, e.Payload)
					}
					t.row(row...)
				}
				return t.flush()
			})
		},
	}

	cmd.Flags().StringVar(&direction, "direction", "", "only command or callback entries")
	cmd.Flags().StringVarP(&typ, "type", "t", "", "only entries of this type (e.g. file.loaded)")
	cmd.Flags().Uint64Var(&requestID, "request", 0, "only entries of this request id")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum entries (0 for all)")
	cmd.Flags().BoolVar(&payload, "payload", false, "include entry payloads")

	return cmd
}

func newJournalPruneCommand() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}
			ctx := cmd.Context()
			return withStore(ctx, func(store *stores.SQLiteStore) error {
				n, err := store.PruneSessions(ctx, time.Now().Add(-olderThan))
				if err != nil {
					return err
				}
				log.Info().Int64("sessions", n).Dur("older_than", olderThan).Msg("Pruned journal")
				return nil
			})
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 7*24*time.Hour, "delete sessions started before this long ago")

	return cmd
}

func newJournalDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <session>",
		Short: "Delete one session and its entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withStore(ctx, func(store *stores.SQLiteStore) error {
				if err := store.DeleteSession(ctx, args[0]); err != nil {
					return err
				}
				log.Info().Str("session", args[0]).Msg("Deleted session")
				return nil
			})
		},
	}
}
