package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	verbose    bool
	jsonOutput bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "animkit",
		Short: "animkit - drive interactive animation files from a worker",
		Long: `animkit loads interactive animation files into a worker and drives them
through the same asynchronous command API an application uses.

Features:
  - Inspect artboards, state machines and view models of a file
  - Play a state machine headlessly and watch view model properties
  - Script scenarios in Starlark
  - Keep global image, font and audio assets in sync with a directory
  - Journal every command and callback to SQLite`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newInspectCommand())
	rootCmd.AddCommand(newPlayCommand())
	rootCmd.AddCommand(newScriptCommand())
	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newJournalCommand())

	return rootCmd
}
