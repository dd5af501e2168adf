package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/animkit/animkit/pkg/scenario"
)

func newScriptCommand() *cobra.Command {
	var (
		root    string
		inputs  map[string]string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "script <script.star>",
		Short: "Run a Starlark scenario against a worker",
		Long: `Run a Starlark script that loads files and assets, creates artboards,
state machines and view model instances, and drives them.

Paths passed to load_file and decode_* are resolved under --root, which
defaults to the script's directory. Inputs are predeclared globals; their
values are parsed as YAML scalars, so --input count=3 is an int.
Plain values left in the script's globals are reported as its output.`,
		Example: `  # Run a scenario
  animkit script scenarios/jump.star

  # Pass inputs and read files from another directory
  animkit script jump.star --root ./scenes --input player=One --input jumps=3`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			src, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read script: %w", err)
			}
			if root == "" {
				root = filepath.Dir(path)
			}

			input := make(map[string]interface{}, len(inputs))
			for k, raw := range inputs {
				var v interface{}
				if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
					return fmt.Errorf("input %s: %w", k, err)
				}
				input[k] = v
			}

			return withRuntime(cmd.Context(), false, func(rt *runtime) error {
				opts := []scenario.Option{
					scenario.WithTimeout(rt.cfg.Scenario.Timeout),
					scenario.WithLogger(rt.tel.Logger),
				}
				if timeout > 0 {
					opts = append(opts, scenario.WithTimeout(timeout))
				}
				runner := scenario.NewRunner(rt.worker, os.DirFS(root), opts...)

				log.Debug().Str("script", path).Str("root", root).Msg("Running script")
				result, runErr := runner.Run(cmd.Context(), filepath.Base(path), string(src), input)

				if jsonOutput {
					if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
						return err
					}
					return runErr
				}
				printResult(cmd, result)
				return runErr
			})
		},
	}

	cmd.Flags().StringVar(&root, "root", "", "directory scripts read files from")
	cmd.Flags().StringToStringVarP(&inputs, "input", "i", nil, "predeclared input (name=value)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "override scenario.timeout")

	return cmd
}

func printResult(cmd *cobra.Command, r *scenario.Result) {
	out := cmd.OutOrStdout()
	for _, line := range r.Printed {
		fmt.Fprintln(out, line)
	}

	keys := make([]string, 0, len(r.Output))
	for k := range r.Output {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) > 0 {
		t := newTable(cmd)
		for _, k := range keys {
			t.row(k, "=", fmt.Sprintf("%v", r.Output[k]))
		}
		_ = t.flush()
	}

	log.Info().
		Dur("advanced", r.Advanced).
		Dur("execution_time", r.ExecutionTime).
		Int("outputs", len(keys)).
		Msg("Script finished")
}
