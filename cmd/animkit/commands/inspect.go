package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/animkit/animkit/pkg/client"
	"github.com/animkit/animkit/pkg/protocol"
)

type fileReport struct {
	Path       string              `json:"path"`
	Artboards  []artboardReport    `json:"artboards"`
	ViewModels []viewModelReport   `json:"view_models"`
	Enums      []protocol.EnumInfo `json:"enums"`
}

type artboardReport struct {
	Name          string   `json:"name"`
	StateMachines []string `json:"state_machines"`
	ViewModel     string   `json:"view_model,omitempty"`
	Instance      string   `json:"instance,omitempty"`
}

type viewModelReport struct {
	Name       string                  `json:"name"`
	Properties []protocol.PropertyInfo `json:"properties"`
	Instances  []string                `json:"instances"`
}

func newInspectCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <file>",
		Short: "List the contents of an animation file",
		Long: `Load a file into a worker and list its artboards, state machines,
view models, view model instances and enums.`,
		Example: `  # Summarize a file
  animkit inspect scenes/player.yaml

  # Machine-readable output
  animkit inspect scenes/player.yaml --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), false, func(rt *runtime) error {
				report, err := inspectFile(cmd.Context(), rt, args[0])
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd.OutOrStdout(), report)
				}
				return printReport(cmd, report)
			})
		},
	}
	return cmd
}

func inspectFile(ctx context.Context, rt *runtime, path string) (*fileReport, error) {
	file, err := rt.loadFile(ctx, path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	report := &fileReport{Path: path}

	artboards, err := file.ArtboardNames(ctx)
	if err != nil {
		return nil, err
	}
	for _, name := range artboards {
		ab, err := inspectArtboard(ctx, file, name)
		if err != nil {
			return nil, err
		}
		report.Artboards = append(report.Artboards, ab)
	}

	viewModels, err := file.ViewModelNames(ctx)
	if err != nil {
		return nil, err
	}
	for _, name := range viewModels {
		vm := viewModelReport{Name: name}
		if vm.Properties, err = file.ViewModelProperties(ctx, name); err != nil {
			return nil, err
		}
		if vm.Instances, err = file.ViewModelInstanceNames(ctx, name); err != nil {
			return nil, err
		}
		report.ViewModels = append(report.ViewModels, vm)
	}

	if report.Enums, err = file.ViewModelEnums(ctx); err != nil {
		return nil, err
	}

	log.Debug().
		Str("file", path).
		Int("artboards", len(report.Artboards)).
		Int("view_models", len(report.ViewModels)).
		Msg("Inspected file")
	return report, nil
}

func inspectArtboard(ctx context.Context, file *client.File, name string) (artboardReport, error) {
	report := artboardReport{Name: name}

	ab, err := file.CreateArtboard(ctx, name)
	if err != nil {
		return report, err
	}
	defer ab.Close()

	if report.StateMachines, err = ab.StateMachineNames(ctx); err != nil {
		return report, err
	}

	info, err := ab.DefaultViewModelInfo(ctx)
	var cmdErr *client.CommandError
	switch {
	case err == nil:
		report.ViewModel, report.Instance = info.ViewModel, info.Instance
	case errors.As(err, &cmdErr):
		// no default view model
	default:
		return report, err
	}
	return report, nil
}

func printReport(cmd *cobra.Command, r *fileReport) error {
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "%s\n\nArtboards:\n", r.Path)
	t := newTable(cmd, "  NAME", "STATE MACHINES", "VIEW MODEL", "INSTANCE")
	for _, ab := range r.Artboards {
		t.row("  "+ab.Name, orDash(strings.Join(ab.StateMachines, ", ")), orDash(ab.ViewModel), orDash(ab.Instance))
	}
	if err := t.flush(); err != nil {
		return err
	}

	for _, vm := range r.ViewModels {
		fmt.Fprintf(out, "\nView model %s (instances: %s):\n", vm.Name, orDash(strings.Join(vm.Instances, ", ")))
		t := newTable(cmd)
		for _, p := range vm.Properties {
			t.row("  "+p.Name, p.Type)
		}
		if err := t.flush(); err != nil {
			return err
		}
	}

	if len(r.Enums) > 0 {
		fmt.Fprintln(out, "\nEnums:")
		for _, e := range r.Enums {
			fmt.Fprintf(out, "  %s: %s\n", e.Name, strings.Join(e.Values, ", "))
		}
	}
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
