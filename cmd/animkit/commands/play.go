package commands

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/animkit/animkit/pkg/client"
	"github.com/animkit/animkit/pkg/protocol"
)

type playOptions struct {
	artboard     string
	stateMachine string
	instance     string
	blank        bool
	duration     time.Duration
	fps          int
	set          map[string]string
	watch        []string
	click        []float32
}

type propertyChange struct {
	At    time.Duration `json:"at"`
	Path  string        `json:"path"`
	Value string        `json:"value"`
}

type playReport struct {
	File         string            `json:"file"`
	Artboard     string            `json:"artboard,omitempty"`
	StateMachine string            `json:"state_machine,omitempty"`
	Instance     string            `json:"instance,omitempty"`
	Frames       int               `json:"frames"`
	Advanced     time.Duration     `json:"advanced"`
	Changes      []propertyChange  `json:"changes"`
	Final        map[string]string `json:"final,omitempty"`
}

func newPlayCommand() *cobra.Command {
	opts := &playOptions{}

	cmd := &cobra.Command{
		Use:   "play <file>",
		Short: "Advance a state machine headlessly",
		Long: `Instantiate an artboard and state machine from a file, bind a view model
instance, and advance it frame by frame. Watched properties are printed
each time the engine reports a change.

Values given with --set are converted to the property's type. Triggers
are fired regardless of the value.`,
		Example: `  # Play the default artboard and state machine for one second
  animkit play scenes/player.yaml

  # Pick everything explicitly and watch a property
  animkit play scenes/player.yaml --artboard Main --state-machine Run \
    --instance One --set score=10 --set jump= --watch score --duration 2s

  # Tap the center of a 100x100 artboard
  animkit play scenes/button.yaml --click 50,50`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.fps <= 0 {
				return fmt.Errorf("--fps must be positive")
			}
			if len(opts.click) != 0 && len(opts.click) != 2 {
				return fmt.Errorf("--click takes x,y")
			}
			return withRuntime(cmd.Context(), false, func(rt *runtime) error {
				report, err := play(cmd.Context(), rt, args[0], opts)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd.OutOrStdout(), report)
				}
				return printPlayReport(cmd, report)
			})
		},
	}

	cmd.Flags().StringVarP(&opts.artboard, "artboard", "a", "", "artboard name (default artboard when empty)")
	cmd.Flags().StringVarP(&opts.stateMachine, "state-machine", "s", "", "state machine name (default state machine when empty)")
	cmd.Flags().StringVarP(&opts.instance, "instance", "i", "", "view model instance name (default instance when empty)")
	cmd.Flags().BoolVar(&opts.blank, "blank", false, "bind a blank view model instance")
	cmd.Flags().DurationVarP(&opts.duration, "duration", "d", time.Second, "total time to advance")
	cmd.Flags().IntVar(&opts.fps, "fps", 60, "frames per second")
	cmd.Flags().StringToStringVar(&opts.set, "set", nil, "set a property before playing (path=value)")
	cmd.Flags().StringSliceVarP(&opts.watch, "watch", "w", nil, "print changes of a property")
	cmd.Flags().Float32SliceVar(&opts.click, "click", nil, "pointer down and up at x,y before the first frame")

	return cmd
}

func play(ctx context.Context, rt *runtime, path string, opts *playOptions) (*playReport, error) {
	file, err := rt.loadFile(ctx, path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	artboard, err := file.CreateArtboard(ctx, opts.artboard)
	if err != nil {
		return nil, err
	}
	defer artboard.Close()

	sm, err := artboard.CreateStateMachine(ctx, opts.stateMachine)
	if err != nil {
		return nil, err
	}
	defer sm.Close()

	report := &playReport{
		File:         path,
		Artboard:     opts.artboard,
		StateMachine: opts.stateMachine,
		Changes:      []propertyChange{},
	}

	vmi, err := bindInstance(ctx, artboard, sm, opts)
	if err != nil {
		return nil, err
	}

	var (
		elapsed atomic.Int64
		mu      sync.Mutex
	)
	if vmi != nil {
		defer vmi.Close()
		if report.Instance, err = vmi.Name(ctx); err != nil {
			return nil, err
		}

		for _, p := range opts.watch {
			p := p
			current, err := vmi.Value(ctx, p, protocol.DataTypeAny)
			if err != nil {
				return nil, fmt.Errorf("watch %s: %w", p, err)
			}
			sub, err := vmi.Subscribe(p, current.Type, func(v protocol.Value) {
				mu.Lock()
				defer mu.Unlock()
				report.Changes = append(report.Changes, propertyChange{
					At:    time.Duration(elapsed.Load()),
					Path:  p,
					Value: formatValue(v),
				})
			})
			if err != nil {
				return nil, err
			}
			defer sub.Cancel()
		}

		if err := applySets(ctx, rt.worker.Dependencies(), vmi, opts.set); err != nil {
			return nil, err
		}
	}

	if len(opts.click) == 2 {
		x, y := opts.click[0], opts.click[1]
		if err := errors.Join(sm.PointerDown(x, y), sm.PointerUp(x, y)); err != nil {
			return nil, err
		}
	}

	frame := time.Second / time.Duration(opts.fps)
	for elapsed.Load() < int64(opts.duration) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := sm.Advance(frame); err != nil {
			return nil, err
		}
		elapsed.Add(int64(frame))
		report.Frames++
	}
	report.Advanced = time.Duration(elapsed.Load())

	if vmi != nil && len(opts.watch) > 0 {
		report.Final = make(map[string]string, len(opts.watch))
		for _, p := range opts.watch {
			// Reads are answered after every earlier notification.
			v, err := vmi.Value(ctx, p, protocol.DataTypeAny)
			if err != nil {
				return nil, err
			}
			report.Final[p] = formatValue(v)
		}
	}

	log.Debug().
		Str("file", path).
		Int("frames", report.Frames).
		Int("changes", len(report.Changes)).
		Msg("Played state machine")

	return report, nil
}

// bindInstance creates the instance opts ask for and binds it to sm. An
// artboard without a default view model plays unbound unless properties
// were requested.
func bindInstance(ctx context.Context, artboard *client.Artboard, sm *client.StateMachine, opts *playOptions) (*client.ViewModelInstance, error) {
	mode := protocol.InstanceDefault
	switch {
	case opts.blank:
		mode = protocol.InstanceBlank
	case opts.instance != "":
		mode = protocol.InstanceNamed
	}

	vmi, err := artboard.CreateViewModelInstance(ctx, mode, opts.instance)
	if err != nil {
		var cmdErr *client.CommandError
		if errors.As(err, &cmdErr) && mode == protocol.InstanceDefault && len(opts.set) == 0 && len(opts.watch) == 0 {
			return nil, nil
		}
		return nil, err
	}
	if err := sm.Bind(vmi); err != nil {
		_ = vmi.Close()
		return nil, err
	}
	return vmi, nil
}

func applySets(ctx context.Context, deps *client.Dependencies, vmi *client.ViewModelInstance, set map[string]string) error {
	paths := make([]string, 0, len(set))
	for p := range set {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		current, err := vmi.Value(ctx, p, protocol.DataTypeAny)
		if err != nil {
			return fmt.Errorf("set %s: %w", p, err)
		}
		if current.Type == protocol.DataTypeTrigger {
			if err := vmi.FireTrigger(p); err != nil {
				return err
			}
			continue
		}
		v, err := parseValue(current.Type, set[p])
		if err != nil {
			return fmt.Errorf("set %s: %w", p, err)
		}
		if err := deps.Instances.SetValue(vmi.Handle(), p, v); err != nil {
			return err
		}
	}
	return nil
}

// parseValue converts a command-line string to a value of type dt.
func parseValue(dt protocol.DataType, s string) (protocol.Value, error) {
	switch dt {
	case protocol.DataTypeString:
		return protocol.StringValue(s), nil
	case protocol.DataTypeEnum:
		return protocol.EnumValue(s), nil
	case protocol.DataTypeNumber:
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return protocol.Value{}, fmt.Errorf("%q is not a number", s)
		}
		return protocol.NumberValue(n), nil
	case protocol.DataTypeBoolean:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return protocol.Value{}, fmt.Errorf("%q is not a boolean", s)
		}
		return protocol.BoolValue(b), nil
	case protocol.DataTypeColor:
		c, err := parseColor(s)
		if err != nil {
			return protocol.Value{}, err
		}
		return protocol.ColorValue(c), nil
	case protocol.DataTypeTrigger:
		return protocol.TriggerValue(), nil
	default:
		return protocol.Value{}, fmt.Errorf("%s properties cannot be set from the command line", dt)
	}
}

// parseColor accepts #RRGGBB and #AARRGGBB.
func parseColor(s string) (protocol.Color, error) {
	hex := strings.TrimPrefix(s, "#")
	if len(hex) != 6 && len(hex) != 8 {
		return 0, fmt.Errorf("%q is not a #RRGGBB or #AARRGGBB color", s)
	}
	n, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("%q is not a #RRGGBB or #AARRGGBB color", s)
	}
	if len(hex) == 6 {
		n |= 0xff000000
	}
	return protocol.Color(n), nil
}

func formatValue(v protocol.Value) string {
	switch v.Type {
	case protocol.DataTypeString:
		return strconv.Quote(v.String)
	case protocol.DataTypeNumber:
		return strconv.FormatFloat(v.Number, 'g', -1, 64)
	case protocol.DataTypeBoolean:
		return strconv.FormatBool(v.Bool)
	case protocol.DataTypeColor:
		return fmt.Sprintf("#%08X", uint32(v.Color))
	case protocol.DataTypeEnum:
		return v.Enum
	case protocol.DataTypeTrigger:
		return "fired " + strconv.FormatFloat(v.Number, 'f', 0, 64)
	default:
		return string(v.Type)
	}
}

func printPlayReport(cmd *cobra.Command, r *playReport) error {
	out := cmd.OutOrStdout()
	for _, c := range r.Changes {
		fmt.Fprintf(out, "%8.3fs  %s = %s\n", c.At.Seconds(), c.Path, c.Value)
	}
	fmt.Fprintf(out, "played %d frames (%v)", r.Frames, r.Advanced)
	if r.Instance != "" {
		fmt.Fprintf(out, " bound to %q", r.Instance)
	}
	fmt.Fprintln(out)

	if len(r.Final) > 0 {
		t := newTable(cmd)
		for _, p := range sortedKeys(r.Final) {
			t.row("  "+p, r.Final[p])
		}
		return t.flush()
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
