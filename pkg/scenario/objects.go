package scenario

import (
	"fmt"
	"sort"
	"time"

	"go.starlark.net/starlark"

	"github.com/animkit/animkit/pkg/client"
	"github.com/animkit/animkit/pkg/protocol"
)

type builtinFunc func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error)

// object exposes an engine resource to scripts as a value with methods.
type object struct {
	kind    string
	handle  protocol.Handle
	methods map[string]*starlark.Builtin
	value   interface{}
}

var _ starlark.HasAttrs = (*object)(nil)

func newObject(kind string, handle protocol.Handle, value interface{}, methods map[string]builtinFunc) *object {
	o := &object{kind: kind, handle: handle, value: value, methods: make(map[string]*starlark.Builtin, len(methods))}
	for name, fn := range methods {
		o.methods[name] = starlark.NewBuiltin(name, fn).BindReceiver(o)
	}
	return o
}

func (o *object) String() string        { return fmt.Sprintf("<%s %d>", o.kind, o.handle) }
func (o *object) Type() string          { return o.kind }
func (o *object) Freeze()               {}
func (o *object) Truth() starlark.Bool  { return starlark.True }
func (o *object) Hash() (uint32, error) { return uint32(o.handle), nil }

func (o *object) Attr(name string) (starlark.Value, error) {
	if name == "handle" {
		return starlark.MakeUint64(uint64(o.handle)), nil
	}
	if m, ok := o.methods[name]; ok {
		return m, nil
	}
	return nil, nil
}

func (o *object) AttrNames() []string {
	names := make([]string, 0, len(o.methods)+1)
	names = append(names, "handle")
	for name := range o.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func stringList(names []string, err error) (starlark.Value, error) {
	if err != nil {
		return nil, err
	}
	return toStarlarkValue(names)
}

func (s *session) fileObject(f *client.File) *object {
	return newObject("file", f.Handle(), f, map[string]builtinFunc{
		"artboard_names": func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
				return nil, err
			}
			return stringList(f.ArtboardNames(s.ctx))
		},
		"view_model_names": func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
				return nil, err
			}
			return stringList(f.ViewModelNames(s.ctx))
		},
		"instance_names": func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var vm string
			if err := starlark.UnpackArgs(b.Name(), args, kwargs, "view_model", &vm); err != nil {
				return nil, err
			}
			return stringList(f.ViewModelInstanceNames(s.ctx, vm))
		},
		"artboard": func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			name := ""
			if err := starlark.UnpackArgs(b.Name(), args, kwargs, "name?", &name); err != nil {
				return nil, err
			}
			a, err := f.CreateArtboard(s.ctx, name)
			if err != nil {
				return nil, err
			}
			s.own(a)
			return s.artboardObject(a), nil
		},
		"instance": func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var vm string
			mode, name := string(protocol.InstanceDefault), ""
			if err := starlark.UnpackArgs(b.Name(), args, kwargs, "view_model", &vm, "mode?", &mode, "name?", &name); err != nil {
				return nil, err
			}
			src := protocol.InstanceSource{Mode: protocol.InstanceMode(mode), ViewModel: vm, Instance: name}
			inst, err := f.CreateViewModelInstance(s.ctx, src)
			if err != nil {
				return nil, err
			}
			s.own(inst)
			return s.instanceObject(inst), nil
		},
	})
}

func (s *session) artboardObject(a *client.Artboard) *object {
	return newObject("artboard", a.Handle(), a, map[string]builtinFunc{
		"state_machine_names": func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
				return nil, err
			}
			return stringList(a.StateMachineNames(s.ctx))
		},
		"set_size": func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var w, h float64
			scale := 1.0
			if err := starlark.UnpackArgs(b.Name(), args, kwargs, "width", &w, "height", &h, "scale?", &scale); err != nil {
				return nil, err
			}
			return starlark.None, a.SetSize(float32(w), float32(h), float32(scale))
		},
		"reset_size": func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
				return nil, err
			}
			return starlark.None, a.ResetSize()
		},
		"state_machine": func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			name := ""
			if err := starlark.UnpackArgs(b.Name(), args, kwargs, "name?", &name); err != nil {
				return nil, err
			}
			sm, err := a.CreateStateMachine(s.ctx, name)
			if err != nil {
				return nil, err
			}
			s.own(sm)
			return s.stateMachineObject(sm), nil
		},
		"instance": func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			mode, name := string(protocol.InstanceDefault), ""
			if err := starlark.UnpackArgs(b.Name(), args, kwargs, "mode?", &mode, "name?", &name); err != nil {
				return nil, err
			}
			inst, err := a.CreateViewModelInstance(s.ctx, protocol.InstanceMode(mode), name)
			if err != nil {
				return nil, err
			}
			s.own(inst)
			return s.instanceObject(inst), nil
		},
	})
}

func (s *session) stateMachineObject(sm *client.StateMachine) *object {
	pointer := func(fn func(x, y float32) error) builtinFunc {
		return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var x, y float64
			if err := starlark.UnpackArgs(b.Name(), args, kwargs, "x", &x, "y", &y); err != nil {
				return nil, err
			}
			return starlark.None, fn(float32(x), float32(y))
		}
	}
	return newObject("state_machine", sm.Handle(), sm, map[string]builtinFunc{
		"advance": func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var seconds float64
			if err := starlark.UnpackArgs(b.Name(), args, kwargs, "seconds", &seconds); err != nil {
				return nil, err
			}
			s.advanced += seconds
			return starlark.None, sm.Advance(time.Duration(seconds * float64(time.Second)))
		},
		"bind": func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var target *object
			if err := starlark.UnpackArgs(b.Name(), args, kwargs, "instance", &target); err != nil {
				return nil, err
			}
			inst, ok := target.value.(*client.ViewModelInstance)
			if !ok {
				return nil, fmt.Errorf("%s: expected a view model instance, got %s", b.Name(), target.kind)
			}
			return starlark.None, sm.Bind(inst)
		},
		"pointer_down": pointer(sm.PointerDown),
		"pointer_move": pointer(sm.PointerMove),
		"pointer_up":   pointer(sm.PointerUp),
		"pointer_exit": pointer(sm.PointerExit),
	})
}

func (s *session) instanceObject(inst *client.ViewModelInstance) *object {
	return newObject("view_model_instance", inst.Handle(), inst, map[string]builtinFunc{
		"name": func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
				return nil, err
			}
			name, err := inst.Name(s.ctx)
			if err != nil {
				return nil, err
			}
			return starlark.String(name), nil
		},
		"get": func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var path string
			if err := starlark.UnpackArgs(b.Name(), args, kwargs, "path", &path); err != nil {
				return nil, err
			}
			v, err := inst.Value(s.ctx, path, protocol.DataTypeAny)
			if err != nil {
				return nil, err
			}
			return fromValue(v), nil
		},
		"set": func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var (
				path  string
				value starlark.Value
			)
			if err := starlark.UnpackArgs(b.Name(), args, kwargs, "path", &path, "value", &value); err != nil {
				return nil, err
			}
			current, err := inst.Value(s.ctx, path, protocol.DataTypeAny)
			if err != nil {
				return nil, err
			}
			v, err := toValue(current.Type, value)
			if err != nil {
				return nil, fmt.Errorf("%s %q: %w", b.Name(), path, err)
			}
			return starlark.None, s.deps.Instances.SetValue(inst.Handle(), path, v)
		},
		"fire": func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var path string
			if err := starlark.UnpackArgs(b.Name(), args, kwargs, "path", &path); err != nil {
				return nil, err
			}
			return starlark.None, inst.FireTrigger(path)
		},
		"list_size": func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var path string
			if err := starlark.UnpackArgs(b.Name(), args, kwargs, "path", &path); err != nil {
				return nil, err
			}
			n, err := inst.ListSize(s.ctx, path)
			if err != nil {
				return nil, err
			}
			return starlark.MakeInt(n), nil
		},
		"set_image": func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var (
				path   string
				target starlark.Value
			)
			if err := starlark.UnpackArgs(b.Name(), args, kwargs, "path", &path, "image", &target); err != nil {
				return nil, err
			}
			if target == starlark.None {
				return starlark.None, inst.SetImage(path, nil)
			}
			img, ok := asObject[*client.Image](target)
			if !ok {
				return nil, fmt.Errorf("%s: expected an image, got %s", b.Name(), target.Type())
			}
			return starlark.None, inst.SetImage(path, img)
		},
	})
}

func (s *session) assetObject(kind string, h protocol.Handle, asset interface{}) *object {
	return newObject(kind, h, asset, map[string]builtinFunc{
		"register": func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var name string
			if err := starlark.UnpackArgs(b.Name(), args, kwargs, "name", &name); err != nil {
				return nil, err
			}
			var err error
			switch a := asset.(type) {
			case *client.Image:
				err = s.worker.AddGlobalImageAsset(a, name)
			case *client.Font:
				err = s.worker.AddGlobalFontAsset(a, name)
			case *client.Audio:
				err = s.worker.AddGlobalAudioAsset(a, name)
			}
			return starlark.None, err
		},
	})
}

func asObject[T any](v starlark.Value) (T, bool) {
	var zero T
	o, ok := v.(*object)
	if !ok {
		return zero, false
	}
	t, ok := o.value.(T)
	return t, ok
}
