package engine

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/animkit/animkit/pkg/protocol"
)

// Scene is the document a file handle is loaded from.
type Scene struct {
	Artboards  []ArtboardDoc  `yaml:"artboards" validate:"required,min=1,dive"`
	ViewModels []ViewModelDoc `yaml:"viewModels" validate:"dive"`
	Enums      []EnumDoc      `yaml:"enums" validate:"dive"`
}

// ArtboardDoc describes one artboard.
type ArtboardDoc struct {
	Name          string   `yaml:"name" validate:"required"`
	Width         float32  `yaml:"width" validate:"gt=0"`
	Height        float32  `yaml:"height" validate:"gt=0"`
	StateMachines []string `yaml:"stateMachines" validate:"dive,required"`
	ViewModel     string   `yaml:"viewModel"`
}

// ViewModelDoc describes a view model and its named instances.
type ViewModelDoc struct {
	Name       string        `yaml:"name" validate:"required"`
	Properties []PropertyDoc `yaml:"properties" validate:"dive"`
	Instances  []InstanceDoc `yaml:"instances" validate:"dive"`
}

// PropertyDoc describes one view model property. Enum names the enum of an
// enum property; ViewModel names the view model of a viewModel or list
// property.
type PropertyDoc struct {
	Name      string            `yaml:"name" validate:"required,excludes=/"`
	Type      protocol.DataType `yaml:"type" validate:"required,oneof=string number boolean color list enum trigger viewModel assetImage artboard"`
	Enum      string            `yaml:"enum" validate:"required_if=Type enum"`
	ViewModel string            `yaml:"viewModel" validate:"required_if=Type viewModel,required_if=Type list"`
}

// InstanceDoc is a named instance with initial scalar values.
type InstanceDoc struct {
	Name   string                 `yaml:"name" validate:"required"`
	Values map[string]interface{} `yaml:"values"`
}

// EnumDoc is a named list of enum values.
type EnumDoc struct {
	Name   string   `yaml:"name" validate:"required"`
	Values []string `yaml:"values" validate:"required,min=1,dive,required"`
}

var sceneValidator = validator.New()

// ParseScene decodes and validates a scene document.
func ParseScene(data []byte) (*Scene, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var scene Scene
	if err := dec.Decode(&scene); err != nil {
		if errors.Is(err, io.EOF) {
			err = errors.New("empty document")
		}
		return nil, sceneError("failed to parse scene", err)
	}

	if err := sceneValidator.Struct(&scene); err != nil {
		return nil, sceneError("scene validation failed", err)
	}

	if err := scene.check(); err != nil {
		return nil, sceneError("scene validation failed", err)
	}

	return &scene, nil
}

func sceneError(message string, err error) *EngineError {
	return NewDecodeError(protocol.KindFile, err).WithCode(ErrCodeInvalidScene).withMessage(message)
}

func (e *EngineError) withMessage(message string) *EngineError {
	e.Message = message
	return e
}

// check verifies cross references the struct tags cannot express.
func (s *Scene) check() error {
	if err := unique("artboard", len(s.Artboards), func(i int) string { return s.Artboards[i].Name }); err != nil {
		return err
	}
	if err := unique("view model", len(s.ViewModels), func(i int) string { return s.ViewModels[i].Name }); err != nil {
		return err
	}
	if err := unique("enum", len(s.Enums), func(i int) string { return s.Enums[i].Name }); err != nil {
		return err
	}

	for _, ab := range s.Artboards {
		if ab.ViewModel != "" && s.viewModel(ab.ViewModel) == nil {
			return fmt.Errorf("artboard %q: unknown view model %q", ab.Name, ab.ViewModel)
		}
		if err := unique("state machine", len(ab.StateMachines), func(i int) string { return ab.StateMachines[i] }); err != nil {
			return fmt.Errorf("artboard %q: %w", ab.Name, err)
		}
	}

	for _, vm := range s.ViewModels {
		if err := unique("property", len(vm.Properties), func(i int) string { return vm.Properties[i].Name }); err != nil {
			return fmt.Errorf("view model %q: %w", vm.Name, err)
		}
		if err := unique("instance", len(vm.Instances), func(i int) string { return vm.Instances[i].Name }); err != nil {
			return fmt.Errorf("view model %q: %w", vm.Name, err)
		}
		for _, p := range vm.Properties {
			switch p.Type {
			case protocol.DataTypeEnum:
				if s.enum(p.Enum) == nil {
					return fmt.Errorf("view model %q: property %q: unknown enum %q", vm.Name, p.Name, p.Enum)
				}
			case protocol.DataTypeViewModel, protocol.DataTypeList:
				if s.viewModel(p.ViewModel) == nil {
					return fmt.Errorf("view model %q: property %q: unknown view model %q", vm.Name, p.Name, p.ViewModel)
				}
			}
		}
		for _, inst := range vm.Instances {
			for key, raw := range inst.Values {
				p := vm.property(key)
				if p == nil {
					return fmt.Errorf("view model %q: instance %q: unknown property %q", vm.Name, inst.Name, key)
				}
				if _, err := s.convert(p, raw); err != nil {
					return fmt.Errorf("view model %q: instance %q: %w", vm.Name, inst.Name, err)
				}
			}
		}
	}

	return nil
}

func unique(what string, n int, name func(int) string) error {
	seen := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		if seen[name(i)] {
			return fmt.Errorf("duplicate %s %q", what, name(i))
		}
		seen[name(i)] = true
	}
	return nil
}

func (s *Scene) artboard(name string) *ArtboardDoc {
	for i := range s.Artboards {
		if s.Artboards[i].Name == name {
			return &s.Artboards[i]
		}
	}
	return nil
}

func (s *Scene) viewModel(name string) *ViewModelDoc {
	for i := range s.ViewModels {
		if s.ViewModels[i].Name == name {
			return &s.ViewModels[i]
		}
	}
	return nil
}

func (s *Scene) enum(name string) *EnumDoc {
	for i := range s.Enums {
		if s.Enums[i].Name == name {
			return &s.Enums[i]
		}
	}
	return nil
}

func (vm *ViewModelDoc) property(name string) *PropertyDoc {
	for i := range vm.Properties {
		if vm.Properties[i].Name == name {
			return &vm.Properties[i]
		}
	}
	return nil
}

func (vm *ViewModelDoc) instance(name string) *InstanceDoc {
	for i := range vm.Instances {
		if vm.Instances[i].Name == name {
			return &vm.Instances[i]
		}
	}
	return nil
}

// zero returns the initial value of a scalar property.
func (s *Scene) zero(p *PropertyDoc) protocol.Value {
	switch p.Type {
	case protocol.DataTypeEnum:
		if e := s.enum(p.Enum); e != nil && len(e.Values) > 0 {
			return protocol.EnumValue(e.Values[0])
		}
		return protocol.Value{Type: protocol.DataTypeEnum}
	default:
		return protocol.Value{Type: p.Type}
	}
}

// convert turns a YAML value into a typed value for p.
func (s *Scene) convert(p *PropertyDoc, raw interface{}) (protocol.Value, error) {
	mismatch := func() (protocol.Value, error) {
		return protocol.Value{}, fmt.Errorf("property %q: %v is not a %s", p.Name, raw, p.Type)
	}

	switch p.Type {
	case protocol.DataTypeString:
		v, ok := raw.(string)
		if !ok {
			return mismatch()
		}
		return protocol.StringValue(v), nil

	case protocol.DataTypeNumber:
		switch v := raw.(type) {
		case int:
			return protocol.NumberValue(float64(v)), nil
		case float64:
			return protocol.NumberValue(v), nil
		}
		return mismatch()

	case protocol.DataTypeBoolean:
		v, ok := raw.(bool)
		if !ok {
			return mismatch()
		}
		return protocol.BoolValue(v), nil

	case protocol.DataTypeColor:
		switch v := raw.(type) {
		case int:
			return protocol.ColorValue(protocol.Color(uint32(v))), nil
		case string:
			c, err := ParseColor(v)
			if err != nil {
				return protocol.Value{}, fmt.Errorf("property %q: %w", p.Name, err)
			}
			return protocol.ColorValue(c), nil
		}
		return mismatch()

	case protocol.DataTypeEnum:
		v, ok := raw.(string)
		if !ok {
			return mismatch()
		}
		e := s.enum(p.Enum)
		for _, allowed := range e.Values {
			if allowed == v {
				return protocol.EnumValue(v), nil
			}
		}
		return protocol.Value{}, fmt.Errorf("property %q: %q is not a value of enum %q", p.Name, v, p.Enum)
	}

	return protocol.Value{}, fmt.Errorf("property %q: %s properties have no initial value", p.Name, p.Type)
}

// ParseColor parses "#AARRGGBB" or "#RRGGBB" (opaque).
func ParseColor(s string) (protocol.Color, error) {
	hex := strings.TrimPrefix(s, "#")
	switch len(hex) {
	case 6:
		hex = "FF" + hex
	case 8:
	default:
		return 0, fmt.Errorf("invalid color %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid color %q", s)
	}
	return protocol.Color(v), nil
}
