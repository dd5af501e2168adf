package scenario

import (
	"errors"
	"fmt"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/animkit/animkit/pkg/protocol"
)

var errOpaque = errors.New("opaque value")

// toStarlarkValue converts a Go value to a Starlark value.
func toStarlarkValue(v interface{}) (starlark.Value, error) {
	if v == nil {
		return starlark.None, nil
	}

	switch val := v.(type) {
	case bool:
		return starlark.Bool(val), nil
	case int:
		return starlark.MakeInt(val), nil
	case int64:
		return starlark.MakeInt64(val), nil
	case float64:
		return starlark.Float(val), nil
	case string:
		return starlark.String(val), nil
	case []string:
		list := make([]starlark.Value, len(val))
		for i, s := range val {
			list[i] = starlark.String(s)
		}
		return starlark.NewList(list), nil
	case []interface{}:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			starlarkItem, err := toStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			list[i] = starlarkItem
		}
		return starlark.NewList(list), nil
	case map[string]interface{}:
		dict := starlark.NewDict(len(val))
		for k, v := range val {
			starlarkVal, err := toStarlarkValue(v)
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(starlark.String(k), starlarkVal); err != nil {
				return nil, err
			}
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// fromStarlarkValue converts a Starlark value to a Go value. Engine objects
// and functions report errOpaque.
func fromStarlarkValue(v starlark.Value) (interface{}, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(val), nil
	case starlark.Int:
		i, ok := val.Int64()
		if !ok {
			return nil, fmt.Errorf("integer too large")
		}
		return i, nil
	case starlark.Float:
		return float64(val), nil
	case starlark.String:
		return string(val), nil
	case *starlark.List:
		list := make([]interface{}, val.Len())
		for i := 0; i < val.Len(); i++ {
			item, err := fromStarlarkValue(val.Index(i))
			if err != nil {
				return nil, err
			}
			list[i] = item
		}
		return list, nil
	case starlark.Tuple:
		list := make([]interface{}, len(val))
		for i, item := range val {
			goItem, err := fromStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			list[i] = goItem
		}
		return list, nil
	case *starlark.Dict:
		dict := make(map[string]interface{})
		for _, item := range val.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("dict key must be string")
			}
			value, err := fromStarlarkValue(item[1])
			if err != nil {
				return nil, err
			}
			dict[string(key)] = value
		}
		return dict, nil
	case *starlarkstruct.Struct:
		dict := make(map[string]interface{})
		for _, name := range val.AttrNames() {
			attr, err := val.Attr(name)
			if err != nil {
				continue
			}
			value, err := fromStarlarkValue(attr)
			if err != nil {
				return nil, err
			}
			dict[name] = value
		}
		return dict, nil
	case *object, *starlark.Function, *starlark.Builtin:
		return nil, errOpaque
	default:
		return nil, fmt.Errorf("unsupported starlark type: %s", v.Type())
	}
}

// fromValue converts a view model value to Starlark.
func fromValue(v protocol.Value) starlark.Value {
	switch v.Type {
	case protocol.DataTypeString:
		return starlark.String(v.String)
	case protocol.DataTypeNumber:
		return starlark.Float(v.Number)
	case protocol.DataTypeBoolean:
		return starlark.Bool(v.Bool)
	case protocol.DataTypeColor:
		return starlark.MakeUint64(uint64(v.Color))
	case protocol.DataTypeEnum:
		return starlark.String(v.Enum)
	case protocol.DataTypeTrigger:
		return starlark.MakeInt64(int64(v.Number))
	}
	return starlark.None
}

// toValue converts a Starlark value to a view model value of type dt.
func toValue(dt protocol.DataType, v starlark.Value) (protocol.Value, error) {
	mismatch := fmt.Errorf("cannot assign %s to a %s property", v.Type(), dt)
	switch dt {
	case protocol.DataTypeString:
		s, ok := starlark.AsString(v)
		if !ok {
			return protocol.Value{}, mismatch
		}
		return protocol.StringValue(s), nil
	case protocol.DataTypeEnum:
		s, ok := starlark.AsString(v)
		if !ok {
			return protocol.Value{}, mismatch
		}
		return protocol.EnumValue(s), nil
	case protocol.DataTypeNumber:
		f, ok := starlark.AsFloat(v)
		if !ok {
			return protocol.Value{}, mismatch
		}
		return protocol.NumberValue(f), nil
	case protocol.DataTypeBoolean:
		b, ok := v.(starlark.Bool)
		if !ok {
			return protocol.Value{}, mismatch
		}
		return protocol.BoolValue(bool(b)), nil
	case protocol.DataTypeColor:
		var c uint32
		if err := starlark.AsInt(v, &c); err != nil {
			return protocol.Value{}, mismatch
		}
		return protocol.ColorValue(protocol.Color(c)), nil
	}
	return protocol.Value{}, fmt.Errorf("%s properties cannot be set", dt)
}
