package protocol

import "fmt"

// DataType is the type of a view model property.
type DataType string

const (
	DataTypeNone            DataType = "none"
	DataTypeString          DataType = "string"
	DataTypeNumber          DataType = "number"
	DataTypeBoolean         DataType = "boolean"
	DataTypeColor           DataType = "color"
	DataTypeList            DataType = "list"
	DataTypeEnum            DataType = "enum"
	DataTypeTrigger         DataType = "trigger"
	DataTypeViewModel       DataType = "viewModel"
	DataTypeInteger         DataType = "integer"
	DataTypeSymbolListIndex DataType = "symbolListIndex"
	DataTypeAssetImage      DataType = "assetImage"
	DataTypeArtboard        DataType = "artboard"
	DataTypeInput           DataType = "input"
	DataTypeAny             DataType = "any"
)

// Validate checks if the data type is known.
func (dt DataType) Validate() error {
	switch dt {
	case DataTypeNone, DataTypeString, DataTypeNumber, DataTypeBoolean,
		DataTypeColor, DataTypeList, DataTypeEnum, DataTypeTrigger,
		DataTypeViewModel, DataTypeInteger, DataTypeSymbolListIndex,
		DataTypeAssetImage, DataTypeArtboard, DataTypeInput, DataTypeAny:
		return nil
	default:
		return fmt.Errorf("invalid data type: %s", dt)
	}
}

// Scalar reports whether values of the type can be read and written directly.
func (dt DataType) Scalar() bool {
	switch dt {
	case DataTypeString, DataTypeNumber, DataTypeBoolean, DataTypeColor, DataTypeEnum:
		return true
	}
	return false
}

// Color is a 32-bit ARGB color.
type Color uint32

// NewColor packs 8-bit channels into a Color.
func NewColor(a, r, g, b uint8) Color {
	return Color(uint32(a)<<24 | uint32(r)<<16 | uint32(g)<<8 | uint32(b))
}

func (c Color) A() uint8 { return uint8(c >> 24) }
func (c Color) R() uint8 { return uint8(c >> 16) }
func (c Color) G() uint8 { return uint8(c >> 8) }
func (c Color) B() uint8 { return uint8(c) }

// String formats the color as #AARRGGBB.
func (c Color) String() string {
	return fmt.Sprintf("#%08X", uint32(c))
}

// Value is a typed view model property value.
type Value struct {
	Type   DataType `json:"type"`
	String string   `json:"string,omitempty"`
	Number float64  `json:"number,omitempty"`
	Bool   bool     `json:"bool,omitempty"`
	Color  Color    `json:"color,omitempty"`
	Enum   string   `json:"enum,omitempty"`
}

func StringValue(s string) Value { return Value{Type: DataTypeString, String: s} }
func NumberValue(n float64) Value { return Value{Type: DataTypeNumber, Number: n} }
func BoolValue(b bool) Value { return Value{Type: DataTypeBoolean, Bool: b} }
func ColorValue(c Color) Value { return Value{Type: DataTypeColor, Color: c} }
func EnumValue(e string) Value { return Value{Type: DataTypeEnum, Enum: e} }
func TriggerValue() Value { return Value{Type: DataTypeTrigger} }

// PropertyInfo describes one property of a view model.
type PropertyInfo struct {
	Name string   `json:"name"`
	Type DataType `json:"type"`
}

// EnumInfo describes an enum declared by a file.
type EnumInfo struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}
