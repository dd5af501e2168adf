package protocol

import "testing"

func TestCommandKinds(t *testing.T) {
	tests := []struct {
		cmd  CommandType
		want Kind
	}{
		{CommandLoadFile, KindFile},
		{CommandCreateArtboard, KindArtboard},
		{CommandAdvanceStateMachine, KindStateMachine},
		{CommandDecodeImage, KindImage},
		{CommandDeleteFont, KindFont},
		{CommandDecodeAudio, KindAudio},
		{CommandSubscribe, KindViewModelInstance},
		{CommandAddGlobalAsset, KindWorker},
	}

	for _, tt := range tests {
		t.Run(string(tt.cmd), func(t *testing.T) {
			if got := tt.cmd.Kind(); got != tt.want {
				t.Errorf("Kind() = %v, want %v", got, tt.want)
			}
			if err := tt.cmd.Validate(); err != nil {
				t.Errorf("Validate() error = %v", err)
			}
		})
	}

	if err := CommandType("bogus").Validate(); err == nil {
		t.Error("expected error for unknown command type")
	}
}

func TestCallbackValidate(t *testing.T) {
	value := StringValue("hello")
	tests := []struct {
		name    string
		cb      Callback
		wantErr bool
	}{
		{
			name: "decoded",
			cb:   Callback{Type: CallbackImageDecoded, Handle: 42},
		},
		{
			name:    "error without message",
			cb:      Callback{Type: CallbackFontError, Handle: 1},
			wantErr: true,
		},
		{
			name: "error with message",
			cb:   Callback{Type: CallbackFontError, Handle: 1, Message: "bad font"},
		},
		{
			name:    "data without value",
			cb:      Callback{Type: CallbackViewModelDataReceived, Handle: 1, Path: "title"},
			wantErr: true,
		},
		{
			name: "data with value",
			cb:   Callback{Type: CallbackViewModelDataReceived, Handle: 1, Path: "title", Value: &value},
		},
		{
			name:    "unknown type",
			cb:      Callback{Type: "image.exploded"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cb.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestColor(t *testing.T) {
	c := NewColor(0xFF, 0x10, 0x20, 0x30)
	if c.A() != 0xFF || c.R() != 0x10 || c.G() != 0x20 || c.B() != 0x30 {
		t.Errorf("channels = %d %d %d %d", c.A(), c.R(), c.G(), c.B())
	}
	if got := c.String(); got != "#FF102030" {
		t.Errorf("String() = %s, want #FF102030", got)
	}
}

func TestDataTypeScalar(t *testing.T) {
	for _, dt := range []DataType{DataTypeString, DataTypeNumber, DataTypeBoolean, DataTypeColor, DataTypeEnum} {
		if !dt.Scalar() {
			t.Errorf("%s should be scalar", dt)
		}
	}
	for _, dt := range []DataType{DataTypeTrigger, DataTypeList, DataTypeViewModel, DataTypeAssetImage} {
		if dt.Scalar() {
			t.Errorf("%s should not be scalar", dt)
		}
	}
	if err := DataType("matrix").Validate(); err == nil {
		t.Error("expected error for unknown data type")
	}
}
