package obd

import "testing"

func TestDecodeValues(t *testing.T) {
	tests := []struct {
		key  string
		data []byte
		want float64
	}{
		{"RPM", []byte{0x0B, 0xB8}, 750},
		{"RPM", []byte{0x00, 0x00}, 0},
		{"SPEED", []byte{0x3C}, 60},
		{"COOLANT_TEMP", []byte{0x7E}, 86},
		{"COOLANT_TEMP", []byte{0x00}, -40},
		{"ENGINE_LOAD", []byte{0xFF}, 100},
		{"MAF", []byte{0x12, 0x34}, 46.6},
		{"TIMING_ADVANCE", []byte{0x80}, 0},
		{"TIMING_ADVANCE", []byte{0x00}, -64},
		{"VOLTAGE", []byte{0x36, 0xB0}, 14.0},
		{"SHORT_FUEL_TRIM_1", []byte{0x80}, 0},
		{"SHORT_FUEL_TRIM_1", []byte{0x00}, -100},
		{"FUEL_RATE", []byte{0x00, 0x64}, 5},
		{"RUNTIME", []byte{0x01, 0x00}, 256},
		{"EVAP_PRESSURE", []byte{0xFF, 0xFC}, -1},
		{"EVAP_PRESSURE", []byte{0x00, 0x04}, 1},
	}
	reg := Standard()
	for _, tt := range tests {
		def, ok := reg.Get(tt.key)
		if !ok {
			t.Fatalf("missing definition %q", tt.key)
		}
		if len(tt.data) != def.Bytes {
			t.Fatalf("%s: test data has %d bytes, definition wants %d", tt.key, len(tt.data), def.Bytes)
		}
		got, ok := def.Decode(tt.data)
		if !ok {
			t.Errorf("%s: decode reported not-ok", tt.key)
			continue
		}
		if got != tt.want {
			t.Errorf("%s(% X) = %v, want %v", tt.key, tt.data, got, tt.want)
		}
	}
}

func TestDecodeDTCCountDegenerate(t *testing.T) {
	def, _ := Standard().Get("MIL_STATUS")
	if _, ok := def.Decode([]byte{0xFF, 0xFF, 0xFF, 0xFF}); ok {
		t.Error("all-FF monitor block should decode as not-ok")
	}
	v, ok := def.Decode([]byte{0x82, 0x07, 0x65, 0x04})
	if !ok || v != 2 {
		t.Errorf("MIL word 82: got (%v, %v), want (2, true)", v, ok)
	}
}

func TestRegistryCommands(t *testing.T) {
	reg := Standard()
	def, ok := reg.Get("RPM")
	if !ok {
		t.Fatal("RPM not registered")
	}
	if got := def.Command(); got != "010C" {
		t.Errorf("RPM command = %q, want 010C", got)
	}
	for _, key := range reg.Keys() {
		d, _ := reg.Get(key)
		if len(d.Mode) != 2 || len(d.PID) != 2 {
			t.Errorf("%s: mode/PID must be 2 hex digits, got %q %q", key, d.Mode, d.PID)
		}
		if d.Bytes <= 0 {
			t.Errorf("%s: non-positive byte count", key)
		}
	}
}

func TestStreamKeysExcludeMILStatus(t *testing.T) {
	for _, k := range Standard().StreamKeys() {
		if k == "MIL_STATUS" {
			t.Error("MIL_STATUS must not be streamed")
		}
	}
	if n := len(Standard().StreamKeys()); n != Standard().Len()-1 {
		t.Errorf("stream keys = %d, want %d", n, Standard().Len()-1)
	}
}
