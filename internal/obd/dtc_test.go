package obd

import "testing"

func TestDecodeDTCPair(t *testing.T) {
	tests := []struct {
		hi, lo byte
		want   string
	}{
		{0x01, 0x01, "P0101"},
		{0x20, 0x23, "P2023"},
		{0x41, 0x23, "C0123"},
		{0x81, 0x23, "B0123"},
		{0xC1, 0x23, "U0123"},
		{0x3F, 0xFF, "P3FFF"},
	}
	for _, tt := range tests {
		dtc, ok := DecodeDTCPair(tt.hi, tt.lo, StatusStored)
		if !ok {
			t.Errorf("DecodeDTCPair(%02X %02X) not ok", tt.hi, tt.lo)
			continue
		}
		if got := dtc.String(); got != tt.want {
			t.Errorf("DecodeDTCPair(%02X %02X) = %s, want %s", tt.hi, tt.lo, got, tt.want)
		}
	}
}

func TestDecodeDTCPairFiller(t *testing.T) {
	if _, ok := DecodeDTCPair(0x00, 0x00, StatusStored); ok {
		t.Error("00 00 filler must not decode to a code")
	}
}

func TestDTCStatusModes(t *testing.T) {
	tests := []struct {
		status DTCStatus
		mode   string
		resp   byte
	}{
		{StatusStored, "03", 0x43},
		{StatusPending, "07", 0x47},
		{StatusPermanent, "0A", 0x4A},
	}
	for _, tt := range tests {
		if got := tt.status.Mode(); got != tt.mode {
			t.Errorf("%v.Mode() = %q, want %q", tt.status, got, tt.mode)
		}
		if got := tt.status.ResponseByte(); got != tt.resp {
			t.Errorf("%v.ResponseByte() = %02X, want %02X", tt.status, got, tt.resp)
		}
	}
}
