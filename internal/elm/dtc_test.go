package elm

import (
	"errors"
	"testing"

	"github.com/shaunagostinho/obd2dash/internal/obd"
)

func codeStrings(codes []obd.DTC) []string {
	out := make([]string, len(codes))
	for i, c := range codes {
		out[i] = c.String()
	}
	return out
}

func TestParseDTCResponse(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"two codes", "43 01 01 20 23", []string{"P0101", "P2023"}},
		{"empty store", "43 00 00", []string{}},
		{"filler terminates", "43 01 13 00 00 00 00", []string{"P0113"}},
		{"CAN count byte", "43 02 01 01 20 23", []string{"P0101", "P2023"}},
		{"multi ECU", "7E8 43 01 01 01\n7E9 43 01 41 23", []string{"P0101", "C0123"}},
		{"no data", "NO DATA", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			codes, err := parseDTCResponse(tt.raw, obd.StatusStored)
			if err != nil {
				t.Fatalf("parseDTCResponse: %v", err)
			}
			got := codeStrings(codes)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("code[%d] = %s, want %s", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestParseDTCResponseWrongStore(t *testing.T) {
	// A pending read must ignore stored-store frames.
	codes, err := parseDTCResponse("43 01 01 00 00", obd.StatusPending)
	if err != nil {
		t.Fatalf("parseDTCResponse: %v", err)
	}
	if len(codes) != 0 {
		t.Errorf("pending read decoded stored frames: %v", codeStrings(codes))
	}
}

func TestParseDTCResponseMalformed(t *testing.T) {
	_, err := parseDTCResponse("SEARCHING...", obd.StatusStored)
	var perr *ParseError
	if !errors.As(err, &perr) || perr.Kind != ParseMalformedFrame {
		t.Errorf("err = %v, want malformed-frame ParseError", err)
	}
}

func TestParseDTCResponseStatusTagging(t *testing.T) {
	codes, err := parseDTCResponse("47 01 13 00 00", obd.StatusPending)
	if err != nil {
		t.Fatalf("parseDTCResponse: %v", err)
	}
	if len(codes) != 1 || codes[0].String() != "P0113" || codes[0].Status != obd.StatusPending {
		t.Errorf("got %+v, want one pending P0113", codes)
	}
}
