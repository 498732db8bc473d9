package elm

import (
	"errors"

	"github.com/shaunagostinho/obd2dash/internal/obd"
)

// parseDTCResponse decodes a mode 03/07/0A response into trouble codes.
//
// Every frame echoing the store's response byte contributes its code pairs
// (multiple ECUs may each report their own codes). On CAN the echo is
// followed by a count byte, leaving an odd payload; that byte is skipped.
// The 00 00 filler terminates a frame's sequence and is never emitted.
func parseDTCResponse(raw string, status obd.DTCStatus) ([]obd.DTC, error) {
	if err := nonDataError(status.Mode(), raw); err != nil {
		// A vehicle with no codes may answer NO DATA instead of an empty
		// response; that is an empty set, not a failure.
		if errors.Is(err, ErrNoData) {
			return []obd.DTC{}, nil
		}
		return nil, err
	}

	frames := splitFrames(raw)
	if len(frames) == 0 {
		return nil, &ParseError{Kind: ParseMalformedFrame, Key: "DTC", Raw: raw}
	}

	codes := []obd.DTC{}
	for _, f := range frames {
		p := f.payload
		if len(p) == 0 || p[0] != status.ResponseByte() {
			continue
		}
		p = p[1:]
		if len(p)%2 == 1 {
			p = p[1:] // CAN count byte
		}
		for i := 0; i+1 < len(p); i += 2 {
			dtc, ok := obd.DecodeDTCPair(p[i], p[i+1], status)
			if !ok {
				break
			}
			codes = append(codes, dtc)
		}
	}
	return codes, nil
}
