package elm

import (
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/shaunagostinho/obd2dash/internal/obd"
)

// positiveOffset is added to the request mode in every positive response
// (mode 01 answers as 0x41).
const positiveOffset = 0x40

// rawFrame is one decoded response unit: an optional per-ECU CAN header and
// the payload bytes.
type rawFrame struct {
	header  string // 3-hex-digit CAN id, "" when headers are off
	payload []byte
}

// splitFrames tokenizes a cleaned response into per-line frames. Lines that
// are not pure hex (SEARCHING..., prompt remnants) are dropped. A line whose
// compacted hex has odd length is carrying a 3-digit CAN header, which is
// split off; this covers both spaced and space-suppressed adapter output.
func splitFrames(raw string) []rawFrame {
	var frames []rawFrame
	for _, line := range strings.Split(strings.ToUpper(raw), "\n") {
		compact := strings.ReplaceAll(strings.TrimSpace(line), " ", "")
		if compact == "" || !isHex(compact) {
			continue
		}
		header := ""
		if len(compact)%2 == 1 {
			if len(compact) < 5 {
				continue // header with no payload
			}
			header = compact[:3]
			compact = compact[3:]
		}
		payload, err := hex.DecodeString(compact)
		if err != nil || len(payload) == 0 {
			continue
		}
		frames = append(frames, rawFrame{header: header, payload: payload})
	}
	return frames
}

func isHex(s string) bool {
	for _, c := range s {
		if !strings.ContainsRune("0123456789ABCDEF", c) {
			return false
		}
	}
	return len(s) > 0
}

// nonDataError maps the adapter's literal non-data responses onto the error
// taxonomy. Returns nil when the response may contain data.
func nonDataError(op, resp string) error {
	up := strings.ToUpper(resp)
	switch {
	case strings.Contains(up, "UNABLE TO CONNECT"), strings.Contains(up, "?"):
		return &ProtocolError{Op: op, Response: resp}
	case strings.Contains(up, "NO DATA"), strings.Contains(up, "STOPPED"):
		return ErrNoData
	}
	return nil
}

// extractPayload finds the data bytes answering def in a raw response.
//
// Each frame's payload must open with the echoed mode byte plus 0x40
// followed by the echoed PID; anything else is an unrelated broadcast and is
// discarded. A single leading ISO-TP length byte (CAN single-frame PCI) is
// tolerated when it matches the remaining frame length. When several ECUs
// answer, the first matching frame in response order wins. The surviving
// data must count exactly def.Bytes — freeze-frame reads additionally carry
// one frame-index echo byte, stripped when freeze is set.
func extractPayload(def *obd.Definition, raw string, freeze bool) ([]byte, error) {
	op := def.Command()
	if err := nonDataError(op, raw); err != nil {
		return nil, err
	}

	wantMode := byte(mustHexByte(def.Mode) + positiveOffset)
	if freeze {
		wantMode = 0x02 + positiveOffset
	}
	wantPID := mustHexByte(def.PID)

	frames := splitFrames(raw)
	for _, f := range frames {
		p := f.payload
		if len(p) >= 3 && p[0] != wantMode && p[1] == wantMode && p[2] == wantPID &&
			int(p[0]) == len(p)-1 {
			p = p[1:]
		}
		if len(p) < 2 || p[0] != wantMode || p[1] != wantPID {
			continue
		}
		data := p[2:]
		if freeze && len(data) == def.Bytes+1 {
			data = data[1:] // frame-index echo
		}
		if len(data) != def.Bytes {
			return nil, &ParseError{
				Kind: ParseUnexpectedLength,
				Key:  def.Key,
				Got:  len(data),
				Want: def.Bytes,
				Raw:  raw,
			}
		}
		return data, nil
	}
	return nil, &ParseError{Kind: ParseMalformedFrame, Key: def.Key, Raw: raw}
}

// decodeValue runs the full decode pipeline: payload extraction plus the
// definition's registered decode function. ok=false with a nil error marks a
// degenerate reading (sensor absent).
func decodeValue(def *obd.Definition, raw string, freeze bool) (float64, bool, error) {
	data, err := extractPayload(def, raw, freeze)
	if err != nil {
		return 0, false, err
	}
	v, ok := def.Decode(data)
	return v, ok, nil
}

func mustHexByte(s string) byte {
	v, err := strconv.ParseUint(s, 16, 8)
	if err != nil {
		// Definitions are static configuration; a bad mode/PID string is a
		// table bug, never runtime data.
		panic("obd definition with invalid hex field: " + s)
	}
	return byte(v)
}
