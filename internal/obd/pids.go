package obd

import "math"

// DecodeFunc turns the data bytes of a positive response into a physical
// value. ok=false marks a degenerate-but-valid byte pattern (sensor absent);
// decoders never fail on in-range input.
type DecodeFunc func(b []byte) (value float64, ok bool)

// Definition describes one OBD-II parameter: how to request it and how to
// turn the response bytes into a physical value. Definitions are immutable
// after registry construction.
type Definition struct {
	Key    string // stable sensor key, e.g. "RPM"
	Desc   string
	Mode   string // 2-hex-digit service, e.g. "01"
	PID    string // 2-hex-digit parameter id
	Bytes  int    // data bytes the decoder consumes, exactly
	Unit   string
	Decode DecodeFunc

	AlertHigh *float64
	AlertLow  *float64

	// Streamed marks scalar sensors included in realtime scan cycles.
	// Non-scalar entries (MIL_STATUS) stay in the table but are excluded
	// from streaming by policy.
	Streamed bool
}

// Command returns the request string for this parameter ("010C").
func (d *Definition) Command() string { return d.Mode + d.PID }

// Registry is the process-wide table of sensor definitions, keyed by sensor
// key. Built once at startup and never mutated.
type Registry struct {
	defs map[string]*Definition
	keys []string // insertion order, stable across runs
}

// Get returns the definition for key.
func (r *Registry) Get(key string) (*Definition, bool) {
	d, ok := r.defs[key]
	return d, ok
}

// Keys returns all sensor keys in table order.
func (r *Registry) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// StreamKeys returns the keys polled during realtime scan cycles.
func (r *Registry) StreamKeys() []string {
	out := make([]string, 0, len(r.keys))
	for _, k := range r.keys {
		if r.defs[k].Streamed {
			out = append(out, k)
		}
	}
	return out
}

// Len returns the number of definitions.
func (r *Registry) Len() int { return len(r.keys) }

var std = buildRegistry()

// Standard returns the shared Mode-01 sensor registry.
func Standard() *Registry { return std }

// --- decode helpers -------------------------------------------------------

func decodeA(b []byte) (float64, bool)  { return float64(b[0]), true }
func decodeAB(b []byte) (float64, bool) { return float64(b[0])*256 + float64(b[1]), true }

func decodeRPM(b []byte) (float64, bool) {
	return (float64(b[0])*256 + float64(b[1])) / 4, true
}

func decodeTemp(b []byte) (float64, bool) { return float64(b[0]) - 40, true }

func decodePercentA(b []byte) (float64, bool) {
	return round1(float64(b[0]) * 100 / 255), true
}

func decodePercentAB(b []byte) (float64, bool) {
	return round1((float64(b[0])*256 + float64(b[1])) * 100 / 65535), true
}

func decodeMAF(b []byte) (float64, bool) {
	return round2((float64(b[0])*256 + float64(b[1])) / 100), true
}

func decodeTiming(b []byte) (float64, bool) { return float64(b[0])/2 - 64, true }

func decodeVoltage(b []byte) (float64, bool) {
	return round3((float64(b[0])*256 + float64(b[1])) / 1000), true
}

func decodeFuelRate(b []byte) (float64, bool) {
	return round2((float64(b[0])*256 + float64(b[1])) * 0.05), true
}

func decodeFuelTrim(b []byte) (float64, bool) {
	return round1((float64(b[0]) - 128) * 100 / 128), true
}

// decodeEvapPressure is a signed 16-bit quantity in quarter pascals.
func decodeEvapPressure(b []byte) (float64, bool) {
	v := int(b[0])*256 + int(b[1])
	if v >= 32768 {
		v -= 65536
	}
	return round2(float64(v) / 4), true
}

// decodeDTCCount extracts the stored-code count from the MIL status word.
// All-FF means the monitor block is unreadable on this vehicle.
func decodeDTCCount(b []byte) (float64, bool) {
	if b[0] == 0xFF && b[1] == 0xFF && b[2] == 0xFF && b[3] == 0xFF {
		return 0, false
	}
	return float64(b[0] & 0x7F), true
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round3(v float64) float64 { return math.Round(v*1000) / 1000 }

func alert(v float64) *float64 { return &v }

func buildRegistry() *Registry {
	defs := []*Definition{
		{Key: "MIL_STATUS", Desc: "MIL / Monitor Status", Mode: "01", PID: "01", Bytes: 4,
			Decode: decodeDTCCount},
		{Key: "RPM", Desc: "Engine RPM", Mode: "01", PID: "0C", Bytes: 2, Unit: "rpm",
			Decode: decodeRPM, AlertHigh: alert(6500), Streamed: true},
		{Key: "SPEED", Desc: "Vehicle Speed", Mode: "01", PID: "0D", Bytes: 1, Unit: "km/h",
			Decode: decodeA, AlertHigh: alert(200), Streamed: true},
		{Key: "COOLANT_TEMP", Desc: "Engine Coolant Temperature", Mode: "01", PID: "05", Bytes: 1, Unit: "°C",
			Decode: decodeTemp, AlertHigh: alert(105), Streamed: true},
		{Key: "ENGINE_LOAD", Desc: "Calculated Engine Load", Mode: "01", PID: "04", Bytes: 1, Unit: "%",
			Decode: decodePercentA, AlertHigh: alert(95), Streamed: true},
		{Key: "THROTTLE", Desc: "Throttle Position", Mode: "01", PID: "11", Bytes: 1, Unit: "%",
			Decode: decodePercentA, Streamed: true},
		{Key: "MAF", Desc: "Mass Air Flow Rate", Mode: "01", PID: "10", Bytes: 2, Unit: "g/s",
			Decode: decodeMAF, Streamed: true},
		{Key: "INTAKE_TEMP", Desc: "Intake Air Temperature", Mode: "01", PID: "0F", Bytes: 1, Unit: "°C",
			Decode: decodeTemp, AlertHigh: alert(60), Streamed: true},
		{Key: "MAP", Desc: "Intake Manifold Absolute Pressure", Mode: "01", PID: "0B", Bytes: 1, Unit: "kPa",
			Decode: decodeA, Streamed: true},
		{Key: "TIMING_ADVANCE", Desc: "Timing Advance", Mode: "01", PID: "0E", Bytes: 1, Unit: "° before TDC",
			Decode: decodeTiming, Streamed: true},
		{Key: "OIL_TEMP", Desc: "Engine Oil Temperature", Mode: "01", PID: "5C", Bytes: 1, Unit: "°C",
			Decode: decodeTemp, AlertHigh: alert(130), Streamed: true},
		{Key: "FUEL_LEVEL", Desc: "Fuel Tank Level", Mode: "01", PID: "2F", Bytes: 1, Unit: "%",
			Decode: decodePercentA, AlertLow: alert(10), Streamed: true},
		{Key: "FUEL_RATE", Desc: "Engine Fuel Rate", Mode: "01", PID: "5E", Bytes: 2, Unit: "L/h",
			Decode: decodeFuelRate, Streamed: true},
		{Key: "SHORT_FUEL_TRIM_1", Desc: "Short Term Fuel Trim (Bank 1)", Mode: "01", PID: "06", Bytes: 1, Unit: "%",
			Decode: decodeFuelTrim, Streamed: true},
		{Key: "LONG_FUEL_TRIM_1", Desc: "Long Term Fuel Trim (Bank 1)", Mode: "01", PID: "07", Bytes: 1, Unit: "%",
			Decode: decodeFuelTrim, Streamed: true},
		{Key: "VOLTAGE", Desc: "Control Module Voltage", Mode: "01", PID: "42", Bytes: 2, Unit: "V",
			Decode: decodeVoltage, AlertLow: alert(11.5), Streamed: true},
		{Key: "BARO_PRESSURE", Desc: "Barometric Pressure", Mode: "01", PID: "33", Bytes: 1, Unit: "kPa",
			Decode: decodeA, Streamed: true},
		{Key: "AMBIENT_TEMP", Desc: "Ambient Air Temperature", Mode: "01", PID: "46", Bytes: 1, Unit: "°C",
			Decode: decodeTemp, Streamed: true},
		{Key: "RUNTIME", Desc: "Engine Run Time", Mode: "01", PID: "1F", Bytes: 2, Unit: "s",
			Decode: decodeAB, Streamed: true},
		{Key: "DISTANCE_MIL", Desc: "Distance Traveled with MIL On", Mode: "01", PID: "21", Bytes: 2, Unit: "km",
			Decode: decodeAB, Streamed: true},
		{Key: "DISTANCE_SINCE_CLR", Desc: "Distance Since DTCs Cleared", Mode: "01", PID: "31", Bytes: 2, Unit: "km",
			Decode: decodeAB, Streamed: true},
		{Key: "WARMUPS_SINCE_CLR", Desc: "Warm-ups Since DTCs Cleared", Mode: "01", PID: "30", Bytes: 1, Unit: "count",
			Decode: decodeA, Streamed: true},
		{Key: "ABS_LOAD", Desc: "Absolute Load Value", Mode: "01", PID: "43", Bytes: 2, Unit: "%",
			Decode: decodePercentAB, Streamed: true},
		{Key: "EVAP_PRESSURE", Desc: "Evap System Vapor Pressure", Mode: "01", PID: "32", Bytes: 2, Unit: "Pa",
			Decode: decodeEvapPressure, Streamed: true},
	}

	r := &Registry{defs: make(map[string]*Definition, len(defs))}
	for _, d := range defs {
		r.defs[d.Key] = d
		r.keys = append(r.keys, d.Key)
	}
	return r
}
