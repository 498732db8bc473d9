package transport

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"
)

// DemoPort emulates an ELM327 adapter wired to a running vehicle. Commands
// written to it are answered the way a real adapter would answer them, so
// the full protocol engine (handshake, decoding, streaming) runs unmodified
// with no hardware attached.
type DemoPort struct {
	mu      sync.Mutex
	open    bool
	start   time.Time
	pending []byte
	cleared bool // DTCs wiped by mode 04
}

// NewDemoPort creates a simulated adapter.
func NewDemoPort() *DemoPort { return &DemoPort{} }

func (d *DemoPort) Name() string      { return "demo" }
func (d *DemoPort) Component() string { return "DEMO" }

func (d *DemoPort) Connect() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.open = true
	d.start = time.Now()
	d.pending = nil
	return nil
}

func (d *DemoPort) IsOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open
}

func (d *DemoPort) Disconnect() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.open = false
	return nil
}

func (d *DemoPort) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return 0, fmt.Errorf("DEMO: port not open")
	}
	cmd := strings.ToUpper(strings.TrimSpace(string(p)))
	resp := d.respond(cmd)
	d.pending = append(d.pending, []byte(resp+"\r\r>")...)
	return len(p), nil
}

func (d *DemoPort) ReadUntil(terminator byte, timeout time.Duration) ([]byte, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return nil, false, fmt.Errorf("DEMO: port not open")
	}
	for i, b := range d.pending {
		if b == terminator {
			out := d.pending[:i+1]
			d.pending = d.pending[i+1:]
			return out, true, nil
		}
	}
	out := d.pending
	d.pending = nil
	return out, false, nil
}

func (d *DemoPort) respond(cmd string) string {
	if strings.HasPrefix(cmd, "AT") {
		return d.respondAT(strings.TrimSpace(cmd[2:]))
	}
	switch {
	case cmd == "03":
		if d.cleared {
			return "43 00 00"
		}
		return "43 01 01 20 23"
	case cmd == "07":
		if d.cleared {
			return "47 00 00"
		}
		return "47 01 13 00 00"
	case cmd == "0A":
		return "4A 00 00"
	case cmd == "04":
		d.cleared = true
		return "44"
	case cmd == "0902":
		return vinResponse("1D4GP24R06B123456")
	case cmd == "090A":
		return asciiResponse("4A", "ECM-DemoDrive")
	case cmd == "0904":
		return asciiResponse("44", "DEMO-CAL-1234")
	case strings.HasPrefix(cmd, "01") && len(cmd) == 4 && isHexDigits(cmd[2:]):
		return d.respondLive(cmd[2:])
	case strings.HasPrefix(cmd, "02") && len(cmd) == 6 && isHexDigits(cmd[2:]):
		return d.respondFreeze(cmd[2:4], cmd[4:])
	}
	// Real adapters answer ? to anything they cannot parse; NO DATA is
	// reserved for well-formed requests the vehicle does not support.
	return "?"
}

func (d *DemoPort) respondAT(arg string) string {
	switch arg {
	case "Z", "WS":
		return "ELM327 v1.5"
	case "I":
		return "ELM327 v1.5"
	case "DP":
		return "AUTO, ISO 15765-4 (CAN 11/500)"
	case "DPN":
		return "A6"
	case "RV":
		return fmt.Sprintf("%.1fV", 13.8+rand.Float64()*0.4)
	case "@1":
		return "OBDII to RS232 Interpreter"
	default:
		return "OK"
	}
}

// respondLive synthesizes a mode 01 response for the simulated engine state.
// The drive cycle is a slow RPM sweep between idle and redline, the same
// shape the dashboard demo data has always used.
func (d *DemoPort) respondLive(pid string) string {
	t := time.Since(d.start).Seconds()
	s := math.Sin(t * 0.3)
	rpm := 850 + 4000*s*s + rand.Float64()*50
	load := (rpm - 850) / (5000 - 850) // 0..~1

	var data []byte
	switch pid {
	case "01": // MIL status
		first := byte(0x00)
		if !d.cleared {
			first = 0x82 // MIL on, 2 stored codes
		}
		data = []byte{first, 0x07, 0x65, 0x04}
	case "0C": // RPM
		v := int(rpm * 4)
		data = []byte{byte(v >> 8), byte(v)}
	case "0D": // speed
		data = []byte{byte(load * 180)}
	case "05": // coolant
		data = []byte{byte(85+rand.Intn(5)) + 40}
	case "04": // engine load
		data = []byte{byte(load * 255)}
	case "11": // throttle
		data = []byte{byte(load * 255)}
	case "10": // MAF
		v := int(load * 120 * 100)
		data = []byte{byte(v >> 8), byte(v)}
	case "0F": // intake temp
		data = []byte{byte(30+rand.Intn(8)) + 40}
	case "0B": // MAP
		data = []byte{byte(30 + load*70)}
	case "0E": // timing advance
		data = []byte{byte((10 + load*28 + 64) * 2)}
	case "2F": // fuel level, ~62%
		data = []byte{158}
	case "06": // short fuel trim
		data = []byte{byte(128 + rand.Intn(7) - 3)}
	case "07": // long fuel trim
		data = []byte{130}
	case "42": // module voltage
		v := int(13800 + rand.Intn(400))
		data = []byte{byte(v >> 8), byte(v)}
	case "33": // baro
		data = []byte{101}
	case "46": // ambient temp
		data = []byte{22 + 40}
	case "1F": // runtime
		v := int(t)
		data = []byte{byte(v >> 8), byte(v)}
	case "31": // distance since clear
		data = []byte{0x02, 0x8A}
	case "30": // warmups since clear
		data = []byte{12}
	case "43": // absolute load
		v := int(load * 65535 / 2.55 / 100)
		data = []byte{byte(v >> 8), byte(v)}
	default:
		// OIL_TEMP, FUEL_RATE, EVAP_PRESSURE, DISTANCE_MIL: plenty of real
		// vehicles do not support these, the demo car is one of them.
		return "NO DATA"
	}
	return hexFrame(append([]byte{0x41, hexByte(pid)}, data...))
}

// respondFreeze answers mode 02 with the values captured when the demo
// vehicle set its fault, including the frame-index echo byte real CAN
// vehicles send.
func (d *DemoPort) respondFreeze(pid, frame string) string {
	if frame != "00" || d.cleared {
		return "NO DATA"
	}
	var data []byte
	switch pid {
	case "0C":
		data = []byte{0x0B, 0xB8} // 750 rpm
	case "0D":
		data = []byte{0x3C} // 60 km/h
	case "05":
		data = []byte{0x7E} // 86 °C
	default:
		return "NO DATA"
	}
	return hexFrame(append([]byte{0x42, hexByte(pid), 0x00}, data...))
}

func vinResponse(vin string) string {
	// Multi-frame ISO-TP layout with headers, the way a CAN vehicle
	// delivers it: first frame carries 49 02 01, consecutive frames a
	// sequence counter.
	b := []byte(vin)
	lines := []string{
		"7E8 10 14 49 02 01 " + hexJoin(b[:3]),
		"7E8 21 " + hexJoin(b[3:10]),
		"7E8 22 " + hexJoin(b[10:17]),
	}
	return strings.Join(lines, "\r")
}

func asciiResponse(pid string, s string) string {
	return hexFrame(append([]byte{0x49, hexByte(pid), 0x01}, []byte(s)...))
}

func hexFrame(b []byte) string { return hexJoin(b) }

func hexJoin(b []byte) string {
	parts := make([]string, len(b))
	for i, v := range b {
		parts[i] = fmt.Sprintf("%02X", v)
	}
	return strings.Join(parts, " ")
}

func hexByte(s string) byte {
	var v byte
	fmt.Sscanf(s, "%02X", &v)
	return v
}

func isHexDigits(s string) bool {
	for _, c := range s {
		if !strings.ContainsRune("0123456789ABCDEF", c) {
			return false
		}
	}
	return len(s) > 0
}
