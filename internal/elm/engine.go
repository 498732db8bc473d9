package elm

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shaunagostinho/obd2dash/internal/obd"
	"github.com/shaunagostinho/obd2dash/internal/transport"
)

// Engine is the OBD-II protocol engine: it owns the command channel, the
// sensor registry and the realtime streaming loop. One Engine per adapter.
type Engine struct {
	ch  *Channel
	reg *obd.Registry

	readTimeout time.Duration
	initTimeout time.Duration
	resetSettle time.Duration

	mu    sync.Mutex
	ready bool

	// streaming state, see stream.go
	streamMu    sync.Mutex
	streamState StreamState
	streamKeys  []string
	stopCh      chan struct{}
	doneCh      chan struct{}
	streamErr   error
	drain       time.Duration
}

// Config tunes the engine. Zero values pick defaults.
type Config struct {
	ReadTimeout time.Duration // per-command response timeout
	InitTimeout time.Duration // per-handshake-step timeout
	Settle      time.Duration // channel post-write settle
	LockWait    time.Duration // channel exclusive-access wait bound
	Registry    *obd.Registry
}

const (
	defaultReadTimeout  = 5 * time.Second
	defaultInitTimeout  = 10 * time.Second
	defaultDrainTimeout = 5 * time.Second
)

// New creates an engine over port. The port must already be connected.
func New(port transport.Port, cfg Config) *Engine {
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	if cfg.InitTimeout == 0 {
		cfg.InitTimeout = defaultInitTimeout
	}
	if cfg.Registry == nil {
		cfg.Registry = obd.Standard()
	}
	return &Engine{
		ch:          NewChannel(port, ChannelConfig{Settle: cfg.Settle, LockWait: cfg.LockWait}),
		reg:         cfg.Registry,
		readTimeout: cfg.ReadTimeout,
		initTimeout: cfg.InitTimeout,
		resetSettle: resetSettle,
		drain:       defaultDrainTimeout,
	}
}

// Registry returns the engine's sensor table.
func (e *Engine) Registry() *obd.Registry { return e.reg }

// Component returns the transport tag for error rendering.
func (e *Engine) Component() string { return e.ch.Component() }

// Snapshot is one poll cycle's worth of sensor values, keyed by sensor key.
// A nil value means the PID was unsupported or failed to decode this cycle.
// Snapshots are immutable once produced.
type Snapshot struct {
	Time   time.Time           `json:"timestamp"`
	Values map[string]*float64 `json:"values"`
}

// sender issues one command over the channel; satisfied by the channel
// itself and by a lease held on it.
type sender interface {
	Send(cmd string, timeout time.Duration) (string, error)
}

// ReadPID reads one sensor by key. Returns nil without error when the
// vehicle does not support the PID or reports a degenerate value; decode
// failures on a directly requested PID are hard errors.
func (e *Engine) ReadPID(key string) (*float64, error) {
	return e.readPID(e.ch, key)
}

func (e *Engine) readPID(s sender, key string) (*float64, error) {
	def, ok := e.reg.Get(key)
	if !ok {
		return nil, fmt.Errorf("unknown PID key %q", key)
	}
	resp, err := s.Send(def.Command(), e.readTimeout)
	if err != nil {
		return nil, err
	}
	v, ok, err := decodeValue(def, resp, false)
	if errors.Is(err, ErrNoData) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &v, nil
}

// ReadAll scans every registered sensor except the excluded keys and
// assembles one Snapshot. Unsupported PIDs and per-PID decode or timeout
// failures degrade to nil entries; only a closed transport aborts the scan.
func (e *Engine) ReadAll(exclude map[string]struct{}) (*Snapshot, error) {
	keys := make([]string, 0, e.reg.Len())
	for _, k := range e.reg.Keys() {
		if _, skip := exclude[k]; !skip {
			keys = append(keys, k)
		}
	}
	return e.scan(keys, nil)
}

// scan reads the given keys in order into one snapshot. The channel is held
// for the whole cycle so ad-hoc commands cannot interleave between reads;
// they wait behind the scan or fail with ChannelBusy. A close on stopCh
// abandons the cycle between reads, returning a nil snapshot and nil error.
func (e *Engine) scan(keys []string, stopCh <-chan struct{}) (*Snapshot, error) {
	lease, err := e.ch.Acquire("scan")
	if err != nil {
		return nil, err
	}
	defer lease.Release()

	snap := &Snapshot{Time: time.Now(), Values: make(map[string]*float64, len(keys))}
	for _, key := range keys {
		if stopCh != nil {
			select {
			case <-stopCh:
				return nil, nil
			default:
			}
		}
		v, err := e.readPID(lease, key)
		if err != nil {
			if IsClosed(err) {
				return nil, err
			}
			// Timeouts, parse and protocol errors degrade to a missing
			// entry; the cycle continues.
			snap.Values[key] = nil
			continue
		}
		snap.Values[key] = v
	}
	return snap, nil
}

// ReadFreezeFrame reads a sensor from a stored freeze frame (mode 02). The
// frame index is appended as an extra request byte; an index with no stored
// data yields nil exactly like a live-read miss.
func (e *Engine) ReadFreezeFrame(key string, frame int) (*float64, error) {
	def, ok := e.reg.Get(key)
	if !ok {
		return nil, fmt.Errorf("unknown PID key %q", key)
	}
	cmd := fmt.Sprintf("02%s%02X", def.PID, frame)
	resp, err := e.ch.Send(cmd, e.readTimeout)
	if err != nil {
		return nil, err
	}
	v, ok, err := decodeValue(def, resp, true)
	if errors.Is(err, ErrNoData) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &v, nil
}

// ReadDTCs reads one of the three trouble-code stores.
func (e *Engine) ReadDTCs(status obd.DTCStatus) ([]obd.DTC, error) {
	resp, err := e.ch.Send(status.Mode(), e.readTimeout)
	if err != nil {
		return nil, err
	}
	return parseDTCResponse(resp, status)
}

// ClearDTCs sends the mode 04 clear. The command is fire-and-forget: success
// is defined by the next stored-DTC read returning an empty set, not by the
// acknowledgment here.
func (e *Engine) ClearDTCs() error {
	resp, err := e.ch.Send("04", e.readTimeout)
	if err != nil {
		return err
	}
	up := strings.ToUpper(resp)
	if strings.Contains(up, "UNABLE TO CONNECT") || strings.Contains(up, "?") {
		return &ProtocolError{Op: "04", Response: resp}
	}
	return nil
}

// MILStatusResult is the decoded mode 01 PID 01 monitor word.
type MILStatusResult struct {
	MILOn    bool `json:"milOn"`
	DTCCount int  `json:"dtcCount"`
}

// MILStatus reads the malfunction indicator lamp state and stored-code count.
func (e *Engine) MILStatus() (*MILStatusResult, error) {
	def, ok := e.reg.Get("MIL_STATUS")
	if !ok {
		return nil, fmt.Errorf("registry has no MIL_STATUS definition")
	}
	resp, err := e.ch.Send(def.Command(), e.readTimeout)
	if err != nil {
		return nil, err
	}
	data, err := extractPayload(def, resp, false)
	if errors.Is(err, ErrNoData) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &MILStatusResult{
		MILOn:    data[0]&0x80 != 0,
		DTCCount: int(data[0] & 0x7F),
	}, nil
}

// ReadVIN reads the vehicle identification number (mode 09 PID 02). Headers
// are switched on around the request so the multi-frame response can be
// reassembled, then switched back off.
func (e *Engine) ReadVIN() (string, error) {
	// The header toggle and the request are one indivisible exchange: a
	// command slipped in between would run with headers unexpectedly on.
	lease, err := e.ch.Acquire(obd.InfoVIN)
	if err != nil {
		return "", err
	}
	defer lease.Release()

	if _, err := lease.Send(obd.CmdHeadersOn, e.readTimeout); err != nil {
		return "", err
	}
	resp, err := lease.Send(obd.InfoVIN, e.readTimeout)
	// Always restore headers-off; the decoder depends on it.
	if _, herr := lease.Send(obd.CmdHeadersOff, e.readTimeout); herr != nil && err == nil {
		err = herr
	}
	if err != nil {
		return "", err
	}
	if nerr := nonDataError(obd.InfoVIN, resp); nerr != nil {
		return "", nerr
	}
	vin := parseVIN(resp)
	if vin == "" {
		return "", ErrNoData
	}
	return vin, nil
}

// ReadECUName reads the ECU name string (mode 09 PID 0A).
func (e *Engine) ReadECUName() (string, error) {
	return e.readASCIIInfo(obd.InfoECUName)
}

// ReadCalibrationID reads the calibration identification (mode 09 PID 04).
func (e *Engine) ReadCalibrationID() (string, error) {
	return e.readASCIIInfo(obd.InfoCalibrationID)
}

func (e *Engine) readASCIIInfo(cmd string) (string, error) {
	resp, err := e.ch.Send(cmd, e.readTimeout)
	if err != nil {
		return "", err
	}
	if nerr := nonDataError(cmd, resp); nerr != nil {
		return "", nerr
	}
	s := parseASCII(resp)
	if s == "" {
		return "", ErrNoData
	}
	return s, nil
}

// Protocol returns the adapter's current protocol description (AT DP).
func (e *Engine) Protocol() (string, error) {
	return e.atQuery(obd.CmdDescribeProto)
}

// ProtocolNumber returns the current protocol number (AT DPN).
func (e *Engine) ProtocolNumber() (string, error) {
	return e.atQuery(obd.CmdProtoNumber)
}

// Version returns the adapter chip version string (AT I).
func (e *Engine) Version() (string, error) {
	return e.atQuery(obd.CmdVersion)
}

// BatteryVoltage returns the adapter-measured battery voltage (AT RV).
func (e *Engine) BatteryVoltage() (string, error) {
	return e.atQuery(obd.CmdReadVoltage)
}

func (e *Engine) atQuery(cmd string) (string, error) {
	resp, err := e.ch.Send(cmd, e.readTimeout)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp), nil
}

// SendRaw transmits any AT or OBD command verbatim and returns the raw
// response text. While streaming is active the call competes for the channel
// and may fail with ChannelBusy.
func (e *Engine) SendRaw(cmd string) (string, error) {
	return e.ch.Send(cmd, e.readTimeout)
}

// SetProtocol pins the adapter to a specific OBD protocol (AT SP n);
// 0 restores automatic negotiation.
func (e *Engine) SetProtocol(n int) error {
	return e.expectOK(fmt.Sprintf("AT SP %X", n))
}

// SetHeader sets a custom request header (AT SH).
func (e *Engine) SetHeader(h string) error {
	return e.expectOK("AT SH " + strings.ToUpper(h))
}

// SetAdapterTimeout sets the chip's own bus response timeout (AT ST), in
// units of 4 ms.
func (e *Engine) SetAdapterTimeout(v byte) error {
	return e.expectOK(fmt.Sprintf("AT ST %02X", v))
}

// WarmStart reboots the chip without forgetting the negotiated protocol
// (AT WS). The engine must be re-initialized afterwards.
func (e *Engine) WarmStart() error {
	resp, err := e.ch.Send(obd.CmdWarmStart, e.readTimeout)
	if err != nil {
		return err
	}
	if !ackReset(resp) {
		return &ProtocolError{Op: obd.CmdWarmStart, Response: resp}
	}
	e.mu.Lock()
	e.ready = false
	e.mu.Unlock()
	return nil
}

func (e *Engine) expectOK(cmd string) error {
	resp, err := e.ch.Send(cmd, e.readTimeout)
	if err != nil {
		return err
	}
	if !ackOK(resp) {
		return &ProtocolError{Op: cmd, Response: resp}
	}
	return nil
}

// parseVIN extracts the ASCII VIN from a mode 09 PID 02 response. With
// headers on the answer arrives as ISO-TP frames: the first frame opens with
// a 2-byte length PCI followed by the 49 02 01 echo, consecutive frames with
// a 1-byte sequence counter. Those framing bytes are stripped per frame and
// the printable remainder concatenated.
func parseVIN(raw string) string {
	var b strings.Builder
	for _, f := range splitFrames(raw) {
		p := f.payload
		switch {
		case len(p) > 2 && p[0]&0xF0 == 0x10: // ISO-TP first frame
			p = p[2:]
		case len(p) > 1 && p[0]&0xF0 == 0x20: // ISO-TP consecutive frame
			p = p[1:]
		}
		// Mode/PID echo plus the record-count byte.
		if len(p) > 3 && p[0] == 0x49 && p[1] == 0x02 {
			p = p[3:]
		}
		for _, t := range p {
			if t >= 0x20 && t <= 0x7E {
				b.WriteByte(t)
			}
		}
	}
	vin := strings.TrimSpace(b.String())
	if len(vin) < 5 {
		return ""
	}
	return vin
}

// parseASCII renders the printable bytes of a mode 09 string response,
// dropping the 49 <pid> <count> echo when present.
func parseASCII(raw string) string {
	var b strings.Builder
	for _, f := range splitFrames(raw) {
		p := f.payload
		if len(p) > 3 && p[0] == 0x49 {
			p = p[3:]
		}
		for _, t := range p {
			if t >= 0x20 && t <= 0x7E {
				b.WriteByte(t)
			}
		}
	}
	return strings.TrimSpace(b.String())
}
