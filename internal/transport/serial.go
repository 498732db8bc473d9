package transport

import (
	"fmt"
	"log"
	"sync"
	"time"

	"go.bug.st/serial"
)

// SerialPort talks to a USB/serial ELM327 adapter via go.bug.st/serial.
type SerialPort struct {
	path      string
	baudRate  int
	settle    time.Duration
	component string

	mu   sync.Mutex
	port serial.Port
}

// SerialConfig holds connection parameters for a serial adapter.
type SerialConfig struct {
	Path     string        `yaml:"port" json:"port"`
	BaudRate int           `yaml:"baud_rate" json:"baudRate"`
	Settle   time.Duration `yaml:"-" json:"-"` // post-open adapter boot delay
}

const (
	defaultBaudRate = 38400
	// ELM327 clones need a moment after the port opens before they accept
	// commands. Matches the adapter datasheet's power-on guidance.
	defaultOpenSettle = 2 * time.Second

	// readSlice is the per-Read timeout inside ReadUntil; short so the
	// deadline is honored with reasonable granularity.
	readSlice = 50 * time.Millisecond
)

// NewSerialPort creates a port for a USB/serial adapter.
func NewSerialPort(cfg SerialConfig) *SerialPort {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = defaultBaudRate
	}
	if cfg.Settle == 0 {
		cfg.Settle = defaultOpenSettle
	}
	return &SerialPort{
		path:      cfg.Path,
		baudRate:  cfg.BaudRate,
		settle:    cfg.Settle,
		component: "USB",
	}
}

func (s *SerialPort) Name() string      { return s.path }
func (s *SerialPort) Component() string { return s.component }

// Connect opens the serial device and drains any boot chatter.
func (s *SerialPort) Connect() error {
	mode := &serial.Mode{
		BaudRate: s.baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(s.path, mode)
	if err != nil {
		return fmt.Errorf("%s: failed to open %s: %w", s.component, s.path, err)
	}
	if err := port.SetReadTimeout(readSlice); err != nil {
		port.Close()
		return fmt.Errorf("%s: failed to set timeout on %s: %w", s.component, s.path, err)
	}

	s.mu.Lock()
	s.port = port
	s.mu.Unlock()

	log.Printf("[%s] opened %s at %d baud", s.component, s.path, s.baudRate)

	// Let the adapter boot, then discard whatever it printed.
	time.Sleep(s.settle)
	port.ResetInputBuffer()
	port.ResetOutputBuffer()
	return nil
}

func (s *SerialPort) Write(p []byte) (int, error) {
	s.mu.Lock()
	port := s.port
	s.mu.Unlock()
	if port == nil {
		return 0, fmt.Errorf("%s: port %s not open", s.component, s.path)
	}
	return port.Write(p)
}

// ReadUntil accumulates bytes until terminator or timeout. Reads run in short
// slices so the overall deadline is respected even when the adapter streams
// slowly (SEARCHING... during protocol negotiation can take seconds).
func (s *SerialPort) ReadUntil(terminator byte, timeout time.Duration) ([]byte, bool, error) {
	s.mu.Lock()
	port := s.port
	s.mu.Unlock()
	if port == nil {
		return nil, false, fmt.Errorf("%s: port %s not open", s.component, s.path)
	}

	deadline := time.Now().Add(timeout)
	buf := make([]byte, 256)
	out := make([]byte, 0, 256)

	for time.Now().Before(deadline) {
		n, err := port.Read(buf)
		if err != nil {
			return out, false, fmt.Errorf("%s: read failed on %s: %w", s.component, s.path, err)
		}
		if n > 0 {
			out = append(out, buf[:n]...)
			for _, b := range buf[:n] {
				if b == terminator {
					return out, true, nil
				}
			}
		}
	}
	return out, false, nil
}

func (s *SerialPort) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port != nil
}

func (s *SerialPort) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	if err != nil {
		return fmt.Errorf("%s: close %s: %w", s.component, s.path, err)
	}
	log.Printf("[%s] closed %s", s.component, s.path)
	return nil
}
