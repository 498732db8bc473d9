package transport

import "time"

// Port is the byte-level connection to an ELM327 adapter. The engine only
// ever talks to a Port; whether the other end is a USB cable or a Bluetooth
// SPP link is decided here.
type Port interface {
	// Name returns the device path (e.g. /dev/ttyUSB0, /dev/rfcomm0).
	Name() string
	// Component returns the short tag used in user-facing errors ("USB", "BT").
	Component() string
	// Connect opens the device and waits for the adapter to settle.
	Connect() error
	// Write sends raw bytes to the adapter.
	Write(p []byte) (int, error)
	// ReadUntil reads until terminator is seen or timeout elapses. The
	// returned bytes include everything read, terminator included when found.
	// A timeout is not an error: callers decide whether a partial read is
	// acceptable. found reports whether the terminator was seen.
	ReadUntil(terminator byte, timeout time.Duration) (data []byte, found bool, err error)
	// IsOpen reports whether the device is currently open.
	IsOpen() bool
	// Disconnect closes the device.
	Disconnect() error
}
