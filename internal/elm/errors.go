package elm

import (
	"errors"
	"fmt"
)

// ErrNoData marks a PID the vehicle does not support (adapter replied
// NO DATA). This is an expected condition, not a failure: bulk scans map it
// to a missing snapshot entry.
var ErrNoData = errors.New("no data")

// Streaming lifecycle errors.
var (
	ErrAlreadyRunning = errors.New("realtime stream already running")
	ErrNotRunning     = errors.New("realtime stream not running")
	// ErrStopTimeout means the loop goroutine did not drain within the stop
	// timeout; the stop barrier does not hold and StopRealtime may be
	// retried once the in-flight cycle finishes.
	ErrStopTimeout = errors.New("realtime stream did not stop in time")
)

// ChannelErrKind classifies command channel failures.
type ChannelErrKind int

const (
	// ChannelTimeout means the adapter prompt never arrived in time.
	ChannelTimeout ChannelErrKind = iota
	// ChannelClosed means the transport reported disconnection mid-exchange.
	ChannelClosed
	// ChannelBusy means exclusive channel access could not be acquired
	// within the bounded wait (another command or the stream loop holds it).
	ChannelBusy
)

// ChannelError is a command channel failure. Component carries the transport
// tag ("USB", "BT") so the CLI can render [COMPONENT][ERROR] without
// re-deriving it.
type ChannelError struct {
	Kind      ChannelErrKind
	Op        string // command in flight
	Component string
	Err       error
}

func (e *ChannelError) Error() string {
	switch e.Kind {
	case ChannelClosed:
		if e.Err != nil {
			return fmt.Sprintf("command %q: transport closed: %v", e.Op, e.Err)
		}
		return fmt.Sprintf("command %q: transport closed", e.Op)
	case ChannelBusy:
		return fmt.Sprintf("command %q: channel busy", e.Op)
	default:
		return fmt.Sprintf("command %q: timeout waiting for prompt", e.Op)
	}
}

func (e *ChannelError) Unwrap() error { return e.Err }

// IsTimeout reports whether err is a channel timeout.
func IsTimeout(err error) bool {
	var ce *ChannelError
	return errors.As(err, &ce) && ce.Kind == ChannelTimeout
}

// IsClosed reports whether err is a transport disconnection.
func IsClosed(err error) bool {
	var ce *ChannelError
	return errors.As(err, &ce) && ce.Kind == ChannelClosed
}

// IsBusy reports whether err is a channel contention failure.
func IsBusy(err error) bool {
	var ce *ChannelError
	return errors.As(err, &ce) && ce.Kind == ChannelBusy
}

// InitStep identifies one transition of the adapter handshake.
type InitStep int

const (
	StepReset InitStep = iota
	StepEchoOff
	StepLinefeedsOff
	StepHeadersOff
	StepSpacesOff
	StepAutoProtocol
)

func (s InitStep) String() string {
	switch s {
	case StepReset:
		return "reset"
	case StepEchoOff:
		return "echo-off"
	case StepLinefeedsOff:
		return "linefeeds-off"
	case StepHeadersOff:
		return "headers-off"
	case StepSpacesOff:
		return "spaces-off"
	case StepAutoProtocol:
		return "auto-protocol"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}

// InitError is a failed handshake transition. A later command issued against
// a half-configured adapter corrupts data, so the handshake aborts here.
type InitError struct {
	Step     InitStep
	Response string // what the adapter said, if anything
	Err      error
}

func (e *InitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("init %s: %v", e.Step, e.Err)
	}
	return fmt.Sprintf("init %s: unexpected response %q", e.Step, e.Response)
}

func (e *InitError) Unwrap() error { return e.Err }

// ParseErrKind classifies response decode failures.
type ParseErrKind int

const (
	ParseUnexpectedLength ParseErrKind = iota
	ParseMalformedFrame
)

// ParseError is a response that could not be decoded for the requested PID.
type ParseError struct {
	Kind ParseErrKind
	Key  string // sensor key being decoded
	Got  int    // data bytes found (UnexpectedLength)
	Want int    // data bytes declared by the definition
	Raw  string // offending response text
}

func (e *ParseError) Error() string {
	if e.Kind == ParseUnexpectedLength {
		return fmt.Sprintf("parse %s: got %d data bytes, want %d", e.Key, e.Got, e.Want)
	}
	return fmt.Sprintf("parse %s: no matching frame in %q", e.Key, e.Raw)
}

// ProtocolError is an adapter-level refusal: it answered "?" or could not
// reach the vehicle bus at all.
type ProtocolError struct {
	Op       string
	Response string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("command %q: adapter error %q", e.Op, e.Response)
}
