package elm

import (
	"strings"
	"time"

	"github.com/shaunagostinho/obd2dash/internal/transport"
)

// prompt is the ELM327 ready marker terminating every response.
const prompt = '>'

const (
	// defaultSettle is the adapter-imposed minimum pause between writing a
	// command and the first read attempt.
	defaultSettle = 300 * time.Millisecond
	// defaultLockWait bounds how long a caller waits for exclusive channel
	// access before failing with ChannelBusy.
	defaultLockWait = 2 * time.Second
)

// Channel serializes textual commands over the transport. The adapter is a
// half-duplex conversational device: a response cannot be attributed if two
// commands interleave, so at most one command is in flight at a time.
type Channel struct {
	port   transport.Port
	settle time.Duration
	wait   time.Duration
	tok    chan struct{} // exclusive-access token
}

// ChannelConfig tunes the command channel. Zero values pick defaults.
type ChannelConfig struct {
	Settle   time.Duration // post-write settle before first read
	LockWait time.Duration // bounded wait for exclusive access
}

// NewChannel wraps port in a command channel.
func NewChannel(port transport.Port, cfg ChannelConfig) *Channel {
	if cfg.Settle == 0 {
		cfg.Settle = defaultSettle
	}
	if cfg.LockWait == 0 {
		cfg.LockWait = defaultLockWait
	}
	c := &Channel{
		port:   port,
		settle: cfg.Settle,
		wait:   cfg.LockWait,
		tok:    make(chan struct{}, 1),
	}
	c.tok <- struct{}{}
	return c
}

// Component returns the transport tag for error rendering.
func (c *Channel) Component() string { return c.port.Component() }

// Send transmits one command and returns the cleaned response text.
//
// The command is trimmed and a single carriage return appended; nothing else
// ever adds the terminator. After writing, the channel sleeps the settle
// interval, then reads until the adapter prompt or timeout. The echo (if the
// adapter still echoes) and the prompt are stripped. Non-data responses such
// as NO DATA or SEARCHING... pass through literally: interpretation belongs
// to the caller. No retries happen here.
func (c *Channel) Send(cmd string, timeout time.Duration) (string, error) {
	cmd = strings.TrimSpace(cmd)

	select {
	case <-c.tok:
	case <-time.After(c.wait):
		return "", &ChannelError{Kind: ChannelBusy, Op: cmd, Component: c.Component()}
	}
	defer func() { c.tok <- struct{}{} }()

	return c.exchange(cmd, timeout)
}

// Lease is temporary exclusive ownership of the channel, for multi-command
// exchanges (a scan cycle, header toggling around a request) that must not
// interleave with other senders. Release exactly once.
type Lease struct {
	c        *Channel
	released bool
}

// Acquire takes exclusive ownership of the channel until Release. The
// bounded wait and Busy semantics match Send; while a lease is held, every
// other Send or Acquire waits behind it.
func (c *Channel) Acquire(op string) (*Lease, error) {
	select {
	case <-c.tok:
		return &Lease{c: c}, nil
	case <-time.After(c.wait):
		return nil, &ChannelError{Kind: ChannelBusy, Op: op, Component: c.Component()}
	}
}

// Send issues one command under the lease.
func (l *Lease) Send(cmd string, timeout time.Duration) (string, error) {
	return l.c.exchange(strings.TrimSpace(cmd), timeout)
}

// Release returns the channel to other senders.
func (l *Lease) Release() {
	if l.released {
		return
	}
	l.released = true
	l.c.tok <- struct{}{}
}

// exchange runs one write/settle/read round. The caller must hold the
// exclusive-access token.
func (c *Channel) exchange(cmd string, timeout time.Duration) (string, error) {
	if !c.port.IsOpen() {
		return "", &ChannelError{Kind: ChannelClosed, Op: cmd, Component: c.Component()}
	}

	if _, err := c.port.Write([]byte(cmd + "\r")); err != nil {
		return "", &ChannelError{Kind: ChannelClosed, Op: cmd, Component: c.Component(), Err: err}
	}

	time.Sleep(c.settle)

	data, found, err := c.port.ReadUntil(prompt, timeout)
	if err != nil {
		return "", &ChannelError{Kind: ChannelClosed, Op: cmd, Component: c.Component(), Err: err}
	}
	if !found {
		return "", &ChannelError{Kind: ChannelTimeout, Op: cmd, Component: c.Component()}
	}

	return cleanResponse(string(data), cmd), nil
}

// cleanResponse strips the prompt, blank lines and the command echo,
// normalizing line endings to \n.
func cleanResponse(raw, cmd string) string {
	raw = strings.ReplaceAll(raw, "\r", "\n")
	var lines []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(line), string(prompt)))
		if line == "" {
			continue
		}
		// De-echo: adapters with echo enabled repeat the command first.
		if len(lines) == 0 && strings.EqualFold(line, cmd) {
			continue
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
