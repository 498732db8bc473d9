package elm

import (
	"log"
	"strings"
	"time"

	"github.com/shaunagostinho/obd2dash/internal/obd"
)

// resetSettle gives the chip time to reboot after AT Z before the next
// handshake command.
const resetSettle = 1 * time.Second

// initSequence is the fixed adapter handshake, strictly ordered. Every
// transition is one AT command that must be positively acknowledged; there
// is no skip-ahead, because a command issued against a half-configured
// adapter produces corrupted rather than merely empty data.
var initSequence = []struct {
	step InitStep
	cmd  string
	ack  func(resp string) bool
}{
	{StepReset, obd.CmdReset, ackReset},
	{StepEchoOff, obd.CmdEchoOff, ackOK},
	{StepLinefeedsOff, obd.CmdLinefeedsOff, ackOK},
	{StepHeadersOff, obd.CmdHeadersOff, ackOK},
	{StepSpacesOff, obd.CmdSpacesOff, ackOK},
	{StepAutoProtocol, obd.CmdAutoProtocol, ackOK},
}

func ackOK(resp string) bool {
	return strings.Contains(strings.ToUpper(resp), "OK")
}

// ackReset accepts the version banner ("ELM327 v1.5") clones print instead
// of OK.
func ackReset(resp string) bool {
	up := strings.ToUpper(resp)
	return strings.Contains(up, "ELM") || strings.Contains(up, "OK")
}

// Initialize drives the adapter through the full handshake:
//
//	Disconnected → Reset → EchoOff → LinefeedsOff → HeadersOff →
//	SpacesOff → AutoProtocol → Ready
//
// Calling it again always restarts from Reset, even when already Ready: the
// re-handshake is idempotent and issues the identical command sequence.
func (e *Engine) Initialize() error {
	e.mu.Lock()
	e.ready = false
	e.mu.Unlock()

	for _, s := range initSequence {
		resp, err := e.ch.Send(s.cmd, e.initTimeout)
		if err != nil {
			return &InitError{Step: s.step, Err: err}
		}
		if !s.ack(resp) {
			return &InitError{Step: s.step, Response: resp}
		}
		log.Printf("[elm] init %s ok", s.step)
		if s.step == StepReset {
			time.Sleep(e.resetSettle)
		}
	}

	e.mu.Lock()
	e.ready = true
	e.mu.Unlock()
	return nil
}

// Ready reports whether the handshake has completed since the last
// Initialize call.
func (e *Engine) Ready() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ready
}
