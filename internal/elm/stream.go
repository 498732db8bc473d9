package elm

import (
	"fmt"
	"log"
	"time"
)

// StreamState is the realtime loop lifecycle.
type StreamState int

const (
	StreamIdle StreamState = iota
	StreamRunning
	StreamStopping
)

func (s StreamState) String() string {
	switch s {
	case StreamRunning:
		return "running"
	case StreamStopping:
		return "stopping"
	default:
		return "idle"
	}
}

// SetStreamKeys restricts realtime scan cycles to the given sensor keys.
// With nil the default subset (all scalar sensors) is polled. Rejected while
// the stream is running.
func (e *Engine) SetStreamKeys(keys []string) error {
	e.streamMu.Lock()
	defer e.streamMu.Unlock()
	if e.streamState != StreamIdle {
		return ErrAlreadyRunning
	}
	for _, k := range keys {
		if _, ok := e.reg.Get(k); !ok {
			return fmt.Errorf("unknown PID key %q", k)
		}
	}
	e.streamKeys = keys
	return nil
}

// StartRealtime launches the background polling loop. Once per interval the
// loop scans the configured sensor subset, assembles one Snapshot and
// delivers it to cb before sleeping whatever remains of the interval (scan
// time is subtracted, never stacked). Per-PID failures degrade to nil
// entries; a closed transport terminates the loop and is reported by
// StreamError.
func (e *Engine) StartRealtime(cb func(*Snapshot), interval time.Duration) error {
	if cb == nil {
		return fmt.Errorf("realtime: nil callback")
	}
	if interval <= 0 {
		return fmt.Errorf("realtime: interval must be positive")
	}

	e.streamMu.Lock()
	defer e.streamMu.Unlock()
	if e.streamState != StreamIdle {
		return ErrAlreadyRunning
	}

	keys := e.streamKeys
	if keys == nil {
		keys = e.reg.StreamKeys()
	}

	e.streamState = StreamRunning
	e.streamErr = nil
	e.stopCh = make(chan struct{})
	e.doneCh = make(chan struct{})

	go e.runStream(cb, interval, keys, e.stopCh, e.doneCh)
	log.Printf("[stream] started (%d sensors, every %v)", len(keys), interval)
	return nil
}

func (e *Engine) runStream(cb func(*Snapshot), interval time.Duration, keys []string, stopCh, doneCh chan struct{}) {
	defer func() {
		e.streamMu.Lock()
		if e.streamState == StreamStopping {
			e.streamState = StreamIdle
		}
		e.streamMu.Unlock()
		close(doneCh)
	}()

	for {
		start := time.Now()

		snap, err := e.scan(keys, stopCh)
		if err != nil {
			if IsClosed(err) {
				e.streamMu.Lock()
				e.streamErr = err
				e.streamState = StreamIdle
				e.streamMu.Unlock()
				log.Printf("[stream] terminated: %v", err)
				return
			}
			// Channel contention: an ad-hoc exchange outlasted the bounded
			// wait. Skip the cycle and try again on schedule.
			log.Printf("[stream] cycle skipped: %v", err)
		} else if snap == nil {
			return // stop requested mid-scan, no partial delivery
		} else {
			select {
			case <-stopCh:
				return
			default:
			}
			cb(snap)
		}

		wait := interval - time.Since(start)
		if wait < 0 {
			wait = 0
		}
		select {
		case <-stopCh:
			return
		case <-time.After(wait):
		}
	}
}

// StopRealtime requests a cooperative stop and blocks until the in-flight
// cycle has been abandoned and the loop goroutine has exited. No callback
// fires after StopRealtime returns nil. Should the loop fail to drain in
// time, ErrStopTimeout is returned and the stream stays in Stopping
// (StartRealtime keeps refusing, StopRealtime may be retried) until the
// goroutine exits on its own.
func (e *Engine) StopRealtime() error {
	e.streamMu.Lock()
	switch e.streamState {
	case StreamRunning:
		e.streamState = StreamStopping
		close(e.stopCh)
	case StreamStopping:
		// A previous stop timed out; wait for the drain again.
	default:
		e.streamMu.Unlock()
		return ErrNotRunning
	}
	doneCh := e.doneCh
	e.streamMu.Unlock()

	select {
	case <-doneCh:
	case <-time.After(e.drain):
		log.Printf("[stream] drain timeout, loop still busy")
		return ErrStopTimeout
	}

	e.streamMu.Lock()
	e.streamState = StreamIdle
	e.streamMu.Unlock()
	log.Printf("[stream] stopped")
	return nil
}

// StreamingState returns the loop lifecycle state.
func (e *Engine) StreamingState() StreamState {
	e.streamMu.Lock()
	defer e.streamMu.Unlock()
	return e.streamState
}

// StreamError returns the terminal error that ended the last stream, if any.
func (e *Engine) StreamError() error {
	e.streamMu.Lock()
	defer e.streamMu.Unlock()
	return e.streamErr
}
