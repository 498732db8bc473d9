package elm

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// fakePort scripts adapter responses per command for channel and engine
// tests. Unknown commands answer OK.
type fakePort struct {
	mu        sync.Mutex
	open      bool
	responses map[string]string
	sent      []string
	pending   []byte

	readDelay time.Duration // simulates a slow adapter
	noPrompt  bool          // swallow the prompt to force timeouts
	writeErr  error
}

func newFakePort(responses map[string]string) *fakePort {
	return &fakePort{open: true, responses: responses}
}

func (f *fakePort) Name() string      { return "fake" }
func (f *fakePort) Component() string { return "FAKE" }
func (f *fakePort) Connect() error    { f.open = true; return nil }

func (f *fakePort) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

func (f *fakePort) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open = false
	return nil
}

func (f *fakePort) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	if !f.open {
		return 0, fmt.Errorf("fake: closed")
	}
	cmd := strings.TrimSpace(string(p))
	f.sent = append(f.sent, cmd)
	resp, ok := f.responses[cmd]
	if !ok {
		resp = "OK"
	}
	f.pending = append(f.pending, []byte(resp+"\r\r>")...)
	return len(p), nil
}

func (f *fakePort) ReadUntil(terminator byte, timeout time.Duration) ([]byte, bool, error) {
	if f.readDelay > 0 {
		time.Sleep(f.readDelay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.open {
		return nil, false, fmt.Errorf("fake: closed")
	}
	if f.noPrompt {
		out := f.pending
		f.pending = nil
		return out, false, nil
	}
	for i, b := range f.pending {
		if b == terminator {
			out := f.pending[:i+1]
			f.pending = f.pending[i+1:]
			return out, true, nil
		}
	}
	out := f.pending
	f.pending = nil
	return out, false, nil
}

func (f *fakePort) sentCommands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	copy(out, f.sent)
	return out
}

// newTestEngine wraps a fake port in an engine with near-zero settle times.
func newTestEngine(port *fakePort) *Engine {
	e := New(port, Config{
		Settle:      time.Millisecond,
		LockWait:    50 * time.Millisecond,
		ReadTimeout: 100 * time.Millisecond,
		InitTimeout: 100 * time.Millisecond,
	})
	e.resetSettle = time.Millisecond
	return e
}
