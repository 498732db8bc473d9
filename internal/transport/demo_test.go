package transport

import (
	"strings"
	"testing"
	"time"
)

func send(t *testing.T, d *DemoPort, cmd string) string {
	t.Helper()
	if _, err := d.Write([]byte(cmd + "\r")); err != nil {
		t.Fatalf("Write(%q): %v", cmd, err)
	}
	data, found, err := d.ReadUntil('>', time.Second)
	if err != nil {
		t.Fatalf("ReadUntil after %q: %v", cmd, err)
	}
	if !found {
		t.Fatalf("no prompt after %q", cmd)
	}
	return strings.TrimSpace(strings.TrimSuffix(string(data), ">"))
}

func TestDemoPortHandshake(t *testing.T) {
	d := NewDemoPort()
	if err := d.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if got := send(t, d, "AT Z"); !strings.Contains(got, "ELM327") {
		t.Errorf("AT Z = %q, want version banner", got)
	}
	for _, cmd := range []string{"AT E0", "AT L0", "AT H0", "AT S0", "AT SP 0"} {
		if got := send(t, d, cmd); !strings.Contains(got, "OK") {
			t.Errorf("%s = %q, want OK", cmd, got)
		}
	}
}

func TestDemoPortLiveData(t *testing.T) {
	d := NewDemoPort()
	d.Connect()
	resp := send(t, d, "010C")
	if !strings.HasPrefix(resp, "41 0C ") {
		t.Errorf("010C = %q, want 41 0C prefix", resp)
	}
	if got := send(t, d, "012F"); got != "41 2F 9E" {
		t.Errorf("fuel level = %q, want 41 2F 9E", got)
	}
	if got := send(t, d, "015C"); got != "NO DATA" {
		t.Errorf("unsupported PID = %q, want NO DATA", got)
	}
	if got := send(t, d, "01ZZ"); got != "?" {
		t.Errorf("garbage command = %q, want ?", got)
	}
	if got := send(t, d, "02ZZ00"); got != "?" {
		t.Errorf("garbage freeze command = %q, want ?", got)
	}
}

func TestDemoPortDTCRoundtrip(t *testing.T) {
	d := NewDemoPort()
	d.Connect()

	if got := send(t, d, "03"); got != "43 01 01 20 23" {
		t.Errorf("mode 03 = %q", got)
	}
	send(t, d, "04")
	if got := send(t, d, "03"); got != "43 00 00" {
		t.Errorf("mode 03 after clear = %q, want empty store", got)
	}
}

func TestDemoPortClosed(t *testing.T) {
	d := NewDemoPort()
	if _, err := d.Write([]byte("AT Z\r")); err == nil {
		t.Error("write on closed port must error")
	}
	if _, _, err := d.ReadUntil('>', time.Second); err == nil {
		t.Error("read on closed port must error")
	}
}
