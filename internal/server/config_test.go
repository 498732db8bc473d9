package server

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if cfg.Adapter.Type != "demo" {
		t.Errorf("default adapter type = %q, want demo", cfg.Adapter.Type)
	}
	if cfg.Adapter.BaudRate != 38400 {
		t.Errorf("default baud = %d, want 38400", cfg.Adapter.BaudRate)
	}
	if cfg.Poll.IntervalMs != 1000 {
		t.Errorf("default poll interval = %d, want 1000", cfg.Poll.IntervalMs)
	}
	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("default listen addr = %q, want :8080", cfg.Server.ListenAddr)
	}
}

func TestLoadConfigYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
adapter:
  type: usb
  port_path: /dev/ttyUSB1
  baud_rate: 115200
poll:
  interval_ms: 500
  pids: [RPM, SPEED]
server:
  listen_addr: ":9090"
`
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := LoadConfig(path)
	if cfg.Adapter.Type != "usb" || cfg.Adapter.PortPath != "/dev/ttyUSB1" || cfg.Adapter.BaudRate != 115200 {
		t.Errorf("adapter = %+v", cfg.Adapter)
	}
	if cfg.Poll.IntervalMs != 500 || len(cfg.Poll.PIDs) != 2 {
		t.Errorf("poll = %+v", cfg.Poll)
	}
	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("listen addr = %q", cfg.Server.ListenAddr)
	}
	// Sections absent from the file keep their defaults.
	if cfg.Display.Thresholds.CoolantWarn != 105 {
		t.Errorf("coolant threshold = %v, want default 105", cfg.Display.Thresholds.CoolantWarn)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ADAPTER_TYPE", "bluetooth")
	t.Setenv("ADAPTER_PORT", "/dev/rfcomm0")
	t.Setenv("POLL_INTERVAL_MS", "250")
	t.Setenv("MQTT_ENABLED", "true")

	cfg := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if cfg.Adapter.Type != "bluetooth" || cfg.Adapter.PortPath != "/dev/rfcomm0" {
		t.Errorf("adapter = %+v", cfg.Adapter)
	}
	if cfg.Poll.IntervalMs != 250 {
		t.Errorf("poll interval = %d, want 250", cfg.Poll.IntervalMs)
	}
	if !cfg.Telemetry.Enabled {
		t.Error("MQTT_ENABLED=true not applied")
	}
}

func TestUpdateFromJSONPreservesUnpatchedFields(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Adapter.PortPath = "/dev/ttyUSB7"

	patch := []byte(`{"display":{"thresholds":{"rpmWarn":6000}}}`)
	if err := cfg.UpdateFromJSON(patch); err != nil {
		t.Fatalf("UpdateFromJSON: %v", err)
	}
	if cfg.Display.Thresholds.RPMWarn != 6000 {
		t.Errorf("rpmWarn = %v, want 6000", cfg.Display.Thresholds.RPMWarn)
	}
	if cfg.Adapter.PortPath != "/dev/ttyUSB7" {
		t.Errorf("unpatched field lost: %q", cfg.Adapter.PortPath)
	}
}
