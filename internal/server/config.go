package server

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/shaunagostinho/obd2dash/internal/session"
	"github.com/shaunagostinho/obd2dash/internal/telemetry"
)

// Config holds all dashboard configuration.
type Config struct {
	mu sync.RWMutex

	// Adapter connection
	Adapter AdapterConfig `yaml:"adapter" json:"adapter"`

	// Realtime polling
	Poll PollConfig `yaml:"poll" json:"poll"`

	// Display preferences
	Display DisplayConfig `yaml:"display" json:"display"`

	// CSV recording
	Logging session.RecorderConfig `yaml:"logging" json:"logging"`

	// MQTT telemetry
	Telemetry telemetry.Config `yaml:"telemetry" json:"telemetry"`

	// Persistent store
	Store StoreConfig `yaml:"store" json:"store"`

	// Server
	Server ServerConfig `yaml:"server" json:"server"`

	path string // file path for save/load
}

type AdapterConfig struct {
	Type     string `yaml:"type" json:"type"`          // "usb", "bluetooth" or "demo"
	PortPath string `yaml:"port_path" json:"portPath"` // e.g. /dev/ttyUSB0
	BaudRate int    `yaml:"baud_rate" json:"baudRate"`
	Protocol int    `yaml:"protocol" json:"protocol"` // 0 = automatic negotiation
}

type PollConfig struct {
	IntervalMs int      `yaml:"interval_ms" json:"intervalMs"`
	PIDs       []string `yaml:"pids" json:"pids"` // empty = all streamable sensors
}

type DisplayConfig struct {
	Units      UnitsConfig     `yaml:"units" json:"units"`
	Thresholds ThresholdConfig `yaml:"thresholds" json:"thresholds"`
	Layout     string          `yaml:"layout" json:"layout"` // "grid", "gauges", "minimal"
}

type UnitsConfig struct {
	Temperature string `yaml:"temperature" json:"temperature"` // "C" or "F"
	Pressure    string `yaml:"pressure" json:"pressure"`       // "kpa", "psi", "bar"
	Speed       string `yaml:"speed" json:"speed"`             // "kph" or "mph"
}

type ThresholdConfig struct {
	RPMWarn     float64 `yaml:"rpm_warn" json:"rpmWarn"`
	RPMDanger   float64 `yaml:"rpm_danger" json:"rpmDanger"`
	CoolantWarn float64 `yaml:"coolant_warn" json:"coolantWarn"` // °C
	IATWarn     float64 `yaml:"iat_warn" json:"iatWarn"`         // °C
	BattLow     float64 `yaml:"batt_low" json:"battLow"`
	BattHigh    float64 `yaml:"batt_high" json:"battHigh"`
}

type StoreConfig struct {
	Path string `yaml:"path" json:"path"`
}

type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr" json:"listenAddr"`
	Kiosk      bool   `yaml:"kiosk" json:"kiosk"` // Auto-launch Chromium
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Adapter: AdapterConfig{
			Type:     "demo",
			PortPath: "/dev/ttyUSB0",
			BaudRate: 38400,
			Protocol: 0,
		},
		Poll: PollConfig{
			IntervalMs: 1000,
			PIDs:       nil,
		},
		Display: DisplayConfig{
			Units: UnitsConfig{
				Temperature: "C",
				Pressure:    "kpa",
				Speed:       "kph",
			},
			Thresholds: ThresholdConfig{
				RPMWarn:     5500,
				RPMDanger:   6500,
				CoolantWarn: 105,
				IATWarn:     60,
				BattLow:     12.0,
				BattHigh:    15.5,
			},
			Layout: "grid",
		},
		Logging: session.RecorderConfig{
			Enabled:    false,
			Path:       "/var/log/obd2dash",
			IntervalMs: 1000,
		},
		Telemetry: telemetry.Config{
			Enabled:    false,
			Broker:     "tcp://localhost:1883",
			ClientID:   "obd2dash",
			Topic:      "vehicle/obd2",
			IntervalMs: 10000,
		},
		Store: StoreConfig{
			Path: "/var/lib/obd2dash/obd2dash.db",
		},
		Server: ServerConfig{
			ListenAddr: ":8080",
			Kiosk:      false,
		},
	}
}

// LoadConfig reads config from a YAML file, then applies .env and environment
// variable overrides. Falls back to defaults if YAML not found.
func LoadConfig(path string) *Config {
	cfg := DefaultConfig()
	cfg.path = path

	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("[config] no config at %s, using defaults", path)
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		log.Printf("[config] error parsing %s: %v, using defaults", path, err)
		cfg = DefaultConfig()
		cfg.path = path
	} else {
		log.Printf("[config] loaded from %s", path)
	}

	// Load .env file from the same directory as the config, or from CWD
	envPaths := []string{
		filepath.Join(filepath.Dir(path), ".env"),
		".env",
	}
	for _, ep := range envPaths {
		loadEnvFile(ep)
	}

	cfg.applyEnvOverrides()
	return cfg
}

// loadEnvFile reads a simple KEY=VALUE .env file and sets os env vars.
func loadEnvFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	log.Printf("[config] loading .env from %s", path)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])
		val = strings.Trim(val, `"'`)
		// Real env takes precedence
		if os.Getenv(key) == "" {
			os.Setenv(key, val)
		}
	}
}

// applyEnvOverrides reads environment variables and overrides config values.
// Supported: ADAPTER_TYPE, ADAPTER_PORT, ADAPTER_BAUD, OBD_PROTOCOL,
// POLL_INTERVAL_MS, LISTEN_ADDR, TEMP_UNIT, SPEED_UNIT, LOG_ENABLED,
// LOG_PATH, MQTT_ENABLED, MQTT_BROKER, MQTT_TOPIC, STORE_PATH
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("ADAPTER_TYPE"); v != "" {
		c.Adapter.Type = v
	}
	if v := os.Getenv("ADAPTER_PORT"); v != "" {
		c.Adapter.PortPath = v
	}
	if v := os.Getenv("ADAPTER_BAUD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Adapter.BaudRate = n
		}
	}
	if v := os.Getenv("OBD_PROTOCOL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Adapter.Protocol = n
		}
	}
	if v := os.Getenv("POLL_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Poll.IntervalMs = n
		}
	}
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		c.Server.ListenAddr = v
	}
	if v := os.Getenv("TEMP_UNIT"); v != "" {
		c.Display.Units.Temperature = v
	}
	if v := os.Getenv("SPEED_UNIT"); v != "" {
		c.Display.Units.Speed = v
	}
	if v := os.Getenv("LOG_ENABLED"); v != "" {
		c.Logging.Enabled = v == "1" || v == "true" || v == "yes"
	}
	if v := os.Getenv("LOG_PATH"); v != "" {
		c.Logging.Path = v
	}
	if v := os.Getenv("MQTT_ENABLED"); v != "" {
		c.Telemetry.Enabled = v == "1" || v == "true" || v == "yes"
	}
	if v := os.Getenv("MQTT_BROKER"); v != "" {
		c.Telemetry.Broker = v
	}
	if v := os.Getenv("MQTT_TOPIC"); v != "" {
		c.Telemetry.Topic = v
	}
	if v := os.Getenv("STORE_PATH"); v != "" {
		c.Store.Path = v
	}
}

// Save writes the config to its YAML file.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.path == "" {
		c.path = "/etc/obd2dash/config.yaml"
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(c.path, data, 0644)
}

// ToJSON serializes config for the API.
func (c *Config) ToJSON() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return json.Marshal(c)
}

// UpdateFromJSON applies a partial JSON config update by deep-merging
// incoming fields into the existing config. Fields not present in the
// incoming JSON are preserved (e.g. port paths, baud rates, logging).
func (c *Config) UpdateFromJSON(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	currentBytes, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal current config: %w", err)
	}
	var base map[string]interface{}
	if err := json.Unmarshal(currentBytes, &base); err != nil {
		return fmt.Errorf("unmarshal current config: %w", err)
	}

	var patch map[string]interface{}
	if err := json.Unmarshal(data, &patch); err != nil {
		return fmt.Errorf("unmarshal patch: %w", err)
	}

	deepMerge(base, patch)

	merged, err := json.Marshal(base)
	if err != nil {
		return fmt.Errorf("marshal merged config: %w", err)
	}
	return json.Unmarshal(merged, c)
}

// deepMerge recursively merges src into dst. For nested maps, values are
// merged rather than replaced. For all other types, src overwrites dst.
func deepMerge(dst, src map[string]interface{}) {
	for key, srcVal := range src {
		if srcMap, ok := srcVal.(map[string]interface{}); ok {
			if dstMap, ok := dst[key].(map[string]interface{}); ok {
				deepMerge(dstMap, srcMap)
				continue
			}
		}
		dst[key] = srcVal
	}
}
