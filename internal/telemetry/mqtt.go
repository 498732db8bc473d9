package telemetry

import (
	"encoding/json"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	defaultBroker   = "tcp://localhost:1883"
	defaultClientID = "obd2dash"
	defaultTopic    = "vehicle/obd2"
	defaultInterval = 10 * time.Second
)

// Config holds MQTT publisher settings.
type Config struct {
	Enabled    bool   `yaml:"enabled" json:"enabled"`
	Broker     string `yaml:"broker" json:"broker"`
	ClientID   string `yaml:"client_id" json:"clientId"`
	Topic      string `yaml:"topic" json:"topic"`
	Username   string `yaml:"username" json:"username"`
	Password   string `yaml:"password" json:"-"`
	IntervalMs int    `yaml:"interval_ms" json:"intervalMs"`
}

// Publisher periodically publishes vehicle data to an MQTT broker. The data
// source is polled on each tick; a nil payload skips the tick.
type Publisher struct {
	cfg      Config
	interval time.Duration
	client   mqtt.Client
	stopCh   chan struct{}
	source   func() any
}

// NewPublisher creates a publisher reading payloads from source.
func NewPublisher(cfg Config, source func() any) *Publisher {
	if cfg.Broker == "" {
		cfg.Broker = defaultBroker
	}
	if cfg.ClientID == "" {
		cfg.ClientID = defaultClientID
	}
	if cfg.Topic == "" {
		cfg.Topic = defaultTopic
	}
	interval := time.Duration(cfg.IntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Publisher{
		cfg:      cfg,
		interval: interval,
		stopCh:   make(chan struct{}),
		source:   source,
	}
}

// Connect establishes the broker session with auto-reconnect.
func (p *Publisher) Connect() error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(p.cfg.Broker)
	opts.SetClientID(p.cfg.ClientID)
	if p.cfg.Username != "" {
		opts.SetUsername(p.cfg.Username)
		opts.SetPassword(p.cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Printf("[mqtt] connected to %s", p.cfg.Broker)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Printf("[mqtt] connection lost: %v", err)
	})

	p.client = mqtt.NewClient(opts)
	if token := p.client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	return nil
}

// Start begins periodic publishing in the background.
func (p *Publisher) Start() {
	log.Printf("[mqtt] publishing to %s every %v", p.cfg.Topic, p.interval)
	go func() {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-p.stopCh:
				return
			case <-ticker.C:
				p.publish()
			}
		}
	}()
}

// Stop halts publishing and disconnects from the broker.
func (p *Publisher) Stop() {
	close(p.stopCh)
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(250)
	}
}

func (p *Publisher) publish() {
	payload := p.source()
	if payload == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[mqtt] marshal failed: %v", err)
		return
	}
	token := p.client.Publish(p.cfg.Topic, 0, false, data)
	if token.Wait() && token.Error() != nil {
		log.Printf("[mqtt] publish failed: %v", token.Error())
	}
}
