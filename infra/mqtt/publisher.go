// Package mqtt publishes scheduling events to an MQTT broker so other
// systems can observe slot decisions and task runs.
package mqtt

import (
	"encoding/json"
	"fmt"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/loadshift/loadshift/core/schedule"
	"github.com/loadshift/loadshift/infra/logger"
)

// Config defines the connection parameters for the event publisher.
type Config struct {
	Enabled  bool   `json:"enabled"`
	Broker   string `json:"broker"`
	ClientID string `json:"client_id"`
	Topic    string `json:"topic"`
	Username string `json:"username"`
	Password string `json:"password"`
	QoS      byte   `json:"qos"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.ClientID == "" {
		c.ClientID = "loadshift"
	}
	if c.Topic == "" {
		c.Topic = "loadshift/events"
	}
}

// Validate checks required fields when the publisher is enabled.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Broker == "" {
		return fmt.Errorf("mqtt enabled but no broker configured")
	}
	if c.QoS > 2 {
		return fmt.Errorf("mqtt qos must be 0, 1 or 2")
	}
	return nil
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// Publisher implements schedule.Publisher over Eclipse Paho.
type Publisher struct {
	cli   pahoClient
	topic string
	qos   byte
	log   logger.Logger
}

// NewPublisher connects to the broker. The configured client id gets a
// random suffix so several schedulers can share one config file.
func NewPublisher(cfg Config) (*Publisher, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := logger.New("mqtt-publisher")
	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID + "-" + uuid.NewString()[:8])
	opts.AutoReconnect = true
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}

	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return &Publisher{cli: c, topic: cfg.Topic, qos: cfg.QoS, log: log}, nil
}

// Publish marshals the event as JSON and sends it on the configured topic.
func (p *Publisher) Publish(ev schedule.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	token := p.cli.Publish(p.topic, p.qos, false, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", p.topic, err)
	}
	p.log.Debugf("published %s event to %s", ev.Type, p.topic)
	return nil
}

// Close gracefully disconnects from the broker.
func (p *Publisher) Close() {
	if p.cli != nil && p.cli.IsConnected() {
		p.cli.Disconnect(250)
	}
}
