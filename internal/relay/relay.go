// Package relay forwards realtime feed payloads to an MQTT broker.
package relay

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultPublishTimeout = 5 * time.Second
	disconnectQuiesce     = 250 // milliseconds
	maxQoS                = 2
)

var (
	ErrNoBroker      = errors.New("relay: broker URL is required")
	ErrInvalidQoS    = errors.New("relay: QoS must be 0, 1 or 2")
	ErrConnectFailed = errors.New("relay: connect failed")
	ErrPublishFailed = errors.New("relay: publish failed")
	ErrNotConnected  = errors.New("relay: not connected")
)

// Config describes the target broker.
type Config struct {
	Broker      string // tcp://host:1883 or ssl://host:8883
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string // prepended to every MQTT topic
	QoS         byte
	Retained    bool
}

func (c Config) validate() error {
	if c.Broker == "" {
		return ErrNoBroker
	}
	if c.QoS > maxQoS {
		return ErrInvalidQoS
	}
	return nil
}

// Relay publishes to MQTT. Safe for concurrent use.
type Relay struct {
	client pahomqtt.Client
	cfg    Config
	log    *slog.Logger
}

func clientOptions(cfg Config) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	if cfg.ClientID != "" {
		opts.SetClientID(cfg.ClientID)
	}
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(defaultConnectTimeout)
	return opts
}

// Connect dials the broker and waits for the connection.
func Connect(cfg Config, log *slog.Logger) (*Relay, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	r := &Relay{cfg: cfg, log: log.With("component", "relay", "broker", cfg.Broker)}

	opts := clientOptions(cfg)
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		r.log.Warn("mqtt connection lost", "error", err)
	})
	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		r.log.Info("mqtt connected")
	})

	r.client = pahomqtt.NewClient(opts)
	token := r.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}
	return r, nil
}

// Forward publishes payload under the MQTT topic derived from a realtime
// (namespace, topic) pair.
func (r *Relay) Forward(namespace, topic string, payload []byte) error {
	if !r.client.IsConnectionOpen() {
		return ErrNotConnected
	}

	target := Topic(r.cfg.TopicPrefix, namespace, topic)
	token := r.client.Publish(target, r.cfg.QoS, r.cfg.Retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	r.log.Debug("forwarded", "mqtt_topic", target, "bytes", len(payload))
	return nil
}

// Close disconnects after letting in-flight publishes finish.
func (r *Relay) Close() {
	r.client.Disconnect(disconnectQuiesce)
}

// Topic maps a realtime namespace and topic to an MQTT topic: the segments
// are joined with "/" and empty segments dropped. MQTT wildcards are not
// valid in a publish topic and are replaced with "_".
func Topic(prefix, namespace, topic string) string {
	var parts []string
	for _, s := range []string{prefix, namespace, topic} {
		for _, seg := range strings.Split(s, "/") {
			if seg != "" {
				parts = append(parts, strings.NewReplacer("+", "_", "#", "_").Replace(seg))
			}
		}
	}
	return strings.Join(parts, "/")
}
