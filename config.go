package realtime

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default tuning values applied by resolveConfig when a field is left zero.
const (
	DefaultQueueSize        = 1000
	DefaultAuthTimeout      = 10 * time.Second
	DefaultEventAckTimeout  = 30 * time.Second
	DefaultHandshakeTimeout = 10 * time.Second
)

// DefaultReconnectDelays is the reconnect schedule: one entry per attempt,
// each the wait before that attempt.
var DefaultReconnectDelays = []time.Duration{
	5 * time.Second,
	10 * time.Second,
	15 * time.Second,
	20 * time.Second,
	15 * time.Second,
}

// Config holds the configuration for a realtime client.
type Config struct {
	// URL is the WebSocket endpoint (ws:// or wss://).
	// Fallback: REALTIME_URL environment variable.
	URL string

	// Protocols are the WebSocket subprotocols offered during the handshake.
	// Fallback: REALTIME_PROTOCOL environment variable (comma separated).
	Protocols []string

	// SkipAuth disables the authenticate handshake. When false, Connect
	// needs a credential and the connection is only ready once the server
	// accepts it.
	SkipAuth bool

	// QueueSize bounds the outbound queue used while the connection is not ready.
	QueueSize int

	// ReconnectDelays is the wait before each automatic reconnect attempt.
	// Its length is the number of attempts.
	ReconnectDelays []time.Duration

	// RenewInterval, when positive, resends every feed's subscribe message
	// at this interval as a lease renewal.
	RenewInterval time.Duration

	// AuthTimeout bounds the authenticate handshake. Negative waits forever.
	AuthTimeout time.Duration

	// EventAckTimeout bounds SendEventAck. Negative waits until the context ends.
	EventAckTimeout time.Duration

	// HandshakeTimeout bounds the WebSocket opening handshake.
	HandshakeTimeout time.Duration

	// OnOpen is called after every successful dial.
	OnOpen func()

	// OnClose is called when the connection drops without a clean close.
	OnClose func(err error)

	// OnStatus receives connection status notifications.
	OnStatus func(ConnectionStatus)
}

// resolveConfig fills empty fields from environment variables and defaults,
// then validates required fields.
func resolveConfig(cfg Config) (Config, error) {
	if cfg.URL == "" {
		cfg.URL = os.Getenv("REALTIME_URL")
	}
	if len(cfg.Protocols) == 0 {
		if v := os.Getenv("REALTIME_PROTOCOL"); v != "" {
			cfg.Protocols = splitList(v)
		}
	}

	if cfg.QueueSize == 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.ReconnectDelays == nil {
		cfg.ReconnectDelays = append([]time.Duration(nil), DefaultReconnectDelays...)
	}
	if cfg.AuthTimeout == 0 {
		cfg.AuthTimeout = DefaultAuthTimeout
	}
	if cfg.EventAckTimeout == 0 {
		cfg.EventAckTimeout = DefaultEventAckTimeout
	}
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}

	if cfg.URL == "" {
		return cfg, fmt.Errorf("URL is required (set in Config or REALTIME_URL env)")
	}
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return cfg, fmt.Errorf("parse URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return cfg, fmt.Errorf("URL scheme must be ws or wss, got %q", u.Scheme)
	}
	if cfg.QueueSize < 0 {
		return cfg, fmt.Errorf("QueueSize must not be negative")
	}
	for i, d := range cfg.ReconnectDelays {
		if d < 0 {
			return cfg, fmt.Errorf("ReconnectDelays[%d] must not be negative", i)
		}
	}

	return cfg, nil
}

// fileConfig is the YAML shape read by LoadConfig.
type fileConfig struct {
	URL              string   `yaml:"url"`
	Protocols        []string `yaml:"protocols"`
	SkipAuth         bool     `yaml:"skip_auth"`
	QueueSize        int      `yaml:"queue_size"`
	ReconnectDelays  []string `yaml:"reconnect_delays"`
	RenewInterval    string   `yaml:"renew_interval"`
	AuthTimeout      string   `yaml:"auth_timeout"`
	EventAckTimeout  string   `yaml:"event_ack_timeout"`
	HandshakeTimeout string   `yaml:"handshake_timeout"`
}

// LoadConfig reads a YAML configuration file, applies environment overrides
// and defaults, and validates the result.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return Config{}, fmt.Errorf("parsing config file: %w", err)
	}

	cfg, err := fc.toConfig()
	if err != nil {
		return Config{}, fmt.Errorf("parsing config file: %w", err)
	}

	// Environment wins over the file.
	if v := os.Getenv("REALTIME_URL"); v != "" {
		cfg.URL = v
	}
	if v := os.Getenv("REALTIME_PROTOCOL"); v != "" {
		cfg.Protocols = splitList(v)
	}

	resolved, err := resolveConfig(cfg)
	if err != nil {
		return Config{}, fmt.Errorf("validating config: %w", err)
	}
	return resolved, nil
}

func (fc fileConfig) toConfig() (Config, error) {
	cfg := Config{
		URL:       fc.URL,
		Protocols: fc.Protocols,
		SkipAuth:  fc.SkipAuth,
		QueueSize: fc.QueueSize,
	}

	var errs []error
	parse := func(field, v string, dst *time.Duration) {
		if v == "" {
			return
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", field, err))
			return
		}
		*dst = d
	}

	parse("renew_interval", fc.RenewInterval, &cfg.RenewInterval)
	parse("auth_timeout", fc.AuthTimeout, &cfg.AuthTimeout)
	parse("event_ack_timeout", fc.EventAckTimeout, &cfg.EventAckTimeout)
	parse("handshake_timeout", fc.HandshakeTimeout, &cfg.HandshakeTimeout)

	if fc.ReconnectDelays != nil {
		cfg.ReconnectDelays = make([]time.Duration, len(fc.ReconnectDelays))
		for i, v := range fc.ReconnectDelays {
			parse(fmt.Sprintf("reconnect_delays[%d]", i), v, &cfg.ReconnectDelays[i])
		}
	}

	return cfg, errors.Join(errs...)
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
