package config

import (
	"github.com/signalpath/relay/internal/connection"
)

// ClientConfig is the root configuration for a relay client.
type ClientConfig struct {
	Relay   RelayConfig   `yaml:"relay"`
	Publish PublishConfig `yaml:"publish"`
	Logging LoggingConfig `yaml:"logging"`
}

// RelayConfig holds the streaming connection settings.
type RelayConfig struct {
	URL              string   `yaml:"url"`               // e.g. wss://relay.example.com
	Token            string   `yaml:"token"`             // relay auth token
	ClientUUID       string   `yaml:"client_uuid"`       // generated per instance when empty
	Channel          string   `yaml:"channel"`           // channel to subscribe after handshake
	HandshakeTimeout Duration `yaml:"handshake_timeout"`
	WriteTimeout     Duration `yaml:"write_timeout"`
	ReadBufferSize   int      `yaml:"read_buffer_size"`
	ReconnectTimeout Duration `yaml:"reconnect_timeout"` // negative disables the last-chance timer
	ErrorBackoff     Duration `yaml:"error_backoff"`     // negative disables retry after a failed connect
	HealthInterval   Duration `yaml:"health_interval"`
	SubscribeTimeout Duration `yaml:"subscribe_timeout"`
}

// PublishConfig holds the broadcast publish endpoint settings.
type PublishConfig struct {
	URL     string   `yaml:"url"`
	Token   string   `yaml:"token"` // falls back to relay.token when empty
	Timeout Duration `yaml:"timeout"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// ConnectionConfig converts the relay section into the core's config.
// The core treats zero as "disabled" for the reconnect timeout and the
// error backoff; the config layer spells disabled as a negative value
// so that an omitted field can still take the default.
func (c *RelayConfig) ConnectionConfig() connection.ClientConfig {
	reconnectTimeout := max(c.ReconnectTimeout.Std(), 0)
	errorBackoff := max(c.ErrorBackoff.Std(), 0)
	return connection.ClientConfig{
		URL:              c.URL,
		Token:            c.Token,
		ClientUUID:       c.ClientUUID,
		HandshakeTimeout: c.HandshakeTimeout.Std(),
		WriteTimeout:     c.WriteTimeout.Std(),
		ReadBufferSize:   c.ReadBufferSize,
		ReconnectTimeout: reconnectTimeout,
		ErrorBackoff:     errorBackoff,
		HealthInterval:   c.HealthInterval.Std(),
		SubscribeTimeout: c.SubscribeTimeout.Std(),
	}
}
