package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultWriteTimeout     = 5 * time.Second
	DefaultReadBufferSize   = 4096
	DefaultReconnectTimeout = 60 * time.Second
	DefaultErrorBackoff     = 5 * time.Second
	DefaultHealthInterval   = 1 * time.Second
	DefaultSubscribeTimeout = 30 * time.Second
	DefaultPublishTimeout   = 30 * time.Second
	DefaultLogLevel         = "info"
)

func (c *ClientConfig) applyDefaults() {
	if c.Relay.HandshakeTimeout == 0 {
		c.Relay.HandshakeTimeout = Duration(DefaultHandshakeTimeout)
	}
	if c.Relay.WriteTimeout == 0 {
		c.Relay.WriteTimeout = Duration(DefaultWriteTimeout)
	}
	if c.Relay.ReadBufferSize == 0 {
		c.Relay.ReadBufferSize = DefaultReadBufferSize
	}
	if c.Relay.ReconnectTimeout == 0 {
		c.Relay.ReconnectTimeout = Duration(DefaultReconnectTimeout)
	}
	if c.Relay.ErrorBackoff == 0 {
		c.Relay.ErrorBackoff = Duration(DefaultErrorBackoff)
	}
	if c.Relay.HealthInterval == 0 {
		c.Relay.HealthInterval = Duration(DefaultHealthInterval)
	}
	if c.Relay.SubscribeTimeout == 0 {
		c.Relay.SubscribeTimeout = Duration(DefaultSubscribeTimeout)
	}

	if c.Publish.Token == "" {
		c.Publish.Token = c.Relay.Token
	}
	if c.Publish.Timeout == 0 {
		c.Publish.Timeout = Duration(DefaultPublishTimeout)
	}

	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
}
