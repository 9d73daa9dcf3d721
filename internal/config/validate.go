package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate checks that all required fields are set and values are valid.
func (c *ClientConfig) Validate() error {
	if c.Relay.URL == "" {
		return errors.New("relay.url is required")
	}
	u, err := url.Parse(c.Relay.URL)
	if err != nil {
		return fmt.Errorf("relay.url is not a valid URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("relay.url scheme must be ws or wss, got %q", u.Scheme)
	}

	if c.Relay.Token == "" {
		return errors.New("relay.token is required")
	}
	if c.Relay.ReadBufferSize < 1 {
		return errors.New("relay.read_buffer_size must be >= 1")
	}
	if c.Relay.HandshakeTimeout <= 0 {
		return errors.New("relay.handshake_timeout must be > 0")
	}
	if c.Relay.WriteTimeout <= 0 {
		return errors.New("relay.write_timeout must be > 0")
	}
	if c.Publish.URL != "" {
		pu, err := url.Parse(c.Publish.URL)
		if err != nil {
			return fmt.Errorf("publish.url is not a valid URL: %w", err)
		}
		if pu.Scheme != "http" && pu.Scheme != "https" {
			return fmt.Errorf("publish.url scheme must be http or https, got %q", pu.Scheme)
		}
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug/info/warn/error, got %q", c.Logging.Level)
	}

	return nil
}
