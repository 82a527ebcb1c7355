package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultListenAddr           = ":8080"
	DefaultWritePath            = "/ws"
	DefaultWriteTimeout         = 5 * time.Second
	DefaultPingTimeout          = 60 * time.Second
	DefaultBufferSize           = 1024
	DefaultDBPort               = 5432
	DefaultDBSSLMode            = "prefer"
	DefaultMaxConns             = 10
	DefaultMinConns             = 2
	DefaultTimezone             = "UTC"
	DefaultReplayIntervalMillis = 0
	DefaultLoggingLevel         = "info"
	DefaultLoggingFormat        = "json"
)

func (c *Config) applyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = DefaultListenAddr
	}
	if c.Server.WritePath == "" {
		c.Server.WritePath = DefaultWritePath
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = DefaultWriteTimeout
	}
	if c.Server.PingTimeout == 0 {
		c.Server.PingTimeout = DefaultPingTimeout
	}
	if c.Server.BufferSize == 0 {
		c.Server.BufferSize = DefaultBufferSize
	}

	if c.Database.Port == 0 {
		c.Database.Port = DefaultDBPort
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = DefaultDBSSLMode
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = DefaultMaxConns
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = DefaultMinConns
	}

	if c.Replay.DefaultTimezone == "" {
		c.Replay.DefaultTimezone = DefaultTimezone
	}

	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLoggingLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLoggingFormat
	}
}
