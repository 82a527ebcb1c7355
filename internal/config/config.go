// Package config defines replayd's process configuration, grounded on the
// teacher's internal/config.GathererConfig: one YAML-tagged root struct per
// concern, loaded with environment-variable expansion, defaulted, then
// validated before use (internal/config/loader.go).
package config

import "time"

// Config is the root configuration for a replayd instance.
type Config struct {
	Instance InstanceConfig `yaml:"instance"`
	Server   ServerConfig   `yaml:"server"`
	Database DBConfig       `yaml:"database"`
	Replay   ReplayConfig   `yaml:"replay"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// InstanceConfig identifies this replayd process in logs and metrics.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// ServerConfig holds the inbound WebSocket listener settings.
type ServerConfig struct {
	ListenAddr   string        `yaml:"listen_addr"`
	WritePath    string        `yaml:"path"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	PingTimeout  time.Duration `yaml:"ping_timeout"`
	BufferSize   int           `yaml:"buffer_size"`
}

// DBConfig holds the Postgres/TimescaleDB connection backing the replay
// DataSource (internal/datasource/pgsource).
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// ReplayConfig holds server-wide defaults a replay request may omit.
type ReplayConfig struct {
	DefaultTimezone       string `yaml:"default_timezone"`
	DefaultReplayInterval int64  `yaml:"default_replay_interval_ms"`
}

// LoggingConfig controls the slog handler replayd starts with.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"
}
