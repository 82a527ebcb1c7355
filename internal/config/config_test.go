package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validYAML() string {
	return `
instance:
  id: test-replayd
server:
  listen_addr: ":9000"
database:
  host: localhost
  port: 5432
  name: test_db
  user: testuser
  password: testpass
`
}

func TestLoad(t *testing.T) {
	t.Run("basic loading", func(t *testing.T) {
		path := writeTempFile(t, validYAML())

		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}

		if cfg.Instance.ID != "test-replayd" {
			t.Errorf("Instance.ID = %q, want %q", cfg.Instance.ID, "test-replayd")
		}
		if cfg.Server.ListenAddr != ":9000" {
			t.Errorf("Server.ListenAddr = %q, want %q", cfg.Server.ListenAddr, ":9000")
		}
		if cfg.Database.Host != "localhost" {
			t.Errorf("Database.Host = %q, want %q", cfg.Database.Host, "localhost")
		}
	})

	t.Run("file not found", func(t *testing.T) {
		_, err := Load("/nonexistent/path/config.yaml")
		if err == nil {
			t.Fatal("expected error for nonexistent file")
		}
		if !strings.Contains(err.Error(), "read config file") {
			t.Errorf("error should mention 'read config file', got %v", err)
		}
	})

	t.Run("invalid yaml", func(t *testing.T) {
		yaml := `
instance:
  id: test
  invalid yaml here: [
`
		path := writeTempFile(t, yaml)

		_, err := Load(path)
		if err == nil {
			t.Fatal("expected error for invalid YAML")
		}
		if !strings.Contains(err.Error(), "parse config yaml") {
			t.Errorf("error should mention 'parse config yaml', got %v", err)
		}
	})

	t.Run("empty file", func(t *testing.T) {
		path := writeTempFile(t, "")

		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.Instance.ID != "" {
			t.Errorf("Instance.ID = %q, want empty", cfg.Instance.ID)
		}
	})
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_DB_PASSWORD", "secret123")

	yaml := `
instance:
  id: test-replayd
database:
  host: localhost
  name: test_db
  user: testuser
  password: ${TEST_DB_PASSWORD}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Database.Password != "secret123" {
		t.Errorf("Database.Password = %q, want %q", cfg.Database.Password, "secret123")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	yaml := `
instance:
  id: test-replayd
database:
  host: localhost
  name: test_db
  user: testuser
  password: testpass
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.ListenAddr != DefaultListenAddr {
		t.Errorf("Server.ListenAddr = %q, want default %q", cfg.Server.ListenAddr, DefaultListenAddr)
	}
	if cfg.Server.WritePath != DefaultWritePath {
		t.Errorf("Server.WritePath = %q, want default %q", cfg.Server.WritePath, DefaultWritePath)
	}
	if cfg.Server.WriteTimeout != DefaultWriteTimeout {
		t.Errorf("Server.WriteTimeout = %v, want default %v", cfg.Server.WriteTimeout, DefaultWriteTimeout)
	}
	if cfg.Server.BufferSize != DefaultBufferSize {
		t.Errorf("Server.BufferSize = %d, want default %d", cfg.Server.BufferSize, DefaultBufferSize)
	}
	if cfg.Database.Port != DefaultDBPort {
		t.Errorf("Database.Port = %d, want default %d", cfg.Database.Port, DefaultDBPort)
	}
	if cfg.Database.SSLMode != DefaultDBSSLMode {
		t.Errorf("Database.SSLMode = %q, want default %q", cfg.Database.SSLMode, DefaultDBSSLMode)
	}
	if cfg.Replay.DefaultTimezone != DefaultTimezone {
		t.Errorf("Replay.DefaultTimezone = %q, want default %q", cfg.Replay.DefaultTimezone, DefaultTimezone)
	}
	if cfg.Logging.Level != DefaultLoggingLevel {
		t.Errorf("Logging.Level = %q, want default %q", cfg.Logging.Level, DefaultLoggingLevel)
	}
	if cfg.Logging.Format != DefaultLoggingFormat {
		t.Errorf("Logging.Format = %q, want default %q", cfg.Logging.Format, DefaultLoggingFormat)
	}
}

func TestLoadWithDefaultsPreservesSetValues(t *testing.T) {
	yaml := `
instance:
  id: test-replayd
server:
  listen_addr: ":7777"
  buffer_size: 42
database:
  host: localhost
  name: test_db
  user: testuser
  password: testpass
  max_conns: 20
replay:
  default_timezone: America/New_York
logging:
  level: debug
  format: text
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.ListenAddr != ":7777" {
		t.Errorf("Server.ListenAddr = %q, want %q", cfg.Server.ListenAddr, ":7777")
	}
	if cfg.Server.BufferSize != 42 {
		t.Errorf("Server.BufferSize = %d, want %d", cfg.Server.BufferSize, 42)
	}
	if cfg.Database.MaxConns != 20 {
		t.Errorf("Database.MaxConns = %d, want %d", cfg.Database.MaxConns, 20)
	}
	if cfg.Replay.DefaultTimezone != "America/New_York" {
		t.Errorf("Replay.DefaultTimezone = %q, want %q", cfg.Replay.DefaultTimezone, "America/New_York")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Logging.Format = %q, want %q", cfg.Logging.Format, "text")
	}
}

func TestLoadAndValidate(t *testing.T) {
	t.Run("valid config passes", func(t *testing.T) {
		path := writeTempFile(t, validYAML())

		_, err := LoadAndValidate(path)
		if err != nil {
			t.Fatalf("expected valid config to pass, got %v", err)
		}
	})

	t.Run("missing instance id fails", func(t *testing.T) {
		yaml := `
database:
  host: localhost
  name: test_db
  user: testuser
  password: testpass
`
		path := writeTempFile(t, yaml)

		_, err := LoadAndValidate(path)
		if err == nil {
			t.Fatal("expected validation error for missing instance.id")
		}
	})
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg := &Config{
			Instance: InstanceConfig{ID: "test"},
			Server:   ServerConfig{ListenAddr: ":8080", BufferSize: 1024},
			Database: DBConfig{Host: "localhost", Name: "db", User: "u", Password: "p", MaxConns: 10, MinConns: 2},
			Replay:   ReplayConfig{DefaultTimezone: "UTC"},
			Logging:  LoggingConfig{Level: "info", Format: "json"},
		}
		return cfg
	}

	t.Run("valid config passes", func(t *testing.T) {
		if err := base().Validate(); err != nil {
			t.Errorf("expected valid config to pass, got %v", err)
		}
	})

	t.Run("missing instance id", func(t *testing.T) {
		cfg := base()
		cfg.Instance.ID = ""
		if err := cfg.Validate(); err == nil {
			t.Error("expected error for missing instance.id")
		}
	})

	t.Run("missing listen addr", func(t *testing.T) {
		cfg := base()
		cfg.Server.ListenAddr = ""
		if err := cfg.Validate(); err == nil {
			t.Error("expected error for missing server.listen_addr")
		}
	})

	t.Run("zero buffer size", func(t *testing.T) {
		cfg := base()
		cfg.Server.BufferSize = 0
		if err := cfg.Validate(); err == nil {
			t.Error("expected error for server.buffer_size < 1")
		}
	})

	t.Run("missing database host", func(t *testing.T) {
		cfg := base()
		cfg.Database.Host = ""
		if err := cfg.Validate(); err == nil {
			t.Error("expected error for missing database.host")
		}
	})

	t.Run("min conns exceeds max conns", func(t *testing.T) {
		cfg := base()
		cfg.Database.MinConns = 20
		cfg.Database.MaxConns = 10
		if err := cfg.Validate(); err == nil {
			t.Error("expected error for min_conns > max_conns")
		}
	})

	t.Run("unknown timezone", func(t *testing.T) {
		cfg := base()
		cfg.Replay.DefaultTimezone = "Not/A_Zone"
		if err := cfg.Validate(); err == nil {
			t.Error("expected error for unknown replay.default_timezone")
		}
	})

	t.Run("negative replay interval", func(t *testing.T) {
		cfg := base()
		cfg.Replay.DefaultReplayInterval = -1
		if err := cfg.Validate(); err == nil {
			t.Error("expected error for negative replay.default_replay_interval_ms")
		}
	})

	t.Run("invalid logging format", func(t *testing.T) {
		cfg := base()
		cfg.Logging.Format = "xml"
		if err := cfg.Validate(); err == nil {
			t.Error("expected error for invalid logging.format")
		}
	})
}

func TestDefaultConstants(t *testing.T) {
	if DefaultWriteTimeout != 5*time.Second {
		t.Errorf("DefaultWriteTimeout = %v, want 5s", DefaultWriteTimeout)
	}
	if DefaultPingTimeout != 60*time.Second {
		t.Errorf("DefaultPingTimeout = %v, want 60s", DefaultPingTimeout)
	}
	if DefaultDBPort != 5432 {
		t.Errorf("DefaultDBPort = %d, want 5432", DefaultDBPort)
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write temp config file: %v", err)
	}
	return path
}
