// Package storage wires the Postgres/TimescaleDB connection pool backing
// the replay DataSource. Adapted from the teacher's internal/database
// package (connection string assembly + pgxpool lifecycle); see
// DESIGN.md.
package storage

import (
	"context"
	"fmt"
	"net/url"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Config describes one Postgres connection.
type Config struct {
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
	MaxConns int
	MinConns int
}

// ConnString builds a libpq connection URI for cfg, constructing it through
// net/url so the username/password are escaped by the userinfo rules
// rather than by hand.
func ConnString(cfg Config) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Path:   "/" + cfg.Name,
	}

	q := u.Query()
	q.Set("sslmode", sslModeOrDefault(cfg.SSLMode))
	u.RawQuery = q.Encode()

	return u.String()
}

func sslModeOrDefault(mode string) string {
	if mode == "" {
		return "prefer"
	}
	return mode
}

// Connect opens a pgxpool.Pool for cfg, pinging it before returning so
// callers fail fast on bad credentials/network rather than on first query.
func Connect(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(ConnString(cfg))
	if err != nil {
		return nil, fmt.Errorf("storage: parse connection string: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = int32(cfg.MinConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("storage: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage: ping: %w", err)
	}
	return pool, nil
}
