// replayd serves multiplexed backtest replay sessions over WebSocket.
// Usage: go run ./cmd/replayd --config configs/replayd.local.yaml
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/junduck/replayd/internal/config"
	"github.com/junduck/replayd/internal/datasource/pgsource"
	"github.com/junduck/replayd/internal/epoch"
	"github.com/junduck/replayd/internal/handlers"
	"github.com/junduck/replayd/internal/protocol"
	"github.com/junduck/replayd/internal/session"
	"github.com/junduck/replayd/internal/storage"
	"github.com/junduck/replayd/internal/transport/wstransport"
	"github.com/junduck/replayd/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/replayd.local.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	logger.Info("starting replayd",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	logger.Info("connecting to database",
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
		"database", cfg.Database.Name,
	)
	pool, err := storage.Connect(ctx, storage.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Name:     cfg.Database.Name,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.MaxConns,
		MinConns: cfg.Database.MinConns,
	})
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("database connected")

	loc, err := time.LoadLocation(cfg.Replay.DefaultTimezone)
	if err != nil {
		logger.Error("invalid replay.default_timezone", "error", err)
		os.Exit(1)
	}

	source := pgsource.New(pool)
	deps := &handlers.Deps{Source: source, Logger: logger}
	wsCfg := wstransport.Config{
		WriteTimeout: cfg.Server.WriteTimeout,
		PingTimeout:  cfg.Server.PingTimeout,
		BufferSize:   cfg.Server.BufferSize,
	}
	timeConfig := epoch.Config{Unit: epoch.Seconds, Timezone: cfg.Replay.DefaultTimezone}

	mux := http.NewServeMux()
	mux.HandleFunc(cfg.Server.WritePath, func(w http.ResponseWriter, r *http.Request) {
		serveConn(r.Context(), w, r, wsCfg, deps, timeConfig, loc, logger)
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: mux,
	}

	go func() {
		logger.Info("listening", "addr", cfg.Server.ListenAddr, "path", cfg.Server.WritePath)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	server.Shutdown(shutdownCtx)

	logger.Info("replayd stopped")
}

// serveConn upgrades one inbound HTTP request to a websocket connection
// and runs its Conn to completion, isolating each connection's
// ConnSession and router registration (handlers.Register binds the
// emitter per connection, per SPEC_FULL.md §5).
func serveConn(ctx context.Context, w http.ResponseWriter, r *http.Request, wsCfg wstransport.Config, deps *handlers.Deps, timeConfig epoch.Config, loc *time.Location, logger *slog.Logger) {
	t, err := wstransport.Accept(w, r, wsCfg, logger)
	if err != nil {
		logger.Error("failed to accept connection", "error", err)
		return
	}
	defer t.Close()

	router := protocol.NewRouter(logger)
	connSession := session.NewConnSession(timeConfig)

	conn := protocol.NewConn(t, router, connSession, logger)
	handlers.Register(router, deps, protocol.NewEmitter(conn), loc)

	conn.Serve(ctx)
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
