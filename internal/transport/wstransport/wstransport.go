// Package wstransport implements transport.Transport over
// github.com/gorilla/websocket, grounded on the teacher's
// internal/connection.Client: a single-writer mutex around the
// connection, a buffered inbound channel fed by a dedicated read goroutine,
// and ping/pong liveness handling. Unlike the teacher's fixed pool of
// upstream exchange sockets, replayd accepts one inbound connection per
// downstream simulated-trading client and does not pool or reconnect —
// the pooling concern belongs to a different problem (see DESIGN.md).
package wstransport

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var (
	ErrClosed = errors.New("wstransport: connection closed")
)

// Config configures one accepted connection.
type Config struct {
	WriteTimeout time.Duration
	PingTimeout  time.Duration
	BufferSize   int
}

// DefaultConfig returns sensible defaults for a server-side connection.
func DefaultConfig() Config {
	return Config{
		WriteTimeout: 5 * time.Second,
		PingTimeout:  60 * time.Second,
		BufferSize:   1024,
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Transport wraps one accepted websocket.Conn.
type Transport struct {
	cfg    Config
	logger *slog.Logger

	conn *websocket.Conn

	writeMu sync.Mutex

	inbound chan []byte
	errCh   chan error
	done    chan struct{}

	mu         sync.RWMutex
	closed     bool
	lastPingAt time.Time
}

// Accept upgrades an inbound HTTP request to a websocket connection and
// starts its read loop.
func Accept(w http.ResponseWriter, r *http.Request, cfg Config, logger *slog.Logger) (*Transport, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}

	t := &Transport{
		cfg:        cfg,
		logger:     logger,
		conn:       conn,
		inbound:    make(chan []byte, cfg.BufferSize),
		errCh:      make(chan error, 1),
		done:       make(chan struct{}),
		lastPingAt: time.Now(),
	}

	conn.SetPingHandler(func(data string) error {
		t.mu.Lock()
		t.lastPingAt = time.Now()
		t.mu.Unlock()
		t.writeMu.Lock()
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
		t.writeMu.Unlock()
		return err
	})
	conn.SetPongHandler(func(string) error {
		t.mu.Lock()
		t.lastPingAt = time.Now()
		t.mu.Unlock()
		return nil
	})

	go t.readLoop()
	go t.heartbeatLoop()

	return t, nil
}

// Send writes frame as a text message, serialized against concurrent
// writers — the transport is reached both from the connection's serial
// handler loop and a concurrent replay goroutine (SPEC_FULL.md §5).
func (t *Transport) Send(ctx context.Context, frame []byte) error {
	t.mu.RLock()
	closed := t.closed
	t.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	t.conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout))
	return t.conn.WriteMessage(websocket.TextMessage, frame)
}

// Receive blocks for the next inbound frame, or returns ctx.Err()/ErrClosed.
func (t *Transport) Receive(ctx context.Context) ([]byte, error) {
	select {
	case frame, ok := <-t.inbound:
		if !ok {
			return nil, ErrClosed
		}
		return frame, nil
	case err := <-t.errCh:
		return nil, err
	case <-t.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close closes the underlying connection. No outbound writes succeed after
// Close returns.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	close(t.done)

	t.writeMu.Lock()
	_ = t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	t.writeMu.Unlock()

	return t.conn.Close()
}

func (t *Transport) readLoop() {
	for {
		select {
		case <-t.done:
			return
		default:
		}

		_, data, err := t.conn.ReadMessage()
		if err != nil {
			select {
			case <-t.done:
			default:
				select {
				case t.errCh <- err:
				default:
					t.logger.Warn("wstransport: error channel full, dropping error", "error", err)
				}
			}
			return
		}

		select {
		case t.inbound <- data:
		case <-t.done:
			return
		default:
			t.logger.Error("wstransport: inbound buffer full, dropping frame",
				"buffer_size", cap(t.inbound), "frame_size", len(data))
		}
	}
}

func (t *Transport) heartbeatLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			t.writeMu.Lock()
			err := t.conn.WriteControl(websocket.PingMessage, []byte("keepalive"), time.Now().Add(t.cfg.WriteTimeout))
			t.writeMu.Unlock()
			if err != nil {
				t.logger.Warn("wstransport: failed to send keepalive ping", "error", err)
			}

			t.mu.RLock()
			lastPing := t.lastPingAt
			t.mu.RUnlock()
			if time.Since(lastPing) > t.cfg.PingTimeout {
				t.logger.Warn("wstransport: connection stale, no ping/pong activity",
					"last_activity", lastPing, "timeout", t.cfg.PingTimeout)
				select {
				case t.errCh <- ErrClosed:
				default:
				}
				return
			}
		}
	}
}
