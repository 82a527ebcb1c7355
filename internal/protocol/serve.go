package protocol

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/junduck/replayd/internal/session"
	"github.com/junduck/replayd/internal/transport"
)

// Conn ties one transport to its Router and ConnSession, implementing the
// concurrency model from SPEC_FULL.md §5: a serial read loop dispatches
// every method inline except "replay", which runs on its own goroutine so
// the loop keeps accepting other client-scoped requests while it streams.
// Outbound frames are serialized through writeMu exactly like the
// teacher's single writeMu-guarded connection.Client writer.
type Conn struct {
	Transport transport.Transport
	Router    *Router
	Session   *session.ConnSession
	Logger    *slog.Logger

	writeMu sync.Mutex
	wg      sync.WaitGroup
}

// NewConn wires a transport to a router and session, ready for Serve.
func NewConn(t transport.Transport, router *Router, conn *session.ConnSession, logger *slog.Logger) *Conn {
	if logger == nil {
		logger = slog.Default()
	}
	return &Conn{Transport: t, Router: router, Session: conn, Logger: logger}
}

// Serve reads frames until the transport closes or ctx is cancelled,
// dispatching each to the router. It returns once the read loop exits and
// every goroutine it spawned (replay included) has finished.
func (c *Conn) Serve(ctx context.Context) {
	defer c.wg.Wait()

	for {
		frame, err := c.Transport.Receive(ctx)
		if err != nil {
			c.Logger.Debug("connection closed", "error", err)
			return
		}

		req, err := ParseEnvelope(frame)
		if err != nil {
			c.writeResponse(ctx, Response{Type: "error", Error: NewError(CodeInvalidParams, "malformed envelope")})
			continue
		}

		reqCtx := WithRequestID(ctx, req.ID)

		if req.Method == "replay" {
			c.wg.Add(1)
			go func() {
				defer c.wg.Done()
				resp := c.Router.Dispatch(reqCtx, c.Session, req)
				// The replay handler emits its own result/error/event
				// frames through the Emitter bound at Register time; its
				// synchronous Response carries no payload worth writing.
				if resp.Type == "error" {
					c.writeResponse(ctx, resp)
				}
			}()
			continue
		}

		resp := c.Router.Dispatch(reqCtx, c.Session, req)
		c.writeResponse(ctx, resp)
	}
}

func (c *Conn) writeResponse(ctx context.Context, resp Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		c.Logger.Error("failed to marshal response", "error", err)
		return
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.Transport.Send(ctx, data); err != nil {
		c.Logger.Debug("failed to send response", "error", err)
	}
}

// Emitter adapts Conn into a replay.Emitter, writing event/result/error
// frames directly to the transport under the same writeMu every other
// response uses.
type Emitter struct {
	conn *Conn
}

// NewEmitter returns the replay.Emitter bound to conn.
func NewEmitter(conn *Conn) *Emitter {
	return &Emitter{conn: conn}
}

func (e *Emitter) EmitEvent(ctx context.Context, cid string, frame EventFrame) {
	// Events carry only cid, never the originating request's id.
	e.conn.writeResponse(context.Background(), Response{Type: "event", CID: cid, Event: &frame})
}

func (e *Emitter) EmitResult(ctx context.Context, result ReplayResult) {
	resp := Response{Type: "result", Result: result}
	if id, ok := RequestIDFromContext(ctx); ok {
		resp.ID = &id
	}
	e.conn.writeResponse(context.Background(), resp)
}

func (e *Emitter) EmitError(ctx context.Context, err *Error) {
	resp := Response{Type: "error", Error: err}
	if id, ok := RequestIDFromContext(ctx); ok {
		resp.ID = &id
	}
	e.conn.writeResponse(context.Background(), resp)
}
