package protocol

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/junduck/replayd/internal/session"
)

// Scope marks whether a method operates on the connection or requires a
// resolved client.
type Scope int

const (
	ConnScope Scope = iota
	ClientScope
)

// HandlerFunc is the shape every registered method implements. cid is
// already validated to exist in conn when Scope is ClientScope (except for
// login, which creates the client and only needs a non-empty cid); it is
// empty for ConnScope methods. An error is either a *Error (propagated
// verbatim to the caller) or any other error (logged and replaced with
// INTERNAL_ERROR at the router boundary, per SPEC_FULL.md §7).
type HandlerFunc func(ctx context.Context, conn *session.ConnSession, cid string, params json.RawMessage) (interface{}, error)

type methodEntry struct {
	scope   Scope
	handler HandlerFunc
}

// Router is a fixed method -> handler mapping, constructed once per
// ConnSession and shared read-only across all requests on that transport
// (no locking needed post-construction), per SPEC_FULL.md §4.1.
type Router struct {
	methods map[string]methodEntry
	logger  *slog.Logger
}

// NewRouter creates an empty router. Register methods with Handle before
// serving any requests.
func NewRouter(logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{methods: make(map[string]methodEntry), logger: logger}
}

// Handle registers a method under the given scope.
func (r *Router) Handle(method string, scope Scope, h HandlerFunc) {
	r.methods[method] = methodEntry{scope: scope, handler: h}
}

// Dispatch parses routing concerns (method lookup, cid resolution) and
// invokes the registered handler, translating its outcome into a Response.
// It never panics or returns a raw Go error to the caller.
func (r *Router) Dispatch(ctx context.Context, conn *session.ConnSession, req Request) Response {
	id := req.ID

	entry, ok := r.methods[req.Method]
	if !ok {
		return errorResponse(&id, req.CID, NewError(CodeInvalidMethod, "unknown method: "+req.Method))
	}

	if entry.scope == ClientScope {
		if req.CID == "" {
			return errorResponse(&id, req.CID, NewError(CodeInvalidClient, "missing cid"))
		}
		if _, ok := conn.Client(req.CID); !ok && req.Method != "login" {
			return errorResponse(&id, req.CID, NewError(CodeInvalidClient, "unknown cid: "+req.CID))
		}
	}

	result, err := entry.handler(ctx, conn, req.CID, req.Params)
	if err != nil {
		if protoErr, ok := err.(*Error); ok {
			return errorResponse(&id, req.CID, protoErr)
		}
		r.logger.Error("handler failed",
			"method", req.Method, "id", req.ID, "cid", req.CID, "error", err)
		return errorResponse(&id, req.CID, NewError(CodeInternalError, "internal error"))
	}

	return Response{Type: "result", ID: &id, CID: req.CID, Result: result}
}

func errorResponse(id *int64, cid string, err *Error) Response {
	return Response{Type: "error", ID: id, CID: cid, Error: err}
}

// ParseEnvelope decodes raw into a Request. A parse failure has no
// recoverable id, so the caller should emit {error: INVALID_PARAMS} with no
// id, per SPEC_FULL.md §4.1.
func ParseEnvelope(raw []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return Request{}, err
	}
	return req, nil
}

// DecodeParams unmarshals req.Params into out, wrapping failure as an
// INVALID_PARAMS protocol Error.
func DecodeParams(params json.RawMessage, out interface{}) error {
	if len(params) == 0 {
		return nil
	}
	if err := json.Unmarshal(params, out); err != nil {
		return NewError(CodeInvalidParams, err.Error())
	}
	return nil
}
