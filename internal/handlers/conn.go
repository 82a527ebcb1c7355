// Package handlers is the thin glue layer from SPEC_FULL.md §4.8: one file
// per method group, validating params and calling into session/broker,
// matching the teacher's internal/writer split of one file per message
// kind.
package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/junduck/replayd/internal/datasource"
	"github.com/junduck/replayd/internal/protocol"
	"github.com/junduck/replayd/internal/replay"
	"github.com/junduck/replayd/internal/session"
)

// Deps bundles the collaborators every handler needs. One Deps is shared
// read-only across all connections.
type Deps struct {
	Source datasource.DataSource
	Logger *slog.Logger
}

// bound pairs Deps with the per-connection emitter: order-domain
// rejections and fills "succeed" the request but still emit an `order`
// event (SPEC_FULL.md §4.1), so every order-mutating handler needs the
// same Emitter the replay orchestrator writes through.
type bound struct {
	*Deps
	emit replay.Emitter
}

// Register wires every method from SPEC_FULL.md §6 onto router, binding
// order/replay events to emit and day-rollover detection to loc (the
// server's configured default timezone). Called once per connection, since
// emit is transport-bound.
func Register(router *protocol.Router, deps *Deps, emit replay.Emitter, loc *time.Location) {
	b := &bound{Deps: deps, emit: emit}

	router.Handle("init", protocol.ConnScope, b.handleInit)
	router.Handle("replay", protocol.ConnScope, b.replayHandler(loc))

	router.Handle("login", protocol.ClientScope, b.handleLogin)
	router.Handle("logout", protocol.ClientScope, b.handleLogout)
	router.Handle("subscribe", protocol.ClientScope, b.handleSubscribe)
	router.Handle("unsubscribe", protocol.ClientScope, b.handleUnsubscribe)
	router.Handle("getPosition", protocol.ClientScope, b.handleGetPosition)
	router.Handle("getOpenOrders", protocol.ClientScope, b.handleGetOpenOrders)
	router.Handle("submitOrders", protocol.ClientScope, b.handleSubmitOrders)
	router.Handle("amendOrders", protocol.ClientScope, b.handleAmendOrders)
	router.Handle("cancelOrders", protocol.ClientScope, b.handleCancelOrders)
	router.Handle("cancelAllOrders", protocol.ClientScope, b.handleCancelAllOrders)
}

func (b *bound) handleInit(ctx context.Context, conn *session.ConnSession, cid string, params json.RawMessage) (interface{}, error) {
	tables, err := b.Source.EnumerateTables(ctx)
	if err != nil {
		return nil, protocol.NewError(protocol.CodeDataSourceError, err.Error())
	}
	if len(tables) == 0 {
		return nil, protocol.NewError(protocol.CodeNoReplayTable, "no replayable tables configured")
	}
	return protocol.InitResult{ReplayTables: tables}, nil
}

// replayHandler closes over loc so the long-running streaming work can be
// dispatched onto its own goroutine (SPEC_FULL.md §5) while still fitting
// the HandlerFunc signature the router expects. The orchestrator itself
// emits the terminal result/error frame through b.emit; the caller
// dispatching "replay" must not also write the nil result this handler
// returns (see internal/protocol/serve.go).
func (b *bound) replayHandler(loc *time.Location) protocol.HandlerFunc {
	return func(ctx context.Context, conn *session.ConnSession, cid string, rawParams json.RawMessage) (interface{}, error) {
		var params protocol.ReplayParams
		if err := protocol.DecodeParams(rawParams, &params); err != nil {
			return nil, err
		}

		if !conn.BeginReplay(params.ReplayID) {
			return nil, protocol.NewError(protocol.CodeReplayAlreadyActive, "a replay is already active on this connection")
		}

		orch := replay.NewOrchestrator(b.Source, b.Logger)
		orch.Run(ctx, conn, params, b.emit, loc)
		return nil, nil
	}
}
