// Package replay drives a DataSource iterator and fans batches out to
// every client on a connection, matching SPEC_FULL.md §4.4's eight-step
// algorithm.
package replay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/junduck/replayd/internal/broker"
	"github.com/junduck/replayd/internal/datasource"
	"github.com/junduck/replayd/internal/epoch"
	"github.com/junduck/replayd/internal/metrics"
	"github.com/junduck/replayd/internal/protocol"
	"github.com/junduck/replayd/internal/session"
)

// Emitter is how the orchestrator hands finished frames back to the
// transport's writer; EmitEvent and EmitResult are called from the replay
// goroutine, so implementations must be safe for that single caller while
// coordinating with whatever else writes to the same transport (mirroring
// the teacher's single writeMu-guarded writer, see SPEC_FULL.md §5).
type Emitter interface {
	EmitEvent(ctx context.Context, cid string, frame protocol.EventFrame)
	EmitResult(ctx context.Context, result protocol.ReplayResult)
	EmitError(ctx context.Context, err *protocol.Error)
}

// Clock abstracts server wall-clock reads so tests can inject a fixed
// value instead of depending on a real clock.
type Clock func() time.Time

// Orchestrator runs one replay request to completion.
type Orchestrator struct {
	Source datasource.DataSource
	Logger *slog.Logger
	Now    Clock
	Sleep  func(context.Context, time.Duration) error
}

// NewOrchestrator creates an Orchestrator with production defaults
// (real clock, real context-aware sleep).
func NewOrchestrator(source datasource.DataSource, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		Source: source,
		Logger: logger,
		Now:    time.Now,
		Sleep:  contextSleep,
	}
}

func contextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Run executes one replay, always clearing conn's active-replay flag on
// exit (step 8), and emitting zero or more EmitEvent calls in strict batch
// order followed by exactly one of EmitResult/EmitError. When ctx is
// cancelled it returns without emitting either.
func (o *Orchestrator) Run(ctx context.Context, conn *session.ConnSession, params protocol.ReplayParams, emit Emitter, loc *time.Location) {
	defer conn.EndReplay()

	tables, err := o.Source.EnumerateTables(ctx)
	if err != nil {
		emit.EmitError(ctx, protocol.NewError(protocol.CodeDataSourceError, err.Error()))
		return
	}
	if !tableKnown(tables, params.Table) {
		emit.EmitError(ctx, protocol.NewError(protocol.CodeInvalidTable, "unknown table: "+params.Table))
		return
	}

	clients := conn.Clients()
	applyReportingFlags(clients, params)
	filter := symbolFilter(clients)

	from, to, err := tableRange(tables, params)
	if err != nil {
		emit.EmitError(ctx, protocol.NewError(protocol.CodeInvalidParams, err.Error()))
		return
	}

	iter, err := o.Source.Open(ctx, params.Table, from, to, filter)
	if err != nil {
		emit.EmitError(ctx, protocol.NewError(protocol.CodeDataSourceError, err.Error()))
		return
	}
	defer iter.Close()

	begin := o.Now()
	o.Logger.Info("replay started", "table", params.Table, "replayId", params.ReplayID, "clients", len(clients))

	snap := metrics.NewSnapshot()
	pacing := time.Duration(params.ReplayInterval) * time.Millisecond

	for {
		if err := ctx.Err(); err != nil {
			o.Logger.Info("replay cancelled", "replayId", params.ReplayID)
			return
		}

		batch, ok, err := iter.Next(ctx)
		if err != nil {
			emit.EmitError(ctx, protocol.NewError(protocol.CodeReplayError, err.Error()))
			return
		}
		if !ok {
			break
		}

		o.Logger.Debug("replay batch", "replayId", params.ReplayID, "timestamp", batch.Timestamp, "symbols", len(batch.Symbols()))

		for _, symbol := range batch.Symbols() {
			if price, ok := batch.Price(symbol); ok {
				snap.Merge(symbol, price, batch.Timestamp)
			}
		}
		conn.AdvanceReplayTime(batch.Timestamp)

		// Phase 1 — orders. Must complete for every client before any
		// client's phase 2 begins (SPEC_FULL.md §4.4 ordering guarantee).
		for _, client := range clients {
			if !intersectsOpenSymbols(batch, client) {
				continue
			}
			events := client.ProcessOrderUpdate(batch, snap)
			emitClientEvents(ctx, emit, client.CID, events)
		}

		// Phase 2 — market.
		for _, client := range clients {
			filtered := client.FilterBatch(batch)
			if len(filtered.Symbols()) == 0 {
				continue
			}
			events := client.ProcessMarketData(filtered, snap, loc)
			emitClientEvents(ctx, emit, client.CID, events)

			if params.MarketMultiplex {
				continue
			}
			emit.EmitEvent(ctx, client.CID, marketFrame(filtered))
		}

		if params.MarketMultiplex {
			emit.EmitEvent(ctx, protocol.MultiplexCID, marketFrame(batch))
		}

		if err := o.Sleep(ctx, pacing); err != nil {
			o.Logger.Info("replay cancelled during pacing sleep", "replayId", params.ReplayID)
			return
		}
	}

	end := o.Now()
	o.Logger.Info("replay finished", "replayId", params.ReplayID, "begin", begin, "end", end)
	emit.EmitResult(ctx, protocol.ReplayResult{ReplayID: params.ReplayID, Begin: begin, End: end})
}

func emitClientEvents(ctx context.Context, emit Emitter, cid string, events []session.Event) {
	for _, e := range events {
		switch e.Kind {
		case session.EventOrder:
			emit.EmitEvent(ctx, cid, protocol.EventFrame{
				Type: "order",
				Order: &protocol.OrderEventWire{
					Updated: e.Order.Updated,
					Fill:    e.Order.Filled,
				},
			})
		case session.EventMetrics:
			emit.EmitEvent(ctx, cid, protocol.EventFrame{Type: "metrics", Metrics: e.Metrics})
		}
	}
}

func marketFrame(batch broker.MarketBatch) protocol.EventFrame {
	return protocol.EventFrame{
		Type: "market",
		Market: &protocol.MarketEventWire{
			Timestamp: batch.Timestamp,
			Kind:      batch.Kind,
			Quotes:    batch.Quotes,
			Bars:      batch.Bars,
		},
	}
}

// intersectsOpenSymbols reports whether batch contains at least one symbol
// the client has an open order against (SPEC_FULL.md §4.4 step 5c).
func intersectsOpenSymbols(batch broker.MarketBatch, client *session.ClientSession) bool {
	open := client.Broker.OpenSymbols()
	if len(open) == 0 {
		return false
	}
	for _, symbol := range batch.Symbols() {
		if _, ok := open[symbol]; ok {
			return true
		}
	}
	return false
}

// applyReportingFlags snapshots each client's reporting preferences from
// params onto its ClientSession (SPEC_FULL.md §4.4 step 1), so the
// metrics gating in ProcessOrderUpdate/ProcessMarketData reflects this
// replay's request rather than whatever was set at login time.
func applyReportingFlags(clients []*session.ClientSession, params protocol.ReplayParams) {
	for _, c := range clients {
		c.PeriodicPeriod = params.PeriodicReport
		c.TradeReport = params.TradeReport
		c.EODReport = params.EndOfDayReport
	}
}

// symbolFilter computes the union of all clients' subscriptions; any
// wildcard member collapses the result to "no filter" (SPEC_FULL.md §4.4
// step 2).
func symbolFilter(clients []*session.ClientSession) map[string]struct{} {
	union := make(map[string]struct{})
	for _, c := range clients {
		if c.HasWildcard() {
			return nil
		}
		for _, s := range c.Subscriptions() {
			union[s] = struct{}{}
		}
	}
	return union
}

func tableKnown(tables []datasource.TableInfo, name string) bool {
	for _, t := range tables {
		if t.Name == name {
			return true
		}
	}
	return false
}

func tableRange(tables []datasource.TableInfo, params protocol.ReplayParams) (time.Time, time.Time, error) {
	var info datasource.TableInfo
	for _, t := range tables {
		if t.Name == params.Table {
			info = t
			break
		}
	}

	from, err := convertEpoch(params.From, info)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := convertEpoch(params.To, info)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return from, to, nil
}

func convertEpoch(value int64, info datasource.TableInfo) (time.Time, error) {
	cfg := epoch.Config{Unit: info.Unit, Timezone: info.Timezone}
	loc, err := cfg.Location()
	if err != nil {
		return time.Time{}, err
	}
	t, err := epoch.ToTime(value, info.Unit, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("replay: convert epoch %d: %w", value, err)
	}
	return t, nil
}
