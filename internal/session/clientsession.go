// Package session implements the per-connection and per-client state
// described in SPEC_FULL.md §3/§4.2: a ClientSession owns a Broker, three
// Metrics engines, and a subscription set; a ConnSession multiplexes many
// ClientSessions over one transport.
package session

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/junduck/replayd/internal/broker"
	"github.com/junduck/replayd/internal/epoch"
	"github.com/junduck/replayd/internal/metrics"
)

// wildcard is the subscription-set sentinel meaning "match any symbol".
const wildcard = "*"

// EventKind tags the outbound events a ClientSession produces while
// processing one replay batch.
type EventKind string

const (
	EventOrder   EventKind = "order"
	EventMarket  EventKind = "market"
	EventMetrics EventKind = "metrics"
)

// OrderEvent carries a broker match result for one client.
type OrderEvent struct {
	Updated []broker.OrderState
	Filled  []broker.Fill
}

// MarketEvent carries the (possibly subscription-filtered) batch a client
// observed.
type MarketEvent struct {
	Batch broker.MarketBatch
}

// Event is a tagged union of the three outbound event payloads.
// ProcessOrderUpdate and ProcessMarketData produce only order and metrics
// events; market events are built by the replay orchestrator.
type Event struct {
	Kind    EventKind
	Order   *OrderEvent
	Market  *MarketEvent
	Metrics *metrics.Report
}

// ClientSession is created by login and destroyed by logout or transport
// close. It owns a Broker and a Metrics triplet (periodic/trade/EOD),
// matching SPEC_FULL.md §3's ClientSession field list.
type ClientSession struct {
	CID string

	subscriptions map[string]struct{}

	Broker *broker.Broker

	periodic *metrics.Engine
	trade    *metrics.Engine
	eod      *metrics.Engine

	PeriodicPeriod int
	TradeReport    bool
	EODReport      bool

	ReplayTime time.Time
	events     int64
	dayIndex   int64
	hasDay     bool
}

// NewClientSession creates a session seeded with cfg and an empty
// subscription set.
func NewClientSession(cid string, cfg broker.Config, riskFree decimal.Decimal) *ClientSession {
	return &ClientSession{
		CID:           cid,
		subscriptions: make(map[string]struct{}),
		Broker:        broker.New(cfg),
		periodic:      metrics.New(riskFree),
		trade:         metrics.New(riskFree),
		eod:           metrics.New(riskFree),
	}
}

// AddSubscriptions adds symbols to the subscription set, returning the ones
// actually added. During an active replay this is a no-op that returns an
// empty slice — the subscription snapshot at replay start is frozen
// (SPEC_FULL.md §4.2, an Open Question the spec leaves undecided but whose
// existing behavior this preserves).
func (c *ClientSession) AddSubscriptions(symbols []string, replayActive bool) []string {
	if replayActive {
		return nil
	}
	added := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if _, ok := c.subscriptions[s]; ok {
			continue
		}
		c.subscriptions[s] = struct{}{}
		added = append(added, s)
	}
	return added
}

// RemoveSubscriptions removes symbols from the subscription set, returning
// the ones actually removed. Same replay-frozen behavior as
// AddSubscriptions.
func (c *ClientSession) RemoveSubscriptions(symbols []string, replayActive bool) []string {
	if replayActive {
		return nil
	}
	removed := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if _, ok := c.subscriptions[s]; !ok {
			continue
		}
		delete(c.subscriptions, s)
		removed = append(removed, s)
	}
	return removed
}

// HasWildcard reports whether "*" is a subscription-set member.
func (c *ClientSession) HasWildcard() bool {
	_, ok := c.subscriptions[wildcard]
	return ok
}

// Subscriptions returns a copy of the current subscription set.
func (c *ClientSession) Subscriptions() []string {
	out := make([]string, 0, len(c.subscriptions))
	for s := range c.subscriptions {
		out = append(out, s)
	}
	return out
}

// FilterBatch returns the slice of batch this client should observe: the
// full batch when subscribed to "*", otherwise only the rows whose symbol
// is in the subscription set.
func (c *ClientSession) FilterBatch(batch broker.MarketBatch) broker.MarketBatch {
	if c.HasWildcard() {
		return batch
	}
	out := broker.MarketBatch{Timestamp: batch.Timestamp, Kind: batch.Kind}
	switch batch.Kind {
	case broker.KindQuote:
		for _, q := range batch.Quotes {
			if _, ok := c.subscriptions[q.Symbol]; ok {
				out.Quotes = append(out.Quotes, q)
			}
		}
	case broker.KindBar:
		for _, bar := range batch.Bars {
			if _, ok := c.subscriptions[bar.Symbol]; ok {
				out.Bars = append(out.Bars, bar)
			}
		}
	}
	return out
}

// ProcessOrderUpdate runs the broker's matching pass over batch and returns
// any resulting events: an order event if anything updated, plus a trade
// metrics event if fills occurred and TradeReport is set
// (SPEC_FULL.md §4.2).
func (c *ClientSession) ProcessOrderUpdate(batch broker.MarketBatch, snap *metrics.Snapshot) []Event {
	result := c.Broker.ProcessOpenOrders(batch)

	var events []Event
	if len(result.Updated) > 0 {
		events = append(events, Event{
			Kind: EventOrder,
			Order: &OrderEvent{
				Updated: result.Updated,
				Filled:  result.Filled,
			},
		})
	}

	if len(result.Filled) > 0 && c.TradeReport {
		c.trade.Update(c.Broker.Position(), snap, batch.Timestamp)
		report := c.trade.Report(metrics.Trade, c.Broker.Position(), snap, batch.Timestamp)
		events = append(events, Event{Kind: EventMetrics, Metrics: &report})
	}

	return events
}

// ProcessMarketData updates periodic/EOD running stats and returns any
// metrics events due on this batch: an ENDOFDAY report on day rollover
// (emitted for the previous day, before EOD stats reset), then a PERIODIC
// report every PeriodicPeriod events (SPEC_FULL.md §4.2).
func (c *ClientSession) ProcessMarketData(batch broker.MarketBatch, snap *metrics.Snapshot, loc *time.Location) []Event {
	var events []Event

	day := epoch.DayIndex(batch.Timestamp, loc)
	if c.hasDay && day > c.dayIndex {
		if c.EODReport {
			report := c.eod.Report(metrics.EndOfDay, c.Broker.Position(), snap, batch.Timestamp)
			events = append(events, Event{Kind: EventMetrics, Metrics: &report})
		}
		c.eod.Reset()
	}
	c.dayIndex = day
	c.hasDay = true

	c.periodic.Update(c.Broker.Position(), snap, batch.Timestamp)
	c.eod.Update(c.Broker.Position(), snap, batch.Timestamp)

	c.events++
	if c.PeriodicPeriod > 0 && c.events%int64(c.PeriodicPeriod) == 0 {
		report := c.periodic.Report(metrics.Periodic, c.Broker.Position(), snap, batch.Timestamp)
		events = append(events, Event{Kind: EventMetrics, Metrics: &report})
	}

	return events
}
