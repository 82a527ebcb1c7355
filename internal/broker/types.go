// Package broker implements the per-client order lifecycle, matching,
// slippage, commission, and FIFO position accounting described in
// SPEC_FULL.md §4.3.
package broker

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Effect is the directionality tag driving FIFO position accounting.
type Effect string

const (
	OpenLong   Effect = "OPEN_LONG"
	CloseLong  Effect = "CLOSE_LONG"
	OpenShort  Effect = "OPEN_SHORT"
	CloseShort Effect = "CLOSE_SHORT"
)

// Type discriminates order behavior.
type Type string

const (
	Market    Type = "MARKET"
	Limit     Type = "LIMIT"
	Stop      Type = "STOP"
	StopLimit Type = "STOP_LIMIT"
)

// Status is the OrderState lifecycle tag. OPEN and PARTIAL are the only
// non-terminal statuses; terminal states never remain in the broker's
// open-orders map.
type Status string

const (
	Open      Status = "OPEN"
	Partial   Status = "PARTIAL"
	Filled    Status = "FILLED"
	Cancelled Status = "CANCELLED"
	Rejected  Status = "REJECTED"
)

// Order is a client-supplied order request.
type Order struct {
	ID        string
	Symbol    string
	Side      Side
	Effect    Effect
	Type      Type
	Quantity  int64
	Price     *decimal.Decimal // required for LIMIT/STOP_LIMIT
	StopPrice *decimal.Decimal // required for STOP/STOP_LIMIT
}

// Valid checks the side/effect invariant from SPEC_FULL.md §3 and the
// type-specific field requirements. It does not check id uniqueness —
// that is the broker's job at submit time.
func (o Order) Valid() bool {
	if o.Quantity <= 0 {
		return false
	}
	switch o.Side {
	case Buy:
		if o.Effect != OpenLong && o.Effect != CloseShort {
			return false
		}
	case Sell:
		if o.Effect != CloseLong && o.Effect != OpenShort {
			return false
		}
	default:
		return false
	}
	switch o.Type {
	case Market:
	case Limit:
		if o.Price == nil || !o.Price.IsPositive() {
			return false
		}
	case Stop:
		if o.StopPrice == nil || !o.StopPrice.IsPositive() {
			return false
		}
	case StopLimit:
		if o.Price == nil || !o.Price.IsPositive() {
			return false
		}
		if o.StopPrice == nil || !o.StopPrice.IsPositive() {
			return false
		}
	default:
		return false
	}
	return true
}

// OrderState is the broker-owned superset of Order tracking fill progress.
type OrderState struct {
	Order
	FilledQuantity    int64
	RemainingQuantity int64
	Status            Status
	Modified          time.Time
}

// Clone returns a deep copy safe to hand to callers outside the broker.
func (s OrderState) Clone() OrderState {
	c := s
	if s.Price != nil {
		p := *s.Price
		c.Price = &p
	}
	if s.StopPrice != nil {
		p := *s.StopPrice
		c.StopPrice = &p
	}
	return c
}

// PartialOrder is an amend request: only non-nil fields are applied.
type PartialOrder struct {
	ID        string
	Price     *decimal.Decimal
	StopPrice *decimal.Decimal
	Quantity  *int64
}

// Fill is a single matched execution.
type Fill struct {
	ID         string
	OrderID    string
	Symbol     string
	Side       Side
	Price      decimal.Decimal
	Quantity   int64
	Commission decimal.Decimal
	Created    time.Time
}

// Lot is a single FIFO accounting entry within a Position. For long lots
// Notional holds cumulative cost; for short lots it holds cumulative
// proceeds — the sign convention is tracked by which map the lot lives in,
// not by the field itself.
type Lot struct {
	Quantity int64
	Price    decimal.Decimal
	Notional decimal.Decimal
}

// Position is the per-client portfolio: cash plus FIFO lot queues for every
// symbol the client has an open long or short in.
type Position struct {
	Cash            decimal.Decimal
	Long            map[string][]*Lot
	Short           map[string][]*Lot
	TotalCommission decimal.Decimal
	RealisedPnL     decimal.Decimal
	Modified        time.Time
}

// Clone returns a deep copy of the position, safe for getPosition responses.
func (p *Position) Clone() *Position {
	out := &Position{
		Cash:            p.Cash,
		TotalCommission: p.TotalCommission,
		RealisedPnL:     p.RealisedPnL,
		Modified:        p.Modified,
		Long:            make(map[string][]*Lot, len(p.Long)),
		Short:           make(map[string][]*Lot, len(p.Short)),
	}
	for sym, lots := range p.Long {
		out.Long[sym] = cloneLots(lots)
	}
	for sym, lots := range p.Short {
		out.Short[sym] = cloneLots(lots)
	}
	return out
}

func cloneLots(lots []*Lot) []*Lot {
	out := make([]*Lot, len(lots))
	for i, l := range lots {
		cp := *l
		out[i] = &cp
	}
	return out
}

// ValueKind tags whether a MarketBatch carries top-of-book quotes or OHLC
// bars — an explicit tagged variant rather than the duck-typed "does `open`
// exist?" check the source system used (SPEC_FULL.md §9).
type ValueKind string

const (
	KindQuote ValueKind = "quote"
	KindBar   ValueKind = "bar"
)

// Quote is a top-of-book observation.
type Quote struct {
	Symbol    string
	Timestamp time.Time
	Price     decimal.Decimal
	Bid       *decimal.Decimal
	Ask       *decimal.Decimal
	Volume    *int64
}

// Bar is an OHLC observation.
type Bar struct {
	Symbol    string
	Timestamp time.Time
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    *int64
}

// MarketBatch is the tagged variant the DataSource yields and the broker
// dispatches on: exactly one of Quotes/Bars is populated, per Kind.
type MarketBatch struct {
	Timestamp time.Time
	Kind      ValueKind
	Quotes    []Quote
	Bars      []Bar
}

// Symbols returns the symbols present in the batch, in the order they
// appear — the broker's matching pass must iterate in this order to stay
// deterministic (SPEC_FULL.md §4.3).
func (b MarketBatch) Symbols() []string {
	switch b.Kind {
	case KindQuote:
		out := make([]string, len(b.Quotes))
		for i, q := range b.Quotes {
			out[i] = q.Symbol
		}
		return out
	case KindBar:
		out := make([]string, len(b.Bars))
		for i, bar := range b.Bars {
			out[i] = bar.Symbol
		}
		return out
	default:
		return nil
	}
}

// Price returns the observation used for the shared snapshot: a quote's
// Price, or a bar's Close.
func (b MarketBatch) Price(symbol string) (decimal.Decimal, bool) {
	switch b.Kind {
	case KindQuote:
		for _, q := range b.Quotes {
			if q.Symbol == symbol {
				return q.Price, true
			}
		}
	case KindBar:
		for _, bar := range b.Bars {
			if bar.Symbol == symbol {
				return bar.Close, true
			}
		}
	}
	return decimal.Decimal{}, false
}

// quoteFor and barFor are small lookups used by the matching pass; batches
// are small (one per distinct timestamp) so a linear scan is fine and
// keeps the determinism guarantee trivially obvious.
func (b MarketBatch) quoteFor(symbol string) (Quote, bool) {
	for _, q := range b.Quotes {
		if q.Symbol == symbol {
			return q, true
		}
	}
	return Quote{}, false
}

func (b MarketBatch) barFor(symbol string) (Bar, bool) {
	for _, bar := range b.Bars {
		if bar.Symbol == symbol {
			return bar, true
		}
	}
	return Bar{}, false
}

// CommissionConfig mirrors BacktestConfig.commission from SPEC_FULL.md §6.
type CommissionConfig struct {
	Rate     decimal.Decimal
	PerTrade decimal.Decimal
	Minimum  *decimal.Decimal
	Maximum  *decimal.Decimal
}

// PriceSlippageConfig mirrors BacktestConfig.slippage.price.
type PriceSlippageConfig struct {
	FixedBps      decimal.Decimal
	MarketImpact  decimal.Decimal
}

// VolumeSlippageConfig mirrors BacktestConfig.slippage.volume.
type VolumeSlippageConfig struct {
	MaxParticipation  *decimal.Decimal
	AllowPartialFills bool
}

// SlippageConfig mirrors BacktestConfig.slippage.
type SlippageConfig struct {
	Price  PriceSlippageConfig
	Volume VolumeSlippageConfig
}

// Config mirrors BacktestConfig from SPEC_FULL.md §6.
type Config struct {
	InitialCash decimal.Decimal
	Commission  CommissionConfig
	Slippage    SlippageConfig
}

// MatchResult is the output of a single processOpenOrders pass.
type MatchResult struct {
	Updated []OrderState
	Filled  []Fill
}
