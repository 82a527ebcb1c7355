package protocol

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/junduck/replayd/internal/broker"
	"github.com/junduck/replayd/internal/datasource"
	"github.com/junduck/replayd/internal/metrics"
)

// MultiplexCID is the sentinel cid carrying the fan-out market event when a
// replay runs with marketMultiplex=true.
const MultiplexCID = "__multiplex__"

// Request is the inbound envelope from SPEC_FULL.md §4.1. Params is parsed
// per-method by the handler, not by the router.
type Request struct {
	Method string          `json:"method"`
	ID     int64           `json:"id"`
	CID    string          `json:"cid,omitempty"`
	Params json.RawMessage `json:"params"`
}

// Response is the outbound envelope. Result and Error are mutually
// exclusive and carry the request's id; Event frames carry only CID (never
// ID).
type Response struct {
	Type   string      `json:"type"` // "result" | "error" | "event"
	ID     *int64      `json:"id,omitempty"`
	CID    string      `json:"cid,omitempty"`
	Result interface{} `json:"result,omitempty"`
	Error  *Error      `json:"error,omitempty"`
	Event  *EventFrame `json:"event,omitempty"`
}

// EventFrame is the payload of an event-typed Response.
type EventFrame struct {
	Type    string              `json:"type"` // "market" | "order" | "metrics" | "external"
	Market  *MarketEventWire    `json:"market,omitempty"`
	Order   *OrderEventWire     `json:"order,omitempty"`
	Metrics *metrics.Report     `json:"metrics,omitempty"`
	External interface{}        `json:"external,omitempty"`
}

// MarketEventWire carries a batch of quotes or bars.
type MarketEventWire struct {
	Timestamp time.Time       `json:"timestamp"`
	Kind      broker.ValueKind `json:"kind"`
	Quotes    []broker.Quote  `json:"quotes,omitempty"`
	Bars      []broker.Bar    `json:"bars,omitempty"`
}

// OrderEventWire carries a broker match result.
type OrderEventWire struct {
	Updated []broker.OrderState `json:"updated"`
	Fill    []broker.Fill       `json:"fill"`
}

// InitResult is init's result payload.
type InitResult struct {
	ReplayTables []datasource.TableInfo `json:"replayTables"`
}

// LoginParams is login's params payload.
type LoginParams struct {
	Config BacktestConfig `json:"config"`
}

// LoginResult is login's result payload.
type LoginResult struct {
	Connected bool      `json:"connected"`
	Timestamp time.Time `json:"timestamp"`
}

// LogoutResult is logout's result payload.
type LogoutResult struct {
	Connected bool      `json:"connected"`
	Timestamp time.Time `json:"timestamp"`
}

// BacktestConfig is login's config payload, from SPEC_FULL.md §6.
type BacktestConfig struct {
	InitialCash decimal.Decimal        `json:"initialCash"`
	RiskFree    *decimal.Decimal       `json:"riskFree,omitempty"`
	Commission  *CommissionConfigWire  `json:"commission,omitempty"`
	Slippage    *SlippageConfigWire    `json:"slippage,omitempty"`
}

// CommissionConfigWire mirrors broker.CommissionConfig on the wire.
type CommissionConfigWire struct {
	Rate     *decimal.Decimal `json:"rate,omitempty"`
	PerTrade *decimal.Decimal `json:"perTrade,omitempty"`
	Minimum  *decimal.Decimal `json:"minimum,omitempty"`
	Maximum  *decimal.Decimal `json:"maximum,omitempty"`
}

// SlippageConfigWire mirrors broker.SlippageConfig on the wire.
type SlippageConfigWire struct {
	Price  *PriceSlippageWire  `json:"price,omitempty"`
	Volume *VolumeSlippageWire `json:"volume,omitempty"`
}

// PriceSlippageWire mirrors broker.PriceSlippageConfig.
type PriceSlippageWire struct {
	Fixed        *decimal.Decimal `json:"fixed,omitempty"`
	MarketImpact *decimal.Decimal `json:"marketImpact,omitempty"`
}

// VolumeSlippageWire mirrors broker.VolumeSlippageConfig.
type VolumeSlippageWire struct {
	MaxParticipation  *decimal.Decimal `json:"maxParticipation,omitempty"`
	AllowPartialFills bool             `json:"allowPartialFills,omitempty"`
}

// ToBrokerConfig converts the wire config into a broker.Config, applying
// the defaults SPEC_FULL.md §6 leaves optional.
func (c BacktestConfig) ToBrokerConfig() broker.Config {
	cfg := broker.Config{InitialCash: c.InitialCash}
	if c.Commission != nil {
		if c.Commission.Rate != nil {
			cfg.Commission.Rate = *c.Commission.Rate
		}
		if c.Commission.PerTrade != nil {
			cfg.Commission.PerTrade = *c.Commission.PerTrade
		}
		cfg.Commission.Minimum = c.Commission.Minimum
		cfg.Commission.Maximum = c.Commission.Maximum
	}
	if c.Slippage != nil {
		if c.Slippage.Price != nil {
			if c.Slippage.Price.Fixed != nil {
				cfg.Slippage.Price.FixedBps = *c.Slippage.Price.Fixed
			}
			if c.Slippage.Price.MarketImpact != nil {
				cfg.Slippage.Price.MarketImpact = *c.Slippage.Price.MarketImpact
			}
		}
		if c.Slippage.Volume != nil {
			cfg.Slippage.Volume.MaxParticipation = c.Slippage.Volume.MaxParticipation
			cfg.Slippage.Volume.AllowPartialFills = c.Slippage.Volume.AllowPartialFills
		}
	}
	return cfg
}

// RiskFree returns the configured risk-free rate, defaulting to zero.
func (c BacktestConfig) RiskFree() decimal.Decimal {
	if c.RiskFree != nil {
		return *c.RiskFree
	}
	return decimal.Zero
}

// OrderWire mirrors broker.Order on the wire.
type OrderWire struct {
	ID        string           `json:"id"`
	Symbol    string           `json:"symbol"`
	Side      broker.Side      `json:"side"`
	Effect    broker.Effect    `json:"effect"`
	Type      broker.Type      `json:"type"`
	Quantity  int64            `json:"quantity"`
	Price     *decimal.Decimal `json:"price,omitempty"`
	StopPrice *decimal.Decimal `json:"stopPrice,omitempty"`
}

func (o OrderWire) ToOrder() broker.Order {
	return broker.Order{
		ID:        o.ID,
		Symbol:    o.Symbol,
		Side:      o.Side,
		Effect:    o.Effect,
		Type:      o.Type,
		Quantity:  o.Quantity,
		Price:     o.Price,
		StopPrice: o.StopPrice,
	}
}

// PartialOrderWire mirrors broker.PartialOrder on the wire.
type PartialOrderWire struct {
	ID        string           `json:"id"`
	Price     *decimal.Decimal `json:"price,omitempty"`
	StopPrice *decimal.Decimal `json:"stopPrice,omitempty"`
	Quantity  *int64           `json:"quantity,omitempty"`
}

func (p PartialOrderWire) ToPartialOrder() broker.PartialOrder {
	return broker.PartialOrder{
		ID:        p.ID,
		Price:     p.Price,
		StopPrice: p.StopPrice,
		Quantity:  p.Quantity,
	}
}

// ReplayParams is replay's params payload, from SPEC_FULL.md §4.4.
type ReplayParams struct {
	Table           string `json:"table"`
	From            int64  `json:"from"`
	To              int64  `json:"to"`
	ReplayInterval  int64  `json:"replayInterval"`
	ReplayID        string `json:"replayId"`
	PeriodicReport  int    `json:"periodicReport,omitempty"`
	TradeReport     bool   `json:"tradeReport,omitempty"`
	EndOfDayReport  bool   `json:"endOfDayReport,omitempty"`
	MarketMultiplex bool   `json:"marketMultiplex,omitempty"`
}

// ReplayResult is replay's result payload, emitted once on completion.
type ReplayResult struct {
	ReplayID string    `json:"replayId"`
	Begin    time.Time `json:"begin"`
	End      time.Time `json:"end"`
}
