// Package metrics implements the online running performance estimators
// described in SPEC_FULL.md §4.5: Sharpe, Sortino, win-rate, average
// gain/loss ratio, expectancy, profit factor, and drawdown, updated on
// every fill/tick and emitted as one of three report flavors.
package metrics

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/junduck/replayd/internal/broker"
)

// ReportType tags which of the three report flavors a MetricsReport is.
type ReportType string

const (
	Periodic  ReportType = "PERIODIC"
	Trade     ReportType = "TRADE"
	EndOfDay  ReportType = "ENDOFDAY"
)

// Snapshot is the latest-seen price for every symbol observed so far in a
// replay, used to mark-to-market positions in symbols not present in the
// current batch. It grows monotonically for the life of a replay
// (SPEC_FULL.md §9) — acceptable for the symbol universes this server
// targets.
type Snapshot struct {
	Price     map[string]decimal.Decimal
	Timestamp time.Time
}

// NewSnapshot returns an empty snapshot ready for merging.
func NewSnapshot() *Snapshot {
	return &Snapshot{Price: make(map[string]decimal.Decimal)}
}

// Merge folds a (symbol, price) observation into the snapshot.
func (s *Snapshot) Merge(symbol string, price decimal.Decimal, ts time.Time) {
	s.Price[symbol] = price
	s.Timestamp = ts
}

// Report is the output of Engine.Report, matching the wire MetricsReport
// shape from SPEC_FULL.md §6.
type Report struct {
	ReportType          ReportType
	Timestamp           time.Time
	Equity              decimal.Decimal
	TotalReturn         decimal.Decimal
	Sharpe              float64
	Sortino             float64
	WinRate             float64
	AvgGainLossRatio    float64
	Expectancy          float64
	ProfitFactor        float64
	MaxDrawdown         float64
	MaxDrawdownDuration time.Duration
}

// MarkToMarket computes equity = cash + long lots*price - short lots*price,
// using the snapshot to value symbols absent from the current batch.
func MarkToMarket(pos *broker.Position, snap *Snapshot) decimal.Decimal {
	equity := pos.Cash
	for symbol, lots := range pos.Long {
		price, ok := snap.Price[symbol]
		if !ok {
			continue
		}
		for _, lot := range lots {
			equity = equity.Add(price.Mul(decimal.NewFromInt(lot.Quantity)))
		}
	}
	for symbol, lots := range pos.Short {
		price, ok := snap.Price[symbol]
		if !ok {
			continue
		}
		for _, lot := range lots {
			equity = equity.Sub(price.Mul(decimal.NewFromInt(lot.Quantity)))
		}
	}
	return equity
}
