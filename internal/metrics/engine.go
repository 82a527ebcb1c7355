package metrics

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/junduck/replayd/internal/broker"
)

// Engine is one of a client's three running metrics instances (periodic,
// trade, EOD). Each wraps the same online estimators over its own series;
// which instance is updated when is the caller's responsibility
// (SPEC_FULL.md §4.2/§4.5).
type Engine struct {
	riskFree float64

	n         int
	mean      float64 // Welford running mean of per-update returns
	m2        float64 // Welford running sum of squared deviations
	downSumSq float64 // sum of squared downside deviations from riskFree

	wins, losses int
	sumGain      float64 // sum of positive returns
	sumLoss      float64 // sum of |negative returns|

	hasPrev    bool
	prevEquity decimal.Decimal

	hasStart    bool
	startEquity decimal.Decimal

	hasPeak      bool
	peak         decimal.Decimal
	inDrawdown   bool
	ddStart      time.Time
	maxDrawdown  float64
	maxDDDur     time.Duration
}

// New creates a metrics Engine parameterised by a per-period risk-free
// rate.
func New(riskFree decimal.Decimal) *Engine {
	rf, _ := riskFree.Float64()
	return &Engine{riskFree: rf}
}

// Reset clears all running state. Called on EOD rollover, after the
// previous day's ENDOFDAY report has been emitted.
func (e *Engine) Reset() {
	*e = Engine{riskFree: e.riskFree}
}

// Update feeds one (position, snapshot) observation into the estimators.
func (e *Engine) Update(pos *broker.Position, snap *Snapshot, ts time.Time) {
	equity := MarkToMarket(pos, snap)

	if !e.hasStart {
		e.startEquity = equity
		e.hasStart = true
	}

	if e.hasPrev && !e.prevEquity.IsZero() {
		ret, _ := equity.Sub(e.prevEquity).Div(e.prevEquity).Float64()
		e.feedReturn(ret)
	}

	e.prevEquity = equity
	e.hasPrev = true
	e.updateDrawdown(equity, ts)
}

// feedReturn folds a single per-update return into the running estimators
// using Welford's online algorithm for mean/variance, plus separate
// downside-deviation and win/loss accumulators.
func (e *Engine) feedReturn(r float64) {
	e.n++
	delta := r - e.mean
	e.mean += delta / float64(e.n)
	delta2 := r - e.mean
	e.m2 += delta * delta2

	downside := math.Min(r-e.riskFree, 0)
	e.downSumSq += downside * downside

	switch {
	case r > 0:
		e.wins++
		e.sumGain += r
	case r < 0:
		e.losses++
		e.sumLoss += -r
	}
}

func (e *Engine) updateDrawdown(equity decimal.Decimal, ts time.Time) {
	if !e.hasPeak || equity.GreaterThanOrEqual(e.peak) {
		e.peak = equity
		e.hasPeak = true
		e.inDrawdown = false
		return
	}

	drawdown, _ := e.peak.Sub(equity).Div(e.peak).Float64()
	if drawdown > e.maxDrawdown {
		e.maxDrawdown = drawdown
	}
	if !e.inDrawdown {
		e.inDrawdown = true
		e.ddStart = ts
	}
	dur := ts.Sub(e.ddStart)
	if dur > e.maxDDDur {
		e.maxDDDur = dur
	}
}

// Report produces a report without mutating engine state — two calls
// without an intervening Update yield identical numeric output (invariant
// 9, SPEC_FULL.md §8). Equity and total return are recomputed fresh from
// the given position/snapshot; the statistical fields reflect the
// estimators' last Update.
func (e *Engine) Report(kind ReportType, pos *broker.Position, snap *Snapshot, ts time.Time) Report {
	equity := MarkToMarket(pos, snap)

	totalReturn := decimal.Zero
	if e.hasStart && !e.startEquity.IsZero() {
		totalReturn = equity.Sub(e.startEquity).Div(e.startEquity)
	}

	stddev := e.stddev()
	sharpe := 0.0
	if stddev > 0 {
		sharpe = (e.mean - e.riskFree) / stddev
	}

	sortino := 0.0
	if downDev := e.downsideDeviation(); downDev > 0 {
		sortino = (e.mean - e.riskFree) / downDev
	}

	total := e.wins + e.losses
	winRate := 0.0
	if total > 0 {
		winRate = float64(e.wins) / float64(total)
	}

	avgGain := 0.0
	if e.wins > 0 {
		avgGain = e.sumGain / float64(e.wins)
	}
	avgLoss := 0.0
	if e.losses > 0 {
		avgLoss = e.sumLoss / float64(e.losses)
	}
	avgGainLossRatio := 0.0
	switch {
	case avgLoss > 0:
		avgGainLossRatio = avgGain / avgLoss
	case avgGain > 0:
		avgGainLossRatio = math.Inf(1)
	}

	expectancy := winRate*avgGain - (1-winRate)*avgLoss

	profitFactor := 0.0
	switch {
	case e.sumLoss > 0:
		profitFactor = e.sumGain / e.sumLoss
	case e.sumGain > 0:
		profitFactor = math.Inf(1)
	}

	return Report{
		ReportType:          kind,
		Timestamp:           ts,
		Equity:              equity,
		TotalReturn:         totalReturn,
		Sharpe:              sharpe,
		Sortino:             sortino,
		WinRate:             winRate,
		AvgGainLossRatio:    avgGainLossRatio,
		Expectancy:          expectancy,
		ProfitFactor:        profitFactor,
		MaxDrawdown:         e.maxDrawdown,
		MaxDrawdownDuration: e.maxDDDur,
	}
}

func (e *Engine) stddev() float64 {
	if e.n < 2 {
		return 0
	}
	return math.Sqrt(e.m2 / float64(e.n-1))
}

func (e *Engine) downsideDeviation() float64 {
	if e.n == 0 {
		return 0
	}
	return math.Sqrt(e.downSumSq / float64(e.n))
}
