package metrics

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/junduck/replayd/internal/broker"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func positionWithCash(cash string) *broker.Position {
	return &broker.Position{
		Cash:  dec(cash),
		Long:  map[string][]*broker.Lot{},
		Short: map[string][]*broker.Lot{},
	}
}

func TestReportIdempotentWithoutUpdate(t *testing.T) {
	e := New(decimal.Zero)
	pos := positionWithCash("10000")
	snap := NewSnapshot()
	ts := time.Unix(1700000000, 0)

	e.Update(pos, snap, ts)

	r1 := e.Report(Periodic, pos, snap, ts)
	r2 := e.Report(Periodic, pos, snap, ts)

	if !r1.Equity.Equal(r2.Equity) || !r1.TotalReturn.Equal(r2.TotalReturn) {
		t.Fatalf("expected identical equity and total return, got %+v vs %+v", r1, r2)
	}
	// Decimal fields hold pointers, so compare the remaining fields with
	// the decimals aligned.
	r2.Equity, r2.TotalReturn = r1.Equity, r1.TotalReturn
	if r1 != r2 {
		t.Fatalf("expected identical reports, got %+v vs %+v", r1, r2)
	}
}

func TestEquityGrowthProducesPositiveReturn(t *testing.T) {
	e := New(decimal.Zero)
	snap := NewSnapshot()
	ts := time.Unix(1700000000, 0)

	pos := positionWithCash("10000")
	e.Update(pos, snap, ts)

	pos2 := positionWithCash("11000")
	e.Update(pos2, snap, ts.Add(time.Minute))

	report := e.Report(Periodic, pos2, snap, ts.Add(time.Minute))
	if !report.TotalReturn.Equal(dec("0.1")) {
		t.Fatalf("expected total return 0.1, got %s", report.TotalReturn)
	}
	if report.WinRate != 1 {
		t.Fatalf("expected win rate 1, got %f", report.WinRate)
	}
}

func TestDrawdownTracksDeclineFromPeak(t *testing.T) {
	e := New(decimal.Zero)
	snap := NewSnapshot()
	ts := time.Unix(1700000000, 0)

	e.Update(positionWithCash("10000"), snap, ts)
	e.Update(positionWithCash("9000"), snap, ts.Add(time.Minute))
	e.Update(positionWithCash("9500"), snap, ts.Add(2*time.Minute))

	report := e.Report(Periodic, positionWithCash("9500"), snap, ts.Add(2*time.Minute))
	if report.MaxDrawdown <= 0 {
		t.Fatalf("expected positive max drawdown, got %f", report.MaxDrawdown)
	}
}

func TestResetClearsState(t *testing.T) {
	e := New(decimal.Zero)
	snap := NewSnapshot()
	ts := time.Unix(1700000000, 0)

	e.Update(positionWithCash("10000"), snap, ts)
	e.Update(positionWithCash("11000"), snap, ts.Add(time.Minute))

	e.Reset()

	report := e.Report(EndOfDay, positionWithCash("11000"), snap, ts)
	if report.WinRate != 0 || report.MaxDrawdown != 0 {
		t.Fatalf("expected cleared state after reset, got %+v", report)
	}
}
