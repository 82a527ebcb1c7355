package memsource

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/junduck/replayd/internal/broker"
	"github.com/junduck/replayd/internal/datasource"
	"github.com/junduck/replayd/internal/epoch"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func ptr(d decimal.Decimal) *decimal.Decimal {
	return &d
}

func fixtureTable() Table {
	base := time.Unix(1700000000, 0).UTC()
	return Table{
		Info: datasource.TableInfo{
			Name:      "ticks",
			StartTime: base,
			EndTime:   base.Add(2 * time.Minute),
			Unit:      epoch.Seconds,
			Timezone:  "UTC",
			Kind:      broker.KindQuote,
		},
		Batches: []broker.MarketBatch{
			{
				Timestamp: base,
				Kind:      broker.KindQuote,
				Quotes: []broker.Quote{
					{Symbol: "AAPL", Price: dec("100.05"), Bid: ptr(dec("100")), Ask: ptr(dec("100.1"))},
					{Symbol: "MSFT", Price: dec("200.05"), Bid: ptr(dec("200")), Ask: ptr(dec("200.1"))},
				},
			},
			{
				Timestamp: base.Add(time.Minute),
				Kind:      broker.KindQuote,
				Quotes: []broker.Quote{
					{Symbol: "AAPL", Price: dec("101.05"), Bid: ptr(dec("101")), Ask: ptr(dec("101.1"))},
				},
			},
		},
	}
}

func TestEnumerateTablesReturnsFixture(t *testing.T) {
	src := New(fixtureTable())
	tables, err := src.EnumerateTables(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tables) != 1 || tables[0].Name != "ticks" {
		t.Fatalf("expected one table named ticks, got %+v", tables)
	}
}

func TestOpenUnknownTable(t *testing.T) {
	src := New(fixtureTable())
	_, err := src.Open(context.Background(), "nope", time.Time{}, time.Time{}, nil)
	if _, ok := err.(datasource.ErrUnknownTable); !ok {
		t.Fatalf("expected ErrUnknownTable, got %v", err)
	}
}

func TestOpenWildcardReturnsAllSymbols(t *testing.T) {
	table := fixtureTable()
	src := New(table)
	it, err := src.Open(context.Background(), "ticks", table.Info.StartTime, table.Info.EndTime, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer it.Close()

	batch, ok, err := it.Next(context.Background())
	if err != nil || !ok {
		t.Fatalf("expected first batch, got ok=%v err=%v", ok, err)
	}
	if len(batch.Symbols()) != 2 {
		t.Fatalf("expected 2 symbols in first batch, got %d", len(batch.Symbols()))
	}
}

func TestOpenFilteredDropsUnmatchedSymbolsAndEmptyBatches(t *testing.T) {
	table := fixtureTable()
	src := New(table)
	symbols := map[string]struct{}{"MSFT": {}}
	it, err := src.Open(context.Background(), "ticks", table.Info.StartTime, table.Info.EndTime, symbols)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer it.Close()

	batch, ok, err := it.Next(context.Background())
	if err != nil || !ok {
		t.Fatalf("expected one batch, got ok=%v err=%v", ok, err)
	}
	if got := batch.Symbols(); len(got) != 1 || got[0] != "MSFT" {
		t.Fatalf("expected only MSFT, got %v", got)
	}

	// Second fixture batch only has AAPL, which is filtered out entirely —
	// it must not surface as an empty batch.
	_, ok, err = it.Next(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected iterator exhausted after filtering out remaining batch")
	}
}

func TestOpenTimeRangeExcludesOutOfWindowBatches(t *testing.T) {
	table := fixtureTable()
	src := New(table)
	it, err := src.Open(context.Background(), "ticks", table.Info.StartTime, table.Info.StartTime, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer it.Close()

	_, ok, err := it.Next(context.Background())
	if err != nil || !ok {
		t.Fatalf("expected first batch within range")
	}
	_, ok, err = it.Next(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected no second batch, it falls outside [from, to]")
	}
}

func TestIteratorCloseIsIdempotentAndExhausts(t *testing.T) {
	table := fixtureTable()
	src := New(table)
	it, err := src.Open(context.Background(), "ticks", table.Info.StartTime, table.Info.EndTime, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := it.Close(); err != nil {
		t.Fatalf("unexpected error on close: %v", err)
	}
	if err := it.Close(); err != nil {
		t.Fatalf("expected idempotent close, got error: %v", err)
	}
	_, ok, err := it.Next(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected exhausted iterator after close")
	}
}
