// Package memsource is an in-memory DataSource implementation used by
// tests and local fixture replays. It is also the reference
// implementation for the wildcard-vs-filtered fetch policy, since it has
// no I/O latency to obscure the behavior under test (SPEC_FULL.md §4.6).
package memsource

import (
	"context"
	"sync"
	"time"

	"github.com/junduck/replayd/internal/broker"
	"github.com/junduck/replayd/internal/datasource"
)

// Table is a fixture table: a fixed slice of batches plus its metadata.
type Table struct {
	Info    datasource.TableInfo
	Batches []broker.MarketBatch
}

// Source holds a fixed set of in-memory tables.
type Source struct {
	mu     sync.RWMutex
	tables map[string]Table
}

// New creates a Source from the given tables, keyed by name.
func New(tables ...Table) *Source {
	s := &Source{tables: make(map[string]Table, len(tables))}
	for _, t := range tables {
		s.tables[t.Info.Name] = t
	}
	return s
}

func (s *Source) EnumerateTables(ctx context.Context) ([]datasource.TableInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]datasource.TableInfo, 0, len(s.tables))
	for _, t := range s.tables {
		out = append(out, t.Info)
	}
	return out, nil
}

func (s *Source) Open(ctx context.Context, table string, from, to time.Time, symbols map[string]struct{}) (datasource.Iterator, error) {
	s.mu.RLock()
	t, ok := s.tables[table]
	s.mu.RUnlock()
	if !ok {
		return nil, datasource.ErrUnknownTable{Table: table}
	}

	filtered := make([]broker.MarketBatch, 0, len(t.Batches))
	for _, batch := range t.Batches {
		if batch.Timestamp.Before(from) || batch.Timestamp.After(to) {
			continue
		}
		b := filterBatch(batch, symbols)
		if len(b.Symbols()) == 0 {
			continue
		}
		filtered = append(filtered, b)
	}

	return &iterator{batches: filtered}, nil
}

// filterBatch returns a copy of batch containing only rows whose symbol is
// in symbols. An empty/nil symbols set means no filtering.
func filterBatch(batch broker.MarketBatch, symbols map[string]struct{}) broker.MarketBatch {
	if len(symbols) == 0 {
		return batch
	}
	out := broker.MarketBatch{Timestamp: batch.Timestamp, Kind: batch.Kind}
	switch batch.Kind {
	case broker.KindQuote:
		for _, q := range batch.Quotes {
			if _, ok := symbols[q.Symbol]; ok {
				out.Quotes = append(out.Quotes, q)
			}
		}
	case broker.KindBar:
		for _, bar := range batch.Bars {
			if _, ok := symbols[bar.Symbol]; ok {
				out.Bars = append(out.Bars, bar)
			}
		}
	}
	return out
}

type iterator struct {
	batches []broker.MarketBatch
	pos     int
}

func (it *iterator) Next(ctx context.Context) (broker.MarketBatch, bool, error) {
	if err := ctx.Err(); err != nil {
		return broker.MarketBatch{}, false, err
	}
	if it.pos >= len(it.batches) {
		return broker.MarketBatch{}, false, nil
	}
	b := it.batches[it.pos]
	it.pos++
	return b, true, nil
}

func (it *iterator) Close() error {
	it.pos = len(it.batches)
	return nil
}
