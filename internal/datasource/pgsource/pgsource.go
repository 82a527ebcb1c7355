// Package pgsource is the Postgres/TimescaleDB-backed DataSource. Tables
// are catalogued in a replay_tables row; quote/bar rows stream from a
// server-side cursor and are grouped client-side into batches sharing one
// timestamp, since SPEC_FULL.md's batch contract doesn't assume the
// storage engine groups rows itself (SPEC_FULL.md §4.6).
package pgsource

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/junduck/replayd/internal/broker"
	"github.com/junduck/replayd/internal/datasource"
	"github.com/junduck/replayd/internal/epoch"
)

// Source is a DataSource backed by a shared pgxpool.Pool. Safe for
// concurrent use across connections, per SPEC_FULL.md §5.
type Source struct {
	pool *pgxpool.Pool
}

// New wraps an already-connected pool (see internal/storage.Connect).
func New(pool *pgxpool.Pool) *Source {
	return &Source{pool: pool}
}

func (s *Source) EnumerateTables(ctx context.Context) ([]datasource.TableInfo, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT name, start_time, end_time, epoch_unit, timezone, value_kind
		FROM replay_tables
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("pgsource: enumerate tables: %w", err)
	}
	defer rows.Close()

	var out []datasource.TableInfo
	for rows.Next() {
		var (
			info     datasource.TableInfo
			unit     string
			kind     string
		)
		if err := rows.Scan(&info.Name, &info.StartTime, &info.EndTime, &unit, &info.Timezone, &kind); err != nil {
			return nil, fmt.Errorf("pgsource: scan table row: %w", err)
		}
		info.Unit = epoch.Unit(unit)
		info.Kind = broker.ValueKind(kind)
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgsource: iterate table rows: %w", err)
	}
	return out, nil
}

func (s *Source) Open(ctx context.Context, table string, from, to time.Time, symbols map[string]struct{}) (datasource.Iterator, error) {
	kind, err := s.tableKind(ctx, table)
	if err != nil {
		return nil, err
	}

	query, args := selectQuery(table, kind, from, to, symbols)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pgsource: open %s: %w", table, err)
	}

	return &iterator{rows: rows, kind: kind}, nil
}

func (s *Source) tableKind(ctx context.Context, table string) (broker.ValueKind, error) {
	var kind string
	err := s.pool.QueryRow(ctx, `SELECT value_kind FROM replay_tables WHERE name = $1`, table).Scan(&kind)
	if err == pgx.ErrNoRows {
		return "", datasource.ErrUnknownTable{Table: table}
	}
	if err != nil {
		return "", fmt.Errorf("pgsource: lookup table kind: %w", err)
	}
	return broker.ValueKind(kind), nil
}

func selectQuery(table string, kind broker.ValueKind, from, to time.Time, symbols map[string]struct{}) (string, []any) {
	var cols string
	switch kind {
	case broker.KindBar:
		cols = "ts, symbol, open, high, low, close, volume"
	default:
		cols = "ts, symbol, price, bid, ask, volume"
	}

	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE ts BETWEEN $1 AND $2
	`, cols, pgx.Identifier{table}.Sanitize())
	args := []any{from, to}

	if len(symbols) > 0 {
		list := make([]string, 0, len(symbols))
		for sym := range symbols {
			list = append(list, sym)
		}
		query += " AND symbol = ANY($3)"
		args = append(args, list)
	}
	query += " ORDER BY ts, symbol"
	return query, args
}

// iterator groups consecutive equal-timestamp rows into one MarketBatch,
// per the Iterator contract (one batch per distinct epoch).
type iterator struct {
	rows pgx.Rows
	kind broker.ValueKind

	pending  bool
	pendTime time.Time
	pendRow  rawRow
}

type rawRow struct {
	symbol string
	price  decimal.Decimal
	bid    *decimal.Decimal
	ask    *decimal.Decimal
	open   decimal.Decimal
	high   decimal.Decimal
	low    decimal.Decimal
	close  decimal.Decimal
	volume *int64
	ts     time.Time
}

func (it *iterator) scanRow() (rawRow, bool, error) {
	if !it.rows.Next() {
		if err := it.rows.Err(); err != nil {
			return rawRow{}, false, err
		}
		return rawRow{}, false, nil
	}

	var r rawRow
	var err error
	switch it.kind {
	case broker.KindBar:
		err = it.rows.Scan(&r.ts, &r.symbol, &r.open, &r.high, &r.low, &r.close, &r.volume)
	default:
		err = it.rows.Scan(&r.ts, &r.symbol, &r.price, &r.bid, &r.ask, &r.volume)
	}
	if err != nil {
		return rawRow{}, false, err
	}
	return r, true, nil
}

func (it *iterator) Next(ctx context.Context) (broker.MarketBatch, bool, error) {
	if err := ctx.Err(); err != nil {
		return broker.MarketBatch{}, false, err
	}

	var first rawRow
	if it.pending {
		first = it.pendRow
		it.pending = false
	} else {
		row, ok, err := it.scanRow()
		if err != nil {
			return broker.MarketBatch{}, false, err
		}
		if !ok {
			return broker.MarketBatch{}, false, nil
		}
		first = row
	}

	batch := broker.MarketBatch{Timestamp: first.ts, Kind: it.kind}
	appendRow(&batch, first)

	for {
		row, ok, err := it.scanRow()
		if err != nil {
			return broker.MarketBatch{}, false, err
		}
		if !ok {
			break
		}
		if !row.ts.Equal(first.ts) {
			it.pending = true
			it.pendRow = row
			break
		}
		appendRow(&batch, row)
	}

	return batch, true, nil
}

func appendRow(batch *broker.MarketBatch, r rawRow) {
	switch batch.Kind {
	case broker.KindBar:
		batch.Bars = append(batch.Bars, broker.Bar{
			Symbol:    r.symbol,
			Timestamp: r.ts,
			Open:      r.open,
			High:      r.high,
			Low:       r.low,
			Close:     r.close,
			Volume:    r.volume,
		})
	default:
		batch.Quotes = append(batch.Quotes, broker.Quote{
			Symbol:    r.symbol,
			Timestamp: r.ts,
			Price:     r.price,
			Bid:       r.bid,
			Ask:       r.ask,
			Volume:    r.volume,
		})
	}
}

func (it *iterator) Close() error {
	it.rows.Close()
	return nil
}
