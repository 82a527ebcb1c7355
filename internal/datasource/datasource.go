// Package datasource defines the DataSource collaborator interface from
// SPEC_FULL.md §4.6/§6: enumerate replayable tables, and open a
// time-ordered batch iterator over one, filtered by an optional symbol
// set.
package datasource

import (
	"context"
	"time"

	"github.com/junduck/replayd/internal/broker"
	"github.com/junduck/replayd/internal/epoch"
)

// TableInfo describes one replayable table, as returned by init.
type TableInfo struct {
	Name      string
	StartTime time.Time
	EndTime   time.Time
	Unit      epoch.Unit
	Timezone  string
	Kind      broker.ValueKind
}

// Iterator yields batches in strictly non-decreasing timestamp order; each
// batch contains exactly the rows sharing one distinct epoch. Close
// releases any backing resources (a DB cursor, a file handle) and must be
// safe to call more than once.
type Iterator interface {
	Next(ctx context.Context) (broker.MarketBatch, bool, error)
	Close() error
}

// DataSource is the external collaborator the replay orchestrator drives.
// Implementations must be safe for concurrent use across connections —
// the backing store (e.g. a pgxpool.Pool) is shared, per SPEC_FULL.md §5.
type DataSource interface {
	EnumerateTables(ctx context.Context) ([]TableInfo, error)

	// Open scopes an iterator to [from, to] (inclusive) on table, filtered
	// to symbols. An empty/nil symbols set means no filter ("wildcard").
	Open(ctx context.Context, table string, from, to time.Time, symbols map[string]struct{}) (Iterator, error)
}

// ErrUnknownTable is returned by Open when table isn't in EnumerateTables.
type ErrUnknownTable struct {
	Table string
}

func (e ErrUnknownTable) Error() string {
	return "datasource: unknown table " + e.Table
}
