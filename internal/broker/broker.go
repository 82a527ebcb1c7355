package broker

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Broker is a single client's order book, matcher, and position ledger. A
// Broker is logically single-writer (SPEC_FULL.md §5) but is reached from
// both the transport's serial handler loop and the replay goroutine, so
// its state is guarded by a mutex exactly like the teacher's per-connection
// state that crosses goroutine boundaries (e.g. connState.pending).
type Broker struct {
	cfg Config

	mu          sync.Mutex
	openOrders  *orderedOrders
	openSymbols map[string]int
	position    *Position
}

// New creates a Broker seeded with cfg.InitialCash.
func New(cfg Config) *Broker {
	return &Broker{
		cfg:         cfg,
		openOrders:  newOrderedOrders(),
		openSymbols: make(map[string]int),
		position: &Position{
			Cash:     cfg.InitialCash,
			Long:     make(map[string][]*Lot),
			Short:    make(map[string][]*Lot),
			Modified: time.Time{},
		},
	}
}

// Submit ingests a batch of new orders. Each input order yields exactly one
// OrderState: REJECTED on id collision or when the order fails Valid() (in
// both cases without mutating state), else OPEN.
func (b *Broker) Submit(orders []Order, now time.Time) []OrderState {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]OrderState, 0, len(orders))
	for _, o := range orders {
		if _, exists := b.openOrders.get(o.ID); exists {
			rejected := OrderState{
				Order:             o,
				RemainingQuantity: o.Quantity,
				Status:            Rejected,
				Modified:          now,
			}
			out = append(out, rejected)
			continue
		}
		if !o.Valid() {
			rejected := OrderState{
				Order:             o,
				RemainingQuantity: o.Quantity,
				Status:            Rejected,
				Modified:          now,
			}
			out = append(out, rejected)
			continue
		}

		state := &OrderState{
			Order:             o,
			RemainingQuantity: o.Quantity,
			Status:            Open,
			Modified:          now,
		}
		b.openOrders.insert(o.ID, state)
		b.openSymbols[o.Symbol]++
		out = append(out, state.Clone())
	}
	return out
}

// Amend applies partial updates to open orders, returning only the states
// that matched an open order id. A resulting negative remaining quantity
// cancels the order instead of leaving it in an invalid state.
func (b *Broker) Amend(partials []PartialOrder, now time.Time) []OrderState {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]OrderState, 0, len(partials))
	for _, p := range partials {
		state, ok := b.openOrders.get(p.ID)
		if !ok {
			continue
		}
		if p.Price != nil {
			price := *p.Price
			state.Price = &price
		}
		if p.StopPrice != nil {
			stop := *p.StopPrice
			state.StopPrice = &stop
		}
		if p.Quantity != nil {
			state.Quantity = *p.Quantity
		}
		state.RemainingQuantity = state.Quantity - state.FilledQuantity
		state.Modified = now

		if state.RemainingQuantity < 0 {
			state.Status = Cancelled
			state.RemainingQuantity = 0
			b.removeOpen(state)
		}
		out = append(out, state.Clone())
	}
	return out
}

// Cancel cancels the open orders matching ids, returning only the ones
// that matched.
func (b *Broker) Cancel(ids []string, now time.Time) []OrderState {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]OrderState, 0, len(ids))
	for _, id := range ids {
		state, ok := b.openOrders.get(id)
		if !ok {
			continue
		}
		state.Status = Cancelled
		state.Modified = now
		b.removeOpen(state)
		out = append(out, state.Clone())
	}
	return out
}

// CancelAll cancels every open order.
func (b *Broker) CancelAll(now time.Time) []OrderState {
	b.mu.Lock()
	defer b.mu.Unlock()

	states := b.openOrders.inOrder()
	out := make([]OrderState, 0, len(states))
	for _, state := range states {
		state.Status = Cancelled
		state.Modified = now
		out = append(out, state.Clone())
	}
	b.openOrders.clear()
	b.openSymbols = make(map[string]int)
	return out
}

// removeOpen must be called with b.mu held. It removes a terminal order
// from openOrders/openSymbols, maintaining the refcount invariant from
// SPEC_FULL.md §8.
func (b *Broker) removeOpen(state *OrderState) {
	b.openOrders.delete(state.ID)
	b.openSymbols[state.Symbol]--
	if b.openSymbols[state.Symbol] <= 0 {
		delete(b.openSymbols, state.Symbol)
	}
}

// OpenSymbols returns the set of symbols with at least one open order,
// used by the replay orchestrator to decide whether phase 1 applies to a
// given batch for this client.
func (b *Broker) OpenSymbols() map[string]int {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]int, len(b.openSymbols))
	for k, v := range b.openSymbols {
		out[k] = v
	}
	return out
}

// OpenOrders returns a deep copy of the currently open orders, in
// insertion order.
func (b *Broker) OpenOrders() []OrderState {
	b.mu.Lock()
	defer b.mu.Unlock()
	states := b.openOrders.inOrder()
	out := make([]OrderState, len(states))
	for i, s := range states {
		out[i] = s.Clone()
	}
	return out
}

// Position returns a deep copy of the current position.
func (b *Broker) Position() *Position {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.position.Clone()
}

func newFillID() string {
	return uuid.NewString()
}

// compute returns rate*notional + perTrade, then applies the configured
// [minimum, maximum] clamp, when configured.
func (cfg CommissionConfig) compute(notional decimal.Decimal) decimal.Decimal {
	comm := cfg.Rate.Mul(notional).Add(cfg.PerTrade)
	if cfg.Minimum != nil && comm.LessThan(*cfg.Minimum) {
		comm = *cfg.Minimum
	}
	if cfg.Maximum != nil && comm.GreaterThan(*cfg.Maximum) {
		comm = *cfg.Maximum
	}
	return comm
}
