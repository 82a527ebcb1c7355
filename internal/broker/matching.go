package broker

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProcessOpenOrders runs one matching pass over the given batch: stop
// conversion, then fills, exactly as SPEC_FULL.md §4.3 steps 1-6 describe.
// The pass is order-deterministic: open orders are iterated in insertion
// order, and symbols are iterated in the order they appear in the batch.
func (b *Broker) ProcessOpenOrders(batch MarketBatch) MatchResult {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := batch.Timestamp
	var result MatchResult

	b.convertStops(batch, now, &result)
	b.fillPass(batch, now, &result)

	return result
}

// convertStops is step 1: STOP -> MARKET, STOP_LIMIT -> LIMIT on trigger.
func (b *Broker) convertStops(batch MarketBatch, now time.Time, result *MatchResult) {
	for _, symbol := range batch.Symbols() {
		for _, state := range b.openOrders.inOrder() {
			if state.Symbol != symbol {
				continue
			}
			if state.Type != Stop && state.Type != StopLimit {
				continue
			}
			triggered, ok := stopTriggered(batch, state)
			if !ok || !triggered {
				continue
			}
			if state.Type == Stop {
				state.Type = Market
			} else {
				state.Type = Limit
			}
			state.Modified = now
			result.Updated = append(result.Updated, state.Clone())
		}
	}
}

func stopTriggered(batch MarketBatch, state *OrderState) (bool, bool) {
	switch batch.Kind {
	case KindQuote:
		q, ok := batch.quoteFor(state.Symbol)
		if !ok {
			return false, false
		}
		if state.Side == Buy {
			return q.Price.GreaterThanOrEqual(*state.StopPrice), true
		}
		return q.Price.LessThanOrEqual(*state.StopPrice), true
	case KindBar:
		bar, ok := batch.barFor(state.Symbol)
		if !ok {
			return false, false
		}
		if state.Side == Buy {
			return bar.High.GreaterThanOrEqual(*state.StopPrice), true
		}
		return bar.Low.LessThanOrEqual(*state.StopPrice), true
	default:
		return false, false
	}
}

// fillPass is steps 2-6: matching, quantity shaping, price slippage,
// commission, and application to the order and position.
func (b *Broker) fillPass(batch MarketBatch, now time.Time, result *MatchResult) {
	for _, symbol := range batch.Symbols() {
		for _, state := range b.openOrders.inOrder() {
			if state.Symbol != symbol {
				continue
			}
			if state.Type != Market && state.Type != Limit {
				continue
			}

			matchPrice, matched := b.matchPrice(batch, state)
			if !matched {
				continue
			}

			qty, volume := b.shapeQuantity(batch, state)
			if qty <= 0 {
				continue
			}

			adjPrice := b.applySlippage(matchPrice, state.Side, qty, volume)
			notional := adjPrice.Mul(decimal.NewFromInt(qty))
			commission := b.cfg.Commission.compute(notional)

			fill := Fill{
				ID:         newFillID(),
				OrderID:    state.ID,
				Symbol:     state.Symbol,
				Side:       state.Side,
				Price:      adjPrice,
				Quantity:   qty,
				Commission: commission,
				Created:    now,
			}

			state.FilledQuantity += qty
			state.RemainingQuantity -= qty
			state.Modified = now
			if state.RemainingQuantity <= 0 {
				state.RemainingQuantity = 0
				state.Status = Filled
			} else {
				state.Status = Partial
			}

			b.applyFill(state, fill)

			result.Filled = append(result.Filled, fill)
			if state.Status == Filled {
				b.removeOpen(state)
			}
			result.Updated = append(result.Updated, state.Clone())
		}
	}
}

// matchPrice implements step 2 for a single order, returning the matched
// price and whether the order triggers at all this batch.
func (b *Broker) matchPrice(batch MarketBatch, state *OrderState) (decimal.Decimal, bool) {
	switch batch.Kind {
	case KindQuote:
		q, ok := batch.quoteFor(state.Symbol)
		if !ok {
			return decimal.Decimal{}, false
		}
		return matchTick(q, state)
	case KindBar:
		bar, ok := batch.barFor(state.Symbol)
		if !ok {
			return decimal.Decimal{}, false
		}
		return matchBar(bar, state)
	default:
		return decimal.Decimal{}, false
	}
}

func matchTick(q Quote, state *OrderState) (decimal.Decimal, bool) {
	if state.Side == Buy {
		price := q.Price
		if q.Ask != nil {
			price = *q.Ask
		}
		if state.Type == Market {
			return price, true
		}
		if price.LessThanOrEqual(*state.Price) {
			return price, true
		}
		return decimal.Decimal{}, false
	}

	price := q.Price
	if q.Bid != nil {
		price = *q.Bid
	}
	if state.Type == Market {
		return price, true
	}
	if price.GreaterThanOrEqual(*state.Price) {
		return price, true
	}
	return decimal.Decimal{}, false
}

func matchBar(bar Bar, state *OrderState) (decimal.Decimal, bool) {
	if state.Type == Market {
		return bar.Open, true
	}
	if state.Side == Buy {
		if bar.Low.LessThanOrEqual(*state.Price) {
			return decimal.Min(*state.Price, bar.Open), true
		}
		return decimal.Decimal{}, false
	}
	if bar.High.GreaterThanOrEqual(*state.Price) {
		return decimal.Max(*state.Price, bar.Open), true
	}
	return decimal.Decimal{}, false
}

// shapeQuantity implements step 3 (volume slippage), returning the fill
// quantity and the batch volume used for the subsequent market-impact
// calculation in step 4 (0 if no volume was available).
func (b *Broker) shapeQuantity(batch MarketBatch, state *OrderState) (int64, int64) {
	var volume int64
	var hasVolume bool

	switch batch.Kind {
	case KindQuote:
		q, _ := batch.quoteFor(state.Symbol)
		if q.Volume != nil {
			volume, hasVolume = *q.Volume, true
		}
	case KindBar:
		bar, _ := batch.barFor(state.Symbol)
		if bar.Volume != nil {
			volume, hasVolume = *bar.Volume, true
		}
	}

	maxPart := b.cfg.Slippage.Volume.MaxParticipation
	if !hasVolume || maxPart == nil {
		return state.RemainingQuantity, volume
	}

	cap := decimal.NewFromInt(volume).Mul(*maxPart)
	remaining := decimal.NewFromInt(state.RemainingQuantity)
	if remaining.LessThanOrEqual(cap) {
		return state.RemainingQuantity, volume
	}
	if b.cfg.Slippage.Volume.AllowPartialFills {
		return cap.Floor().IntPart(), volume
	}
	return 0, volume
}

// applySlippage implements step 4 (price slippage).
func (b *Broker) applySlippage(price decimal.Decimal, side Side, qty int64, volume int64) decimal.Decimal {
	cfg := b.cfg.Slippage.Price
	shift := decimal.Zero

	if !cfg.FixedBps.IsZero() {
		shift = shift.Add(cfg.FixedBps.Div(decimal.NewFromInt(10000)).Mul(price))
	}
	if !cfg.MarketImpact.IsZero() && volume > 0 {
		participation := decimal.NewFromInt(qty).Div(decimal.NewFromInt(volume))
		shift = shift.Add(participation.Mul(cfg.MarketImpact).Mul(price))
	}

	if side == Buy {
		return price.Add(shift)
	}
	return price.Sub(shift)
}

// applyFill implements step 6's position update: FIFO lot accounting keyed
// by the order's effect, debiting cash for commission and crediting
// realised PnL when a close consumes lots.
func (b *Broker) applyFill(state *OrderState, fill Fill) {
	pos := b.position
	pos.TotalCommission = pos.TotalCommission.Add(fill.Commission)
	pos.Modified = fill.Created

	switch state.Effect {
	case OpenLong:
		cost := fill.Price.Mul(decimal.NewFromInt(fill.Quantity))
		pos.Cash = pos.Cash.Sub(cost).Sub(fill.Commission)
		pos.Long[state.Symbol] = append(pos.Long[state.Symbol], &Lot{
			Quantity: fill.Quantity,
			Price:    fill.Price,
			Notional: cost,
		})

	case OpenShort:
		proceeds := fill.Price.Mul(decimal.NewFromInt(fill.Quantity))
		pos.Cash = pos.Cash.Add(proceeds).Sub(fill.Commission)
		pos.Short[state.Symbol] = append(pos.Short[state.Symbol], &Lot{
			Quantity: fill.Quantity,
			Price:    fill.Price,
			Notional: proceeds,
		})

	case CloseLong:
		proceeds := fill.Price.Mul(decimal.NewFromInt(fill.Quantity))
		pos.Cash = pos.Cash.Add(proceeds).Sub(fill.Commission)
		realised := b.consumeLots(pos.Long, state.Symbol, fill.Quantity, fill.Price, true)
		pos.RealisedPnL = pos.RealisedPnL.Add(realised)

	case CloseShort:
		cost := fill.Price.Mul(decimal.NewFromInt(fill.Quantity))
		pos.Cash = pos.Cash.Sub(cost).Sub(fill.Commission)
		realised := b.consumeLots(pos.Short, state.Symbol, fill.Quantity, fill.Price, false)
		pos.RealisedPnL = pos.RealisedPnL.Add(realised)
	}
}

// consumeLots removes qty units from the head of the symbol's lot queue
// (FIFO), returning the realised PnL. isLong controls the PnL sign
// convention: closing a long realises (exit - entry) * qty; closing a
// short realises (entry - exit) * qty.
func (b *Broker) consumeLots(book map[string][]*Lot, symbol string, qty int64, exitPrice decimal.Decimal, isLong bool) decimal.Decimal {
	lots := book[symbol]
	realised := decimal.Zero
	remaining := qty

	i := 0
	for i < len(lots) && remaining > 0 {
		lot := lots[i]
		take := lot.Quantity
		if take > remaining {
			take = remaining
		}

		var pnl decimal.Decimal
		if isLong {
			pnl = exitPrice.Sub(lot.Price).Mul(decimal.NewFromInt(take))
		} else {
			pnl = lot.Price.Sub(exitPrice).Mul(decimal.NewFromInt(take))
		}
		realised = realised.Add(pnl)

		lot.Quantity -= take
		remaining -= take
		if lot.Quantity == 0 {
			i++
		}
	}

	// Drop fully-consumed lots from the head (invariant 4: empty lots must
	// be removed).
	book[symbol] = lots[i:]
	if len(book[symbol]) == 0 {
		delete(book, symbol)
	}
	return realised
}
