package broker

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func int64Ptr(v int64) *int64 {
	return &v
}

func quoteBatch(ts time.Time, symbol string, price string, bid, ask *decimal.Decimal, volume *int64) MarketBatch {
	return MarketBatch{
		Timestamp: ts,
		Kind:      KindQuote,
		Quotes: []Quote{{
			Symbol:    symbol,
			Timestamp: ts,
			Price:     dec(price),
			Bid:       bid,
			Ask:       ask,
			Volume:    volume,
		}},
	}
}

// S1 — MARKET BUY, fully filled.
func TestMarketBuyFullyFilled(t *testing.T) {
	b := New(Config{InitialCash: dec("10000")})
	now := time.Unix(1700000000, 0)

	states := b.Submit([]Order{{
		ID: "o1", Symbol: "X", Side: Buy, Effect: OpenLong, Type: Market, Quantity: 10,
	}}, now)
	if states[0].Status != Open {
		t.Fatalf("expected OPEN after submit, got %s", states[0].Status)
	}

	batch := quoteBatch(now, "X", "100", nil, nil, nil)
	result := b.ProcessOpenOrders(batch)

	if len(result.Filled) != 1 {
		t.Fatalf("expected 1 fill, got %d", len(result.Filled))
	}
	fill := result.Filled[0]
	if fill.OrderID != "o1" || !fill.Price.Equal(dec("100")) || fill.Quantity != 10 || !fill.Commission.IsZero() {
		t.Fatalf("unexpected fill: %+v", fill)
	}
	if len(result.Updated) != 1 || result.Updated[0].Status != Filled {
		t.Fatalf("expected updated order FILLED, got %+v", result.Updated)
	}

	pos := b.Position()
	if !pos.Cash.Equal(dec("9000")) {
		t.Fatalf("expected cash 9000, got %s", pos.Cash)
	}
	lots := pos.Long["X"]
	if len(lots) != 1 || lots[0].Quantity != 10 || !lots[0].Price.Equal(dec("100")) {
		t.Fatalf("unexpected long lots: %+v", lots)
	}
	if b.openOrders.len() != 0 {
		t.Fatalf("expected no open orders remaining")
	}
}

// S2 — LIMIT not triggered.
func TestLimitNotTriggered(t *testing.T) {
	b := New(Config{InitialCash: dec("10000")})
	now := time.Unix(1700000000, 0)

	b.Submit([]Order{{
		ID: "o2", Symbol: "X", Side: Buy, Effect: OpenLong, Type: Limit, Price: decPtr("99"), Quantity: 5,
	}}, now)

	ask := dec("100")
	batch := quoteBatch(now, "X", "100", nil, &ask, nil)
	result := b.ProcessOpenOrders(batch)

	if len(result.Filled) != 0 {
		t.Fatalf("expected no fill, got %+v", result.Filled)
	}
	state, ok := b.openOrders.get("o2")
	if !ok || state.Status != Open {
		t.Fatalf("expected o2 still OPEN, got %+v", state)
	}
}

// S3 — partial fill with volume cap.
func TestPartialFillVolumeCap(t *testing.T) {
	maxPart := dec("0.1")
	b := New(Config{
		InitialCash: dec("1000000"),
		Slippage: SlippageConfig{
			Volume: VolumeSlippageConfig{MaxParticipation: &maxPart, AllowPartialFills: true},
		},
	})
	now := time.Unix(1700000000, 0)

	b.Submit([]Order{{
		ID: "o", Symbol: "X", Side: Buy, Effect: OpenLong, Type: Market, Quantity: 1000,
	}}, now)

	vol := int64(5000)
	batch := quoteBatch(now, "X", "50", nil, nil, &vol)
	result := b.ProcessOpenOrders(batch)

	if len(result.Filled) != 1 || result.Filled[0].Quantity != 500 {
		t.Fatalf("expected one fill of 500, got %+v", result.Filled)
	}
	state, ok := b.openOrders.get("o")
	if !ok || state.Status != Partial || state.RemainingQuantity != 500 {
		t.Fatalf("expected PARTIAL with 500 remaining, got %+v", state)
	}
}

// S4 — duplicate id rejection.
func TestDuplicateIDRejected(t *testing.T) {
	b := New(Config{InitialCash: dec("10000")})
	now := time.Unix(1700000000, 0)

	states := b.Submit([]Order{
		{ID: "o3", Symbol: "X", Side: Buy, Effect: OpenLong, Type: Market, Quantity: 1},
		{ID: "o3", Symbol: "X", Side: Buy, Effect: OpenLong, Type: Market, Quantity: 1},
	}, now)

	if states[0].Status != Open || states[1].Status != Rejected {
		t.Fatalf("expected [OPEN, REJECTED], got [%s, %s]", states[0].Status, states[1].Status)
	}
	if b.openOrders.len() != 1 {
		t.Fatalf("expected exactly one open order, got %d", b.openOrders.len())
	}
}

func TestInvariantRefcountMatchesOpenOrders(t *testing.T) {
	b := New(Config{InitialCash: dec("10000")})
	now := time.Unix(1700000000, 0)

	b.Submit([]Order{
		{ID: "a", Symbol: "X", Side: Buy, Effect: OpenLong, Type: Limit, Price: decPtr("1"), Quantity: 1},
		{ID: "b", Symbol: "X", Side: Buy, Effect: OpenLong, Type: Limit, Price: decPtr("1"), Quantity: 1},
		{ID: "c", Symbol: "Y", Side: Buy, Effect: OpenLong, Type: Limit, Price: decPtr("1"), Quantity: 1},
	}, now)

	total := 0
	for _, v := range b.openSymbols {
		total += v
	}
	if total != b.openOrders.len() {
		t.Fatalf("refcount sum %d != open orders %d", total, b.openOrders.len())
	}

	b.Cancel([]string{"a"}, now)
	total = 0
	for _, v := range b.openSymbols {
		total += v
	}
	if total != b.openOrders.len() {
		t.Fatalf("after cancel: refcount sum %d != open orders %d", total, b.openOrders.len())
	}
}

func TestAmendNegativeRemainingCancels(t *testing.T) {
	b := New(Config{InitialCash: dec("10000")})
	now := time.Unix(1700000000, 0)

	b.Submit([]Order{{ID: "o", Symbol: "X", Side: Buy, Effect: OpenLong, Type: Limit, Price: decPtr("1"), Quantity: 10}}, now)

	newQty := int64(-5)
	amended := b.Amend([]PartialOrder{{ID: "o", Quantity: &newQty}}, now)
	if len(amended) != 1 || amended[0].Status != Cancelled {
		t.Fatalf("expected cancellation on negative remaining, got %+v", amended)
	}
	if _, ok := b.openOrders.get("o"); ok {
		t.Fatalf("expected order removed from open map")
	}
}

func TestStopConversionTriggersOnTick(t *testing.T) {
	b := New(Config{InitialCash: dec("10000")})
	now := time.Unix(1700000000, 0)

	b.Submit([]Order{{
		ID: "s1", Symbol: "X", Side: Buy, Effect: OpenLong, Type: Stop, StopPrice: decPtr("100"), Quantity: 1,
	}}, now)

	batch := quoteBatch(now, "X", "101", nil, nil, nil)
	result := b.ProcessOpenOrders(batch)

	// Stop converts to MARKET and fills in the same pass.
	if len(result.Filled) != 1 {
		t.Fatalf("expected stop to convert and fill same pass, got %+v", result)
	}
}

func TestBarModeLimitFillsAtBoundedPrice(t *testing.T) {
	b := New(Config{InitialCash: dec("100000")})
	now := time.Unix(1700000000, 0)

	b.Submit([]Order{{
		ID: "o", Symbol: "X", Side: Buy, Effect: OpenLong, Type: Limit, Price: decPtr("95"), Quantity: 10,
	}}, now)

	batch := MarketBatch{
		Timestamp: now,
		Kind:      KindBar,
		Bars: []Bar{{
			Symbol: "X", Timestamp: now,
			Open: dec("100"), High: dec("102"), Low: dec("90"), Close: dec("98"),
		}},
	}
	result := b.ProcessOpenOrders(batch)
	if len(result.Filled) != 1 {
		t.Fatalf("expected fill, got %+v", result)
	}
	// min(order.price=95, bar.open=100) = 95
	if !result.Filled[0].Price.Equal(dec("95")) {
		t.Fatalf("expected fill at 95, got %s", result.Filled[0].Price)
	}
}
