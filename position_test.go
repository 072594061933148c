// FILE: position_test.go
// Package main – PositionBook and TradeHistory tests.
package main

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// P3-equivalent book ownership: Add/Remove/Count/Has/Snapshot agree, and a
// Snapshot mutation never reaches back into the book's own map.
func TestPositionBook_SnapshotIsIndependent(t *testing.T) {
	book := NewPositionBook()
	book.Add(&Position{Symbol: "AAPL", EntryPrice: dec("100.00")})

	snap := book.Snapshot()
	snap["AAPL"].EntryPrice = dec("999.00")

	assert.True(t, book.Snapshot()["AAPL"].EntryPrice.Equal(dec("100.00")))
	assert.Equal(t, 1, book.Count())
	assert.True(t, book.Has("AAPL"))

	book.Remove("AAPL")
	assert.False(t, book.Has("AAPL"))
	assert.Equal(t, 0, book.Count())
}

func TestPositionBook_ByStateCounts(t *testing.T) {
	book := NewPositionBook()
	book.Add(&Position{Symbol: "AAPL", State: StateInitial})
	book.Add(&Position{Symbol: "MSFT", State: StateTrailing})
	book.Add(&Position{Symbol: "NVDA", State: StateTrailing})

	counts := book.ByStateCounts()
	assert.Equal(t, 1, counts[StateInitial])
	assert.Equal(t, 2, counts[StateTrailing])
}

// R1: a TradeRecord survives a JSON marshal/unmarshal round trip with every
// field intact, decimals included.
func TestTradeRecord_JSONRoundTrip(t *testing.T) {
	now := time.Date(2026, 7, 20, 14, 30, 0, 0, time.UTC)
	original := TradeRecord{
		Symbol:     "AAPL",
		EntryPrice: dec("150.00"),
		ExitPrice:  dec("155.25"),
		Quantity:   dec("10"),
		EntryTime:  now,
		ExitTime:   now.Add(2 * time.Hour),
		PnLAbs:     dec("52.50"),
		PnLPct:     dec("3.5"),
		ExitReason: ExitTrailingStop,
		Simulated:  true,
	}

	raw, err := json.Marshal(original)
	require.NoError(t, err)

	var round TradeRecord
	require.NoError(t, json.Unmarshal(raw, &round))

	assert.Equal(t, original.Symbol, round.Symbol)
	assert.True(t, original.EntryPrice.Equal(round.EntryPrice))
	assert.True(t, original.ExitPrice.Equal(round.ExitPrice))
	assert.True(t, original.Quantity.Equal(round.Quantity))
	assert.True(t, original.EntryTime.Equal(round.EntryTime))
	assert.True(t, original.ExitTime.Equal(round.ExitTime))
	assert.True(t, original.PnLAbs.Equal(round.PnLAbs))
	assert.True(t, original.PnLPct.Equal(round.PnLPct))
	assert.Equal(t, original.ExitReason, round.ExitReason)
	assert.Equal(t, original.Simulated, round.Simulated)
}

func TestTradeHistory_RecentPreservesInsertionOrder(t *testing.T) {
	h := NewTradeHistory("")
	symbols := []Symbol{"AAPL", "MSFT", "NVDA", "AMD", "TSLA"}
	for _, s := range symbols {
		h.Append(TradeRecord{Symbol: s})
	}

	recent := h.Recent()
	require.Len(t, recent, 5)
	for i, s := range symbols {
		assert.Equal(t, s, recent[i].Symbol)
	}
}

// Beyond capacity, the ring buffer evicts the oldest record and Recent still
// returns entries oldest-first.
func TestTradeHistory_EvictsOldestPastCapacity(t *testing.T) {
	h := NewTradeHistory("")
	for i := 0; i < tradeHistoryCapacity+10; i++ {
		h.Append(TradeRecord{Symbol: "X", PnLAbs: decimal.NewFromInt(int64(i))})
	}

	recent := h.Recent()
	require.Len(t, recent, tradeHistoryCapacity)
	assert.True(t, recent[0].PnLAbs.Equal(decimal.NewFromInt(10)))
	assert.True(t, recent[len(recent)-1].PnLAbs.Equal(decimal.NewFromInt(int64(tradeHistoryCapacity+9))))
}
