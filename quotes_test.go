// FILE: quotes_test.go
// Package main – Quote & Account Data Access (C3) tests.
package main

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// S5: a 60-symbol working set is fetched in ceil(60/25)=3 broker batch
// calls, never one call per symbol.
func TestDataAccess_S5_QuoteBatching(t *testing.T) {
	broker := newFakeBroker()
	symbols := make([]Symbol, 0, 60)
	for i := 0; i < 60; i++ {
		sym := Symbol(fmt.Sprintf("SYM%02d", i))
		symbols = append(symbols, sym)
		broker.quotes[sym] = BrokerQuote{Symbol: sym, Last: dec("10.00"), HasBid: true, HasAsk: true, Bid: dec("9.99"), Ask: dec("10.01")}
	}

	da := NewDataAccess(broker, "acct", 10_000, 30*time.Second)
	out := da.Quotes(context.Background(), symbols)

	require.Len(t, out, 60)
	assert.Equal(t, 3, broker.batchCalls)
}

// A symbol served from a fresh cache entry issues no additional broker call.
func TestDataAccess_FreshCacheAvoidsRefetch(t *testing.T) {
	broker := newFakeBroker()
	broker.quotes["AAPL"] = BrokerQuote{Symbol: "AAPL", Last: dec("100.00"), HasBid: true, HasAsk: true, Bid: dec("99.99"), Ask: dec("100.01")}

	da := NewDataAccess(broker, "acct", 10_000, time.Minute)
	ctx := context.Background()
	da.Quotes(ctx, []Symbol{"AAPL"})
	require.Equal(t, 1, broker.batchCalls)

	da.Quotes(ctx, []Symbol{"AAPL"})
	assert.Equal(t, 1, broker.batchCalls, "second call within TTL should be served from cache")
}

// Once the daily call budget is exhausted, Quotes falls back to stale cache
// entries instead of issuing further broker calls.
func TestDataAccess_ServesStaleUnderBudgetPressure(t *testing.T) {
	broker := newFakeBroker()
	broker.quotes["AAPL"] = BrokerQuote{Symbol: "AAPL", Last: dec("100.00"), HasBid: true, HasAsk: true, Bid: dec("99.99"), Ask: dec("100.01")}

	da := NewDataAccess(broker, "acct", 1, time.Millisecond) // budget of 1 call, near-zero TTL
	ctx := context.Background()

	out := da.Quotes(ctx, []Symbol{"AAPL"})
	require.Contains(t, out, Symbol("AAPL"))
	require.Equal(t, 1, broker.batchCalls)

	time.Sleep(2 * time.Millisecond) // cache entry now stale but within the 4x stale window
	out = da.Quotes(ctx, []Symbol{"AAPL"})
	require.Contains(t, out, Symbol("AAPL"))
	assert.True(t, out["AAPL"].Stale)
	assert.Equal(t, 1, broker.batchCalls, "budget exhausted, no second broker call")
}

func TestDataAccess_AvailableCallsToday(t *testing.T) {
	broker := newFakeBroker()
	broker.quotes["AAPL"] = BrokerQuote{Symbol: "AAPL", Last: dec("100.00")}
	da := NewDataAccess(broker, "acct", 100, 30*time.Second)

	assert.Equal(t, 100, da.AvailableCallsToday())
	da.Quotes(context.Background(), []Symbol{"AAPL"})
	assert.Equal(t, 99, da.AvailableCallsToday())
}
