// FILE: broker_fake_test.go
// Package main – shared fake Broker for property/unit tests.
package main

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
)

// fakeBroker is a minimal in-memory Broker double. Tests configure quotes,
// balance, and an optional placeOrder hook directly on the struct.
type fakeBroker struct {
	mu sync.Mutex

	quotes      map[Symbol]BrokerQuote
	balance     BrokerBalance
	batchCalls  int
	placeOrder  func(ctx context.Context, accountKey string, symbol Symbol, side Side, qty decimal.Decimal, clientTag string) (*PlacedOrder, error)
	placedByTag map[string]*PlacedOrder
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{quotes: map[Symbol]BrokerQuote{}, placedByTag: map[string]*PlacedOrder{}}
}

func (b *fakeBroker) Name() string { return "fake" }

func (b *fakeBroker) ListAccounts(ctx context.Context) ([]BrokerAccount, error) {
	return []BrokerAccount{{ID: "acct", Key: "acct"}}, nil
}

func (b *fakeBroker) GetBalance(ctx context.Context, accountKey string) (BrokerBalance, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balance, nil
}

func (b *fakeBroker) BatchQuotes(ctx context.Context, accountKey string, symbols []Symbol) (map[Symbol]BrokerQuote, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.batchCalls++
	out := make(map[Symbol]BrokerQuote, len(symbols))
	for _, s := range symbols {
		if q, ok := b.quotes[s]; ok {
			out[s] = q
		}
	}
	return out, nil
}

// PlaceOrder models idempotent-open-under-retry (P7/S6): a second call with
// the same clientTag returns the order already recorded for that tag instead
// of creating a new fill.
func (b *fakeBroker) PlaceOrder(ctx context.Context, accountKey string, symbol Symbol, side Side, qty decimal.Decimal, clientTag string) (*PlacedOrder, error) {
	b.mu.Lock()
	if existing, ok := b.placedByTag[clientTag]; ok {
		b.mu.Unlock()
		return existing, nil
	}
	b.mu.Unlock()

	if b.placeOrder != nil {
		order, err := b.placeOrder(ctx, accountKey, symbol, side, qty, clientTag)
		if err != nil {
			return nil, err
		}
		b.mu.Lock()
		b.placedByTag[clientTag] = order
		b.mu.Unlock()
		return order, nil
	}

	b.mu.Lock()
	q := b.quotes[symbol]
	b.mu.Unlock()
	order := &PlacedOrder{OrderID: clientTag, Status: "filled", FillPrice: q.Last, FillQty: qty}
	b.mu.Lock()
	b.placedByTag[clientTag] = order
	b.mu.Unlock()
	return order, nil
}

func (b *fakeBroker) Positions(ctx context.Context, accountKey string) ([]BrokerPosition, error) {
	return nil, nil
}
