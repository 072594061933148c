// FILE: broker_paper.go
// Package main – In-memory simulated broker (system_mode=signal_only).
//
// Kept directly from the teacher's PaperBroker (mutable last-price, uuid-tagged
// synthetic fills), rewired to the equities Broker interface. No external
// calls; orders fill instantly at the supplied reference price.
package main

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaperBroker simulates fills using the last quote price handed to it by C8.
type PaperBroker struct {
	mu     sync.Mutex
	cash   decimal.Decimal
	lastPx map[Symbol]decimal.Decimal
}

func NewPaperBroker(startingCash decimal.Decimal) *PaperBroker {
	return &PaperBroker{cash: startingCash, lastPx: map[Symbol]decimal.Decimal{}}
}

func (p *PaperBroker) Name() string { return "paper" }

// SetLastPrice is called by the executor before synthesizing a fill, since
// the paper broker has no market-data feed of its own (spec.md §4.8(b):
// "synthesize a Position with simulated=true at the current ask (or last)").
func (p *PaperBroker) SetLastPrice(sym Symbol, px decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastPx[sym] = px
}

func (p *PaperBroker) ListAccounts(ctx context.Context) ([]BrokerAccount, error) {
	return []BrokerAccount{{ID: "paper", Key: "paper"}}, nil
}

func (p *PaperBroker) GetBalance(ctx context.Context, accountKey string) (BrokerBalance, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return BrokerBalance{AvailableCash: p.cash, TotalAccountValue: p.cash}, nil
}

func (p *PaperBroker) BatchQuotes(ctx context.Context, accountKey string, symbols []Symbol) (map[Symbol]BrokerQuote, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[Symbol]BrokerQuote, len(symbols))
	for _, s := range symbols {
		if px, ok := p.lastPx[s]; ok {
			out[s] = BrokerQuote{Symbol: s, Last: px, Bid: px, Ask: px, HasBid: true, HasAsk: true}
		}
	}
	return out, nil
}

// PlaceOrder synthesizes an instant fill at the last known price for the symbol.
func (p *PaperBroker) PlaceOrder(ctx context.Context, accountKey string, symbol Symbol, side Side, qty decimal.Decimal, clientTag string) (*PlacedOrder, error) {
	p.mu.Lock()
	px, ok := p.lastPx[symbol]
	if !ok {
		p.mu.Unlock()
		return nil, newErr("broker", ErrBrokerPermanent, errNoPaperPrice(symbol))
	}
	notional := px.Mul(qty)
	if side == SideBuy {
		p.cash = p.cash.Sub(notional)
	} else {
		p.cash = p.cash.Add(notional)
	}
	p.mu.Unlock()
	return &PlacedOrder{
		OrderID:    uuid.New().String(),
		Status:     "filled",
		FillPrice:  px,
		FillQty:    qty,
		CreateTime: time.Now().UTC(),
	}, nil
}

func (p *PaperBroker) Positions(ctx context.Context, accountKey string) ([]BrokerPosition, error) {
	return nil, nil // the engine's own position map is authoritative in simulated mode
}

type paperPriceError struct{ symbol Symbol }

func (e paperPriceError) Error() string { return "no simulated price set for " + string(e.symbol) }

func errNoPaperPrice(s Symbol) error { return paperPriceError{symbol: s} }
