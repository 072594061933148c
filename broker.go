// FILE: broker.go
// Package main – Broker abstraction shared by every execution backend (C3/C8).
//
// This generalizes the teacher's single-pair crypto Broker interface
// (price lookup, market order by quote USD) to the four equities operations
// spec.md §6.1 actually requires: list accounts, get balance, batch quotes,
// place order. Two concrete implementations exist:
//   - broker_etrade.go  – OAuth1.0a-signed HTTP broker (live or sandbox)
//   - broker_paper.go   – in-memory simulated broker (system_mode=signal_only)
package main

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// OrderType is the order execution style. Only MARKET is used by this engine.
type OrderType string

const OrderMarket OrderType = "MARKET"

// BrokerAccount identifies one brokerage account as returned by ListAccounts.
type BrokerAccount struct {
	ID  string
	Key string
}

// BrokerBalance is the account's cash/value snapshot (spec.md §6.1).
type BrokerBalance struct {
	AvailableCash      decimal.Decimal
	TotalAccountValue  decimal.Decimal
}

// BrokerQuote is the per-symbol payload the batch-quotes call returns.
type BrokerQuote struct {
	Symbol    Symbol
	Last      decimal.Decimal
	Bid       decimal.Decimal
	Ask       decimal.Decimal
	HasBid    bool
	HasAsk    bool
	Volume    int64
	DayHigh   decimal.Decimal
	DayLow    decimal.Decimal
	PrevClose decimal.Decimal
}

// BrokerPosition is a position reported by the broker (used informatively by
// C3 to compute managed_position_value; engine-opened positions are tracked
// independently in C9's position map).
type BrokerPosition struct {
	Symbol        Symbol
	Quantity      decimal.Decimal
	MarketValue   decimal.Decimal
}

// PlacedOrder is the normalized result of a broker order placement.
type PlacedOrder struct {
	OrderID    string
	Status     string // e.g. "filled", "partial", "rejected", "pending"
	FillPrice  decimal.Decimal
	FillQty    decimal.Decimal
	CreateTime time.Time
}

// Broker is the minimal surface the engine needs from the brokerage (spec.md §6.1).
// Errors returned must be a *TradingError with Kind ErrBrokerTransient or
// ErrBrokerPermanent so callers can decide whether to retry.
type Broker interface {
	Name() string
	ListAccounts(ctx context.Context) ([]BrokerAccount, error)
	GetBalance(ctx context.Context, accountKey string) (BrokerBalance, error)
	BatchQuotes(ctx context.Context, accountKey string, symbols []Symbol) (map[Symbol]BrokerQuote, error)
	PlaceOrder(ctx context.Context, accountKey string, symbol Symbol, side Side, qty decimal.Decimal, clientTag string) (*PlacedOrder, error)
	Positions(ctx context.Context, accountKey string) ([]BrokerPosition, error)
}
