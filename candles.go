// FILE: candles.go
// Package main – Intraday candle history derived from quote ticks.
//
// The broker API (spec.md §6.1) exposes only point-in-time quotes, not a
// historical-bars endpoint, so the technical features C4/C5/C9 need (RSI,
// relative volume, momentum) are built by folding each quote this engine
// already fetches into a per-minute OHLCV bucket — the same "accumulate as
// you go" shape the teacher used for its in-memory candle slice in
// trader.go, just fed by quotes instead of a /candles call. Bounded by
// candle_history_len per symbol (ring-buffer trim, not unbounded growth).
package main

import (
	"sync"
	"time"
)

// CandleStore is the shared, append-only (per minute) candle history.
type CandleStore struct {
	mu         sync.Mutex
	bars       map[Symbol][]Candle
	lastCumVol map[Symbol]float64 // last cumulative day volume seen, to derive per-bar deltas
	maxLen     int
}

// NewCandleStore builds an empty store retaining up to maxLen bars/symbol.
func NewCandleStore(maxLen int) *CandleStore {
	return &CandleStore{bars: map[Symbol][]Candle{}, lastCumVol: map[Symbol]float64{}, maxLen: maxLen}
}

// Ingest folds a Quote into the current minute's candle for its symbol,
// opening a new bar if the minute has rolled over. The broker's volume field
// is cumulative for the trading day, so each bar's Volume is the delta since
// the previous reading (never negative; a reset/rollover reads as zero).
func (s *CandleStore) Ingest(q Quote) {
	last, _ := q.Last.Float64()
	if last == 0 {
		return
	}
	cum := float64(q.Volume)
	minute := q.CapturedAt.Truncate(time.Minute)

	s.mu.Lock()
	defer s.mu.Unlock()
	delta := cum - s.lastCumVol[q.Symbol]
	if delta < 0 {
		delta = 0
	}
	s.lastCumVol[q.Symbol] = cum

	bars := s.bars[q.Symbol]
	if n := len(bars); n > 0 && bars[n-1].Time.Equal(minute) {
		b := &bars[n-1]
		if last > b.High {
			b.High = last
		}
		if last < b.Low {
			b.Low = last
		}
		b.Close = last
		b.Volume += delta
		return
	}
	bars = append(bars, Candle{Time: minute, Open: last, High: last, Low: last, Close: last, Volume: delta})
	if len(bars) > s.maxLen {
		bars = bars[len(bars)-s.maxLen:]
	}
	s.bars[q.Symbol] = bars
}

// Recent returns up to n of the most recent candles for a symbol, oldest
// first. Returns nil if no history has accumulated yet (callers must treat
// this as "features unavailable", not zero).
func (s *CandleStore) Recent(sym Symbol, n int) []Candle {
	s.mu.Lock()
	defer s.mu.Unlock()
	bars := s.bars[sym]
	if len(bars) == 0 {
		return nil
	}
	if len(bars) > n {
		bars = bars[len(bars)-n:]
	}
	out := make([]Candle, len(bars))
	copy(out, bars)
	return out
}
