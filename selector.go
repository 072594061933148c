// FILE: selector.go
// Package main – Symbol Selector (C4).
//
// Hourly (and at process start) ranks the daily watchlist down to a working
// set of size working_set_size (default 50) by a weighted composite score.
// Scoring style (normalize each feature, weighted sum, sort descending,
// truncate) follows the teacher's strategy-ranking shape in strategy.go
// before it was removed for this domain — see DESIGN.md.
package main

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"
)

const (
	relativeVolumeWindow = 20 // 20-bar average over the 1-minute candle history, not a 20-day average
	rsiPeriod            = 14
	rsiBandLow           = 40.0
	rsiBandHigh          = 70.0
	minDollarVolumeUSD   = 500_000.0 // spec.md §4.4(e) absolute floor
)

// selectorWeights are the configurable weights behind the §4.4 composite
// score. Defaults favor relative volume and momentum, matching the spirit of
// the teacher's momentum-led ranking.
type selectorWeights struct {
	RelVolume float64
	RSIBand   float64
	Momentum  float64
	Spread    float64
}

var defaultSelectorWeights = selectorWeights{RelVolume: 0.35, RSIBand: 0.25, Momentum: 0.30, Spread: 0.10}

// SymbolSelector is C4.
type SymbolSelector struct {
	data    *DataAccess
	history *CandleStore
	weights selectorWeights
	setSize int

	mu      sync.Mutex
	working WorkingSet
}

func (s *SymbolSelector) Current() WorkingSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.working
}

// NewSymbolSelector constructs C4 against the shared data access layer and
// candle history store.
func NewSymbolSelector(data *DataAccess, history *CandleStore, setSize int) *SymbolSelector {
	return &SymbolSelector{data: data, history: history, weights: defaultSelectorWeights, setSize: setSize}
}

type candidateScore struct {
	symbol Symbol
	score  float64
}

// Refresh ranks watchlist against fresh quotes and replaces the working set.
// Per spec.md §4.4, a refresh that can score fewer than half the watchlist
// keeps the previous working set and alerts instead of replacing it.
func (s *SymbolSelector) Refresh(ctx context.Context, watchlist []Symbol, alerts *AlertSink) WorkingSet {
	quotes := s.data.Quotes(ctx, watchlist)

	scored := make([]candidateScore, 0, len(watchlist))
	for _, sym := range watchlist {
		q, ok := quotes[sym]
		if !ok {
			continue
		}
		candles := s.history.Recent(sym, 61) // enough bars for the 60-bar momentum lookback
		score, ok := s.score(q, candles)
		if !ok {
			continue
		}
		scored = append(scored, candidateScore{symbol: sym, score: score})
	}

	if len(scored)*2 < len(watchlist) {
		log.Printf("[WARN] selector: only %d/%d symbols scored; keeping previous working set", len(scored), len(watchlist))
		alerts.Send(Alert{Kind: AlertOperator, Message: "symbol selector: insufficient data to re-rank, keeping previous working set", CreatedAt: time.Now().UTC()})
		return s.Current()
	}

	sort.Slice(scored, func(i, j int) bool { return scored[i].score > scored[j].score })
	if len(scored) > s.setSize {
		scored = scored[:s.setSize]
	}
	out := WorkingSet{Symbols: make([]Symbol, len(scored)), RankedAt: time.Now().UTC()}
	for i, c := range scored {
		out.Symbols[i] = c.symbol
	}

	s.mu.Lock()
	s.working = out
	s.mu.Unlock()
	return out
}

// score computes the §4.4 weighted composite for one candidate. Returns
// ok=false if the dollar-volume floor rejects the candidate outright.
func (s *SymbolSelector) score(q Quote, candles []Candle) (float64, bool) {
	last, _ := q.Last.Float64()
	dollarVolume := last * float64(q.Volume)
	if dollarVolume < minDollarVolumeUSD {
		return 0, false
	}

	relVol := 1.0
	momentum := 0.0
	rsi := 50.0
	if len(candles) > 0 {
		relVolSeries := RelativeVolume(candles, relativeVolumeWindow)
		relVol = relVolSeries[len(relVolSeries)-1]
		momSeries := Momentum(candles, 60) // ~1h of 1-minute candles
		momentum = momSeries[len(momSeries)-1]
		rsiSeries := RSI(candles, rsiPeriod)
		rsi = rsiSeries[len(rsiSeries)-1]
	}

	rsiFit := bandFit(rsi, rsiBandLow, rsiBandHigh)

	spreadPct := 0.0
	if q.HasBid && q.HasAsk && last > 0 {
		bid, _ := q.Bid.Float64()
		ask, _ := q.Ask.Float64()
		spreadPct = (ask - bid) / last * 100
	}
	spreadScore := 1.0 / (1.0 + spreadPct) // lower spread -> closer to 1.0

	w := s.weights
	composite := w.RelVolume*clamp01(relVol/3.0) +
		w.RSIBand*rsiFit +
		w.Momentum*clamp01(0.5+momentum*10) +
		w.Spread*spreadScore
	return composite, true
}

// bandFit returns 1.0 when x is inside [lo,hi], decaying linearly outside it.
func bandFit(x, lo, hi float64) float64 {
	if x >= lo && x <= hi {
		return 1.0
	}
	if x < lo {
		return clamp01(1.0 - (lo-x)/lo)
	}
	return clamp01(1.0 - (x-hi)/(100-hi))
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
