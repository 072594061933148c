// FILE: signal.go
// Package main – Signal Generator (C6).
//
// Runs the eight-step gate pipeline of spec.md §4.6 per symbol in the
// working set, turning C5's AgreementResult into at most one Signal. Gate-
// chain style (sequential checks, any failure returns early with no error)
// mirrors the teacher's decide() control flow in trader.go, reworked around
// the engine's own gates instead of a single buy/sell threshold.
package main

import (
	"time"

	"github.com/shopspring/decimal"
)

// Step 2's agreement bonus table is fixed by spec.md §4.6 and distinct from
// C7's agreement bonus used in position sizing.
const (
	signalBonusLow    = 0.0
	signalBonusMedium = 0.05
	signalBonusHigh   = 0.10
)

const minQualityScore = 40.0

// SignalGenerator is C6.
type SignalGenerator struct {
	cfg     *Config
	history *CandleStore
}

func NewSignalGenerator(cfg *Config, history *CandleStore) *SignalGenerator {
	return &SignalGenerator{cfg: cfg, history: history}
}

// Generate produces at most one Signal for the symbol, or ok=false if any
// gate rejects it. Per spec.md §4.6, gate rejection is "no signal", never an
// error.
func (g *SignalGenerator) Generate(sym Symbol, ar AgreementResult, q Quote, candles []Candle) (Signal, bool) {
	// 1. Reject if agreement is NONE.
	if ar.Agreement == AgreementNone {
		return Signal{}, false
	}

	// 2. confidence = clamp(composite * (1 + agreement_bonus), 0, 0.999)
	bonus := signalAgreementBonus(ar.Agreement)
	confidence := ar.Composite * (1 + bonus)
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 0.999 {
		confidence = 0.999
	}

	// 3. Reject if confidence below the per-mode floor.
	if confidence < g.cfg.MinSignalConfidence() {
		return Signal{}, false
	}

	// 4. expected_return_pct: blend momentum-derived and strategy-derived
	// targets, floored at 2%.
	expectedReturn := g.expectedReturnPct(candles, ar)

	// 5. quality_score: weighted combo of liquidity, volatility-band fit,
	// and confidence.
	quality := g.qualityScore(q, candles, confidence)

	// 6. Reject if quality_score < 40.
	if quality < minQualityScore {
		return Signal{}, false
	}

	last, _ := q.Last.Float64()
	entryRef := last
	if q.HasAsk {
		if ask, _ := q.Ask.Float64(); ask > 0 {
			entryRef = ask
		}
	}
	if entryRef <= 0 {
		return Signal{}, false
	}

	// 7. Stale signal guard: reject if price already moved >1% above the
	// reference entry implied by the candle history's latest close.
	if len(candles) > 0 {
		refClose := candles[len(candles)-1].Close
		if refClose > 0 && (entryRef-refClose)/refClose > 0.01 {
			return Signal{}, false
		}
	}

	// 8. Emit.
	return Signal{
		Symbol:              sym,
		Side:                SideBuy,
		Confidence:          decimal.NewFromFloat(confidence),
		ExpectedReturnPct:   decimal.NewFromFloat(expectedReturn),
		QualityScore:        decimal.NewFromFloat(quality),
		StrategyAgreement:   ar.Agreement,
		EntryReferencePrice: decimal.NewFromFloat(entryRef),
		CreatedAt:           time.Now().UTC(),
	}, true
}

func signalAgreementBonus(a Agreement) float64 {
	switch a {
	case AgreementMedium:
		return signalBonusMedium
	case AgreementHigh:
		return signalBonusHigh
	default:
		return signalBonusLow
	}
}

// expectedReturnPct blends a momentum-derived target with the strategy
// composite score, floored at 2% per spec.md §4.6 step 4.
func (g *SignalGenerator) expectedReturnPct(candles []Candle, ar AgreementResult) float64 {
	momentumTarget := 0.02
	if len(candles) > 60 {
		mom := Momentum(candles, 60)
		m := mom[len(mom)-1]
		if m > 0 {
			momentumTarget = m * 2 // extrapolate recent momentum forward
		}
	}
	strategyTarget := g.cfg.TakeProfitPct / 100 * ar.Composite
	blended := (momentumTarget + strategyTarget) / 2
	if blended < 0.02 {
		blended = 0.02
	}
	return blended
}

// qualityScore blends liquidity (dollar volume), volatility-band fit
// (ATR-like z-score proximity to a moderate band), and confidence.
func (g *SignalGenerator) qualityScore(q Quote, candles []Candle, confidence float64) float64 {
	last, _ := q.Last.Float64()
	dollarVolume := last * float64(q.Volume)
	liquidity := clamp01(dollarVolume / 5_000_000.0) // $5M/day treated as ample

	volFit := 0.5
	if len(candles) > 14 {
		z := ZScore(candles, 14)
		zz := z[len(z)-1]
		if zz < 0 {
			zz = -zz
		}
		volFit = clamp01(1.0 - zz/3.0) // prefer moderate, not extreme, dispersion
	}

	return (liquidity*40 + volFit*30 + confidence*30)
}
