// FILE: signal_test.go
// Package main – Signal Generator (C6) gate tests.
package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func liquidQuote() Quote {
	return Quote{Symbol: "AAPL", Last: dec("100.00"), HasAsk: true, Ask: dec("100.05"), Volume: 100_000}
}

// P11: any generated Signal has agreement != NONE; AgreementNone must never
// reach emission regardless of composite score.
func TestSignalGenerator_P11_AgreementGate(t *testing.T) {
	cfg := testConfig()
	gen := NewSignalGenerator(cfg, NewCandleStore(390))
	ar := AgreementResult{Agreement: AgreementNone, Composite: 0.99}

	_, ok := gen.Generate("AAPL", ar, liquidQuote(), nil)

	assert.False(t, ok)
}

// P12: any generated Signal has confidence >= the active mode's floor.
func TestSignalGenerator_P12_ConfidenceFloor(t *testing.T) {
	cfg := testConfig()
	gen := NewSignalGenerator(cfg, NewCandleStore(390))
	floor := cfg.MinSignalConfidence()

	// Composite picked so confidence = 0.90 * 1.10 = 0.99, comfortably above
	// the standard-mode floor (0.90 by default).
	ar := AgreementResult{Agreement: AgreementHigh, Composite: 0.90, Strategies: []StrategyResult{{Vote: VoteBuy, Score: 0.9}}}
	s, ok := gen.Generate("AAPL", ar, liquidQuote(), nil)
	require.True(t, ok)
	conf, _ := s.Confidence.Float64()
	assert.GreaterOrEqual(t, conf, floor)

	// Composite picked so confidence = 0.50 (no agreement bonus), below the floor.
	low := AgreementResult{Agreement: AgreementLow, Composite: 0.50}
	_, ok = gen.Generate("AAPL", low, liquidQuote(), nil)
	assert.False(t, ok)
}

func TestSignalGenerator_RejectsOnLowQualityScore(t *testing.T) {
	cfg := testConfig()
	gen := NewSignalGenerator(cfg, NewCandleStore(390))
	thinQuote := Quote{Symbol: "PENY", Last: dec("1.00"), HasAsk: true, Ask: dec("1.00"), Volume: 10}

	// Flat history with one extreme outlier pushes the rolling z-score far
	// out, driving volatility-band fit to 0; combined with near-zero dollar
	// liquidity, this keeps the quality score under the 40 floor even though
	// confidence alone clears the gate-3 threshold.
	candles := make([]Candle, 0, 20)
	for i := 0; i < 19; i++ {
		candles = append(candles, Candle{Close: 50})
	}
	candles = append(candles, Candle{Close: 5000})

	ar := AgreementResult{Agreement: AgreementMedium, Composite: 0.90}
	_, ok := gen.Generate("PENY", ar, thinQuote, candles)

	assert.False(t, ok)
}
