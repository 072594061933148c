// FILE: risk_test.go
// Package main – Risk Manager (C7) property and scenario tests.
package main

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *Config {
	return &Config{
		StrategyMode:        StrategyStandard,
		SystemMode:          SystemSignalOnly,
		BasePositionPct:     10.0,
		MaxPositionPct:      35.0,
		MinPositionValueUSD: 50.0,
		TradingCashPct:      80.0,
		CashReservePct:      20.0,
		MaxPositions:        20,

		MaxDailyLossPct: 5.0,
		MaxDrawdownPct:  10.0,

		UltraHighConfThreshold: 0.95,
		UltraHighConfMult:      2.5,
		HighConfThreshold:      0.90,
		HighConfMult:           2.0,
		MediumConfThreshold:    0.85,
		MediumConfMult:         1.0,

		AgreementMediumBonus: 0.25,
		AgreementHighBonus:   0.50,

		ProfitScaling200PctMult: 1.8,
		ProfitScaling100PctMult: 1.4,
		ProfitScaling50PctMult:  1.2,
		ProfitScaling25PctMult:  1.1,
		WinStreakMult:           1.0,

		StopLossPct:   3.0,
		TakeProfitPct: 5.0,
	}
}

func sig(entryRef, confidence, expectedReturn float64, agreement Agreement) Signal {
	return Signal{
		Symbol:              "AAPL",
		Side:                SideBuy,
		Confidence:          decimal.NewFromFloat(confidence),
		ExpectedReturnPct:   decimal.NewFromFloat(expectedReturn),
		StrategyAgreement:   agreement,
		EntryReferencePrice: decimal.NewFromFloat(entryRef),
		CreatedAt:           time.Now().UTC(),
	}
}

// S2: sizing with MEDIUM agreement and high confidence.
func TestRiskManager_S2_SizingMediumAgreementHighConfidence(t *testing.T) {
	cfg := testConfig()
	risk := NewRiskManager(cfg, decimal.NewFromFloat(10_000))
	account := AccountSnapshot{
		AvailableCash:     decimal.NewFromFloat(10_000),
		TotalAccountValue: decimal.NewFromFloat(10_000),
		PeakCapital:       decimal.NewFromFloat(10_000),
	}
	s := sig(50.00, 0.92, 0.05, AgreementMedium)

	decision := risk.Evaluate(s, account, 0, decimal.Zero, time.Now().UTC())

	require.True(t, decision.Approved)
	assert.True(t, decision.Quantity.Equal(decimal.NewFromInt(50)), "quantity: got %s", decision.Quantity)
	assert.True(t, decision.StopPrice.Equal(decimal.NewFromFloat(48.50)), "stop: got %s", decision.StopPrice)
	assert.True(t, decision.TakeProfitPrice.Equal(decimal.NewFromFloat(52.50)), "take profit: got %s", decision.TakeProfitPrice)
}

// B3: headroom (trading_cash - already_open), not the flat base-position
// percentage, is what binds the sizing cap when a large position is already open.
func TestRiskManager_B3_HeadroomBindsOverBasePct(t *testing.T) {
	cfg := testConfig()
	risk := NewRiskManager(cfg, decimal.NewFromFloat(1_000))
	account := AccountSnapshot{
		AvailableCash:     decimal.NewFromFloat(1_000),
		TotalAccountValue: decimal.NewFromFloat(1_000),
		PeakCapital:       decimal.NewFromFloat(1_000),
	}
	alreadyOpen := decimal.NewFromFloat(700)
	// High confidence/agreement so raw and cap would both exceed the $100
	// headroom if it weren't the binding constraint.
	s := sig(10.00, 0.99, 0.05, AgreementHigh)

	decision := risk.Evaluate(s, account, 1, alreadyOpen, time.Now().UTC())

	require.True(t, decision.Approved)
	positionValue := decision.Quantity.Mul(s.EntryReferencePrice)
	assert.True(t, positionValue.LessThanOrEqual(decimal.NewFromFloat(100)), "position value %s exceeds headroom", positionValue)
}

// P4: sum of open managed position entry values can never be pushed past
// trading_cash_pct of available cash at open.
func TestRiskManager_P4_CashFloor(t *testing.T) {
	cfg := testConfig()
	risk := NewRiskManager(cfg, decimal.NewFromFloat(10_000))
	account := AccountSnapshot{
		AvailableCash:     decimal.NewFromFloat(10_000),
		TotalAccountValue: decimal.NewFromFloat(10_000),
		PeakCapital:       decimal.NewFromFloat(10_000),
	}
	// trading_cash = 8,000; already_open at or above that leaves zero headroom.
	alreadyOpen := decimal.NewFromFloat(8_000)
	s := sig(50.00, 0.99, 0.05, AgreementHigh)

	decision := risk.Evaluate(s, account, 0, alreadyOpen, time.Now().UTC())

	assert.False(t, decision.Approved)
	assert.Equal(t, GateMinSizeGate, decision.RejectReason)
}

// P5: every opened position's entry value is capped at max_position_pct of
// available cash, even when confidence/agreement multipliers would push the
// raw sizing formula higher.
func TestRiskManager_P5_SizingCap(t *testing.T) {
	cfg := testConfig()
	risk := NewRiskManager(cfg, decimal.NewFromFloat(10_000))
	account := AccountSnapshot{
		AvailableCash:     decimal.NewFromFloat(10_000),
		TotalAccountValue: decimal.NewFromFloat(10_000),
		PeakCapital:       decimal.NewFromFloat(10_000),
	}
	// raw = 1000 * 2.5 * 1.5 * 1.0 = 3750, cap = 10000*35% = 3500 < raw.
	s := sig(50.00, 0.99, 0.05, AgreementHigh)

	decision := risk.Evaluate(s, account, 0, decimal.Zero, time.Now().UTC())

	require.True(t, decision.Approved)
	positionValue := decision.Quantity.Mul(s.EntryReferencePrice)
	assert.True(t, positionValue.LessThanOrEqual(decimal.NewFromFloat(3_500)), "position value %s exceeds max_position_pct cap", positionValue)
}

// P6: an opened position's entry value is never below min_position_value_usd;
// anything that would size smaller is rejected outright.
func TestRiskManager_P6_MinimumSize(t *testing.T) {
	cfg := testConfig()
	cfg.MinPositionValueUSD = 50.0
	risk := NewRiskManager(cfg, decimal.NewFromFloat(300))
	account := AccountSnapshot{
		AvailableCash:     decimal.NewFromFloat(300),
		TotalAccountValue: decimal.NewFromFloat(300),
		PeakCapital:       decimal.NewFromFloat(300),
	}
	// base = 300*10% = 30, below the $50 floor even before any multiplier.
	s := sig(10.00, 0.80, 0.02, AgreementNone)

	decision := risk.Evaluate(s, account, 0, decimal.Zero, time.Now().UTC())

	assert.False(t, decision.Approved)
	assert.Equal(t, GateMinSizeGate, decision.RejectReason)
}

// R2: two consecutive calls to C7 with identical inputs return identical outputs.
func TestRiskManager_R2_Deterministic(t *testing.T) {
	cfg := testConfig()
	risk := NewRiskManager(cfg, decimal.NewFromFloat(10_000))
	account := AccountSnapshot{
		AvailableCash:     decimal.NewFromFloat(10_000),
		TotalAccountValue: decimal.NewFromFloat(10_000),
		PeakCapital:       decimal.NewFromFloat(10_000),
	}
	s := sig(50.00, 0.92, 0.05, AgreementMedium)
	now := time.Now().UTC()

	d1 := risk.Evaluate(s, account, 0, decimal.Zero, now)
	d2 := risk.Evaluate(s, account, 0, decimal.Zero, now)

	assert.Equal(t, d1, d2)
}

// G1: while safe mode is latched, every signal is rejected regardless of sizing.
func TestRiskManager_G1_SafeModeBlocksNewPositions(t *testing.T) {
	cfg := testConfig()
	risk := NewRiskManager(cfg, decimal.NewFromFloat(10_000))
	risk.trip("test")
	account := AccountSnapshot{AvailableCash: decimal.NewFromFloat(10_000), TotalAccountValue: decimal.NewFromFloat(10_000), PeakCapital: decimal.NewFromFloat(10_000)}
	s := sig(50.00, 0.99, 0.05, AgreementHigh)

	decision := risk.Evaluate(s, account, 0, decimal.Zero, time.Now().UTC())

	assert.False(t, decision.Approved)
	assert.Equal(t, GateSafeMode, decision.RejectReason)
}

// G2: the position count cap rejects before sizing is even attempted.
func TestRiskManager_G2_PositionCap(t *testing.T) {
	cfg := testConfig()
	cfg.MaxPositions = 3
	risk := NewRiskManager(cfg, decimal.NewFromFloat(10_000))
	account := AccountSnapshot{AvailableCash: decimal.NewFromFloat(10_000), TotalAccountValue: decimal.NewFromFloat(10_000), PeakCapital: decimal.NewFromFloat(10_000)}
	s := sig(50.00, 0.92, 0.05, AgreementMedium)

	decision := risk.Evaluate(s, account, 3, decimal.Zero, time.Now().UTC())

	assert.False(t, decision.Approved)
	assert.Equal(t, GatePositionLimit, decision.RejectReason)
}

// G5: insufficient cash rejects before sizing.
func TestRiskManager_G5_InsufficientCash(t *testing.T) {
	cfg := testConfig()
	risk := NewRiskManager(cfg, decimal.NewFromFloat(10_000))
	account := AccountSnapshot{AvailableCash: decimal.NewFromFloat(10), TotalAccountValue: decimal.NewFromFloat(10), PeakCapital: decimal.NewFromFloat(10)}
	s := sig(50.00, 0.92, 0.05, AgreementMedium)

	decision := risk.Evaluate(s, account, 0, decimal.Zero, time.Now().UTC())

	assert.False(t, decision.Approved)
	assert.Equal(t, GateInsufficientCash, decision.RejectReason)
}

// S3: a pure daily-loss breach (-5.5% against a -5% limit) both rejects the
// signal with DailyLossLimit and latches safe mode for subsequent signals.
func TestRiskManager_S3_SafeModeTripOnDailyLoss(t *testing.T) {
	cfg := testConfig()
	risk := NewRiskManager(cfg, decimal.NewFromFloat(10_000))
	now := time.Now().UTC()
	risk.RecordRealizedPnL(decimal.NewFromFloat(-550), now)

	account := AccountSnapshot{
		AvailableCash:     decimal.NewFromFloat(9_450),
		TotalAccountValue: decimal.NewFromFloat(9_450),
		PeakCapital:       decimal.NewFromFloat(10_000),
	}
	s := sig(50.00, 0.92, 0.05, AgreementMedium)

	decision := risk.Evaluate(s, account, 0, decimal.Zero, now)
	require.False(t, decision.Approved)
	assert.Equal(t, GateDailyLossLimit, decision.RejectReason)
	assert.True(t, risk.SafeMode())

	// Subsequent signals are rejected under G1 until cleared.
	decision2 := risk.Evaluate(s, account, 0, decimal.Zero, now)
	assert.False(t, decision2.Approved)
	assert.Equal(t, GateSafeMode, decision2.RejectReason)
}

func TestRiskManager_ClearSafeMode(t *testing.T) {
	cfg := testConfig()
	risk := NewRiskManager(cfg, decimal.NewFromFloat(10_000))
	risk.trip("manual test trip")
	require.True(t, risk.SafeMode())

	risk.ClearSafeMode("operator cleared")

	assert.False(t, risk.SafeMode())
	events := risk.Events()
	require.Len(t, events, 2)
	assert.True(t, events[0].Active)
	assert.False(t, events[1].Active)
	assert.Equal(t, "operator cleared", events[1].Reason)
}
