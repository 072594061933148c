// FILE: risk.go
// Package main – Risk Manager (C7).
//
// Pre-gates (G1-G5) then the deterministic sizing formula of spec.md §4.7.
// The safe-mode latch (a mutex-guarded flag plus a transition event log) follows the
// "atomic boolean with a separate event-log of transitions" shape spec.md §5
// calls for; the teacher's own circuit-breaker flag in trader.go is the
// closest analog, generalized from a single bool into a flag-plus-history
// pair so /status and alerts can explain *why* safe mode tripped.
package main

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// SafeModeEvent records one transition of the safe-mode latch.
type SafeModeEvent struct {
	Active    bool
	Reason    string
	At        time.Time
}

// RiskManager is C7.
type RiskManager struct {
	cfg *Config

	mu                sync.Mutex
	safeMode          bool
	safeModeEvents    []SafeModeEvent
	lastAutoClearDate string // "2006-01-02" ET, at most once per day

	dailyRealizedPnL    decimal.Decimal
	dailyWindowStart    time.Time
	lifetimeRealizedPnL decimal.Decimal
	startingCapital     decimal.Decimal
}

// NewRiskManager constructs C7 against the given baseline capital (used to
// express lifetime realized gain as a percentage for profit scaling).
func NewRiskManager(cfg *Config, startingCapital decimal.Decimal) *RiskManager {
	return &RiskManager{cfg: cfg, startingCapital: startingCapital, dailyWindowStart: time.Now().UTC()}
}

// SafeMode reports the current latch state.
func (r *RiskManager) SafeMode() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.safeMode
}

// Events returns a copy of the safe-mode transition log.
func (r *RiskManager) Events() []SafeModeEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]SafeModeEvent, len(r.safeModeEvents))
	copy(out, r.safeModeEvents)
	return out
}

// ClearSafeMode is the explicit operator-action path out of safe mode
// (spec.md §4.7 safe-mode semantics).
func (r *RiskManager) ClearSafeMode(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.safeMode = false
	r.safeModeEvents = append(r.safeModeEvents, SafeModeEvent{Active: false, Reason: reason, At: time.Now().UTC()})
}

func (r *RiskManager) trip(reason string) {
	if !r.safeMode {
		IncSafeModeTrip()
	}
	r.safeMode = true
	r.safeModeEvents = append(r.safeModeEvents, SafeModeEvent{Active: true, Reason: reason, At: time.Now().UTC()})
}

// RecordRealizedPnL is called by C9's tick and by the engine's shutdown
// close-out on every position close to update the
// daily and lifetime realized P&L used by the gates and the profit-scaling
// tier.
func (r *RiskManager) RecordRealizedPnL(pnlAbs decimal.Decimal, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if now.Sub(r.dailyWindowStart) >= 24*time.Hour {
		r.dailyRealizedPnL = decimal.Zero
		r.dailyWindowStart = now
	}
	r.dailyRealizedPnL = r.dailyRealizedPnL.Add(pnlAbs)
	r.lifetimeRealizedPnL = r.lifetimeRealizedPnL.Add(pnlAbs)
}

// MaybeAutoClear implements the decided resolution of design open question
// 4: safe mode clears on explicit operator action OR once per day when
// realized P&L has recovered above -max_daily_loss_pct/2 AND drawdown is
// below max_drawdown_pct/2.
func (r *RiskManager) MaybeAutoClear(account AccountSnapshot, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.safeMode {
		return
	}
	et := now
	if loc, err := time.LoadLocation("America/New_York"); err == nil {
		et = now.In(loc)
	}
	dateKey := et.Format("2006-01-02")
	if r.lastAutoClearDate == dateKey {
		return
	}
	dailyLossPct := r.dailyLossPctLocked(account)
	drawdownPct := drawdownPctOf(account)
	if dailyLossPct > -r.cfg.MaxDailyLossPct/2 && drawdownPct < r.cfg.MaxDrawdownPct/2 {
		r.safeMode = false
		r.lastAutoClearDate = dateKey
		r.safeModeEvents = append(r.safeModeEvents, SafeModeEvent{Active: false, Reason: "auto-clear: recovered above half-threshold", At: now})
	}
}

func (r *RiskManager) dailyLossPctLocked(account AccountSnapshot) float64 {
	if r.startingCapital.IsZero() {
		return 0
	}
	pct, _ := r.dailyRealizedPnL.Div(r.startingCapital).Mul(decimal.NewFromInt(100)).Float64()
	return pct
}

func drawdownPctOf(account AccountSnapshot) float64 {
	if account.PeakCapital.IsZero() {
		return 0
	}
	drop := account.PeakCapital.Sub(account.TotalAccountValue)
	if drop.IsNegative() {
		return 0
	}
	pct, _ := drop.Div(account.PeakCapital).Mul(decimal.NewFromInt(100)).Float64()
	return pct
}

// Evaluate turns a Signal + AccountSnapshot + open-position summary into a
// RiskDecision per spec.md §4.7. Deterministic given identical inputs (R2).
func (r *RiskManager) Evaluate(sig Signal, account AccountSnapshot, openPositionsCount int, sumOpenManagedValue decimal.Decimal, now time.Time) RiskDecision {
	r.mu.Lock()
	dailyLossPct := r.dailyLossPctLocked(account)
	drawdownPct := drawdownPctOf(account)

	// G1: safe-mode active
	if r.safeMode {
		r.mu.Unlock()
		IncGateRejection(string(GateSafeMode))
		return RiskDecision{Approved: false, RejectReason: GateSafeMode}
	}
	// G2: position count cap
	if openPositionsCount >= r.cfg.MaxPositions {
		r.mu.Unlock()
		IncGateRejection(string(GatePositionLimit))
		return RiskDecision{Approved: false, RejectReason: GatePositionLimit}
	}
	// G3: daily realized loss -> also activates safe-mode (spec.md §8 S3: the
	// daily-loss trip latches the same way the drawdown trip in G4 does, not
	// just a one-shot rejection).
	if dailyLossPct <= -r.cfg.MaxDailyLossPct {
		r.trip(fmt.Sprintf("daily realized loss %.2f%% <= -max_daily_loss_pct %.2f%%", dailyLossPct, r.cfg.MaxDailyLossPct))
		r.mu.Unlock()
		IncGateRejection(string(GateDailyLossLimit))
		return RiskDecision{Approved: false, RejectReason: GateDailyLossLimit}
	}
	// G4: drawdown vs peak -> trips safe mode, then rejects
	if drawdownPct >= r.cfg.MaxDrawdownPct {
		r.trip(fmt.Sprintf("drawdown %.2f%% >= max_drawdown_pct %.2f%%", drawdownPct, r.cfg.MaxDrawdownPct))
		r.mu.Unlock()
		IncGateRejection(string(GateDrawdownLimit))
		return RiskDecision{Approved: false, RejectReason: GateDrawdownLimit}
	}
	r.mu.Unlock()

	// G5: insufficient cash
	if account.AvailableCash.LessThan(decimal.NewFromFloat(r.cfg.MinPositionValueUSD)) {
		IncGateRejection(string(GateInsufficientCash))
		return RiskDecision{Approved: false, RejectReason: GateInsufficientCash}
	}

	return r.size(sig, account, sumOpenManagedValue)
}

// size applies spec.md §4.7's sizing formula in order, in decimal
// arithmetic throughout: every term here is a money amount or a price, and
// spec.md §9 requires fixed-precision decimal for both, never binary
// floating point.
func (r *RiskManager) size(sig Signal, account AccountSnapshot, sumOpenManagedValue decimal.Decimal) RiskDecision {
	cash := account.AvailableCash
	tradingCash := cash.Mul(pctOf(r.cfg.TradingCashPct))
	baseValue := cash.Mul(pctOf(r.cfg.BasePositionPct))

	confidence, _ := sig.Confidence.Float64()
	confMult := decimal.NewFromFloat(r.confidenceMult(confidence))

	agreeBonus := decimal.NewFromFloat(r.agreementBonus(sig.StrategyAgreement))
	profitScale := decimal.NewFromFloat(r.profitScale())
	winStreakMult := decimal.NewFromFloat(r.cfg.WinStreakMult)

	rawValue := baseValue.Mul(confMult).Mul(decimal.NewFromInt(1).Add(agreeBonus)).Mul(profitScale).Mul(winStreakMult)
	capValue := cash.Mul(pctOf(r.cfg.MaxPositionPct))

	headroom := tradingCash.Sub(sumOpenManagedValue)
	if headroom.IsNegative() {
		headroom = decimal.Zero
	}

	positionValue := minDecimal(rawValue, capValue, headroom)
	if positionValue.LessThan(decimal.NewFromFloat(r.cfg.MinPositionValueUSD)) {
		IncGateRejection(string(GateMinSizeGate))
		return RiskDecision{Approved: false, RejectReason: GateMinSizeGate}
	}

	entryRef := sig.EntryReferencePrice
	if !entryRef.IsPositive() {
		IncGateRejection(string(GateMinSizeGate))
		return RiskDecision{Approved: false, RejectReason: GateMinSizeGate}
	}
	quantity := positionValue.Div(entryRef).Floor()
	if quantity.LessThanOrEqual(decimal.Zero) {
		IncGateRejection(string(GateMinSizeGate))
		return RiskDecision{Approved: false, RejectReason: GateMinSizeGate}
	}

	stopPrice := roundTick(entryRef.Mul(decimal.NewFromInt(1).Sub(pctOf(r.cfg.StopLossPct))))
	tpPct := pctOf(r.cfg.TakeProfitPct)
	if sig.ExpectedReturnPct.GreaterThan(tpPct) {
		tpPct = sig.ExpectedReturnPct
	}
	takeProfit := roundTick(entryRef.Mul(decimal.NewFromInt(1).Add(tpPct)))

	return RiskDecision{Approved: true, Quantity: quantity, StopPrice: stopPrice, TakeProfitPrice: takeProfit}
}

// pctOf converts a whole-number percentage (e.g. 35 for 35%) into its
// decimal fraction (0.35).
func pctOf(pct float64) decimal.Decimal {
	return decimal.NewFromFloat(pct).Div(decimal.NewFromInt(100))
}

func (r *RiskManager) confidenceMult(confidence float64) float64 {
	switch {
	case confidence >= r.cfg.UltraHighConfThreshold:
		return r.cfg.UltraHighConfMult
	case confidence >= r.cfg.HighConfThreshold:
		return r.cfg.HighConfMult
	default:
		return r.cfg.MediumConfMult
	}
}

func (r *RiskManager) agreementBonus(a Agreement) float64 {
	switch a {
	case AgreementMedium:
		return r.cfg.AgreementMediumBonus
	case AgreementHigh:
		return r.cfg.AgreementHighBonus
	default:
		return 0
	}
}

// profitScale looks up the lifetime-realized-gain tier (spec.md §4.7).
func (r *RiskManager) profitScale() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.startingCapital.IsZero() {
		return 1.0
	}
	pct, _ := r.lifetimeRealizedPnL.Div(r.startingCapital).Mul(decimal.NewFromInt(100)).Float64()
	switch {
	case pct >= 200:
		return r.cfg.ProfitScaling200PctMult
	case pct >= 100:
		return r.cfg.ProfitScaling100PctMult
	case pct >= 50:
		return r.cfg.ProfitScaling50PctMult
	case pct >= 25:
		return r.cfg.ProfitScaling25PctMult
	default:
		return 1.0
	}
}

func minDecimal(vals ...decimal.Decimal) decimal.Decimal {
	m := vals[0]
	for _, v := range vals[1:] {
		if v.LessThan(m) {
			m = v
		}
	}
	return m
}

// roundTick rounds a price to the broker's assumed $0.01 tick.
func roundTick(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
