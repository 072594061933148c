// FILE: trailing.go
// Package main – Stealth Trailing Monitor (C9).
//
// Per-position state machine (spec.md §4.9.1) plus the tick loop (§4.9.2)
// driving exits. The monotonic-stop, high-water-ratchet shape is the direct
// descendant of the teacher's updateRunnerTrail/applyRunnerTargets in
// trader.go (read in full before trader.go was removed for this domain —
// see DESIGN.md): same "only ever raise the stop, never lower it" discipline,
// generalized from a single crypto lot to the five-condition exit priority
// order spec.md §4.9.1 requires.
package main

import (
	"context"
	"log"
	"time"

	"github.com/shopspring/decimal"
)

const (
	rsiExhaustionThreshold   = 85.0
	rsiExhaustionMinReturn   = 0.01
	volumeSurgeMultiple      = 3.0
	volumeSurgeDropPct       = 0.003
	dataStarvedMinOpenTime   = 10 * time.Minute
	dataStarvedMissThreshold = 3
)

// StealthTrailingMonitor is C9.
type StealthTrailingMonitor struct {
	cfg      *Config
	book     *PositionBook
	data     *DataAccess
	history  *CandleStore
	clock    *Clock
	executor *TradeExecutor
	risk     *RiskManager
	trades   *TradeHistory
	alerts   *AlertSink
}

func NewStealthTrailingMonitor(cfg *Config, book *PositionBook, data *DataAccess, history *CandleStore, clock *Clock, executor *TradeExecutor, risk *RiskManager, trades *TradeHistory, alerts *AlertSink) *StealthTrailingMonitor {
	return &StealthTrailingMonitor{cfg: cfg, book: book, data: data, history: history, clock: clock, executor: executor, risk: risk, trades: trades, alerts: alerts}
}

type exitDecision struct {
	position *Position
	reason   ExitReason
	price    decimal.Decimal
}

// Tick implements the §4.9.2 loop: snapshot, batch-quote, evaluate, confirm,
// close. Missing-quote accounting (DataStarved) is persisted back onto the
// book entry so the streak survives across ticks.
func (m *StealthTrailingMonitor) Tick(ctx context.Context) {
	snapshot := m.book.Snapshot()
	if len(snapshot) == 0 {
		return
	}
	symbols := make([]Symbol, 0, len(snapshot))
	for sym := range snapshot {
		symbols = append(symbols, sym)
	}
	quotes := m.data.Quotes(ctx, symbols)
	now := time.Now().UTC()

	var decisions []exitDecision
	for sym, pos := range snapshot {
		q, ok := quotes[sym]
		if !ok {
			pos.MissedQuoteStreak++
			if pos.MissedQuoteStreak >= dataStarvedMissThreshold && now.Sub(pos.EntryTime) > dataStarvedMinOpenTime {
				decisions = append(decisions, exitDecision{position: pos, reason: ExitDataStarved, price: pos.HighWaterPrice})
			} else {
				m.persistState(pos)
			}
			continue
		}
		pos.MissedQuoteStreak = 0
		candles := m.history.Recent(sym, 30)
		reason, exitPrice, updated := m.evaluate(pos, q, candles, now)
		if reason != "" {
			decisions = append(decisions, exitDecision{position: updated, reason: reason, price: exitPrice})
		} else {
			m.persistState(updated)
		}
	}

	for _, d := range decisions {
		m.confirmAndClose(ctx, d)
	}
	m.updateStateMetrics()
}

// persistState writes the (possibly mutated) snapshot copy back into the
// book so stop/high-water ratchets and missed-quote counts survive ticks.
func (m *StealthTrailingMonitor) persistState(pos *Position) {
	m.book.Add(pos)
}

// evaluate applies the state machine transitions and then checks the exit
// conditions in the priority order of spec.md §4.9.1.
func (m *StealthTrailingMonitor) evaluate(pos *Position, q Quote, candles []Candle, now time.Time) (ExitReason, decimal.Decimal, *Position) {
	p := q.Last
	if p.IsZero() {
		return "", decimal.Zero, pos
	}
	e := pos.EntryPrice
	ret := 0.0
	if !e.IsZero() {
		ret, _ = p.Sub(e).Div(e).Float64()
	}
	if p.GreaterThan(pos.HighWaterPrice) {
		pos.HighWaterPrice = p // P2: high-water monotonicity
	}
	h := pos.HighWaterPrice

	switch pos.State {
	case StateInitial:
		if ret >= m.cfg.BreakevenActivationPct/100 {
			pos.State = StateBreakevenArmed
			newStop := roundTick(e.Mul(decimal.NewFromFloat(1 + m.cfg.BreakevenOffsetPct/100)))
			pos.StopPrice = maxDecimal(pos.StopPrice, newStop)
		}
	case StateBreakevenArmed:
		if ret >= m.cfg.TrailingActivationPct/100 {
			pos.State = StateTrailing
			newStop := roundTick(p.Mul(decimal.NewFromFloat(1 - m.cfg.TrailingDistancePct/100)))
			pos.StopPrice = maxDecimal(pos.StopPrice, newStop)
		}
	case StateTrailing:
		newStop := roundTick(h.Mul(decimal.NewFromFloat(1 - m.cfg.TrailingDistancePct/100)))
		pos.StopPrice = maxDecimal(pos.StopPrice, newStop) // P1: stop monotonicity
	}

	// A stale quote (served from the cache beyond the fresh TTL under budget
	// pressure, quotes.go) is not authoritative for a stop/take-profit exit
	// unless price has moved beyond 2x the entry-to-stop distance -- spec.md
	// §4.3's budget-smoothing interaction with §4.9.
	priceAuthoritative := true
	if q.Stale {
		stopDistance := e.Sub(pos.StopPrice).Abs()
		move := p.Sub(e).Abs()
		priceAuthoritative = !stopDistance.IsZero() && move.GreaterThanOrEqual(stopDistance.Mul(decimal.NewFromInt(2)))
	}

	// Exit conditions, in spec.md §4.9.1 priority order.
	if priceAuthoritative && p.LessThanOrEqual(pos.StopPrice) {
		reason := ExitStopHit
		switch pos.State {
		case StateTrailing:
			reason = ExitTrailingStop
		case StateBreakevenArmed:
			reason = ExitBreakeven
		}
		return reason, p, pos
	}
	if priceAuthoritative && p.GreaterThanOrEqual(pos.TakeProfitPrice) {
		reason := ExitTakeProfit
		extendedThreshold := pos.InitialTakeProfit.Sub(pos.EntryPrice).Mul(decimal.NewFromInt(2)).Add(pos.EntryPrice)
		if p.GreaterThan(extendedThreshold) {
			reason = ExitTakeProfitExtended
		}
		return reason, p, pos
	}
	if len(candles) >= 15 {
		rsi := RSI(candles, 14)
		if rsi[len(rsi)-1] >= rsiExhaustionThreshold && ret >= rsiExhaustionMinReturn {
			return ExitRSIExhaustion, p, pos
		}
	}
	if m.pastMaxHold(pos, now) {
		return ExitTimeExit, p, pos
	}
	if len(candles) >= 21 && m.volumeSurgeReversal(candles, p, h) {
		return ExitVolumeReversal, p, pos
	}
	return "", decimal.Zero, pos
}

func (m *StealthTrailingMonitor) pastMaxHold(pos *Position, now time.Time) bool {
	maxHold := time.Duration(m.cfg.MaxHoldHours * float64(time.Hour))
	if now.Sub(pos.EntryTime) >= maxHold {
		return true
	}
	deadline := m.clock.ForcedCloseDeadline(now.In(m.clock.Location()))
	return !now.Before(deadline)
}

// volumeSurgeReversal checks "selling-volume surge" per spec.md §4.9.1
// condition 5: last bar's volume > 3x the trailing 20-period average AND
// price has pulled back at least 0.3% off the high.
func (m *StealthTrailingMonitor) volumeSurgeReversal(candles []Candle, p, h decimal.Decimal) bool {
	relVol := RelativeVolume(candles, 20)
	surge := relVol[len(relVol)-1] > volumeSurgeMultiple
	if !surge {
		return false
	}
	hf, _ := h.Float64()
	pf, _ := p.Float64()
	if hf == 0 {
		return false
	}
	pullback := (hf - pf) / hf
	return pullback >= volumeSurgeDropPct
}

func maxDecimal(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// confirmAndClose re-checks the position is still open under the book's
// lock, closes it via C8, records the trade, and removes it from the map.
func (m *StealthTrailingMonitor) confirmAndClose(ctx context.Context, d exitDecision) {
	if !m.book.Has(d.position.Symbol) {
		return // already closed by a concurrent path; nothing to do
	}
	record, err := m.executor.Close(ctx, d.position, d.reason, d.price)
	if err != nil {
		d.position.CloseAttemptFailed = true
		m.persistState(d.position)
		m.alerts.Send(Alert{Kind: AlertOperator, Symbol: d.position.Symbol, CreatedAt: time.Now().UTC(),
			Message: "close order failed after retry; position remains open and will be retried next tick"})
		log.Printf("[ERROR] trailing: close failed for %s: %v", d.position.Symbol, err)
		return
	}
	m.book.Remove(d.position.Symbol)
	m.trades.Append(*record)
	m.risk.RecordRealizedPnL(record.PnLAbs, record.ExitTime)
}

func (m *StealthTrailingMonitor) updateStateMetrics() {
	for state, n := range m.book.ByStateCounts() {
		SetPositionsByState(string(state), float64(n))
	}
}
