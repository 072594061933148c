// FILE: executor.go
// Package main – Trade Executor (C8).
//
// Opens and closes positions against the active Broker (real or paper),
// carrying an idempotent client tag so a retried open cannot double-fill
// (spec.md §4.8, P7). Order-placement retry/backoff shape is the same
// "try once, sleep, try again" the teacher used around its broker calls in
// step.go, applied here to a failed close order rather than price polling.
package main

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// processInstanceID is generated once at startup and folded into every
// client tag, so a restarted process cannot collide with a still-pending
// order tag from a previous run.
var processInstanceID = uuid.New().String()[:8]

// CooldownTracker remembers symbols whose most recent order was rejected,
// so C10 does not re-enter them for position_cooldown_min (spec.md §4.8).
type CooldownTracker struct {
	mu        sync.Mutex
	rejected  map[Symbol]time.Time
	cooldown  time.Duration
}

func NewCooldownTracker(cooldown time.Duration) *CooldownTracker {
	return &CooldownTracker{rejected: map[Symbol]time.Time{}, cooldown: cooldown}
}

func (c *CooldownTracker) MarkRejected(sym Symbol, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rejected[sym] = at
}

func (c *CooldownTracker) InCooldown(sym Symbol, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.rejected[sym]
	if !ok {
		return false
	}
	return now.Sub(t) < c.cooldown
}

// TradeExecutor is C8.
type TradeExecutor struct {
	broker      Broker
	paperBroker *PaperBroker
	systemMode  SystemMode
	accountKey  string
	alerts      *AlertSink
	cooldown    *CooldownTracker
}

// NewTradeExecutor constructs C8. paperBroker is used directly when
// systemMode is signal_only, regardless of what the live broker field holds.
func NewTradeExecutor(broker Broker, paperBroker *PaperBroker, systemMode SystemMode, accountKey string, alerts *AlertSink, cooldown *CooldownTracker) *TradeExecutor {
	return &TradeExecutor{broker: broker, paperBroker: paperBroker, systemMode: systemMode, accountKey: accountKey, alerts: alerts, cooldown: cooldown}
}

func clientTag(sym Symbol, createdAt time.Time) string {
	return fmt.Sprintf("%s-%d-%s-%d", sym, createdAt.UnixNano(), processInstanceID, os.Getpid())
}

// Open places (or simulates) an entry order and returns the resulting
// Position. Per spec.md §4.8(b), signal_only mode synthesizes a fill at the
// current ask (or last) instead of calling the live broker.
func (e *TradeExecutor) Open(ctx context.Context, sig Signal, decision RiskDecision, q Quote) (*Position, error) {
	tag := clientTag(sig.Symbol, sig.CreatedAt)
	simulated := e.systemMode == SystemSignalOnly

	var filled *PlacedOrder
	var err error
	if simulated {
		refPrice := q.Last
		if q.HasAsk {
			refPrice = q.Ask
		}
		e.paperBroker.SetLastPrice(sig.Symbol, refPrice)
		filled, err = e.paperBroker.PlaceOrder(ctx, "paper", sig.Symbol, SideBuy, decision.Quantity, tag)
	} else {
		filled, err = e.broker.PlaceOrder(ctx, e.accountKey, sig.Symbol, SideBuy, decision.Quantity, tag)
	}
	if err != nil {
		e.cooldown.MarkRejected(sig.Symbol, time.Now().UTC())
		return nil, err
	}
	if filled.Status == "rejected" {
		e.cooldown.MarkRejected(sig.Symbol, time.Now().UTC())
		return nil, newErr("executor", ErrBrokerPermanent, fmt.Errorf("order rejected for %s", sig.Symbol))
	}

	qty := decision.Quantity
	if filled.Status == "partial" && filled.FillQty.GreaterThan(decimal.Zero) {
		qty = filled.FillQty // accept the partial fill, spec.md §4.8 order integrity
	}

	entryPrice := filled.FillPrice
	if entryPrice.IsZero() {
		entryPrice = sig.EntryReferencePrice
	}

	pos := &Position{
		Symbol:            sig.Symbol,
		EntryPrice:        entryPrice,
		Quantity:          qty,
		EntryTime:         time.Now().UTC(),
		StopPrice:         decision.StopPrice,
		TakeProfitPrice:   decision.TakeProfitPrice,
		InitialTakeProfit: decision.TakeProfitPrice,
		HighWaterPrice:    entryPrice,
		State:             StateInitial,
		Simulated:         simulated,
		ClientTag:         tag,
		Confidence:        sig.Confidence,
		ExpectedReturnPct: sig.ExpectedReturnPct,
	}

	mode := "live"
	if simulated {
		mode = "simulated"
	}
	IncOrder(mode, string(SideBuy))
	e.alerts.Send(Alert{
		Kind: AlertEntry, Symbol: sig.Symbol, CreatedAt: time.Now().UTC(),
		Message: fmt.Sprintf("opened %s qty=%s entry=%s stop=%s tp=%s conf=%s simulated=%v", sig.Symbol, qty.String(), entryPrice.String(), decision.StopPrice.String(), decision.TakeProfitPrice.String(), sig.Confidence.String(), simulated),
		Fields: map[string]string{
			"quantity": qty.String(), "entry_price": entryPrice.String(),
			"stop": decision.StopPrice.String(), "take_profit": decision.TakeProfitPrice.String(),
			"confidence": sig.Confidence.String(), "expected_return_pct": sig.ExpectedReturnPct.String(),
		},
	})
	return pos, nil
}

// Close sends (or simulates) an exit order and returns the resulting
// TradeRecord. Retries once after 5s on failure per spec.md §4.9.3; on a
// second failure the caller must keep the position OPEN and mark
// close_attempt_failed.
func (e *TradeExecutor) Close(ctx context.Context, pos *Position, reason ExitReason, refPrice decimal.Decimal) (*TradeRecord, error) {
	tag := clientTag(pos.Symbol, pos.EntryTime) + "-close"

	place := func() (*PlacedOrder, error) {
		if pos.Simulated {
			e.paperBroker.SetLastPrice(pos.Symbol, refPrice)
			return e.paperBroker.PlaceOrder(ctx, "paper", pos.Symbol, SideSell, pos.Quantity, tag)
		}
		return e.broker.PlaceOrder(ctx, e.accountKey, pos.Symbol, SideSell, pos.Quantity, tag)
	}

	filled, err := place()
	if err != nil {
		time.Sleep(5 * time.Second)
		filled, err = place()
		if err != nil {
			return nil, err
		}
	}

	exitPrice := filled.FillPrice
	if exitPrice.IsZero() {
		exitPrice = refPrice
	}
	now := time.Now().UTC()

	pnlAbs := exitPrice.Sub(pos.EntryPrice).Mul(pos.Quantity)
	pnlPct := decimal.Zero
	if !pos.EntryPrice.IsZero() {
		pnlPct = exitPrice.Sub(pos.EntryPrice).Div(pos.EntryPrice).Mul(decimal.NewFromInt(100))
	}

	record := &TradeRecord{
		Symbol: pos.Symbol, EntryPrice: pos.EntryPrice, ExitPrice: exitPrice,
		Quantity: pos.Quantity, EntryTime: pos.EntryTime, ExitTime: now,
		PnLAbs: pnlAbs, PnLPct: pnlPct, ExitReason: reason, Simulated: pos.Simulated,
	}

	mode := "live"
	if pos.Simulated {
		mode = "simulated"
	}
	IncOrder(mode, string(SideSell))
	IncExitReason(string(reason))
	e.alerts.Send(Alert{
		Kind: AlertExit, Symbol: pos.Symbol, CreatedAt: now,
		Message: fmt.Sprintf("closed %s exit=%s pnl=%s(%s%%) reason=%s simulated=%v", pos.Symbol, exitPrice.String(), pnlAbs.String(), pnlPct.String(), reason, pos.Simulated),
		Fields: map[string]string{
			"exit_price": exitPrice.String(), "pnl_abs": pnlAbs.String(), "pnl_pct": pnlPct.String(),
			"exit_reason": string(reason), "duration_sec": fmt.Sprintf("%.0f", now.Sub(pos.EntryTime).Seconds()),
		},
	})
	return record, nil
}
