// FILE: engine.go
// Package main – Engine: composition root wiring C1-C11 together.
//
// Owns every component instance explicitly (spec.md §9 design note: no
// package-level singletons). main.go constructs one Engine and drives it;
// scheduler.go and server.go both take an *Engine and call into its
// exported tick methods rather than reaching into component fields
// directly, the same "thin driver over an owned struct" shape the teacher
// used for Trader in trader.go before that file was removed for this
// domain — see DESIGN.md.
package main

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
)

const defaultPaperStartingCash = 100_000.0

// Engine is the composition root.
type Engine struct {
	cfg    *Config
	clock  *Clock
	alerts *AlertSink

	tokenManager *TokenManager
	broker       Broker // real broker, always used for market data/account
	paperBroker  *PaperBroker

	data      *DataAccess
	candles   *CandleStore
	selector  *SymbolSelector
	crossVal  *CrossValidator
	signalGen *SignalGenerator
	risk      *RiskManager
	executor  *TradeExecutor
	cooldown  *CooldownTracker
	positions *PositionBook
	trades    *TradeHistory
	trailing  *StealthTrailingMonitor

	effectiveSystemMode SystemMode // forced to signal_only if the active token is unusable at startup

	acctMu     sync.Mutex
	accountKey string

	watchlistMu   sync.Mutex
	watchlist     []Symbol
	watchlistDate string

	signalsToday      int64
	signalsTodayDate  string
	signalsTodayMu    sync.Mutex

	startedAt time.Time
}

// NewEngine wires every component from cfg. Startup continues in a degraded
// mode (accountKey empty, quotes unavailable) rather than failing outright
// if the broker can't be reached yet; the scheduler retries lazily.
func NewEngine(cfg *Config) (*Engine, error) {
	clock := NewClock()
	alerts := NewAlertSink(getEnv("ALERT_WEBHOOK_URL", ""))

	tokenStore := NewEnvTokenStore()
	tokenManager := NewTokenManager(tokenStore, string(cfg.ETradeMode), alerts)
	if err := tokenManager.LoadAtStartup(); err != nil {
		return nil, newErr("engine", ErrConfigInvalid, err)
	}

	effectiveMode := cfg.SystemMode
	if st := tokenManager.State(); st == TokenExpired || st == TokenAbsent {
		if effectiveMode == SystemFullTrading {
			log.Printf("[WARN] engine: %s token is %s at startup; forcing signal_only", cfg.ETradeMode, st)
		}
		effectiveMode = SystemSignalOnly
	}

	broker := NewETradeBroker(etradeAPIBaseFor(cfg), tokenManager)
	paperCash := decimal.NewFromFloat(getEnvFloat("PAPER_STARTING_CASH", defaultPaperStartingCash))
	paperBroker := NewPaperBroker(paperCash)

	data := NewDataAccess(broker, "", cfg.DailyAPICallBudget, cfg.QuoteCacheTTL())
	candles := NewCandleStore(cfg.CandleHistoryLen)
	selector := NewSymbolSelector(data, candles, cfg.WorkingSetSize)
	crossVal := NewCrossValidator(candles)
	signalGen := NewSignalGenerator(cfg, candles)

	startingCapital := paperCash
	cooldown := NewCooldownTracker(time.Duration(cfg.PositionCooldownMin) * time.Minute)
	positions := NewPositionBook()
	trades := NewTradeHistory(getEnv("TRADE_JOURNAL_PATH", ""))

	eng := &Engine{
		cfg: cfg, clock: clock, alerts: alerts,
		tokenManager: tokenManager, broker: broker, paperBroker: paperBroker,
		data: data, candles: candles, selector: selector, crossVal: crossVal,
		signalGen: signalGen, cooldown: cooldown, positions: positions, trades: trades,
		effectiveSystemMode: effectiveMode,
		startedAt:           time.Now().UTC(),
	}

	eng.risk = NewRiskManager(cfg, startingCapital)
	eng.executor = NewTradeExecutor(broker, paperBroker, effectiveMode, "", alerts, cooldown)
	eng.trailing = NewStealthTrailingMonitor(cfg, positions, data, candles, clock, eng.executor, eng.risk, trades, alerts)

	eng.ensureAccountKey(context.Background())
	return eng, nil
}

// etradeAPIBaseFor derives the broker base URL: an explicit ETRADE_API_BASE
// override always wins, otherwise it follows etrade_mode.
func etradeAPIBaseFor(cfg *Config) string {
	if v := getEnv("ETRADE_API_BASE", ""); v != "" {
		return v
	}
	if cfg.ETradeMode == ETradeLive {
		return "https://api.etrade.com"
	}
	return "https://apisb.etrade.com"
}

// ensureAccountKey lazily resolves the active brokerage account key. Safe to
// call repeatedly; a no-op once resolved.
func (e *Engine) ensureAccountKey(ctx context.Context) {
	e.acctMu.Lock()
	if e.accountKey != "" {
		e.acctMu.Unlock()
		return
	}
	e.acctMu.Unlock()

	accounts, err := e.broker.ListAccounts(ctx)
	if err != nil || len(accounts) == 0 {
		log.Printf("[WARN] engine: could not resolve brokerage account yet: %v", err)
		return
	}
	e.acctMu.Lock()
	e.accountKey = accounts[0].Key
	e.acctMu.Unlock()
	e.data.accountKey = accounts[0].Key
	e.executor.accountKey = accounts[0].Key
}

func (e *Engine) AccountKey() string {
	e.acctMu.Lock()
	defer e.acctMu.Unlock()
	return e.accountKey
}

// reloadWatchlist reads the daily CSV written by the out-of-scope watchlist
// builder. Keeps the previous list on read failure (spec.md §4.4 failure
// mode extends naturally to "no file yet today").
func (e *Engine) reloadWatchlist() {
	syms, err := LoadDailyWatchlist(getEnv("WATCHLIST_PATH", ""))
	if err != nil {
		log.Printf("[WARN] engine: watchlist reload failed, keeping previous list: %v", err)
		e.alerts.Send(Alert{Kind: AlertOperator, Message: fmt.Sprintf("watchlist reload failed: %v", err), CreatedAt: time.Now().UTC()})
		return
	}
	e.watchlistMu.Lock()
	e.watchlist = syms
	e.watchlistDate = time.Now().In(e.clock.Location()).Format("2006-01-02")
	e.watchlistMu.Unlock()
}

func (e *Engine) currentWatchlist() []Symbol {
	e.watchlistMu.Lock()
	defer e.watchlistMu.Unlock()
	out := make([]Symbol, len(e.watchlist))
	copy(out, e.watchlist)
	return out
}

// ingestQuotes folds every fetched quote into the candle store, the single
// place the engine turns market data into technical-feature history.
func (e *Engine) ingestQuotes(quotes map[Symbol]Quote) {
	for _, q := range quotes {
		if q.Stale {
			continue
		}
		e.candles.Ingest(q)
	}
}

// runWorkingSetRefresh drives C4 (spec.md §4.10). The scheduler calls it once
// at startup and then every symbol_refresh_interval_sec; it is not gated on
// market phase and does not wait for the first REGULAR-phase tick.
func (e *Engine) runWorkingSetRefresh(ctx context.Context) {
	e.ensureAccountKey(ctx)
	watchlist := e.currentWatchlist()
	if len(watchlist) == 0 {
		return
	}
	ws := e.selector.Refresh(ctx, watchlist, e.alerts)
	log.Printf("[INFO] engine: working set refreshed, %d symbols", len(ws.Symbols))
}

// runSignalPass drives C5 -> C6 -> C7 -> C8 for one cadence tick (spec.md §4.10).
func (e *Engine) runSignalPass(ctx context.Context) {
	e.ensureAccountKey(ctx)
	working := e.selector.Current()
	if len(working.Symbols) == 0 {
		return
	}

	quotes := e.data.Quotes(ctx, working.Symbols)
	e.ingestQuotes(quotes)

	agreements := e.crossVal.Evaluate(working, quotes)

	account, err := e.data.AccountSnapshotNow(ctx)
	if err != nil {
		log.Printf("[WARN] engine: account snapshot unavailable, skipping signal pass: %v", err)
		return
	}
	snapshot := e.positions.Snapshot()
	var sumOpenManagedValue decimal.Decimal
	for _, p := range snapshot {
		sumOpenManagedValue = sumOpenManagedValue.Add(p.EntryValue())
	}
	account.ManagedPositionValue = sumOpenManagedValue
	e.risk.MaybeAutoClear(account, time.Now().UTC())

	now := time.Now().UTC()
	for sym, ar := range agreements {
		if e.positions.Has(sym) {
			continue // no pyramiding
		}
		if e.cooldown.InCooldown(sym, now) {
			continue
		}
		q, ok := quotes[sym]
		if !ok {
			continue
		}
		candles := e.candles.Recent(sym, e.cfg.CandleHistoryLen)
		sig, ok := e.signalGen.Generate(sym, ar, q, candles)
		if !ok {
			continue
		}
		IncSignal(string(sym), ar.Agreement.String())
		e.bumpSignalsToday()

		decision := e.risk.Evaluate(sig, account, e.positions.Count(), sumOpenManagedValue, now)
		if !decision.Approved {
			continue
		}
		pos, err := e.executor.Open(ctx, sig, decision, q)
		if err != nil {
			log.Printf("[WARN] engine: open failed for %s: %v", sym, err)
			continue
		}
		e.positions.Add(pos)
		sumOpenManagedValue = sumOpenManagedValue.Add(pos.EntryValue())
	}
}

// runMonitorPass drives C9's tick (spec.md §4.10), then refreshes the
// operational gauges C3/C7 don't update on their own.
func (e *Engine) runMonitorPass(ctx context.Context) {
	ttl := e.cfg.QuoteCacheTTL()
	if e.clock.Phase(time.Now().UTC()) == PhaseClosed {
		ttl = e.cfg.QuoteCacheIdleTTL()
	}
	e.data.SetTTL(ttl)
	e.trailing.Tick(ctx)

	if account, err := e.data.AccountSnapshotNow(ctx); err == nil {
		if equity, ok := account.TotalAccountValue.Float64(); ok {
			SetEquity(equity)
		}
	}
	SetAPICallsUsedToday(float64(e.cfg.DailyAPICallBudget - e.data.AvailableCallsToday()))
	for _, env := range []string{"live", "sandbox"} {
		active := 0.0
		if env == string(e.cfg.ETradeMode) {
			active = 1.0
		}
		SetTokenState(env, string(e.tokenManager.State()), active)
	}
}

// tokenKeepalive drives C2's keepalive call (spec.md §4.2), active only
// during PRE_MARKET/REGULAR per the scheduler's cadence gating.
func (e *Engine) tokenKeepalive(ctx context.Context) {
	_ = e.tokenManager.Keepalive(func() error {
		_, err := e.broker.ListAccounts(ctx)
		return err
	})
}

func (e *Engine) bumpSignalsToday() {
	today := time.Now().In(e.clock.Location()).Format("2006-01-02")
	e.signalsTodayMu.Lock()
	defer e.signalsTodayMu.Unlock()
	if e.signalsTodayDate != today {
		e.signalsTodayDate = today
		atomic.StoreInt64(&e.signalsToday, 0)
	}
	atomic.AddInt64(&e.signalsToday, 1)
}

func (e *Engine) SignalsToday() int64 { return atomic.LoadInt64(&e.signalsToday) }

// shutdown runs one final monitor pass with a short deadline and, if
// close_on_shutdown is set, force-closes every remaining open position
// (spec.md §6.5).
func (e *Engine) shutdown(ctx context.Context) {
	finalCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	e.trailing.Tick(finalCtx)

	if !e.cfg.CloseOnShutdown {
		return
	}
	for sym, pos := range e.positions.Snapshot() {
		q, ok := e.data.Quotes(finalCtx, []Symbol{sym})[sym]
		refPrice := pos.HighWaterPrice
		if ok {
			refPrice = q.Last
		}
		record, err := e.executor.Close(finalCtx, pos, ExitTimeExit, refPrice)
		if err != nil {
			log.Printf("[ERROR] engine: shutdown close failed for %s: %v", sym, err)
			continue
		}
		e.positions.Remove(sym)
		e.trades.Append(*record)
		e.risk.RecordRealizedPnL(record.PnLAbs, record.ExitTime)
	}
}
