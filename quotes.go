// FILE: quotes.go
// Package main – Quote & Account Data Access (C3).
//
// Batches quote requests against the broker's ≤25-symbol limit, serves fresh
// reads from a per-symbol TTL cache, and enforces a daily call budget with
// hourly smoothing. Under budget pressure, stale cache entries (up to 4x TTL)
// are returned instead of issuing new calls; callers (C9) must treat those as
// non-authoritative for exits. Retry shape (one retry, short fixed delay)
// mirrors the teacher's broker_coinbase.go HTTP-error handling, generalized
// to batches.
package main

import (
	"context"
	"sync"
	"time"
)

const quoteBatchSize = 25

type cachedQuote struct {
	quote      Quote
	capturedAt time.Time
}

// DataAccess is C3.
type DataAccess struct {
	broker     Broker
	accountKey string

	mu    sync.Mutex
	cache map[Symbol]cachedQuote

	freshTTL time.Duration // 30s intraday / 300s idle, chosen by caller via SetTTL

	budgetMu       sync.Mutex
	dailyBudget    int
	usedToday      int
	usedThisHour   int
	hourWindowStart time.Time
	dayWindowStart  time.Time

	acctCacheMu   sync.Mutex
	acctCache     AccountSnapshot
	acctCachedAt  time.Time
	posCacheMu    sync.Mutex
	posCache      []BrokerPosition
	posCachedAt   time.Time
}

// NewDataAccess constructs C3 with the given daily call budget.
func NewDataAccess(broker Broker, accountKey string, dailyBudget int, freshTTL time.Duration) *DataAccess {
	now := time.Now().UTC()
	return &DataAccess{
		broker:          broker,
		accountKey:      accountKey,
		cache:           map[Symbol]cachedQuote{},
		freshTTL:        freshTTL,
		dailyBudget:     dailyBudget,
		hourWindowStart: now,
		dayWindowStart:  now,
	}
}

// SetTTL updates the fresh-quote TTL (e.g. 30s intraday, 300s idle).
func (d *DataAccess) SetTTL(ttl time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.freshTTL = ttl
}

// resetBudgetWindows rolls the hourly/daily counters at 04:00 ET boundaries.
// Called lazily on each budget check; driven by wall clock, not a ticker.
func (d *DataAccess) resetBudgetWindows(now time.Time) {
	d.budgetMu.Lock()
	defer d.budgetMu.Unlock()
	dayReset := now.Sub(d.dayWindowStart) >= 24*time.Hour
	if loc, err := time.LoadLocation("America/New_York"); err == nil {
		et := now.In(loc)
		boundary := time.Date(et.Year(), et.Month(), et.Day(), 4, 0, 0, 0, loc)
		if et.Before(boundary) {
			boundary = boundary.AddDate(0, 0, -1)
		}
		dayReset = d.dayWindowStart.Before(boundary)
	}
	if dayReset {
		d.usedToday = 0
		d.dayWindowStart = now
	}
	if now.Sub(d.hourWindowStart) >= time.Hour {
		d.usedThisHour = 0
		d.hourWindowStart = now
	}
}

// AvailableCallsToday returns the remaining call budget for the current day.
func (d *DataAccess) AvailableCallsToday() int {
	d.resetBudgetWindows(time.Now().UTC())
	d.budgetMu.Lock()
	defer d.budgetMu.Unlock()
	remaining := d.dailyBudget - d.usedToday
	if remaining < 0 {
		return 0
	}
	return remaining
}

// canIssueCall applies the budget-smoothing algorithm of spec.md §4.3:
// used_today < budget AND used_last_hour < budget/6.
func (d *DataAccess) canIssueCall() bool {
	d.resetBudgetWindows(time.Now().UTC())
	d.budgetMu.Lock()
	defer d.budgetMu.Unlock()
	if d.usedToday >= d.dailyBudget {
		return false
	}
	if d.usedThisHour*6 >= d.dailyBudget {
		return false
	}
	return true
}

func (d *DataAccess) recordCall() {
	d.budgetMu.Lock()
	d.usedToday++
	d.usedThisHour++
	d.budgetMu.Unlock()
}

// Quotes fetches fresh quotes for the given symbols, batching in groups of
// up to 25, serving fresh cache entries without a network call, and falling
// back to stale (up to 4x TTL) entries under budget pressure.
func (d *DataAccess) Quotes(ctx context.Context, symbols []Symbol) map[Symbol]Quote {
	now := time.Now().UTC()
	out := make(map[Symbol]Quote, len(symbols))
	var needFetch []Symbol

	d.mu.Lock()
	for _, s := range symbols {
		if c, ok := d.cache[s]; ok && now.Sub(c.capturedAt) <= d.freshTTL {
			out[s] = c.quote
			continue
		}
		needFetch = append(needFetch, s)
	}
	d.mu.Unlock()

	for i := 0; i < len(needFetch); i += quoteBatchSize {
		end := i + quoteBatchSize
		if end > len(needFetch) {
			end = len(needFetch)
		}
		batch := needFetch[i:end]
		d.fetchBatch(ctx, batch, out, now)
	}
	return out
}

func (d *DataAccess) fetchBatch(ctx context.Context, batch []Symbol, out map[Symbol]Quote, now time.Time) {
	if !d.canIssueCall() {
		d.serveStale(batch, out, now, 4)
		return
	}
	result, err := d.broker.BatchQuotes(ctx, d.accountKey, batch)
	if err != nil {
		time.Sleep(500 * time.Millisecond)
		result, err = d.broker.BatchQuotes(ctx, d.accountKey, batch)
		if err != nil {
			d.serveStale(batch, out, now, 4)
			return
		}
	}
	d.recordCall()

	d.mu.Lock()
	for _, sym := range batch {
		bq, ok := result[sym]
		if !ok {
			continue // DataUnavailable: omit from result
		}
		q := Quote{
			Symbol: sym, Last: bq.Last, Bid: bq.Bid, Ask: bq.Ask,
			HasBid: bq.HasBid, HasAsk: bq.HasAsk, Volume: bq.Volume,
			DayHigh: bq.DayHigh, DayLow: bq.DayLow, PrevClose: bq.PrevClose,
			CapturedAt: now,
		}
		d.cache[sym] = cachedQuote{quote: q, capturedAt: now}
		out[sym] = q
	}
	d.mu.Unlock()
}

func (d *DataAccess) serveStale(batch []Symbol, out map[Symbol]Quote, now time.Time, staleFactor int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, sym := range batch {
		c, ok := d.cache[sym]
		if !ok {
			continue
		}
		if now.Sub(c.capturedAt) > time.Duration(staleFactor)*d.freshTTL {
			continue // too stale even under pressure; omit (DataUnavailable)
		}
		q := c.quote
		q.Stale = true
		out[sym] = q
	}
}

// AccountSnapshotNow returns the account snapshot, cached for 60s.
func (d *DataAccess) AccountSnapshotNow(ctx context.Context) (AccountSnapshot, error) {
	d.acctCacheMu.Lock()
	if time.Since(d.acctCachedAt) <= 60*time.Second && !d.acctCachedAt.IsZero() {
		snap := d.acctCache
		d.acctCacheMu.Unlock()
		return snap, nil
	}
	d.acctCacheMu.Unlock()

	bal, err := d.broker.GetBalance(ctx, d.accountKey)
	if err != nil {
		return AccountSnapshot{}, err
	}
	d.acctCacheMu.Lock()
	defer d.acctCacheMu.Unlock()
	snap := AccountSnapshot{
		AvailableCash:        bal.AvailableCash,
		TotalAccountValue:    bal.TotalAccountValue,
		ManagedPositionValue: d.acctCache.ManagedPositionValue, // populated by engine from open positions
		PeakCapital:          d.acctCache.PeakCapital,
		CapturedAt:           time.Now().UTC(),
	}
	if snap.TotalAccountValue.GreaterThan(snap.PeakCapital) {
		snap.PeakCapital = snap.TotalAccountValue
	}
	d.acctCache = snap
	d.acctCachedAt = time.Now().UTC()
	return snap, nil
}

// PositionsAtBroker returns broker-reported positions, cached for 60s.
func (d *DataAccess) PositionsAtBroker(ctx context.Context) ([]BrokerPosition, error) {
	d.posCacheMu.Lock()
	if time.Since(d.posCachedAt) <= 60*time.Second && !d.posCachedAt.IsZero() {
		cached := d.posCache
		d.posCacheMu.Unlock()
		return cached, nil
	}
	d.posCacheMu.Unlock()

	positions, err := d.broker.Positions(ctx, d.accountKey)
	if err != nil {
		return nil, err
	}
	d.posCacheMu.Lock()
	d.posCache = positions
	d.posCachedAt = time.Now().UTC()
	d.posCacheMu.Unlock()
	return positions, nil
}
