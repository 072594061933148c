// FILE: scheduler.go
// Package main – Scheduler (C10).
//
// One goroutine per cadence, each driven by its own time.Ticker, the same
// per-cadence-goroutine shape the teacher used for its price-poll/heartbeat
// pair in main.go before that file was rewritten for this domain — see
// DESIGN.md. runMu serializes the three position-map-touching passes
// (working-set refresh, signal pass, monitor pass) so at most one runs at a
// time (spec.md §5); token keepalive and watchlist reload don't touch the
// position map and run independently.
package main

import (
	"context"
	"log"
	"sync"
	"time"
)

// Scheduler is C10.
type Scheduler struct {
	eng *Engine

	runMu sync.Mutex

	watchlistDoneDate string
	lastSweepDate     string
}

func NewScheduler(eng *Engine) *Scheduler { return &Scheduler{eng: eng} }

// Run blocks until ctx is cancelled, then lets each cadence goroutine exit
// and calls the engine's final shutdown sweep.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	loops := []func(context.Context){
		s.watchlistLoop,
		s.workingSetLoop,
		s.signalLoop,
		s.monitorLoop,
		s.tokenKeepaliveLoop,
	}
	for _, loop := range loops {
		wg.Add(1)
		go func(fn func(context.Context)) {
			defer wg.Done()
			s.recoverable(ctx, fn)
		}(loop)
	}
	<-ctx.Done()
	wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.eng.shutdown(shutdownCtx)
}

// recoverable runs a cadence loop, restarting it if a single tick panics
// (spec.md §9: a panic inside one tick aborts only that tick, never the process).
func (s *Scheduler) recoverable(ctx context.Context, loop func(context.Context)) {
	for ctx.Err() == nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("[ERROR] scheduler: cadence loop panicked: %v", r)
				}
			}()
			loop(ctx)
		}()
	}
}

func (s *Scheduler) runSerialized(ctx context.Context, name string, fn func(context.Context)) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[ERROR] scheduler: %s tick panicked: %v", name, r)
		}
	}()
	fn(ctx)
}

// watchlistLoop reloads the daily watchlist at 07:00 ET on weekdays.
func (s *Scheduler) watchlistLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			et := time.Now().In(s.eng.clock.Location())
			dateKey := et.Format("2006-01-02")
			if et.Hour() == 7 && et.Minute() == 0 && s.watchlistDoneDate != dateKey {
				s.eng.reloadWatchlist()
				s.watchlistDoneDate = dateKey
			}
		}
	}
}

// workingSetLoop drives C4 hourly, plus immediately on startup.
func (s *Scheduler) workingSetLoop(ctx context.Context) {
	s.runSerialized(ctx, "working-set-refresh", s.eng.runWorkingSetRefresh)

	interval := time.Duration(s.eng.cfg.SymbolRefreshIntervalSec) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runSerialized(ctx, "working-set-refresh", s.eng.runWorkingSetRefresh)
		}
	}
}

// signalLoop drives C5->C6->C7->C8 every watchlist_scan_interval_sec.
func (s *Scheduler) signalLoop(ctx context.Context) {
	interval := time.Duration(s.eng.cfg.WatchlistScanIntervalSec) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			phase := s.eng.clock.Phase(time.Now().UTC())
			if !phaseAllowsSignalPass(phase, s.eng.cfg.ForceAfterHours) {
				continue
			}
			s.runSerialized(ctx, "signal-pass", s.eng.runSignalPass)
		}
	}
}

// phaseAllowsSignalPass implements P9 (spec.md §8): no order is attempted
// outside REGULAR phase unless force_after_hours is set, in which case
// AFTER_HOURS also qualifies.
func phaseAllowsSignalPass(phase Phase, forceAfterHours bool) bool {
	if phase == PhaseRegular {
		return true
	}
	return phase == PhaseAfterHours && forceAfterHours
}

// monitorLoop drives C9 every position_monitor_interval_sec, plus one final
// sweep at 16:05 ET regardless of cadence alignment.
func (s *Scheduler) monitorLoop(ctx context.Context) {
	interval := time.Duration(s.eng.cfg.PositionMonitorIntervalSec) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runSerialized(ctx, "monitor-pass", s.eng.runMonitorPass)

			et := time.Now().In(s.eng.clock.Location())
			dateKey := et.Format("2006-01-02")
			if et.Hour() == 16 && et.Minute() == 5 && s.lastSweepDate != dateKey {
				s.runSerialized(ctx, "monitor-pass-final-sweep", s.eng.runMonitorPass)
				s.lastSweepDate = dateKey
			}
		}
	}
}

// tokenKeepaliveLoop pings the broker every 55 minutes while the market is
// open enough that a live call makes sense (spec.md §4.2).
func (s *Scheduler) tokenKeepaliveLoop(ctx context.Context) {
	ticker := time.NewTicker(55 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			phase := s.eng.clock.Phase(time.Now().UTC())
			if phase == PhasePreMarket || phase == PhaseRegular {
				s.eng.tokenKeepalive(ctx)
			}
		}
	}
}
