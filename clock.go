// FILE: clock.go
// Package main – Clock & Phase Oracle (C1).
//
// Pure functions mapping a wall-clock instant to a MarketPhase against
// America/New_York, with a static holiday/early-close table. Weekends are
// always CLOSED. If the current date is past the last known table entry,
// the date is treated as a normal weekday and a warning is logged — see
// DESIGN.md open question 5.
package main

import (
	"log"
	"time"
)

// sessionHours describes a day's regular-session open/close, in ET minutes-of-day.
type sessionHours struct {
	RegularOpenMin  int // 09:30 -> 570
	RegularCloseMin int // 16:00 -> 960, or 13:00 -> 780 on early-close days
}

const (
	preMarketOpenMin  = 4 * 60        // 04:00
	regularOpenMin    = 9*60 + 30     // 09:30
	regularCloseMin   = 16 * 60       // 16:00
	earlyCloseMin     = 13 * 60       // 13:00
	afterHoursCloseMin = 20 * 60      // 20:00
	earlyAfterHoursCloseMin = 17 * 60 // 17:00 on early-close days
)

// Clock is the Clock & Phase Oracle (C1). Stateless aside from the holiday table.
type Clock struct {
	loc          *time.Location
	holidays     map[string]bool // "2026-01-01" -> full-day closed
	earlyCloses  map[string]bool // "2025-07-03" -> closes at 13:00 ET
	lastKnown    time.Time       // latest date the table was curated through
}

// NewClock builds the oracle with a baked-in 2025-2026 US equity holiday table.
// Operators should refresh this table annually (spec.md §9 design note 5).
func NewClock() *Clock {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.UTC
	}
	holidays := map[string]bool{
		"2025-01-01": true, "2025-01-20": true, "2025-02-17": true,
		"2025-04-18": true, "2025-05-26": true, "2025-06-19": true,
		"2025-07-04": true, "2025-09-01": true, "2025-11-27": true,
		"2025-12-25": true,
		"2026-01-01": true, "2026-01-19": true, "2026-02-16": true,
		"2026-04-03": true, "2026-05-25": true, "2026-06-19": true,
		"2026-07-03": true, "2026-09-07": true, "2026-11-26": true,
		"2026-12-25": true,
	}
	earlyCloses := map[string]bool{
		"2025-07-03": true, "2025-11-28": true, "2025-12-24": true,
		"2026-11-27": true, "2026-12-24": true,
	}
	return &Clock{
		loc:         loc,
		holidays:    holidays,
		earlyCloses: earlyCloses,
		lastKnown:   time.Date(2026, 12, 31, 0, 0, 0, 0, loc),
	}
}

func (c *Clock) dateKey(et time.Time) string { return et.Format("2006-01-02") }

// IsTradingDay reports whether the given ET calendar date is a trading day.
func (c *Clock) IsTradingDay(etDate time.Time) bool {
	if etDate.Weekday() == time.Saturday || etDate.Weekday() == time.Sunday {
		return false
	}
	if c.dateKey(etDate) > c.dateKey(c.lastKnown) {
		log.Printf("[WARN] holiday table stale: %s is past last known entry %s; treating as normal weekday", c.dateKey(etDate), c.dateKey(c.lastKnown))
	}
	return !c.holidays[c.dateKey(etDate)]
}

func (c *Clock) isEarlyClose(etDate time.Time) bool { return c.earlyCloses[c.dateKey(etDate)] }

// Phase returns the market phase for the given instant (any location; converted to ET).
func (c *Clock) Phase(nowUTC time.Time) Phase {
	et := nowUTC.In(c.loc)
	if !c.IsTradingDay(et) {
		return PhaseClosed
	}
	minute := et.Hour()*60 + et.Minute()
	closeMin := regularCloseMin
	afterClose := afterHoursCloseMin
	if c.isEarlyClose(et) {
		closeMin = earlyCloseMin
		afterClose = earlyAfterHoursCloseMin
	}
	switch {
	case minute >= preMarketOpenMin && minute < regularOpenMin:
		return PhasePreMarket
	case minute >= regularOpenMin && minute < closeMin:
		return PhaseRegular
	case minute >= closeMin && minute < afterClose:
		return PhaseAfterHours
	default:
		return PhaseClosed
	}
}

// NextTransition returns the earliest future instant at which the phase changes.
func (c *Clock) NextTransition(nowUTC time.Time) (Phase, time.Time) {
	cur := c.Phase(nowUTC)
	// Scan forward minute-by-minute within a 2-day window; markets don't run
	// continuously so a coarse scan is bounded and cheap (called rarely).
	t := nowUTC
	for i := 0; i < 2*24*60; i++ {
		t = t.Add(time.Minute)
		if p := c.Phase(t); p != cur {
			return p, t
		}
	}
	return cur, nowUTC.Add(24 * time.Hour)
}

// ForcedCloseDeadline returns the instant 10 minutes before the regular (or
// early) close on the given day, used by C9 for the max-hold forced exit.
func (c *Clock) ForcedCloseDeadline(etDate time.Time) time.Time {
	closeMin := regularCloseMin
	if c.isEarlyClose(etDate) {
		closeMin = earlyCloseMin
	}
	y, m, d := etDate.Date()
	closeTime := time.Date(y, m, d, closeMin/60, closeMin%60, 0, 0, c.loc)
	return closeTime.Add(-10 * time.Minute)
}

// Location exposes the ET location for callers that need to construct times.
func (c *Clock) Location() *time.Location { return c.loc }
