// FILE: clock_test.go
// Package main – Clock & Phase Oracle (C1) tests.
package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func etTime(loc *time.Location, y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, loc)
}

// B1: a symbol added to the working set at exactly 09:30:00 ET is eligible
// for the first post-open signal pass.
func TestClock_B1_RegularOpenBoundaryIsEligible(t *testing.T) {
	c := NewClock()
	loc := c.Location()
	open := etTime(loc, 2026, time.July, 20, 9, 30)

	assert.Equal(t, PhaseRegular, c.Phase(open.UTC()))
	assert.True(t, phaseAllowsSignalPass(c.Phase(open.UTC()), false))
}

func TestClock_PhaseBoundaries(t *testing.T) {
	c := NewClock()
	loc := c.Location()
	monday := func(hh, mm int) time.Time { return etTime(loc, 2026, time.July, 20, hh, mm) }

	assert.Equal(t, PhaseClosed, c.Phase(monday(3, 59).UTC()))
	assert.Equal(t, PhasePreMarket, c.Phase(monday(4, 0).UTC()))
	assert.Equal(t, PhasePreMarket, c.Phase(monday(9, 29).UTC()))
	assert.Equal(t, PhaseRegular, c.Phase(monday(15, 59).UTC()))
	assert.Equal(t, PhaseAfterHours, c.Phase(monday(16, 0).UTC()))
	assert.Equal(t, PhaseAfterHours, c.Phase(monday(19, 59).UTC()))
	assert.Equal(t, PhaseClosed, c.Phase(monday(20, 0).UTC()))
}

func TestClock_WeekendIsAlwaysClosed(t *testing.T) {
	c := NewClock()
	loc := c.Location()
	saturday := etTime(loc, 2026, time.July, 25, 12, 0)

	assert.Equal(t, PhaseClosed, c.Phase(saturday.UTC()))
}

func TestClock_HolidayIsClosedAllDay(t *testing.T) {
	c := NewClock()
	loc := c.Location()
	independenceDayObserved := etTime(loc, 2026, time.July, 3, 12, 0) // holiday table entry

	assert.Equal(t, PhaseClosed, c.Phase(independenceDayObserved.UTC()))
}

// B2: on an early-close day, ForcedCloseDeadline is 10 minutes before the
// 13:00 ET early close, i.e. 12:50 ET.
func TestClock_B2_EarlyCloseForcedDeadline(t *testing.T) {
	c := NewClock()
	loc := c.Location()
	earlyCloseDay := etTime(loc, 2025, time.November, 28, 0, 0)

	deadline := c.ForcedCloseDeadline(earlyCloseDay)

	require.Equal(t, 12, deadline.Hour())
	assert.Equal(t, 50, deadline.Minute())

	// and the regular-session phase on that same day ends at 13:00, not 16:00.
	assert.Equal(t, PhaseRegular, c.Phase(etTime(loc, 2025, time.November, 28, 12, 59).UTC()))
	assert.Equal(t, PhaseAfterHours, c.Phase(etTime(loc, 2025, time.November, 28, 13, 0).UTC()))
}

func TestClock_RegularCloseForcedDeadline(t *testing.T) {
	c := NewClock()
	loc := c.Location()
	normalDay := etTime(loc, 2026, time.July, 20, 0, 0)

	deadline := c.ForcedCloseDeadline(normalDay)

	assert.Equal(t, 15, deadline.Hour())
	assert.Equal(t, 50, deadline.Minute())
}

func TestPhaseAllowsSignalPass(t *testing.T) {
	assert.True(t, phaseAllowsSignalPass(PhaseRegular, false))
	assert.True(t, phaseAllowsSignalPass(PhaseRegular, true))
	assert.False(t, phaseAllowsSignalPass(PhasePreMarket, true))
	assert.False(t, phaseAllowsSignalPass(PhaseAfterHours, false))
	assert.True(t, phaseAllowsSignalPass(PhaseAfterHours, true))
	assert.False(t, phaseAllowsSignalPass(PhaseClosed, true))
}
