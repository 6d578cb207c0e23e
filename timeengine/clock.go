// Package timeengine implements spec.md §4.5's Simulated Time Engine: a
// logical clock emitting hierarchical ticks, a scheduled-event queue, an
// in-transit message queue travelling over a route network, and
// deterministic tick fan-out to subscribers. It runs as a MainThread
// simcontract.System driven once per frame by the scheduler.
package timeengine

import (
	"sync"

	"github.com/mechanica-imperii/simcore/simcontract"
)

// logicalClock owns the current GameDate, pause flag, and time scale,
// spec.md §4.5's pause/resume/set_scale contract. Main-thread-only per
// spec.md §5 ("game date & tick registry: main-thread-only; no locking
// required"); the mutex here exists only because save()/load() and
// CurrentDate() may legitimately be called from another goroutine for
// diagnostics, not because the tick loop itself needs it.
type logicalClock struct {
	mu     sync.Mutex
	date   GameDate
	scale  TimeScale
	paused bool

	carryHours float64 // fractional hours accumulated between frames
}

// GameDate and the tick/scale enums are re-exported from simcontract so
// timeengine callers never need to import both packages for the same
// concept.
type (
	GameDate  = simcontract.GameDate
	TickClass = simcontract.TickClass
	TimeScale = simcontract.TimeScale
)

const (
	TickHourly  = simcontract.TickHourly
	TickDaily   = simcontract.TickDaily
	TickMonthly = simcontract.TickMonthly
	TickYearly  = simcontract.TickYearly

	ScalePaused   = simcontract.ScalePaused
	ScaleSlow     = simcontract.ScaleSlow
	ScaleNormal   = simcontract.ScaleNormal
	ScaleFast     = simcontract.ScaleFast
	ScaleVeryFast = simcontract.ScaleVeryFast
)

func newLogicalClock(start GameDate) *logicalClock {
	return &logicalClock{date: start, scale: ScaleNormal}
}

func (c *logicalClock) currentDate() GameDate {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.date
}

func (c *logicalClock) isPaused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

func (c *logicalClock) pause() {
	c.mu.Lock()
	c.paused = true
	c.mu.Unlock()
}

func (c *logicalClock) resume() {
	c.mu.Lock()
	c.paused = false
	c.mu.Unlock()
}

func (c *logicalClock) setScale(s TimeScale) (previous TimeScale) {
	c.mu.Lock()
	defer c.mu.Unlock()
	previous = c.scale
	c.scale = s
	return previous
}

func (c *logicalClock) getScale() TimeScale {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scale
}

// advance computes how many whole logical hours have elapsed this frame
// given real delta seconds and the current scale, accumulating
// fractional remainder across frames so scale changes never lose
// sub-hour progress. The date moves by all of those hours at once;
// Engine.Update then fires each crossed boundary class once for the
// whole jump, rather than stepping hour by hour.
func (c *logicalClock) advance(deltaSeconds float64) (hours int, from, to GameDate) {
	c.mu.Lock()
	defer c.mu.Unlock()

	from = c.date
	if c.paused || c.scale == ScalePaused {
		return 0, from, from
	}

	simHours := deltaSeconds / 3600 * c.scale.Multiplier()
	c.carryHours += simHours
	hours = int(c.carryHours)
	c.carryHours -= float64(hours)

	if hours > 0 {
		c.date = c.date.AddHours(hours)
	}
	return hours, from, c.date
}

func (c *logicalClock) setDate(d GameDate) {
	c.mu.Lock()
	c.date = d
	c.mu.Unlock()
}
