package scheduler

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/mechanica-imperii/simcore/telemetry"
)

// errorWindow tracks exact error timestamps within a sliding window for
// one system, implementing spec.md §4.4's disablement rule precisely:
// "if a system's error count within ErrorWindow reaches MaxErrors, the
// system is disabled." golang.org/x/time/rate implements a token-bucket
// rate limiter, which approximates but does not exactly reproduce a
// sliding window of timestamps, so the disablement decision itself is
// computed here with an explicit timestamp slice; the rate limiter is
// reserved below for its genuinely idiomatic use, throttling the log
// line a system emits when it fails on every frame.
type errorWindow struct {
	mu        sync.Mutex
	times     []time.Time
	window    time.Duration
	maxErrors int
}

func newErrorWindow(window time.Duration, maxErrors int) *errorWindow {
	return &errorWindow{window: window, maxErrors: maxErrors}
}

// record adds an error occurrence at now and reports whether the system
// should be disabled as a result (count within window reached maxErrors).
func (w *errorWindow) record(now time.Time) (count int, disable bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := now.Add(-w.window)
	kept := w.times[:0]
	for _, t := range w.times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, now)
	w.times = kept

	count = len(w.times)
	return count, count >= w.maxErrors
}

func (w *errorWindow) reset() {
	w.mu.Lock()
	w.times = nil
	w.mu.Unlock()
}

// supervisor tracks disablement state and error-log throttling across all
// registered systems, spec.md §4.4 ("Supervision"). One limiter per
// system is created lazily: a system that fails every frame would
// otherwise flood the log, so repeated failures beyond the first in any
// one-second window are logged at most once per second, grounded in the
// same per-peer rate.Limiter pattern the flow-control supervisor package
// (kernel/threads/supervisor/flow_control.go) uses for congestion
// back-pressure, applied here to log volume instead of admission control.
type supervisor struct {
	tuning Tuning
	logger *telemetry.Logger

	mu       sync.Mutex
	windows  map[string]*errorWindow
	limiters map[string]*rate.Limiter
	disabled map[string]bool
}

func newSupervisor(tuning Tuning, logger *telemetry.Logger) *supervisor {
	return &supervisor{
		tuning:   tuning,
		logger:   logger,
		windows:  make(map[string]*errorWindow),
		limiters: make(map[string]*rate.Limiter),
		disabled: make(map[string]bool),
	}
}

func (s *supervisor) windowFor(name string) *errorWindow {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.windows[name]
	if !ok {
		w = newErrorWindow(s.tuning.ErrorWindow, s.tuning.MaxErrors)
		s.windows[name] = w
	}
	return w
}

func (s *supervisor) limiterFor(name string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.limiters[name]
	if !ok {
		l = rate.NewLimiter(rate.Every(time.Second), 1)
		s.limiters[name] = l
	}
	return l
}

// reportError records a failure for name at now and returns true if this
// call should cause the system to transition to disabled (it was not
// already disabled, and the sliding window just reached MaxErrors).
func (s *supervisor) reportError(name string, now time.Time, err error) bool {
	count, reached := s.windowFor(name).record(now)

	if s.limiterFor(name).Allow() {
		s.logger.Warn("system update failed",
			telemetry.String("system", name),
			telemetry.Int("error_count_in_window", count),
			telemetry.Err(err),
		)
	}

	if !reached {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disabled[name] {
		return false
	}
	s.disabled[name] = true
	return true
}

func (s *supervisor) isDisabled(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disabled[name]
}

// clear re-enables name and resets its error window, used when a system
// is re-added after removal (spec.md §3's lifecycle: removal clears
// accumulated error state).
func (s *supervisor) clear(name string) {
	s.mu.Lock()
	delete(s.disabled, name)
	s.mu.Unlock()
	s.windowFor(name).reset()
}

func (s *supervisor) forget(name string) {
	s.mu.Lock()
	delete(s.disabled, name)
	delete(s.windows, name)
	delete(s.limiters, name)
	s.mu.Unlock()
}
