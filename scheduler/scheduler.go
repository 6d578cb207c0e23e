// Package scheduler implements the concurrent system scheduler described
// by spec.md §4: a frame-based driver that places each registered System
// on the main goroutine, a shared worker pool, or a dedicated goroutine,
// synchronizes all of them once per frame through a cyclic barrier, and
// tracks per-system performance, errors, and automatic placement
// rebalancing.
package scheduler

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/mechanica-imperii/simcore/simcontract"
	"github.com/mechanica-imperii/simcore/telemetry"
)

// Scheduler is the top-level type implementing spec.md §4.1's
// ThreadedSystemManager-equivalent surface: Add, Remove, Update,
// Shutdown, SetDefaultPlacement (the original's
// SetDefaultThreadingStrategy), and the §11 supplemented
// monitoring/frame-limiting controls. There are no separate start/stop
// methods: every Update call runs a frame.
type Scheduler struct {
	tuning Tuning
	logger *telemetry.Logger
	bus    simcontract.MessageBus

	registry    *registry
	supervisor  *supervisor
	perf        *performanceMonitor
	rebalancer  *rebalancer
	pool        *WorkerPool
	barrier     *FrameBarrier
	gameClock   *GameClock

	mu               sync.Mutex
	dedicated        map[string]*dedicatedThread
	defaultPlacement simcontract.Placement
	frameLimiting    bool
	targetFrameTime  time.Duration
	perfMonitoring   bool
	frameNumber      uint64

	poolSizeOverride int
	registerer       prometheus.Registerer

	ctx    context.Context
	cancel context.CancelFunc
}

// Option configures a Scheduler at construction time.
type Option func(*Scheduler)

// WithTuning overrides the default tuning constants.
func WithTuning(t Tuning) Option {
	return func(s *Scheduler) { s.tuning = t }
}

// WithBus attaches a MessageBus that receives SystemDisabled notices,
// spec.md §6.
func WithBus(bus simcontract.MessageBus) Option {
	return func(s *Scheduler) { s.bus = bus }
}

// WithClock injects a clock.Clock (clock.NewMock() in tests), spec.md §8
// scenarios B and F.
func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) { s.gameClock = NewGameClock(c) }
}

// WithPoolSize sets the initial worker pool size (default: runtime's
// GOMAXPROCS via automaxprocs, applied by the caller before
// construction).
func WithPoolSize(n int) Option {
	return func(s *Scheduler) { s.poolSizeOverride = n }
}

// WithRegisterer registers Prometheus collectors against reg instead of
// the default registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(s *Scheduler) { s.registerer = reg }
}

func New(logger *telemetry.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = telemetry.Default("scheduler")
	}
	s := &Scheduler{
		tuning:           DefaultTuning(),
		logger:           logger,
		registry:         newRegistry(),
		dedicated:        make(map[string]*dedicatedThread),
		defaultPlacement: simcontract.PlacementWorkerPool,
		frameLimiting:    true,
		perfMonitoring:   true,
		targetFrameTime:  DefaultTuning().DefaultTargetInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.gameClock == nil {
		s.gameClock = NewGameClock(clock.New())
	}

	poolSize := s.poolSizeOverride
	if poolSize <= 0 {
		poolSize = runtime.GOMAXPROCS(0)
	}
	s.pool = NewWorkerPool(poolSize, logger.Named("pool"), s.registerer)
	s.barrier = NewFrameBarrier(1)
	s.supervisor = newSupervisor(s.tuning, logger.Named("supervisor"))
	s.perf = newPerformanceMonitor(s.tuning, s.registerer)
	s.rebalancer = newRebalancer(s.tuning)

	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// Add registers a System under name with the given desired placement
// (Hybrid is resolved per-frame). Duplicate names are rejected, spec.md
// §4.1.
func (s *Scheduler) Add(name string, sys simcontract.System, placement simcontract.Placement) error {
	if placement == simcontract.PlacementUnset {
		placement = s.defaultPlacement
	}
	d := &systemDescriptor{
		name:   name,
		system: sys,
		stats:  &systemStats{},
	}
	d.setPlacement(placement)
	d.enabled.Store(true)
	d.idle.Store(true)
	if err := s.registry.add(d); err != nil {
		return err
	}
	s.supervisor.clear(name)

	if err := sys.Initialize(); err != nil {
		// The system stays registered but disabled, so it is never
		// scheduled; Remove followed by Add is the way to retry it.
		d.enabled.Store(false)
		return &InitializationError{Name: name, Err: err}
	}

	if placement == simcontract.PlacementDedicatedThread {
		s.startDedicated(d)
	}
	s.recomputeParticipants()
	return nil
}

// Remove unregisters name, which must be idle, spec.md §3.
func (s *Scheduler) Remove(name string) error {
	d, err := s.registry.remove(name)
	if err != nil {
		return err
	}
	s.mu.Lock()
	dt, ok := s.dedicated[name]
	delete(s.dedicated, name)
	s.mu.Unlock()
	if ok {
		dt.stop()
	}
	s.supervisor.forget(name)
	s.recomputeParticipants()
	return d.system.Shutdown()
}

// SetPlacement changes name's configured placement. Takes effect at the
// start of the next frame.
func (s *Scheduler) SetPlacement(name string, placement simcontract.Placement) error {
	d, ok := s.registry.get(name)
	if !ok {
		return &ErrUnknownSystem{Name: name}
	}
	d.setPlacement(placement)

	_, wasDedicated := s.dedicatedFor(name)
	if placement == simcontract.PlacementDedicatedThread && !wasDedicated {
		s.startDedicated(d)
	} else if placement != simcontract.PlacementDedicatedThread && wasDedicated {
		s.stopDedicated(name)
	}
	s.recomputeParticipants()
	return nil
}

// SetPerformanceCritical marks name as exempt from automatic demotion
// (spec.md's set_performance_critical): runRebalance will still promote
// it off WorkerPool when it qualifies, but will never demote it back.
func (s *Scheduler) SetPerformanceCritical(name string, critical bool) error {
	d, ok := s.registry.get(name)
	if !ok {
		return &ErrUnknownSystem{Name: name}
	}
	d.performanceCritical.Store(critical)
	return nil
}

// SetDefaultPlacement changes the placement newly-added systems receive
// when Add is called without an explicit one (spec.md §11's
// SetDefaultThreadingStrategy supplement).
func (s *Scheduler) SetDefaultPlacement(p simcontract.Placement) {
	s.mu.Lock()
	s.defaultPlacement = p
	s.mu.Unlock()
}

// SetMaxThreads resizes the worker pool. Must not be called while a
// frame is in flight.
func (s *Scheduler) SetMaxThreads(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pool = s.pool.Resize(n)
}

// EnableFrameLimiting toggles the sleep-to-target-interval gate at the
// end of Update, spec.md §11's supplement from ThreadedSystemManager.
func (s *Scheduler) EnableFrameLimiting(enabled bool) {
	s.mu.Lock()
	s.frameLimiting = enabled
	s.mu.Unlock()
}

// EnablePerformanceMonitoring toggles the performance monitor's
// frame-time EMA/peak/count and the frame-time/FPS gauges, spec.md §11.
// Per-system EMA/peak stats and the per-system EMA gauge are recorded
// whether or not monitoring is enabled.
func (s *Scheduler) EnablePerformanceMonitoring(enabled bool) {
	s.mu.Lock()
	s.perfMonitoring = enabled
	s.mu.Unlock()
	s.perf.setEnabled(enabled)
}

// AreAllSystemsIdle reports whether every registered system is currently
// idle (not mid-Update), spec.md §11.
func (s *Scheduler) AreAllSystemsIdle() bool {
	for _, d := range s.registry.snapshot() {
		if !d.idle.Load() {
			return false
		}
	}
	return true
}

// ResetPerformanceCounters clears accumulated EMA/peak state, spec.md §11.
func (s *Scheduler) ResetPerformanceCounters() {
	s.perf.reset()
	for _, d := range s.registry.snapshot() {
		d.stats.mu.Lock()
		d.stats.emaMs = 0
		d.stats.peakMs = 0
		d.stats.samples = 0
		d.stats.mu.Unlock()
	}
}

// PerformanceReport returns a snapshot of global and per-system
// performance, spec.md §11's GetPerformanceReport supplement.
func (s *Scheduler) PerformanceReport(now time.Time) PerformanceReport {
	emaMs, peakMs, frames := s.perf.snapshot()
	report := PerformanceReport{
		FrameTimeMs: emaMs,
		FPS:         s.gameClock.FPS(),
		FrameCount:  frames,
		Systems:     make(map[string]SystemPerformance),
		GeneratedAt: now,
	}
	_ = peakMs
	for _, d := range s.registry.snapshot() {
		ema, peak, samples, lastErr := d.stats.snapshot()
		errStr := ""
		if lastErr != nil {
			errStr = lastErr.Error()
		}
		report.Systems[d.name] = SystemPerformance{
			Placement:  d.getPlacement().String(),
			EMAMs:      ema,
			PeakMs:     peak,
			Executions: samples,
			LastError:  errStr,
		}
	}
	return report
}

// GetSystemNames returns every registered system's name in insertion
// order, spec.md §11.
func (s *Scheduler) GetSystemNames() []string { return s.registry.names() }

// GetSystemCount returns the number of registered systems, spec.md §11.
func (s *Scheduler) GetSystemCount() int { return s.registry.count() }

// FrameNumber returns the number of frames processed so far.
func (s *Scheduler) FrameNumber() uint64 { return s.gameClock.FrameNumber() }

func (s *Scheduler) dedicatedFor(name string) (*dedicatedThread, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dt, ok := s.dedicated[name]
	return dt, ok
}

func (s *Scheduler) startDedicated(d *systemDescriptor) {
	dt := newDedicatedThread(d, s.barrier, s.logger.Named("dedicated."+d.name), s.tuning.DefaultTargetInterval, s.tuning.EMASampleWindow, s.handleSystemError, s.perf.observeSystemEMA)
	s.mu.Lock()
	s.dedicated[d.name] = dt
	s.mu.Unlock()
	dt.start(s.ctx)
}

func (s *Scheduler) stopDedicated(name string) {
	s.mu.Lock()
	dt, ok := s.dedicated[name]
	delete(s.dedicated, name)
	s.mu.Unlock()
	if ok {
		dt.stop()
	}
}

// recomputeParticipants sets the barrier's participant count to
// 1 (main) + count(dedicated, enabled) + (1 if any WorkerPool system is
// enabled else 0), spec.md §4.3.
func (s *Scheduler) recomputeParticipants() {
	s.mu.Lock()
	dedicatedCount := 0
	for _, dt := range s.dedicated {
		if dt.desc.enabled.Load() {
			dedicatedCount++
		}
	}
	s.mu.Unlock()

	hasPool := false
	for _, d := range s.registry.snapshot() {
		if d.enabled.Load() && d.getPlacement() == simcontract.PlacementWorkerPool {
			hasPool = true
			break
		}
	}

	n := 1 + dedicatedCount
	if hasPool {
		n++
	}
	_ = s.barrier.SetParticipants(n)
}

func (s *Scheduler) handleSystemError(name string, err error) {
	d, ok := s.registry.get(name)
	if !ok {
		return
	}
	d.stats.setLastErr(err)
	s.perf.countError(name)

	disable := s.supervisor.reportError(name, s.gameClock.Now(), err)
	if !disable {
		return
	}

	d.enabled.Store(false)
	s.recomputeParticipants()

	if s.bus != nil {
		s.bus.Publish(simcontract.SystemDisabled{
			Name:       name,
			ErrorCount: s.tuning.MaxErrors,
			LastError:  err.Error(),
			Window:     s.tuning.ErrorWindow,
		})
	}
	s.logger.Error("system disabled after exceeding error threshold",
		telemetry.String("system", name), telemetry.Int("max_errors", s.tuning.MaxErrors))
}

// Update runs exactly one frame: resolve Hybrid placements, dispatch
// WorkerPool and DedicatedThread systems, run MainThread systems inline,
// wait at the barrier, run the periodic rebalance pass, then (if frame
// limiting is enabled) sleep out the remainder of the target interval.
// This is spec.md §4.1's ten-step per-frame algorithm.
func (s *Scheduler) Update() error {
	delta := s.gameClock.Update()
	frameStart := s.gameClock.Now()

	descriptors := s.registry.snapshot()
	resolved := make(map[string]simcontract.Placement, len(descriptors))

	// Reconcile Hybrid→DedicatedThread transitions and participant count
	// strictly between frames (spec.md §4.3: set_participants is only
	// permitted while no frame is active), before BeginFrame flips the
	// barrier into its in-progress state.
	for _, d := range descriptors {
		if !d.enabled.Load() {
			resolved[d.name] = simcontract.PlacementUnset
			continue
		}
		placement := d.getPlacement()
		_, isDedicated := s.dedicatedFor(d.name)
		if placement == simcontract.PlacementHybrid {
			if isDedicated {
				// Once a Hybrid system has a live dedicated goroutine,
				// leave it there rather than re-running resolveHybrid's
				// instantaneous EMA check every frame: that would fight
				// runRebalance's streak-based hysteresis (§4.1) and
				// thrash placement back and forth. Only runRebalance's
				// periodic demotion pass (or an explicit SetPlacement)
				// moves it back off the dedicated thread.
				placement = simcontract.PlacementDedicatedThread
			} else {
				placement = resolveHybrid(d.name, d.stats, s.tuning)
			}
		}
		resolved[d.name] = placement

		switch {
		case placement == simcontract.PlacementDedicatedThread && !isDedicated:
			s.startDedicated(d)
		case placement != simcontract.PlacementDedicatedThread && isDedicated:
			s.stopDedicated(d.name)
		}
	}
	// Recomputed every frame: a system disabled during the previous
	// frame could not resize the barrier then (SetParticipants refuses
	// while a frame is active).
	s.recomputeParticipants()

	s.barrier.BeginFrame()

	var mainErrs error
	var wg sync.WaitGroup
	var g errgroup.Group
	poolHasWork := false

	for _, d := range descriptors {
		placement := resolved[d.name]

		switch placement {
		case simcontract.PlacementMainThread:
			if err := s.runInline(d, delta); err != nil {
				mainErrs = multierr.Append(mainErrs, err)
			}

		case simcontract.PlacementWorkerPool:
			poolHasWork = true
			wg.Add(1)
			dd := d
			g.Go(func() error {
				defer wg.Done()
				return s.runPooled(dd, delta)
			})

		case simcontract.PlacementDedicatedThread:
			if dt, ok := s.dedicatedFor(d.name); ok {
				dt.signalFrame(delta)
			}
		}
	}

	// The pool is counted as a barrier participant distinct from main
	// (recomputeParticipants), so its arrival must happen concurrently
	// with main's own arrival below, not before it — otherwise main
	// blocks waiting for a second arrival that can only come after this
	// call returns, deadlocking every frame with pool work.
	var poolArrived sync.WaitGroup
	if poolHasWork {
		poolArrived.Add(1)
		go func() {
			defer poolArrived.Done()
			wg.Wait()
			s.barrier.ArriveAndWait()
		}()
	}

	s.barrier.ArriveAndWait() // main thread's own arrival
	poolArrived.Wait()

	if err := g.Wait(); err != nil {
		mainErrs = multierr.Append(mainErrs, err)
	}

	s.frameNumber++
	if s.frameNumber%s.tuning.RebalanceEveryFrames == 0 {
		s.runRebalance()
	}

	elapsed := time.Since(frameStart)
	s.perf.recordFrame(elapsed)

	s.mu.Lock()
	limiting := s.frameLimiting
	target := s.targetFrameTime
	s.mu.Unlock()
	if limiting && elapsed < target {
		time.Sleep(target - elapsed)
	}

	return mainErrs
}

func (s *Scheduler) runInline(d *systemDescriptor, delta float64) (err error) {
	d.idle.Store(false)
	start := s.gameClock.Now()
	defer func() {
		d.idle.Store(true)
		d.stats.record(time.Since(start), s.tuning.EMASampleWindow)
		emaMs, _, _, _ := d.stats.snapshot()
		s.perf.observeSystemEMA(d.name, emaMs)
		if r := recover(); r != nil {
			err = &UpdateError{Name: d.name, Err: telemetry.NewError("panic in main-thread system update")}
		}
		if err != nil {
			s.handleSystemError(d.name, err)
		}
	}()
	if uerr := d.system.Update(delta); uerr != nil {
		return &UpdateError{Name: d.name, Err: uerr}
	}
	return nil
}

func (s *Scheduler) runPooled(d *systemDescriptor, delta float64) error {
	resultCh, err := s.pool.Submit(func() error {
		d.idle.Store(false)
		start := s.gameClock.Now()
		uerr := d.system.Update(delta)
		d.stats.record(time.Since(start), s.tuning.EMASampleWindow)
		emaMs, _, _, _ := d.stats.snapshot()
		s.perf.observeSystemEMA(d.name, emaMs)
		d.idle.Store(true)
		if uerr != nil {
			return &UpdateError{Name: d.name, Err: uerr}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if taskErr := <-resultCh; taskErr != nil {
		s.handleSystemError(d.name, taskErr)
		return taskErr
	}
	return nil
}

// runRebalance evaluates every system currently resolved to WorkerPool
// or DedicatedThread for promotion/demotion, spec.md's "separately from
// Hybrid resolution, non-Hybrid systems may be promoted or demoted" —
// this runs for Hybrid-configured systems (using resolveHybrid's current
// resolution as the baseline) and for systems explicitly configured as
// WorkerPool/DedicatedThread alike.
func (s *Scheduler) runRebalance() {
	for _, d := range s.registry.snapshot() {
		if !d.enabled.Load() {
			continue
		}
		configured := d.getPlacement()

		var current simcontract.Placement
		switch configured {
		case simcontract.PlacementHybrid:
			if _, isDedicated := s.dedicatedFor(d.name); isDedicated {
				current = simcontract.PlacementDedicatedThread
			} else {
				current = resolveHybrid(d.name, d.stats, s.tuning)
			}
		case simcontract.PlacementWorkerPool, simcontract.PlacementDedicatedThread:
			current = configured
		default:
			continue // MainThread systems are never rebalanced
		}

		next := s.rebalancer.evaluate(d, current)
		if next == simcontract.PlacementUnset || next == current {
			continue
		}
		s.logger.Info("rebalanced system placement",
			telemetry.String("system", d.name),
			telemetry.String("from", current.String()),
			telemetry.String("to", next.String()),
		)
		if configured != simcontract.PlacementHybrid {
			// Explicitly-configured systems are promoted/demoted by
			// changing their configured placement outright; Hybrid
			// systems keep their configured placement and are resolved
			// fresh (sticky while dedicated) every frame by Update.
			d.setPlacement(next)
		}
		if next == simcontract.PlacementDedicatedThread {
			s.startDedicated(d)
		} else {
			s.stopDedicated(d.name)
		}
	}
	s.recomputeParticipants()
}

// Shutdown stops every dedicated goroutine, shuts down the worker pool,
// and calls Shutdown on every registered System, aggregating all errors,
// spec.md §4.1's StopSystems+Shutdown sequence.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.cancel()

	s.mu.Lock()
	dedicated := make([]*dedicatedThread, 0, len(s.dedicated))
	for _, dt := range s.dedicated {
		dedicated = append(dedicated, dt)
	}
	s.mu.Unlock()
	for _, dt := range dedicated {
		dt.stop()
	}

	var errs error
	if err := s.pool.Shutdown(); err != nil {
		errs = multierr.Append(errs, err)
	}

	for _, d := range s.registry.snapshot() {
		if err := d.system.Shutdown(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("system %q shutdown: %w", d.name, err))
		}
	}
	return errs
}
