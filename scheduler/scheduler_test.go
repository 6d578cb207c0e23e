package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mechanica-imperii/simcore/simcontract"
	"github.com/mechanica-imperii/simcore/telemetry"
)

// busySystem busy-waits for Duration on every Update, the synthetic
// workload spec.md §8 Scenario A and B drive promotion/parallelism
// assertions with.
type busySystem struct {
	name      string
	duration  time.Duration
	placement simcontract.Placement
	updates   atomic.Int64
	fail      atomic.Bool
}

func (s *busySystem) Name() string      { return s.name }
func (s *busySystem) Initialize() error { return nil }
func (s *busySystem) Shutdown() error   { return nil }
func (s *busySystem) PreferredPlacement() simcontract.Placement {
	return s.placement
}
func (s *busySystem) Update(dt float64) error {
	s.updates.Add(1)
	if s.duration > 0 {
		deadline := time.Now().Add(s.duration)
		for time.Now().Before(deadline) {
		}
	}
	if s.fail.Load() {
		return assert.AnError
	}
	return nil
}

func testLogger() *telemetry.Logger {
	return telemetry.New(telemetry.Config{Component: "scheduler_test", Console: false})
}

func TestAddRejectsDuplicateName(t *testing.T) {
	s := New(testLogger(), WithPoolSize(1))
	defer s.Shutdown(context.Background())

	sys := &busySystem{name: "dup", placement: simcontract.PlacementMainThread}
	require.NoError(t, s.Add("dup", sys, simcontract.PlacementMainThread))

	err := s.Add("dup", &busySystem{name: "dup"}, simcontract.PlacementMainThread)
	require.Error(t, err)
	var dupErr *ErrDuplicateName
	require.ErrorAs(t, err, &dupErr)
}

func TestUpdateRunsEveryEnabledSystem(t *testing.T) {
	s := New(testLogger(), WithPoolSize(2))
	defer s.Shutdown(context.Background())

	main := &busySystem{name: "MainOne", placement: simcontract.PlacementMainThread}
	pool := &busySystem{name: "PoolOne", placement: simcontract.PlacementWorkerPool}
	require.NoError(t, s.Add(main.name, main, simcontract.PlacementMainThread))
	require.NoError(t, s.Add(pool.name, pool, simcontract.PlacementWorkerPool))

	require.NoError(t, s.Update())

	assert.EqualValues(t, 1, main.updates.Load())
	assert.EqualValues(t, 1, pool.updates.Load())
}

func TestPoolParallelism(t *testing.T) {
	s := New(testLogger(), WithPoolSize(4))
	defer s.Shutdown(context.Background())
	s.EnableFrameLimiting(false) // measure the frame itself, not the sleep to the target interval

	for i := 0; i < 4; i++ {
		sys := &busySystem{name: busyName(i), duration: 5 * time.Millisecond, placement: simcontract.PlacementWorkerPool}
		require.NoError(t, s.Add(sys.name, sys, simcontract.PlacementWorkerPool))
	}

	start := time.Now()
	require.NoError(t, s.Update())
	elapsed := time.Since(start)

	assert.Less(t, elapsed, 15*time.Millisecond, "four 5ms tasks on 4 workers should run concurrently")
}

func busyName(i int) string {
	return [...]string{"Pool0", "Pool1", "Pool2", "Pool3"}[i]
}

// TestUpdateWithMainAndPoolDoesNotDeadlock guards against the barrier
// treating the pool as a participant distinct from main: if the pool's
// proxy arrival and main's own arrival aren't concurrent, Update never
// returns.
func TestUpdateWithMainAndPoolDoesNotDeadlock(t *testing.T) {
	s := New(testLogger(), WithPoolSize(2))
	defer s.Shutdown(context.Background())

	main := &busySystem{name: "Main", placement: simcontract.PlacementMainThread}
	pool := &busySystem{name: "Pool", placement: simcontract.PlacementWorkerPool}
	require.NoError(t, s.Add(main.name, main, simcontract.PlacementMainThread))
	require.NoError(t, s.Add(pool.name, pool, simcontract.PlacementWorkerPool))

	done := make(chan error, 1)
	go func() { done <- s.Update() }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Update deadlocked with a MainThread and a WorkerPool system both enabled")
	}
}

func TestPerformanceCriticalInhibitsDemotion(t *testing.T) {
	s := New(testLogger(), WithPoolSize(1))
	defer s.Shutdown(context.Background())

	sys := &busySystem{name: "Critical", placement: simcontract.PlacementDedicatedThread}
	require.NoError(t, s.Add(sys.name, sys, simcontract.PlacementDedicatedThread))
	require.NoError(t, s.SetPerformanceCritical(sys.name, true))

	d, ok := s.registry.get(sys.name)
	require.True(t, ok)
	for i := uint64(0); i < s.tuning.MinExecutions+1; i++ {
		d.stats.record(time.Microsecond, s.tuning.EMASampleWindow) // cheap enough to qualify for demotion
	}

	next := s.rebalancer.evaluate(d, simcontract.PlacementDedicatedThread)
	assert.Equal(t, simcontract.PlacementUnset, next, "performance-critical system must never be demoted")
}

func TestNonHybridWorkerPoolPromotesOnSustainedLoad(t *testing.T) {
	tuning := DefaultTuning()
	tuning.MinExecutions = 1
	tuning.PromotionStreak = 1
	tuning.FrameBudgetMs = 1

	s := New(testLogger(), WithTuning(tuning), WithPoolSize(1))
	defer s.Shutdown(context.Background())

	sys := &busySystem{name: "Heavy", duration: 5 * time.Millisecond, placement: simcontract.PlacementWorkerPool}
	require.NoError(t, s.Add(sys.name, sys, simcontract.PlacementWorkerPool))

	d, ok := s.registry.get(sys.name)
	require.True(t, ok)
	d.stats.record(5*time.Millisecond, tuning.EMASampleWindow)

	s.runRebalance()

	assert.Equal(t, simcontract.PlacementDedicatedThread, d.getPlacement(),
		"an explicitly-configured WorkerPool system exceeding the promotion threshold should be rebalanced, not just Hybrid ones")
}

func TestDisablementAfterMaxErrors(t *testing.T) {
	tuning := DefaultTuning()
	tuning.MaxErrors = 5
	tuning.ErrorWindow = time.Minute

	s := New(testLogger(), WithTuning(tuning), WithPoolSize(1))
	defer s.Shutdown(context.Background())

	flaky := &busySystem{name: "Flaky", placement: simcontract.PlacementMainThread}
	flaky.fail.Store(true)
	require.NoError(t, s.Add(flaky.name, flaky, simcontract.PlacementMainThread))

	for i := 0; i < 10; i++ {
		_ = s.Update() // Flaky's failures are aggregated into Update's return, not panicked
	}

	d, ok := s.registry.get("Flaky")
	require.True(t, ok)
	assert.False(t, d.enabled.Load(), "system should be disabled after exceeding MaxErrors")
	assert.LessOrEqual(t, flaky.updates.Load(), int64(6), "disabled system should stop receiving updates")
}

func TestFrameLimitingSleepsToTarget(t *testing.T) {
	s := New(testLogger(), WithPoolSize(1))
	defer s.Shutdown(context.Background())
	s.EnableFrameLimiting(true)
	s.targetFrameTime = 10 * time.Millisecond

	start := time.Now()
	require.NoError(t, s.Update())
	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 9*time.Millisecond)
}

func TestGameClockMonotonicity(t *testing.T) {
	mock := clock.NewMock()
	gc := NewGameClock(mock)

	var lastFrame uint64
	var lastTime float64
	for i := 0; i < 5; i++ {
		mock.Add(16 * time.Millisecond)
		gc.Update()
		frame := gc.FrameNumber()
		gt := gc.GameTime()
		assert.GreaterOrEqual(t, frame, lastFrame)
		assert.GreaterOrEqual(t, gt, lastTime)
		lastFrame, lastTime = frame, gt
	}
}

func TestBarrierAdvancesOncePerFrame(t *testing.T) {
	b := NewFrameBarrier(3)
	b.BeginFrame()

	done := make(chan struct{}, 3)
	for i := 0; i < 3; i++ {
		go func() {
			b.ArriveAndWait()
			done <- struct{}{}
		}()
	}

	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("barrier did not release all participants")
		}
	}
	assert.EqualValues(t, 1, b.Epoch())
}

func TestWorkerPoolShutdownDrainsQueue(t *testing.T) {
	p := NewWorkerPool(2, testLogger(), nil)
	resultCh, err := p.Submit(func() error { return nil })
	require.NoError(t, err)
	require.NoError(t, <-resultCh)

	require.NoError(t, p.Shutdown())
	assert.Equal(t, 0, p.ActiveCount())
	assert.Equal(t, 0, p.QueuedCount())

	_, err = p.Submit(func() error { return nil })
	assert.ErrorIs(t, err, ErrShutdownInProgress)
}
