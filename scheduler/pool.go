package scheduler

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/mechanica-imperii/simcore/telemetry"
)

// task is an erased nullary callable submitted to the WorkerPool,
// spec.md §3. Tasks are not cancellable once dequeued.
type task struct {
	id     uuid.UUID
	fn     func() error
	result chan error
}

// WorkerPool is the bounded set of long-lived worker goroutines spec.md
// §4.2 describes, grounded in the teacher's core::threading::ThreadPool
// (queue + condition variable + atomic active/queued/total-time
// counters). The teacher used a raw std::queue guarded by a mutex and
// condition_variable; a buffered Go channel gives the same FIFO-among-
// ready-workers ordering with less code, while still exposing the same
// queued/active/avg-task-time statistics surface spec.md §4.2 requires.
type WorkerPool struct {
	tasks chan task

	wg        sync.WaitGroup
	workerN   atomic.Int64
	active    atomic.Int64
	totalNs   atomic.Int64
	totalDone atomic.Int64

	shuttingDown atomic.Bool
	closeOnce    sync.Once
	stopCh       chan struct{}

	logger *telemetry.Logger

	activeGauge   prometheus.Gauge
	queuedGauge   prometheus.Gauge
	taskHistogram prometheus.Histogram
}

// NewWorkerPool spawns n pre-started workers (minimum 1), spec.md §4.2.
func NewWorkerPool(n int, logger *telemetry.Logger, reg prometheus.Registerer) *WorkerPool {
	if n < 1 {
		n = 1
	}
	if logger == nil {
		logger = telemetry.Default("worker_pool")
	}

	p := &WorkerPool{
		tasks:  make(chan task, 4096),
		stopCh: make(chan struct{}),
		logger: logger,
		activeGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "simcore_pool_active_tasks",
			Help: "Number of worker-pool tasks currently executing.",
		}),
		queuedGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "simcore_pool_queued_tasks",
			Help: "Number of worker-pool tasks waiting to run.",
		}),
		taskHistogram: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "simcore_pool_task_duration_seconds",
			Help:    "Worker-pool task execution time.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	if reg != nil {
		reg.MustRegister(p.activeGauge, p.queuedGauge, p.taskHistogram)
	}

	p.spawn(n)
	return p
}

func (p *WorkerPool) spawn(n int) {
	for i := 0; i < n; i++ {
		p.workerN.Add(1)
		p.wg.Add(1)
		go p.workerLoop()
	}
}

// workerLoop is one long-lived worker: it blocks for a task or shutdown,
// runs one task to completion with an RAII-equivalent defer that
// decrements the active count on every exit path (including panic),
// catches task panics into the handle instead of propagating them into
// the pool, and loops.
func (p *WorkerPool) workerLoop() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopCh:
			return
		case t, ok := <-p.tasks:
			if !ok {
				return
			}
			p.runTask(t)
		}
	}
}

func (p *WorkerPool) runTask(t task) {
	p.active.Add(1)
	p.queuedGauge.Set(float64(len(p.tasks)))
	p.activeGauge.Set(float64(p.active.Load()))
	defer func() {
		p.active.Add(-1)
		p.activeGauge.Set(float64(p.active.Load()))
	}()

	start := time.Now()
	err := p.safeRun(t.fn)
	elapsed := time.Since(start)

	p.totalNs.Add(elapsed.Nanoseconds())
	p.totalDone.Add(1)
	p.taskHistogram.Observe(elapsed.Seconds())

	if err != nil {
		p.logger.Error("pool task failed", telemetry.String("task_id", t.id.String()), telemetry.Err(err))
	}
	t.result <- err
	close(t.result)
}

// safeRun catches a task panic and turns it into an error surfaced
// through the handle, per spec.md §4.2's failure semantics: task
// exceptions never propagate into the pool itself.
func (p *WorkerPool) safeRun(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pool task panicked: %v", r)
		}
	}()
	return fn()
}

// Submit enqueues fn and returns a handle resolving to its result (or a
// recovered panic turned into an error). Returns ErrShutdownInProgress if
// the pool has begun shutting down.
func (p *WorkerPool) Submit(fn func() error) (<-chan error, error) {
	if p.shuttingDown.Load() {
		return nil, ErrShutdownInProgress
	}
	t := task{id: uuid.New(), fn: fn, result: make(chan error, 1)}
	select {
	case p.tasks <- t:
		p.queuedGauge.Set(float64(len(p.tasks)))
		return t.result, nil
	case <-p.stopCh:
		return nil, ErrShutdownInProgress
	}
}

// QueuedCount returns the number of tasks waiting to run.
func (p *WorkerPool) QueuedCount() int { return len(p.tasks) }

// ActiveCount returns the number of tasks currently executing.
func (p *WorkerPool) ActiveCount() int { return int(p.active.Load()) }

// AvgTaskMs returns the mean task execution time in milliseconds across
// the pool's lifetime, spec.md §4.2 / §9 ("a monotonically increasing
// floating-point counter readable as a snapshot").
func (p *WorkerPool) AvgTaskMs() float64 {
	done := p.totalDone.Load()
	if done == 0 {
		return 0
	}
	return float64(p.totalNs.Load()) / float64(done) / float64(time.Millisecond)
}

// Shutdown signals workers to stop, drains in-flight tasks, and joins
// every worker goroutine. After Shutdown returns, Submit always fails
// with ErrShutdownInProgress. An errgroup is used purely to fan the join
// out the same way the pool fanned workers out on construction.
func (p *WorkerPool) Shutdown() error {
	var shutdownErr error
	p.closeOnce.Do(func() {
		p.shuttingDown.Store(true)
		close(p.stopCh)
		close(p.tasks)

		var g errgroup.Group
		g.Go(func() error {
			p.wg.Wait()
			return nil
		})
		shutdownErr = g.Wait()
	})
	return shutdownErr
}

// Resize rebuilds the pool to exactly n workers (minimum 1). Safe only
// between frames, spec.md §4.1's SetMaxThreads contract: callers must
// not call this while a frame's pool tasks are outstanding.
func (p *WorkerPool) Resize(n int) *WorkerPool {
	_ = p.Shutdown()
	return NewWorkerPoolLike(p, n)
}

// NewWorkerPoolLike rebuilds a pool with n workers, reusing old's
// logger. The new pool's collectors are not registered with any
// Prometheus registry (the old pool's collectors already hold those
// names), so after a resize the pool's gauges and histogram are no
// longer exported.
func NewWorkerPoolLike(old *WorkerPool, n int) *WorkerPool {
	return NewWorkerPool(n, old.logger, nil)
}
