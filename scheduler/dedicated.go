package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mechanica-imperii/simcore/telemetry"
)

// dedicatedState is spec.md §4.3's per-dedicated-thread lifecycle:
// Starting, Idle, Running, Arriving, Stopping. Grounded in the teacher's
// UnifiedSupervisor goroutine lifecycle (kernel/threads/supervisor/unified.go),
// which runs named loops guarded by a context.CancelFunc and joined with a
// sync.WaitGroup; the same shape here drives one System's own private
// update loop instead of a supervisor's monitor/schedule/health loops.
type dedicatedState int32

const (
	dedicatedStarting dedicatedState = iota
	dedicatedIdle
	dedicatedRunning
	dedicatedArriving
	dedicatedStopping
)

func (s dedicatedState) String() string {
	switch s {
	case dedicatedStarting:
		return "Starting"
	case dedicatedIdle:
		return "Idle"
	case dedicatedRunning:
		return "Running"
	case dedicatedArriving:
		return "Arriving"
	case dedicatedStopping:
		return "Stopping"
	default:
		return "Unknown"
	}
}

// dedicatedThread owns one System's private goroutine, ticking it once
// per frame and arriving at the shared FrameBarrier exactly once per
// frame, spec.md §4.3: "Each DedicatedThread system owns exactly one
// goroutine... ticks once per frame on receiving the frame-start
// signal, then arrives at the barrier."
type dedicatedThread struct {
	desc    *systemDescriptor
	barrier *FrameBarrier
	logger  *telemetry.Logger

	state atomic.Int32

	frameStart chan float64 // delta time for the next frame
	stopOnce   sync.Once
	stopCh     chan struct{}
	done       chan struct{}

	targetInterval  time.Duration
	emaSampleWindow uint64

	onError  func(name string, err error)
	onRecord func(name string, emaMs float64)
}

func newDedicatedThread(desc *systemDescriptor, barrier *FrameBarrier, logger *telemetry.Logger, targetInterval time.Duration, emaSampleWindow uint64, onError func(string, error), onRecord func(string, float64)) *dedicatedThread {
	dt := &dedicatedThread{
		desc:            desc,
		barrier:         barrier,
		logger:          logger,
		frameStart:      make(chan float64, 1),
		stopCh:          make(chan struct{}),
		done:            make(chan struct{}),
		targetInterval:  targetInterval,
		emaSampleWindow: emaSampleWindow,
		onError:         onError,
		onRecord:        onRecord,
	}
	dt.state.Store(int32(dedicatedStarting))
	return dt
}

func (dt *dedicatedThread) getState() dedicatedState {
	return dedicatedState(dt.state.Load())
}

func (dt *dedicatedThread) setState(s dedicatedState) {
	dt.state.Store(int32(s))
}

// start launches the private goroutine. It loops: wait for frame-start
// or stop, run the system's Update, arrive at the barrier, go idle.
// Self-throttles against targetInterval the way the teacher's dedicated
// thread loop paces itself against a target frame duration rather than
// spinning as fast as the scheduler feeds it work.
func (dt *dedicatedThread) start(ctx context.Context) {
	go func() {
		defer close(dt.done)
		dt.setState(dedicatedIdle)
		lastRun := time.Now()

		for {
			select {
			case <-dt.stopCh:
				dt.setState(dedicatedStopping)
				return
			case <-ctx.Done():
				dt.setState(dedicatedStopping)
				return
			case delta := <-dt.frameStart:
				dt.runFrame(delta)

				if elapsed := time.Since(lastRun); elapsed < dt.targetInterval {
					select {
					case <-time.After(dt.targetInterval - elapsed):
					case <-dt.stopCh:
						dt.setState(dedicatedStopping)
						return
					case <-ctx.Done():
						dt.setState(dedicatedStopping)
						return
					}
				}
				lastRun = time.Now()
			}
		}
	}()
}

func (dt *dedicatedThread) runFrame(delta float64) {
	dt.setState(dedicatedRunning)
	dt.desc.idle.Store(false)

	start := time.Now()
	err := dt.safeUpdate(delta)
	dt.desc.stats.record(time.Since(start), dt.emaSampleWindow)
	if dt.onRecord != nil {
		emaMs, _, _, _ := dt.desc.stats.snapshot()
		dt.onRecord(dt.desc.name, emaMs)
	}
	if err != nil && dt.onError != nil {
		dt.onError(dt.desc.name, err)
	}

	dt.desc.idle.Store(true)
	dt.setState(dedicatedArriving)
	dt.barrier.ArriveAndWait()
	dt.setState(dedicatedIdle)
}

func (dt *dedicatedThread) safeUpdate(delta float64) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &UpdateError{Name: dt.desc.name, Err: telemetry.NewError("panic in dedicated system update")}
		}
	}()
	return dt.desc.system.Update(delta)
}

// signalFrame delivers the next frame's delta time to the dedicated
// goroutine. Non-blocking with a buffer of 1: the scheduler never calls
// this twice for the same system before the previous frame's arrival,
// so the buffer exists only to avoid a rendezvous rather than to queue
// multiple frames.
func (dt *dedicatedThread) signalFrame(delta float64) {
	dt.frameStart <- delta
}

// stop requests the goroutine to exit after its current frame (if any)
// and waits for it to do so.
func (dt *dedicatedThread) stop() {
	dt.stopOnce.Do(func() {
		close(dt.stopCh)
	})
	<-dt.done
}
