package scheduler

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ema applies spec.md §3's exponential moving average update with an
// adaptive alpha that widens until it reaches window, then holds:
// α = 1/min(k, window). k is the sample ordinal (1-based) seen so far.
func ema(prev float64, sample float64, k uint64, window uint64) float64 {
	n := k
	if n > window {
		n = window
	}
	if n == 0 {
		n = 1
	}
	alpha := 1 / float64(n)
	return prev + alpha*(sample-prev)
}

// systemStats is one System's running performance record, spec.md §3's
// "per-system: EMA execution time, peak execution time, execution count,
// last error (if any)". Grounded in the reputation-score EMA pattern from
// kernel/core/mesh/routing.ReputationManager (same adaptive-alpha shape,
// applied here to latency instead of trust) and in the teacher's
// PerformanceMonitor concept from ThreadedSystemManager.h.
type systemStats struct {
	mu sync.Mutex

	emaMs   float64
	peakMs  float64
	samples uint64

	promotionStreak int
	demotionStreak  int

	lastErr error
}

func (s *systemStats) record(d time.Duration, window uint64) {
	ms := float64(d) / float64(time.Millisecond)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples++
	s.emaMs = ema(s.emaMs, ms, s.samples, window)
	if ms > s.peakMs {
		s.peakMs = ms
	}
}

func (s *systemStats) snapshot() (emaMs, peakMs float64, samples uint64, lastErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.emaMs, s.peakMs, s.samples, s.lastErr
}

// notePromotionFrame advances or resets the promotion streak depending
// on whether the current frame qualified, and returns the resulting
// streak count. Guarded by the same mutex as record/snapshot since the
// rebalance pass runs concurrently with in-flight task completions that
// also touch this struct.
func (s *systemStats) notePromotionFrame(qualifies bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if qualifies {
		s.promotionStreak++
	} else {
		s.promotionStreak = 0
	}
	return s.promotionStreak
}

func (s *systemStats) noteDemotionFrame(qualifies bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if qualifies {
		s.demotionStreak++
	} else {
		s.demotionStreak = 0
	}
	return s.demotionStreak
}

func (s *systemStats) resetStreaks() {
	s.mu.Lock()
	s.promotionStreak = 0
	s.demotionStreak = 0
	s.mu.Unlock()
}

func (s *systemStats) resetPeak() {
	s.mu.Lock()
	s.peakMs = 0
	s.mu.Unlock()
}

func (s *systemStats) setLastErr(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}

// PerformanceReport is the snapshot returned by Scheduler.PerformanceReport,
// spec.md §11's supplemented GetPerformanceReport feature from the
// original ThreadedSystemManager::GetPerformanceReport.
type PerformanceReport struct {
	FrameTimeMs float64
	FPS         float64
	FrameCount  uint64
	Systems     map[string]SystemPerformance
	GeneratedAt time.Time
}

// SystemPerformance is one named system's entry in a PerformanceReport.
type SystemPerformance struct {
	Placement  string
	EMAMs      float64
	PeakMs     float64
	Executions uint64
	LastError  string
}

// performanceMonitor tracks global frame-time/FPS EMA plus per-system
// stats, and exports both through Prometheus, spec.md §9's "two gauges
// (goroutine counts/queue depths), one histogram (task durations), one
// counter (errors by system)" commitment extended to cover frame
// performance as well.
type performanceMonitor struct {
	tuning Tuning

	mu          sync.Mutex
	frameEmaMs  float64
	framePeakMs float64
	frameCount  uint64
	enabled     bool

	frameGauge    prometheus.Gauge
	fpsGauge      prometheus.Gauge
	systemEMA     *prometheus.GaugeVec
	errorsCounter *prometheus.CounterVec
}

func newPerformanceMonitor(tuning Tuning, reg prometheus.Registerer) *performanceMonitor {
	pm := &performanceMonitor{
		tuning:  tuning,
		enabled: true,
		frameGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "simcore_frame_time_ms",
			Help: "EMA of total frame processing time in milliseconds.",
		}),
		fpsGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "simcore_fps",
			Help: "Instantaneous frames per second implied by the last frame.",
		}),
		systemEMA: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "simcore_system_ema_ms",
			Help: "EMA execution time per system in milliseconds.",
		}, []string{"system"}),
		errorsCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "simcore_system_errors_total",
			Help: "Total errors observed per system.",
		}, []string{"system"}),
	}
	if reg != nil {
		reg.MustRegister(pm.frameGauge, pm.fpsGauge, pm.systemEMA, pm.errorsCounter)
	}
	return pm
}

func (pm *performanceMonitor) setEnabled(v bool) {
	pm.mu.Lock()
	pm.enabled = v
	pm.mu.Unlock()
}

func (pm *performanceMonitor) recordFrame(d time.Duration) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if !pm.enabled {
		return
	}
	ms := float64(d) / float64(time.Millisecond)
	pm.frameCount++
	pm.frameEmaMs = ema(pm.frameEmaMs, ms, pm.frameCount, pm.tuning.EMAFrameWindow)
	if ms > pm.framePeakMs {
		pm.framePeakMs = ms
	}
	pm.frameGauge.Set(pm.frameEmaMs)
	if ms > 0 {
		pm.fpsGauge.Set(1000 / ms)
	}
}

func (pm *performanceMonitor) reset() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.frameEmaMs = 0
	pm.framePeakMs = 0
	pm.frameCount = 0
}

func (pm *performanceMonitor) snapshot() (emaMs, peakMs float64, frames uint64) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return pm.frameEmaMs, pm.framePeakMs, pm.frameCount
}

func (pm *performanceMonitor) observeSystemEMA(name string, emaMs float64) {
	pm.systemEMA.WithLabelValues(name).Set(emaMs)
}

func (pm *performanceMonitor) countError(name string) {
	pm.errorsCounter.WithLabelValues(name).Inc()
}
