package scheduler

import "time"

// Tuning holds the scheduler's configurable thresholds, all named and
// defaulted exactly as spec.md §4.1's "suggested constants" table.
// Passing explicit constructor arguments here (rather than reading a
// global config singleton) follows spec.md §9's design note: "Global
// singletons for configuration... not part of the core."
type Tuning struct {
	// SlowMs is the EMA threshold (ms) above which a Hybrid system's rule
	// 3 routes it to DedicatedThread, and the peak threshold (ms) below
	// which (together with DemotionAvgMs on the EMA) a DedicatedThread
	// system becomes demotion-eligible.
	SlowMs float64
	// FrameBudgetMs is the promotion EMA threshold.
	FrameBudgetMs float64
	// PromotionPeakMs is the promotion peak threshold.
	PromotionPeakMs float64
	// DemotionAvgMs is the demotion EMA threshold.
	DemotionAvgMs float64
	// PromotionStreak is the number of consecutive qualifying frames
	// required before a WorkerPool system is promoted. The streak grows
	// in steps of RebalanceEveryFrames, one step per qualifying pass.
	PromotionStreak int
	// DemotionStreak is the number of consecutive qualifying frames
	// required before a DedicatedThread system is demoted, counted the
	// same way as PromotionStreak.
	DemotionStreak int
	// MinExecutions is rule 3's minimum sample count before a Hybrid
	// system's EMA is trusted for placement decisions.
	MinExecutions uint64
	// MaxErrors is the supervision disablement threshold.
	MaxErrors int
	// ErrorWindow is the supervision sliding window.
	ErrorWindow time.Duration
	// RebalanceEveryFrames is how often the promotion/demotion pass runs.
	RebalanceEveryFrames uint64
	// EMASampleWindow bounds the per-system execution-time EMA's alpha
	// (spec.md §3: "α = 1/min(k, W)").
	EMASampleWindow uint64
	// EMAFrameWindow bounds the frame-time/FPS EMA's alpha.
	EMAFrameWindow uint64
	// DefaultTargetInterval is the per-system default target frame
	// interval, spec.md §3 (~60 FPS).
	DefaultTargetInterval time.Duration
}

// DefaultTuning returns spec.md §4.1's suggested constants.
func DefaultTuning() Tuning {
	return Tuning{
		SlowMs:                5,
		FrameBudgetMs:         16.67,
		PromotionPeakMs:       20,
		DemotionAvgMs:         1,
		PromotionStreak:       180,
		DemotionStreak:        600,
		MinExecutions:         30,
		MaxErrors:             5,
		ErrorWindow:           60 * time.Second,
		RebalanceEveryFrames:  300,
		EMASampleWindow:       120,
		EMAFrameWindow:        120,
		DefaultTargetInterval: time.Second / 60,
	}
}
