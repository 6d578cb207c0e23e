package scheduler

import (
	"strings"

	"github.com/mechanica-imperii/simcore/simcontract"
)

// resolveHybrid implements spec.md §4.1's ordered Hybrid resolution
// rules, first match wins:
//
//  1. Name contains "Render", "Physics", or "Audio" → DedicatedThread.
//  2. Name contains "UI", "Input", or "Event" → MainThread.
//  3. EMA execution time > SlowMs and total executions > MinExecutions →
//     DedicatedThread.
//  4. Otherwise → WorkerPool.
//
// The name heuristics are intentionally coarse (spec.md's own words) and
// exist to preserve the original system's placement behavior without
// per-system metadata.
func resolveHybrid(name string, stats *systemStats, tuning Tuning) simcontract.Placement {
	for _, kw := range []string{"Render", "Physics", "Audio"} {
		if strings.Contains(name, kw) {
			return simcontract.PlacementDedicatedThread
		}
	}
	for _, kw := range []string{"UI", "Input", "Event"} {
		if strings.Contains(name, kw) {
			return simcontract.PlacementMainThread
		}
	}

	emaMs, _, samples, _ := stats.snapshot()
	if emaMs > tuning.SlowMs && samples > tuning.MinExecutions {
		return simcontract.PlacementDedicatedThread
	}
	return simcontract.PlacementWorkerPool
}

// rebalancer runs the periodic promotion/demotion pass spec.md §4.1
// describes: WorkerPool systems whose EMA or peak sustain above
// threshold for PromotionStreak consecutive qualifying frames move to
// DedicatedThread; DedicatedThread systems whose EMA and peak sustain
// below threshold for DemotionStreak consecutive qualifying frames move
// back to WorkerPool. Qualification is checked once per rebalance pass,
// and each qualifying pass counts for RebalanceEveryFrames frames of the
// streak. Streak counters reset on any non-qualifying pass, mirroring a
// hysteresis band so a system oscillating near the boundary doesn't
// thrash placement every frame.
type rebalancer struct {
	tuning Tuning
}

func newRebalancer(tuning Tuning) *rebalancer {
	return &rebalancer{tuning: tuning}
}

// evaluate inspects one descriptor's stats and returns the placement it
// should move to, or simcontract.PlacementUnset if no change is due.
// Applies to any descriptor currently resolved to WorkerPool or
// DedicatedThread — whether its *configured* placement is Hybrid or an
// explicit WorkerPool/DedicatedThread — since spec.md's promotion and
// demotion rules apply "separately from Hybrid resolution" to
// non-Hybrid systems too. A descriptor marked performance-critical via
// SetPerformanceCritical may still be promoted but is never demoted.
func (rb *rebalancer) evaluate(d *systemDescriptor, current simcontract.Placement) simcontract.Placement {
	emaMs, peakMs, samples, _ := d.stats.snapshot()
	if samples < rb.tuning.MinExecutions {
		return simcontract.PlacementUnset
	}

	switch current {
	case simcontract.PlacementWorkerPool:
		qualifies := emaMs >= rb.tuning.FrameBudgetMs || peakMs >= rb.tuning.PromotionPeakMs
		streak := d.stats.notePromotionFrame(qualifies)
		if streak*int(rb.tuning.RebalanceEveryFrames) >= rb.tuning.PromotionStreak {
			d.stats.resetStreaks()
			return simcontract.PlacementDedicatedThread
		}

	case simcontract.PlacementDedicatedThread:
		if d.performanceCritical.Load() {
			return simcontract.PlacementUnset
		}
		qualifies := emaMs <= rb.tuning.DemotionAvgMs && peakMs < rb.tuning.SlowMs
		streak := d.stats.noteDemotionFrame(qualifies)
		if streak*int(rb.tuning.RebalanceEveryFrames) >= rb.tuning.DemotionStreak {
			d.stats.resetStreaks()
			return simcontract.PlacementWorkerPool
		}
	}

	return simcontract.PlacementUnset
}
