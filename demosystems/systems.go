// Package demosystems provides minimal simcontract.System
// implementations (cmd/simcore-demo runs WorkSystem), adapted from the
// teacher's tiny placeholder
// core types (identity, credits, packet, processor) into concrete
// scheduling workloads instead of P2P/WASM placeholders.
package demosystems

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/mechanica-imperii/simcore/simcontract"
	"github.com/mechanica-imperii/simcore/timeengine"
)

// WorkSystem busy-waits for roughly Duration on every Update call,
// spec.md §8 Scenario A/B's synthetic load generator. ID mirrors the
// teacher's Identity.ID field (a stable opaque string minted once at
// construction) repurposed as the system's diagnostic label rather than
// a cryptographic node identity.
type WorkSystem struct {
	ID        string
	NamePref  string
	Duration  time.Duration
	Placement simcontract.Placement

	updates atomic.Uint64
}

func NewWorkSystem(name string, duration time.Duration, placement simcontract.Placement) *WorkSystem {
	return &WorkSystem{ID: uuid.NewString(), NamePref: name, Duration: duration, Placement: placement}
}

func (s *WorkSystem) Name() string          { return s.NamePref }
func (s *WorkSystem) Initialize() error     { return nil }
func (s *WorkSystem) Shutdown() error       { return nil }
func (s *WorkSystem) PreferredPlacement() simcontract.Placement { return s.Placement }

func (s *WorkSystem) Update(dt float64) error {
	s.updates.Add(1)
	deadline := time.Now().Add(s.Duration)
	for time.Now().Before(deadline) {
		// busy-wait: models CPU-bound work, not I/O, so a sleep would
		// under-report the cost the scheduler is meant to measure.
	}
	return nil
}

func (s *WorkSystem) UpdateCount() uint64 { return s.updates.Load() }

// FlakySystem fails every Update call, spec.md §8 Scenario C's
// disablement driver. Cost mirrors the teacher's Packet.Cost field
// repurposed as a simple failure counter instead of a credit ledger.
type FlakySystem struct {
	NamePref string
	Cost     int64

	calls atomic.Uint64
}

func NewFlakySystem(name string) *FlakySystem {
	return &FlakySystem{NamePref: name}
}

func (s *FlakySystem) Name() string      { return s.NamePref }
func (s *FlakySystem) Initialize() error { return nil }
func (s *FlakySystem) Shutdown() error   { return nil }
func (s *FlakySystem) PreferredPlacement() simcontract.Placement {
	return simcontract.PlacementMainThread
}

func (s *FlakySystem) Update(dt float64) error {
	n := s.calls.Add(1)
	s.Cost++
	return fmt.Errorf("flaky system failure #%d", n)
}

func (s *FlakySystem) CallCount() uint64 { return s.calls.Load() }

// EventLogSystem records every tick it observes via timeengine.OnTick,
// an ordered log for Scenario D-style fan-out-ordering checks. Processor's
// Runtime/Network placeholders in the teacher are replaced here by a
// single ordered log of observed tick classes.
type EventLogSystem struct {
	NamePref string

	Log []string
}

func NewEventLogSystem(name string) *EventLogSystem {
	return &EventLogSystem{NamePref: name}
}

func (s *EventLogSystem) Name() string      { return s.NamePref }
func (s *EventLogSystem) Initialize() error { return nil }
func (s *EventLogSystem) Shutdown() error   { return nil }
func (s *EventLogSystem) PreferredPlacement() simcontract.Placement {
	return simcontract.PlacementMainThread
}
func (s *EventLogSystem) Update(dt float64) error { return nil }

// Record appends the fired class's name to the log; matches
// timeengine.TickCallback's signature for registration via
// Engine.OnTick.
func (s *EventLogSystem) Record(date timeengine.GameDate, class timeengine.TickClass) {
	s.Log = append(s.Log, class.String())
}
