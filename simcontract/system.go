// Package simcontract defines the minimal contracts spec.md §6 requires
// between the core (Scheduler, Time Engine) and the opaque simulation
// systems, message bus, and component store it drives but does not
// implement. The teacher's equivalent (game::core::ISystem,
// ThreadSafeMessageBus, core::ecs::ComponentAccessManager) lived in C++
// headers with no runtime body; here they are Go interfaces with one
// reference MessageBus implementation living in package bus.
package simcontract

import "time"

// Placement is the execution strategy assigned to a System, spec.md §3.
type Placement int

const (
	// PlacementUnset is the zero value: callers who pass it to Add let the
	// Scheduler's configured default placement apply (see
	// Scheduler.SetDefaultPlacement in SPEC_FULL.md §11).
	PlacementUnset Placement = iota
	PlacementMainThread
	PlacementWorkerPool
	PlacementDedicatedThread
	// PlacementHybrid means "resolve per frame from observed cost and
	// name-based heuristics" — spec.md §4.1.
	PlacementHybrid
)

func (p Placement) String() string {
	switch p {
	case PlacementMainThread:
		return "MainThread"
	case PlacementWorkerPool:
		return "WorkerPool"
	case PlacementDedicatedThread:
		return "DedicatedThread"
	case PlacementHybrid:
		return "Hybrid"
	default:
		return "Unset"
	}
}

// System is the contract spec.md §6 requires of anything the Scheduler
// drives.
type System interface {
	// Name returns a stable, unique identifier for this system.
	Name() string
	// Initialize is called once before the first Update. It may return
	// InitializationError (see scheduler package) to mark the system
	// disabled before it ever runs.
	Initialize() error
	// Update is called once per frame with the elapsed simulated seconds.
	Update(dt float64) error
	// Shutdown is called once after the last Update and must not panic.
	Shutdown() error
	// PreferredPlacement is a hint; the Scheduler may override it via
	// SetPlacement or Hybrid resolution.
	PreferredPlacement() Placement
}

// DefaultDuration is the spec.md §3 default target frame interval
// (~60 FPS), used when a system descriptor doesn't override it.
const DefaultDuration = time.Second / 60
