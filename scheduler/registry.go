package scheduler

import (
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"

	"github.com/mechanica-imperii/simcore/simcontract"
)

// systemDescriptor is everything the scheduler tracks about one added
// System, spec.md §3's "per system: name, placement, System
// implementation, enabled flag". placement/enabled/idle are accessed
// from the main Update loop, worker-pool tasks, and dedicated goroutines
// concurrently, so they're atomics rather than plain fields guarded by
// the registry's map lock (which only protects registry membership).
type systemDescriptor struct {
	name   string
	system simcontract.System

	placement atomic.Int32
	enabled   atomic.Bool
	idle      atomic.Bool

	// performanceCritical inhibits automatic demotion off a dedicated
	// thread, spec.md's set_performance_critical: a system marked this
	// way may still be promoted but runRebalance will never move it
	// back to WorkerPool regardless of how cheap it's been running.
	performanceCritical atomic.Bool

	stats *systemStats
}

func (d *systemDescriptor) getPlacement() simcontract.Placement {
	return simcontract.Placement(d.placement.Load())
}

func (d *systemDescriptor) setPlacement(p simcontract.Placement) {
	d.placement.Store(int32(p))
}

// registry is the name-keyed system table, spec.md §4.1's Add/Remove
// contract, with an xxhash-of-name secondary index mirroring the
// teacher's kernel/threads/registry.ModuleRegistry shape (modules map
// plus byHash map for duplicate-signature detection). Here the byHash
// index exists for the same reason the teacher built one: an O(1)
// collision check independent of string comparison. Add consults it
// after the name lookup, under the same write lock, and rejects a name
// whose hash collides with a different registered name.
type registry struct {
	mu      sync.RWMutex
	byName  map[string]*systemDescriptor
	byHash  map[uint64]string
	ordered []string // insertion order, for deterministic iteration
}

func newRegistry() *registry {
	return &registry{
		byName: make(map[string]*systemDescriptor),
		byHash: make(map[uint64]string),
	}
}

func nameHash(name string) uint64 {
	return xxhash.Sum64String(name)
}

// add inserts d, returning ErrDuplicateName if the name (or its hash,
// guarding against an xxhash collision masking a distinct name that
// somehow wasn't caught by the map lookup) is already present.
func (r *registry) add(d *systemDescriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[d.name]; exists {
		return &ErrDuplicateName{Name: d.name}
	}
	h := nameHash(d.name)
	if existing, collided := r.byHash[h]; collided && existing != d.name {
		return &ErrDuplicateName{Name: d.name}
	}

	r.byName[d.name] = d
	r.byHash[h] = d.name
	r.ordered = append(r.ordered, d.name)
	return nil
}

func (r *registry) get(name string) (*systemDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byName[name]
	return d, ok
}

func (r *registry) remove(name string) (*systemDescriptor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.byName[name]
	if !ok {
		return nil, &ErrUnknownSystem{Name: name}
	}
	if !d.idle.Load() {
		return nil, &ErrNotIdle{Name: name}
	}
	delete(r.byName, name)
	delete(r.byHash, nameHash(name))
	for i, n := range r.ordered {
		if n == name {
			r.ordered = append(r.ordered[:i], r.ordered[i+1:]...)
			break
		}
	}
	return d, nil
}

// snapshot returns descriptors in insertion order, spec.md §4.1's
// deterministic per-frame iteration requirement.
func (r *registry) snapshot() []*systemDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*systemDescriptor, 0, len(r.ordered))
	for _, n := range r.ordered {
		out = append(out, r.byName[n])
	}
	return out
}

func (r *registry) names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.ordered))
	copy(out, r.ordered)
	return out
}

func (r *registry) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ordered)
}
