package timeengine

import (
	"fmt"
	"sync"
)

// TickCallback receives the current date and the class that fired,
// spec.md §4.5's on_tick contract.
type TickCallback func(date GameDate, class TickClass)

// callbackRegistry holds the named tick registrations of each class;
// duplicate names per class replace the existing binding (spec.md §4.5),
// which is why it is keyed by (class, name) rather than append-only.
type callbackRegistry struct {
	mu    sync.Mutex
	order map[TickClass][]string
	byKey map[TickClass]map[string]TickCallback
}

func newCallbackRegistry() *callbackRegistry {
	return &callbackRegistry{
		order: make(map[TickClass][]string),
		byKey: make(map[TickClass]map[string]TickCallback),
	}
}

func (r *callbackRegistry) on(class TickClass, name string, cb TickCallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.byKey[class] == nil {
		r.byKey[class] = make(map[string]TickCallback)
	}
	if _, exists := r.byKey[class][name]; !exists {
		r.order[class] = append(r.order[class], name)
	}
	r.byKey[class][name] = cb
}

func (r *callbackRegistry) off(class TickClass, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byKey[class], name)
	names := r.order[class]
	for i, n := range names {
		if n == name {
			r.order[class] = append(names[:i], names[i+1:]...)
			break
		}
	}
}

// invokeAll calls every callback registered for class, in insertion
// order, returning the name of any callback that panicked alongside the
// recovered value (spec.md §4.5: exceptions are caught, logged, counted;
// fan-out continues).
func (r *callbackRegistry) invokeAll(class TickClass, date GameDate) []callbackFailure {
	r.mu.Lock()
	names := append([]string(nil), r.order[class]...)
	cbs := make([]TickCallback, len(names))
	for i, n := range names {
		cbs[i] = r.byKey[class][n]
	}
	r.mu.Unlock()

	var failures []callbackFailure
	for i, cb := range cbs {
		if cb == nil {
			continue
		}
		if err := invokeSafely(cb, date, class); err != nil {
			failures = append(failures, callbackFailure{name: names[i], err: err})
		}
	}
	return failures
}

type callbackFailure struct {
	name string
	err  error
}

func invokeSafely(cb TickCallback, date GameDate, class TickClass) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError{value: r}
		}
	}()
	cb(date, class)
	return nil
}

type panicError struct{ value any }

func (p panicError) Error() string { return fmt.Sprintf("tick callback panicked: %v", p.value) }
