package timeengine

import (
	"sync"

	"github.com/mechanica-imperii/simcore/simcontract"
)

// scheduledEvent is spec.md §3's "(event-id, scheduled date, tick class,
// opaque payload, optional repeat interval in hours)" tuple.
type scheduledEvent struct {
	id           string
	when         GameDate
	class        TickClass
	payload      any
	repeatHours  int // 0 means one-shot
	entityHandle simcontract.EntityHandle
	cancelled    bool
}

func (e *scheduledEvent) ready(current GameDate) bool {
	return !current.Before(e.when)
}

// eventQueue holds scheduled events keyed by id, with insertion order
// preserved for the stable-FIFO-within-class fan-out spec.md §4.5 step 3
// requires. Grounded in the teacher's registry shape (name-keyed map plus
// an ordered slice), the same structure scheduler/registry.go uses for
// systems, applied here to scheduled events instead.
type eventQueue struct {
	mu      sync.Mutex
	byID    map[string]*scheduledEvent
	ordered []string

	store simcontract.ComponentStore
}

func newEventQueue(store simcontract.ComponentStore) *eventQueue {
	return &eventQueue{byID: make(map[string]*scheduledEvent), store: store}
}

// schedule inserts or replaces the event named id. Scheduling a date in
// the past is accepted rather than rejected (spec.md §7's InvalidDate
// policy); the event fires at the next fan-out of its class, which for
// an hourly event is the next frame that advances the date.
func (q *eventQueue) schedule(id string, when GameDate, class TickClass, payload any, repeatHours int) simcontract.EntityHandle {
	q.mu.Lock()
	defer q.mu.Unlock()

	var handle simcontract.EntityHandle
	if q.store != nil {
		handle = q.store.CreateEntity()
	}

	if existing, ok := q.byID[id]; ok {
		existing.when = when
		existing.class = class
		existing.payload = payload
		existing.repeatHours = repeatHours
		existing.cancelled = false
		existing.entityHandle = handle
		return handle
	}

	q.byID[id] = &scheduledEvent{
		id: id, when: when, class: class, payload: payload,
		repeatHours: repeatHours, entityHandle: handle,
	}
	q.ordered = append(q.ordered, id)
	return handle
}

// cancel marks id cancelled; it is removed on its next drain pass rather
// than immediately, keeping cancel() O(1) and drain() the single place
// that mutates ordered.
func (q *eventQueue) cancel(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if e, ok := q.byID[id]; ok {
		e.cancelled = true
	}
}

// drainReady returns, in FIFO order, every non-cancelled event whose
// class is ≤ upTo and whose date has been reached, removing one-shots
// and re-arming repeating events at when + repeatHours.
func (q *eventQueue) drainReady(current GameDate, upTo TickClass) []*scheduledEvent {
	q.mu.Lock()
	defer q.mu.Unlock()

	var fired []*scheduledEvent
	var remaining []string
	for _, id := range q.ordered {
		e := q.byID[id]
		if e.cancelled {
			delete(q.byID, id)
			if q.store != nil {
				q.store.DestroyEntity(e.entityHandle)
			}
			continue
		}
		if e.class > upTo || !e.ready(current) {
			remaining = append(remaining, id)
			continue
		}

		fired = append(fired, e)
		if e.repeatHours > 0 {
			e.when = e.when.AddHours(e.repeatHours)
			remaining = append(remaining, id)
		} else {
			delete(q.byID, id)
			if q.store != nil {
				q.store.DestroyEntity(e.entityHandle)
			}
		}
	}
	q.ordered = remaining
	return fired
}
