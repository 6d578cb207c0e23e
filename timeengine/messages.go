package timeengine

import (
	"math"
	"sync"

	"github.com/mechanica-imperii/simcore/simcontract"
)

const (
	urgentSpeedKmh  = 4.0
	routineSpeedKmh = 2.0

	fallbackUrgentDelayHours  = 24
	fallbackRoutineDelayHours = 72
)

// inTransitMessage is spec.md §3's in-transit message tuple.
type inTransitMessage struct {
	id       string
	from, to string
	payload  any
	class    simcontract.TickClass
	urgent   bool

	sendDate     GameDate
	arrivalDate  GameDate
	distanceKm   float64
	speedKmh     float64
	entityHandle simcontract.EntityHandle
}

func (m *inTransitMessage) ready(current GameDate) bool {
	return !current.Before(m.arrivalDate)
}

// messageQueue holds in-transit messages, FIFO by send order, with the
// same ordered-map shape eventQueue uses.
type messageQueue struct {
	mu      sync.Mutex
	byID    map[string]*inTransitMessage
	ordered []string

	store   simcontract.ComponentStore
	routes  *routeNetwork
}

func newMessageQueue(store simcontract.ComponentStore, routes *routeNetwork) *messageQueue {
	return &messageQueue{byID: make(map[string]*inTransitMessage), store: store, routes: routes}
}

// send computes the expected arrival per spec.md §4.5's travel model and
// enqueues the message, returning its handle.
func (q *messageQueue) send(id, from, to string, payload any, class simcontract.TickClass, urgent bool, sendDate GameDate) simcontract.EntityHandle {
	baseSpeed := routineSpeedKmh
	if urgent {
		baseSpeed = urgentSpeedKmh
	}

	distance := q.routes.distance(from, to)
	var arrival GameDate
	var speed float64

	if math.IsInf(distance, 1) {
		delay := fallbackRoutineDelayHours
		if urgent {
			delay = fallbackUrgentDelayHours
		}
		arrival = sendDate.AddHours(delay)
		speed = 0
	} else {
		quality, _ := q.routes.quality(from, to)
		speed = baseSpeed * quality * q.routes.seasonalModifier()
		hours := int(math.Ceil(distance / speed))
		arrival = sendDate.AddHours(hours)
	}

	var handle simcontract.EntityHandle
	if q.store != nil {
		handle = q.store.CreateEntity()
	}

	msg := &inTransitMessage{
		id: id, from: from, to: to, payload: payload, class: class, urgent: urgent,
		sendDate: sendDate, arrivalDate: arrival, distanceKm: distance, speedKmh: speed,
		entityHandle: handle,
	}

	q.mu.Lock()
	q.byID[id] = msg
	q.ordered = append(q.ordered, id)
	q.mu.Unlock()

	return handle
}

// drainReady returns, in FIFO order, every message whose arrival date
// has been reached, removing it from the queue.
func (q *messageQueue) drainReady(current GameDate) []*inTransitMessage {
	q.mu.Lock()
	defer q.mu.Unlock()

	var delivered []*inTransitMessage
	var remaining []string
	for _, id := range q.ordered {
		m := q.byID[id]
		if m.ready(current) {
			delivered = append(delivered, m)
			delete(q.byID, id)
			if q.store != nil {
				q.store.DestroyEntity(m.entityHandle)
			}
			continue
		}
		remaining = append(remaining, id)
	}
	q.ordered = remaining
	return delivered
}

func (q *messageQueue) pending(id string) (*inTransitMessage, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	m, ok := q.byID[id]
	return m, ok
}
