package timeengine

import (
	"time"

	"github.com/mechanica-imperii/simcore/simcontract"
	"github.com/mechanica-imperii/simcore/telemetry"
)

// Engine is the Simulated Time Engine, spec.md §4.5. It implements
// simcontract.System so the Scheduler drives it like any other
// MainThread system; callers register it with
// simcontract.PlacementMainThread explicitly (spec.md: "it is a
// MainThread system").
type Engine struct {
	clock     *logicalClock
	events    *eventQueue
	messages  *messageQueue
	routes    *routeNetwork
	callbacks *callbackRegistry

	bus    simcontract.MessageBus
	store  simcontract.ComponentStore
	logger *telemetry.Logger

	errorCounts map[string]int
}

// Config configures a new Engine.
type Config struct {
	Start  GameDate
	Bus    simcontract.MessageBus
	Store  simcontract.ComponentStore
	Logger *telemetry.Logger
}

func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.Default("timeengine")
	}
	routes := newRouteNetwork()
	return &Engine{
		clock:       newLogicalClock(cfg.Start),
		events:      newEventQueue(cfg.Store),
		messages:    newMessageQueue(cfg.Store, routes),
		routes:      routes,
		callbacks:   newCallbackRegistry(),
		bus:         cfg.Bus,
		store:       cfg.Store,
		logger:      logger,
		errorCounts: make(map[string]int),
	}
}

// Name implements simcontract.System.
func (e *Engine) Name() string { return "TimeEngine" }

// Initialize implements simcontract.System.
func (e *Engine) Initialize() error { return nil }

// Shutdown implements simcontract.System.
func (e *Engine) Shutdown() error { return nil }

// PreferredPlacement implements simcontract.System.
func (e *Engine) PreferredPlacement() simcontract.Placement {
	return simcontract.PlacementMainThread
}

// Pause / Resume / SetScale implement spec.md §4.5's scale contract.
func (e *Engine) Pause()  { e.clock.pause() }
func (e *Engine) Resume() { e.clock.resume() }

func (e *Engine) SetScale(s TimeScale) {
	previous := e.clock.setScale(s)
	if previous != s && e.bus != nil {
		e.bus.Publish(simcontract.TimeScaleChanged{Previous: previous, Current: s})
	}
}

// CurrentDate returns the engine's current GameDate snapshot.
func (e *Engine) CurrentDate() GameDate { return e.clock.currentDate() }

// ScheduleEvent arms a scheduled event, spec.md §4.5's schedule_event.
func (e *Engine) ScheduleEvent(id string, when GameDate, class TickClass, payload any, repeatHours int) simcontract.EntityHandle {
	handle := e.events.schedule(id, when, class, payload, repeatHours)
	if e.bus != nil {
		e.bus.Publish(simcontract.EventScheduled{EventID: id, When: when, Class: class})
	}
	return handle
}

// CancelEvent implements spec.md §4.5's cancel_event.
func (e *Engine) CancelEvent(id string) { e.events.cancel(id) }

// SendMessage implements spec.md §4.5's send_message.
func (e *Engine) SendMessage(id, from, to string, payload any, class TickClass, urgent bool) simcontract.EntityHandle {
	return e.messages.send(id, from, to, payload, class, urgent, e.clock.currentDate())
}

// AddRoute / RemoveRoute / Distance implement spec.md §4.5's route
// network operations.
func (e *Engine) AddRoute(from, to string, km, quality float64) {
	e.routes.addRoute(from, to, km, quality)
}
func (e *Engine) RemoveRoute(from, to string)    { e.routes.removeRoute(from, to) }
func (e *Engine) Distance(from, to string) float64 { return e.routes.distance(from, to) }
func (e *Engine) SetSeasonalModifier(m float64)  { e.routes.setSeasonalModifier(m) }

// OnTick / OffTick implement spec.md §4.5's callback registration.
func (e *Engine) OnTick(class TickClass, name string, cb TickCallback) { e.callbacks.on(class, name, cb) }
func (e *Engine) OffTick(class TickClass, name string)                 { e.callbacks.off(class, name) }

var tickOrder = []TickClass{TickHourly, TickDaily, TickMonthly, TickYearly}

// Update implements simcontract.System and runs spec.md §4.5's tick
// fan-out algorithm for one frame.
func (e *Engine) Update(deltaSeconds float64) error {
	hours, from, current := e.clock.advance(deltaSeconds)
	if hours == 0 {
		return nil
	}

	fired := e.classesFor(from, current)
	for _, class := range fired {
		start := time.Now()
		e.fanOutClass(class, current)
		e.publishTick(class, current, time.Since(start))
	}

	if from != current && e.bus != nil {
		e.bus.Publish(simcontract.DateChanged{Previous: from, Current: current})
	}
	return nil
}

// classesFor returns, in HOURLY→DAILY→MONTHLY→YEARLY order, which
// boundaries were crossed moving from "from" to "current". HOURLY
// always fires when any hour elapsed; DAILY/MONTHLY/YEARLY fire only if
// their field actually changed, preserving spec.md §8 property 5 ("if
// DAILY fired, HOURLY also fired in the same frame and ran first").
func (e *Engine) classesFor(from, current GameDate) []TickClass {
	classes := []TickClass{TickHourly}
	if current.Day != from.Day || current.Month != from.Month || current.Year != from.Year {
		classes = append(classes, TickDaily)
	}
	if current.Month != from.Month || current.Year != from.Year {
		classes = append(classes, TickMonthly)
	}
	if current.Year != from.Year {
		classes = append(classes, TickYearly)
	}
	return classes
}

func (e *Engine) fanOutClass(class TickClass, current GameDate) {
	for _, ev := range e.events.drainReady(current, class) {
		if e.bus != nil {
			e.bus.Publish(simcontract.EventExecuted{EventID: ev.id, At: current})
			if ev.repeatHours > 0 {
				e.bus.Publish(simcontract.EventScheduled{EventID: ev.id, When: ev.when, Class: ev.class})
			}
		}
	}

	for _, msg := range e.messages.drainReady(current) {
		if e.bus != nil {
			e.bus.Publish(simcontract.MessageDelivered{MessageID: msg.id, From: msg.from, To: msg.to, At: current})
		}
	}

	for _, failure := range e.callbacks.invokeAll(class, current) {
		e.errorCounts[failure.name]++
		e.logger.Error("tick callback failed",
			telemetry.String("callback", failure.name),
			telemetry.String("class", class.String()),
			telemetry.Err(failure.err),
		)
	}
}

func (e *Engine) publishTick(class TickClass, date GameDate, elapsed time.Duration) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(simcontract.TickOccurred{
		Class:        class,
		Date:         date,
		ProcessingMs: float64(elapsed) / float64(time.Millisecond),
	})
}

// CallbackErrorCount returns how many times the named callback has
// panicked since the engine started, for diagnostics.
func (e *Engine) CallbackErrorCount(name string) int { return e.errorCounts[name] }
