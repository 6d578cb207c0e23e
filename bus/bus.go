// Package bus provides one concrete, thread-safe, in-process
// implementation of simcontract.MessageBus. It is grounded in the
// teacher's kernel/threads/supervisor/channels.go ChannelSet pattern
// (one buffered channel per concern, closed together on Shutdown) but
// generalized from the teacher's fixed Jobs/Results/Control/Metrics set
// into a type-keyed subscriber registry, since spec.md §6 requires
// publishing several distinct message types (TickOccurred, DateChanged,
// EventScheduled, ...) rather than one job/result pair.
package bus

import (
	"reflect"
	"sync"

	"github.com/mechanica-imperii/simcore/telemetry"
)

// Bus is an in-process publish/subscribe message bus. Handlers registered
// for a message's concrete type are invoked synchronously from Publish on
// the caller's goroutine, matching spec.md §6's "handlers may be invoked
// on any thread" contract: callers that need async delivery should
// dispatch their own handler onto a goroutine or channel.
type Bus struct {
	mu       sync.RWMutex
	handlers map[reflect.Type][]func(any)
	logger   *telemetry.Logger
}

// New creates an empty Bus.
func New(logger *telemetry.Logger) *Bus {
	if logger == nil {
		logger = telemetry.Default("bus")
	}
	return &Bus{
		handlers: make(map[reflect.Type][]func(any)),
		logger:   logger,
	}
}

// Subscribe registers handler to run whenever a message of msgType's
// concrete type is published. msgType is a zero-value sample of the
// message type (e.g. simcontract.TickOccurred{}), mirroring the style of
// the teacher's generic Subscribe<T> (Go lacks method type parameters on
// a non-generic interface value, so a sample plays the same role).
func (b *Bus) Subscribe(msgType any, handler func(any)) {
	t := reflect.TypeOf(msgType)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[t] = append(b.handlers[t], handler)
}

// Publish delivers msg to every handler subscribed to its concrete type.
// A handler that panics is recovered and logged so one bad subscriber
// cannot take down the publisher (mirroring the Scheduler's own driver
// boundary which never lets a System's panic escape — spec.md §7).
func (b *Bus) Publish(msg any) {
	t := reflect.TypeOf(msg)
	b.mu.RLock()
	hs := append([]func(any){}, b.handlers[t]...)
	b.mu.RUnlock()

	for _, h := range hs {
		b.invoke(h, msg)
	}
}

func (b *Bus) invoke(h func(any), msg any) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("message handler panicked",
				telemetry.Any("message_type", reflect.TypeOf(msg)),
				telemetry.Any("recover", r),
			)
		}
	}()
	h(msg)
}
