package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mechanica-imperii/simcore/simcontract"
)

func TestPublishDeliversToSubscriber(t *testing.T) {
	b := New(nil)
	var got simcontract.TickOccurred
	b.Subscribe(simcontract.TickOccurred{}, func(msg any) {
		got = msg.(simcontract.TickOccurred)
	})

	b.Publish(simcontract.TickOccurred{Class: simcontract.TickDaily, ProcessingMs: 1.5})

	assert.Equal(t, simcontract.TickDaily, got.Class)
	assert.Equal(t, 1.5, got.ProcessingMs)
}

func TestPublishIgnoresUnsubscribedType(t *testing.T) {
	b := New(nil)
	called := false
	b.Subscribe(simcontract.DateChanged{}, func(msg any) { called = true })

	b.Publish(simcontract.TickOccurred{})

	assert.False(t, called)
}

func TestHandlerPanicDoesNotPropagate(t *testing.T) {
	b := New(nil)
	b.Subscribe(simcontract.TickOccurred{}, func(msg any) {
		panic("boom")
	})

	assert.NotPanics(t, func() {
		b.Publish(simcontract.TickOccurred{})
	})
}
