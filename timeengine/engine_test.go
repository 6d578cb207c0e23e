package timeengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mechanica-imperii/simcore/simcontract"
)

type recordingBus struct {
	published []any
}

func (b *recordingBus) Publish(msg any) { b.published = append(b.published, msg) }
func (b *recordingBus) Subscribe(msgType any, handler func(any)) {}

func newTestEngine(start GameDate) (*Engine, *recordingBus) {
	b := &recordingBus{}
	eng := New(Config{Start: start, Bus: b})
	return eng, b
}

func TestTickFanOutOrdering(t *testing.T) {
	eng, _ := newTestEngine(GameDate{Year: 1066, Month: 12, Day: 31, Hour: 23})

	var order []string
	record := func(name string) TickCallback {
		return func(date GameDate, class TickClass) {
			order = append(order, class.String())
		}
	}
	eng.OnTick(TickHourly, "hourly", record("hourly"))
	eng.OnTick(TickDaily, "daily", record("daily"))
	eng.OnTick(TickMonthly, "monthly", record("monthly"))
	eng.OnTick(TickYearly, "yearly", record("yearly"))

	require.NoError(t, eng.Update(3600)) // one simulated hour at normal scale

	require.Equal(t, []string{"HOURLY", "DAILY", "MONTHLY", "YEARLY"}, order)
	got := eng.CurrentDate()
	assert.Equal(t, GameDate{Year: 1067, Month: 1, Day: 1, Hour: 0}, got)
}

func TestScheduledEventFiresWhenDue(t *testing.T) {
	eng, bus := newTestEngine(GameDate{Year: 2000, Month: 1, Day: 1, Hour: 0})
	eng.ScheduleEvent("harvest", GameDate{Year: 2000, Month: 1, Day: 1, Hour: 1}, TickHourly, "payload", 0)

	require.NoError(t, eng.Update(3600))

	found := false
	for _, msg := range bus.published {
		if exec, ok := msg.(simcontract.EventExecuted); ok && exec.EventID == "harvest" {
			found = true
		}
	}
	assert.True(t, found, "expected EventExecuted for harvest")
}

func TestRepeatingEventRearms(t *testing.T) {
	eng, _ := newTestEngine(GameDate{Year: 2000, Month: 1, Day: 1, Hour: 0})
	eng.ScheduleEvent("patrol", GameDate{Year: 2000, Month: 1, Day: 1, Hour: 1}, TickHourly, nil, 1)

	for i := 0; i < 3; i++ {
		require.NoError(t, eng.Update(3600))
	}

	_, stillPending := eng.events.byID["patrol"]
	assert.True(t, stillPending, "repeating event should still be armed after firing")
}

func TestMessageDeliveryTiming(t *testing.T) {
	eng, bus := newTestEngine(GameDate{Year: 2000, Month: 1, Day: 1, Hour: 0})
	eng.AddRoute("London", "York", 300, 1.0)
	eng.SetSeasonalModifier(1.0)

	eng.SendMessage("msg1", "London", "York", "hi", TickHourly, false)

	for i := 0; i < 149; i++ {
		require.NoError(t, eng.Update(3600))
	}
	for _, msg := range bus.published {
		if d, ok := msg.(simcontract.MessageDelivered); ok {
			t.Fatalf("message delivered too early: %+v", d)
		}
	}

	require.NoError(t, eng.Update(3600)) // hour 150
	delivered := false
	for _, msg := range bus.published {
		if d, ok := msg.(simcontract.MessageDelivered); ok && d.MessageID == "msg1" {
			delivered = true
		}
	}
	assert.True(t, delivered, "expected message delivered by hour 150")
}

func TestDistanceInfiniteWithoutRoute(t *testing.T) {
	eng, _ := newTestEngine(GameDate{})
	d := eng.Distance("Nowhere", "Elsewhere")
	assert.True(t, d > 1e300, "missing route should report an effectively infinite distance")
}

func TestSaveLoadRoundTrip(t *testing.T) {
	eng, _ := newTestEngine(GameDate{Year: 1450, Month: 3, Day: 12, Hour: 7})
	eng.SetScale(ScaleFast)
	eng.Pause()

	blob1 := eng.Save()

	eng2, _ := newTestEngine(GameDate{})
	require.NoError(t, eng2.Load(blob1))
	blob2 := eng2.Save()

	assert.Equal(t, blob1, blob2)
	assert.Equal(t, eng.CurrentDate(), eng2.CurrentDate())
}
