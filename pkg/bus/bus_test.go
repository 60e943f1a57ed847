package bus_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lorekeep/lorekeep-go/pkg/bus"
)

func TestPublishDispatchesInRegistrationOrder(t *testing.T) {
	b := bus.New(nil)

	var order []int
	b.Subscribe(bus.SignalQuestCompleted, func(bus.Event) { order = append(order, 1) })
	b.Subscribe(bus.SignalQuestCompleted, func(bus.Event) { order = append(order, 2) })
	b.Subscribe(bus.SignalQuestCompleted, func(bus.Event) { order = append(order, 3) })

	b.Publish(bus.Event{Signal: bus.SignalQuestCompleted})
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestPublishIsSynchronous(t *testing.T) {
	b := bus.New(nil)

	handled := false
	b.Subscribe(bus.SignalMemoryStored, func(ev bus.Event) {
		handled = true
		assert.Equal(t, "mara", ev.AgentID)
		assert.Equal(t, int64(42), ev.Fields["memory_id"])
	})

	b.Publish(bus.Event{
		Signal:  bus.SignalMemoryStored,
		AgentID: "mara",
		Fields:  map[string]interface{}{"memory_id": int64(42)},
	})
	assert.True(t, handled, "handler must run before Publish returns")
}

func TestPublishOnlyMatchingSignal(t *testing.T) {
	b := bus.New(nil)

	calls := 0
	b.Subscribe(bus.SignalQuestFailed, func(bus.Event) { calls++ })

	b.Publish(bus.Event{Signal: bus.SignalQuestCompleted})
	assert.Zero(t, calls)

	b.Publish(bus.Event{Signal: bus.SignalQuestFailed})
	assert.Equal(t, 1, calls)
}
