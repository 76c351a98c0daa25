package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBus_PublishReachesAllSubscribers(t *testing.T) {
	bus := NewBus()

	var order []string
	bus.Subscribe(AuthChanged, func() { order = append(order, "nav") })
	bus.Subscribe(AuthChanged, func() { order = append(order, "guard") })
	bus.Subscribe(CaretUpdated, func() { order = append(order, "badge") })

	bus.Publish(AuthChanged)

	assert.Equal(t, []string{"nav", "guard"}, order)
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus()

	calls := 0
	unsubscribe := bus.Subscribe(CaretUpdated, func() { calls++ })
	bus.Publish(CaretUpdated)

	unsubscribe()
	unsubscribe()
	bus.Publish(CaretUpdated)

	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, bus.Count(CaretUpdated))
}

func TestBus_ListenerMayUnsubscribeDuringPublish(t *testing.T) {
	bus := NewBus()

	var first, second int
	var unsubscribe func()
	unsubscribe = bus.Subscribe(AuthChanged, func() {
		first++
		unsubscribe()
	})
	bus.Subscribe(AuthChanged, func() { second++ })

	bus.Publish(AuthChanged)
	bus.Publish(AuthChanged)

	assert.Equal(t, 1, first)
	assert.Equal(t, 2, second)
}

func TestBus_NestedPublish(t *testing.T) {
	bus := NewBus()

	carets := 0
	bus.Subscribe(AuthChanged, func() { bus.Publish(CaretUpdated) })
	bus.Subscribe(CaretUpdated, func() { carets++ })

	bus.Publish(AuthChanged)

	assert.Equal(t, 1, carets)
}
