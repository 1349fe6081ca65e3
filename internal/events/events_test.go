package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPublishDeliversToSubscribersInOrder(t *testing.T) {
	bus := NewBus()

	var got []string
	bus.Subscribe(MessageSent{}.Name(), func(e Event) {
		got = append(got, "first:"+e.(MessageSent).MessageID)
	})
	bus.Subscribe(MessageSent{}.Name(), func(e Event) {
		got = append(got, "second:"+e.(MessageSent).MessageID)
	})

	bus.Publish(MessageSent{MessageID: "m1", At: time.Now()})

	require.Equal(t, []string{"first:m1", "second:m1"}, got)
}

func TestPublishIgnoresUnrelatedEvents(t *testing.T) {
	bus := NewBus()

	var calls int
	bus.Subscribe(UserConnected{}.Name(), func(Event) { calls++ })

	bus.Publish(UserDisconnected{UserID: "alice"})
	require.Zero(t, calls)

	bus.Publish(UserConnected{UserID: "alice"})
	require.Equal(t, 1, calls)
}

func TestPanickingHandlerDoesNotStopDelivery(t *testing.T) {
	bus := NewBus()

	var delivered bool
	bus.Subscribe(MessageRecalled{}.Name(), func(Event) { panic("boom") })
	bus.Subscribe(MessageRecalled{}.Name(), func(Event) { delivered = true })

	require.NotPanics(t, func() {
		bus.Publish(MessageRecalled{MessageID: "m1"})
	})
	require.True(t, delivered)
}

func TestPublishWithoutSubscribersIsNoop(t *testing.T) {
	bus := NewBus()
	require.NotPanics(t, func() {
		bus.Publish(UserConnected{UserID: "alice"})
	})
}
