package events_test

import (
	"testing"

	"github.com/nstogner/investigator/pkg/events"
)

func TestEmitDeliversInRegistrationOrder(t *testing.T) {
	bus := events.New()
	var order []int

	bus.Subscribe(func(ev events.Event) { order = append(order, 1) })
	bus.Subscribe(func(ev events.Event) { order = append(order, 2) })
	bus.Subscribe(func(ev events.Event) { order = append(order, 3) })

	bus.Emit(events.Event{Type: events.TypeDone})

	want := []int{1, 2, 3}
	if len(order) != len(want) {
		t.Fatalf("got %v want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("got %v want %v", order, want)
		}
	}
}

func TestPanickingObserverDoesNotBreakBus(t *testing.T) {
	bus := events.New()
	called := false

	bus.Subscribe(func(ev events.Event) { panic("boom") })
	bus.Subscribe(func(ev events.Event) { called = true })

	bus.Emit(events.Event{Type: events.TypeError})

	if !called {
		t.Fatal("second observer should still run after first panics")
	}
}

func TestBufferingCapturesAndDrains(t *testing.T) {
	bus := events.New()
	bus.SetBuffering(true)

	bus.Emit(events.Event{Type: events.TypeSessionStart})
	bus.Emit(events.Event{Type: events.TypeDone})

	drained := bus.Drain()
	if len(drained) != 2 {
		t.Fatalf("got %d events, want 2", len(drained))
	}

	// Drain clears the buffer.
	if len(bus.Drain()) != 0 {
		t.Fatal("expected empty buffer after drain")
	}
}

func TestBufferingDoesNotSuppressLiveDelivery(t *testing.T) {
	bus := events.New()
	bus.SetBuffering(true)
	received := 0
	bus.Subscribe(func(ev events.Event) { received++ })

	bus.Emit(events.Event{Type: events.TypeDone})

	if received != 1 {
		t.Fatalf("got %d live deliveries, want 1", received)
	}
}
