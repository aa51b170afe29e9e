package events

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	bus := NewBus()

	ch, unsub := bus.Subscribe(EventPriceTick, 10)
	defer unsub()

	bus.Publish(EventPriceTick, PriceTick{Symbol: "AAPL", Price: 101.5})

	select {
	case msg := <-ch:
		tick, ok := msg.(PriceTick)
		if !ok {
			t.Fatalf("payload type %T, want PriceTick", msg)
		}
		if tick.Symbol != "AAPL" || tick.Price != 101.5 {
			t.Errorf("tick = %+v", tick)
		}
	case <-time.After(time.Second):
		t.Fatal("no message delivered")
	}
}

func TestPublishWithoutSubscribers(t *testing.T) {
	bus := NewBus()
	// Must not block or panic.
	bus.Publish(EventTradeExecuted, "ignored")
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus()

	ch, unsub := bus.Subscribe(EventStatusUpdate, 1)
	unsub()

	bus.Publish(EventStatusUpdate, StatusUpdate{Running: true})

	// The channel closes on unsubscribe; a zero receive means no delivery.
	select {
	case _, ok := <-ch:
		if ok {
			t.Error("message delivered after unsubscribe")
		}
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	bus := NewBus()

	_, unsub := bus.Subscribe(EventPriceTick, 1)
	defer unsub()

	done := make(chan struct{})
	go func() {
		// Overfill the buffer; Publish drops rather than blocks.
		for i := 0; i < 100; i++ {
			bus.Publish(EventPriceTick, PriceTick{Symbol: "AAPL", Price: float64(i)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
}

func TestSubscriberCount(t *testing.T) {
	bus := NewBus()
	if got := bus.SubscriberCount(EventPriceTick); got != 0 {
		t.Errorf("count = %d, want 0", got)
	}

	_, u1 := bus.Subscribe(EventPriceTick, 1)
	_, u2 := bus.Subscribe(EventPriceTick, 1)
	if got := bus.SubscriberCount(EventPriceTick); got != 2 {
		t.Errorf("count = %d, want 2", got)
	}

	u1()
	u2()
	if got := bus.SubscriberCount(EventPriceTick); got != 0 {
		t.Errorf("count after unsubscribe = %d, want 0", got)
	}
}
