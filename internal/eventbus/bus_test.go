package eventbus

import (
	"sync"
	"testing"
	"time"
)

func TestBusSubscribeAndPublish(t *testing.T) {
	bus := New()
	defer bus.Close()

	received := make(chan Event, 10)
	bus.Subscribe("batch_committed", received)

	bus.Publish(Event{
		Type:      "batch_committed",
		Slot:      100,
		Timestamp: time.Now(),
		Data:      map[string]int{"events": 3},
	})

	select {
	case evt := <-received:
		if evt.Type != "batch_committed" {
			t.Errorf("expected batch_committed, got %s", evt.Type)
		}
		if evt.Slot != 100 {
			t.Errorf("expected slot 100, got %d", evt.Slot)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBusMultipleSubscribers(t *testing.T) {
	bus := New()
	defer bus.Close()

	ch1 := make(chan Event, 10)
	ch2 := make(chan Event, 10)
	bus.Subscribe("batch_committed", ch1)
	bus.Subscribe("batch_committed", ch2)

	bus.Publish(Event{Type: "batch_committed", Slot: 1})

	for _, ch := range []chan Event{ch1, ch2} {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
}

func TestBusTypeFiltering(t *testing.T) {
	bus := New()
	defer bus.Close()

	committedCh := make(chan Event, 10)
	deadLetterCh := make(chan Event, 10)
	bus.Subscribe("batch_committed", committedCh)
	bus.Subscribe("batch_dead_lettered", deadLetterCh)

	bus.Publish(Event{Type: "batch_committed", Slot: 1})

	select {
	case <-committedCh:
	case <-time.After(time.Second):
		t.Fatal("committed subscriber did not receive event")
	}

	select {
	case <-deadLetterCh:
		t.Fatal("dead-letter subscriber should NOT receive a batch_committed event")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBusPublishAfterCloseIsNoop(t *testing.T) {
	bus := New()
	received := make(chan Event, 1)
	bus.Subscribe("batch_committed", received)
	bus.Close()

	bus.Publish(Event{Type: "batch_committed", Slot: 1})

	select {
	case <-received:
		t.Fatal("expected no event after Close")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBusPublishConcurrent(t *testing.T) {
	bus := New()
	defer bus.Close()

	received := make(chan Event, 100)
	bus.Subscribe("batch_committed", received)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(slot uint64) {
			defer wg.Done()
			bus.Publish(Event{Type: "batch_committed", Slot: slot})
		}(uint64(i))
	}
	wg.Wait()

	time.Sleep(100 * time.Millisecond)
	if len(received) != 50 {
		t.Errorf("expected 50 events, got %d", len(received))
	}
}
