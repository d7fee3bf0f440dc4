package events

import (
	"sync"
	"testing"
	"time"
)

func TestBusPublishSubscribe(t *testing.T) {
	bus := NewBus(64)
	defer bus.Close()

	var mu sync.Mutex
	var received []Event

	bus.Subscribe(func(e Event) {
		mu.Lock()
		received = append(received, e)
		mu.Unlock()
	}, EventTaskCreated)

	bus.Publish(NewTypedEvent("test", TaskCreatedPayload{TaskID: "s1", ChatID: "c1"}))
	bus.Publish(NewTypedEvent("test", ChatReplyPayload{ChatID: "c1", Content: "hi"}))

	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	if len(received) != 1 {
		t.Fatalf("expected 1 event, got %d", len(received))
	}
	if received[0].Type != EventTaskCreated {
		t.Errorf("expected task.created, got %s", received[0].Type)
	}
}

func TestBusSubscribeAll(t *testing.T) {
	bus := NewBus(64)
	defer bus.Close()

	var mu sync.Mutex
	count := 0

	bus.Subscribe(func(e Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	bus.Publish(NewTypedEvent("test", TaskCreatedPayload{TaskID: "s1"}))
	bus.Publish(NewTypedEvent("test", TaskCompletedPayload{TaskID: "s1"}))

	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	if count != 2 {
		t.Errorf("expected 2 events, got %d", count)
	}
}

func TestRingBuffer(t *testing.T) {
	rb := NewRingBuffer(3)

	for i := 0; i < 5; i++ {
		rb.Add(NewTypedEvent("test", TaskProgressPayload{TaskID: "s1"}))
	}

	events := rb.Get(10)
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
}

func TestSubscribeChan(t *testing.T) {
	bus := NewBus(64)
	defer bus.Close()

	ch, unsub := bus.SubscribeChan(8, EventPermissionRequested)
	defer unsub()

	bus.Publish(NewTypedEvent("test", PermissionRequestedPayload{RequestID: "r1", ToolName: "Bash"}))

	select {
	case e := <-ch:
		if e.Type != EventPermissionRequested {
			t.Errorf("expected permission.requested, got %s", e.Type)
		}
		p, ok := ExtractPayload[PermissionRequestedPayload](e)
		if !ok || p.RequestID != "r1" {
			t.Errorf("payload round trip failed: %+v", p)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBusPublishAfterClose(t *testing.T) {
	bus := NewBus(8)
	bus.Close()

	// Must not panic.
	bus.Publish(NewTypedEvent("test", TaskCreatedPayload{TaskID: "s1"}))
}
