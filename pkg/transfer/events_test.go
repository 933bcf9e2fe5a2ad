package transfer

import (
	"testing"
	"time"
)

func drain(ch chan Event) []Event {
	var out []Event
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestBroadcaster_DeliversToAllSubscribers(t *testing.T) {
	b := NewBroadcaster()
	first := b.Subscribe()
	second := b.Subscribe()

	b.Publish(Event{Type: EventTransferCreated, TransferID: "transfer-1"})

	for i, ch := range []chan Event{first, second} {
		select {
		case ev := <-ch:
			if ev.TransferID != "transfer-1" {
				t.Errorf("subscriber %d got %+v", i, ev)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d received nothing", i)
		}
	}
}

func TestBroadcaster_Unsubscribe(t *testing.T) {
	b := NewBroadcaster()
	ch := b.Subscribe()
	b.Unsubscribe(ch)

	if b.Count() != 0 {
		t.Errorf("Count() = %d after unsubscribe, want 0", b.Count())
	}

	// Publishing after unsubscribe must not panic or block
	b.Publish(Event{Type: EventProgress, TransferID: "transfer-1"})
}

func TestBroadcaster_SlowConsumerDoesNotBlock(t *testing.T) {
	b := NewBroadcaster()
	ch := b.Subscribe()

	// Overflow the subscriber buffer; Publish must stay non-blocking
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			b.Publish(Event{Type: EventProgress, TransferID: "transfer-1"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow consumer")
	}

	if got := len(drain(ch)); got == 0 {
		t.Error("expected at least some delivered events")
	}
}

func TestManagerPublishesLifecycleEvents(t *testing.T) {
	b := NewBroadcaster()
	m := NewManager(b)
	ch := b.Subscribe()

	item := m.CreateTransfer(KindFolder, DirectionUpload, "/src", "root", "src", 0)
	_ = m.AddFile(item.ID, FileDescriptor{ID: "f1", Name: "f1", DestID: "root", Size: 10})
	_ = m.UpdateFileStatus(item.ID, "f1", StatusCompleted, 10, "")
	_ = m.FinishEnumeration(item.ID)

	var types []EventType
	for _, ev := range drain(ch) {
		types = append(types, ev.Type)
	}

	want := map[EventType]bool{
		EventTransferCreated:  false,
		EventFileAdded:        false,
		EventProgress:         false,
		EventStatusChanged:    false,
		EventTransferTerminal: false,
	}
	for _, ty := range types {
		want[ty] = true
	}
	for ty, seen := range want {
		if !seen {
			t.Errorf("missing %s event (got %v)", ty, types)
		}
	}
}
