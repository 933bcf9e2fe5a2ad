package transfer

import (
	"sync"
	"time"
)

// EventType discriminates transfer lifecycle events.
type EventType string

const (
	// EventTransferCreated fires when a transfer item is registered.
	EventTransferCreated EventType = "transfer_created"

	// EventFileAdded fires when a folder transfer gains a child file.
	EventFileAdded EventType = "file_added"

	// EventStatusChanged fires whenever an item's aggregate status
	// changes.
	EventStatusChanged EventType = "status_changed"

	// EventProgress fires on byte-count updates.
	EventProgress EventType = "progress"

	// EventTransferTerminal fires once when a transfer reaches a final
	// state (completed, completed-with-errors, error, cancelled).
	EventTransferTerminal EventType = "transfer_terminal"
)

// Event is the payload delivered to presentation-layer subscribers.
type Event struct {
	Type        EventType
	TransferID  string
	FileID      string
	Status      Status
	Progress    float64
	BytesPerSec float64
	Timestamp   time.Time
}

// Broadcaster fans transfer events out to subscribers.
//
// Publishing never blocks: each subscriber gets a buffered channel and
// events are dropped for consumers that fall behind. UI layers poll the
// manager for authoritative state, so a dropped progress event only
// delays a repaint.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[chan Event]struct{}),
	}
}

// Subscribe registers a new subscriber. The caller must Unsubscribe when
// done.
func (b *Broadcaster) Subscribe() chan Event {
	ch := make(chan Event, 64)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broadcaster) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	delete(b.subscribers, ch)
	close(ch)
	b.mu.Unlock()
}

// Publish delivers an event to all subscribers, dropping it for any whose
// buffer is full.
func (b *Broadcaster) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			// Slow consumer, drop.
		}
	}
}

// Count returns the number of active subscribers.
func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
