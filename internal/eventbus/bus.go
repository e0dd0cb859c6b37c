// Package eventbus implements the single ordered outbound channel per
// session described in spec.md §4.14 and §9: a buffered channel fed by
// a serializer goroutine, delivered at-least-once to a single live
// subscriber. Disconnects do not buffer for reconnection.
package eventbus

import (
	"sync"
	"time"

	"github.com/elisa-build/elisa/internal/events"
)

// inboxCapacity bounds how many events may be queued before Publish
// blocks the calling phase. Generous enough that a momentarily slow
// subscriber never stalls task execution.
const inboxCapacity = 1024

// Bus is the per-session event pipe. Publishers call Publish (from any
// goroutine); a single internal serializer goroutine drains the inbox
// in FIFO order and fans it out to the current subscriber, if any.
type Bus struct {
	sessionID string
	inbox     chan events.Event

	mu         sync.RWMutex
	subscriber chan events.Event
	closed     bool
}

// New creates a Bus for one session and starts its serializer goroutine.
func New(sessionID string) *Bus {
	b := &Bus{
		sessionID: sessionID,
		inbox:     make(chan events.Event, inboxCapacity),
	}
	go b.serialize()
	return b
}

func (b *Bus) serialize() {
	for evt := range b.inbox {
		b.mu.RLock()
		sub := b.subscriber
		closed := b.closed
		b.mu.RUnlock()
		if closed {
			continue
		}
		if sub != nil {
			select {
			case sub <- evt:
			default:
				// Subscriber channel full (extremely slow consumer) — drop
				// rather than deadlock the serializer. At-least-once within
				// a live connection is the documented guarantee, not
				// unconditional delivery under backpressure.
			}
		}
	}
}

// Publish enqueues an event, stamping Timestamp and SessionID. Safe to
// call concurrently from multiple goroutines (one per in-flight task).
func (b *Bus) Publish(evt events.Event) {
	evt.SessionID = b.sessionID
	if evt.Timestamp == "" {
		evt.Timestamp = time.Now().Format(time.RFC3339Nano)
	}
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return
	}
	b.inbox <- evt
}

// Subscribe registers the single live subscriber channel, replacing any
// previous one (only one connection per session per spec.md §6). The
// returned channel is closed when Close is called.
func (b *Bus) Subscribe(buffer int) <-chan events.Event {
	if buffer <= 0 {
		buffer = 256
	}
	ch := make(chan events.Event, buffer)
	b.mu.Lock()
	b.subscriber = ch
	b.mu.Unlock()
	return ch
}

// Unsubscribe detaches the current subscriber without closing the bus —
// used on client disconnect; per spec.md, events published while no one
// is subscribed are simply dropped (no buffering for reconnection).
func (b *Bus) Unsubscribe() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subscriber != nil {
		close(b.subscriber)
		b.subscriber = nil
	}
}

// Close shuts the bus down permanently. Idempotent.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	sub := b.subscriber
	b.subscriber = nil
	b.mu.Unlock()
	close(b.inbox)
	if sub != nil {
		close(sub)
	}
}
