// Package daemon runs the VOS background service: a worker pool that
// drains the review job queue and an HTTP API the CLI talks to.
package daemon

import (
	"sync"
	"time"
)

// Event is a review lifecycle notification pushed to stream
// subscribers.
type Event struct {
	Type          string    `json:"type"`
	TS            time.Time `json:"ts"`
	JobID         string    `json:"job_id"`
	DocumentID    string    `json:"document_id"`
	DocumentTitle string    `json:"document_title,omitempty"`
	ReviewID      string    `json:"review_id,omitempty"`
	Verdict       string    `json:"verdict,omitempty"`
	Error         string    `json:"error,omitempty"`
}

// Event types.
const (
	EventReviewStarted   = "review.started"
	EventReviewCompleted = "review.completed"
	EventReviewFailed    = "review.failed"
	EventReviewCanceled  = "review.canceled"
)

// Subscriber is one client listening on the event stream.
type Subscriber struct {
	ID         int
	DocumentID string // Filter: only events for this document (empty = all)
	Ch         chan Event
}

// Broadcaster manages event subscriptions and fan-out.
type Broadcaster interface {
	Subscribe(documentID string) (int, <-chan Event)
	Unsubscribe(id int)
	Broadcast(event Event)
	SubscriberCount() int
}

// EventBroadcaster implements Broadcaster with a buffered channel per
// subscriber.
type EventBroadcaster struct {
	mu          sync.RWMutex
	subscribers map[int]*Subscriber
	nextID      int
}

// NewBroadcaster creates an empty event broadcaster.
func NewBroadcaster() Broadcaster {
	return &EventBroadcaster{
		subscribers: make(map[int]*Subscriber),
		nextID:      1,
	}
}

// Subscribe adds a subscriber with an optional document filter.
func (b *EventBroadcaster) Subscribe(documentID string) (int, <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++

	ch := make(chan Event, 10) // Buffer to prevent blocking
	b.subscribers[id] = &Subscriber{
		ID:         id,
		DocumentID: documentID,
		Ch:         ch,
	}
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *EventBroadcaster) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub, ok := b.subscribers[id]; ok {
		close(sub.Ch)
		delete(b.subscribers, id)
	}
}

// Broadcast sends an event to all matching subscribers. Non-blocking:
// a subscriber with a full channel misses the event.
func (b *EventBroadcaster) Broadcast(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subscribers {
		if sub.DocumentID != "" && sub.DocumentID != event.DocumentID {
			continue
		}
		select {
		case sub.Ch <- event:
		default:
		}
	}
}

// SubscriberCount returns the current number of subscribers.
func (b *EventBroadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
