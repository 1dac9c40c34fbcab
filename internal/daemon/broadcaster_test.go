package daemon

import (
	"testing"
	"time"
)

func TestBroadcasterSubscribeAndBroadcast(t *testing.T) {
	b := NewBroadcaster()
	id, ch := b.Subscribe("")
	defer b.Unsubscribe(id)

	b.Broadcast(Event{Type: EventReviewStarted, JobID: "j1", DocumentID: "d1"})

	select {
	case e := <-ch:
		if e.Type != EventReviewStarted || e.JobID != "j1" {
			t.Errorf("event = %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestBroadcasterDocumentFilter(t *testing.T) {
	b := NewBroadcaster()
	allID, allCh := b.Subscribe("")
	defer b.Unsubscribe(allID)
	filteredID, filteredCh := b.Subscribe("d1")
	defer b.Unsubscribe(filteredID)

	b.Broadcast(Event{Type: EventReviewCompleted, JobID: "j1", DocumentID: "d2"})

	select {
	case <-allCh:
	case <-time.After(time.Second):
		t.Fatal("unfiltered subscriber missed event")
	}
	select {
	case e := <-filteredCh:
		t.Fatalf("filtered subscriber got event for wrong document: %+v", e)
	case <-time.After(50 * time.Millisecond):
	}

	b.Broadcast(Event{Type: EventReviewCompleted, JobID: "j2", DocumentID: "d1"})
	select {
	case e := <-filteredCh:
		if e.JobID != "j2" {
			t.Errorf("event = %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("filtered subscriber missed matching event")
	}
}

func TestBroadcasterUnsubscribeClosesChannel(t *testing.T) {
	b := NewBroadcaster()
	id, ch := b.Subscribe("")
	if b.SubscriberCount() != 1 {
		t.Fatalf("count = %d, want 1", b.SubscriberCount())
	}

	b.Unsubscribe(id)
	if b.SubscriberCount() != 0 {
		t.Errorf("count = %d, want 0", b.SubscriberCount())
	}
	if _, ok := <-ch; ok {
		t.Error("channel not closed after unsubscribe")
	}

	// Double unsubscribe is a no-op.
	b.Unsubscribe(id)
}

func TestBroadcasterDropsWhenFull(t *testing.T) {
	b := NewBroadcaster()
	id, ch := b.Subscribe("")
	defer b.Unsubscribe(id)

	// Channel buffer is 10; overflow must not block Broadcast.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			b.Broadcast(Event{Type: EventReviewStarted, JobID: "j"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Broadcast blocked on full subscriber channel")
	}

	// Drain what was buffered.
	n := 0
	for {
		select {
		case <-ch:
			n++
		default:
			if n == 0 || n > 10 {
				t.Errorf("buffered %d events, want 1..10", n)
			}
			return
		}
	}
}
