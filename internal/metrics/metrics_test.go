package metrics

import (
	"sync"
	"testing"
	"time"
)

func TestStoreCounters(t *testing.T) {
	s := NewStore()

	s.RecordReviewStart()
	s.RecordReviewStart()
	s.RecordReviewComplete(2 * time.Second)
	s.RecordReviewFailed()
	s.RecordPersonaCompletion()
	s.RecordPersonaCompletion()
	s.RecordPersonaCompletion()

	snap := s.Snapshot()
	if snap.ReviewsStarted != 2 {
		t.Errorf("ReviewsStarted = %d, want 2", snap.ReviewsStarted)
	}
	if snap.ReviewsCompleted != 1 {
		t.Errorf("ReviewsCompleted = %d, want 1", snap.ReviewsCompleted)
	}
	if snap.ReviewsFailed != 1 {
		t.Errorf("ReviewsFailed = %d, want 1", snap.ReviewsFailed)
	}
	if snap.PersonaCompletions != 3 {
		t.Errorf("PersonaCompletions = %d, want 3", snap.PersonaCompletions)
	}
	if snap.AvgReviewSeconds != 2 {
		t.Errorf("AvgReviewSeconds = %v, want 2", snap.AvgReviewSeconds)
	}
}

func TestStoreConcurrentIncrements(t *testing.T) {
	s := NewStore()

	const goroutines = 16
	const perGoroutine = 100

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				s.RecordReviewStart()
				s.RecordPersonaCompletion()
				s.RecordReviewComplete(time.Millisecond)
			}
		}()
	}
	wg.Wait()

	snap := s.Snapshot()
	want := int64(goroutines * perGoroutine)
	if snap.ReviewsStarted != want {
		t.Errorf("ReviewsStarted = %d, want %d", snap.ReviewsStarted, want)
	}
	if snap.PersonaCompletions != want {
		t.Errorf("PersonaCompletions = %d, want %d", snap.PersonaCompletions, want)
	}
	if snap.ReviewsCompleted != want {
		t.Errorf("ReviewsCompleted = %d, want %d", snap.ReviewsCompleted, want)
	}
}

func TestStoreDurationWindowBounded(t *testing.T) {
	s := NewStore()
	for i := 0; i < maxDurations+50; i++ {
		s.RecordReviewComplete(time.Second)
	}
	if len(s.durations) != maxDurations {
		t.Errorf("retained %d durations, want %d", len(s.durations), maxDurations)
	}
}
