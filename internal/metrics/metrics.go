// Package metrics provides an injectable in-memory counter store for
// review lifecycle events. It is the only shared mutable state in the
// review engine; all other records are owned by the review that
// created them until handed to storage.
package metrics

import (
	"sync"
	"time"
)

// Recorder is the sink the orchestrator emits lifecycle events to.
type Recorder interface {
	RecordReviewStart()
	RecordReviewComplete(duration time.Duration)
	RecordReviewFailed()
	RecordPersonaCompletion()
}

// Snapshot is a consistent point-in-time copy of all counters.
type Snapshot struct {
	UptimeSeconds      float64 `json:"uptime_seconds"`
	ReviewsStarted     int64   `json:"reviews_started"`
	ReviewsCompleted   int64   `json:"reviews_completed"`
	ReviewsFailed      int64   `json:"reviews_failed"`
	PersonaCompletions int64   `json:"persona_completions"`
	AvgReviewSeconds   float64 `json:"avg_review_duration_s"`
}

// maxDurations bounds the retained duration samples.
const maxDurations = 500

// Store holds review counters behind a mutex. Increments from
// concurrent reviews never lose updates, and Snapshot never observes
// a half-updated counter family.
type Store struct {
	mu sync.Mutex

	reviewsStarted     int64
	reviewsCompleted   int64
	reviewsFailed      int64
	personaCompletions int64
	durations          []time.Duration
	startedAt          time.Time
}

// NewStore creates an empty metrics store.
func NewStore() *Store {
	return &Store{startedAt: time.Now()}
}

func (s *Store) RecordReviewStart() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reviewsStarted++
}

func (s *Store) RecordReviewComplete(duration time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reviewsCompleted++
	s.durations = append(s.durations, duration)
	if len(s.durations) > maxDurations {
		s.durations = s.durations[len(s.durations)-maxDurations:]
	}
}

func (s *Store) RecordReviewFailed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reviewsFailed++
}

func (s *Store) RecordPersonaCompletion() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.personaCompletions++
}

// Snapshot returns a consistent copy of the counters. It never blocks
// on anything other than the increment mutex.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	var avg float64
	if len(s.durations) > 0 {
		var total time.Duration
		for _, d := range s.durations {
			total += d
		}
		avg = total.Seconds() / float64(len(s.durations))
	}

	return Snapshot{
		UptimeSeconds:      time.Since(s.startedAt).Seconds(),
		ReviewsStarted:     s.reviewsStarted,
		ReviewsCompleted:   s.reviewsCompleted,
		ReviewsFailed:      s.reviewsFailed,
		PersonaCompletions: s.personaCompletions,
		AvgReviewSeconds:   avg,
	}
}
