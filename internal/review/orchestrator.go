package review

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Bluesun-Networks/VOS/internal/metrics"
	"github.com/Bluesun-Networks/VOS/internal/persona"
	"github.com/Bluesun-Networks/VOS/internal/provider"
	"github.com/Bluesun-Networks/VOS/internal/storage"
	"github.com/google/uuid"
)

// ErrAllPersonasFailed marks a review where zero personas produced
// usable comments.
var ErrAllPersonasFailed = errors.New("all personas failed")

// DocumentSource provides frozen document snapshots.
type DocumentSource interface {
	GetSnapshot(documentID string) (*storage.Snapshot, error)
}

// PersonaSource resolves requested persona IDs to dispatch-ordered
// personas. Empty input means all active personas.
type PersonaSource interface {
	Resolve(ids []string) ([]storage.Persona, error)
}

// Sink durably stores a finished review. The orchestrator does not
// retry sink failures; they surface as fatal errors to the caller.
type Sink interface {
	SaveReviewResult(review *storage.Review, comments []storage.Comment, metaComments []storage.MetaComment) error
}

// PersonaFailure records one persona's failed invocation, surfaced as
// informational metadata on a review that still completed.
type PersonaFailure struct {
	PersonaID   string
	PersonaName string
	Err         error
}

// Result is the outcome of one orchestrated review.
type Result struct {
	Review       *storage.Review
	Comments     []storage.Comment
	MetaComments []storage.MetaComment
	Failures     []PersonaFailure
}

// Orchestrator drives a review through its lifecycle: dispatch all
// persona invocations concurrently, collect results under partial
// failure, synthesize, persist, and emit metrics events.
type Orchestrator struct {
	docs     DocumentSource
	personas PersonaSource
	invoker  *Invoker
	sink     Sink
	rec      metrics.Recorder
}

// NewOrchestrator wires the orchestrator's collaborators.
func NewOrchestrator(docs DocumentSource, personas PersonaSource, invoker *Invoker, sink Sink, rec metrics.Recorder) *Orchestrator {
	return &Orchestrator{
		docs:     docs,
		personas: personas,
		invoker:  invoker,
		sink:     sink,
		rec:      rec,
	}
}

// Run executes one review. Lookup and persistence failures return as
// fatal errors; persona failures are absorbed unless every persona
// failed, in which case the review persists as failed and the error
// wraps ErrAllPersonasFailed.
//
// Cancellation before dispatch completes abandons in-flight
// invocations and discards partial results: nothing is persisted.
func (o *Orchestrator) Run(ctx context.Context, documentID string, personaIDs []string) (*Result, error) {
	snap, err := o.docs.GetSnapshot(documentID)
	if err != nil {
		return nil, fmt.Errorf("load document snapshot: %w", err)
	}
	participants, err := o.personas.Resolve(personaIDs)
	if err != nil {
		return nil, fmt.Errorf("resolve personas: %w", err)
	}
	if err := persona.ValidateWeights(participants); err != nil {
		return nil, err
	}

	resolvedIDs := make([]string, len(participants))
	for i, p := range participants {
		resolvedIDs[i] = p.ID
	}

	review := &storage.Review{
		ID:              uuid.NewString(),
		DocumentID:      documentID,
		DocumentVersion: snap.Version,
		PersonaIDs:      resolvedIDs,
		Status:          storage.ReviewPending,
		CreatedAt:       time.Now().UTC(),
	}

	// pending -> running happens atomically with dispatch.
	review.Status = storage.ReviewRunning
	o.rec.RecordReviewStart()
	start := time.Now()
	log.Printf("[review %s] dispatching %d personas for document %s v%d",
		review.ID, len(participants), documentID, snap.Version)

	type personaResult struct {
		comments []storage.Comment
		err      error
	}
	results := make([]personaResult, len(participants))

	var wg sync.WaitGroup
	for i, p := range participants {
		wg.Add(1)
		go func(idx int, p storage.Persona) {
			defer wg.Done()
			raws, err := o.invoker.Invoke(ctx, p, snap)
			if err != nil {
				results[idx] = personaResult{err: err}
				return
			}
			results[idx] = personaResult{
				comments: AnchorAll(raws, p, review.ID, snap.LineCount),
			}
		}(i, p)
	}
	wg.Wait()

	if ctx.Err() != nil {
		// No terminal metrics event: a canceled review stays counted
		// as started only, so started-completed-failed in a snapshot
		// includes cancellations alongside in-flight reviews.
		log.Printf("[review %s] canceled, discarding partial results", review.ID)
		return nil, ctx.Err()
	}

	var succeeded []storage.Persona
	var comments []storage.Comment
	var failures []PersonaFailure
	for i, r := range results {
		p := participants[i]
		if r.err != nil {
			log.Printf("[review %s] persona %s failed: %v", review.ID, p.Name, r.err)
			failures = append(failures, PersonaFailure{
				PersonaID:   p.ID,
				PersonaName: p.Name,
				Err:         r.err,
			})
			continue
		}
		succeeded = append(succeeded, p)
		comments = append(comments, r.comments...)
		o.rec.RecordPersonaCompletion()
	}

	now := time.Now().UTC()
	if len(succeeded) == 0 {
		review.Status = storage.ReviewFailed
		review.CompletedAt = &now
		if err := o.sink.SaveReviewResult(review, nil, nil); err != nil {
			return nil, fmt.Errorf("persist failed review: %w", err)
		}
		o.rec.RecordReviewFailed()
		log.Printf("[review %s] failed: %s", review.ID, FailureSummary(failures, len(participants)))
		return &Result{Review: review, Failures: failures},
			fmt.Errorf("%w: %s", ErrAllPersonasFailed, FailureSummary(failures, len(participants)))
	}

	synth := Synthesize(review.ID, comments, succeeded)
	review.Status = storage.ReviewCompleted
	review.CompletedAt = &now
	review.MetaVerdict = &synth.Verdict
	review.MetaConfidence = &synth.Confidence

	if err := o.sink.SaveReviewResult(review, comments, synth.MetaComments); err != nil {
		return nil, fmt.Errorf("persist review: %w", err)
	}
	o.rec.RecordReviewComplete(time.Since(start))
	log.Printf("[review %s] completed in %s: verdict=%s confidence=%.2f (%d/%d personas, %d comments, %d meta)",
		review.ID, time.Since(start).Round(time.Millisecond), synth.Verdict, synth.Confidence,
		len(succeeded), len(participants), len(comments), len(synth.MetaComments))

	return &Result{
		Review:       review,
		Comments:     comments,
		MetaComments: synth.MetaComments,
		Failures:     failures,
	}, nil
}

// FailureSummary renders persona failures for a job's error message.
// When one provider error kind caused more than half of the failures,
// its first message speaks for the set; otherwise a count does.
func FailureSummary(failures []PersonaFailure, total int) string {
	if len(failures) == 0 {
		return ""
	}

	kindCounts := make(map[provider.ErrorKind]int)
	firstMsg := make(map[provider.ErrorKind]string)
	for _, f := range failures {
		kind := provider.KindOf(f.Err)
		kindCounts[kind]++
		if _, ok := firstMsg[kind]; !ok {
			firstMsg[kind] = f.Err.Error()
		}
	}

	for kind, n := range kindCounts {
		if n*2 > len(failures) {
			return firstMsg[kind]
		}
	}
	return fmt.Sprintf("%d of %d personas failed", len(failures), total)
}
