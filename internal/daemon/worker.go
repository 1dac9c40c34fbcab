package daemon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Bluesun-Networks/VOS/internal/review"
	"github.com/Bluesun-Networks/VOS/internal/storage"
)

// Runner executes one review end to end. Satisfied by
// review.Orchestrator.
type Runner interface {
	Run(ctx context.Context, documentID string, personaIDs []string) (*review.Result, error)
}

// jobTimeout bounds one whole job: all persona invocations plus
// synthesis and persistence.
const jobTimeout = 10 * time.Minute

// WorkerPool drains the review job queue with a fixed set of workers.
type WorkerPool struct {
	db          *storage.DB
	runner      Runner
	broadcaster Broadcaster
	archiver    *storage.Archiver

	numWorkers    int
	activeWorkers atomic.Int32
	stopCh        chan struct{}
	readyCh       chan struct{} // closed after wg.Add in Start
	startOnce     sync.Once
	stopOnce      sync.Once
	wg            sync.WaitGroup

	// Track running jobs for cancellation.
	runningJobs    map[string]context.CancelFunc
	pendingCancels map[string]bool // canceled before the worker registered them
	runningJobsMu  sync.Mutex
}

// NewWorkerPool creates a worker pool. archiver may be nil.
func NewWorkerPool(db *storage.DB, runner Runner, numWorkers int, broadcaster Broadcaster, archiver *storage.Archiver) *WorkerPool {
	return &WorkerPool{
		db:             db,
		runner:         runner,
		broadcaster:    broadcaster,
		archiver:       archiver,
		numWorkers:     numWorkers,
		stopCh:         make(chan struct{}),
		readyCh:        make(chan struct{}),
		runningJobs:    make(map[string]context.CancelFunc),
		pendingCancels: make(map[string]bool),
	}
}

// Start begins the worker pool. Safe to call multiple times; only the
// first call spawns workers.
func (wp *WorkerPool) Start() {
	wp.startOnce.Do(func() {
		log.Printf("Starting worker pool with %d workers", wp.numWorkers)
		wp.wg.Add(wp.numWorkers)
		close(wp.readyCh)
		for i := 0; i < wp.numWorkers; i++ {
			go wp.worker(i)
		}
	})
}

// Stop gracefully shuts down the worker pool. Safe to call multiple
// times.
func (wp *WorkerPool) Stop() {
	wp.stopOnce.Do(func() {
		log.Println("Stopping worker pool...")
		close(wp.stopCh)
		// Wait for Start to finish wg.Add before calling Wait. If
		// Start was never called, workers never spawned.
		select {
		case <-wp.readyCh:
			wp.wg.Wait()
		default:
		}
		log.Println("Worker pool stopped")
	})
}

// ActiveWorkers returns how many workers are processing a job.
func (wp *WorkerPool) ActiveWorkers() int {
	return int(wp.activeWorkers.Load())
}

// MaxWorkers returns the pool size.
func (wp *WorkerPool) MaxWorkers() int {
	return wp.numWorkers
}

// CancelJob cancels a running job by ID. A job claimed but not yet
// registered is marked for pending cancellation so the worker cancels
// it on registration. Returns false if the job doesn't exist or is
// already terminal.
func (wp *WorkerPool) CancelJob(jobID string) bool {
	wp.runningJobsMu.Lock()
	if cancel, ok := wp.runningJobs[jobID]; ok {
		wp.runningJobsMu.Unlock()
		log.Printf("Canceling job %s", jobID)
		cancel()
		return true
	}
	wp.runningJobsMu.Unlock()

	// Not registered yet. Only mark pending for jobs that are actually
	// cancellable, so pendingCancels can't grow with junk IDs.
	job, err := wp.db.GetJob(jobID)
	if err != nil || !isJobCancellable(job) {
		return false
	}

	wp.runningJobsMu.Lock()
	defer wp.runningJobsMu.Unlock()
	// The worker may have registered while we read the DB.
	if cancel, ok := wp.runningJobs[jobID]; ok {
		log.Printf("Canceling job %s (registered during DB check)", jobID)
		cancel()
		return true
	}
	wp.pendingCancels[jobID] = true
	log.Printf("Job %s not yet registered, marking for pending cancellation", jobID)
	return true
}

// isJobCancellable reports whether the job can still be canceled. A
// canceled job with a worker ID was claimed before the status flipped;
// the worker still needs the pending-cancel signal.
func isJobCancellable(job *storage.ReviewJob) bool {
	return job.Status == storage.JobStatusQueued ||
		job.Status == storage.JobStatusRunning ||
		(job.Status == storage.JobStatusCanceled && job.WorkerID != "")
}

// registerRunningJob tracks a claimed job for cancellation. If the job
// was canceled before registration, it cancels immediately.
func (wp *WorkerPool) registerRunningJob(jobID string, cancel context.CancelFunc) {
	wp.runningJobsMu.Lock()
	wp.runningJobs[jobID] = cancel
	if wp.pendingCancels[jobID] {
		delete(wp.pendingCancels, jobID)
		wp.runningJobsMu.Unlock()
		log.Printf("Job %s was pending cancellation, canceling now", jobID)
		cancel()
		return
	}
	wp.runningJobsMu.Unlock()
}

func (wp *WorkerPool) unregisterRunningJob(jobID string) {
	wp.runningJobsMu.Lock()
	delete(wp.runningJobs, jobID)
	delete(wp.pendingCancels, jobID)
	wp.runningJobsMu.Unlock()
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()
	workerID := fmt.Sprintf("worker-%d", id)

	log.Printf("[%s] Started", workerID)
	for {
		select {
		case <-wp.stopCh:
			log.Printf("[%s] Shutting down", workerID)
			return
		default:
		}

		job, err := wp.db.ClaimJob(workerID)
		if err != nil {
			log.Printf("[%s] Error claiming job: %v", workerID, err)
			wp.sleep(5 * time.Second)
			continue
		}
		if job == nil {
			wp.sleep(1 * time.Second)
			continue
		}

		wp.activeWorkers.Add(1)
		wp.processJob(workerID, job)
		wp.activeWorkers.Add(-1)
	}
}

// sleep waits for d or until the pool stops, whichever comes first.
func (wp *WorkerPool) sleep(d time.Duration) {
	select {
	case <-wp.stopCh:
	case <-time.After(d):
	}
}

func (wp *WorkerPool) processJob(workerID string, job *storage.ReviewJob) {
	log.Printf("[%s] Processing job %s document=%q trigger=%s",
		workerID, job.ID, job.DocumentTitle, job.Trigger)

	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	wp.registerRunningJob(job.ID, cancel)
	defer wp.unregisterRunningJob(job.ID)

	wp.broadcaster.Broadcast(Event{
		Type:          EventReviewStarted,
		TS:            time.Now(),
		JobID:         job.ID,
		DocumentID:    job.DocumentID,
		DocumentTitle: job.DocumentTitle,
	})

	res, err := wp.runner.Run(ctx, job.DocumentID, job.PersonaIDs)

	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		// Canceled or timed out; the review persisted nothing.
		if _, err := wp.db.CancelJob(job.ID); err != nil {
			log.Printf("[%s] Error marking job %s canceled: %v", workerID, job.ID, err)
		}
		wp.broadcaster.Broadcast(Event{
			Type:          EventReviewCanceled,
			TS:            time.Now(),
			JobID:         job.ID,
			DocumentID:    job.DocumentID,
			DocumentTitle: job.DocumentTitle,
		})
		log.Printf("[%s] Job %s canceled", workerID, job.ID)
		return
	}

	if err != nil {
		wp.failJob(workerID, job, res, err)
		return
	}

	// Persona failures on a completed review still belong on the job
	// record, not just in the logs.
	failureMsg := review.FailureSummary(res.Failures, len(res.Review.PersonaIDs))
	if err := wp.db.CompleteJob(job.ID, res.Review.ID, failureMsg); err != nil {
		log.Printf("[%s] Error completing job %s: %v", workerID, job.ID, err)
	}

	verdict := ""
	if res.Review.MetaVerdict != nil {
		verdict = string(*res.Review.MetaVerdict)
	}
	wp.broadcaster.Broadcast(Event{
		Type:          EventReviewCompleted,
		TS:            time.Now(),
		JobID:         job.ID,
		DocumentID:    job.DocumentID,
		DocumentTitle: job.DocumentTitle,
		ReviewID:      res.Review.ID,
		Verdict:       verdict,
	})
	log.Printf("[%s] Job %s done: review %s verdict=%s", workerID, job.ID, res.Review.ID, verdict)

	wp.archive(res)
}

// failJob marks a job failed, linking the failed review record when
// one was persisted (the all-personas-failed path).
func (wp *WorkerPool) failJob(workerID string, job *storage.ReviewJob, res *review.Result, runErr error) {
	log.Printf("[%s] Job %s failed: %v", workerID, job.ID, runErr)

	msg := runErr.Error()
	if res != nil && errors.Is(runErr, review.ErrAllPersonasFailed) && len(res.Failures) > 0 {
		msg = review.FailureSummary(res.Failures, len(res.Review.PersonaIDs))
	}

	var changed bool
	var err error
	if res != nil && res.Review != nil {
		changed, err = wp.db.FailJobWithReview(job.ID, res.Review.ID, msg)
	} else {
		changed, err = wp.db.FailJob(job.ID, msg)
	}
	if err != nil {
		log.Printf("[%s] Error marking job %s failed: %v", workerID, job.ID, err)
	}
	if !changed {
		// Already canceled; nothing to announce.
		return
	}

	wp.broadcaster.Broadcast(Event{
		Type:          EventReviewFailed,
		TS:            time.Now(),
		JobID:         job.ID,
		DocumentID:    job.DocumentID,
		DocumentTitle: job.DocumentTitle,
		Error:         msg,
	})
}

// archive mirrors a completed review to the archive database,
// best-effort.
func (wp *WorkerPool) archive(res *review.Result) {
	if wp.archiver == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := wp.archiver.ArchiveReview(ctx, res.Review, res.MetaComments); err != nil {
		log.Printf("Warning: archive review %s: %v", res.Review.ID, err)
	}
}
