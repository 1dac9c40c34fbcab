package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EnqueueJob queues a review job for a document. personaIDs may be
// empty, meaning all active personas at dispatch time.
func (db *DB) EnqueueJob(documentID string, personaIDs []string, provider, model string, trigger Trigger) (*ReviewJob, error) {
	if _, err := db.GetDocument(documentID); err != nil {
		return nil, err
	}
	if trigger == "" {
		trigger = TriggerManual
	}

	id := uuid.NewString()
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := db.Exec(`
		INSERT INTO review_jobs (id, document_id, persona_ids, status, provider, model, trigger, enqueued_at)
		VALUES (?, ?, ?, 'queued', ?, ?, ?, ?)
	`, id, documentID, encodeStrings(personaIDs), provider, model, string(trigger), now)
	if err != nil {
		return nil, err
	}
	return db.GetJob(id)
}

// ClaimJob atomically claims the oldest queued job for a worker. A
// single UPDATE prevents two workers from selecting the same job.
// Returns nil if no jobs are available.
func (db *DB) ClaimJob(workerID string) (*ReviewJob, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	result, err := db.Exec(`
		UPDATE review_jobs
		SET status = 'running', worker_id = ?, started_at = ?
		WHERE id = (
			SELECT id FROM review_jobs
			WHERE status = 'queued'
			ORDER BY enqueued_at
			LIMIT 1
		)
	`, workerID, now)
	if err != nil {
		return nil, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}

	var id string
	err = db.QueryRow(`
		SELECT id FROM review_jobs
		WHERE worker_id = ? AND status = 'running'
		ORDER BY started_at DESC
		LIMIT 1
	`, workerID).Scan(&id)
	if err != nil {
		return nil, err
	}
	return db.GetJob(id)
}

// CompleteJob marks a running job done and links its review. No-op if
// the job was canceled between orchestration finish and now.
func (db *DB) CompleteJob(jobID, reviewID, errorMessage string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := db.Exec(`
		UPDATE review_jobs
		SET status = 'done', review_id = ?, error_message = ?, finished_at = ?
		WHERE id = ? AND status = 'running'
	`, reviewID, errorMessage, now, jobID)
	return err
}

// FailJob marks a running job failed with the first fatal cause.
// Returns true if the row was updated (false when the job was already
// terminal, e.g. canceled).
func (db *DB) FailJob(jobID, errorMessage string) (bool, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	result, err := db.Exec(`
		UPDATE review_jobs
		SET status = 'failed', error_message = ?, finished_at = ?
		WHERE id = ? AND status IN ('queued','running')
	`, errorMessage, now, jobID)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	return n > 0, err
}

// FailJobWithReview marks a job failed and links the failed review
// record so the cause is inspectable.
func (db *DB) FailJobWithReview(jobID, reviewID, errorMessage string) (bool, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	result, err := db.Exec(`
		UPDATE review_jobs
		SET status = 'failed', review_id = ?, error_message = ?, finished_at = ?
		WHERE id = ? AND status IN ('queued','running')
	`, reviewID, errorMessage, now, jobID)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	return n > 0, err
}

// CancelJob cancels a queued or running job. Returns true if the row
// was updated.
func (db *DB) CancelJob(jobID string) (bool, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	result, err := db.Exec(`
		UPDATE review_jobs
		SET status = 'canceled', finished_at = ?
		WHERE id = ? AND status IN ('queued','running')
	`, now, jobID)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	return n > 0, err
}

// GetJob returns a job by ID, or ErrNotFound.
func (db *DB) GetJob(id string) (*ReviewJob, error) {
	row := db.QueryRow(jobSelect+` WHERE j.id = ?`, id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %q: %w", id, ErrNotFound)
	}
	return j, err
}

// ListJobs returns the most recent jobs, newest first.
func (db *DB) ListJobs(limit int) ([]ReviewJob, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.Query(jobSelect+` ORDER BY j.enqueued_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []ReviewJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

// ResetStaleJobs re-queues jobs left running by a previous process.
// Called on daemon start.
func (db *DB) ResetStaleJobs() (int, error) {
	result, err := db.Exec(`
		UPDATE review_jobs
		SET status = 'queued', worker_id = '', started_at = NULL
		WHERE status = 'running'
	`)
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	return int(n), err
}

// CountJobsByStatus returns job counts keyed by status.
func (db *DB) CountJobsByStatus() (map[JobStatus]int, error) {
	rows, err := db.Query(`SELECT status, COUNT(*) FROM review_jobs GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[JobStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[JobStatus(status)] = n
	}
	return counts, rows.Err()
}

const jobSelect = `
	SELECT j.id, j.document_id, j.review_id, j.persona_ids, j.status, j.provider, j.model,
	       j.trigger, j.error_message, j.enqueued_at, j.started_at, j.finished_at, j.worker_id,
	       d.title
	FROM review_jobs j
	JOIN documents d ON d.id = j.document_id`

func scanJob(s scanner) (*ReviewJob, error) {
	var j ReviewJob
	var reviewID sql.NullString
	var personaIDs, status, trigger, enqueuedAt string
	var startedAt, finishedAt sql.NullString
	err := s.Scan(&j.ID, &j.DocumentID, &reviewID, &personaIDs, &status, &j.Provider, &j.Model,
		&trigger, &j.ErrorMessage, &enqueuedAt, &startedAt, &finishedAt, &j.WorkerID,
		&j.DocumentTitle)
	if err != nil {
		return nil, err
	}
	if reviewID.Valid {
		j.ReviewID = reviewID.String
	}
	j.PersonaIDs = decodeStrings(personaIDs)
	j.Status = JobStatus(status)
	j.Trigger = Trigger(trigger)
	j.EnqueuedAt = parseTime(enqueuedAt)
	j.StartedAt = nullTime(startedAt)
	j.FinishedAt = nullTime(finishedAt)
	return &j, nil
}
