package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SaveReviewResult persists a finished review with its comments and
// meta-comments in one transaction. This is the persistence sink for
// the orchestrator; it is called exactly once per review, on the
// terminal transition.
func (db *DB) SaveReviewResult(review *Review, comments []Comment, metaComments []MetaComment) error {
	switch review.Status {
	case ReviewCompleted, ReviewFailed:
	default:
		return fmt.Errorf("review %s: non-terminal status %q", review.ID, review.Status)
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var completedAt any
	if review.CompletedAt != nil {
		completedAt = review.CompletedAt.UTC().Format(time.RFC3339)
	}
	var verdict, confidence any
	if review.MetaVerdict != nil {
		verdict = string(*review.MetaVerdict)
	}
	if review.MetaConfidence != nil {
		confidence = *review.MetaConfidence
	}

	if _, err := tx.Exec(`
		INSERT INTO reviews (id, document_id, document_version, persona_ids, status, created_at, completed_at, meta_verdict, meta_confidence)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, review.ID, review.DocumentID, review.DocumentVersion,
		encodeStrings(review.PersonaIDs), string(review.Status),
		review.CreatedAt.UTC().Format(time.RFC3339), completedAt, verdict, confidence); err != nil {
		return err
	}

	for _, c := range comments {
		if _, err := tx.Exec(`
			INSERT INTO comments (id, review_id, persona_id, persona_name, persona_color, content, start_line, end_line, severity, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, c.ID, c.ReviewID, c.PersonaID, c.PersonaName, c.PersonaColor,
			c.Content, c.StartLine, c.EndLine, string(c.Severity),
			c.CreatedAt.UTC().Format(time.RFC3339)); err != nil {
			return err
		}
	}

	for _, mc := range metaComments {
		sources, err := json.Marshal(mc.Sources)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(`
			INSERT INTO meta_comments (id, review_id, content, start_line, end_line, sources, category, priority, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, mc.ID, mc.ReviewID, mc.Content, mc.StartLine, mc.EndLine,
			string(sources), string(mc.Category), string(mc.Priority),
			mc.CreatedAt.UTC().Format(time.RFC3339)); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetReview returns a review by ID, or ErrNotFound.
func (db *DB) GetReview(id string) (*Review, error) {
	row := db.QueryRow(reviewSelect+` WHERE id = ?`, id)
	r, err := scanReview(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("review %q: %w", id, ErrNotFound)
	}
	return r, err
}

// ListReviews returns a document's reviews, newest first.
func (db *DB) ListReviews(documentID string, limit int) ([]Review, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.Query(reviewSelect+` WHERE document_id = ? ORDER BY created_at DESC LIMIT ?`, documentID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reviews []Review
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, err
		}
		reviews = append(reviews, *r)
	}
	return reviews, rows.Err()
}

// GetComments returns a review's comments ordered by line anchor.
func (db *DB) GetComments(reviewID string) ([]Comment, error) {
	rows, err := db.Query(`
		SELECT id, review_id, persona_id, persona_name, persona_color, content, start_line, end_line, severity, created_at
		FROM comments WHERE review_id = ?
		ORDER BY start_line, end_line, persona_name
	`, reviewID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var comments []Comment
	for rows.Next() {
		var c Comment
		var severity, createdAt string
		if err := rows.Scan(&c.ID, &c.ReviewID, &c.PersonaID, &c.PersonaName, &c.PersonaColor,
			&c.Content, &c.StartLine, &c.EndLine, &severity, &createdAt); err != nil {
			return nil, err
		}
		c.Severity = Severity(severity)
		c.CreatedAt = parseTime(createdAt)
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

// GetMetaComments returns a review's meta-comments ordered by line
// anchor.
func (db *DB) GetMetaComments(reviewID string) ([]MetaComment, error) {
	rows, err := db.Query(`
		SELECT id, review_id, content, start_line, end_line, sources, category, priority, created_at
		FROM meta_comments WHERE review_id = ?
		ORDER BY start_line, end_line
	`, reviewID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var metaComments []MetaComment
	for rows.Next() {
		var mc MetaComment
		var sources, category, priority, createdAt string
		if err := rows.Scan(&mc.ID, &mc.ReviewID, &mc.Content, &mc.StartLine, &mc.EndLine,
			&sources, &category, &priority, &createdAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(sources), &mc.Sources); err != nil {
			return nil, fmt.Errorf("meta comment %s: decode sources: %w", mc.ID, err)
		}
		mc.Category = Category(category)
		mc.Priority = Severity(priority)
		mc.CreatedAt = parseTime(createdAt)
		metaComments = append(metaComments, mc)
	}
	return metaComments, rows.Err()
}

const reviewSelect = `
	SELECT id, document_id, document_version, persona_ids, status, created_at, completed_at, meta_verdict, meta_confidence
	FROM reviews`

func scanReview(s scanner) (*Review, error) {
	var r Review
	var personaIDs, status, createdAt string
	var completedAt, verdict sql.NullString
	var confidence sql.NullFloat64
	err := s.Scan(&r.ID, &r.DocumentID, &r.DocumentVersion, &personaIDs, &status,
		&createdAt, &completedAt, &verdict, &confidence)
	if err != nil {
		return nil, err
	}
	r.PersonaIDs = decodeStrings(personaIDs)
	r.Status = ReviewStatus(status)
	r.CreatedAt = parseTime(createdAt)
	r.CompletedAt = nullTime(completedAt)
	if verdict.Valid {
		v := Verdict(verdict.String)
		r.MetaVerdict = &v
	}
	if confidence.Valid {
		c := confidence.Float64
		r.MetaConfidence = &c
	}
	return &r, nil
}
