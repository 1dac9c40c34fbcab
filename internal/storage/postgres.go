package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgSchemaName isolates VOS tables in a shared database.
const pgSchemaName = "vos"

var pgSchemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS archived_reviews (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		document_version INTEGER NOT NULL,
		persona_ids JSONB NOT NULL,
		status TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		completed_at TIMESTAMPTZ,
		meta_verdict TEXT,
		meta_confidence DOUBLE PRECISION,
		archived_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS archived_meta_comments (
		id TEXT PRIMARY KEY,
		review_id TEXT NOT NULL REFERENCES archived_reviews(id),
		content TEXT NOT NULL,
		start_line INTEGER NOT NULL,
		end_line INTEGER NOT NULL,
		sources JSONB NOT NULL,
		category TEXT NOT NULL,
		priority TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_archived_reviews_document
		ON archived_reviews(document_id)`,
}

// Archiver mirrors finished reviews to a central PostgreSQL database.
// Archival is best-effort and off the review path: a failed archive
// never fails the review that produced it.
type Archiver struct {
	pool *pgxpool.Pool
}

// NewArchiver connects to PostgreSQL and ensures the vos schema
// exists. connString is a postgres:// URL.
func NewArchiver(ctx context.Context, connString string) (*Archiver, error) {
	poolCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}
	poolCfg.MaxConns = 4
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	// Set search_path on each connection; create the schema on first
	// contact if the role has the privilege.
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		_, err := conn.Exec(ctx, "SET search_path TO "+pgSchemaName)
		if err != nil {
			if _, createErr := conn.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+pgSchemaName); createErr != nil {
				return createErr
			}
			_, err = conn.Exec(ctx, "SET search_path TO "+pgSchemaName)
		}
		return err
	}

	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	a := &Archiver{pool: pool}
	if err := a.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return a, nil
}

func (a *Archiver) ensureSchema(ctx context.Context) error {
	for _, stmt := range pgSchemaStatements {
		if _, err := a.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply archive schema: %w", err)
		}
	}
	return nil
}

// Close releases the connection pool.
func (a *Archiver) Close() {
	a.pool.Close()
}

// ArchiveReview copies a finished review and its meta-comments to the
// archive. Idempotent: re-archiving an existing review is a no-op.
func (a *Archiver) ArchiveReview(ctx context.Context, review *Review, metaComments []MetaComment) error {
	tx, err := a.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	personaIDs, err := json.Marshal(review.PersonaIDs)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
		INSERT INTO archived_reviews (id, document_id, document_version, persona_ids, status, created_at, completed_at, meta_verdict, meta_confidence)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`, review.ID, review.DocumentID, review.DocumentVersion, personaIDs,
		string(review.Status), review.CreatedAt, review.CompletedAt,
		verdictOrNil(review.MetaVerdict), review.MetaConfidence)
	if err != nil {
		return fmt.Errorf("archive review %s: %w", review.ID, err)
	}
	if tag.RowsAffected() == 0 {
		// Already archived.
		return tx.Commit(ctx)
	}

	for _, mc := range metaComments {
		sources, err := json.Marshal(mc.Sources)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO archived_meta_comments (id, review_id, content, start_line, end_line, sources, category, priority, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (id) DO NOTHING
		`, mc.ID, mc.ReviewID, mc.Content, mc.StartLine, mc.EndLine,
			sources, string(mc.Category), string(mc.Priority), mc.CreatedAt); err != nil {
			return fmt.Errorf("archive meta comment %s: %w", mc.ID, err)
		}
	}

	return tx.Commit(ctx)
}

func verdictOrNil(v *Verdict) any {
	if v == nil {
		return nil
	}
	return string(*v)
}
