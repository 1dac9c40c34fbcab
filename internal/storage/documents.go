package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateDocument stores a new document as version 1.
func (db *DB) CreateDocument(title, description, content string) (*Document, error) {
	if title == "" {
		return nil, fmt.Errorf("document title is required")
	}

	id := uuid.NewString()
	now := time.Now().UTC().Format(time.RFC3339)

	tx, err := db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO documents (id, title, description, content, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, 1, ?, ?)
	`, id, title, description, content, now, now); err != nil {
		return nil, err
	}
	if _, err := tx.Exec(`
		INSERT INTO document_versions (document_id, version, content, message, created_at)
		VALUES (?, 1, ?, ?, ?)
	`, id, content, "Initial version: "+title, now); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return db.GetDocument(id)
}

// GetDocument returns a document by ID, or ErrNotFound.
func (db *DB) GetDocument(id string) (*Document, error) {
	var d Document
	var createdAt, updatedAt string
	err := db.QueryRow(`
		SELECT id, title, description, content, version, created_at, updated_at
		FROM documents WHERE id = ?
	`, id).Scan(&d.ID, &d.Title, &d.Description, &d.Content, &d.Version, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	d.CreatedAt = parseTime(createdAt)
	d.UpdatedAt = parseTime(updatedAt)
	d.LineCount = CountLines(d.Content)
	return &d, nil
}

// ListDocuments returns all documents, newest first, without content.
func (db *DB) ListDocuments() ([]Document, error) {
	rows, err := db.Query(`
		SELECT id, title, description, content, version, created_at, updated_at
		FROM documents ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		var createdAt, updatedAt string
		if err := rows.Scan(&d.ID, &d.Title, &d.Description, &d.Content, &d.Version, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		d.CreatedAt = parseTime(createdAt)
		d.UpdatedAt = parseTime(updatedAt)
		d.LineCount = CountLines(d.Content)
		d.Content = ""
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// UpdateDocument writes new content as the next version.
func (db *DB) UpdateDocument(id, content, message string) (*Document, error) {
	doc, err := db.GetDocument(id)
	if err != nil {
		return nil, err
	}

	next := doc.Version + 1
	now := time.Now().UTC().Format(time.RFC3339)
	if message == "" {
		message = fmt.Sprintf("Update to version %d", next)
	}

	tx, err := db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		UPDATE documents SET content = ?, version = ?, updated_at = ? WHERE id = ?
	`, content, next, now, id); err != nil {
		return nil, err
	}
	if _, err := tx.Exec(`
		INSERT INTO document_versions (document_id, version, content, message, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, id, next, content, message, now); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return db.GetDocument(id)
}

// ListDocumentVersions returns a document's history, newest first.
func (db *DB) ListDocumentVersions(id string) ([]DocumentVersion, error) {
	rows, err := db.Query(`
		SELECT document_id, version, message, created_at
		FROM document_versions WHERE document_id = ? ORDER BY version DESC
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []DocumentVersion
	for rows.Next() {
		var v DocumentVersion
		var createdAt string
		if err := rows.Scan(&v.DocumentID, &v.Version, &v.Message, &createdAt); err != nil {
			return nil, err
		}
		v.CreatedAt = parseTime(createdAt)
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// GetSnapshot returns the current content of a document as the frozen
// state a review runs against.
func (db *DB) GetSnapshot(documentID string) (*Snapshot, error) {
	doc, err := db.GetDocument(documentID)
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		DocumentID: doc.ID,
		Version:    doc.Version,
		Content:    doc.Content,
		LineCount:  doc.LineCount,
	}, nil
}
