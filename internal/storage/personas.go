package storage

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// SavePersona inserts or replaces a persona. A missing ID is
// generated.
func (db *DB) SavePersona(p *Persona) error {
	if p.Name == "" {
		return fmt.Errorf("persona name is required")
	}
	if p.SystemPrompt == "" {
		return fmt.Errorf("persona %q: system prompt is required", p.Name)
	}
	if !ValidTone(p.Tone) {
		return fmt.Errorf("persona %q: unknown tone %q", p.Name, p.Tone)
	}
	if p.Weight < 0 {
		return fmt.Errorf("persona %q: negative weight %v", p.Name, p.Weight)
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}

	_, err := db.Exec(`
		INSERT INTO personas (id, name, description, system_prompt, tone, focus_areas, color, weight, is_default, is_active, sort_order)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			system_prompt = excluded.system_prompt,
			tone = excluded.tone,
			focus_areas = excluded.focus_areas,
			color = excluded.color,
			weight = excluded.weight,
			is_default = excluded.is_default,
			is_active = excluded.is_active,
			sort_order = excluded.sort_order
	`, p.ID, p.Name, p.Description, p.SystemPrompt, string(p.Tone),
		encodeStrings(p.FocusAreas), p.Color, p.Weight,
		boolToInt(p.IsDefault), boolToInt(p.IsActive), p.SortOrder)
	return err
}

// GetPersona returns a persona by ID, or ErrNotFound.
func (db *DB) GetPersona(id string) (*Persona, error) {
	row := db.QueryRow(personaSelect+` WHERE id = ?`, id)
	p, err := scanPersona(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("persona %q: %w", id, ErrNotFound)
	}
	return p, err
}

// ListPersonas returns personas in dispatch order (sort_order, then
// name). activeOnly filters to is_active personas.
func (db *DB) ListPersonas(activeOnly bool) ([]Persona, error) {
	q := personaSelect
	if activeOnly {
		q += ` WHERE is_active = 1`
	}
	q += ` ORDER BY sort_order, name`

	rows, err := db.Query(q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var personas []Persona
	for rows.Next() {
		p, err := scanPersona(rows)
		if err != nil {
			return nil, err
		}
		personas = append(personas, *p)
	}
	return personas, rows.Err()
}

// SetPersonaActive flips a persona's active flag.
func (db *DB) SetPersonaActive(id string, active bool) error {
	res, err := db.Exec(`UPDATE personas SET is_active = ? WHERE id = ?`, boolToInt(active), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("persona %q: %w", id, ErrNotFound)
	}
	return nil
}

const personaSelect = `
	SELECT id, name, description, system_prompt, tone, focus_areas, color, weight, is_default, is_active, sort_order
	FROM personas`

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanPersona(s scanner) (*Persona, error) {
	var p Persona
	var tone, focusAreas string
	var isDefault, isActive int
	err := s.Scan(&p.ID, &p.Name, &p.Description, &p.SystemPrompt, &tone,
		&focusAreas, &p.Color, &p.Weight, &isDefault, &isActive, &p.SortOrder)
	if err != nil {
		return nil, err
	}
	p.Tone = Tone(tone)
	p.FocusAreas = decodeStrings(focusAreas)
	p.IsDefault = isDefault != 0
	p.IsActive = isActive != 0
	return &p, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
