package persona

import (
	"fmt"
	"io"
	"os"

	"github.com/Bluesun-Networks/VOS/internal/storage"
	"gopkg.in/yaml.v3"
)

// reviewOutputContract is appended to every persona system prompt so
// the provider returns line-anchored comments the engine can parse.
const reviewOutputContract = `

Return ONLY a JSON array of review comments. Each comment is an object:
- "content": the critique text
- "start_line": first line the critique applies to (1-based)
- "end_line": last line the critique applies to (inclusive)
- "severity": one of "critical", "high", "medium", "low"
No markdown fencing, no prose outside the JSON array. Return [] if you
have no comments.`

// Defaults returns the built-in persona seed set. IDs are stable so
// re-seeding is idempotent.
func Defaults() []storage.Persona {
	return []storage.Persona{
		{
			ID:           "default-critical",
			Name:         "Harsh Critic",
			Description:  "Finds every weakness and pulls no punches",
			SystemPrompt: "You are a harsh, exacting reviewer. Hunt for flaws in reasoning, structure, and evidence. Call out anything vague, unsupported, or sloppy." + reviewOutputContract,
			Tone:         storage.ToneCritical,
			FocusAreas:   []string{"structure", "clarity"},
			Color:        "#ef4444",
			Weight:       1.0,
			IsDefault:    true,
			IsActive:     true,
			SortOrder:    0,
		},
		{
			ID:           "default-supportive",
			Name:         "Supportive Editor",
			Description:  "Constructive feedback focused on readability",
			SystemPrompt: "You are a supportive editor. Point out passages that could read better and suggest concrete improvements, keeping the author's voice intact." + reviewOutputContract,
			Tone:         storage.ToneSupportive,
			FocusAreas:   []string{"clarity", "accessibility"},
			Color:        "#22c55e",
			Weight:       1.0,
			IsDefault:    true,
			IsActive:     true,
			SortOrder:    1,
		},
		{
			ID:           "default-technical",
			Name:         "Technical Reviewer",
			Description:  "Verifies technical claims and security posture",
			SystemPrompt: "You are a rigorous technical reviewer. Verify every technical claim, flag incorrect or outdated statements, and scrutinize anything with security implications." + reviewOutputContract,
			Tone:         storage.ToneTechnical,
			FocusAreas:   []string{"technical", "security"},
			Color:        "#6366f1",
			Weight:       2.0,
			IsDefault:    true,
			IsActive:     true,
			SortOrder:    2,
		},
	}
}

// SeedDefaults inserts the built-in personas if the registry is
// empty. Returns the number seeded.
func (r *Registry) SeedDefaults() (int, error) {
	existing, err := r.store.ListPersonas(false)
	if err != nil {
		return 0, err
	}
	if len(existing) > 0 {
		return 0, nil
	}

	defaults := Defaults()
	for i := range defaults {
		if err := r.store.SavePersona(&defaults[i]); err != nil {
			return i, fmt.Errorf("seed persona %q: %w", defaults[i].Name, err)
		}
	}
	return len(defaults), nil
}

// personaFile is the YAML import/export shape.
type personaFile struct {
	Personas []personaYAML `yaml:"personas"`
}

type personaYAML struct {
	ID           string   `yaml:"id,omitempty"`
	Name         string   `yaml:"name"`
	Description  string   `yaml:"description,omitempty"`
	SystemPrompt string   `yaml:"system_prompt"`
	Tone         string   `yaml:"tone,omitempty"`
	FocusAreas   []string `yaml:"focus_areas,omitempty"`
	Color        string   `yaml:"color,omitempty"`
	Weight       *float64 `yaml:"weight,omitempty"`
	Active       *bool    `yaml:"active,omitempty"`
	SortOrder    int      `yaml:"sort_order,omitempty"`
}

// ImportFile loads personas from a YAML file into the registry.
// Returns the number imported.
func (r *Registry) ImportFile(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return r.Import(f)
}

// Import reads a YAML persona file and saves each entry. Weight
// defaults to 1.0 and is clamped to [0, 5]; this is the configuration
// boundary the engine's negative-weight check backstops.
func (r *Registry) Import(src io.Reader) (int, error) {
	var file personaFile
	dec := yaml.NewDecoder(src)
	if err := dec.Decode(&file); err != nil {
		return 0, fmt.Errorf("parse persona file: %w", err)
	}
	if len(file.Personas) == 0 {
		return 0, fmt.Errorf("persona file has no personas")
	}

	for i, py := range file.Personas {
		p := storage.Persona{
			ID:           py.ID,
			Name:         py.Name,
			Description:  py.Description,
			SystemPrompt: py.SystemPrompt,
			Tone:         storage.Tone(py.Tone),
			FocusAreas:   py.FocusAreas,
			Color:        py.Color,
			Weight:       1.0,
			IsActive:     true,
			SortOrder:    py.SortOrder,
		}
		if py.Tone == "" {
			p.Tone = storage.ToneNeutral
		}
		if py.Color == "" {
			p.Color = "#6366f1"
		}
		if py.Weight != nil {
			p.Weight = *py.Weight
		}
		if p.Weight < 0 {
			p.Weight = 0
		} else if p.Weight > 5 {
			p.Weight = 5
		}
		if py.Active != nil {
			p.IsActive = *py.Active
		}
		if err := r.store.SavePersona(&p); err != nil {
			return i, fmt.Errorf("import persona %q: %w", py.Name, err)
		}
	}
	return len(file.Personas), nil
}

// Export writes all personas as YAML.
func (r *Registry) Export(dst io.Writer) error {
	personas, err := r.store.ListPersonas(false)
	if err != nil {
		return err
	}

	file := personaFile{}
	for _, p := range personas {
		w := p.Weight
		active := p.IsActive
		file.Personas = append(file.Personas, personaYAML{
			ID:           p.ID,
			Name:         p.Name,
			Description:  p.Description,
			SystemPrompt: p.SystemPrompt,
			Tone:         string(p.Tone),
			FocusAreas:   p.FocusAreas,
			Color:        p.Color,
			Weight:       &w,
			Active:       &active,
			SortOrder:    p.SortOrder,
		})
	}

	enc := yaml.NewEncoder(dst)
	defer enc.Close()
	return enc.Encode(file)
}
