package storage

import "time"

// Tone is a persona's reviewing disposition.
type Tone string

const (
	ToneCritical      Tone = "critical"
	ToneSupportive    Tone = "supportive"
	ToneNeutral       Tone = "neutral"
	ToneDevilAdvocate Tone = "devil_advocate"
	ToneTechnical     Tone = "technical"
)

// ValidTone reports whether t is a known persona tone.
func ValidTone(t Tone) bool {
	switch t {
	case ToneCritical, ToneSupportive, ToneNeutral, ToneDevilAdvocate, ToneTechnical:
		return true
	}
	return false
}

// Persona is a configured reviewer identity. Immutable while a review
// that references it is running; mutated only between reviews.
type Persona struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Description  string   `json:"description,omitempty"`
	SystemPrompt string   `json:"system_prompt"`
	Tone         Tone     `json:"tone"`
	FocusAreas   []string `json:"focus_areas"`
	Color        string   `json:"color"`
	// Weight multiplies this persona's influence on the verdict.
	// Clamped to [0, 5] at the configuration boundary; the engine
	// treats any negative value as an error.
	Weight    float64 `json:"weight"`
	IsDefault bool    `json:"is_default"`
	IsActive  bool    `json:"is_active"`
	SortOrder int     `json:"sort_order"`
}

// Document is a reviewable text with a linear version history.
type Document struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Content     string    `json:"content"`
	LineCount   int       `json:"line_count"`
	Version     int       `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// DocumentVersion is one entry in a document's history.
type DocumentVersion struct {
	DocumentID string    `json:"document_id"`
	Version    int       `json:"version"`
	Message    string    `json:"message"`
	CreatedAt  time.Time `json:"created_at"`
}

// Snapshot is the frozen document state a review runs against.
type Snapshot struct {
	DocumentID string `json:"document_id"`
	Version    int    `json:"version"`
	Content    string `json:"content"`
	LineCount  int    `json:"line_count"`
}

// ReviewStatus is the lifecycle state of a review. Transitions are
// monotonic: pending -> running -> {completed, failed}.
type ReviewStatus string

const (
	ReviewPending   ReviewStatus = "pending"
	ReviewRunning   ReviewStatus = "running"
	ReviewCompleted ReviewStatus = "completed"
	ReviewFailed    ReviewStatus = "failed"
)

// Verdict is the synthesized overall recommendation.
type Verdict string

const (
	VerdictShipIt      Verdict = "ship_it"
	VerdictFixFirst    Verdict = "fix_first"
	VerdictMajorRework Verdict = "major_rework"
)

// Review is one orchestrated pass of the requested personas over one
// document snapshot. MetaVerdict and MetaConfidence are set iff
// Status is completed.
type Review struct {
	ID              string       `json:"id"`
	DocumentID      string       `json:"document_id"`
	DocumentVersion int          `json:"document_version"`
	PersonaIDs      []string     `json:"persona_ids"` // dispatch order
	Status          ReviewStatus `json:"status"`
	CreatedAt       time.Time    `json:"created_at"`
	CompletedAt     *time.Time   `json:"completed_at,omitempty"`
	MetaVerdict     *Verdict     `json:"meta_verdict,omitempty"`
	MetaConfidence  *float64     `json:"meta_confidence,omitempty"`
}

// Severity ranks a single comment's urgency.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Comment is a single persona's line-anchored critique. Never mutated
// after creation.
type Comment struct {
	ID           string    `json:"id"`
	ReviewID     string    `json:"review_id"`
	PersonaID    string    `json:"persona_id"`
	PersonaName  string    `json:"persona_name"`
	PersonaColor string    `json:"persona_color"`
	Content      string    `json:"content"`
	StartLine    int       `json:"start_line"`
	EndLine      int       `json:"end_line"`
	Severity     Severity  `json:"severity"`
	CreatedAt    time.Time `json:"created_at"`
}

// Category buckets a meta-comment by the kind of issue it raises.
type Category string

const (
	CategoryStructure     Category = "structure"
	CategoryClarity       Category = "clarity"
	CategoryTechnical     Category = "technical"
	CategorySecurity      Category = "security"
	CategoryAccessibility Category = "accessibility"
)

// MetaCommentSource preserves one originating comment verbatim so any
// synthesized statement can be traced back to its persona.
type MetaCommentSource struct {
	PersonaID       string `json:"persona_id"`
	PersonaName     string `json:"persona_name"`
	PersonaColor    string `json:"persona_color"`
	OriginalContent string `json:"original_content"`
}

// MetaComment aggregates one or more overlapping comments from the
// same review into a deduplicated critique.
type MetaComment struct {
	ID        string              `json:"id"`
	ReviewID  string              `json:"review_id"`
	Content   string              `json:"content"`
	StartLine int                 `json:"start_line"`
	EndLine   int                 `json:"end_line"`
	Sources   []MetaCommentSource `json:"sources"`
	Category  Category            `json:"category"`
	Priority  Severity            `json:"priority"`
	CreatedAt time.Time           `json:"created_at"`
}

// JobStatus is the queue state of a review job.
type JobStatus string

const (
	JobStatusQueued   JobStatus = "queued"
	JobStatusRunning  JobStatus = "running"
	JobStatusDone     JobStatus = "done"
	JobStatusFailed   JobStatus = "failed"
	JobStatusCanceled JobStatus = "canceled"
)

// Trigger records what started a review job.
type Trigger string

const (
	TriggerManual  Trigger = "manual"
	TriggerCI      Trigger = "ci"
	TriggerWebhook Trigger = "webhook"
)

// ReviewJob tracks one queued review request and its provenance. One
// job drives at most one review to completion; ErrorMessage carries
// the first fatal cause, not an aggregate.
type ReviewJob struct {
	ID           string     `json:"id"`
	DocumentID   string     `json:"document_id"`
	ReviewID     string     `json:"review_id,omitempty"`
	PersonaIDs   []string   `json:"persona_ids"`
	Status       JobStatus  `json:"status"`
	Provider     string     `json:"provider,omitempty"`
	Model        string     `json:"model,omitempty"`
	Trigger      Trigger    `json:"trigger"`
	ErrorMessage string     `json:"error_message,omitempty"`
	EnqueuedAt   time.Time  `json:"enqueued_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	WorkerID     string     `json:"worker_id,omitempty"`

	// Joined for convenience
	DocumentTitle string `json:"document_title,omitempty"`
}
