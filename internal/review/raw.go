// Package review implements the review orchestration engine: fanning
// a document out to persona reviewers, anchoring their comments, and
// synthesizing a meta-review with an overall verdict.
package review

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Bluesun-Networks/VOS/internal/storage"
)

// RawComment is one untrusted comment from a persona's model output.
// Nothing here is validated yet; that happens at the anchoring
// boundary.
type RawComment struct {
	Content   string `json:"content"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
	Severity  string `json:"severity,omitempty"`
}

// ParseRawComments decodes a provider's output into raw comments.
// Models wrap JSON in markdown fences often enough that stripping
// them here is table stakes.
func ParseRawComments(output string) ([]RawComment, error) {
	text := strings.TrimSpace(output)
	if strings.HasPrefix(text, "```") {
		lines := strings.SplitN(text, "\n", 2)
		if len(lines) > 1 {
			text = lines[1]
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}

	var comments []RawComment
	if err := json.Unmarshal([]byte(text), &comments); err != nil {
		return nil, fmt.Errorf("parse review output as JSON: %w", err)
	}
	return comments, nil
}

// normalizeSeverity maps the untrusted severity string onto the
// known scale, defaulting to medium.
func normalizeSeverity(s string) storage.Severity {
	switch storage.Severity(strings.ToLower(strings.TrimSpace(s))) {
	case storage.SeverityCritical:
		return storage.SeverityCritical
	case storage.SeverityHigh:
		return storage.SeverityHigh
	case storage.SeverityLow:
		return storage.SeverityLow
	default:
		return storage.SeverityMedium
	}
}
