package review

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/Bluesun-Networks/VOS/internal/storage"
	"github.com/google/uuid"
)

// AnchorError reports why a single raw comment was rejected. It only
// ever drops the one comment, never the persona's batch.
type AnchorError struct {
	Reason string
}

func (e *AnchorError) Error() string {
	return "anchor comment: " + e.Reason
}

// AnchorComment validates and normalizes one raw comment against the
// document's line count. Inverted ranges are swapped (model output is
// untrusted free text; inverted bounds are common enough to repair);
// out-of-range bounds reject the comment.
func AnchorComment(raw RawComment, p storage.Persona, reviewID string, lineCount int) (*storage.Comment, error) {
	content := strings.TrimSpace(raw.Content)
	if content == "" {
		return nil, &AnchorError{Reason: "empty content"}
	}

	start, end := raw.StartLine, raw.EndLine
	if start > end {
		start, end = end, start
	}
	if start < 1 || end > lineCount {
		return nil, &AnchorError{Reason: fmt.Sprintf(
			"range %d-%d out of bounds for %d-line document", start, end, lineCount)}
	}

	return &storage.Comment{
		ID:           uuid.NewString(),
		ReviewID:     reviewID,
		PersonaID:    p.ID,
		PersonaName:  p.Name,
		PersonaColor: p.Color,
		Content:      content,
		StartLine:    start,
		EndLine:      end,
		Severity:     normalizeSeverity(raw.Severity),
		CreatedAt:    time.Now().UTC(),
	}, nil
}

// AnchorAll anchors a persona's raw comments, dropping (and logging)
// any that fail validation. A malformed comment never aborts an
// otherwise-valid batch.
func AnchorAll(raws []RawComment, p storage.Persona, reviewID string, lineCount int) []storage.Comment {
	var comments []storage.Comment
	for _, raw := range raws {
		c, err := AnchorComment(raw, p, reviewID, lineCount)
		if err != nil {
			log.Printf("[anchor] dropping comment from persona %s: %v", p.Name, err)
			continue
		}
		comments = append(comments, *c)
	}
	return comments
}
