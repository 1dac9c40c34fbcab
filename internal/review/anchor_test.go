package review

import (
	"strings"
	"testing"

	"github.com/Bluesun-Networks/VOS/internal/storage"
)

func testPersona() storage.Persona {
	return storage.Persona{
		ID:    "p1",
		Name:  "Harsh Critic",
		Color: "#ef4444",
	}
}

func TestAnchorCommentValid(t *testing.T) {
	c, err := AnchorComment(RawComment{
		Content:   "  unclear phrasing  ",
		StartLine: 3,
		EndLine:   5,
		Severity:  "HIGH",
	}, testPersona(), "r1", 10)
	if err != nil {
		t.Fatalf("AnchorComment: %v", err)
	}
	if c.Content != "unclear phrasing" {
		t.Errorf("content not trimmed: %q", c.Content)
	}
	if c.StartLine != 3 || c.EndLine != 5 {
		t.Errorf("range = %d-%d, want 3-5", c.StartLine, c.EndLine)
	}
	if c.Severity != storage.SeverityHigh {
		t.Errorf("severity = %s, want high", c.Severity)
	}
	if c.ReviewID != "r1" || c.PersonaID != "p1" || c.PersonaName != "Harsh Critic" {
		t.Errorf("provenance not carried: %+v", c)
	}
	if c.ID == "" {
		t.Error("comment ID not assigned")
	}
}

func TestAnchorCommentSwapsInvertedRange(t *testing.T) {
	c, err := AnchorComment(RawComment{
		Content:   "backwards range",
		StartLine: 8,
		EndLine:   2,
	}, testPersona(), "r1", 10)
	if err != nil {
		t.Fatalf("AnchorComment: %v", err)
	}
	if c.StartLine != 2 || c.EndLine != 8 {
		t.Errorf("range = %d-%d, want 2-8", c.StartLine, c.EndLine)
	}
}

func TestAnchorCommentRejections(t *testing.T) {
	tests := []struct {
		name string
		raw  RawComment
	}{
		{"empty content", RawComment{Content: "   ", StartLine: 1, EndLine: 1}},
		{"start below one", RawComment{Content: "x", StartLine: 0, EndLine: 3}},
		{"end past document", RawComment{Content: "x", StartLine: 5, EndLine: 41}},
		// Inverted and out of bounds: the swap repairs the order but
		// the resulting 10-50 still exceeds a 40-line document.
		{"inverted out of bounds", RawComment{Content: "x", StartLine: 50, EndLine: 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := AnchorComment(tt.raw, testPersona(), "r1", 40)
			if err == nil {
				t.Fatal("expected rejection")
			}
			if _, ok := err.(*AnchorError); !ok {
				t.Errorf("error type = %T, want *AnchorError", err)
			}
		})
	}
}

func TestAnchorAllDropsOnlyInvalid(t *testing.T) {
	raws := []RawComment{
		{Content: "first", StartLine: 1, EndLine: 2},
		{Content: "", StartLine: 3, EndLine: 3},
		{Content: "beyond", StartLine: 90, EndLine: 95},
		{Content: "last", StartLine: 9, EndLine: 10},
	}
	comments := AnchorAll(raws, testPersona(), "r1", 10)
	if len(comments) != 2 {
		t.Fatalf("got %d comments, want 2", len(comments))
	}
	if comments[0].Content != "first" || comments[1].Content != "last" {
		t.Errorf("wrong survivors: %+v", comments)
	}
}

func TestParseRawCommentsStripsFences(t *testing.T) {
	output := "```json\n[{\"content\":\"too long\",\"start_line\":1,\"end_line\":4,\"severity\":\"low\"}]\n```"
	raws, err := ParseRawComments(output)
	if err != nil {
		t.Fatalf("ParseRawComments: %v", err)
	}
	if len(raws) != 1 || raws[0].Content != "too long" || raws[0].Severity != "low" {
		t.Errorf("unexpected parse: %+v", raws)
	}
}

func TestParseRawCommentsEmptyArray(t *testing.T) {
	raws, err := ParseRawComments("[]")
	if err != nil {
		t.Fatalf("ParseRawComments: %v", err)
	}
	if len(raws) != 0 {
		t.Errorf("got %d raws, want 0", len(raws))
	}
}

func TestParseRawCommentsRejectsProse(t *testing.T) {
	if _, err := ParseRawComments("The document looks fine to me."); err == nil {
		t.Fatal("expected parse error for non-JSON output")
	}
}

func TestNormalizeSeverity(t *testing.T) {
	tests := []struct {
		in   string
		want storage.Severity
	}{
		{"critical", storage.SeverityCritical},
		{" High ", storage.SeverityHigh},
		{"LOW", storage.SeverityLow},
		{"medium", storage.SeverityMedium},
		{"blocker", storage.SeverityMedium},
		{"", storage.SeverityMedium},
	}
	for _, tt := range tests {
		if got := normalizeSeverity(tt.in); got != tt.want {
			t.Errorf("normalizeSeverity(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestAnchorCommentWholeDocumentRange(t *testing.T) {
	content := strings.Repeat("line\n", 40)
	lineCount := storage.CountLines(content)
	c, err := AnchorComment(RawComment{
		Content:   "overall structure",
		StartLine: 1,
		EndLine:   lineCount,
	}, testPersona(), "r1", lineCount)
	if err != nil {
		t.Fatalf("AnchorComment: %v", err)
	}
	if c.EndLine != 40 {
		t.Errorf("end = %d, want 40", c.EndLine)
	}
}
