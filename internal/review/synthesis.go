package review

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/Bluesun-Networks/VOS/internal/storage"
	"github.com/google/uuid"
)

// SynthesisResult is the meta-review produced from all persona
// comments: deduplicated meta-comments, an overall verdict, and the
// weighted agreement behind it.
type SynthesisResult struct {
	MetaComments []storage.MetaComment
	Verdict      storage.Verdict
	Confidence   float64
}

// singlePersonaConfidenceCap bounds confidence when only one persona
// produced results. Agreement from a single source is weaker evidence
// than a quorum, whatever its weight.
const singlePersonaConfidenceCap = 0.75

// severityRank orders severities for max/priority comparisons.
var severityRank = map[storage.Severity]int{
	storage.SeverityLow:      0,
	storage.SeverityMedium:   1,
	storage.SeverityHigh:     2,
	storage.SeverityCritical: 3,
}

// verdictRank orders verdicts from permissive to conservative. Ties
// break toward the higher rank.
var verdictRank = map[storage.Verdict]int{
	storage.VerdictShipIt:      0,
	storage.VerdictFixFirst:    1,
	storage.VerdictMajorRework: 2,
}

// Synthesize builds the meta-review for one review. participants are
// the personas whose invocations succeeded (in dispatch order);
// comments are their anchored comments. The algorithm is
// deterministic: identical inputs produce identical clusters,
// categories, priorities, verdict, and confidence regardless of
// arrival order.
//
// Synthesis never fails hard. With zero participants it returns
// (ship_it, 0, nil); the orchestrator only reaches that path on a
// review already marked failed, so hitting it with comments present
// is logged as a defect rather than masked.
func Synthesize(reviewID string, comments []storage.Comment, participants []storage.Persona) SynthesisResult {
	if len(participants) == 0 {
		if len(comments) > 0 {
			log.Printf("[synthesis] defect: %d comments with zero participating personas (review %s)",
				len(comments), reviewID)
		}
		return SynthesisResult{Verdict: storage.VerdictShipIt, Confidence: 0}
	}

	// Persona dispatch order doubles as the deterministic tiebreak.
	order := make(map[string]int, len(participants))
	byID := make(map[string]storage.Persona, len(participants))
	for i, p := range participants {
		order[p.ID] = i
		byID[p.ID] = p
	}

	clusters := cluster(comments, order)
	metas := make([]storage.MetaComment, 0, len(clusters))
	for _, cl := range clusters {
		metas = append(metas, buildMetaComment(reviewID, cl, byID, order))
	}

	verdict, confidence := vote(comments, participants)
	return SynthesisResult{
		MetaComments: metas,
		Verdict:      verdict,
		Confidence:   confidence,
	}
}

// cluster groups comments whose line ranges overlap. Overlap, not
// exact equality, is the key: independent personas rarely pick
// identical boundaries for the same issue. A comment with no
// overlapping peer forms a singleton cluster.
func cluster(comments []storage.Comment, order map[string]int) [][]storage.Comment {
	sorted := make([]storage.Comment, len(comments))
	copy(sorted, comments)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.StartLine != b.StartLine {
			return a.StartLine < b.StartLine
		}
		if a.EndLine != b.EndLine {
			return a.EndLine < b.EndLine
		}
		if order[a.PersonaID] != order[b.PersonaID] {
			return order[a.PersonaID] < order[b.PersonaID]
		}
		return a.Content < b.Content
	})

	var clusters [][]storage.Comment
	var current []storage.Comment
	maxEnd := 0
	for _, c := range sorted {
		if len(current) > 0 && c.StartLine <= maxEnd {
			current = append(current, c)
			if c.EndLine > maxEnd {
				maxEnd = c.EndLine
			}
			continue
		}
		if len(current) > 0 {
			clusters = append(clusters, current)
		}
		current = []storage.Comment{c}
		maxEnd = c.EndLine
	}
	if len(current) > 0 {
		clusters = append(clusters, current)
	}
	return clusters
}

func buildMetaComment(reviewID string, cl []storage.Comment, byID map[string]storage.Persona, order map[string]int) storage.MetaComment {
	startLine, endLine := cl[0].StartLine, cl[0].EndLine
	priority := cl[0].Severity
	for _, c := range cl[1:] {
		if c.StartLine < startLine {
			startLine = c.StartLine
		}
		if c.EndLine > endLine {
			endLine = c.EndLine
		}
		if severityRank[c.Severity] > severityRank[priority] {
			priority = c.Severity
		}
	}

	sources := make([]storage.MetaCommentSource, 0, len(cl))
	for _, c := range cl {
		sources = append(sources, storage.MetaCommentSource{
			PersonaID:       c.PersonaID,
			PersonaName:     c.PersonaName,
			PersonaColor:    c.PersonaColor,
			OriginalContent: c.Content,
		})
	}

	return storage.MetaComment{
		ID:        uuid.NewString(),
		ReviewID:  reviewID,
		Content:   composeContent(cl),
		StartLine: startLine,
		EndLine:   endLine,
		Sources:   sources,
		Category:  clusterCategory(cl, byID, order),
		Priority:  priority,
		CreatedAt: time.Now().UTC(),
	}
}

// clusterCategory takes the category from the highest-weight persona
// in the cluster (dispatch order breaks weight ties).
func clusterCategory(cl []storage.Comment, byID map[string]storage.Persona, order map[string]int) storage.Category {
	lead := byID[cl[0].PersonaID]
	leadOrder := order[cl[0].PersonaID]
	for _, c := range cl[1:] {
		p := byID[c.PersonaID]
		if p.Weight > lead.Weight || (p.Weight == lead.Weight && order[p.ID] < leadOrder) {
			lead, leadOrder = p, order[p.ID]
		}
	}
	return personaCategory(lead)
}

// personaCategory maps a persona's focus areas (first recognized one
// wins) and tone onto a meta-comment category.
func personaCategory(p storage.Persona) storage.Category {
	for _, area := range p.FocusAreas {
		switch storage.Category(strings.ToLower(strings.TrimSpace(area))) {
		case storage.CategoryStructure:
			return storage.CategoryStructure
		case storage.CategoryClarity:
			return storage.CategoryClarity
		case storage.CategoryTechnical:
			return storage.CategoryTechnical
		case storage.CategorySecurity:
			return storage.CategorySecurity
		case storage.CategoryAccessibility:
			return storage.CategoryAccessibility
		}
	}
	if p.Tone == storage.ToneTechnical {
		return storage.CategoryTechnical
	}
	return storage.CategoryClarity
}

// composeContent synthesizes the meta-comment text. A singleton
// cluster keeps its source verbatim; a merged cluster summarizes and
// lists each reviewer's take. Sources always carry the originals, so
// every synthesized line traces back to a persona.
func composeContent(cl []storage.Comment) string {
	if len(cl) == 1 {
		return cl[0].Content
	}

	names := make([]string, 0, len(cl))
	seen := make(map[string]bool)
	for _, c := range cl {
		if !seen[c.PersonaName] {
			seen[c.PersonaName] = true
			names = append(names, c.PersonaName)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Raised by %s:\n", strings.Join(names, ", "))
	for _, c := range cl {
		fmt.Fprintf(&b, "- [%s] %s\n", c.PersonaName, c.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}

// personaVerdict derives one persona's implicit vote from its
// comments: any critical means major_rework, any high (without
// critical) means fix_first, anything else ships. A persona with no
// comments reviewed the document and found nothing blocking.
func personaVerdict(comments []storage.Comment) storage.Verdict {
	verdict := storage.VerdictShipIt
	for _, c := range comments {
		switch c.Severity {
		case storage.SeverityCritical:
			return storage.VerdictMajorRework
		case storage.SeverityHigh:
			verdict = storage.VerdictFixFirst
		}
	}
	return verdict
}

// vote computes the weighted-majority verdict across participating
// personas and the agreement ratio behind it.
func vote(comments []storage.Comment, participants []storage.Persona) (storage.Verdict, float64) {
	byPersona := make(map[string][]storage.Comment)
	for _, c := range comments {
		byPersona[c.PersonaID] = append(byPersona[c.PersonaID], c)
	}

	tally := make(map[storage.Verdict]float64)
	var totalWeight float64
	for _, p := range participants {
		tally[personaVerdict(byPersona[p.ID])] += p.Weight
		totalWeight += p.Weight
	}

	// Weighted majority; ties break toward the conservative verdict.
	winner := storage.VerdictShipIt
	for _, v := range []storage.Verdict{storage.VerdictFixFirst, storage.VerdictMajorRework} {
		if tally[v] > tally[winner] || (tally[v] == tally[winner] && verdictRank[v] > verdictRank[winner]) {
			winner = v
		}
	}

	var confidence float64
	if totalWeight > 0 {
		confidence = tally[winner] / totalWeight
	}
	if len(participants) == 1 && confidence > singlePersonaConfidenceCap {
		confidence = singlePersonaConfidenceCap
	}
	return winner, confidence
}
