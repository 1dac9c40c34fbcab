package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/Bluesun-Networks/VOS/internal/daemon"
	"github.com/Bluesun-Networks/VOS/internal/storage"
	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
)

func showCmd() *cobra.Command {
	var jsonOutput bool
	var plain bool

	cmd := &cobra.Command{
		Use:   "show <review-id>",
		Short: "Show a review's meta-comments and verdict",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := getClient()
			if err != nil {
				return err
			}
			detail, err := client.GetReview(args[0])
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(detail)
			}

			md := renderReviewMarkdown(detail)
			if plain {
				fmt.Print(md)
				return nil
			}

			r, err := glamour.NewTermRenderer(
				glamour.WithAutoStyle(),
				glamour.WithWordWrap(100),
			)
			if err != nil {
				fmt.Print(md)
				return nil
			}
			out, err := r.Render(md)
			if err != nil {
				fmt.Print(md)
				return nil
			}
			fmt.Print(out)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output raw JSON")
	cmd.Flags().BoolVar(&plain, "plain", false, "print markdown without terminal styling")
	return cmd
}

// renderReviewMarkdown builds the meta-review as markdown. Failed
// reviews render their status; completed reviews lead with the verdict
// and list meta-comments by priority order of appearance.
func renderReviewMarkdown(detail *daemon.ReviewDetail) string {
	var b strings.Builder
	r := detail.Review

	fmt.Fprintf(&b, "# Review %s\n\n", r.ID)
	fmt.Fprintf(&b, "- Document: %s (v%d)\n", r.DocumentID, r.DocumentVersion)
	fmt.Fprintf(&b, "- Status: %s\n", r.Status)
	if r.MetaVerdict != nil {
		fmt.Fprintf(&b, "- Verdict: **%s**", *r.MetaVerdict)
		if r.MetaConfidence != nil {
			fmt.Fprintf(&b, " (confidence %.0f%%)", *r.MetaConfidence*100)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if r.Status != storage.ReviewCompleted {
		return b.String()
	}

	if len(detail.MetaComments) == 0 {
		b.WriteString("No issues raised.\n")
		return b.String()
	}

	b.WriteString("## Meta-review\n\n")
	for _, mc := range detail.MetaComments {
		lines := fmt.Sprintf("L%d", mc.StartLine)
		if mc.EndLine != mc.StartLine {
			lines = fmt.Sprintf("L%d-%d", mc.StartLine, mc.EndLine)
		}
		fmt.Fprintf(&b, "### %s · %s · %s\n\n", lines, mc.Category, mc.Priority)
		b.WriteString(mc.Content)
		b.WriteString("\n\n")
		if len(mc.Sources) > 1 {
			names := make([]string, 0, len(mc.Sources))
			seen := map[string]bool{}
			for _, src := range mc.Sources {
				if !seen[src.PersonaName] {
					seen[src.PersonaName] = true
					names = append(names, src.PersonaName)
				}
			}
			fmt.Fprintf(&b, "_%d reviewers agree: %s_\n\n", len(names), strings.Join(names, ", "))
		}
	}

	if len(detail.Comments) > 0 {
		fmt.Fprintf(&b, "## Individual comments (%d)\n\n", len(detail.Comments))
		for _, c := range detail.Comments {
			lines := fmt.Sprintf("L%d", c.StartLine)
			if c.EndLine != c.StartLine {
				lines = fmt.Sprintf("L%d-%d", c.StartLine, c.EndLine)
			}
			fmt.Fprintf(&b, "- **%s** [%s, %s] %s\n", c.PersonaName, lines, c.Severity, c.Content)
		}
	}
	return b.String()
}
