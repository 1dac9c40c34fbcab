package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/Bluesun-Networks/VOS/internal/storage"
)

var (
	cyan   = color.New(color.FgHiCyan).SprintFunc()
	green  = color.New(color.FgHiGreen).SprintFunc()
	yellow = color.New(color.FgHiYellow).SprintFunc()
	red    = color.New(color.FgHiRed).SprintFunc()
	faint  = color.New(color.Faint).SprintFunc()
)

// newTable creates a borderless left-aligned table for listings.
func newTable(headers []string) *tablewriter.Table {
	table := tablewriter.NewTable(os.Stdout,
		tablewriter.WithHeaderAlignment(tw.AlignLeft),
		tablewriter.WithRowAlignment(tw.AlignLeft),
		tablewriter.WithRendition(tw.Rendition{
			Borders: tw.BorderNone,
			Settings: tw.Settings{
				Lines:      tw.LinesNone,
				Separators: tw.SeparatorsNone,
			},
		}),
		tablewriter.WithPadding(tw.Padding{Left: "", Right: "  "}),
	)
	table.Header(headers)
	return table
}

func verdictColor(v storage.Verdict) string {
	switch v {
	case storage.VerdictShipIt:
		return green(string(v))
	case storage.VerdictFixFirst:
		return yellow(string(v))
	case storage.VerdictMajorRework:
		return red(string(v))
	default:
		return string(v)
	}
}

func jobStatusColor(s storage.JobStatus) string {
	switch s {
	case storage.JobStatusDone:
		return green(string(s))
	case storage.JobStatusRunning:
		return cyan(string(s))
	case storage.JobStatusFailed:
		return red(string(s))
	case storage.JobStatusCanceled:
		return yellow(string(s))
	default:
		return string(s)
	}
}

// shortID trims a UUID to its first segment for listings.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatAge(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
