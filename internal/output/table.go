package output

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/caresearch/medrank/internal/rank"
)

// Shortlist renders ranked practitioners as an aligned table. When
// explain is true each row is followed by its score breakdown.
func (w *Writer) Shortlist(results []*rank.ScoredResult, explain bool) {
	if len(results) == 0 {
		w.Status("", "No practitioners matched")
		return
	}

	hasDistance := false
	for _, r := range results {
		if r.Practitioner != nil && r.Practitioner.Distance != nil {
			hasDistance = true
			break
		}
	}

	// ANSI codes would skew tabwriter column widths, so the table
	// itself is never colored.
	tw := tabwriter.NewWriter(w.out, 0, 4, 2, ' ', 0)
	header := "RANK\tNAME\tSPECIALTY\tSCORE"
	if hasDistance {
		header += "\tDISTANCE"
	}
	_, _ = fmt.Fprintln(tw, header)

	for _, r := range results {
		p := r.Practitioner
		if p == nil {
			continue
		}
		row := fmt.Sprintf("%d\t%s\t%s\t%.2f", r.Rank, displayName(p.Title, p.Name), truncate(p.Specialty, 34), r.Score)
		if hasDistance {
			row += "\t" + formatDistance(p.Distance)
		}
		_, _ = fmt.Fprintln(tw, row)
	}
	_ = tw.Flush()

	if explain {
		w.Newline()
		for _, r := range results {
			if r.Practitioner == nil {
				continue
			}
			w.Detail(rank.Explain(r))
		}
	}
}

func displayName(title, name string) string {
	if title == "" {
		return name
	}
	if strings.HasPrefix(name, title) {
		return name
	}
	return title + " " + name
}

func formatDistance(miles *float64) string {
	if miles == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f mi", *miles)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
