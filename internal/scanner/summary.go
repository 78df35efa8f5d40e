package scanner

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/eddiefleurent/portfolio_scanner/internal/models"
)

const ellipsis = "..."

// Summary renders the recommendations of completed analyzers as text, one
// section per strategy in models.AllStrategies order. NONE recommendations
// and failed analyzers are left out. Each line is at most width runes.
func Summary(outcomes []ScanOutcome, names map[string]string, width int) string {
	byStrategy := make(map[models.Strategy][]models.Recommendation)
	total := 0
	for _, o := range outcomes {
		done, ok := o.(*CompletedOutcome)
		if !ok {
			continue
		}
		for _, rec := range done.Recommendations {
			if rec.Action == models.ActionNone {
				continue
			}
			byStrategy[done.Strategy] = append(byStrategy[done.Strategy], rec)
			total++
		}
	}

	if total == 0 {
		return "No recommendations"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d recommendation(s)", total)

	for _, strategy := range models.AllStrategies {
		recs := byStrategy[strategy]
		if len(recs) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n\n%s (%d)", strategy.Title(), len(recs))
		for _, rec := range recs {
			b.WriteString("\n")
			b.WriteString(summaryLine(rec, names, width))
		}
	}
	return b.String()
}

func summaryLine(rec models.Recommendation, names map[string]string, width int) string {
	account := names[rec.AccountID]
	if account == "" {
		account = rec.AccountID
	}
	body := fmt.Sprintf("- [%s] %s %s (%s): %s", account, rec.Symbol, rec.Action, rec.Confidence, rec.Reason)
	return fitLine(body, lineSuffix(rec.Metrics), width)
}

// lineSuffix lists DTE and assignment probability when the snapshot has them.
func lineSuffix(m models.MetricsSnapshot) string {
	var parts []string
	if m.DTE > 0 {
		parts = append(parts, fmt.Sprintf("%dd", m.DTE))
	}
	if m.AssignmentProbability != nil {
		parts = append(parts, fmt.Sprintf("%.0f%% assign", *m.AssignmentProbability))
	}
	if len(parts) == 0 {
		return ""
	}
	return " [" + strings.Join(parts, ", ") + "]"
}

// fitLine truncates body so that body+suffix fits in width runes. The suffix
// is kept whenever there is room for it.
func fitLine(body, suffix string, width int) string {
	if width <= 0 {
		return body + suffix
	}
	suffixLen := utf8.RuneCountInString(suffix)
	if suffixLen+len(ellipsis) >= width {
		return truncate(body+suffix, width)
	}
	return truncate(body, width-suffixLen) + suffix
}

func truncate(s string, width int) string {
	if utf8.RuneCountInString(s) <= width {
		return s
	}
	if width <= len(ellipsis) {
		return string([]rune(s)[:width])
	}
	return string([]rune(s)[:width-len(ellipsis)]) + ellipsis
}
