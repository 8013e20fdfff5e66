// Package report renders session results as a Markdown document, with an HTML
// rendering for the browser.
package report

import (
	"bytes"
	"fmt"
	"strings"

	"caseflow/domain/caseload"
	"caseflow/domain/core"
	"caseflow/internal/calendar"
	"caseflow/internal/session"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

// Markdown writes the analysis and, when perf is non-nil, the target
// performance sections.
func Markdown(cal *calendar.Calendar, a *session.Analysis, perf *session.PerformanceReport) []byte {
	var b bytes.Buffer
	p := a.Params

	fmt.Fprintf(&b, "# Caseload report\n\n")
	fmt.Fprintf(&b, "- Session: `%s`\n", a.SessionID)
	fmt.Fprintf(&b, "- Window: %s\n", a.Window)
	fmt.Fprintf(&b, "- Granularity: %s, grouped by %s\n\n", p.Granularity, p.GroupBy)

	b.WriteString("## Ranking\n\n")
	if len(a.Ranking) == 0 {
		b.WriteString("No cases in the window.\n\n")
	} else {
		fmt.Fprintf(&b, "| Rank | %s | %s |\n|---:|---|---:|\n", keyHeading(p.GroupBy), metricHeading(p.Metric))
		for _, e := range a.Ranking {
			fmt.Fprintf(&b, "| %d | %s | %s |\n", e.Rank, cell(e.GroupingKey), number(e.MetricValue))
		}
		b.WriteString("\n")
	}

	b.WriteString("## Forecast\n\n")
	switch {
	case a.Forecast != nil:
		writeForecast(&b, cal, p, a.Forecast)
	case a.ForecastError != "":
		fmt.Fprintf(&b, "Not available: %s\n\n", a.ForecastError)
	default:
		b.WriteString("Not requested.\n\n")
	}

	b.WriteString("## Periods\n\n")
	fmt.Fprintf(&b, "| Period | %s | Cases | Minutes | Business days | Per business day |\n|---|---|---:|---:|---:|---:|\n", keyHeading(p.GroupBy))
	for _, g := range a.Aggregates {
		label := cal.Label(g.PeriodStart, g.Granularity)
		if !g.IsComplete {
			label += " (partial)"
		}
		fmt.Fprintf(&b, "| %s | %s | %d | %s | %d | %.2f |\n",
			label, cell(g.GroupingKey), g.CaseCount, number(g.TotalDuration), g.BusinessDayCount, g.PerBusinessDay())
	}
	b.WriteString("\n")

	if perf != nil {
		writePerformance(&b, perf)
	}
	return b.Bytes()
}

func writeForecast(b *bytes.Buffer, cal *calendar.Calendar, p session.Params, f *caseload.ForecastResult) {
	fmt.Fprintf(b, "Series `%s`, model **%s** (%s %.2f on held-out periods), %.0f%% interval.\n\n",
		p.ForecastKey, f.ModelName, strings.ToUpper(string(f.Metric)), f.ValidationScore, f.Confidence*100)
	b.WriteString("| Period | Forecast | Lower | Upper |\n|---|---:|---:|---:|\n")
	for i, start := range f.PeriodStarts {
		fmt.Fprintf(b, "| %s | %.1f | %.1f | %.1f |\n", cal.Label(start, p.Granularity), f.PointForecast[i], f.LowerBound[i], f.UpperBound[i])
	}
	b.WriteString("\n| Candidate | Status | Score | Note |\n|---|---|---:|---|\n")
	for _, c := range f.Candidates {
		score := "-"
		if c.Status != caseload.CandidateUnavailable {
			score = fmt.Sprintf("%.2f", c.Score)
		}
		fmt.Fprintf(b, "| %s | %s | %s | %s |\n", c.ModelName, c.Status, score, cell(c.Reason))
	}
	b.WriteString("\n")
}

func writePerformance(b *bytes.Buffer, perf *session.PerformanceReport) {
	k := perf.KPI
	b.WriteString("## Performance\n\n")
	fmt.Fprintf(b, "Last four complete weeks (%s): %d cases, %.1f per business day, median %s minutes, %d departments.\n\n",
		k.Window, k.TotalCases, k.CasesPerBusinessDay, number(k.MedianDuration), k.Departments)
	if len(perf.Departments) == 0 {
		return
	}
	b.WriteString("| Department | Weekly average | Latest week | Weekly target | Achievement |\n|---|---:|---:|---:|---:|\n")
	for _, d := range perf.Departments {
		fmt.Fprintf(b, "| %s | %.1f | %d | %.1f | %.1f%% |\n", cell(d.Department), d.WeeklyAverage, d.LatestWeekCases, d.WeeklyTarget, d.AchievementRate)
	}
	b.WriteString("\n")
	if n := len(perf.Cumulative); n > 0 {
		last := perf.Cumulative[n-1]
		fmt.Fprintf(b, "Fiscal year to %s: %d cases against a cumulative target of %s.\n\n",
			core.FormatDate(last.WeekStart), last.CumulativeActual, number(last.CumulativeTarget))
	}
}

// HTML renders a Markdown report as an HTML fragment.
func HTML(md []byte) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions)
	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags})
	return markdown.ToHTML(md, p, renderer)
}

func keyHeading(g caseload.GroupBy) string {
	switch g {
	case caseload.GroupSurgeon:
		return "Surgeon"
	case caseload.GroupAll:
		return "Series"
	default:
		return "Department"
	}
}

func metricHeading(m caseload.Metric) string {
	if m == caseload.MetricTotalDuration {
		return "Minutes"
	}
	return "Cases"
}

func cell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

func number(v float64) string {
	return fmt.Sprintf("%.0f", v)
}
