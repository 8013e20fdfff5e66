package caseload

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"

	"caseflow/domain/core"
)

// CanonicalTable is the validated, calendar-annotated case set of one session.
// It is immutable: every accessor returns copies and every filter returns a new table.
type CanonicalTable struct {
	rows     []CanonicalRow
	coverage DateRange

	fingerprintOnce sync.Once
	fingerprint     core.Hash
}

// NewCanonicalTable orders rows by date (stable) and derives the coverage from
// the first and last case dates.
func NewCanonicalTable(rows []CanonicalRow) *CanonicalTable {
	sorted := make([]CanonicalRow, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	var coverage DateRange
	if len(sorted) > 0 {
		coverage = NewDateRange(sorted[0].Date, sorted[len(sorted)-1].Date)
	}
	return &CanonicalTable{rows: sorted, coverage: coverage}
}

// withCoverage builds a derived table that keeps an explicit coverage. A
// department subset still covers the dates of the whole upload even when the
// department had no case on the first or last day.
func withCoverage(rows []CanonicalRow, coverage DateRange) *CanonicalTable {
	return &CanonicalTable{rows: rows, coverage: coverage}
}

// Len returns the number of rows.
func (t *CanonicalTable) Len() int {
	return len(t.rows)
}

// Rows returns a copy of the rows in date order.
func (t *CanonicalTable) Rows() []CanonicalRow {
	out := make([]CanonicalRow, len(t.rows))
	copy(out, t.rows)
	return out
}

// Each visits rows in date order without copying the slice.
func (t *CanonicalTable) Each(fn func(CanonicalRow)) {
	for _, row := range t.rows {
		fn(row)
	}
}

// Coverage is the date range the dataset speaks for.
func (t *CanonicalTable) Coverage() DateRange {
	return t.coverage
}

// Filter keeps rows matching pred; the coverage is unchanged.
func (t *CanonicalTable) Filter(pred func(CanonicalRow) bool) *CanonicalTable {
	kept := make([]CanonicalRow, 0, len(t.rows))
	for _, row := range t.rows {
		if pred(row) {
			kept = append(kept, row)
		}
	}
	return withCoverage(kept, t.coverage)
}

// Department is a Filter on one department.
func (t *CanonicalTable) Department(name string) *CanonicalTable {
	return t.Filter(func(r CanonicalRow) bool { return r.Department == name })
}

// Window keeps rows inside r and clips the coverage to r. A window disjoint
// from the coverage yields an empty table with zero coverage.
func (t *CanonicalTable) Window(r DateRange) *CanonicalTable {
	clipped, ok := t.coverage.Intersect(r)
	if !ok {
		return withCoverage(nil, DateRange{})
	}
	kept := make([]CanonicalRow, 0, len(t.rows))
	for _, row := range t.rows {
		if clipped.Contains(row.Date) {
			kept = append(kept, row)
		}
	}
	return withCoverage(kept, clipped)
}

// Departments returns the distinct departments in lexical order.
func (t *CanonicalTable) Departments() []string {
	return t.distinct(func(r CanonicalRow) []string { return []string{r.Department} })
}

// Surgeons returns the distinct individual surgeon names in lexical order.
func (t *CanonicalTable) Surgeons() []string {
	return t.distinct(func(r CanonicalRow) []string { return SplitSurgeons(r.Surgeon) })
}

func (t *CanonicalTable) distinct(keys func(CanonicalRow) []string) []string {
	seen := make(map[string]struct{})
	for _, row := range t.rows {
		for _, k := range keys(row) {
			if k != "" {
				seen[k] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Fingerprint hashes the table contents so callers can tell whether a session's
// dataset was replaced.
func (t *CanonicalTable) Fingerprint() core.Hash {
	t.fingerprintOnce.Do(func() {
		var b strings.Builder
		b.WriteString(t.coverage.String())
		for _, row := range t.rows {
			fmt.Fprintf(&b, "|%s,%s,%s,%g,%s,%s",
				core.FormatDate(row.Date), row.Department, row.Surgeon, row.Duration, row.ProcedureType, row.Outcome)
		}
		t.fingerprint = core.NewHash([]byte(b.String()))
	})
	return t.fingerprint
}

// SplitSurgeons splits a surgeon cell that lists several operators. Source
// systems separate names with line breaks; semicolons and the ideographic comma
// also occur. A name listed twice is returned once.
func SplitSurgeons(cell string) []string {
	fields := strings.FieldsFunc(cell, func(r rune) bool {
		return r == '\n' || r == '\r' || r == ';' || r == '、'
	})
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		if name := strings.TrimSpace(f); name != "" && !slices.Contains(names, name) {
			names = append(names, name)
		}
	}
	return names
}
