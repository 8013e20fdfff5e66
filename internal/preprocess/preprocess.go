// Package preprocess turns raw case records into the canonical, calendar
// annotated table of a session. Row-level defects are absorbed into a
// RejectReport; only an input with no usable rows fails.
package preprocess

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"caseflow/adapters/coercer"
	"caseflow/domain/caseload"
	"caseflow/domain/core"
	"caseflow/internal"
	"caseflow/internal/calendar"
)

// RejectReason classifies why a raw record was excluded.
type RejectReason string

const (
	ReasonInvalidDate         RejectReason = "invalid_date"
	ReasonInvalidDuration     RejectReason = "invalid_duration"
	ReasonNonPositiveDuration RejectReason = "non_positive_duration"
	ReasonMissingDepartment   RejectReason = "missing_department"
	ReasonDuplicate           RejectReason = "duplicate"
)

// RejectedRow is a sampled offending record.
type RejectedRow struct {
	Row    int                `json:"row"`
	Reason RejectReason       `json:"reason"`
	Detail string             `json:"detail"`
	Record caseload.RawRecord `json:"record"`
}

// RejectReport tells analysts how much data was excluded and why.
type RejectReport struct {
	Count    int                  `json:"count"`
	ByReason map[RejectReason]int `json:"by_reason"`
	Samples  []RejectedRow        `json:"samples"`
}

// Reasons returns the reasons present in the report in lexical order.
func (r RejectReport) Reasons() []RejectReason {
	out := make([]RejectReason, 0, len(r.ByReason))
	for reason := range r.ByReason {
		out = append(out, reason)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r *RejectReport) add(row RejectedRow, sampleSize int) {
	r.Count++
	r.ByReason[row.Reason]++
	if len(r.Samples) < sampleSize {
		r.Samples = append(r.Samples, row)
	}
}

// Options controls cleaning.
type Options struct {
	Deduplicate      bool
	RejectSampleSize int
	DateLayouts      []string
}

// DefaultOptions deduplicates and keeps five reject samples.
func DefaultOptions() Options {
	return Options{Deduplicate: true, RejectSampleSize: 5}
}

// Preprocessor validates, deduplicates and annotates raw records.
type Preprocessor struct {
	cal     *calendar.Calendar
	opts    Options
	coercer *coercer.Coercer
	logger  *internal.Logger
}

// New creates a preprocessor. A nil logger falls back to the default logger.
func New(cal *calendar.Calendar, opts Options, logger *internal.Logger) *Preprocessor {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	if opts.RejectSampleSize < 0 {
		opts.RejectSampleSize = 0
	}
	return &Preprocessor{
		cal:     cal,
		opts:    opts,
		coercer: coercer.New(opts.DateLayouts...),
		logger:  logger.With("preprocess"),
	}
}

type dedupKey struct {
	date       time.Time
	department string
	surgeon    string
	duration   float64
}

// Preprocess builds the canonical table. The conservation law holds for every
// input: table.Len() + report.Count == len(raw). The raw slice is not modified.
func (p *Preprocessor) Preprocess(raw []caseload.RawRecord) (*caseload.CanonicalTable, RejectReport, error) {
	report := RejectReport{ByReason: make(map[RejectReason]int)}
	rows := make([]caseload.CanonicalRow, 0, len(raw))
	seen := make(map[dedupKey]int)

	for i, rec := range raw {
		rowNum := rec.Row
		if rowNum == 0 {
			rowNum = i + 1
		}

		cr, reason, detail := p.clean(rec)
		if reason != "" {
			report.add(RejectedRow{Row: rowNum, Reason: reason, Detail: detail, Record: rec}, p.opts.RejectSampleSize)
			continue
		}

		if p.opts.Deduplicate {
			key := dedupKey{date: cr.Date, department: cr.Department, surgeon: cr.Surgeon, duration: cr.Duration}
			if first, dup := seen[key]; dup {
				report.add(RejectedRow{
					Row:    rowNum,
					Reason: ReasonDuplicate,
					Detail: "duplicate of row " + strconv.Itoa(first),
					Record: rec,
				}, p.opts.RejectSampleSize)
				continue
			}
			seen[key] = rowNum
		}

		rows = append(rows, p.cal.Annotate(cr))
	}

	if len(rows) == 0 {
		p.logger.Error("no usable rows: %d of %d rejected", report.Count, len(raw))
		return nil, report, core.NewFatalIngestError(len(raw), report.Count)
	}

	table := caseload.NewCanonicalTable(rows)
	if report.Count > 0 {
		p.logger.Warn("rejected %d of %d rows %v", report.Count, len(raw), report.ByReason)
	}
	p.logger.Info("canonical table: %d rows covering %s", table.Len(), table.Coverage())
	return table, report, nil
}

func (p *Preprocessor) clean(rec caseload.RawRecord) (caseload.CaseRecord, RejectReason, string) {
	date, ok := p.coercer.Date(rec.Date)
	if !ok {
		return caseload.CaseRecord{}, ReasonInvalidDate, fmt.Sprintf("unparseable date %v", rec.Date)
	}

	duration, ok := p.coercer.Minutes(rec.Duration)
	if !ok {
		return caseload.CaseRecord{}, ReasonInvalidDuration, fmt.Sprintf("unparseable duration %v", rec.Duration)
	}
	if duration <= 0 {
		return caseload.CaseRecord{}, ReasonNonPositiveDuration, fmt.Sprintf("duration %g", duration)
	}

	department := p.coercer.Text(rec.Department)
	if department == "" {
		return caseload.CaseRecord{}, ReasonMissingDepartment, "empty department"
	}

	return caseload.CaseRecord{
		Date:          date,
		Department:    department,
		Surgeon:       p.coercer.Text(rec.Surgeon),
		Duration:      duration,
		ProcedureType: p.coercer.Text(rec.ProcedureType),
		Outcome:       p.coercer.Text(rec.Outcome),
	}, "", ""
}
