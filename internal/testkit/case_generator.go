package testkit

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"caseflow/domain/caseload"
	"caseflow/domain/core"
	"caseflow/internal/calendar"
)

// CaseGeneratorConfig configures the synthetic surgical case generator
type CaseGeneratorConfig struct {
	Departments      []string  `json:"departments"`
	SurgeonsPerDept  int       `json:"surgeons_per_dept"`
	BusinessDayMean  float64   `json:"business_day_mean"` // cases per department per business day
	WeekendMean      float64   `json:"weekend_mean"`
	MultiSurgeonRate float64   `json:"multi_surgeon_rate"`
	MalformedRate    float64   `json:"malformed_rate"` // share of rows with a broken date or duration
	DuplicateRate    float64   `json:"duplicate_rate"`
	StartDate        time.Time `json:"start_date"`
	EndDate          time.Time `json:"end_date"`
	Seed             int64     `json:"seed"`
}

// DefaultCaseConfig returns a quarter of clean data for three departments
func DefaultCaseConfig() CaseGeneratorConfig {
	return CaseGeneratorConfig{
		Departments:      []string{"Cardiology", "General Surgery", "Orthopedics"},
		SurgeonsPerDept:  3,
		BusinessDayMean:  4,
		WeekendMean:      0.3,
		MultiSurgeonRate: 0.1,
		StartDate:        core.MakeDate(2024, time.January, 1),
		EndDate:          core.MakeDate(2024, time.March, 31),
		Seed:             42,
	}
}

// CaseGenerator produces raw case records with a weekday pattern, a holiday
// dip and log-normal durations.
type CaseGenerator struct {
	config CaseGeneratorConfig
	cal    *calendar.Calendar
	rng    *rand.Rand
}

// NewCaseGenerator creates a generator; a nil calendar uses the default one.
func NewCaseGenerator(config CaseGeneratorConfig, cal *calendar.Calendar) *CaseGenerator {
	if cal == nil {
		cal = calendar.MustDefault()
	}
	return &CaseGenerator{
		config: config,
		cal:    cal,
		rng:    rand.New(rand.NewSource(config.Seed)),
	}
}

// GenerateRecords returns records in date order with 1-based row numbers.
func (g *CaseGenerator) GenerateRecords() []caseload.RawRecord {
	var records []caseload.RawRecord
	start, end := core.Date(g.config.StartDate), core.Date(g.config.EndDate)

	for d := start; !d.After(end); d = core.AddDays(d, 1) {
		mean := g.config.WeekendMean
		if ok, _ := g.cal.IsBusinessDay(d); ok {
			mean = g.config.BusinessDayMean
		}
		for _, dept := range g.config.Departments {
			for i := g.poisson(mean); i > 0; i-- {
				records = append(records, g.record(d, dept))
				if g.rng.Float64() < g.config.DuplicateRate {
					records = append(records, records[len(records)-1])
				}
			}
		}
	}

	for i := range records {
		records[i].Row = i + 1
	}
	return records
}

func (g *CaseGenerator) record(d time.Time, dept string) caseload.RawRecord {
	rec := caseload.RawRecord{
		Date:          core.FormatDate(d),
		Department:    dept,
		Surgeon:       g.surgeons(dept),
		Duration:      math.Round(math.Exp(4.3+g.rng.NormFloat64()*0.4)*10) / 10,
		ProcedureType: g.pick([]string{"general", "local", "spinal"}),
		Outcome:       "completed",
	}
	if g.rng.Float64() < g.config.MalformedRate {
		if g.rng.Intn(2) == 0 {
			rec.Date = "not-a-date"
		} else {
			rec.Duration = "n/a"
		}
	}
	return rec
}

func (g *CaseGenerator) surgeons(dept string) string {
	n := g.config.SurgeonsPerDept
	if n <= 0 {
		n = 1
	}
	first := g.rng.Intn(n)
	names := []string{surgeonName(dept, first)}
	if n > 1 && g.rng.Float64() < g.config.MultiSurgeonRate {
		names = append(names, surgeonName(dept, (first+1)%n))
	}
	return strings.Join(names, "\n")
}

func surgeonName(dept string, i int) string {
	return fmt.Sprintf("%s-Dr%d", strings.ReplaceAll(dept, " ", ""), i+1)
}

func (g *CaseGenerator) pick(options []string) string {
	return options[g.rng.Intn(len(options))]
}

// poisson draws with Knuth's method; the means used here are small.
func (g *CaseGenerator) poisson(mean float64) int {
	if mean <= 0 {
		return 0
	}
	limit := math.Exp(-mean)
	k, p := 0, 1.0
	for {
		p *= g.rng.Float64()
		if p <= limit {
			return k
		}
		k++
	}
}

// Case builds a clean record for hand-written fixtures.
func Case(date string, dept, surgeon string, minutes float64) caseload.RawRecord {
	return caseload.RawRecord{Date: date, Department: dept, Surgeon: surgeon, Duration: minutes}
}

// DailyCases builds n cases per day for dept over [from, to].
func DailyCases(from, to time.Time, dept string, n int) []caseload.RawRecord {
	var out []caseload.RawRecord
	for d := core.Date(from); !d.After(core.Date(to)); d = core.AddDays(d, 1) {
		for i := 0; i < n; i++ {
			out = append(out, Case(core.FormatDate(d), dept, fmt.Sprintf("%s-Dr%d", dept, i+1), 60))
		}
	}
	return out
}

// Table annotates clean case records without going through preprocessing.
func Table(cal *calendar.Calendar, cases []caseload.CaseRecord) *caseload.CanonicalTable {
	if cal == nil {
		cal = calendar.MustDefault()
	}
	rows := make([]caseload.CanonicalRow, len(cases))
	for i, c := range cases {
		rows[i] = cal.Annotate(c)
	}
	return caseload.NewCanonicalTable(rows)
}
