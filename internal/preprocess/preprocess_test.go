package preprocess

import (
	"testing"
	"time"

	"caseflow/domain/caseload"
	"caseflow/domain/core"
	"caseflow/internal"
	"caseflow/internal/calendar"
	"caseflow/internal/testkit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPreprocessor(opts Options) *Preprocessor {
	return New(calendar.MustDefault(), opts, internal.Discard())
}

func TestMalformedDatesAreRejected(t *testing.T) {
	raw := testkit.DailyCases(core.MakeDate(2024, time.January, 8), core.MakeDate(2024, time.January, 17), "Cardiology", 1)
	require.Len(t, raw, 10)
	raw[3].Date = "2024-13-45"
	raw[7].Date = nil

	table, report, err := newPreprocessor(DefaultOptions()).Preprocess(raw)
	require.NoError(t, err)

	assert.Equal(t, 8, table.Len())
	assert.Equal(t, 2, report.Count)
	assert.Equal(t, 2, report.ByReason[ReasonInvalidDate])
	require.Len(t, report.Samples, 2)
	assert.Equal(t, 4, report.Samples[0].Row)
	assert.Equal(t, 8, report.Samples[1].Row)
}

func TestRejectReasons(t *testing.T) {
	raw := []caseload.RawRecord{
		testkit.Case("2024-01-10", "Cardiology", "Sato", 90),
		testkit.Case("2024-01-10", "Cardiology", "Sato", 0),
		testkit.Case("2024-01-10", "", "Sato", 30),
		{Date: "2024-01-11", Department: "Cardiology", Surgeon: "Sato", Duration: "soon"},
		testkit.Case("2024-01-10", "Cardiology", "Sato", 90),
	}

	table, report, err := newPreprocessor(DefaultOptions()).Preprocess(raw)
	require.NoError(t, err)

	assert.Equal(t, 1, table.Len())
	assert.Equal(t, map[RejectReason]int{
		ReasonNonPositiveDuration: 1,
		ReasonMissingDepartment:   1,
		ReasonInvalidDuration:     1,
		ReasonDuplicate:           1,
	}, report.ByReason)
	assert.Equal(t, []RejectReason{ReasonDuplicate, ReasonInvalidDuration, ReasonMissingDepartment, ReasonNonPositiveDuration}, report.Reasons())
}

func TestDeduplicationCanBeDisabled(t *testing.T) {
	raw := []caseload.RawRecord{
		testkit.Case("2024-01-10", "Cardiology", "Sato", 90),
		testkit.Case("2024-01-10", "Cardiology", "Sato", 90),
	}
	opts := DefaultOptions()
	opts.Deduplicate = false

	table, report, err := newPreprocessor(opts).Preprocess(raw)
	require.NoError(t, err)
	assert.Equal(t, 2, table.Len())
	assert.Zero(t, report.Count)
}

func TestConservationLaw(t *testing.T) {
	config := testkit.DefaultCaseConfig()
	config.MalformedRate = 0.05
	config.DuplicateRate = 0.05
	raw := testkit.NewCaseGenerator(config, nil).GenerateRecords()

	table, report, err := newPreprocessor(DefaultOptions()).Preprocess(raw)
	require.NoError(t, err)
	assert.Equal(t, len(raw), table.Len()+report.Count)
	assert.LessOrEqual(t, len(report.Samples), 5)

	sum := 0
	for _, n := range report.ByReason {
		sum += n
	}
	assert.Equal(t, report.Count, sum)
}

func TestRawInputIsNotMutated(t *testing.T) {
	raw := []caseload.RawRecord{
		{Date: " 2024/01/10 ", Department: "  Cardiology ", Surgeon: "Sato\nTanaka", Duration: "1:30"},
	}
	before := raw[0]

	table, _, err := newPreprocessor(DefaultOptions()).Preprocess(raw)
	require.NoError(t, err)
	assert.Equal(t, before, raw[0])

	row := table.Rows()[0]
	assert.Equal(t, "Cardiology", row.Department)
	assert.Equal(t, 90.0, row.Duration)
	assert.Equal(t, core.MakeDate(2024, time.January, 10), row.Date)
	assert.True(t, row.IsBusinessDay)
	assert.Equal(t, 2023, row.FiscalYear)
	assert.Equal(t, 10, row.FiscalPeriod)
}

func TestNoUsableRowsIsFatal(t *testing.T) {
	raw := []caseload.RawRecord{
		{Date: "bad", Department: "Cardiology", Duration: 10},
		{Date: "worse", Department: "Cardiology", Duration: 10},
	}
	table, report, err := newPreprocessor(DefaultOptions()).Preprocess(raw)
	assert.ErrorIs(t, err, core.ErrFatalIngest)
	assert.Nil(t, table)
	assert.Equal(t, 2, report.Count)

	_, _, err = newPreprocessor(DefaultOptions()).Preprocess(nil)
	assert.ErrorIs(t, err, core.ErrFatalIngest)
}
