package calendar

import (
	"strings"
	"testing"
	"time"

	"caseflow/domain/caseload"
	"caseflow/domain/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time { return core.MakeDate(y, m, d) }

func TestIsBusinessDay(t *testing.T) {
	cal := MustDefault()

	tests := []struct {
		name string
		day  time.Time
		want bool
	}{
		{"plain wednesday", date(2024, time.January, 10), true},
		{"saturday", date(2024, time.January, 6), false},
		{"sunday", date(2024, time.January, 7), false},
		{"new year rule", date(2024, time.January, 2), false},
		{"golden week rule", date(2024, time.May, 1), false},
		{"year end closure", date(2024, time.December, 30), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := cal.IsBusinessDay(tt.day)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExplicitHolidays(t *testing.T) {
	cal, err := New(Options{WeekStart: time.Monday, Rules: RulesNone, Holidays: []time.Time{date(2024, time.January, 10)}})
	require.NoError(t, err)

	ok, err := cal.IsBusinessDay(date(2024, time.January, 10))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = cal.IsBusinessDay(date(2024, time.January, 2))
	require.NoError(t, err)
	assert.True(t, ok, "no rule set means Jan 2 is a working day")
}

func TestIsBusinessDayRejectsZeroDate(t *testing.T) {
	_, err := MustDefault().IsBusinessDay(time.Time{})
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestWeekBoundsHonorsWeekStart(t *testing.T) {
	monday := MustDefault()
	start, end, err := monday.WeekBounds(date(2024, time.January, 10))
	require.NoError(t, err)
	assert.Equal(t, date(2024, time.January, 8), start)
	assert.Equal(t, date(2024, time.January, 14), end)

	sunday, err := New(Options{WeekStart: time.Sunday})
	require.NoError(t, err)
	start, end, err = sunday.WeekBounds(date(2024, time.January, 10))
	require.NoError(t, err)
	assert.Equal(t, date(2024, time.January, 7), start)
	assert.Equal(t, date(2024, time.January, 13), end)
}

func TestPeriodBounds(t *testing.T) {
	cal := MustDefault()

	tests := []struct {
		g          caseload.Granularity
		day        time.Time
		start, end time.Time
	}{
		{caseload.GranularityDay, date(2024, time.March, 5), date(2024, time.March, 5), date(2024, time.March, 5)},
		{caseload.GranularityMonth, date(2024, time.February, 14), date(2024, time.February, 1), date(2024, time.February, 29)},
		{caseload.GranularityQuarter, date(2024, time.May, 15), date(2024, time.April, 1), date(2024, time.June, 30)},
		{caseload.GranularityQuarter, date(2024, time.December, 31), date(2024, time.October, 1), date(2024, time.December, 31)},
	}

	for _, tt := range tests {
		start, end, err := cal.PeriodBounds(tt.day, tt.g)
		require.NoError(t, err)
		assert.Equal(t, tt.start, start, "start of %s containing %s", tt.g, tt.day)
		assert.Equal(t, tt.end, end, "end of %s containing %s", tt.g, tt.day)
	}

	_, _, err := cal.PeriodBounds(date(2024, time.May, 15), "fortnight")
	assert.ErrorIs(t, err, core.ErrInvalidGranularity)
}

func TestBusinessDaysBetween(t *testing.T) {
	assert.Equal(t, 20, MustDefault().BusinessDaysBetween(date(2024, time.January, 1), date(2024, time.January, 31)))

	plain, err := New(Options{WeekStart: time.Monday, Rules: RulesNone})
	require.NoError(t, err)
	assert.Equal(t, 23, plain.BusinessDaysBetween(date(2024, time.January, 1), date(2024, time.January, 31)))
}

func TestFiscalYear(t *testing.T) {
	cal := MustDefault()
	assert.Equal(t, 2023, cal.FiscalYear(date(2024, time.March, 31)))
	assert.Equal(t, 2024, cal.FiscalYear(date(2024, time.April, 1)))
	assert.Equal(t, 1, cal.FiscalPeriod(date(2024, time.April, 20)))
	assert.Equal(t, 12, cal.FiscalPeriod(date(2025, time.March, 3)))

	fy := cal.FiscalYearRange(2024)
	assert.Equal(t, date(2024, time.April, 1), fy.Start)
	assert.Equal(t, date(2025, time.March, 31), fy.End)
}

func TestLastCompleteWeekEnd(t *testing.T) {
	cal := MustDefault()
	assert.Equal(t, date(2024, time.January, 7), cal.LastCompleteWeekEnd(date(2024, time.January, 10)))
	assert.Equal(t, date(2024, time.January, 14), cal.LastCompleteWeekEnd(date(2024, time.January, 14)))
}

func TestPeriodsBetweenAndLabels(t *testing.T) {
	cal := MustDefault()
	assert.Equal(t, 14, cal.PeriodsBetween(date(2024, time.January, 20), date(2025, time.March, 2), caseload.GranularityMonth))
	assert.Equal(t, 2, cal.PeriodsBetween(date(2024, time.January, 10), date(2024, time.January, 22), caseload.GranularityWeek))
	assert.Equal(t, "2024-W02", cal.Label(date(2024, time.January, 8), caseload.GranularityWeek))
	assert.Equal(t, "2024 Q2", cal.Label(date(2024, time.April, 1), caseload.GranularityQuarter))
}

func TestResolvePreset(t *testing.T) {
	cal := MustDefault()
	coverage := caseload.NewDateRange(date(2023, time.June, 1), date(2024, time.January, 31))

	w, err := cal.ResolvePreset(coverage, PresetLast4Weeks)
	require.NoError(t, err)
	assert.Equal(t, date(2024, time.January, 1), w.Start)
	assert.Equal(t, date(2024, time.January, 28), w.End)

	w, err = cal.ResolvePreset(coverage, PresetThisFiscalYear)
	require.NoError(t, err)
	assert.Equal(t, coverage, w, "fiscal year is clipped to the data")

	_, err = cal.ResolvePreset(coverage, PresetLastFiscalYear)
	assert.ErrorIs(t, err, core.ErrValidation, "fiscal 2022 ends before the data starts")

	_, err = ParsePreset("yesterday")
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestResolvePresetClipsToShortCoverage(t *testing.T) {
	cal := MustDefault()
	coverage := caseload.NewDateRange(date(2024, time.June, 3), date(2024, time.June, 16))

	for _, p := range []Preset{PresetAll, PresetLast30Days, PresetLast90Days, PresetThisFiscalYear, PresetLast4Weeks} {
		w, err := cal.ResolvePreset(coverage, p)
		require.NoError(t, err, p)
		assert.Equal(t, coverage, w, p)
	}

	midWeek := caseload.NewDateRange(date(2024, time.June, 3), date(2024, time.June, 5))
	_, err := cal.ResolvePreset(midWeek, PresetLast4Weeks)
	assert.ErrorIs(t, err, core.ErrValidation, "no complete week inside the data")
}

func TestHorizonEnd(t *testing.T) {
	cal := MustDefault()
	end, err := cal.HorizonEnd(date(2024, time.January, 31), HorizonFiscalYearEnd)
	require.NoError(t, err)
	assert.Equal(t, date(2024, time.March, 31), end)
	assert.Equal(t, 2, cal.HorizonUntil(date(2024, time.January, 1), end, caseload.GranularityMonth))
}

func TestParseHolidayList(t *testing.T) {
	days, err := ParseHolidayList(strings.NewReader("# site closures\n2024-01-08,Coming of Age Day\n\n2024-02-12\n"))
	require.NoError(t, err)
	assert.Equal(t, []time.Time{date(2024, time.January, 8), date(2024, time.February, 12)}, days)

	_, err = ParseHolidayList(strings.NewReader("08/01/2024\n"))
	assert.ErrorIs(t, err, core.ErrValidation)
}
