package caseload

import (
	"testing"
	"time"

	"caseflow/domain/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func row(day int, dept, surgeon string) CanonicalRow {
	return CanonicalRow{CaseRecord: CaseRecord{
		Date:       core.MakeDate(2024, time.January, day),
		Department: dept,
		Surgeon:    surgeon,
		Duration:   60,
	}}
}

func TestNewCanonicalTableOrdersAndCovers(t *testing.T) {
	input := []CanonicalRow{row(10, "ORT", "a"), row(3, "GS", "b"), row(7, "ORT", "c")}
	table := NewCanonicalTable(input)

	require.Equal(t, 3, table.Len())
	rows := table.Rows()
	assert.Equal(t, 3, rows[0].Date.Day())
	assert.Equal(t, 10, rows[2].Date.Day())
	assert.Equal(t, NewDateRange(core.MakeDate(2024, 1, 3), core.MakeDate(2024, 1, 10)), table.Coverage())

	// the input slice is untouched
	assert.Equal(t, 10, input[0].Date.Day())
}

func TestFilterKeepsCoverage(t *testing.T) {
	table := NewCanonicalTable([]CanonicalRow{row(1, "GS", "a"), row(5, "ORT", "b"), row(9, "GS", "c")})

	ort := table.Department("ORT")
	assert.Equal(t, 1, ort.Len())
	assert.Equal(t, table.Coverage(), ort.Coverage())
}

func TestWindowClipsCoverage(t *testing.T) {
	table := NewCanonicalTable([]CanonicalRow{row(1, "GS", "a"), row(5, "ORT", "b"), row(9, "GS", "c")})

	w := table.Window(NewDateRange(core.MakeDate(2024, 1, 4), core.MakeDate(2024, 1, 20)))
	assert.Equal(t, 2, w.Len())
	assert.Equal(t, NewDateRange(core.MakeDate(2024, 1, 4), core.MakeDate(2024, 1, 9)), w.Coverage())

	empty := table.Window(NewDateRange(core.MakeDate(2025, 1, 1), core.MakeDate(2025, 1, 2)))
	assert.Equal(t, 0, empty.Len())
	assert.True(t, empty.Coverage().IsZero())
}

func TestSurgeonsSplitsMultiNameCells(t *testing.T) {
	table := NewCanonicalTable([]CanonicalRow{row(1, "GS", "Sato\nSuzuki"), row(2, "GS", "Tanaka; Sato")})
	assert.Equal(t, []string{"Sato", "Suzuki", "Tanaka"}, table.Surgeons())
}

func TestFingerprintChangesWithContent(t *testing.T) {
	a := NewCanonicalTable([]CanonicalRow{row(1, "GS", "a")})
	b := NewCanonicalTable([]CanonicalRow{row(1, "GS", "a")})
	c := NewCanonicalTable([]CanonicalRow{row(2, "GS", "a")})

	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
}

func TestDateRangeCovers(t *testing.T) {
	r := NewDateRange(core.MakeDate(2024, 1, 1), core.MakeDate(2024, 1, 31))
	assert.True(t, r.Covers(NewDateRange(core.MakeDate(2024, 1, 1), core.MakeDate(2024, 1, 7))))
	assert.False(t, r.Covers(NewDateRange(core.MakeDate(2024, 1, 29), core.MakeDate(2024, 2, 4))))
	assert.Equal(t, 31, r.Days())
}

func TestParseGranularity(t *testing.T) {
	g, err := ParseGranularity("Weekly")
	require.NoError(t, err)
	assert.Equal(t, GranularityWeek, g)

	_, err = ParseGranularity("fortnight")
	assert.ErrorIs(t, err, core.ErrInvalidGranularity)
}
