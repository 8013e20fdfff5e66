package container

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"caseflow/domain/core"
	"caseflow/internal"
	"caseflow/internal/calendar"
	"caseflow/internal/config"
	"caseflow/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNewWiresDefaults(t *testing.T) {
	c, err := New(config.Default(), internal.Discard())
	require.NoError(t, err)
	assert.Equal(t, time.Monday, c.Calendar.WeekStart())
	assert.Len(t, c.Models, 4)
	assert.NotNil(t, c.Engine)
	assert.Nil(t, c.Store)
	assert.Nil(t, c.Sessions.Load())
	assert.NoError(t, c.Shutdown(context.Background()))
}

func TestNewRejectsBadSettings(t *testing.T) {
	cfg := config.Default()
	cfg.Forecast.Models = []string{"seasonal_naive", "arima"}
	_, err := New(cfg, internal.Discard())
	assert.Error(t, err)

	cfg = config.Default()
	cfg.Calendar.WeekStart = "someday"
	_, err = New(cfg, internal.Discard())
	assert.Error(t, err)

	_, err = New(nil, internal.Discard())
	assert.Error(t, err)
}

func TestCalendarOptionsMergesHolidaySources(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "holidays.txt", "# hospital closures\n2024-06-14,founding day\n\n2024-08-13\n")

	opts, err := CalendarOptions(config.CalendarConfig{
		WeekStart:            "sunday",
		Holidays:             "2024-01-08, 2024-02-12",
		HolidayFile:          file,
		HolidayRules:         "none",
		FiscalYearStartMonth: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, time.Sunday, opts.WeekStart)
	assert.Equal(t, calendar.RulesNone, opts.Rules)
	assert.Equal(t, time.January, opts.FiscalYearStartMonth)
	assert.Equal(t, []time.Time{
		core.MakeDate(2024, time.January, 8),
		core.MakeDate(2024, time.February, 12),
		core.MakeDate(2024, time.June, 14),
		core.MakeDate(2024, time.August, 13),
	}, opts.Holidays)

	_, err = CalendarOptions(config.CalendarConfig{WeekStart: "monday", Holidays: "2024-13-01"})
	assert.Error(t, err)
	_, err = CalendarOptions(config.CalendarConfig{WeekStart: "monday", HolidayFile: filepath.Join(dir, "missing.txt")})
	assert.Error(t, err)
}

func TestForecastOptions(t *testing.T) {
	cfg := config.Default().Forecast
	cfg.SeasonWeek = 13
	opts := ForecastOptions(cfg)
	assert.Equal(t, 13, opts.SeasonLengths["week"])
	assert.Equal(t, 0.95, opts.Confidence)
	assert.EqualValues(t, "mae", opts.Metric)
}

func TestLoadDataset(t *testing.T) {
	dir := t.TempDir()
	var b strings.Builder
	b.WriteString("手術実施日,実施診療科,実施術者,手術時間\n")
	for d := core.MakeDate(2024, time.January, 1); d.Month() < time.April; d = core.AddDays(d, 1) {
		b.WriteString(core.FormatDate(d) + ",Cardiology,Sato,60\n")
		b.WriteString(core.FormatDate(d) + ",Urology,Ito,45\n")
	}
	b.WriteString("bad,Urology,Ito,45\n")

	cfg := config.Default()
	cfg.Data.ExcelFile = writeFile(t, dir, "cases.csv", b.String())
	cfg.Data.TargetFile = writeFile(t, dir, "targets.csv", "department,target\nCardiology,7\nUrology,5\n")
	cfg.Data.SnapshotDir = filepath.Join(dir, "snapshots")

	c, err := New(cfg, internal.Discard())
	require.NoError(t, err)
	require.NotNil(t, c.Store)

	s, err := c.LoadDataset(session.DefaultParams())
	require.NoError(t, err)
	assert.Same(t, s, c.Sessions.Load())
	assert.Equal(t, 182, s.Table().Len())
	assert.Equal(t, 1, s.Report.Count)
	assert.Equal(t, 12.0, s.Targets().Hospital())

	again, err := c.LoadDataset(session.DefaultParams())
	require.NoError(t, err)
	assert.NotEqual(t, s.ID, again.ID)
	assert.Same(t, again, c.Sessions.Load())

	c.Config.Data.ExcelFile = ""
	_, err = c.LoadDataset(session.DefaultParams())
	assert.Error(t, err)
}
