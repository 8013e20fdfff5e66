package container

import (
	"context"
	"fmt"
	"os"
	"time"

	"caseflow/adapters/excel"
	"caseflow/domain/caseload"
	"caseflow/internal"
	"caseflow/internal/calendar"
	"caseflow/internal/config"
	"caseflow/internal/forecast"
	"caseflow/internal/preprocess"
	"caseflow/internal/session"
)

// Container holds all application dependencies and manages their lifecycle
type Container struct {
	Config *config.Config
	Logger *internal.Logger

	// Pipeline stages
	Calendar     *calendar.Calendar
	Preprocessor *preprocess.Preprocessor
	Forecaster   *forecast.Forecaster
	Models       []forecast.Model
	Engine       *session.Engine

	// Session state
	Sessions *session.Holder
	Store    session.Store // nil unless SNAPSHOT_DIR is set
}

// New creates a new dependency injection container
func New(cfg *config.Config, logger *internal.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if logger == nil {
		logger = internal.NewLogger(internal.ParseLogLevel(cfg.LogLevel))
	}

	c := &Container{
		Config:   cfg,
		Logger:   logger,
		Sessions: &session.Holder{},
	}
	if err := c.initPipeline(); err != nil {
		return nil, fmt.Errorf("failed to initialize pipeline: %w", err)
	}
	if err := c.initStore(); err != nil {
		return nil, fmt.Errorf("failed to initialize snapshot store: %w", err)
	}

	logger.Debug("container initialized: week starts %s, holiday rules %s, models %v",
		c.Calendar.WeekStart(), cfg.Calendar.HolidayRules, forecast.Names(c.Models))
	return c, nil
}

// initPipeline builds the calendar and the stages that share it
func (c *Container) initPipeline() error {
	calOpts, err := CalendarOptions(c.Config.Calendar)
	if err != nil {
		return err
	}
	if c.Calendar, err = calendar.New(calOpts); err != nil {
		return err
	}

	c.Preprocessor = preprocess.New(c.Calendar, preprocess.Options{
		Deduplicate:      c.Config.Preprocess.Deduplicate,
		RejectSampleSize: c.Config.Preprocess.RejectSampleSize,
	}, c.Logger)

	fc := c.Config.Forecast
	c.Models, err = forecast.ModelsByName(fc.Models, forecast.ModelOptions{MovingAverageWindow: fc.MovingAverageWindow})
	if err != nil {
		return err
	}
	c.Forecaster = forecast.New(c.Calendar, ForecastOptions(fc), c.Logger)
	c.Engine = session.NewEngine(c.Calendar, c.Preprocessor, c.Forecaster, c.Models, c.Logger)
	return nil
}

func (c *Container) initStore() error {
	dir := c.Config.Data.SnapshotDir
	if dir == "" {
		return nil
	}
	store, err := session.NewLocalStore(dir)
	if err != nil {
		return err
	}
	c.Store = store
	return nil
}

// CalendarOptions turns calendar settings into calendar options, reading the
// holiday file when one is configured.
func CalendarOptions(cfg config.CalendarConfig) (calendar.Options, error) {
	weekStart, err := calendar.ParseWeekday(cfg.WeekStart)
	if err != nil {
		return calendar.Options{}, err
	}
	holidays, err := calendar.ParseDates(cfg.Holidays)
	if err != nil {
		return calendar.Options{}, fmt.Errorf("HOLIDAYS: %w", err)
	}
	if cfg.HolidayFile != "" {
		f, err := os.Open(cfg.HolidayFile)
		if err != nil {
			return calendar.Options{}, fmt.Errorf("failed to open holiday file: %w", err)
		}
		defer f.Close()
		fromFile, err := calendar.ParseHolidayList(f)
		if err != nil {
			return calendar.Options{}, err
		}
		holidays = append(holidays, fromFile...)
	}
	return calendar.Options{
		WeekStart:            weekStart,
		Holidays:             holidays,
		Rules:                calendar.HolidayRuleSet(cfg.HolidayRules),
		FiscalYearStartMonth: time.Month(cfg.FiscalYearStartMonth),
	}, nil
}

// ForecastOptions turns forecast settings into forecaster options.
func ForecastOptions(cfg config.ForecastConfig) forecast.Options {
	return forecast.Options{
		Metric:     caseload.ErrorMetric(cfg.Metric),
		Confidence: cfg.Confidence,
		Holdout:    cfg.Holdout,
		Folds:      cfg.Folds,
		SeasonLengths: map[caseload.Granularity]int{
			caseload.GranularityDay:     cfg.SeasonDay,
			caseload.GranularityWeek:    cfg.SeasonWeek,
			caseload.GranularityMonth:   cfg.SeasonMonth,
			caseload.GranularityQuarter: cfg.SeasonQuarter,
		},
	}
}

// LoadDataset reads the configured case file, and the target file when set,
// into a new active session.
func (c *Container) LoadDataset(params session.Params) (*session.Session, error) {
	data := c.Config.Data
	if data.ExcelFile == "" {
		return nil, fmt.Errorf("no case file configured (set EXCEL_FILE)")
	}
	reader := excel.NewDataReader(excel.Config{FilePath: data.ExcelFile, Sheet: data.Sheet}, c.Logger)
	records, err := reader.LoadCases()
	if err != nil {
		return nil, err
	}
	s, err := c.Engine.Open(data.ExcelFile, records, params)
	if err != nil {
		return nil, err
	}
	if data.TargetFile != "" {
		targets, err := excel.LoadTargets(data.TargetFile)
		if err != nil {
			return nil, err
		}
		s = s.WithTargets(targets)
	}
	c.Activate(s)
	return s, nil
}

// Activate publishes s as the active session.
func (c *Container) Activate(s *session.Session) {
	if prev := c.Sessions.Swap(s); prev != nil {
		c.Logger.Info("session %s replaced by %s", prev.ID, s.ID)
	}
}

// Shutdown gracefully shuts down all components
func (c *Container) Shutdown(ctx context.Context) error {
	if c.Store == nil {
		return nil
	}
	removed, err := c.Store.Cleanup(ctx, 30*24*time.Hour)
	if err != nil {
		return fmt.Errorf("snapshot cleanup failed: %w", err)
	}
	if removed > 0 {
		c.Logger.Info("removed %d expired snapshots", removed)
	}
	return nil
}
