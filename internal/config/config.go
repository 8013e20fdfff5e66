package config

import (
	"os"
	"strconv"
	"strings"

	"caseflow/internal/errors"

	"github.com/go-playground/validator/v10"
)

// Config represents the complete application configuration. Values are
// resolved once and treated as read-only by every analysis request.
type Config struct {
	Calendar   CalendarConfig   `validate:"required"`
	Preprocess PreprocessConfig `validate:"required"`
	Forecast   ForecastConfig   `validate:"required"`
	Server     ServerConfig     `validate:"required"`
	Data       DataConfig
	LogLevel   string `validate:"oneof=ERROR WARN INFO DEBUG TRACE"`
}

// CalendarConfig holds the business-day calendar settings
type CalendarConfig struct {
	WeekStart            string `validate:"required"`
	Holidays             string
	HolidayFile          string
	HolidayRules         string `validate:"oneof=jp-major none"`
	FiscalYearStartMonth int    `validate:"min=1,max=12"`
}

// PreprocessConfig holds record cleaning settings
type PreprocessConfig struct {
	Deduplicate      bool
	RejectSampleSize int `validate:"min=0"`
}

// ForecastConfig holds model selection settings
type ForecastConfig struct {
	Models              []string `validate:"required,min=1,dive,oneof=seasonal_naive exponential_smoothing linear_trend_seasonal moving_average"`
	Metric              string   `validate:"oneof=mae rmse mape"`
	Confidence          float64  `validate:"gt=0,lt=1"`
	Holdout             int      `validate:"min=0"`
	Folds               int      `validate:"min=1"`
	MovingAverageWindow int      `validate:"min=1"`
	SeasonDay           int      `validate:"min=1"`
	SeasonWeek          int      `validate:"min=1"`
	SeasonMonth         int      `validate:"min=1"`
	SeasonQuarter       int      `validate:"min=1"`
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port string `validate:"required"`
}

// DataConfig holds input file locations
type DataConfig struct {
	ExcelFile   string
	TargetFile  string
	Sheet       string
	SnapshotDir string
}

var validate = validator.New()

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{
		Calendar:   *loadCalendarConfig(),
		Preprocess: *loadPreprocessConfig(),
		Forecast:   *loadForecastConfig(),
		Server:     *loadServerConfig(),
		Data:       *loadDataConfig(),
		LogLevel:   strings.ToUpper(getEnvOrDefault("LOG_LEVEL", "INFO")),
	}

	if err := Validate(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return config, nil
}

// Default returns the configuration used when no environment is set.
func Default() *Config {
	return &Config{
		Calendar: CalendarConfig{
			WeekStart:            "monday",
			HolidayRules:         "jp-major",
			FiscalYearStartMonth: 4,
		},
		Preprocess: PreprocessConfig{Deduplicate: true, RejectSampleSize: 5},
		Forecast: ForecastConfig{
			Models:              DefaultModels(),
			Metric:              "mae",
			Confidence:          0.95,
			Folds:               1,
			MovingAverageWindow: 6,
			SeasonDay:           5,
			SeasonWeek:          4,
			SeasonMonth:         12,
			SeasonQuarter:       4,
		},
		Server:   ServerConfig{Port: "8080"},
		LogLevel: "INFO",
	}
}

// DefaultModels is the candidate priority order used when FORECAST_MODELS is unset.
func DefaultModels() []string {
	return []string{"seasonal_naive", "exponential_smoothing", "linear_trend_seasonal", "moving_average"}
}

// Validate checks struct tags and cross-field rules.
func Validate(config *Config) error {
	if err := validate.Struct(config); err != nil {
		return errors.ConfigInvalid(err.Error())
	}
	return nil
}

func loadCalendarConfig() *CalendarConfig {
	d := Default().Calendar
	return &CalendarConfig{
		WeekStart:            getEnvOrDefault("WEEK_START", d.WeekStart),
		Holidays:             getEnvOrDefault("HOLIDAYS", ""),
		HolidayFile:          getEnvOrDefault("HOLIDAY_FILE", ""),
		HolidayRules:         getEnvOrDefault("HOLIDAY_RULES", d.HolidayRules),
		FiscalYearStartMonth: getEnvIntOrDefault("FISCAL_YEAR_START_MONTH", d.FiscalYearStartMonth),
	}
}

func loadPreprocessConfig() *PreprocessConfig {
	d := Default().Preprocess
	return &PreprocessConfig{
		Deduplicate:      getEnvBoolOrDefault("DEDUPLICATE", d.Deduplicate),
		RejectSampleSize: getEnvIntOrDefault("REJECT_SAMPLE_SIZE", d.RejectSampleSize),
	}
}

func loadForecastConfig() *ForecastConfig {
	d := Default().Forecast
	return &ForecastConfig{
		Models:              getEnvListOrDefault("FORECAST_MODELS", d.Models),
		Metric:              strings.ToLower(getEnvOrDefault("FORECAST_METRIC", d.Metric)),
		Confidence:          getEnvFloatOrDefault("FORECAST_CONFIDENCE", d.Confidence),
		Holdout:             getEnvIntOrDefault("FORECAST_HOLDOUT", d.Holdout),
		Folds:               getEnvIntOrDefault("FORECAST_FOLDS", d.Folds),
		MovingAverageWindow: getEnvIntOrDefault("MOVING_AVERAGE_WINDOW", d.MovingAverageWindow),
		SeasonDay:           getEnvIntOrDefault("SEASON_LENGTH_DAY", d.SeasonDay),
		SeasonWeek:          getEnvIntOrDefault("SEASON_LENGTH_WEEK", d.SeasonWeek),
		SeasonMonth:         getEnvIntOrDefault("SEASON_LENGTH_MONTH", d.SeasonMonth),
		SeasonQuarter:       getEnvIntOrDefault("SEASON_LENGTH_QUARTER", d.SeasonQuarter),
	}
}

func loadServerConfig() *ServerConfig {
	return &ServerConfig{
		Port: getEnvOrDefault("PORT", "8080"),
	}
}

func loadDataConfig() *DataConfig {
	return &DataConfig{
		ExcelFile:   getEnvOrDefault("EXCEL_FILE", ""),
		TargetFile:  getEnvOrDefault("TARGET_FILE", ""),
		Sheet:       getEnvOrDefault("EXCEL_SHEET", ""),
		SnapshotDir: getEnvOrDefault("SNAPSHOT_DIR", ""),
	}
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(strings.ToLower(item)); item != "" {
			items = append(items, item)
		}
	}
	return items
}
