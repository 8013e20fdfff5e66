package coercer

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"caseflow/domain/core"
)

// Coercer turns loosely typed spreadsheet cells into dates, minutes and text.
// The rules are deterministic: the same cell always yields the same value.
type Coercer struct {
	layouts []string
}

// DefaultDateLayouts are tried in order for string dates.
func DefaultDateLayouts() []string {
	return []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
		"2006/01/02",
		"2006/1/2",
		"2006/01/02 15:04:05",
		"2006/1/2 15:04",
		"01/02/2006",
		"1/2/2006",
		"02-Jan-2006",
		"2006年1月2日",
	}
}

// New creates a coercer; no layouts means DefaultDateLayouts.
func New(layouts ...string) *Coercer {
	if len(layouts) == 0 {
		layouts = DefaultDateLayouts()
	}
	return &Coercer{layouts: layouts}
}

// Excel serial day numbers count from 1899-12-30 (the 1900 leap-year bug
// included). Anything outside 1..2958465 (9999-12-31) is not a date.
var excelEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

const maxExcelSerial = 2958465

// Date coerces a cell to a civil date. It accepts time values, layout strings
// and Excel serial numbers (numeric or numeric string).
func (c *Coercer) Date(raw any) (time.Time, bool) {
	switch v := raw.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		if v.IsZero() {
			return time.Time{}, false
		}
		return plausible(core.Date(v))
	case *time.Time:
		if v == nil {
			return time.Time{}, false
		}
		return c.Date(*v)
	case float64:
		return fromExcelSerial(v)
	case float32:
		return fromExcelSerial(float64(v))
	case int:
		return fromExcelSerial(float64(v))
	case int64:
		return fromExcelSerial(float64(v))
	}

	s := strings.TrimSpace(c.toString(raw))
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range c.layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return plausible(core.Date(t))
		}
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return fromExcelSerial(f)
	}
	return time.Time{}, false
}

func fromExcelSerial(serial float64) (time.Time, bool) {
	if math.IsNaN(serial) || serial < 1 || serial > maxExcelSerial {
		return time.Time{}, false
	}
	return plausible(core.AddDays(excelEpoch, int(math.Floor(serial))))
}

// Dates outside these years are rejected as invalid.
const (
	minYear = 1900
	maxYear = 2099
)

func plausible(d time.Time) (time.Time, bool) {
	if d.Year() < minYear || d.Year() > maxYear {
		return time.Time{}, false
	}
	return d, true
}

// Number parses a numeric cell. Thousands separators, currency-free unit
// suffixes (分, min, mins, minutes) and surrounding whitespace are tolerated.
func (c *Coercer) Number(raw any) (float64, bool) {
	switch v := raw.(type) {
	case nil:
		return 0, false
	case float64:
		return v, !math.IsNaN(v) && !math.IsInf(v, 0)
	case float32:
		return c.Number(float64(v))
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	case time.Duration:
		return v.Minutes(), true
	}

	clean := strings.TrimSpace(c.toString(raw))
	for _, suffix := range []string{"minutes", "mins", "min", "分"} {
		clean = strings.TrimSpace(strings.TrimSuffix(clean, suffix))
	}
	if clean == "" {
		return 0, false
	}

	// Parentheses mark negatives in exported ledgers: (12) -> -12
	if strings.HasPrefix(clean, "(") && strings.HasSuffix(clean, ")") {
		clean = "-" + strings.TrimSuffix(strings.TrimPrefix(clean, "("), ")")
	}
	clean = strings.ReplaceAll(clean, ",", "")
	clean = strings.ReplaceAll(clean, " ", "")

	val, err := strconv.ParseFloat(clean, 64)
	if err != nil || math.IsInf(val, 0) || math.IsNaN(val) {
		return 0, false
	}
	return val, true
}

var clockPattern = regexp.MustCompile(`^(\d{1,3}):(\d{2})(?::(\d{2}))?$`)

// Minutes coerces a duration cell to minutes: plain numbers are minutes,
// H:MM and H:MM:SS are elapsed time.
func (c *Coercer) Minutes(raw any) (float64, bool) {
	if s, ok := raw.(string); ok {
		if m := clockPattern.FindStringSubmatch(strings.TrimSpace(s)); m != nil {
			return clockParts(m), true
		}
	}
	return c.Number(raw)
}

var compactClock = regexp.MustCompile(`^(\d{1,2})(\d{2})$`)

// ClockMinutes reads a time-of-day cell as minutes after midnight. It accepts
// H:MM[:SS], compact HHMM, Excel day fractions in [0,1) and time values.
func (c *Coercer) ClockMinutes(raw any) (float64, bool) {
	switch v := raw.(type) {
	case nil:
		return 0, false
	case time.Time:
		if v.IsZero() {
			return 0, false
		}
		return float64(v.Hour()*60+v.Minute()) + float64(v.Second())/60, true
	case float64:
		return dayFraction(v)
	case float32:
		return dayFraction(float64(v))
	case int:
		return c.ClockMinutes(strconv.Itoa(v))
	}

	s := strings.TrimSpace(c.toString(raw))
	if m := clockPattern.FindStringSubmatch(s); m != nil {
		mins := clockParts(m)
		return mins, mins < 24*60
	}
	if m := compactClock.FindStringSubmatch(s); m != nil {
		h, _ := strconv.Atoi(m[1])
		min, _ := strconv.Atoi(m[2])
		if h < 24 && min < 60 {
			return float64(h*60 + min), true
		}
		return 0, false
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return dayFraction(f)
	}
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return c.ClockMinutes(t)
	}
	return 0, false
}

func dayFraction(f float64) (float64, bool) {
	if math.IsNaN(f) || f < 0 || f >= 1 {
		return 0, false
	}
	return math.Round(f*24*60*100) / 100, true
}

func clockParts(m []string) float64 {
	h, _ := strconv.Atoi(m[1])
	min, _ := strconv.Atoi(m[2])
	total := float64(h*60 + min)
	if m[3] != "" {
		sec, _ := strconv.Atoi(m[3])
		total += float64(sec) / 60
	}
	return total
}

// ElapsedMinutes returns out minus in, wrapping past midnight.
func ElapsedMinutes(in, out float64) float64 {
	d := out - in
	if d < 0 {
		d += 24 * 60
	}
	return d
}

var whitespace = regexp.MustCompile(`\s+`)

// Text trims a category cell, collapses runs of spaces and drops control
// characters. Line breaks survive because surgeon cells use them as separators.
func (c *Coercer) Text(raw any) string {
	if raw == nil {
		return ""
	}
	lines := strings.Split(strings.ReplaceAll(c.toString(raw), "\r\n", "\n"), "\n")
	kept := lines[:0]
	for _, line := range lines {
		line = strings.Map(func(r rune) rune {
			if r < 32 || r == 127 {
				return -1
			}
			return r
		}, line)
		line = strings.TrimSpace(whitespace.ReplaceAllString(line, " "))
		if line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

// toString converts interface{} to string safely
func (c *Coercer) toString(val any) string {
	switch v := val.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", v)
	case float32, float64:
		return fmt.Sprintf("%g", v)
	case bool:
		return fmt.Sprintf("%t", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
