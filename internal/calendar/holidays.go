package calendar

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"caseflow/domain/core"
)

// HolidayRuleSet names a built-in holiday rule set applied on top of the
// explicit holiday list.
type HolidayRuleSet string

const (
	RulesNone    HolidayRuleSet = "none"
	RulesJPMajor HolidayRuleSet = "jp-major"
)

// Valid reports whether the rule set is known.
func (r HolidayRuleSet) Valid() bool {
	return r == RulesNone || r == RulesJPMajor
}

type monthDay struct {
	month time.Month
	day   int
}

// fixed-date national holidays used when no full holiday calendar is supplied
var jpFixedHolidays = map[monthDay]struct{}{
	{time.January, 1}:   {},
	{time.February, 11}: {},
	{time.February, 23}: {},
	{time.April, 29}:    {},
	{time.May, 3}:       {},
	{time.May, 4}:       {},
	{time.May, 5}:       {},
	{time.August, 11}:   {},
	{time.November, 3}:  {},
	{time.November, 23}: {},
}

// Match reports whether d is a holiday under the rule set.
func (r HolidayRuleSet) Match(d time.Time) bool {
	if r != RulesJPMajor {
		return false
	}
	m, day := d.Month(), d.Day()
	if _, ok := jpFixedHolidays[monthDay{m, day}]; ok {
		return true
	}
	// year-end closure and Golden Week
	if (m == time.December && day >= 29) || (m == time.January && day <= 3) {
		return true
	}
	return m == time.May && day <= 5
}

// ParseHolidayList reads one date per line (YYYY-MM-DD, optionally followed by
// a comma and a name). Blank lines and lines starting with # are skipped.
func ParseHolidayList(r io.Reader) ([]time.Time, error) {
	var days []time.Time
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		field, _, _ := strings.Cut(text, ",")
		d, err := ParseDate(field)
		if err != nil {
			return nil, fmt.Errorf("holiday list line %d: %w", line, err)
		}
		days = append(days, d)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read holiday list: %w", err)
	}
	return days, nil
}

// ParseDates parses a comma-separated list of YYYY-MM-DD dates.
func ParseDates(list string) ([]time.Time, error) {
	var days []time.Time
	for _, field := range strings.Split(list, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		d, err := ParseDate(field)
		if err != nil {
			return nil, err
		}
		days = append(days, d)
	}
	return days, nil
}

// ParseDate parses a YYYY-MM-DD civil date.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(core.DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, core.NewValidationError("date", fmt.Sprintf("%q is not YYYY-MM-DD", s))
	}
	return d, nil
}

// ParseWeekday accepts English weekday names or their three-letter forms.
func ParseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || s == name[:3] {
			return d, nil
		}
	}
	return 0, core.NewValidationError("week_start", fmt.Sprintf("unknown weekday %q", s))
}
