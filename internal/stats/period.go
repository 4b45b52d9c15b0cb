package stats

import (
	"fmt"
	"regexp"
	"time"
)

// RollingKey names the trailing-30-day period summary.
const RollingKey = "30"

const firstTrackedYear = 2008

var quarterRE = regexp.MustCompile(`^(\d{4})-[qQ]([1-4])$`)

// ValidPeriodKey reports whether name identifies a storable stats record:
// a past-or-present calendar day "YYYY-MM-DD", a month "YYYY-MM", or the
// rolling key. Quarters and years are query-only shapes, expanded by
// PeriodToMonths instead.
func ValidPeriodKey(name string, today time.Time) bool {
	if name == RollingKey {
		return true
	}
	today = DateOf(today)
	if d, err := time.Parse("2006-01-02", name); err == nil && DayKey(d) == name {
		return !d.After(today)
	}
	if m, err := time.Parse("2006-01", name); err == nil && m.Format("2006-01") == name {
		return !m.After(today)
	}
	return false
}

// PeriodToMonths expands a quarter key "YYYY-QN" or a bare year "YYYY"
// into its month keys. A current-year key only covers the months elapsed
// so far. Returns nil when the key has neither shape.
func PeriodToMonths(when string, today time.Time) []string {
	var year int
	if _, err := fmt.Sscanf(when, "%4d", &year); err == nil && len(when) == 4 {
		if year < firstTrackedYear || year > today.Year() {
			return nil
		}
		months := 12
		if year == today.Year() {
			months = int(today.Month())
		}
		out := make([]string, months)
		for i := range out {
			out[i] = fmt.Sprintf("%04d-%02d", year, i+1)
		}
		return out
	}

	m := quarterRE.FindStringSubmatch(when)
	if m == nil {
		return nil
	}
	base := (int(m[2][0]-'0')-1)*3 + 1
	out := make([]string, 3)
	for i := range out {
		out[i] = fmt.Sprintf("%s-%02d", m[1], base+i)
	}
	return out
}

// MonthKey returns the owning month of a daily record name, or an error
// for a malformed name.
func MonthKey(dayName string) (string, error) {
	d, err := time.Parse("2006-01-02", dayName)
	if err != nil {
		return "", fmt.Errorf("malformed day name %q: %w", dayName, err)
	}
	return d.Format("2006-01"), nil
}

// MonthDays lists every daily record name of a month, "YYYY-MM-01"
// through the month's last day.
func MonthDays(month string) ([]string, error) {
	first, err := time.Parse("2006-01", month)
	if err != nil {
		return nil, fmt.Errorf("malformed month %q: %w", month, err)
	}
	n := first.AddDate(0, 1, -1).Day()
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s-%02d", month, i+1)
	}
	return out, nil
}

// WindowDays lists the n daily record names ending at (and including)
// the reference day, newest first.
func WindowDays(reference time.Time, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = DayKey(reference.AddDate(0, 0, -i))
	}
	return out
}
