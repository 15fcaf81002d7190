package util

import (
	"fmt"
	"time"

	"spxlab/internal/domain"
	"spxlab/internal/series"
)

// Period is a named analysis duration offered to users.
type Period struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Days  int    `json:"days"`
}

// DurationPresets are the selectable look-back periods. "max" spans fifty
// years, which covers the full stored history.
var DurationPresets = []Period{
	{Key: "1y", Label: "1 Year", Days: 365},
	{Key: "3y", Label: "3 Years", Days: 365 * 3},
	{Key: "5y", Label: "5 Years", Days: 365 * 5},
	{Key: "max", Label: "Max History", Days: 365 * 50},
}

// PresetDays returns the duration for a preset key.
func PresetDays(key string) (int, bool) {
	for _, p := range DurationPresets {
		if p.Key == key {
			return p.Days, true
		}
	}
	return 0, false
}

// PeriodLabel names a duration, using the preset label when one matches.
func PeriodLabel(days int) string {
	for _, p := range DurationPresets {
		if p.Days == days {
			return p.Label
		}
	}
	return fmt.Sprintf("%d days", days)
}

// PreviousWeekday returns the most recent weekday strictly before now's
// calendar date. It is the offline stand-in for the last settled trading
// day and ignores exchange holidays.
func PreviousWeekday(now time.Time) time.Time {
	d := domain.TradingDate(now).AddDate(0, 0, -1)
	for d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

// AnalysisWindow is the inclusive window ending at anchor and starting
// durationDays calendar days earlier.
func AnalysisWindow(anchor time.Time, durationDays int) series.Window {
	end := domain.TradingDate(anchor)
	return series.Window{Start: end.AddDate(0, 0, -durationDays), End: end}
}
