package datetime

import (
	"fmt"
	"time"
)

// OrdinalSuffix returns the English ordinal suffix for a day number.
func OrdinalSuffix(day int) string {
	if n := day % 100; n >= 11 && n <= 13 {
		return "th"
	}
	switch day % 10 {
	case 1:
		return "st"
	case 2:
		return "nd"
	case 3:
		return "rd"
	}
	return "th"
}

// FormatLong renders t like "Friday, January 24th, 2025 - 14:30" in t's
// own location.
func FormatLong(t time.Time) string {
	return fmt.Sprintf("%s, %s %d%s, %d - %s",
		t.Weekday(), t.Month(), t.Day(), OrdinalSuffix(t.Day()), t.Year(), t.Format("15:04"))
}

type relativeUnit struct {
	size     time.Duration
	singular string
	plural   string
}

var relativeUnits = []relativeUnit{
	{365 * 24 * time.Hour, "year", "years"},
	{30 * 24 * time.Hour, "month", "months"},
	{7 * 24 * time.Hour, "week", "weeks"},
	{24 * time.Hour, "day", "days"},
	{time.Hour, "hour", "hours"},
	{time.Minute, "minute", "minutes"},
}

// FormatRelative describes t relative to now: "just now", "5 minutes ago",
// "yesterday", "in 2 weeks", "tomorrow".
func FormatRelative(t, now time.Time) string {
	diff := now.Sub(t)
	future := diff < 0
	if future {
		diff = -diff
	}
	if diff < time.Minute {
		if future {
			return "in a moment"
		}
		return "just now"
	}
	for _, u := range relativeUnits {
		n := int64(diff / u.size)
		if n < 1 {
			continue
		}
		if u.size == 24*time.Hour && n == 1 {
			if future {
				return "tomorrow"
			}
			return "yesterday"
		}
		label := u.plural
		if n == 1 {
			label = u.singular
		}
		if future {
			return fmt.Sprintf("in %d %s", n, label)
		}
		return fmt.Sprintf("%d %s ago", n, label)
	}
	return "just now"
}
