// Package dates parses natural-language date expressions used by the
// assistant tools, like "tomorrow", "next friday", "in 3 days", or
// "2026-01-15 14:30". All results are UTC.
package dates

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/taskloop/taskloop/internal/common/apperr"
)

var weekdays = map[string]time.Weekday{
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
	"sunday":    time.Sunday,
}

var months = map[string]time.Month{
	"january": time.January, "jan": time.January,
	"february": time.February, "feb": time.February,
	"march": time.March, "mar": time.March,
	"april": time.April, "apr": time.April,
	"may":  time.May,
	"june": time.June, "jun": time.June,
	"july": time.July, "jul": time.July,
	"august": time.August, "aug": time.August,
	"september": time.September, "sep": time.September, "sept": time.September,
	"october": time.October, "oct": time.October,
	"november": time.November, "nov": time.November,
	"december": time.December, "dec": time.December,
}

var (
	inPattern       = regexp.MustCompile(`^in\s+(\d+)\s+(day|days|week|weeks|month|months)$`)
	agoPattern      = regexp.MustCompile(`^(\d+)\s+(day|days|week|weeks|month|months)\s+ago$`)
	weekdayPattern  = regexp.MustCompile(`^(next|this|on)?\s*(monday|tuesday|wednesday|thursday|friday|saturday|sunday)$`)
	isoDatePattern  = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})$`)
	usDatePattern   = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})$`)
	monthDayYear    = regexp.MustCompile(`^([a-z]+)\s+(\d{1,2}),?\s+(\d{4})$`)
	dayMonthYear    = regexp.MustCompile(`^(\d{1,2})\s+([a-z]+)\s+(\d{4})$`)
	monthDay        = regexp.MustCompile(`^([a-z]+)\s+(\d{1,2})$`)
	isoDateTime     = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})[T\s](\d{1,2}):(\d{2})(?::(\d{2}))?$`)
	atTimePattern   = regexp.MustCompile(`^(.+?)\s+at\s+(\d{1,2})(?::(\d{2}))?\s*(am|pm)?$`)
	beforePattern   = regexp.MustCompile(`^(\d+)\s+(minute|minutes|hour|hours|day|days)\s+before$`)
	approxMonthDays = 30
)

// Parse interprets text as a date or datetime anchored at now. Expressions
// without an explicit time of day keep now's clock time for relative forms
// and midnight for absolute forms, matching how people phrase due dates.
func Parse(text string, now time.Time) (time.Time, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, apperr.Validationf("empty date text")
	}
	now = now.UTC()

	if t, ok := parseWithTime(text, now); ok {
		return t, nil
	}
	if t, ok := parseRelative(text, now); ok {
		return t, nil
	}
	if t, ok := parseWeekday(text, now); ok {
		return t, nil
	}
	if t, ok := parseAbsolute(text, now); ok {
		return t, nil
	}
	return time.Time{}, apperr.Validationf("could not parse %q as a date", text)
}

// ParseBefore interprets text as a relative reminder offset like
// "1 hour before" or "30 minutes before". The second return is false when
// text is not a before-expression at all.
func ParseBefore(text string) (time.Duration, bool) {
	m := beforePattern.FindStringSubmatch(strings.ToLower(strings.TrimSpace(text)))
	if m == nil {
		return 0, false
	}
	amount, _ := strconv.Atoi(m[1])
	switch {
	case strings.HasPrefix(m[2], "minute"):
		return time.Duration(amount) * time.Minute, true
	case strings.HasPrefix(m[2], "hour"):
		return time.Duration(amount) * time.Hour, true
	default:
		return time.Duration(amount) * 24 * time.Hour, true
	}
}

// FormatRelative renders a time as a short relative phrase for assistant
// replies.
func FormatRelative(t, now time.Time) string {
	days := int(t.UTC().Sub(now.UTC()).Hours() / 24)
	switch {
	case days == 0:
		return "today"
	case days == 1:
		return "tomorrow"
	case days == -1:
		return "yesterday"
	case days > 1:
		return fmt.Sprintf("in %d days", days)
	default:
		return fmt.Sprintf("overdue by %d days", -days)
	}
}

func parseRelative(text string, now time.Time) (time.Time, bool) {
	lower := strings.ToLower(strings.TrimSpace(text))

	switch lower {
	case "today", "now":
		return now, true
	case "tomorrow":
		return now.AddDate(0, 0, 1), true
	case "yesterday":
		return now.AddDate(0, 0, -1), true
	case "next week":
		return now.AddDate(0, 0, 7), true
	case "next month":
		return now.AddDate(0, 0, approxMonthDays), true
	case "this week":
		return now.AddDate(0, 0, -daysSinceMonday(now)), true
	}

	if m := inPattern.FindStringSubmatch(lower); m != nil {
		amount, _ := strconv.Atoi(m[1])
		return now.AddDate(0, 0, amount*unitDays(m[2])), true
	}
	if m := agoPattern.FindStringSubmatch(lower); m != nil {
		amount, _ := strconv.Atoi(m[1])
		return now.AddDate(0, 0, -amount*unitDays(m[2])), true
	}
	return time.Time{}, false
}

func parseWeekday(text string, now time.Time) (time.Time, bool) {
	m := weekdayPattern.FindStringSubmatch(strings.ToLower(strings.TrimSpace(text)))
	if m == nil {
		return time.Time{}, false
	}
	target := weekdays[m[2]]

	switch m[1] {
	case "next":
		// Always a strictly future occurrence.
		return nextWeekday(now, target, false), true
	case "this":
		// This Monday-start week's occurrence, even if already past.
		return now.AddDate(0, 0, mondayIndex(target)-mondayIndex(now.Weekday())), true
	default:
		// "on monday" and bare "monday" allow today.
		return nextWeekday(now, target, true), true
	}
}

func parseAbsolute(text string, now time.Time) (time.Time, bool) {
	text = strings.TrimSpace(text)

	if m := isoDatePattern.FindStringSubmatch(text); m != nil {
		return makeDate(atoi(m[1]), time.Month(atoi(m[2])), atoi(m[3]))
	}
	if m := usDatePattern.FindStringSubmatch(text); m != nil {
		return makeDate(atoi(m[3]), time.Month(atoi(m[1])), atoi(m[2]))
	}

	lower := strings.ToLower(text)
	if m := monthDayYear.FindStringSubmatch(lower); m != nil {
		if month, ok := months[m[1]]; ok {
			return makeDate(atoi(m[3]), month, atoi(m[2]))
		}
	}
	if m := dayMonthYear.FindStringSubmatch(lower); m != nil {
		if month, ok := months[m[2]]; ok {
			return makeDate(atoi(m[3]), month, atoi(m[1]))
		}
	}
	if m := monthDay.FindStringSubmatch(lower); m != nil {
		if month, ok := months[m[1]]; ok {
			date, ok := makeDate(now.Year(), month, atoi(m[2]))
			if !ok {
				return time.Time{}, false
			}
			// A bare month-day in the past rolls to next year.
			if date.Before(now) {
				return makeDate(now.Year()+1, month, atoi(m[2]))
			}
			return date, true
		}
	}
	return time.Time{}, false
}

func parseWithTime(text string, now time.Time) (time.Time, bool) {
	text = strings.TrimSpace(text)

	if m := isoDateTime.FindStringSubmatch(text); m != nil {
		second := 0
		if m[6] != "" {
			second = atoi(m[6])
		}
		date, ok := makeDate(atoi(m[1]), time.Month(atoi(m[2])), atoi(m[3]))
		if !ok {
			return time.Time{}, false
		}
		hour, minute := atoi(m[4]), atoi(m[5])
		if hour > 23 || minute > 59 || second > 59 {
			return time.Time{}, false
		}
		return date.Add(time.Duration(hour)*time.Hour +
			time.Duration(minute)*time.Minute +
			time.Duration(second)*time.Second), true
	}

	m := atTimePattern.FindStringSubmatch(strings.ToLower(text))
	if m == nil {
		return time.Time{}, false
	}
	hour := atoi(m[2])
	minute := 0
	if m[3] != "" {
		minute = atoi(m[3])
	}
	switch m[4] {
	case "pm":
		if hour != 12 {
			hour += 12
		}
	case "am":
		if hour == 12 {
			hour = 0
		}
	}
	if hour > 23 || minute > 59 {
		return time.Time{}, false
	}

	datePart := m[1]
	date, ok := parseRelative(datePart, now)
	if !ok {
		date, ok = parseWeekday(datePart, now)
	}
	if !ok {
		date, ok = parseAbsolute(datePart, now)
	}
	if !ok {
		return time.Time{}, false
	}
	return time.Date(date.Year(), date.Month(), date.Day(), hour, minute, 0, 0, time.UTC), true
}

func nextWeekday(now time.Time, target time.Weekday, includeToday bool) time.Time {
	ahead := int(target) - int(now.Weekday())
	if ahead < 0 || (ahead == 0 && !includeToday) {
		ahead += 7
	}
	return now.AddDate(0, 0, ahead)
}

// mondayIndex numbers weekdays with Monday as 0 and Sunday as 6.
func mondayIndex(d time.Weekday) int {
	return (int(d) + 6) % 7
}

func daysSinceMonday(now time.Time) int {
	return mondayIndex(now.Weekday())
}

func unitDays(unit string) int {
	switch {
	case strings.HasPrefix(unit, "week"):
		return 7
	case strings.HasPrefix(unit, "month"):
		return approxMonthDays
	default:
		return 1
	}
}

func makeDate(year int, month time.Month, day int) (time.Time, bool) {
	if month < time.January || month > time.December || day < 1 {
		return time.Time{}, false
	}
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes overflow; reject inputs like February 30.
	if t.Day() != day || t.Month() != month {
		return time.Time{}, false
	}
	return t, true
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
