// Package recurrence implements the worker that spawns the next occurrence
// of a repeating task when its current occurrence is completed.
package recurrence

import (
	"time"

	"github.com/taskloop/taskloop/internal/common/apperr"
	v1 "github.com/taskloop/taskloop/pkg/api/v1"
)

// NextDue computes the due time of the successor occurrence. The result is
// always strictly after now: a base far in the past is advanced by whole
// increments until it lands in the future, so catching up on a stale task
// yields one successor, not a backlog.
func NextDue(base time.Time, rule v1.Recurrence, now time.Time) (time.Time, error) {
	if !rule.Repeats() {
		return time.Time{}, apperr.Validationf("recurrence %q does not repeat", rule)
	}

	next := step(base, rule, 1)
	for n := 2; !next.After(now); n++ {
		next = step(base, rule, n)
	}
	return next, nil
}

// step advances base by n increments of the rule. Monthly steps are always
// computed from the base so the day-of-month anchor survives clamping:
// Jan 31 steps to Feb 28 and then to Mar 31, not Mar 28.
func step(base time.Time, rule v1.Recurrence, n int) time.Time {
	switch rule {
	case v1.RecurrenceDaily:
		return base.AddDate(0, 0, n)
	case v1.RecurrenceWeekly:
		return base.AddDate(0, 0, 7*n)
	default:
		return addMonthsClamped(base, n)
	}
}

// addMonthsClamped adds months to t, clamping the day to the last day of the
// target month when the source day does not exist there (Jan 31 -> Feb 28/29).
func addMonthsClamped(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	firstOfTarget := time.Date(year, month, 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	firstOfTarget = firstOfTarget.AddDate(0, months, 0)

	if last := lastDayOfMonth(firstOfTarget.Year(), firstOfTarget.Month()); day > last {
		day = last
	}
	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), day,
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func lastDayOfMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// NextRemind carries the reminder lead time of the source occurrence over to
// the successor. It returns nil when the source had no due/remind pair to
// derive an offset from, or when the carried reminder would already be in
// the past.
func NextRemind(nextDue time.Time, srcDue, srcRemind *time.Time, now time.Time) *time.Time {
	if srcDue == nil || srcRemind == nil {
		return nil
	}
	remind := nextDue.Add(srcRemind.Sub(*srcDue))
	if !remind.After(now) {
		return nil
	}
	return &remind
}
