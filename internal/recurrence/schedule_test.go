package recurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/taskloop/taskloop/pkg/api/v1"
)

func date(year int, month time.Month, day, hour, minute int) time.Time {
	return time.Date(year, month, day, hour, minute, 0, 0, time.UTC)
}

func TestNextDueSimpleIncrements(t *testing.T) {
	now := date(2026, time.January, 10, 0, 0)
	base := date(2026, time.January, 10, 9, 0)

	tests := []struct {
		rule v1.Recurrence
		want time.Time
	}{
		{v1.RecurrenceDaily, date(2026, time.January, 11, 9, 0)},
		{v1.RecurrenceWeekly, date(2026, time.January, 17, 9, 0)},
		{v1.RecurrenceMonthly, date(2026, time.February, 10, 9, 0)},
	}
	for _, tt := range tests {
		t.Run(string(tt.rule), func(t *testing.T) {
			got, err := NextDue(base, tt.rule, now)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNextDueMonthEndClamp(t *testing.T) {
	now := date(2026, time.January, 31, 0, 0)

	got, err := NextDue(date(2026, time.January, 31, 9, 0), v1.RecurrenceMonthly, now)
	require.NoError(t, err)
	assert.Equal(t, date(2026, time.February, 28, 9, 0), got)

	// Leap year February keeps the 29th.
	got, err = NextDue(date(2028, time.January, 31, 9, 0), v1.RecurrenceMonthly, date(2028, time.January, 31, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, date(2028, time.February, 29, 9, 0), got)
}

// The day anchor survives an intermediate short month: Jan 31 stepped past
// February lands on Mar 31, not Mar 28.
func TestNextDueMonthlyAnchorSurvivesClamp(t *testing.T) {
	base := date(2026, time.January, 31, 9, 0)
	now := date(2026, time.March, 5, 0, 0)

	got, err := NextDue(base, v1.RecurrenceMonthly, now)
	require.NoError(t, err)
	assert.Equal(t, date(2026, time.March, 31, 9, 0), got)
}

// A task completed long after its due date yields a single future
// occurrence rather than one per missed period.
func TestNextDueAdvancesPastNow(t *testing.T) {
	base := date(2025, time.June, 1, 8, 0)
	now := date(2026, time.January, 10, 12, 0)

	got, err := NextDue(base, v1.RecurrenceDaily, now)
	require.NoError(t, err)
	assert.Equal(t, date(2026, time.January, 11, 8, 0), got)

	got, err = NextDue(base, v1.RecurrenceWeekly, now)
	require.NoError(t, err)
	assert.True(t, got.After(now))
	assert.Equal(t, base.Weekday(), got.Weekday())
	assert.True(t, got.Sub(now) <= 7*24*time.Hour)
}

func TestNextDueRejectsNonRepeating(t *testing.T) {
	_, err := NextDue(time.Now(), v1.RecurrenceNone, time.Now())
	require.Error(t, err)

	_, err = NextDue(time.Now(), v1.Recurrence("yearly"), time.Now())
	require.Error(t, err)
}

func TestNextRemindPreservesOffset(t *testing.T) {
	now := date(2026, time.January, 10, 0, 0)
	srcDue := date(2026, time.January, 9, 9, 0)
	srcRemind := srcDue.Add(-2 * time.Hour)
	nextDue := date(2026, time.January, 16, 9, 0)

	remind := NextRemind(nextDue, &srcDue, &srcRemind, now)
	require.NotNil(t, remind)
	assert.Equal(t, nextDue.Add(-2*time.Hour), *remind)
}

func TestNextRemindDroppedWithoutPair(t *testing.T) {
	now := date(2026, time.January, 10, 0, 0)
	srcDue := date(2026, time.January, 9, 9, 0)
	srcRemind := srcDue.Add(-time.Hour)
	nextDue := date(2026, time.January, 16, 9, 0)

	assert.Nil(t, NextRemind(nextDue, nil, &srcRemind, now))
	assert.Nil(t, NextRemind(nextDue, &srcDue, nil, now))

	// A carried reminder that already passed is dropped.
	assert.Nil(t, NextRemind(nextDue, &srcDue, &srcRemind, nextDue))
}
