package dates

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskloop/taskloop/internal/common/apperr"
)

// Wednesday, 14 January 2026, 10:30 UTC.
var anchor = time.Date(2026, time.January, 14, 10, 30, 0, 0, time.UTC)

func TestParseRelative(t *testing.T) {
	cases := []struct {
		input string
		want  time.Time
	}{
		{"today", anchor},
		{"now", anchor},
		{"tomorrow", anchor.AddDate(0, 0, 1)},
		{"yesterday", anchor.AddDate(0, 0, -1)},
		{"in 3 days", anchor.AddDate(0, 0, 3)},
		{"in 2 weeks", anchor.AddDate(0, 0, 14)},
		{"in 1 month", anchor.AddDate(0, 0, 30)},
		{"5 days ago", anchor.AddDate(0, 0, -5)},
		{"next week", anchor.AddDate(0, 0, 7)},
		{"next month", anchor.AddDate(0, 0, 30)},
		{"this week", anchor.AddDate(0, 0, -2)},
	}
	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			got, err := Parse(tc.input, anchor)
			require.NoError(t, err)
			assert.True(t, tc.want.Equal(got), "want %s, got %s", tc.want, got)
		})
	}
}

func TestParseWeekday(t *testing.T) {
	cases := []struct {
		input string
		want  time.Time
	}{
		// Anchor is a Wednesday.
		{"friday", anchor.AddDate(0, 0, 2)},
		{"on friday", anchor.AddDate(0, 0, 2)},
		{"monday", anchor.AddDate(0, 0, 5)},
		{"wednesday", anchor}, // today counts for bare day names
		{"next wednesday", anchor.AddDate(0, 0, 7)},
		{"next friday", anchor.AddDate(0, 0, 2)},
		{"this monday", anchor.AddDate(0, 0, -2)},
		{"this friday", anchor.AddDate(0, 0, 2)},
	}
	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			got, err := Parse(tc.input, anchor)
			require.NoError(t, err)
			assert.True(t, tc.want.Equal(got), "want %s, got %s", tc.want, got)
		})
	}
}

func TestParseAbsolute(t *testing.T) {
	cases := []struct {
		input string
		want  time.Time
	}{
		{"2026-03-15", time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC)},
		{"3/15/2026", time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC)},
		{"March 15, 2026", time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC)},
		{"mar 15 2026", time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC)},
		{"15 March 2026", time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC)},
		// Bare month-day in the future stays this year.
		{"March 15", time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC)},
		// Bare month-day already past rolls to next year.
		{"January 2", time.Date(2027, time.January, 2, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			got, err := Parse(tc.input, anchor)
			require.NoError(t, err)
			assert.True(t, tc.want.Equal(got), "want %s, got %s", tc.want, got)
		})
	}
}

func TestParseWithTime(t *testing.T) {
	cases := []struct {
		input string
		want  time.Time
	}{
		{"2026-03-15 14:30", time.Date(2026, time.March, 15, 14, 30, 0, 0, time.UTC)},
		{"2026-03-15T14:30:45", time.Date(2026, time.March, 15, 14, 30, 45, 0, time.UTC)},
		{"tomorrow at 3pm", time.Date(2026, time.January, 15, 15, 0, 0, 0, time.UTC)},
		{"tomorrow at 12am", time.Date(2026, time.January, 15, 0, 0, 0, 0, time.UTC)},
		{"tomorrow at 12pm", time.Date(2026, time.January, 15, 12, 0, 0, 0, time.UTC)},
		{"friday at 2:30pm", time.Date(2026, time.January, 16, 14, 30, 0, 0, time.UTC)},
		{"2026-03-15 at 9am", time.Date(2026, time.March, 15, 9, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			got, err := Parse(tc.input, anchor)
			require.NoError(t, err)
			assert.True(t, tc.want.Equal(got), "want %s, got %s", tc.want, got)
		})
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	for _, input := range []string{"", "   ", "whenever", "2026-02-30", "13/45/2026", "tomorrow at 25pm"} {
		t.Run(input, func(t *testing.T) {
			_, err := Parse(input, anchor)
			require.Error(t, err)
			assert.True(t, apperr.IsValidation(err))
		})
	}
}

func TestParseBefore(t *testing.T) {
	cases := []struct {
		input string
		want  time.Duration
		ok    bool
	}{
		{"1 hour before", time.Hour, true},
		{"30 minutes before", 30 * time.Minute, true},
		{"2 days before", 48 * time.Hour, true},
		{"tomorrow at 9am", 0, false},
		{"before", 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			got, ok := ParseBefore(tc.input)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestFormatRelative(t *testing.T) {
	assert.Equal(t, "today", FormatRelative(anchor.Add(time.Hour), anchor))
	assert.Equal(t, "tomorrow", FormatRelative(anchor.AddDate(0, 0, 1), anchor))
	assert.Equal(t, "yesterday", FormatRelative(anchor.AddDate(0, 0, -1), anchor))
	assert.Equal(t, "in 3 days", FormatRelative(anchor.AddDate(0, 0, 3), anchor))
	assert.Equal(t, "overdue by 2 days", FormatRelative(anchor.AddDate(0, 0, -2), anchor))
}