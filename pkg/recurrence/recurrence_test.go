package recurrence

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestWeeklyUntilIsInclusive(t *testing.T) {
	start := time.Date(2024, 1, 7, 10, 0, 0, 0, time.UTC)
	until := date(2024, 1, 28)

	got, truncated, err := NewExpander(0).Occurrences(start, Rule{Pattern: Weekly, Until: &until})
	require.NoError(t, err)
	assert.False(t, truncated)
	require.Len(t, got, 4)
	assert.Equal(t, start, got[0])
	assert.Equal(t, time.Date(2024, 1, 14, 10, 0, 0, 0, time.UTC), got[1])
	assert.Equal(t, time.Date(2024, 1, 21, 10, 0, 0, 0, time.UTC), got[2])
	assert.Equal(t, time.Date(2024, 1, 28, 10, 0, 0, 0, time.UTC), got[3])
}

func TestPatternsProduceStrictlyIncreasingInstants(t *testing.T) {
	start := time.Date(2024, 1, 31, 18, 30, 0, 0, time.UTC)
	rules := []Rule{
		{Pattern: Weekly},
		{Pattern: Biweekly},
		{Pattern: Monthly},
		{Pattern: Quarterly},
		{Pattern: Custom, IntervalDays: 3},
	}
	for _, rule := range rules {
		got, truncated, err := NewExpander(12).Occurrences(start, rule)
		require.NoError(t, err, rule.Pattern)
		assert.True(t, truncated, rule.Pattern)
		require.Len(t, got, 12, rule.Pattern)
		assert.Equal(t, start, got[0], rule.Pattern)
		for i := 1; i < len(got); i++ {
			assert.True(t, got[i].After(got[i-1]), "%s: %v !> %v", rule.Pattern, got[i], got[i-1])
		}
	}
}

func TestTruncatedOnlyWhenCapCutsSeries(t *testing.T) {
	start := time.Date(2024, 1, 7, 10, 0, 0, 0, time.UTC)
	exact := date(2024, 1, 28)
	longer := date(2024, 2, 4)

	got, truncated, err := NewExpander(4).Occurrences(start, Rule{Pattern: Weekly, Until: &exact})
	require.NoError(t, err)
	assert.Len(t, got, 4)
	assert.False(t, truncated)

	got, truncated, err = NewExpander(4).Occurrences(start, Rule{Pattern: Weekly, Until: &longer})
	require.NoError(t, err)
	assert.Len(t, got, 4)
	assert.True(t, truncated)
	assert.Equal(t, exact.Add(10*time.Hour), got[3])
}

func TestFixedIntervals(t *testing.T) {
	start := time.Date(2024, 3, 3, 9, 0, 0, 0, time.UTC)
	cases := map[Pattern]time.Duration{
		Weekly:   7 * 24 * time.Hour,
		Biweekly: 14 * 24 * time.Hour,
	}
	for pattern, step := range cases {
		got, _, err := NewExpander(5).Occurrences(start, Rule{Pattern: pattern})
		require.NoError(t, err)
		for i := 1; i < len(got); i++ {
			assert.Equal(t, step, got[i].Sub(got[i-1]), pattern)
		}
	}

	got, _, err := NewExpander(4).Occurrences(start, Rule{Pattern: Custom, IntervalDays: 10})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 13, 9, 0, 0, 0, time.UTC), got[1])
	assert.Equal(t, time.Date(2024, 4, 2, 9, 0, 0, 0, time.UTC), got[3])
}

func TestMonthlyClampsToMonthEnd(t *testing.T) {
	start := time.Date(2024, 1, 31, 10, 0, 0, 0, time.UTC)
	got, _, err := NewExpander(5).Occurrences(start, Rule{Pattern: Monthly})
	require.NoError(t, err)
	want := []time.Time{
		time.Date(2024, 1, 31, 10, 0, 0, 0, time.UTC),
		time.Date(2024, 2, 29, 10, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 31, 10, 0, 0, 0, time.UTC),
		time.Date(2024, 4, 30, 10, 0, 0, 0, time.UTC),
		time.Date(2024, 5, 31, 10, 0, 0, 0, time.UTC),
	}
	assert.Equal(t, want, got)
}

func TestMonthlyKeepsOrdinaryDay(t *testing.T) {
	start := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	got, _, err := NewExpander(3).Occurrences(start, Rule{Pattern: Monthly})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 2, 15, 10, 0, 0, 0, time.UTC), got[1])
	assert.Equal(t, time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC), got[2])
}

func TestQuarterlyUsesCalendarMonths(t *testing.T) {
	start := time.Date(2023, 11, 30, 10, 0, 0, 0, time.UTC)
	got, _, err := NewExpander(4).Occurrences(start, Rule{Pattern: Quarterly})
	require.NoError(t, err)
	want := []time.Time{
		time.Date(2023, 11, 30, 10, 0, 0, 0, time.UTC),
		time.Date(2024, 2, 29, 10, 0, 0, 0, time.UTC),
		time.Date(2024, 5, 30, 10, 0, 0, 0, time.UTC),
		time.Date(2024, 8, 30, 10, 0, 0, 0, time.UTC),
	}
	assert.Equal(t, want, got)
}

func TestWallClockPreservedInLocation(t *testing.T) {
	loc := time.FixedZone("UTC-05:00", -5*3600)
	start := time.Date(2024, 1, 7, 9, 0, 0, 0, loc)
	until := time.Date(2024, 1, 21, 0, 0, 0, 0, loc)
	got, _, err := NewExpander(0).Occurrences(start, Rule{Pattern: Weekly, Until: &until, Location: loc})
	require.NoError(t, err)
	require.Len(t, got, 3)
	for _, instant := range got {
		assert.Equal(t, 14, instant.Hour())
	}
}

func TestInvalidRules(t *testing.T) {
	start := time.Date(2024, 1, 7, 9, 0, 0, 0, time.UTC)
	_, _, err := NewExpander(0).Occurrences(start, Rule{Pattern: "daily"})
	assert.True(t, errors.Is(err, ErrUnknownPattern))

	_, _, err = NewExpander(0).Occurrences(start, Rule{Pattern: Custom})
	assert.True(t, errors.Is(err, ErrInvalidInterval))

	before := date(2024, 1, 6)
	_, _, err = NewExpander(0).Occurrences(start, Rule{Pattern: Weekly, Until: &before})
	assert.True(t, errors.Is(err, ErrEndBeforeStart))
}

func TestNextExtendsSeries(t *testing.T) {
	start := time.Date(2024, 1, 7, 9, 0, 0, 0, time.UTC)
	exp := NewExpander(0)
	got, err := exp.Next(start, Rule{Pattern: Weekly}, time.Date(2024, 1, 21, 9, 0, 0, 0, time.UTC), 2)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{
		time.Date(2024, 1, 28, 9, 0, 0, 0, time.UTC),
		time.Date(2024, 2, 4, 9, 0, 0, 0, time.UTC),
	}, got)

	until := date(2024, 1, 28)
	got, err = exp.Next(start, Rule{Pattern: Weekly, Until: &until}, time.Date(2024, 1, 21, 9, 0, 0, 0, time.UTC), 5)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
