package timezone

import (
	"errors"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	dates := []string{"2024-01-07", "2024-02-29", "1999-12-31", "2030-06-15"}
	times := []string{"00:00", "09:30", "12:00", "23:59"}
	offsets := []int{-720, -300, -210, 0, 60, 330, 345, 840}

	for _, d := range dates {
		for _, tm := range times {
			for _, o := range offsets {
				instant, err := ToStorageInstant(d, tm, o)
				require.NoError(t, err, "%s %s %d", d, tm, o)
				assert.Equal(t, time.UTC, instant.Location())
				gotDate, gotTime := ToDisplay(instant, o)
				assert.Equal(t, d, gotDate, "%s %s %d", d, tm, o)
				assert.Equal(t, tm, gotTime, "%s %s %d", d, tm, o)
			}
		}
	}
}

func TestToStorageInstantAppliesOffset(t *testing.T) {
	instant, err := ToStorageInstant("2024-01-07", "09:00", -300)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 7, 14, 0, 0, 0, time.UTC), instant)

	instant, err = ToStorageInstant("2024-01-07", "02:00", 330)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 6, 20, 30, 0, 0, time.UTC), instant)
}

func TestToStorageInstantRejectsMalformedInput(t *testing.T) {
	cases := []struct {
		date, clock string
		offset      int
	}{
		{"2024-02-30", "09:00", 0},
		{"2024-1-07", "09:00", 0},
		{"07/01/2024", "09:00", 0},
		{"2024-01-07", "9:00", 0},
		{"2024-01-07", "24:00", 0},
		{"2024-01-07", "09:60", 0},
		{"2024-01-07", "09:00:00", 0},
		{"2024-01-07", "09:00", 900},
		{"2024-01-07", "09:00", -721},
	}
	for _, tc := range cases {
		_, err := ToStorageInstant(tc.date, tc.clock, tc.offset)
		assert.True(t, errors.Is(err, ErrInvalidTimeInput), "%+v", tc)
	}
}

func TestOffsetAt(t *testing.T) {
	summer := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	winter := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, -240, OffsetAt("America/New_York", 0, summer))
	assert.Equal(t, -300, OffsetAt("America/New_York", 0, winter))
	assert.Equal(t, 90, OffsetAt("", 90, summer))
	assert.Equal(t, 90, OffsetAt("Not/AZone", 90, summer))
}

func TestEndOfLocalDay(t *testing.T) {
	instant := time.Date(2024, 1, 28, 15, 0, 0, 0, time.UTC)
	end := EndOfLocalDay(instant, -300)
	d, tm := ToDisplay(end, -300)
	assert.Equal(t, "2024-01-28", d)
	assert.Equal(t, "23:59", tm)
}
