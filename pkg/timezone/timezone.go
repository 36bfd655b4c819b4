// Package timezone converts between stored UTC instants and a church's local
// wall clock. Conversions use a fixed offset in minutes east of UTC; daylight
// saving transitions are not modelled, callers resolve the offset in effect
// with OffsetAt before converting.
package timezone

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"

	MinOffsetMinutes = -12 * 60
	MaxOffsetMinutes = 14 * 60
)

// ErrInvalidTimeInput is returned for malformed dates, times or offsets.
var ErrInvalidTimeInput = errors.New("invalid time input")

var (
	datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	timePattern = regexp.MustCompile(`^\d{2}:\d{2}$`)
)

// Clock abstracts the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// Zone returns a fixed location for the offset.
func Zone(offsetMinutes int) *time.Location {
	sign := '+'
	abs := offsetMinutes
	if abs < 0 {
		sign = '-'
		abs = -abs
	}
	name := fmt.Sprintf("UTC%c%02d:%02d", sign, abs/60, abs%60)
	return time.FixedZone(name, offsetMinutes*60)
}

// ValidateOffset rejects offsets outside the real-world range.
func ValidateOffset(offsetMinutes int) error {
	if offsetMinutes < MinOffsetMinutes || offsetMinutes > MaxOffsetMinutes {
		return fmt.Errorf("%w: offset %d outside [%d, %d]", ErrInvalidTimeInput, offsetMinutes, MinOffsetMinutes, MaxOffsetMinutes)
	}
	return nil
}

// ToStorageInstant converts a local date (YYYY-MM-DD) and time (HH:MM) into a
// UTC instant.
func ToStorageInstant(localDate, localTime string, offsetMinutes int) (time.Time, error) {
	if err := ValidateOffset(offsetMinutes); err != nil {
		return time.Time{}, err
	}
	if !datePattern.MatchString(localDate) {
		return time.Time{}, fmt.Errorf("%w: date %q, expected YYYY-MM-DD", ErrInvalidTimeInput, localDate)
	}
	if !timePattern.MatchString(localTime) {
		return time.Time{}, fmt.Errorf("%w: time %q, expected HH:MM", ErrInvalidTimeInput, localTime)
	}
	day, err := time.Parse(DateLayout, localDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidTimeInput, err)
	}
	clock, err := time.Parse(TimeLayout, localTime)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidTimeInput, err)
	}
	local := time.Date(day.Year(), day.Month(), day.Day(), clock.Hour(), clock.Minute(), 0, 0, Zone(offsetMinutes))
	return local.UTC(), nil
}

// ToDisplay converts an instant into the local date and time strings.
func ToDisplay(instant time.Time, offsetMinutes int) (string, string) {
	local := instant.In(Zone(offsetMinutes))
	return local.Format(DateLayout), local.Format(TimeLayout)
}

// ParseLocalDate parses a YYYY-MM-DD date as midnight in the given offset.
func ParseLocalDate(localDate string, offsetMinutes int) (time.Time, error) {
	return ToStorageInstant(localDate, "00:00", offsetMinutes)
}

// EndOfLocalDay returns the last instant of the local day containing t.
func EndOfLocalDay(t time.Time, offsetMinutes int) time.Time {
	local := t.In(Zone(offsetMinutes))
	next := time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, local.Location())
	return next.Add(-time.Nanosecond).UTC()
}

// OffsetAt resolves the offset of an IANA zone at the given instant, falling
// back to the stored offset when the zone is empty or unknown.
func OffsetAt(zoneName string, fallbackMinutes int, instant time.Time) int {
	if zoneName == "" {
		return fallbackMinutes
	}
	loc, err := time.LoadLocation(zoneName)
	if err != nil {
		return fallbackMinutes
	}
	_, seconds := instant.In(loc).Zone()
	return seconds / 60
}
