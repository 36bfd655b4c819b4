// Package recurrence materializes the start instants of a recurring event
// series.
package recurrence

import (
	"errors"
	"fmt"
	"time"

	"github.com/teambition/rrule-go"
)

// Pattern names a recurrence interval.
type Pattern string

const (
	Weekly    Pattern = "weekly"
	Biweekly  Pattern = "biweekly"
	Monthly   Pattern = "monthly"
	Quarterly Pattern = "quarterly"
	Custom    Pattern = "custom"
)

// DefaultMaxInstances caps series without an end date (two years weekly).
const DefaultMaxInstances = 104

var (
	ErrUnknownPattern  = errors.New("unknown recurrence pattern")
	ErrInvalidInterval = errors.New("custom recurrence requires an interval of at least one day")
	ErrEndBeforeStart  = errors.New("recurrence end is before the first instance")
)

// Valid reports whether p is a supported pattern.
func (p Pattern) Valid() bool {
	switch p {
	case Weekly, Biweekly, Monthly, Quarterly, Custom:
		return true
	}
	return false
}

// Rule describes how a series repeats.
type Rule struct {
	Pattern      Pattern
	IntervalDays int
	// Until is the last local day (inclusive) an instance may fall on.
	Until *time.Time
	// Location anchors wall-clock and calendar-month arithmetic.
	Location *time.Location
}

// Expander generates series instants bounded by a safety cap.
type Expander struct {
	maxInstances int
}

// NewExpander builds an expander. Non-positive caps use DefaultMaxInstances.
func NewExpander(maxInstances int) *Expander {
	if maxInstances <= 0 {
		maxInstances = DefaultMaxInstances
	}
	return &Expander{maxInstances: maxInstances}
}

// MaxInstances returns the safety cap.
func (e *Expander) MaxInstances() int {
	return e.maxInstances
}

// Occurrences returns the series instants starting at start, in UTC and
// strictly increasing. The first element is always start itself. truncated is
// true when the cap stopped generation before the end date did.
func (e *Expander) Occurrences(start time.Time, rule Rule) (instants []time.Time, truncated bool, err error) {
	// One past the cap tells a capped series apart from one that ends exactly on it.
	r, err := e.build(start, rule, e.maxInstances+1)
	if err != nil {
		return nil, false, err
	}
	all := r.All()
	if len(all) == 0 {
		return nil, false, ErrEndBeforeStart
	}
	if len(all) > e.maxInstances {
		all, truncated = all[:e.maxInstances], true
	}
	instants = make([]time.Time, len(all))
	for i, t := range all {
		instants[i] = t.UTC()
	}
	return instants, truncated, nil
}

// Next returns up to limit instants of the series strictly after the given
// instant. It extends open-ended series without regenerating earlier ones.
func (e *Expander) Next(start time.Time, rule Rule, after time.Time, limit int) ([]time.Time, error) {
	if limit <= 0 {
		return nil, nil
	}
	r, err := e.build(start, rule, 0)
	if err != nil {
		return nil, err
	}
	out := make([]time.Time, 0, limit)
	cursor := after.In(location(rule))
	for len(out) < limit {
		next := r.After(cursor, false)
		if next.IsZero() {
			break
		}
		out = append(out, next.UTC())
		cursor = next
	}
	return out, nil
}

func (e *Expander) build(start time.Time, rule Rule, count int) (*rrule.RRule, error) {
	if !rule.Pattern.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPattern, rule.Pattern)
	}
	loc := location(rule)
	dtstart := start.In(loc)

	opt := rrule.ROption{
		Dtstart: dtstart,
		Count:   count,
	}

	switch rule.Pattern {
	case Weekly:
		opt.Freq, opt.Interval = rrule.WEEKLY, 1
	case Biweekly:
		opt.Freq, opt.Interval = rrule.WEEKLY, 2
	case Monthly:
		opt.Freq, opt.Interval = rrule.MONTHLY, 1
		opt.Bymonthday, opt.Bysetpos = clampedMonthDays(dtstart.Day())
	case Quarterly:
		opt.Freq, opt.Interval = rrule.MONTHLY, 3
		opt.Bymonthday, opt.Bysetpos = clampedMonthDays(dtstart.Day())
	case Custom:
		if rule.IntervalDays < 1 {
			return nil, ErrInvalidInterval
		}
		opt.Freq, opt.Interval = rrule.DAILY, rule.IntervalDays
	}

	if rule.Until != nil {
		until := rule.Until.In(loc)
		endOfDay := time.Date(until.Year(), until.Month(), until.Day(), 23, 59, 59, 0, loc)
		if endOfDay.Before(dtstart) {
			return nil, ErrEndBeforeStart
		}
		opt.Until = endOfDay
	}

	r, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, fmt.Errorf("build recurrence rule: %w", err)
	}
	return r, nil
}

// clampedMonthDays keeps the seed's day of month, falling back to the last
// day of shorter months: the latest of days 28..seedDay that exists.
func clampedMonthDays(seedDay int) ([]int, []int) {
	if seedDay <= 28 {
		return nil, nil
	}
	days := make([]int, 0, seedDay-27)
	for d := 28; d <= seedDay; d++ {
		days = append(days, d)
	}
	return days, []int{-1}
}

func location(rule Rule) *time.Location {
	if rule.Location != nil {
		return rule.Location
	}
	return time.UTC
}
