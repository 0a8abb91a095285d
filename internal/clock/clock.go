package clock

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Clock returns the current time of day.
type Clock func() (TimeOfDay, error)

// System reads the wall clock in loc (time.Local when nil).
func System(loc *time.Location) Clock {
	if loc == nil {
		loc = time.Local
	}
	return func() (TimeOfDay, error) {
		return FromTime(time.Now().In(loc)), nil
	}
}

// Fixed always reports t.
func Fixed(t TimeOfDay) Clock {
	return func() (TimeOfDay, error) { return t, nil }
}

// secondsParser is a six-field cron parser with a leading seconds field.
var secondsParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// NextOccurrence returns the first instant at or after from whose wall-clock time in loc is t.
func NextOccurrence(t TimeOfDay, from time.Time, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	spec := fmt.Sprintf("%d %d %d * * *", t.Second(), t.Minute(), t.Hour())
	sched, err := secondsParser.Parse(spec)
	if err != nil {
		return time.Time{}, fmt.Errorf("daily spec %q: %w", spec, err)
	}
	from = from.In(loc)
	frac := time.Duration(t.Nanosecond())
	// cron's Next is strictly after its argument and works in whole seconds.
	whole := sched.Next(from.Truncate(time.Second).Add(-time.Second))
	if !whole.IsZero() && whole.Add(frac).Before(from) {
		whole = sched.Next(whole)
	}
	if whole.IsZero() {
		return time.Time{}, fmt.Errorf("no occurrence of %s after %s", t, from.Format(time.RFC3339))
	}
	return whole.Add(frac), nil
}
