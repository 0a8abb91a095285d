package clock

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const day = 24 * time.Hour

// TimeOfDay is a wall-clock time without a date, stored as nanoseconds since midnight.
// Valid values are in [0, 24h).
type TimeOfDay int64

// Midnight is 00:00:00.
const Midnight TimeOfDay = 0

// Of builds a TimeOfDay; fields are normalized modulo one day.
func Of(hour, min, sec, nsec int) TimeOfDay {
	d := time.Duration(hour)*time.Hour +
		time.Duration(min)*time.Minute +
		time.Duration(sec)*time.Second +
		time.Duration(nsec)
	d %= day
	if d < 0 {
		d += day
	}
	return TimeOfDay(d)
}

// FromTime returns the wall-clock time of t in t's location.
func FromTime(t time.Time) TimeOfDay {
	return Of(t.Hour(), t.Minute(), t.Second(), t.Nanosecond())
}

func (t TimeOfDay) Duration() time.Duration { return time.Duration(t) }
func (t TimeOfDay) Hour() int               { return int(time.Duration(t) / time.Hour) }
func (t TimeOfDay) Minute() int             { return int(time.Duration(t) % time.Hour / time.Minute) }
func (t TimeOfDay) Second() int             { return int(time.Duration(t) % time.Minute / time.Second) }
func (t TimeOfDay) Nanosecond() int         { return int(time.Duration(t) % time.Second) }

func (t TimeOfDay) Before(u TimeOfDay) bool { return t < u }
func (t TimeOfDay) After(u TimeOfDay) bool  { return t > u }

// Valid reports whether t is within a single day.
func (t TimeOfDay) Valid() bool { return t >= 0 && time.Duration(t) < day }

// On places t on the calendar date of d, in d's location.
func (t TimeOfDay) On(d time.Time) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), d.Location())
}

// String renders HH:MM:SS with an optional fraction (trailing zeros trimmed).
func (t TimeOfDay) String() string {
	s := fmt.Sprintf("%02d:%02d:%02d", t.Hour(), t.Minute(), t.Second())
	if ns := t.Nanosecond(); ns != 0 {
		frac := strings.TrimRight(fmt.Sprintf("%09d", ns), "0")
		s += "." + frac
	}
	return s
}

// Parse accepts "HH:MM", "HH:MM:SS" and "HH:MM:SS.fffffffff" (1-9 fraction digits).
func Parse(raw string) (TimeOfDay, error) {
	s := strings.TrimSpace(raw)
	parts := strings.Split(s, ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, fmt.Errorf("invalid time of day %q (want HH:MM or HH:MM:SS[.fraction])", raw)
	}

	hh, err := parseField(parts[0], 23)
	if err != nil {
		return 0, fmt.Errorf("invalid hour in %q: %w", raw, err)
	}
	mm, err := parseField(parts[1], 59)
	if err != nil {
		return 0, fmt.Errorf("invalid minute in %q: %w", raw, err)
	}
	ss, ns := 0, 0
	if len(parts) == 3 {
		secPart, fracPart, hasFrac := strings.Cut(parts[2], ".")
		ss, err = parseField(secPart, 59)
		if err != nil {
			return 0, fmt.Errorf("invalid second in %q: %w", raw, err)
		}
		if hasFrac {
			ns, err = parseFraction(fracPart)
			if err != nil {
				return 0, fmt.Errorf("invalid fraction in %q: %w", raw, err)
			}
		}
	}
	return Of(hh, mm, ss, ns), nil
}

// MustParse is Parse for constants; it panics on error.
func MustParse(s string) TimeOfDay {
	t, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return t
}

func parseField(s string, max int) (int, error) {
	if len(s) != 2 || !isDigits(s) {
		return 0, fmt.Errorf("want two digits, got %q", s)
	}
	n, _ := strconv.Atoi(s)
	if n > max {
		return 0, fmt.Errorf("%d out of range 0..%d", n, max)
	}
	return n, nil
}

func parseFraction(s string) (int, error) {
	if len(s) == 0 || len(s) > 9 || !isDigits(s) {
		return 0, fmt.Errorf("want 1-9 digits, got %q", s)
	}
	n, _ := strconv.Atoi(s + strings.Repeat("0", 9-len(s)))
	return n, nil
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// MarshalText lets TimeOfDay appear in JSON/YAML as its String form.
func (t TimeOfDay) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *TimeOfDay) UnmarshalText(b []byte) error {
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}
