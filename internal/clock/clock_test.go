package clock

import (
	"testing"
	"time"
)

func TestParseVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw  string
		want TimeOfDay
		str  string
	}{
		{raw: "12:45", want: Of(12, 45, 0, 0), str: "12:45:00"},
		{raw: "00:00:00", want: Midnight, str: "00:00:00"},
		{raw: "23:59:59", want: Of(23, 59, 59, 0), str: "23:59:59"},
		{raw: "23:59:59.999999999", want: Of(23, 59, 59, 999999999), str: "23:59:59.999999999"},
		{raw: "08:05:03.5", want: Of(8, 5, 3, 500000000), str: "08:05:03.5"},
		{raw: " 07:30:00.120 ", want: Of(7, 30, 0, 120000000), str: "07:30:00.12"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.raw, func(t *testing.T) {
			t.Parallel()
			got, err := Parse(tt.raw)
			if err != nil {
				t.Fatalf("Parse(%q) error: %v", tt.raw, err)
			}
			if got != tt.want {
				t.Fatalf("Parse(%q) = %v, want %v", tt.raw, got, tt.want)
			}
			if got.String() != tt.str {
				t.Fatalf("String() = %q, want %q", got.String(), tt.str)
			}
		})
	}
}

func TestParseInvalid(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"", "12", "24:00", "12:60", "12:00:60", "1:00", "12:00:00.", "12:00:00.1234567890", "aa:bb", "12:00:00:00", "-1:00"} {
		if _, err := Parse(raw); err == nil {
			t.Fatalf("Parse(%q): expected error", raw)
		}
	}
}

func TestStringRoundTrip(t *testing.T) {
	t.Parallel()
	samples := []TimeOfDay{
		Midnight,
		Of(0, 0, 0, 1),
		Of(12, 0, 0, 0),
		Of(23, 59, 59, 0),
		Of(23, 59, 59, 999999999),
		Of(13, 7, 42, 123000),
	}
	for _, s := range samples {
		got, err := Parse(s.String())
		if err != nil {
			t.Fatalf("Parse(%q) error: %v", s.String(), err)
		}
		if got != s {
			t.Fatalf("round trip %q = %v, want %v", s.String(), got, s)
		}
	}
}

func TestOfNormalizes(t *testing.T) {
	t.Parallel()
	if got := Of(24, 0, 0, 0); got != Midnight {
		t.Fatalf("Of(24,0,0,0) = %v, want midnight", got)
	}
	if got := Of(0, 0, -1, 0); got != Of(23, 59, 59, 0) {
		t.Fatalf("Of(0,0,-1,0) = %v, want 23:59:59", got)
	}
	if !Of(12, 44, 0, 0).Before(Of(12, 45, 0, 0)) || !Of(12, 46, 0, 0).After(Of(12, 45, 0, 0)) {
		t.Fatal("ordering broken")
	}
}

func TestFromTimeUsesLocation(t *testing.T) {
	t.Parallel()
	loc := time.FixedZone("UTC+7", 7*3600)
	ts := time.Date(2024, 5, 1, 20, 30, 0, 0, time.UTC)
	if got := FromTime(ts.In(loc)); got != Of(3, 30, 0, 0) {
		t.Fatalf("FromTime = %v, want 03:30:00", got)
	}
}

func TestFixedClock(t *testing.T) {
	t.Parallel()
	c := Fixed(Of(12, 44, 0, 0))
	got, err := c()
	if err != nil || got != Of(12, 44, 0, 0) {
		t.Fatalf("Fixed() = %v, %v", got, err)
	}
}

func TestNextOccurrence(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		at   TimeOfDay // zero means 12:45
		from time.Time
		want time.Time
	}{
		{name: "later today", from: time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC), want: time.Date(2024, 3, 10, 12, 45, 0, 0, time.UTC)},
		{name: "exactly now", from: time.Date(2024, 3, 10, 12, 45, 0, 0, time.UTC), want: time.Date(2024, 3, 10, 12, 45, 0, 0, time.UTC)},
		{name: "tomorrow", from: time.Date(2024, 3, 10, 12, 46, 0, 0, time.UTC), want: time.Date(2024, 3, 11, 12, 45, 0, 0, time.UTC)},
		{name: "month end", from: time.Date(2024, 2, 29, 23, 0, 0, 0, time.UTC), want: time.Date(2024, 3, 1, 12, 45, 0, 0, time.UTC)},
		{name: "half a second late", from: time.Date(2024, 3, 10, 12, 45, 0, 5e8, time.UTC), want: time.Date(2024, 3, 11, 12, 45, 0, 0, time.UTC)},
		{name: "fractional target ahead", at: Of(12, 45, 0, 25e7), from: time.Date(2024, 3, 10, 12, 45, 0, 1e8, time.UTC), want: time.Date(2024, 3, 10, 12, 45, 0, 25e7, time.UTC)},
		{name: "fractional target passed", at: Of(12, 45, 0, 25e7), from: time.Date(2024, 3, 10, 12, 45, 0, 3e8, time.UTC), want: time.Date(2024, 3, 11, 12, 45, 0, 25e7, time.UTC)},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			at := tt.at
			if at == 0 {
				at = Of(12, 45, 0, 0)
			}
			got, err := NextOccurrence(at, tt.from, time.UTC)
			if err == nil && got.Before(tt.from) {
				t.Fatalf("NextOccurrence = %s is before from %s", got, tt.from)
			}
			if err != nil {
				t.Fatalf("NextOccurrence error: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Fatalf("NextOccurrence = %s, want %s", got, tt.want)
			}
		})
	}
}
