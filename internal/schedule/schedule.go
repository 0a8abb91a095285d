// Package schedule defines the completion record written when the daily action ran.
package schedule

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"dailyrun/internal/clock"
)

// PendingIndex marks a record the store has not assigned an identity to yet.
const PendingIndex int64 = 0

const tokenSep = "|"

var ErrParse = errors.New("schedule: parse error")

// Schedule records that the action ran and the time of day it was scheduled for.
// It is comparable; equality covers both fields.
type Schedule struct {
	index int64
	time  clock.TimeOfDay
}

func New(index int64, t clock.TimeOfDay) Schedule {
	return Schedule{index: index, time: t}
}

func (s Schedule) Index() int64          { return s.index }
func (s Schedule) Time() clock.TimeOfDay { return s.time }
func (s Schedule) IsPending() bool       { return s.index == PendingIndex }

// WithIndex returns a copy carrying the store-assigned index.
func (s Schedule) WithIndex(index int64) Schedule {
	s.index = index
	return s
}

func (s Schedule) String() string {
	return fmt.Sprintf("Schedule{index=%d, time=%s}", s.index, s.time)
}

// Serialize encodes the record as escaped tokens joined by "|".
func (s Schedule) Serialize() string {
	tokens := []string{strconv.FormatInt(s.index, 10), s.time.String()}
	for i, t := range tokens {
		tokens[i] = url.QueryEscape(t)
	}
	return strings.Join(tokens, tokenSep)
}

// Parse decodes the output of Serialize.
func Parse(text string) (Schedule, error) {
	tokens := strings.Split(text, tokenSep)
	if len(tokens) != 2 {
		return Schedule{}, fmt.Errorf("%w: want 2 tokens, got %d in %q", ErrParse, len(tokens), text)
	}
	for i, t := range tokens {
		v, err := url.QueryUnescape(t)
		if err != nil {
			return Schedule{}, fmt.Errorf("%w: token %d: %v", ErrParse, i, err)
		}
		tokens[i] = v
	}

	index, err := strconv.ParseInt(tokens[0], 10, 64)
	if err != nil {
		return Schedule{}, fmt.Errorf("%w: index %q: %v", ErrParse, tokens[0], err)
	}
	t, err := clock.Parse(tokens[1])
	if err != nil {
		return Schedule{}, fmt.Errorf("%w: %v", ErrParse, err)
	}
	return New(index, t), nil
}
