package scheduler

import (
	"context"
	"fmt"
	"time"

	"dailyrun/internal/clock"
	"dailyrun/internal/schedule"
)

// Snapshot is a point-in-time view for status output.
type Snapshot struct {
	At       string    `json:"at"`
	Running  bool      `json:"running"`
	HasRun   bool      `json:"has_run"`
	Records  []string  `json:"records"`
	Ticks    uint64    `json:"ticks"`
	Fires    uint64    `json:"fires"`
	Failures uint64    `json:"failures"`
	Pruned   uint64    `json:"pruned"`
	LastErr  string    `json:"last_error,omitempty"`
	NextRun  time.Time `json:"next_run"`
}

// Snapshot reports counters and stored records. NextRun uses the scheduler's
// clock for the time of day and today's date in its location.
func (s *Scheduler) Snapshot(ctx context.Context) (Snapshot, error) {
	recs, err := s.store.Values(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{
		At:       s.at.String(),
		Running:  !s.stopped(),
		HasRun:   len(recs) > 0,
		Records:  make([]string, 0, len(recs)),
		Ticks:    s.ticks.Load(),
		Fires:    s.fires.Load(),
		Failures: s.failures.Load(),
		Pruned:   s.pruned.Load(),
	}
	for _, r := range recs {
		snap.Records = append(snap.Records, r.String())
	}
	if v, ok := s.lastErr.Load().(string); ok {
		snap.LastErr = v
	}
	tod, err := s.now()
	if err != nil {
		return Snapshot{}, fmt.Errorf("scheduler: read clock: %w", err)
	}
	now := tod.On(time.Now().In(s.loc))
	next, err := NextRun(s.at, recs, now, s.loc)
	if err != nil {
		return Snapshot{}, err
	}
	snap.NextRun = next
	return snap, nil
}

func (s *Scheduler) stopped() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// NextRun predicts when the action will next fire. When the target has passed
// and no record confirms a run today, the action is due now.
func NextRun(at clock.TimeOfDay, records []schedule.Schedule, now time.Time, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	now = now.In(loc)
	tod := clock.FromTime(now)

	if !tod.After(at) {
		return clock.NextOccurrence(at, now, loc)
	}
	if !ranBefore(records, tod) {
		return now, nil
	}
	tomorrow := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, loc)
	return clock.NextOccurrence(at, tomorrow, loc)
}
