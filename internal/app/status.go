package app

import (
	"context"
	"sort"
	"time"

	"dailyrun/internal/scheduler"
	"dailyrun/internal/schedule"
	logx "dailyrun/pkg/logx"
)

// Status is what the status command prints.
type Status struct {
	At        string              `json:"at"`
	Timezone  string              `json:"timezone"`
	Table     string              `json:"table"`
	HasRun    bool                `json:"has_run"`
	Records   []string            `json:"records"`
	NextRun   time.Time           `json:"next_run"`
	Scheduler *scheduler.Snapshot `json:"scheduler,omitempty"`
}

// Status reads the stored records. Loop counters are included once Start has run.
func (a *App) Status(ctx context.Context, now time.Time) (Status, error) {
	recs, err := a.table.Values(ctx)
	if err != nil {
		return Status{}, err
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].Index() < recs[j].Index() })

	st := Status{
		At:       a.settings.At.String(),
		Timezone: a.settings.Loc.String(),
		Table:    a.settings.Table,
		HasRun:   len(recs) > 0,
		Records:  recordStrings(recs),
	}
	st.NextRun, err = scheduler.NextRun(a.settings.At, recs, now, a.settings.Loc)
	if err != nil {
		return Status{}, err
	}
	if a.sched != nil {
		snap, err := a.sched.Snapshot(ctx)
		if err != nil {
			return Status{}, err
		}
		st.Scheduler = &snap
	}
	return st, nil
}

// Reset deletes every completion record so the action runs again today.
func (a *App) Reset(ctx context.Context) (int, error) {
	n, err := a.table.Clear(ctx)
	if err != nil {
		return n, err
	}
	a.log.Info("completion records cleared", logx.Int("count", n), logx.String("table", a.settings.Table))
	return n, nil
}

func recordStrings(recs []schedule.Schedule) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.String())
	}
	return out
}
