package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"dailyrun/internal/clock"
	"dailyrun/internal/eventbus"
	"dailyrun/internal/schedule"
	"dailyrun/internal/storage"
	logx "dailyrun/pkg/logx"
)

// heldSubmitter keeps the loop without running it, so ticks can be driven by hand.
type heldSubmitter struct {
	mu  sync.Mutex
	fns []func(context.Context) error
}

func (h *heldSubmitter) Go(name string, fn func(context.Context) error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fns = append(h.fns, fn)
}

// goSubmitter runs the loop on a goroutine after an optional delay.
type goSubmitter struct {
	ctx   context.Context
	delay time.Duration
}

func (g goSubmitter) Go(name string, fn func(context.Context) error) {
	ctx := g.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	go func() {
		if g.delay > 0 {
			time.Sleep(g.delay)
		}
		_ = fn(ctx)
	}()
}

type manualClock struct{ v atomic.Int64 }

func newManualClock(t clock.TimeOfDay) *manualClock {
	c := &manualClock{}
	c.v.Store(int64(t))
	return c
}

func (c *manualClock) Set(t clock.TimeOfDay) { c.v.Store(int64(t)) }
func (c *manualClock) Clock() clock.Clock {
	return func() (clock.TimeOfDay, error) { return clock.TimeOfDay(c.v.Load()), nil }
}

type counter struct {
	n   atomic.Int64
	mu  sync.Mutex
	err error
}

func (c *counter) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

func (c *counter) action() error {
	c.n.Add(1)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func newTable(t *testing.T) *storage.Table[schedule.Schedule] {
	t.Helper()
	tbl, err := storage.OpenTable(context.Background(), storage.NewMemory(), "schedule", schedule.Parse)
	if err != nil {
		t.Fatalf("OpenTable: %v", err)
	}
	return tbl
}

func mustValues(t *testing.T, st Store) []schedule.Schedule {
	t.Helper()
	vs, err := st.Values(context.Background())
	if err != nil {
		t.Fatalf("Values: %v", err)
	}
	return vs
}

func newHeld(t *testing.T, st Store, act Action, at string, c clock.Clock) *Scheduler {
	t.Helper()
	s, err := New(Deps{Submitter: &heldSubmitter{}, Store: st, Log: logx.Nop()}, act, clock.MustParse(at), WithClock(c))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestNewValidates(t *testing.T) {
	t.Parallel()
	st := newTable(t)
	act := func() error { return nil }
	at := clock.MustParse("12:00")
	cases := []struct {
		name string
		deps Deps
		act  Action
		at   clock.TimeOfDay
	}{
		{name: "no submitter", deps: Deps{Store: st}, act: act, at: at},
		{name: "no store", deps: Deps{Submitter: &heldSubmitter{}}, act: act, at: at},
		{name: "no action", deps: Deps{Submitter: &heldSubmitter{}, Store: st}, at: at},
		{name: "bad time", deps: Deps{Submitter: &heldSubmitter{}, Store: st}, act: act, at: clock.TimeOfDay(-1)},
	}
	for _, tc := range cases {
		if _, err := New(tc.deps, tc.act, tc.at); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}

func TestNewSubmitsLoop(t *testing.T) {
	t.Parallel()
	sub := &heldSubmitter{}
	if _, err := New(Deps{Submitter: sub, Store: newTable(t)}, func() error { return nil }, clock.MustParse("12:00")); err != nil {
		t.Fatalf("New: %v", err)
	}
	if len(sub.fns) != 1 {
		t.Fatalf("submitted %d loops, want 1", len(sub.fns))
	}
}

func TestTickBeforeTargetDoesNothing(t *testing.T) {
	t.Parallel()
	st := newTable(t)
	var c counter
	s := newHeld(t, st, c.action, "12:45", clock.Fixed(clock.MustParse("12:44:59")))

	for i := 0; i < 3; i++ {
		if err := s.actIfTime(context.Background()); err != nil {
			t.Fatalf("tick: %v", err)
		}
	}
	if c.n.Load() != 0 {
		t.Fatalf("action ran %d times before target", c.n.Load())
	}
	if vs := mustValues(t, st); len(vs) != 0 {
		t.Fatalf("records = %v, want none", vs)
	}
}

func TestTickExactlyAtTargetDoesNothing(t *testing.T) {
	t.Parallel()
	var c counter
	s := newHeld(t, newTable(t), c.action, "12:45", clock.Fixed(clock.MustParse("12:45")))
	if err := s.actIfTime(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if c.n.Load() != 0 {
		t.Fatal("action must wait until strictly after the target")
	}
}

func TestTickAfterTargetRunsOnce(t *testing.T) {
	t.Parallel()
	st := newTable(t)
	var c counter
	mc := newManualClock(clock.MustParse("12:45:01"))
	s := newHeld(t, st, c.action, "12:45", mc.Clock())

	for i := 0; i < 5; i++ {
		mc.Set(clock.MustParse("12:45:01") + clock.TimeOfDay(i)*clock.TimeOfDay(time.Second))
		if err := s.actIfTime(context.Background()); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
	}
	if c.n.Load() != 1 {
		t.Fatalf("action ran %d times, want 1", c.n.Load())
	}
	vs := mustValues(t, st)
	if len(vs) != 1 || vs[0].Index() != 1 || vs[0].Time() != clock.MustParse("12:45") {
		t.Fatalf("records = %v, want [1@12:45:00]", vs)
	}
	if ran, err := s.HasRun(context.Background()); err != nil || !ran {
		t.Fatalf("HasRun = %v, %v", ran, err)
	}
}

func TestTickPrunesStaleRecordAndRuns(t *testing.T) {
	t.Parallel()
	st := newTable(t)
	if _, err := st.Write(context.Background(), schedule.New(schedule.PendingIndex, clock.MustParse("13:00"))); err != nil {
		t.Fatalf("seed: %v", err)
	}
	var c counter
	s := newHeld(t, st, c.action, "12:45", clock.Fixed(clock.MustParse("12:46")))

	if err := s.actIfTime(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if c.n.Load() != 1 {
		t.Fatalf("action ran %d times, want 1", c.n.Load())
	}
	vs := mustValues(t, st)
	if len(vs) != 1 || vs[0].Time() != clock.MustParse("12:45") || vs[0].Index() != 2 {
		t.Fatalf("records = %v, want only the new 12:45 record", vs)
	}
	if s.pruned.Load() != 1 {
		t.Fatalf("pruned = %d, want 1", s.pruned.Load())
	}
}

func TestTickPrunesBeforeTarget(t *testing.T) {
	t.Parallel()
	st := newTable(t)
	if _, err := st.Write(context.Background(), schedule.New(schedule.PendingIndex, clock.MustParse("13:00"))); err != nil {
		t.Fatalf("seed: %v", err)
	}
	var c counter
	s := newHeld(t, st, c.action, "12:45", clock.Fixed(clock.MustParse("12:30")))

	if err := s.actIfTime(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if c.n.Load() != 0 {
		t.Fatal("action must not run before target")
	}
	if ran, _ := s.HasRun(context.Background()); ran {
		t.Fatal("stale record should have been pruned")
	}
}

func TestEarlierRecordSuppressesRun(t *testing.T) {
	t.Parallel()
	st := newTable(t)
	if _, err := st.Write(context.Background(), schedule.New(schedule.PendingIndex, clock.MustParse("12:45"))); err != nil {
		t.Fatalf("seed: %v", err)
	}
	var c counter
	s := newHeld(t, st, c.action, "12:45", clock.Fixed(clock.MustParse("18:00")))

	if err := s.actIfTime(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if c.n.Load() != 0 {
		t.Fatal("an earlier record must suppress the run")
	}
	if vs := mustValues(t, st); len(vs) != 1 {
		t.Fatalf("records = %v", vs)
	}
}

func TestActionFailureRetriesNextTick(t *testing.T) {
	t.Parallel()
	st := newTable(t)
	var c counter
	boom := errors.New("boom")
	c.fail(boom)
	s := newHeld(t, st, c.action, "12:45", clock.Fixed(clock.MustParse("12:46")))

	err := s.actIfTime(context.Background())
	var ae *ActionError
	if !errors.As(err, &ae) || !errors.Is(err, boom) {
		t.Fatalf("tick error = %v, want ActionError wrapping boom", err)
	}
	if vs := mustValues(t, st); len(vs) != 0 {
		t.Fatalf("failed run wrote records: %v", vs)
	}

	c.fail(nil)
	if err := s.actIfTime(context.Background()); err != nil {
		t.Fatalf("retry tick: %v", err)
	}
	if c.n.Load() != 2 || len(mustValues(t, st)) != 1 {
		t.Fatalf("runs = %d, records = %d; want 2 and 1", c.n.Load(), len(mustValues(t, st)))
	}
	if s.failures.Load() != 1 || s.fires.Load() != 1 {
		t.Fatalf("failures=%d fires=%d", s.failures.Load(), s.fires.Load())
	}
}

func TestActionPanicIsActionError(t *testing.T) {
	t.Parallel()
	s := newHeld(t, newTable(t), func() error { panic("kaboom") }, "00:00", clock.Fixed(clock.MustParse("00:00:01")))
	var ae *ActionError
	if err := s.actIfTime(context.Background()); !errors.As(err, &ae) {
		t.Fatalf("tick error = %v, want ActionError", err)
	}
}

type failingStore struct{ err error }

func (f failingStore) Values(context.Context) ([]schedule.Schedule, error) { return nil, f.err }
func (f failingStore) Write(context.Context, schedule.Schedule) (schedule.Schedule, error) {
	return schedule.Schedule{}, f.err
}
func (f failingStore) Delete(context.Context, schedule.Schedule) error { return f.err }

func TestStoreFailureIsNotActionError(t *testing.T) {
	t.Parallel()
	disk := errors.New("disk gone")
	s := newHeld(t, failingStore{err: disk}, func() error { return nil }, "12:00", clock.Fixed(clock.MustParse("13:00")))
	err := s.actIfTime(context.Background())
	var ae *ActionError
	if !errors.Is(err, disk) || errors.As(err, &ae) {
		t.Fatalf("tick error = %v, want plain store error", err)
	}
}

// Documents the unhandled clock regression: moving the clock back past a
// record prunes it, and the action runs a second time.
func TestClockRegressionRerunsAction(t *testing.T) {
	t.Parallel()
	st := newTable(t)
	var c counter
	mc := newManualClock(clock.MustParse("12:50"))
	s := newHeld(t, st, c.action, "12:40", mc.Clock())

	if err := s.actIfTime(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	mc.Set(clock.MustParse("12:39"))
	if err := s.actIfTime(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	mc.Set(clock.MustParse("12:41"))
	if err := s.actIfTime(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if c.n.Load() != 2 {
		t.Fatalf("action ran %d times, want 2 after regression", c.n.Load())
	}
}

func TestLoopFiresWhenTargetPassed(t *testing.T) {
	t.Parallel()
	st := newTable(t)
	var c counter
	s, err := New(Deps{
		Submitter: goSubmitter{},
		Store:     st,
		Config:    Config{TickInterval: 20 * time.Millisecond},
	}, c.action, clock.MustParse("12:00"), WithClock(clock.Fixed(clock.MustParse("12:00:01"))))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for c.n.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	// Several more ticks must not fire again.
	time.Sleep(100 * time.Millisecond)
	if c.n.Load() != 1 {
		t.Fatalf("action ran %d times, want 1", c.n.Load())
	}
	if ran, err := s.HasRun(context.Background()); err != nil || !ran {
		t.Fatalf("HasRun = %v, %v", ran, err)
	}
}

func TestLoopWaitsForFutureTarget(t *testing.T) {
	t.Parallel()
	var c counter
	s, err := New(Deps{
		Submitter: goSubmitter{},
		Store:     newTable(t),
		Config:    Config{TickInterval: 20 * time.Millisecond},
	}, c.action, clock.MustParse("12:00"), WithClock(clock.Fixed(clock.MustParse("11:00"))))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	time.Sleep(150 * time.Millisecond)
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if c.n.Load() != 0 {
		t.Fatalf("action ran %d times before target", c.n.Load())
	}
	if ran, _ := s.HasRun(context.Background()); ran {
		t.Fatal("HasRun should be false")
	}
	if s.ticks.Load() < 2 {
		t.Fatalf("ticks = %d, want several", s.ticks.Load())
	}
}

func TestClockFailureTerminatesLoop(t *testing.T) {
	t.Parallel()
	broken := errors.New("no clock")
	bus := eventbus.New(8)
	events, unsub := bus.Subscribe(8)
	defer unsub()

	s, err := New(Deps{Submitter: goSubmitter{}, Store: newTable(t), Bus: bus},
		func() error { return nil }, clock.MustParse("12:00"),
		WithClock(func() (clock.TimeOfDay, error) { return 0, broken }))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not terminate")
	}
	if !errors.Is(s.Err(), broken) {
		t.Fatalf("Err = %v, want clock error", s.Err())
	}

	var types []string
	for len(events) > 0 {
		types = append(types, (<-events).Type)
	}
	if len(types) != 2 || types[0] != EventStarted || types[1] != EventStopped {
		t.Fatalf("events = %v", types)
	}
}

func TestStopInterruptsSleep(t *testing.T) {
	t.Parallel()
	s, err := New(Deps{
		Submitter: goSubmitter{},
		Store:     newTable(t),
		Config:    Config{TickInterval: time.Hour},
	}, func() error { return nil }, clock.MustParse("12:00"), WithClock(clock.Fixed(clock.MustParse("11:00"))))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not exit after Stop")
	}
	if s.Err() != nil {
		t.Fatalf("Err = %v, want nil after clean stop", s.Err())
	}
}

func TestStopWaitsForLateRegistration(t *testing.T) {
	t.Parallel()
	s, err := New(Deps{
		Submitter: goSubmitter{delay: 50 * time.Millisecond},
		Store:     newTable(t),
		Config:    Config{TickInterval: time.Hour, StopAttempts: 20, StopBackoff: 20 * time.Millisecond},
	}, func() error { return nil }, clock.MustParse("12:00"), WithClock(clock.Fixed(clock.MustParse("11:00"))))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not exit after Stop")
	}
}

func TestStopTimesOutWhenLoopNeverRuns(t *testing.T) {
	t.Parallel()
	s, err := New(Deps{
		Submitter: &heldSubmitter{},
		Store:     newTable(t),
		Config:    Config{StopAttempts: 3, StopBackoff: time.Millisecond},
	}, func() error { return nil }, clock.MustParse("12:00"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Stop(); !errors.Is(err, ErrStopTimeout) {
		t.Fatalf("Stop = %v, want ErrStopTimeout", err)
	}
}

func TestParentCancelStopsLoop(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	s, err := New(Deps{
		Submitter: goSubmitter{ctx: ctx},
		Store:     newTable(t),
		Config:    Config{TickInterval: time.Hour},
	}, func() error { return nil }, clock.MustParse("12:00"), WithClock(clock.Fixed(clock.MustParse("11:00"))))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	cancel()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not exit after parent cancel")
	}
	if s.Err() != nil {
		t.Fatalf("Err = %v", s.Err())
	}
}
