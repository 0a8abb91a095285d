package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"dailyrun/internal/clock"
	"dailyrun/internal/eventbus"
	"dailyrun/internal/schedule"
	logx "dailyrun/pkg/logx"
)

const (
	DefaultTickInterval = time.Second
	DefaultStopAttempts = 10
	DefaultStopBackoff  = 20 * time.Millisecond
)

// Lifecycle events published on Deps.Bus.
const (
	EventStarted      = "scheduler.started"
	EventFired        = "scheduler.fired"
	EventPruned       = "scheduler.pruned"
	EventActionFailed = "scheduler.action_failed"
	EventStopped      = "scheduler.stopped"
)

// ErrStopTimeout is returned by Stop when the loop never registered its cancel handle.
var ErrStopTimeout = errors.New("scheduler: leaving without successfully stopping loop")

// Action is the user-supplied daily operation.
type Action func() error

// ActionError wraps a failed action run. The tick that produced it wrote no
// completion record, so the next tick runs the action again.
type ActionError struct {
	Err error
}

func (e *ActionError) Error() string { return "scheduler: action failed: " + e.Err.Error() }
func (e *ActionError) Unwrap() error { return e.Err }

// Submitter hosts the loop goroutine (runtime/supervisor.Supervisor in the app).
type Submitter interface {
	Go(name string, fn func(ctx context.Context) error)
}

// Store holds completion records (storage.Table[schedule.Schedule] in the app).
type Store interface {
	Values(ctx context.Context) ([]schedule.Schedule, error)
	Write(ctx context.Context, s schedule.Schedule) (schedule.Schedule, error)
	Delete(ctx context.Context, s schedule.Schedule) error
}

type Config struct {
	TickInterval time.Duration
	StopAttempts int
	StopBackoff  time.Duration
}

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = DefaultTickInterval
	}
	if c.StopAttempts <= 0 {
		c.StopAttempts = DefaultStopAttempts
	}
	if c.StopBackoff <= 0 {
		c.StopBackoff = DefaultStopBackoff
	}
	return c
}

// Deps is everything the scheduler borrows from its host.
type Deps struct {
	Submitter Submitter
	Log       logx.Logger
	Store     Store
	Config    Config
	Bus       eventbus.Bus // optional
}

type Option func(*Scheduler)

// WithClock replaces the wall clock used to decide when to fire.
func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) {
		if c != nil {
			s.now = c
		}
	}
}

// WithLocation sets the zone of the default clock and of NextRun reporting.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithName names the loop goroutine (default "scheduler").
func WithName(name string) Option {
	return func(s *Scheduler) {
		if name != "" {
			s.name = name
		}
	}
}

// Scheduler runs an action once per day at or after a time of day.
type Scheduler struct {
	name   string
	sub    Submitter
	log    logx.Logger
	store  Store
	cfg    Config
	bus    eventbus.Bus
	action Action
	at     clock.TimeOfDay
	now    clock.Clock
	loc    *time.Location

	cancel atomic.Pointer[context.CancelFunc]

	doneOnce sync.Once
	done     chan struct{}
	errMu    sync.Mutex
	err      error

	ticks    atomic.Uint64
	fires    atomic.Uint64
	failures atomic.Uint64
	pruned   atomic.Uint64
	lastErr  atomic.Value // string
}

// New validates its inputs and submits the polling loop before returning.
func New(deps Deps, action Action, at clock.TimeOfDay, opts ...Option) (*Scheduler, error) {
	if deps.Submitter == nil {
		return nil, errors.New("scheduler: submitter is required")
	}
	if deps.Store == nil {
		return nil, errors.New("scheduler: store is required")
	}
	if action == nil {
		return nil, errors.New("scheduler: action is required")
	}
	if !at.Valid() {
		return nil, fmt.Errorf("scheduler: invalid time of day %d", int64(at))
	}
	log := deps.Log
	if log.IsZero() {
		log = logx.Nop()
	}

	s := &Scheduler{
		name:   "scheduler",
		sub:    deps.Submitter,
		log:    log,
		store:  deps.Store,
		cfg:    deps.Config.withDefaults(),
		bus:    deps.Bus,
		action: action,
		at:     at,
		loc:    time.Local,
		done:   make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	if s.now == nil {
		s.now = clock.System(s.loc)
	}

	s.log.Debug("initializing scheduler main loop", logx.Stringer("at", s.at), logx.Duration("tick", s.cfg.TickInterval))
	s.sub.Go(s.name, s.loop)
	return s, nil
}

func (s *Scheduler) Target() clock.TimeOfDay { return s.at }

// Done is closed once the loop has exited.
func (s *Scheduler) Done() <-chan struct{} { return s.done }

// Err returns the error that terminated the loop, nil after a clean stop or while running.
func (s *Scheduler) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// HasRun reports whether any completion record exists.
func (s *Scheduler) HasRun(ctx context.Context) (bool, error) {
	vs, err := s.store.Values(ctx)
	if err != nil {
		return false, err
	}
	return len(vs) > 0, nil
}

// Stop cancels the loop. The loop registers its handle asynchronously, so Stop
// retries up to StopAttempts times, StopBackoff apart, before giving up with
// ErrStopTimeout. It does not wait for the loop to exit; use Done for that.
func (s *Scheduler) Stop() error {
	s.log.Debug("scheduler has been told to stop")
	for i := 0; i < s.cfg.StopAttempts; i++ {
		if c := s.cancel.Load(); c != nil {
			s.log.Debug("sending stop signal to scheduler loop", logx.Int("attempt", i+1))
			(*c)()
			return nil
		}
		time.Sleep(s.cfg.StopBackoff)
	}
	s.log.Error("scheduler loop never registered; giving up", logx.Int("attempts", s.cfg.StopAttempts))
	return ErrStopTimeout
}

func (s *Scheduler) loop(parent context.Context) (err error) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	s.cancel.Store(&cancel)

	defer func() {
		if r := recover(); r != nil {
			s.finish(fmt.Errorf("scheduler: panic: %v", r))
			panic(r)
		}
		s.finish(err)
	}()

	s.publish(EventStarted, nil)
	// Store calls inside a tick are never interrupted; cancellation is only
	// observed while waiting for the next tick.
	tickCtx := context.WithoutCancel(ctx)

	for {
		if err := s.actIfTime(tickCtx); err != nil {
			var ae *ActionError
			if !errors.As(err, &ae) {
				s.log.Error("scheduler has stopped unexpectedly", logx.Err(err))
				return err
			}
		}

		wait := time.NewTimer(s.cfg.TickInterval)
		select {
		case <-ctx.Done():
			wait.Stop()
			s.log.DebugFn(func() string { return "scheduler is stopped" })
			return nil
		case <-wait.C:
		}
	}
}

func (s *Scheduler) finish(err error) {
	s.doneOnce.Do(func() {
		s.errMu.Lock()
		s.err = err
		s.errMu.Unlock()
		if err != nil {
			s.lastErr.Store(err.Error())
		}
		s.publish(EventStopped, map[string]any{"err": errString(err)})
		close(s.done)
	})
}

// actIfTime is one tick: prune stale records, then run the action if the
// target has passed and no record shows it already ran today.
func (s *Scheduler) actIfTime(ctx context.Context) error {
	s.ticks.Add(1)

	now, err := s.now()
	if err != nil {
		return fmt.Errorf("scheduler: read clock: %w", err)
	}

	records, err := s.store.Values(ctx)
	if err != nil {
		return fmt.Errorf("scheduler: list records: %w", err)
	}

	// A record later than now is left over from an earlier day whose run
	// happened later on the clock; it must not mask today's run.
	remaining := make([]schedule.Schedule, 0, len(records))
	for _, r := range records {
		if !r.Time().After(now) {
			remaining = append(remaining, r)
			continue
		}
		if err := s.store.Delete(ctx, r); err != nil {
			return fmt.Errorf("scheduler: delete stale %s: %w", r, err)
		}
		s.pruned.Add(1)
		r := r
		s.log.DebugFn(func() string { return "pruned stale record " + r.String() }, logx.Stringer("now", now))
		s.publish(EventPruned, map[string]any{"index": r.Index(), "time": r.Time().String()})
	}

	if !now.After(s.at) || ranBefore(remaining, now) {
		return nil
	}

	if err := s.runAction(); err != nil {
		s.failures.Add(1)
		s.lastErr.Store(err.Error())
		s.log.ErrorAsync(func() string {
			return "error occurred during run of action in scheduler: " + err.Error()
		}, logx.Stringer("at", s.at))
		s.publish(EventActionFailed, map[string]any{"err": err.Error()})
		return &ActionError{Err: err}
	}

	rec, err := s.store.Write(ctx, schedule.New(schedule.PendingIndex, s.at))
	if err != nil {
		return fmt.Errorf("scheduler: write completion record: %w", err)
	}
	s.fires.Add(1)
	s.log.Info("daily action completed", logx.Stringer("at", s.at), logx.Stringer("now", now), logx.Int64("record", rec.Index()))
	s.publish(EventFired, map[string]any{"index": rec.Index(), "at": s.at.String(), "now": now.String()})
	return nil
}

func (s *Scheduler) runAction() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("action panicked: %v", r)
		}
	}()
	return s.action()
}

// ranBefore reports whether a record confirms a run earlier than now.
func ranBefore(records []schedule.Schedule, now clock.TimeOfDay) bool {
	for _, r := range records {
		if r.Time().Before(now) {
			return true
		}
	}
	return false
}

func (s *Scheduler) publish(typ string, data map[string]any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Data: data})
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
