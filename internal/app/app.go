package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"dailyrun/internal/clock"
	"dailyrun/internal/config"
	"dailyrun/internal/eventbus"
	"dailyrun/internal/runtime/supervisor"
	"dailyrun/internal/schedule"
	"dailyrun/internal/scheduler"
	"dailyrun/internal/storage"
	logx "dailyrun/pkg/logx"
)

type StopReason string

const (
	StopUnknown    StopReason = "unknown"
	StopSignal     StopReason = "signal"
	StopFatalError StopReason = "fatal_error"
	StopAppStop    StopReason = "app_stop"
)

type App struct {
	cfgm *config.Manager
	cfg  *config.Config

	log  logx.Logger
	logs *logx.Service
	bus  *eventbus.MemBus

	backend storage.Backend
	table   *storage.Table[schedule.Schedule]

	settings scheduleSettings
	action   scheduler.Action
	clock    clock.Clock

	sup   *supervisor.Supervisor
	sched *scheduler.Scheduler
}

type Option func(*App)

// WithLogger bypasses the configured logging service; the caller owns the logger.
func WithLogger(log logx.Logger) Option { return func(a *App) { a.log = log } }

// WithAction replaces the configured command.
func WithAction(act scheduler.Action) Option { return func(a *App) { a.action = act } }

// WithClock replaces the wall clock of the scheduler.
func WithClock(c clock.Clock) Option { return func(a *App) { a.clock = c } }

// New loads the config file and opens the record store. No goroutines are started.
func New(ctx context.Context, cfgPath string, opts ...Option) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load(ctx)
	if err != nil {
		return nil, err
	}
	a, err := NewFromConfig(ctx, cfg, opts...)
	if err != nil {
		return nil, err
	}
	a.cfgm = cfgm
	cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	return a, nil
}

// NewFromConfig builds the app from an already loaded config. Config
// hot-reload is unavailable on apps built this way.
func NewFromConfig(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}

	if a.log.IsZero() {
		logSvc, log := logx.New(mapLoggingConfig(cfg))
		a.logs = logSvc
		a.log = log
	}
	a.log = a.log.With(logx.String("comp", "app"))

	settings, err := mapScheduleConfig(cfg)
	if err != nil {
		return nil, a.fail(err)
	}
	a.settings = settings

	if a.action == nil {
		cmd, err := mapActionConfig(cfg)
		if err != nil {
			return nil, a.fail(err)
		}
		a.action = cmd.Func(a.log)
	}

	sc, enabled, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, a.fail(err)
	}
	if !enabled {
		a.log.Warn("storage disabled; completion records will not survive a restart")
		sc = storage.Config{Driver: "memory"}
	}
	backend, err := storage.Open(sc, a.log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, a.fail(err)
	}
	a.backend = backend

	table, err := storage.OpenTable(ctx, backend, settings.Table, schedule.Parse)
	if err != nil {
		_ = backend.Close()
		return nil, a.fail(err)
	}
	a.table = table
	a.bus = eventbus.New(64)

	a.log.Debug("app initialized",
		logx.Stringer("at", settings.At),
		logx.String("timezone", settings.Loc.String()),
		logx.String("storage", sc.Driver),
		logx.String("table", settings.Table),
	)
	return a, nil
}

func (a *App) fail(err error) error {
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return err
}

func (a *App) Logger() logx.Logger { return a.log }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	if a.sup != nil {
		return errors.New("app already started")
	}
	a.sup = supervisor.New(ctx,
		supervisor.WithLogger(a.log.With(logx.String("comp", "supervisor"))),
		supervisor.WithCancelOnError(true),
	)

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time), logx.Any("data", e.Data))
			}
		}
	})

	opts := []scheduler.Option{scheduler.WithLocation(a.settings.Loc)}
	if a.clock != nil {
		opts = append(opts, scheduler.WithClock(a.clock))
	}
	sched, err := scheduler.New(scheduler.Deps{
		Submitter: a.sup,
		Log:       a.log.With(logx.String("comp", "scheduler")),
		Store:     a.table,
		Config:    a.settings.Loop,
		Bus:       a.bus,
	}, a.action, a.settings.At, opts...)
	if err != nil {
		a.sup.Cancel()
		return err
	}
	a.sched = sched

	if a.cfgm != nil {
		sub := a.cfgm.Subscribe(8)
		a.sup.Go0("config.reload", func(c context.Context) {
			defer a.cfgm.Unsubscribe(sub)
			a.reloadLoop(c, sub)
		})
		a.sup.Go("config.watch", a.cfgm.Watch)
	}

	a.log.Info("app started",
		logx.Stringer("at", a.settings.At),
		logx.String("timezone", a.settings.Loc.String()),
	)
	return nil
}

// reloadLoop applies live config changes. Only logging is reconfigured in
// place; other sections are reported as needing a restart.
func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			newCfg = latest(sub, newCfg)

			ch := config.SummarizeConfigChange(lastApplied, newCfg)
			lastApplied = newCfg
			if len(ch.Sections) == 0 {
				a.log.Info("config reloaded (no changes)")
				continue
			}
			fields := append([]logx.Field{logx.String("changed", strings.Join(ch.Sections, ","))}, ch.Fields...)
			a.log.Debug("config change summary", fields...)

			if ch.Has("logging") && a.logs != nil {
				a.logs.Apply(mapLoggingConfig(newCfg))
			}
			if ch.RestartRequired {
				a.log.Warn("schedule, action or storage config changed; restart required for changes to take effect")
			}
			a.log.Info("config reloaded", logx.String("changed", strings.Join(ch.Sections, ",")))
		}
	}
}

// latest coalesces bursts, keeping only the newest queued config.
func latest(sub chan *config.Config, cur *config.Config) *config.Config {
	for {
		select {
		case newer, ok := <-sub:
			if !ok {
				return cur
			}
			if newer != nil {
				cur = newer
			}
		default:
			return cur
		}
	}
}

// Stop shuts the app down. Each step is bounded so one component can't stall the whole stop.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return a.Close()
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	var errs []error
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx := ctx
		if max > 0 {
			// respect the caller's deadline; never extend it
			var cancel context.CancelFunc
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
		}
		if err := fn(stepCtx); err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	}

	step("scheduler", 2*time.Second, func(c context.Context) error {
		if a.sched == nil {
			return nil
		}
		if err := a.sched.Stop(); err != nil {
			return err
		}
		select {
		case <-a.sched.Done():
			return nil
		case <-c.Done():
			return c.Err()
		}
	})

	a.sup.Cancel()
	step("supervisor", 2*time.Second, func(c context.Context) error {
		err := a.sup.Wait(c)
		if errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		// A fatal loop error is reported through Err, not as a stop failure.
		return nil
	})

	if err := a.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Close releases the store and the logging service. Safe on apps that were never started.
func (a *App) Close() error {
	var errs []error
	if a.backend != nil {
		if err := a.backend.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
		a.backend = nil
	}
	if a.logs != nil {
		a.log.Debug("stopped")
		if err := a.logs.Close(); err != nil {
			errs = append(errs, fmt.Errorf("logging: %w", err))
		}
		a.logs = nil
	}
	return errors.Join(errs...)
}
