package app

import (
	"fmt"
	"strings"
	"time"

	"dailyrun/internal/action"
	"dailyrun/internal/clock"
	"dailyrun/internal/config"
	"dailyrun/internal/scheduler"
	"dailyrun/internal/storage"
	logx "dailyrun/pkg/logx"
)

const defaultTable = "schedule"

// mapStorageConfig returns the backend config and whether persistence is enabled.
func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	path := strings.TrimSpace(sc.Path)

	switch driver {
	case "memory", "mem":
		return storage.Config{Driver: "memory"}, true, nil
	case "file":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=file")
		}
		return storage.Config{Driver: "file", Path: path, CompactEvery: sc.CompactEvery}, true, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, false, err
		}
		return storage.Config{Driver: "sqlite", Path: path, BusyTimeout: busy}, true, nil
	case "postgres", "postgresql", "pg":
		dsn := strings.TrimSpace(sc.DSN)
		if dsn == "" {
			return storage.Config{}, false, fmt.Errorf("storage.dsn is required when storage.driver=postgres")
		}
		return storage.Config{Driver: "postgres", DSN: dsn}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapLoggingConfig(cfg *config.Config) logx.Config {
	lc := cfg.Logging
	return logx.Config{
		Level:   lc.Level,
		Console: lc.Console,
		File: logx.FileConfig{
			Enabled: lc.File.Enabled,
			Path:    lc.File.Path,
		},
		Async: logx.AsyncConfig{
			QueueSize:  lc.Async.QueueSize,
			RatePerSec: lc.Async.RatePerSec,
		},
	}
}

// scheduleSettings is the resolved schedule section.
type scheduleSettings struct {
	At    clock.TimeOfDay
	Loc   *time.Location
	Table string
	Loop  scheduler.Config
}

func mapScheduleConfig(cfg *config.Config) (scheduleSettings, error) {
	sc := cfg.Schedule
	at, err := clock.Parse(strings.TrimSpace(sc.At))
	if err != nil {
		return scheduleSettings{}, fmt.Errorf("schedule.at: %w", err)
	}
	loc, err := config.LoadLocation(sc.Timezone)
	if err != nil {
		return scheduleSettings{}, fmt.Errorf("schedule.timezone: %w", err)
	}
	tick, err := config.ParseDurationOrDefault("schedule.tick_interval", sc.TickInterval, scheduler.DefaultTickInterval)
	if err != nil {
		return scheduleSettings{}, err
	}
	backoff, err := config.ParseDurationOrDefault("schedule.stop_backoff", sc.StopBackoff, scheduler.DefaultStopBackoff)
	if err != nil {
		return scheduleSettings{}, err
	}
	table := strings.TrimSpace(sc.Table)
	if table == "" {
		table = defaultTable
	}
	return scheduleSettings{
		At:    at,
		Loc:   loc,
		Table: table,
		Loop: scheduler.Config{
			TickInterval: tick,
			StopAttempts: sc.StopAttempts,
			StopBackoff:  backoff,
		},
	}, nil
}

func mapActionConfig(cfg *config.Config) (action.Command, error) {
	ac := cfg.Action
	timeout, err := config.ParseDurationField("action.timeout", ac.Timeout)
	if err != nil {
		return action.Command{}, err
	}
	cmd := action.Command{
		Name:    strings.TrimSpace(ac.Command),
		Args:    ac.Args,
		Dir:     ac.Dir,
		Env:     ac.Env,
		Timeout: timeout,
	}
	return cmd, cmd.Validate()
}
