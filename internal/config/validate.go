package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"dailyrun/internal/clock"
)

// Validate checks a parsed config. It reports every problem it finds.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	s := cfg.Schedule
	if strings.TrimSpace(s.At) == "" {
		add(errors.New("schedule.at is required"))
	} else if _, err := clock.Parse(strings.TrimSpace(s.At)); err != nil {
		add(fmt.Errorf("schedule.at: %w", err))
	}
	if _, err := LoadLocation(s.Timezone); err != nil {
		add(fmt.Errorf("schedule.timezone: %w", err))
	}
	_, err := ParseDurationField("schedule.tick_interval", s.TickInterval)
	add(err)
	_, err = ParseDurationField("schedule.stop_backoff", s.StopBackoff)
	add(err)
	if s.StopAttempts < 0 {
		add(errors.New("schedule.stop_attempts must be >= 0"))
	}

	if strings.TrimSpace(cfg.Action.Command) == "" {
		add(errors.New("action.command is required"))
	}
	_, err = ParseDurationField("action.timeout", cfg.Action.Timeout)
	add(err)

	if cfg.Logging.Async.QueueSize < 0 || cfg.Logging.Async.RatePerSec < 0 {
		add(errors.New("logging.async values must be >= 0"))
	}
	if cfg.Logging.File.Enabled && strings.TrimSpace(cfg.Logging.File.Path) == "" {
		add(errors.New("logging.file.path is required when file logging is enabled"))
	}

	st := cfg.Storage
	switch strings.ToLower(strings.TrimSpace(st.Driver)) {
	case "", "none", "memory", "mem":
	case "file", "sqlite", "sqlite3":
		if strings.TrimSpace(st.Path) == "" {
			add(fmt.Errorf("storage.path is required for driver %q", st.Driver))
		}
	case "postgres", "postgresql", "pg":
		if strings.TrimSpace(st.DSN) == "" {
			add(errors.New("storage.dsn is required for postgres"))
		}
	default:
		add(fmt.Errorf("storage.driver: unknown driver %q", st.Driver))
	}
	_, err = ParseDurationField("storage.busy_timeout", st.BusyTimeout)
	add(err)
	if st.CompactEvery < 0 {
		add(errors.New("storage.compact_every must be >= 0"))
	}

	return errors.Join(errs...)
}

// LoadLocation resolves a timezone name; empty or "local" means time.Local.
func LoadLocation(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.EqualFold(name, "local") {
		return time.Local, nil
	}
	return time.LoadLocation(name)
}
