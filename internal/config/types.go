package config

type Config struct {
	Schedule ScheduleConfig `json:"schedule"`
	Action   ActionConfig   `json:"action"`
	Logging  LoggingConfig  `json:"logging"`
	Storage  StorageConfig  `json:"storage"`
}

// ScheduleConfig controls when the daily action fires.
//
// All durations are Go duration strings (e.g. "500ms", "1s").
//
// Defaults (when fields are omitted/zero):
//   - timezone: local
//   - tick_interval: "1s"
//   - stop_attempts: 10
//   - stop_backoff: "20ms"
//   - table: "schedule"
type ScheduleConfig struct {
	// At is the time of day, "HH:MM", "HH:MM:SS" or "HH:MM:SS.fffffffff".
	At           string `json:"at"`
	Timezone     string `json:"timezone,omitempty"`
	TickInterval string `json:"tick_interval,omitempty"`
	StopAttempts int    `json:"stop_attempts,omitempty"`
	StopBackoff  string `json:"stop_backoff,omitempty"`
	Table        string `json:"table,omitempty"`
}

// ActionConfig is the command run once per day.
type ActionConfig struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Dir     string            `json:"dir,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	// Timeout bounds the command process. "0s" or empty disables it.
	Timeout string `json:"timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string       `json:"level"`
	Console bool         `json:"console"`
	File    LoggingFile  `json:"file"`
	Async   LoggingAsync `json:"async,omitempty"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingAsync bounds the deferred error sink.
type LoggingAsync struct {
	QueueSize  int `json:"queue_size,omitempty"`
	RatePerSec int `json:"rate_per_sec,omitempty"`
}

// StorageConfig controls where completion records live.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./dailyrun_store" }
type StorageConfig struct {
	Driver       string `json:"driver"`
	Path         string `json:"path,omitempty"`
	DSN          string `json:"dsn,omitempty"`          // postgres (do not log)
	BusyTimeout  string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
	CompactEvery int    `json:"compact_every,omitempty"`
}
