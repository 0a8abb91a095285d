package config

import (
	"hash/fnv"
	"reflect"
	"sort"
	"strings"

	logx "dailyrun/pkg/logx"
)

// Change summarizes a config reload.
type Change struct {
	// Sections lists the changed top-level sections, sorted.
	Sections []string
	// Fields are safe structured attrs for logging (never includes the storage DSN).
	Fields []logx.Field
	// RestartRequired is set when a changed section is only read at startup.
	RestartRequired bool
}

func (c Change) Has(section string) bool {
	for _, s := range c.Sections {
		if s == section {
			return true
		}
	}
	return false
}

// SummarizeConfigChange compares two configs. Only logging is applied live;
// schedule, action and storage changes take effect on the next start.
func SummarizeConfigChange(oldCfg, newCfg *Config) Change {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	var ch Change

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		ch.Sections = append(ch.Sections, "logging")
		ch.Fields = append(ch.Fields,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	ns := newCfg.Schedule
	if !reflect.DeepEqual(oldCfg.Schedule, ns) {
		ch.Sections = append(ch.Sections, "schedule")
		ch.RestartRequired = true
		ch.Fields = append(ch.Fields,
			logx.String("schedule.at", strings.TrimSpace(ns.At)),
			logx.String("schedule.timezone", strings.TrimSpace(ns.Timezone)),
			logx.String("schedule.tick_interval", strings.TrimSpace(ns.TickInterval)),
		)
	}

	if !reflect.DeepEqual(oldCfg.Action, newCfg.Action) {
		ch.Sections = append(ch.Sections, "action")
		ch.RestartRequired = true
		ch.Fields = append(ch.Fields,
			logx.String("action.command", strings.TrimSpace(newCfg.Action.Command)),
			logx.Int("action.args", len(newCfg.Action.Args)),
			// env values may carry secrets; count only
			logx.Int("action.env", len(newCfg.Action.Env)),
		)
	}

	nst := newCfg.Storage
	if !reflect.DeepEqual(oldCfg.Storage, nst) {
		ch.Sections = append(ch.Sections, "storage")
		ch.RestartRequired = true
		ch.Fields = append(ch.Fields,
			logx.String("storage.driver", strings.TrimSpace(nst.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(nst.Path) != ""),
			logx.Bool("storage.dsn_set", strings.TrimSpace(nst.DSN) != ""),
		)
	}

	sort.Strings(ch.Sections)
	return ch
}

// hashBytes returns a stable 64-bit hash of bytes. Empty input returns 0.
func hashBytes(b []byte) uint64 {
	if len(b) == 0 {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}
