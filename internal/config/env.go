package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "LANGSYNC_"

// LookupFunc looks up an environment variable.
type LookupFunc func(key string) (string, bool)

// envSetter applies one environment value to s.
type envSetter func(s *Settings, value string) error

// envMapping maps LANGSYNC_* variables to the setting they override.
var envMapping = map[string]struct {
	path string
	set  envSetter
}{
	"LANGSYNC_WORKER_COMMAND": {"worker.command", func(s *Settings, v string) error {
		s.Worker.Command = v
		return nil
	}},
	"LANGSYNC_WORKER_ARGS": {"worker.args", func(s *Settings, v string) error {
		s.Worker.Args = strings.Fields(v)
		return nil
	}},
	"LANGSYNC_SESSION_MAX_IDLE_TIME": {"session.max_idle_time", durationSetter(func(s *Settings, d time.Duration) {
		s.Session.MaxIdleTime = Duration(d)
	})},
	"LANGSYNC_SESSION_IDLE_CHECK_INTERVAL": {"session.idle_check_interval", durationSetter(func(s *Settings, d time.Duration) {
		s.Session.IdleCheckInterval = Duration(d)
	})},
	"LANGSYNC_ANALYSIS_DEBOUNCE": {"analysis.debounce", durationSetter(func(s *Settings, d time.Duration) {
		s.Analysis.Debounce = Duration(d)
	})},
	"LANGSYNC_DIAGNOSTICS_ENHANCED": {"diagnostics.enhanced", func(s *Settings, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		s.Diagnostics.Enhanced = b
		return nil
	}},
	"LANGSYNC_LOG_LEVEL": {"log.level", func(s *Settings, v string) error {
		s.Log.Level = v
		return nil
	}},
}

func durationSetter(set func(*Settings, time.Duration)) envSetter {
	return func(s *Settings, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		set(s, d)
		return nil
	}
}

// ApplyEnv overrides s with any LANGSYNC_* variables lookup reports.
// An empty value counts as set. A nil lookup uses os.LookupEnv.
func ApplyEnv(s *Settings, lookup LookupFunc) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	for name, m := range envMapping {
		v, ok := lookup(name)
		if !ok {
			continue
		}
		if err := m.set(s, v); err != nil {
			return fmt.Errorf("%s (%s): %w", name, m.path, err)
		}
	}
	return nil
}
