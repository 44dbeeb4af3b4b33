package config

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/dshills/langsync/internal/logging"
)

// Duration is a time.Duration that decodes from strings such as "30s" or
// "5m" in both TOML and YAML.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// WorkerSettings describe how the analysis engine is started.
type WorkerSettings struct {
	Command string            `toml:"command" yaml:"command"`
	Args    []string          `toml:"args" yaml:"args"`
	Env     map[string]string `toml:"env" yaml:"env"`
}

// SessionSettings control the engine session lifecycle.
type SessionSettings struct {
	MaxIdleTime       Duration `toml:"max_idle_time" yaml:"max_idle_time"`
	IdleCheckInterval Duration `toml:"idle_check_interval" yaml:"idle_check_interval"`
}

// AnalysisSettings control recomputation scheduling.
type AnalysisSettings struct {
	Debounce Duration `toml:"debounce" yaml:"debounce"`
}

// DiagnosticsSettings control diagnostic presentation.
type DiagnosticsSettings struct {
	Enhanced bool `toml:"enhanced" yaml:"enhanced"`
}

// LogSettings control the logger.
type LogSettings struct {
	Level       string `toml:"level" yaml:"level"`
	Development bool   `toml:"development" yaml:"development"`
}

// Settings is the complete langsync configuration.
type Settings struct {
	Worker      WorkerSettings      `toml:"worker" yaml:"worker"`
	Session     SessionSettings     `toml:"session" yaml:"session"`
	Analysis    AnalysisSettings    `toml:"analysis" yaml:"analysis"`
	Diagnostics DiagnosticsSettings `toml:"diagnostics" yaml:"diagnostics"`
	Log         LogSettings         `toml:"log" yaml:"log"`
}

// Defaults returns the built-in settings. Idle teardown is disabled.
func Defaults() Settings {
	return Settings{
		Session: SessionSettings{
			MaxIdleTime:       0,
			IdleCheckInterval: Duration(30 * time.Second),
		},
		Analysis: AnalysisSettings{
			Debounce: Duration(500 * time.Millisecond),
		},
		Log: LogSettings{
			Level: logging.DefaultLevel,
		},
	}
}

// Validate checks every setting and returns all problems joined.
// Each problem matches ErrValidationFailed.
func (s Settings) Validate() error {
	var errs []error
	if s.Session.MaxIdleTime < 0 {
		errs = append(errs, &ValidationError{Path: "session.max_idle_time", Message: "must not be negative", Value: s.Session.MaxIdleTime.Std()})
	}
	if s.Session.IdleCheckInterval <= 0 {
		errs = append(errs, &ValidationError{Path: "session.idle_check_interval", Message: "must be positive", Value: s.Session.IdleCheckInterval.Std()})
	}
	if s.Analysis.Debounce <= 0 {
		errs = append(errs, &ValidationError{Path: "analysis.debounce", Message: "must be positive", Value: s.Analysis.Debounce.Std()})
	}
	if _, err := logging.ParseLevel(s.Log.Level); err != nil {
		errs = append(errs, &ValidationError{Path: "log.level", Message: "unknown level", Value: s.Log.Level})
	}
	for k := range s.Worker.Env {
		if k == "" {
			errs = append(errs, &ValidationError{Path: "worker.env", Message: "empty variable name", Value: k})
		}
	}
	return errors.Join(errs...)
}

// Diff returns the dotted keys whose values differ between s and other,
// in a stable order.
func (s Settings) Diff(other Settings) []string {
	var paths []string
	add := func(path string, changed bool) {
		if changed {
			paths = append(paths, path)
		}
	}
	add("worker.command", s.Worker.Command != other.Worker.Command)
	add("worker.args", !slices.Equal(s.Worker.Args, other.Worker.Args))
	add("worker.env", !maps.Equal(s.Worker.Env, other.Worker.Env))
	add("session.max_idle_time", s.Session.MaxIdleTime != other.Session.MaxIdleTime)
	add("session.idle_check_interval", s.Session.IdleCheckInterval != other.Session.IdleCheckInterval)
	add("analysis.debounce", s.Analysis.Debounce != other.Analysis.Debounce)
	add("diagnostics.enhanced", s.Diagnostics.Enhanced != other.Diagnostics.Enhanced)
	add("log.level", s.Log.Level != other.Log.Level)
	add("log.development", s.Log.Development != other.Log.Development)
	return paths
}

// String summarizes the settings for logs. Environment values are omitted.
func (s Settings) String() string {
	return fmt.Sprintf("worker=%q args=%d env=%d max_idle=%s check=%s debounce=%s enhanced=%t log=%s",
		s.Worker.Command, len(s.Worker.Args), len(s.Worker.Env),
		s.Session.MaxIdleTime.Std(), s.Session.IdleCheckInterval.Std(),
		s.Analysis.Debounce.Std(), s.Diagnostics.Enhanced, s.Log.Level)
}
