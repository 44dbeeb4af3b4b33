package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/dshills/langsync/internal/config/loader"
	"github.com/dshills/langsync/internal/config/notify"
)

func noEnv(string) (string, bool) { return "", false }

func env(vars map[string]string) LookupFunc {
	return func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}
}

const sampleTOML = `
[worker]
command = "kusto-worker"
args = ["--stdio"]

[worker.env]
KUSTO_TRACE = "1"

[session]
max_idle_time = "15m"

[analysis]
debounce = "250ms"

[diagnostics]
enhanced = true
`

const sampleYAML = `
worker:
  command: kusto-worker
  args: ["--stdio"]
  env:
    KUSTO_TRACE: "1"
session:
  max_idle_time: 15m
analysis:
  debounce: 250ms
diagnostics:
  enhanced: true
`

func TestDefaults(t *testing.T) {
	d := Defaults()
	require.NoError(t, d.Validate())
	assert.Zero(t, d.Session.MaxIdleTime, "idle teardown disabled by default")
	assert.Equal(t, 30*time.Second, d.Session.IdleCheckInterval.Std())
	assert.Equal(t, 500*time.Millisecond, d.Analysis.Debounce.Std())
	assert.Equal(t, "info", d.Log.Level)
}

func TestLoad_TOMLAndYAMLAgree(t *testing.T) {
	fsys := loader.MapFS{
		"settings.toml": []byte(sampleTOML),
		"settings.yaml": []byte(sampleYAML),
	}

	fromTOML, err := Load(fsys, "settings.toml", noEnv)
	require.NoError(t, err)
	fromYAML, err := Load(fsys, "settings.yaml", noEnv)
	require.NoError(t, err)

	assert.Equal(t, fromTOML, fromYAML)
	assert.Equal(t, "kusto-worker", fromTOML.Worker.Command)
	assert.Equal(t, []string{"--stdio"}, fromTOML.Worker.Args)
	assert.Equal(t, map[string]string{"KUSTO_TRACE": "1"}, fromTOML.Worker.Env)
	assert.Equal(t, 15*time.Minute, fromTOML.Session.MaxIdleTime.Std())
	assert.Equal(t, 30*time.Second, fromTOML.Session.IdleCheckInterval.Std(), "unset keys keep defaults")
	assert.Equal(t, 250*time.Millisecond, fromTOML.Analysis.Debounce.Std())
	assert.True(t, fromTOML.Diagnostics.Enhanced)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	s, err := Load(loader.MapFS{}, "settings.toml", noEnv)
	require.NoError(t, err)
	assert.Equal(t, Defaults(), s)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	fsys := loader.MapFS{"settings.toml": []byte(sampleTOML)}
	s, err := Load(fsys, "settings.toml", env(map[string]string{
		"LANGSYNC_WORKER_COMMAND":        "other",
		"LANGSYNC_SESSION_MAX_IDLE_TIME": "1m",
		"LANGSYNC_DIAGNOSTICS_ENHANCED":  "false",
		"LANGSYNC_LOG_LEVEL":             "debug",
	}))
	require.NoError(t, err)
	assert.Equal(t, "other", s.Worker.Command)
	assert.Equal(t, time.Minute, s.Session.MaxIdleTime.Std())
	assert.False(t, s.Diagnostics.Enhanced)
	assert.Equal(t, "debug", s.Log.Level)

	_, err = Load(fsys, "settings.toml", env(map[string]string{"LANGSYNC_ANALYSIS_DEBOUNCE": "soon"}))
	assert.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	fsys := loader.MapFS{
		"bad.toml": []byte("[analysis]\ndebounce = \"0s\"\n[log]\nlevel = \"loud\"\n"),
	}
	_, err := Load(fsys, "bad.toml", noEnv)
	require.ErrorIs(t, err, ErrValidationFailed)
	assert.Contains(t, err.Error(), "analysis.debounce")
	assert.Contains(t, err.Error(), "log.level")

	_, err = Load(loader.MapFS{"x.json": []byte("{}")}, "x.json", noEnv)
	assert.ErrorIs(t, err, loader.ErrUnsupportedFormat)
}

func TestSettings_Diff(t *testing.T) {
	a := Defaults()
	b := a
	assert.Empty(t, a.Diff(b))

	b.Worker.Args = []string{"--x"}
	b.Session.MaxIdleTime = Duration(time.Minute)
	b.Diagnostics.Enhanced = true
	assert.Equal(t, []string{"worker.args", "session.max_idle_time", "diagnostics.enhanced"}, a.Diff(b))
}

func TestStore_UpdatePublishesChangedKeys(t *testing.T) {
	store, err := NewStore("", WithLookup(noEnv), WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	defer store.Close()

	var got []notify.Change[Settings]
	store.SubscribePath("session", func(c notify.Change[Settings]) { got = append(got, c) })

	next := store.Settings()
	next.Diagnostics.Enhanced = true
	require.NoError(t, store.Update(next, "test"))
	assert.Empty(t, got, "session keys unchanged")

	next.Session.MaxIdleTime = Duration(time.Minute)
	require.NoError(t, store.Update(next, "test"))
	require.Len(t, got, 1)
	assert.Equal(t, []string{"session.max_idle_time"}, got[0].Paths)
	assert.Equal(t, time.Minute, store.Settings().Session.MaxIdleTime.Std())

	bad := next
	bad.Analysis.Debounce = 0
	assert.ErrorIs(t, store.Update(bad, "test"), ErrValidationFailed)
	assert.Equal(t, next, store.Settings())
}

func TestStore_WatchReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.toml")
	require.NoError(t, os.WriteFile(path, []byte("[analysis]\ndebounce = \"100ms\"\n"), 0o600))

	store, err := NewStore(path, WithWatch(true), WithLookup(noEnv), WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	defer store.Close()

	var mu sync.Mutex
	var changes []notify.Change[Settings]
	store.Subscribe(func(c notify.Change[Settings]) {
		mu.Lock()
		changes = append(changes, c)
		mu.Unlock()
	})

	require.NoError(t, os.WriteFile(path, []byte("[analysis]\ndebounce = \"200ms\"\n"), 0o600))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(changes) > 0
	}, 3*time.Second, 20*time.Millisecond)

	assert.Equal(t, 200*time.Millisecond, store.Settings().Analysis.Debounce.Std())
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"analysis.debounce"}, changes[len(changes)-1].Paths)
}

func TestStore_WatchedDeliveryDoesNotBlockUpdate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.toml")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	store, err := NewStore(path, WithWatch(true), WithLookup(noEnv), WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	unblock := make(chan struct{})
	delivered := make(chan []string, 1)
	store.Subscribe(func(c notify.Change[Settings]) {
		<-unblock
		delivered <- c.Paths
	})

	next := store.Settings()
	next.Diagnostics.Enhanced = true
	require.NoError(t, store.Update(next, "test"), "Update returns while the observer is blocked")
	assert.True(t, store.Settings().Diagnostics.Enhanced)

	close(unblock)
	select {
	case paths := <-delivered:
		assert.Equal(t, []string{"diagnostics.enhanced"}, paths)
	case <-time.After(3 * time.Second):
		t.Fatal("change not delivered")
	}
	store.Close()
}
