// Package config loads and watches langsync settings.
//
// Settings come from three sources, later ones overriding earlier:
//
//	┌──────────────────────────────┐
//	│  3. Environment (LANGSYNC_*) │  ← Highest priority
//	├──────────────────────────────┤
//	│  2. Settings file            │  ← settings.toml or settings.yaml
//	├──────────────────────────────┤
//	│  1. Built-in defaults        │  ← Lowest priority
//	└──────────────────────────────┘
//
// # Sub-packages
//
//   - loader: TOML and YAML decoding selected by file extension
//   - notify: change notification with dotted-path subscriptions
//   - watcher: fsnotify-based live reload of the settings file
//
// # Basic Usage
//
//	store, err := config.NewStore("settings.toml", config.WithWatch(true))
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	store.Subscribe(func(c notify.Change[config.Settings]) {
//	    service.SettingsChanged(ctx, c.New)
//	})
//
// # Keys
//
//	worker.command               engine executable
//	worker.args                  engine arguments
//	worker.env                   extra engine environment
//	session.max_idle_time        idle teardown threshold, 0 disables
//	session.idle_check_interval  how often idleness is checked
//	analysis.debounce            quiet period before recomputation
//	diagnostics.enhanced         enhanced diagnostic presentation
//	log.level                    debug, info, warn or error
//	log.development              console encoding and stack traces
package config
