// Package config resolves process-level settings from the environment and,
// optionally, watches a gameplay-constants overlay file for hot-reload
// during development.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/fsnotify/fsnotify"

	"github.com/novaarena/core/internal/rules"
)

// Config holds process-wide settings that aren't part of the wire-compatible
// rules constants — only real deployment knobs (port, player cap, log
// verbosity), because anything that affects BuildHash must stay a rules
// constant, not an env var.
type Config struct {
	Port        int
	MaxPlayers  int
	LogLevel    string
}

// Defaults mirrors rules' baked-in constants.
func Defaults() Config {
	return Config{
		Port:       rules.DefaultPort,
		MaxPlayers: rules.MaxPlayers,
		LogLevel:   "info",
	}
}

// Load merges CORE_PORT, CORE_MAX_PLAYERS, and CORE_LOG_LEVEL onto Defaults.
// MaxPlayers is informational only: it may lower the usable pool below
// rules.MaxPlayers for an operator who wants a smaller lobby, but it can
// never raise it past the wire-compatible ceiling.
func Load() Config {
	c := Defaults()
	if v := getenvInt("CORE_PORT"); v > 0 {
		c.Port = v
	}
	if v := getenvInt("CORE_MAX_PLAYERS"); v > 0 && v <= rules.MaxPlayers {
		c.MaxPlayers = v
	}
	if v := os.Getenv("CORE_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	return c
}

func getenvInt(key string) int {
	s := os.Getenv(key)
	if s == "" {
		return 0
	}
	n, _ := strconv.Atoi(s)
	return n
}

// Overlay is a development-only partial override of a handful of tunable
// gameplay constants, loaded from a JSON file. It exists because rules'
// constants are compiled in and changing one changes the build hash;
// an overlay lets a host tweak feel (gravity, merge thresholds) without
// breaking wire compatibility with clients that never loaded it — the
// overlay is host-local tuning, not a network-visible setting. Loading an
// overlay changes nothing by itself: cmd/novaarena only logs each reloaded
// Overlay, and the world keeps using the rules constants.
type Overlay struct {
	Gravity                  *float64 `json:"gravity,omitempty"`
	MergeVelocityThresholdSq *float64 `json:"merge_velocity_threshold_sq,omitempty"`
}

// LoadOverlay reads and parses an overlay file. A missing file is not an
// error — it returns a zero-value Overlay — since the overlay is opt-in.
func LoadOverlay(path string) (Overlay, error) {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Overlay{}, nil
	}
	if err != nil {
		return Overlay{}, fmt.Errorf("config: read overlay %q: %w", path, err)
	}
	var o Overlay
	if err := json.Unmarshal(b, &o); err != nil {
		return Overlay{}, fmt.Errorf("config: parse overlay %q: %w", path, err)
	}
	return o, nil
}

// WatchOverlay watches path and invokes onChange with the freshly parsed
// Overlay every time the file is written. It returns a stop function; the
// watcher goroutine exits when stop is called. A read or parse error
// skips that onChange call and is neither logged nor propagated, since a
// developer mid-edit will trip the watcher on a half-written file.
func WatchOverlay(path string, onChange func(Overlay)) (stop func() error, err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: create watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("config: watch %q: %w", path, err)
	}

	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if o, err := LoadOverlay(path); err == nil {
					onChange(o)
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return watcher.Close, nil
}
