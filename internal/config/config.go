// Package config loads and validates config.toml, per spec §6: "keys for watch paths, debounce
// ms, file-handle cap, concurrency, traffic policy globs, backend preferences. Unknown keys are
// fatal; out-of-range numbers carry the valid range in the error; each error carries a
// human-readable suggestion."
//
// Loading is grounded on the teacher pack's use of github.com/spf13/viper (evalgo-org-eve's
// cli/root.go: SetConfigFile/AddConfigPath/ReadInConfig), with UnmarshalExact in place of
// Unmarshal so that unrecognized keys fail loudly instead of being silently ignored.
package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/cyraxred/reactor/internal/core"
)

// Config is the fully validated, in-memory configuration for one engine instance.
type Config struct {
	WatchPaths       []string      `mapstructure:"watch_paths"`
	DebounceMS       int           `mapstructure:"debounce_ms"`
	FileHandleCap    int           `mapstructure:"file_handle_cap"`
	Concurrency      int           `mapstructure:"concurrency"`
	TrafficPolicy    TrafficPolicy `mapstructure:"traffic_policy"`
	Backend          string        `mapstructure:"backend"`
	AllowUnsafeForce bool          `mapstructure:"allow_unsafe_force"`
}

// TrafficPolicy mirrors traffic.Policy's field shape so config.toml can declare Green/Red globs
// without internal/config depending on internal/traffic.
type TrafficPolicy struct {
	GreenGlobs []string `mapstructure:"green_globs"`
	RedGlobs   []string `mapstructure:"red_globs"`
}

// DebounceWindow returns DebounceMS as a time.Duration.
func (c Config) DebounceWindow() time.Duration {
	return time.Duration(c.DebounceMS) * time.Millisecond
}

const (
	minDebounceMS    = 1
	maxDebounceMS    = 60_000
	minFileHandleCap = 1
	maxFileHandleCap = 1_000_000
	minConcurrency   = 1
	maxConcurrency   = 4096
)

var validBackends = map[string]bool{
	"auto": true, "io_uring": true, "kqueue": true, "iocp": true, "portable": true,
}

// Default returns the configuration used when no config.toml is present.
func Default() Config {
	return Config{
		WatchPaths:    []string{"."},
		DebounceMS:    100,
		FileHandleCap: 256,
		Concurrency:   8,
		Backend:       "auto",
	}
}

// Load reads path (a TOML file) into a validated Config. An empty path loads Default() with no
// file access.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return Config{}, core.NewEngineError(core.CategoryConfiguration, "config.load", err,
			"check that the file exists and is valid TOML")
	}

	cfg := Default()
	if err := v.UnmarshalExact(&cfg); err != nil {
		return Config{}, core.NewEngineError(core.CategoryConfiguration, "config.load", err,
			"remove or rename any keys not recognized by this version of the engine")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every range-bound field and returns an EngineError whose Suggestions name the
// valid range, per spec §6.
func (c Config) Validate() error {
	if c.DebounceMS < minDebounceMS || c.DebounceMS > maxDebounceMS {
		return core.NewEngineError(core.CategoryConfiguration, "config.validate",
			errors.Errorf("debounce_ms=%d is out of range", c.DebounceMS),
			rangeSuggestion("debounce_ms", minDebounceMS, maxDebounceMS))
	}
	if c.FileHandleCap < minFileHandleCap || c.FileHandleCap > maxFileHandleCap {
		return core.NewEngineError(core.CategoryConfiguration, "config.validate",
			errors.Errorf("file_handle_cap=%d is out of range", c.FileHandleCap),
			rangeSuggestion("file_handle_cap", minFileHandleCap, maxFileHandleCap))
	}
	if c.Concurrency < minConcurrency || c.Concurrency > maxConcurrency {
		return core.NewEngineError(core.CategoryConfiguration, "config.validate",
			errors.Errorf("concurrency=%d is out of range", c.Concurrency),
			rangeSuggestion("concurrency", minConcurrency, maxConcurrency))
	}
	if len(c.WatchPaths) == 0 {
		return core.NewEngineError(core.CategoryConfiguration, "config.validate",
			errors.New("watch_paths must not be empty"),
			"set watch_paths to at least one directory, e.g. [\".\"]")
	}
	if c.Backend != "" && !validBackends[strings.ToLower(c.Backend)] {
		return core.NewEngineError(core.CategoryConfiguration, "config.validate",
			errors.Errorf("backend %q is not recognized", c.Backend),
			"backend must be one of: auto, io_uring, kqueue, iocp, portable")
	}
	return nil
}

func rangeSuggestion(key string, min, max int) string {
	return errors.Errorf("%s must be between %d and %d", key, min, max).Error()
}
