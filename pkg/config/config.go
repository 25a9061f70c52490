// Package config loads the Ember runtime configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration decodes from either a duration string ("500ms") or an integer
// nanosecond count.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var n int64
	if err := value.Decode(&n); err == nil {
		*d = Duration(n)
		return nil
	}

	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("invalid duration value: %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration '%s': %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the top-level runtime configuration.
type Config struct {
	Log       LogConfig      `yaml:"log"`
	Watcher   WatcherConfig  `yaml:"watcher"`
	Allocator AllocConfig    `yaml:"allocator"`
	Scripts   []ScriptConfig `yaml:"scripts"`
	Protected []string       `yaml:"protected"`
}

// LogConfig controls diagnostic output.
type LogConfig struct {
	File  string `yaml:"file"`  // empty = stderr only
	Level string `yaml:"level"` // zerolog level name, default "info"
}

// WatcherConfig selects the file-watch backend.
type WatcherConfig struct {
	Backend      string   `yaml:"backend"` // "native" (default) or "polling"
	PollInterval Duration `yaml:"poll_interval"`
}

// AllocConfig selects the allocation strategy for the runtime manager.
type AllocConfig struct {
	Strategy   string `yaml:"strategy"` // default, stack, pool, virtual
	StackSize  int    `yaml:"stack_size"`
	BlockSize  int    `yaml:"block_size"`
	BlockCount int    `yaml:"block_count"`
}

// ScriptConfig registers one script for hot reload.
type ScriptConfig struct {
	Name string `yaml:"name"`
	Path string `yaml:"path"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Log:     LogConfig{Level: "info"},
		Watcher: WatcherConfig{Backend: "native", PollInterval: Duration(500 * time.Millisecond)},
		Allocator: AllocConfig{
			Strategy: "default",
		},
	}
}

// Load reads a YAML configuration file, filling unset fields from Default.
// A missing path yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config '%s': %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config '%s': %w", path, err)
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Watcher.Backend == "" {
		cfg.Watcher.Backend = "native"
	}
	if cfg.Watcher.PollInterval <= 0 {
		cfg.Watcher.PollInterval = Duration(500 * time.Millisecond)
	}
	if cfg.Allocator.Strategy == "" {
		cfg.Allocator.Strategy = "default"
	}
	return cfg, nil
}
