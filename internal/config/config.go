// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads plugbus configuration. Sources are layered in order:
// built-in defaults, then a YAML file, then command-line flags.
package config

import (
	"time"

	"github.com/gobwas/glob"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/holomush/plugbus/internal/eventbus"
	"github.com/holomush/plugbus/internal/logging"
	"github.com/holomush/plugbus/internal/xdg"
)

// CodeInvalidConfig marks configuration that failed to load or validate.
const CodeInvalidConfig = "INVALID_CONFIG"

// Config is the complete plugbus configuration.
type Config struct {
	Plugins  PluginsConfig  `koanf:"plugins"`
	Dispatch DispatchConfig `koanf:"dispatch"`
	Log      LogConfig      `koanf:"log"`
	Metrics  MetricsConfig  `koanf:"metrics"`
}

// PluginsConfig controls discovery.
type PluginsConfig struct {
	Dir      string   `koanf:"dir"`
	Include  []string `koanf:"include"`
	Exclude  []string `koanf:"exclude"`
	Disabled []string `koanf:"disabled"`
}

// DispatchConfig controls event delivery.
type DispatchConfig struct {
	HandlerTimeout time.Duration `koanf:"handler_timeout"`
	QueueSize      int           `koanf:"queue_size"`
}

// LogConfig controls logging.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// MetricsConfig controls the observability server. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// Default values.
const (
	defaultLogFormat = "text"
	defaultLogLevel  = "info"
)

func defaults() map[string]any {
	return map[string]any{
		"plugins.dir":              xdg.PluginsDir(),
		"plugins.include":          []string{},
		"plugins.exclude":          []string{},
		"plugins.disabled":         []string{},
		"dispatch.handler_timeout": time.Duration(0),
		"dispatch.queue_size":      eventbus.DefaultQueueSize,
		"log.format":               defaultLogFormat,
		"log.level":                defaultLogLevel,
		"metrics.addr":             "",
	}
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"plugins-dir":     "plugins.dir",
	"include":         "plugins.include",
	"exclude":         "plugins.exclude",
	"disable":         "plugins.disabled",
	"handler-timeout": "dispatch.handler_timeout",
	"queue-size":      "dispatch.queue_size",
	"log-format":      "log.format",
	"log-level":       "log.level",
	"metrics-addr":    "metrics.addr",
}

// RegisterFlags adds the configuration flags to fs. Flag defaults are
// informational only; unset flags never override the config file.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("plugins-dir", xdg.PluginsDir(), "directory to discover plugins in")
	fs.StringSlice("include", nil, "only load plugin sources matching these globs")
	fs.StringSlice("exclude", nil, "skip plugin sources matching these globs")
	fs.StringSlice("disable", nil, "plugin names to disable after loading")
	fs.Duration("handler-timeout", 0, "per-handler timeout (0 disables)")
	fs.Int("queue-size", eventbus.DefaultQueueSize, "deferred event queue capacity")
	fs.String("log-format", defaultLogFormat, "log format (json or text)")
	fs.String("log-level", defaultLogLevel, "log level (debug, info, warn, error)")
	fs.String("metrics-addr", "", "observability server address (empty disables)")
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty) and the changed flags in fs (skipped when fs is nil).
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	for key, val := range defaults() {
		if err := k.Set(key, val); err != nil {
			return nil, oops.Code(CodeInvalidConfig).In("config").With("key", key).Wrap(err)
		}
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code(CodeInvalidConfig).
				In("config").
				With("path", path).
				Hint("check that the file exists and is valid YAML").
				Wrapf(err, "load config file")
		}
	}

	if fs != nil {
		provider := posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(fs, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code(CodeInvalidConfig).In("config").Wrapf(err, "load flags")
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, oops.Code(CodeInvalidConfig).In("config").Wrapf(err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Plugins.Dir == "" {
		return invalid("plugins.dir", "plugins.dir is required")
	}
	if err := validatePatterns("plugins.include", c.Plugins.Include); err != nil {
		return err
	}
	if err := validatePatterns("plugins.exclude", c.Plugins.Exclude); err != nil {
		return err
	}
	if c.Dispatch.HandlerTimeout < 0 {
		return invalid("dispatch.handler_timeout", "dispatch.handler_timeout must not be negative, got %s", c.Dispatch.HandlerTimeout)
	}
	if c.Dispatch.QueueSize <= 0 {
		return invalid("dispatch.queue_size", "dispatch.queue_size must be positive, got %d", c.Dispatch.QueueSize)
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return invalid("log.format", "log.format must be 'json' or 'text', got %q", c.Log.Format)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return invalid("log.level", "%v", err)
	}
	return nil
}

func validatePatterns(key string, patterns []string) error {
	for _, p := range patterns {
		if _, err := glob.Compile(p); err != nil {
			return invalid(key, "invalid plugin source pattern %q in %s: %v", p, key, err)
		}
	}
	return nil
}

func invalid(key, format string, args ...any) error {
	return oops.Code(CodeInvalidConfig).In("config").With("key", key).Errorf(format, args...)
}
