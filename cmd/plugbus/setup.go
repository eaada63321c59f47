// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/holomush/plugbus/internal/builtin"
	"github.com/holomush/plugbus/internal/config"
	"github.com/holomush/plugbus/internal/console"
	"github.com/holomush/plugbus/internal/eventbus"
	"github.com/holomush/plugbus/internal/logging"
	"github.com/holomush/plugbus/internal/plugin"
	pluginlua "github.com/holomush/plugbus/internal/plugin/lua"
	"github.com/holomush/plugbus/internal/xdg"
)

// configPath returns the --config value, or the default config file when
// it exists.
func configPath() string {
	if configFile != "" {
		return configFile
	}
	path := xdg.ConfigFile()
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

// loadConfig reads configuration and installs the default logger.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath(), cmd.Flags())
	if err != nil {
		return nil, err
	}
	if err := logging.SetDefault(logging.Options{
		Service: "plugbus",
		Version: version,
		Format:  cfg.Log.Format,
		Level:   cfg.Log.Level,
		Writer:  cmd.ErrOrStderr(),
	}); err != nil {
		return nil, err
	}
	return cfg, nil
}

// broker is a wired registry and the bus it dispatches on.
type broker struct {
	bus      *eventbus.Bus
	registry *plugin.Registry
}

// newBroker wires the bus, the Lua and built-in sources and the registry.
// Plugins publish through the bus queue so that a handler never re-enters
// dispatch synchronously; the console drains that queue.
func newBroker(cfg *config.Config) (*broker, error) {
	bus := eventbus.New(eventbus.WithQueueSize(cfg.Dispatch.QueueSize))

	disc, err := pluginlua.NewDiscoverer(cfg.Plugins.Dir, cfg.Plugins.Include, cfg.Plugins.Exclude)
	if err != nil {
		return nil, err
	}

	builtins := plugin.NewStaticResolver()
	builtin.Register(builtins)

	registry := plugin.NewRegistry(bus, bus.Deferred(),
		plugin.WithResolver(plugin.ChainResolver{
			pluginlua.NewResolver(cfg.Plugins.Dir, pluginlua.WithHostVersion(version)),
			builtins,
		}),
		plugin.WithDiscoverer(plugin.ChainDiscoverer{disc, builtins}),
		plugin.WithHandlerTimeout(cfg.Dispatch.HandlerTimeout),
		plugin.WithLogger(slog.Default()),
	)
	return &broker{bus: bus, registry: registry}, nil
}

// loadAll loads every discovered source and applies the configured disables.
func (b *broker) loadAll(ctx context.Context, cfg *config.Config) error {
	if err := b.registry.LoadAll(ctx); err != nil {
		return err
	}
	for _, name := range cfg.Plugins.Disabled {
		if !b.registry.Disable(name) {
			slog.Warn("cannot disable unknown plugin", "plugin", name)
		}
	}
	return nil
}

// console returns a console over the broker. Event lines, commands and the
// deferred events they raise all run on the goroutine calling Run or Exec.
func (b *broker) console(out io.Writer, opts ...console.Option) *console.Console {
	opts = append(opts, console.WithQueue(b.bus))
	return console.New(b.registry, b.bus, b.bus.Deferred(), out, opts...)
}
