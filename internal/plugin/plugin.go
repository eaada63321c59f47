// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package plugin is the runtime plugin registry and event-dispatch broker.
//
// A Registry loads plugins from sources, binds each plugin to a single named
// event on a shared bus, and fans every occurrence of that event out to the
// enabled plugins bound to it, in registration order.
package plugin

import (
	"context"

	"github.com/holomush/plugbus/internal/eventbus"
)

// Host is the host context handed to plugin handlers.
type Host interface {
	// Publish fires an event on the host bus.
	Publish(ctx context.Context, event string, args ...any) error
}

// Subscriber is the part of the event bus the registry needs.
type Subscriber interface {
	Subscribe(event string, handler eventbus.Handler)
}

// Conf is the dispatch configuration a plugin declares.
type Conf struct {
	Event   string
	Enabled bool
}

// Plugin is the contract every loaded unit satisfies.
type Plugin interface {
	// Name is the registry key. It must match the manifest name pattern.
	Name() string

	// Info is a human-readable description.
	Info() string

	// Conf returns the event binding and the initial enabled flag.
	Conf() Conf

	// RegisterCommands populates the plugin's sub-commands. It is called
	// exactly once per load, before the plugin can receive events.
	RegisterCommands(ctx context.Context, set *CommandSet) error

	// Run handles one occurrence of the bound event.
	Run(ctx context.Context, host Host, args ...any) error
}

// Constructor instantiates a plugin from a resolved source.
type Constructor func(ctx context.Context) (Plugin, error)

// Resolver maps a source identifier to a constructor.
type Resolver interface {
	Resolve(ctx context.Context, sourceID string) (Constructor, error)
}

// Discoverer lists the source identifiers currently available for loading.
type Discoverer interface {
	Discover(ctx context.Context) ([]string, error)
}
