// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin_test

import (
	"context"
	"sync"
	"testing"

	"github.com/holomush/plugbus/internal/eventbus"
	"github.com/holomush/plugbus/internal/plugin"
)

// fakePlugin is a configurable in-memory plugin.
type fakePlugin struct {
	name     string
	info     string
	event    string
	enabled  bool
	commands map[string]plugin.CommandHandler
	order    []string
	regErr   error
	run      func(ctx context.Context, host plugin.Host, args ...any) error
}

func newFake(name, event string, enabled bool) *fakePlugin {
	return &fakePlugin{name: name, info: name + " plugin", event: event, enabled: enabled}
}

func (f *fakePlugin) withCommand(name string, h plugin.CommandHandler) *fakePlugin {
	if f.commands == nil {
		f.commands = make(map[string]plugin.CommandHandler)
	}
	f.commands[name] = h
	f.order = append(f.order, name)
	return f
}

func (f *fakePlugin) withRun(run func(ctx context.Context, host plugin.Host, args ...any) error) *fakePlugin {
	f.run = run
	return f
}

func (f *fakePlugin) Name() string      { return f.name }
func (f *fakePlugin) Info() string      { return f.info }
func (f *fakePlugin) Conf() plugin.Conf { return plugin.Conf{Event: f.event, Enabled: f.enabled} }

func (f *fakePlugin) RegisterCommands(_ context.Context, set *plugin.CommandSet) error {
	if f.regErr != nil {
		return f.regErr
	}
	for _, name := range f.order {
		if err := set.Add(name, "help for "+name, f.commands[name]); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakePlugin) Run(ctx context.Context, host plugin.Host, args ...any) error {
	if f.run == nil {
		return nil
	}
	return f.run(ctx, host, args...)
}

// callLog records handler invocations across plugins.
type callLog struct {
	mu    sync.Mutex
	calls []string
	args  [][]any
}

func (c *callLog) handler(name string) func(context.Context, plugin.Host, ...any) error {
	return func(_ context.Context, _ plugin.Host, args ...any) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.calls = append(c.calls, name)
		c.args = append(c.args, args)
		return nil
	}
}

func (c *callLog) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

func (c *callLog) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = nil
	c.args = nil
}

type nopHost struct{}

func (nopHost) Publish(context.Context, string, ...any) error { return nil }

// newTestRegistry wires a registry to a fresh bus.
func newTestRegistry(opts ...plugin.Option) (*plugin.Registry, *eventbus.Bus) {
	bus := eventbus.New()
	return plugin.NewRegistry(bus, nopHost{}, opts...), bus
}

// staticSource registers fakes on a StaticResolver, keyed by source ID.
func staticSource(plugins map[string]*fakePlugin, order ...string) *plugin.StaticResolver {
	s := plugin.NewStaticResolver()
	for _, id := range order {
		p := plugins[id]
		s.Register(id, func(context.Context) (plugin.Plugin, error) { return p, nil })
	}
	return s
}

type recordingPublisher struct {
	events []string
}

func (p *recordingPublisher) Publish(_ context.Context, event string, _ ...any) error {
	p.events = append(p.events, event)
	return nil
}

func eventbusFor(t *testing.T) *eventbus.Bus {
	t.Helper()
	return eventbus.New()
}
