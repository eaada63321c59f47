// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/holomush/plugbus/internal/eventbus"
	"github.com/holomush/plugbus/internal/plugin"
	"github.com/holomush/plugbus/pkg/errutil"
)

func TestRegistry_Scenario(t *testing.T) {
	ctx := context.Background()
	reg, bus := newTestRegistry()
	log := &callLog{}

	h1Called := false
	h1 := func(context.Context, plugin.Host, ...string) error {
		h1Called = true
		return nil
	}
	require.NoError(t, reg.Add(ctx, newFake("A", "msg", true).withCommand("ping", h1).withRun(log.handler("A"))))
	require.NoError(t, reg.Add(ctx, newFake("B", "msg", false).withRun(log.handler("B"))))
	require.NoError(t, reg.Add(ctx, newFake("C", "join", true).withRun(log.handler("C"))))

	require.NoError(t, bus.Publish(ctx, "msg"))
	assert.Equal(t, []string{"A"}, log.Calls())

	log.Reset()
	require.NoError(t, bus.Publish(ctx, "join"))
	assert.Equal(t, []string{"C"}, log.Calls())

	cmd, ok := reg.GetCommand("ping")
	require.True(t, ok)
	assert.Equal(t, "A", cmd.Plugin)
	require.NoError(t, cmd.Handler(ctx, nopHost{}))
	assert.True(t, h1Called)

	listing, err := reg.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []plugin.ListEntry{
		{Name: "A", Enabled: true},
		{Name: "B", Enabled: false},
		{Name: "C", Enabled: true},
	}, listing.Loaded)
	assert.Empty(t, listing.Unloaded)
}

func TestRegistry_FanOutInvokesEnabledInOrder(t *testing.T) {
	ctx := context.Background()
	reg, bus := newTestRegistry()
	log := &callLog{}

	for i, enabled := range []bool{true, false, true} {
		name := []string{"first", "second", "third"}[i]
		require.NoError(t, reg.Add(ctx, newFake(name, "ping", enabled).withRun(log.handler(name))))
	}

	require.NoError(t, bus.Publish(ctx, "ping", "payload", 7))
	assert.Equal(t, []string{"first", "third"}, log.Calls())
	assert.Equal(t, [][]any{{"payload", 7}, {"payload", 7}}, log.args)
}

func TestRegistry_SubscribesOncePerEvent(t *testing.T) {
	ctx := context.Background()
	reg, bus := newTestRegistry()
	log := &callLog{}

	require.NoError(t, reg.Add(ctx, newFake("a", "msg", true).withRun(log.handler("a"))))
	require.NoError(t, reg.Add(ctx, newFake("b", "msg", true).withRun(log.handler("b"))))
	require.NoError(t, reg.Add(ctx, newFake("a", "msg", true).withRun(log.handler("a2"))))
	assert.Equal(t, 1, bus.Subscriptions("msg"))

	require.True(t, reg.Unload("a"))
	require.True(t, reg.Unload("b"))
	require.NoError(t, reg.Add(ctx, newFake("c", "msg", true).withRun(log.handler("c"))))
	assert.Equal(t, 1, bus.Subscriptions("msg"))

	require.NoError(t, bus.Publish(ctx, "msg"))
	assert.Equal(t, []string{"c"}, log.Calls(), "each handler runs once per firing")
}

// slowSubscriber delays every subscription to widen the window between
// recording an event and its router reaching the bus.
type slowSubscriber struct {
	bus *eventbus.Bus
}

func (s slowSubscriber) Subscribe(event string, h eventbus.Handler) {
	time.Sleep(20 * time.Millisecond)
	s.bus.Subscribe(event, h)
}

func TestRegistry_ConcurrentAddSubscribesBeforeReturning(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	bus := eventbus.New()
	reg := plugin.NewRegistry(slowSubscriber{bus: bus}, nopHost{})

	const n = 8
	seen := make([]int, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, reg.Add(ctx, newFake(fmt.Sprintf("p%d", i), "tick", true)))
			seen[i] = bus.Subscriptions("tick")
		}()
	}
	wg.Wait()

	for i, got := range seen {
		assert.Equal(t, 1, got, "add %d returned with %d routers", i, got)
	}
	assert.Equal(t, []string{"tick"}, reg.Events())
}

func TestRegistry_ReplaceKeepsPosition(t *testing.T) {
	ctx := context.Background()
	reg, bus := newTestRegistry()
	log := &callLog{}

	require.NoError(t, reg.Add(ctx, newFake("a", "msg", true).withRun(log.handler("a"))))
	require.NoError(t, reg.Add(ctx, newFake("b", "msg", true).withRun(log.handler("b"))))
	require.NoError(t, reg.Add(ctx, newFake("a", "msg", true).withRun(log.handler("a-new"))))

	assert.Equal(t, []string{"a", "b"}, reg.Names())
	require.NoError(t, bus.Publish(ctx, "msg"))
	assert.Equal(t, []string{"a-new", "b"}, log.Calls())
}

func TestRegistry_UnloadIsIdempotent(t *testing.T) {
	ctx := context.Background()
	reg, bus := newTestRegistry()
	log := &callLog{}
	require.NoError(t, reg.Add(ctx, newFake("a", "msg", true).withRun(log.handler("a"))))

	assert.True(t, reg.Unload("a"))
	assert.False(t, reg.Unload("a"))
	assert.False(t, reg.Unload("never"))

	require.NoError(t, bus.Publish(ctx, "msg"))
	assert.Empty(t, log.Calls())
	assert.Equal(t, []string{"msg"}, reg.Events(), "subscription outlives its last plugin")
	assert.Equal(t, 1, bus.Subscriptions("msg"))
}

func TestRegistry_EnableDisable(t *testing.T) {
	ctx := context.Background()
	reg, bus := newTestRegistry()
	log := &callLog{}
	require.NoError(t, reg.Add(ctx, newFake("a", "msg", true).withRun(log.handler("a"))))

	assert.True(t, reg.Disable("a"))
	require.NoError(t, bus.Publish(ctx, "msg"))
	assert.Empty(t, log.Calls())

	assert.True(t, reg.Enable("a"))
	require.NoError(t, bus.Publish(ctx, "msg"))
	assert.Equal(t, []string{"a"}, log.Calls())

	assert.False(t, reg.Enable("missing"))
	assert.False(t, reg.Disable("missing"))
}

func TestRegistry_IsLoadedAndInfo(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry()
	require.NoError(t, reg.Add(ctx, newFake("a", "msg", true)))

	assert.True(t, reg.IsLoaded("a"))
	reg.Disable("a")
	assert.False(t, reg.IsLoaded("a"), "disabled plugins do not count as loaded")

	info, err := reg.Info("a")
	require.NoError(t, err)
	assert.Equal(t, plugin.Info{Description: "a plugin", Enabled: false, Loaded: true, Event: "msg"}, info)

	reg.Unload("a")
	assert.False(t, reg.IsLoaded("a"))
	_, err = reg.Info("a")
	errutil.AssertErrorCode(t, err, plugin.CodeNotFound)
	assert.Equal(t, plugin.NotFoundMessage, err.Error())
}

func TestRegistry_AddRejectsInvalidPlugins(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		p    *fakePlugin
	}{
		{name: "empty name", p: newFake("", "msg", true)},
		{name: "bad name", p: newFake("has space", "msg", true)},
		{name: "no event", p: newFake("a", "", true)},
		{name: "registration fails", p: &fakePlugin{name: "a", event: "msg", regErr: errors.New("nope")}},
		{name: "duplicate command", p: newFake("a", "msg", true).
			withCommand("x", func(context.Context, plugin.Host, ...string) error { return nil }).
			withCommand("x", func(context.Context, plugin.Host, ...string) error { return nil })},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, bus := newTestRegistry()
			err := reg.Add(ctx, tt.p)
			errutil.AssertErrorCode(t, err, plugin.CodeInvalidPlugin)
			assert.Empty(t, reg.Names())
			assert.Empty(t, reg.Events())
			assert.Equal(t, 0, bus.Subscriptions("msg"))
		})
	}
}

func TestRegistry_LoadFailures(t *testing.T) {
	ctx := context.Background()
	src := plugin.NewStaticResolver()
	src.Register("errs", func(context.Context) (plugin.Plugin, error) { return nil, errors.New("boom") })
	src.Register("panics", func(context.Context) (plugin.Plugin, error) { panic("kaboom") })
	src.Register("nil", func(context.Context) (plugin.Plugin, error) { return nil, nil })
	src.Register("no-event", func(context.Context) (plugin.Plugin, error) { return newFake("x", "", true), nil })

	tests := []struct {
		source string
		stage  string
	}{
		{source: "missing", stage: "resolve"},
		{source: "errs", stage: "instantiate"},
		{source: "panics", stage: "instantiate"},
		{source: "nil", stage: "register"},
		{source: "no-event", stage: "register"},
	}

	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			reg, bus := newTestRegistry(plugin.WithResolver(src))

			err := reg.Load(ctx, tt.source)
			var lerr *plugin.LoadError
			require.ErrorAs(t, err, &lerr)
			assert.Equal(t, tt.source, lerr.SourceID)
			assert.Contains(t, err.Error(), "unable to load "+tt.source)
			errutil.AssertErrorContext(t, lerr.Cause, "stage", tt.stage)

			assert.Empty(t, reg.Names())
			assert.Equal(t, 0, bus.Subscriptions(""))
			assert.Empty(t, reg.Events())
		})
	}
}

func TestRegistry_LoadUnknownSourceIsResolverMiss(t *testing.T) {
	reg, _ := newTestRegistry(plugin.WithResolver(plugin.NewStaticResolver()))

	err := reg.Load(context.Background(), "ghost")
	require.Error(t, err)
	assert.True(t, plugin.IsUnknownSource(err))
}

func TestRegistry_LoadWithoutResolver(t *testing.T) {
	reg, _ := newTestRegistry()

	var lerr *plugin.LoadError
	require.ErrorAs(t, reg.Load(context.Background(), "x"), &lerr)
}

func TestRegistry_LoadRecordsSource(t *testing.T) {
	ctx := context.Background()
	p := newFake("alpha", "msg", true)
	reg, _ := newTestRegistry(plugin.WithResolver(staticSource(map[string]*fakePlugin{"alpha-src": p}, "alpha-src")))

	require.NoError(t, reg.Load(ctx, "alpha-src"))
	d, ok := reg.Get("alpha")
	require.True(t, ok)
	assert.Equal(t, "alpha-src", d.Source)
	assert.Same(t, p, d.Plugin())
}

func TestRegistry_Reload(t *testing.T) {
	ctx := context.Background()
	constructed := 0
	src := plugin.NewStaticResolver()
	src.Register("alpha-src", func(context.Context) (plugin.Plugin, error) {
		constructed++
		return newFake("alpha", "msg", true), nil
	})
	reg, bus := newTestRegistry(plugin.WithResolver(src))

	require.NoError(t, reg.Load(ctx, "alpha-src"))
	reg.Disable("alpha")

	assert.True(t, reg.Reload(ctx, "alpha"))
	assert.Equal(t, 2, constructed)
	assert.True(t, reg.IsLoaded("alpha"), "reload restores the declared enabled flag")
	assert.Equal(t, 1, bus.Subscriptions("msg"))

	assert.False(t, reg.Reload(ctx, "missing"))
}

func TestRegistry_ReloadFailureLeavesPluginUnloaded(t *testing.T) {
	ctx := context.Background()
	fail := false
	src := plugin.NewStaticResolver()
	src.Register("alpha", func(context.Context) (plugin.Plugin, error) {
		if fail {
			return nil, errors.New("gone")
		}
		return newFake("alpha", "msg", true), nil
	})
	reg, _ := newTestRegistry(plugin.WithResolver(src))
	require.NoError(t, reg.Load(ctx, "alpha"))

	fail = true
	assert.False(t, reg.Reload(ctx, "alpha"))
	_, ok := reg.Get("alpha")
	assert.False(t, ok)
}

func TestRegistry_ReloadOfAddedPluginUsesName(t *testing.T) {
	ctx := context.Background()
	p := newFake("alpha", "msg", true)
	reg, _ := newTestRegistry(plugin.WithResolver(staticSource(map[string]*fakePlugin{"alpha": p}, "alpha")))
	require.NoError(t, reg.Add(ctx, p))

	assert.True(t, reg.Reload(ctx, "alpha"))
}

func TestRegistry_List(t *testing.T) {
	ctx := context.Background()
	plugins := map[string]*fakePlugin{
		"alpha-src": newFake("alpha", "msg", true),
		"beta":      newFake("beta", "msg", false),
		"gamma":     newFake("gamma", "join", true),
	}
	src := staticSource(plugins, "alpha-src", "beta", "gamma")
	reg, _ := newTestRegistry(plugin.WithResolver(src), plugin.WithDiscoverer(src))

	require.NoError(t, reg.Load(ctx, "alpha-src"))
	require.NoError(t, reg.Load(ctx, "beta"))
	require.NoError(t, reg.Add(ctx, newFake("direct", "msg", true)))

	listing, err := reg.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []plugin.ListEntry{
		{Name: "alpha", Enabled: true},
		{Name: "beta", Enabled: false},
		{Name: "direct", Enabled: true},
	}, listing.Loaded)
	assert.Equal(t, []string{"gamma"}, listing.Unloaded)
}

type failingDiscoverer struct{}

func (failingDiscoverer) Discover(context.Context) ([]string, error) {
	return nil, errors.New("disk on fire")
}

func TestRegistry_ListDiscoveryError(t *testing.T) {
	reg, _ := newTestRegistry(plugin.WithDiscoverer(failingDiscoverer{}))

	_, err := reg.List(context.Background())
	errutil.AssertErrorCode(t, err, plugin.CodeResolveFailed)
	require.Error(t, reg.LoadAll(context.Background()))
}

func TestRegistry_LoadAllSkipsFailures(t *testing.T) {
	ctx := context.Background()
	src := plugin.NewStaticResolver()
	src.Register("good", func(context.Context) (plugin.Plugin, error) { return newFake("good", "msg", true), nil })
	src.Register("bad", func(context.Context) (plugin.Plugin, error) { return nil, errors.New("broken") })
	src.Register("also-good", func(context.Context) (plugin.Plugin, error) { return newFake("also-good", "join", true), nil })
	reg, _ := newTestRegistry(plugin.WithResolver(src), plugin.WithDiscoverer(src))

	require.NoError(t, reg.LoadAll(ctx))
	assert.Equal(t, []string{"good", "also-good"}, reg.Names())
	assert.Equal(t, []string{"msg", "join"}, reg.Events())
}

func TestRegistry_CommandIndex(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry()
	var winner string
	handler := func(name string) plugin.CommandHandler {
		return func(context.Context, plugin.Host, ...string) error {
			winner = name
			return nil
		}
	}

	require.NoError(t, reg.Add(ctx, newFake("first", "msg", true).withCommand("roll", handler("first"))))
	require.NoError(t, reg.Add(ctx, newFake("second", "msg", false).
		withCommand("roll", handler("second")).
		withCommand("flip", handler("second"))))

	cmd, ok := reg.GetCommand("roll")
	require.True(t, ok)
	require.NoError(t, cmd.Handler(ctx, nopHost{}))
	assert.Equal(t, "first", winner)

	cmd, ok = reg.GetCommand("flip")
	require.True(t, ok, "disabled plugins still expose commands")
	assert.Equal(t, "second", cmd.Plugin)

	_, ok = reg.GetCommand("missing")
	assert.False(t, ok)

	var names []string
	for _, c := range reg.Commands() {
		names = append(names, c.Plugin+"/"+c.Name)
	}
	assert.Equal(t, []string{"first/roll", "second/roll", "second/flip"}, names)

	reg.Unload("first")
	cmd, ok = reg.GetCommand("roll")
	require.True(t, ok)
	assert.Equal(t, "second", cmd.Plugin)
}
