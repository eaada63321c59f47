// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package integration

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/holomush/plugbus/internal/builtin"
	"github.com/holomush/plugbus/internal/console"
	"github.com/holomush/plugbus/internal/eventbus"
	"github.com/holomush/plugbus/internal/plugin"
	pluginlua "github.com/holomush/plugbus/internal/plugin/lua"
)

// pluginsDir is the repository's example plugins directory.
const pluginsDir = "../../plugins"

// received collects events observed on the bus.
type received struct {
	mu     sync.Mutex
	events map[string][][]any
}

func (r *received) watch(bus *eventbus.Bus, events ...string) {
	for _, ev := range events {
		bus.Subscribe(ev, func(_ context.Context, args ...any) error {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.events[ev] = append(r.events[ev], args)
			return nil
		})
	}
}

func (r *received) get(event string) [][]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]any(nil), r.events[event]...)
}

// brokerEnv is a bus with a registry over a plugin directory.
type brokerEnv struct {
	ctx      context.Context
	cancel   context.CancelFunc
	bus      *eventbus.Bus
	registry *plugin.Registry
	seen     *received
}

func startBroker(dir string) *brokerEnv {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	bus := eventbus.New()

	disc, err := pluginlua.NewDiscoverer(dir, nil, nil)
	Expect(err).NotTo(HaveOccurred())

	builtins := plugin.NewStaticResolver()
	builtin.Register(builtins)

	env := &brokerEnv{
		ctx:    ctx,
		cancel: cancel,
		bus:    bus,
		seen:   &received{events: make(map[string][][]any)},
	}
	env.registry = plugin.NewRegistry(bus, bus.Deferred(),
		plugin.WithResolver(plugin.ChainResolver{
			pluginlua.NewResolver(dir, pluginlua.WithHostVersion("1.0.0")),
			builtins,
		}),
		plugin.WithDiscoverer(plugin.ChainDiscoverer{disc, builtins}),
		plugin.WithHandlerTimeout(5*time.Second),
	)
	env.seen.watch(bus, "echo", "greeted", "rolled", "pong")
	return env
}

// publish fires event and then delivers whatever the handlers deferred.
func (e *brokerEnv) publish(event string, args ...any) error {
	err := e.bus.Publish(e.ctx, event, args...)
	e.bus.Drain(e.ctx)
	return err
}

func (e *brokerEnv) stop() {
	e.cancel()
}

var _ = Describe("Plugin broker", func() {
	var env *brokerEnv

	BeforeEach(func() {
		env = startBroker(pluginsDir)
		Expect(env.registry.LoadAll(env.ctx)).To(Succeed())
	})

	AfterEach(func() {
		env.stop()
	})

	Describe("loading the example plugins", func() {
		It("registers Lua and built-in plugins in discovery order", func() {
			Expect(env.registry.Names()).To(Equal([]string{"dice", "echo", "greeter", builtin.PingerName}))
		})

		It("subscribes exactly one router per event", func() {
			for _, ev := range []string{"roll", "say", "join", "ping"} {
				Expect(env.bus.Subscriptions(ev)).To(Equal(1), "event %s", ev)
			}
			Expect(env.registry.Events()).To(Equal([]string{"roll", "say", "join", "ping"}))
		})

		It("honors the enabled flag from the manifest", func() {
			Expect(env.registry.IsLoaded("dice")).To(BeFalse())
			info, err := env.registry.Info("dice")
			Expect(err).NotTo(HaveOccurred())
			Expect(info.Loaded).To(BeTrue())
			Expect(info.Enabled).To(BeFalse())
		})
	})

	Describe("dispatching events", func() {
		It("runs a Lua handler and delivers what it publishes", func() {
			Expect(env.publish("say", "hello", "world")).To(Succeed())
			Expect(env.seen.get("echo")).To(Equal([][]any{{"hello world"}}))
		})

		It("passes event arguments to the built-in pinger", func() {
			Expect(env.publish("ping", "x", int64(2))).To(Succeed())
			Expect(env.seen.get("pong")).To(Equal([][]any{{"x", int64(2)}}))
		})

		It("skips disabled plugins until they are enabled", func() {
			Expect(env.publish("roll", "2d6")).To(Succeed())
			Expect(env.seen.get("rolled")).To(BeEmpty())

			Expect(env.registry.Enable("dice")).To(BeTrue())
			Expect(env.publish("roll", "2d6")).To(Succeed())
			Expect(env.seen.get("rolled")).To(HaveLen(1))

			got := env.seen.get("rolled")[0]
			Expect(got[0]).To(Equal("2d6"))
			Expect(got[1]).To(BeNumerically(">=", 2))
			Expect(got[1]).To(BeNumerically("<=", 12))
		})

		It("returns Lua runtime errors to the publisher", func() {
			Expect(env.registry.Enable("dice")).To(BeTrue())
			err := env.publish("roll", "lots")
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("NdM"))
		})
	})

	Describe("the lifecycle", func() {
		It("keeps the subscription after unload and reuses it on reload", func() {
			Expect(env.registry.Unload("echo")).To(BeTrue())
			Expect(env.registry.Unload("echo")).To(BeFalse())
			Expect(env.publish("say", "nobody")).To(Succeed())

			Expect(env.registry.Load(env.ctx, "echo")).To(Succeed())
			Expect(env.bus.Subscriptions("say")).To(Equal(1))

			Expect(env.publish("say", "back")).To(Succeed())
			Expect(env.seen.get("echo")).To(Equal([][]any{{"back"}}))
		})

		It("reloads a plugin from its changed source", func() {
			dir := GinkgoT().TempDir()
			writeEcho(dir, "first")
			local := startBroker(dir)
			defer local.stop()
			Expect(local.registry.Load(local.ctx, "echo")).To(Succeed())

			writeEcho(dir, "second")
			Expect(local.registry.Reload(local.ctx, "echo")).To(BeTrue())

			Expect(local.publish("say")).To(Succeed())
			Expect(local.seen.get("echo")).To(Equal([][]any{{"second"}}))
		})

		It("lists unloaded sources by name", func() {
			Expect(env.registry.Unload("greeter")).To(BeTrue())
			listing, err := env.registry.List(env.ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(listing.Unloaded).To(Equal([]string{"greeter"}))
		})
	})

	Describe("the console", func() {
		It("drives the registry and the command index", func() {
			out := new(bytes.Buffer)
			con := console.New(env.registry, env.bus, env.bus.Deferred(), out, console.WithQueue(env.bus))

			input := "/enable dice\n!roll 1d6\n!greet ada\n/unload ghost\n/list\n"
			Expect(con.Run(env.ctx, bytes.NewBufferString(input))).To(Succeed())

			Expect(out.String()).To(ContainSubstring("dice enabled"))
			Expect(out.String()).To(ContainSubstring("ghost: Invalid plugin name"))
			Expect(out.String()).To(ContainSubstring("✅ dice"))
			Expect(env.seen.get("greeted")).To(Equal([][]any{{"Welcome, ada!"}}))
			Expect(env.seen.get("rolled")).To(HaveLen(1))
		})
	})
})

// writeEcho writes an echo source that always publishes reply.
func writeEcho(dir, reply string) {
	root := filepath.Join(dir, "echo")
	Expect(os.MkdirAll(root, 0o750)).To(Succeed())
	manifest := "name: echo\nversion: 1.0.0\nevent: say\ncapabilities:\n  - events.emit.echo\nentry: main.lua\n"
	script := "function run() plugbus.publish(\"echo\", \"" + reply + "\") end\n"
	Expect(os.WriteFile(filepath.Join(root, plugin.ManifestFile), []byte(manifest), 0o600)).To(Succeed())
	Expect(os.WriteFile(filepath.Join(root, "main.lua"), []byte(script), 0o600)).To(Succeed())
}
