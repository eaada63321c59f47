// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/plugbus/pkg/errutil"
)

// entry pins a descriptor to its insertion sequence. Replacing a descriptor
// under the same name keeps the sequence, so iteration order is stable.
type entry struct {
	seq  uint64
	desc *Descriptor
}

// Registry owns loaded plugins and their event bindings.
//
// Registry is safe for concurrent use. Its lock is never held while a plugin
// handler or constructor runs, so handlers may call back into the registry.
type Registry struct {
	bus            Subscriber
	host           Host
	resolver       Resolver
	discoverer     Discoverer
	handlerTimeout time.Duration
	logger         *slog.Logger

	// subMu serializes first-time subscription so that every add of an
	// event returns only after its router is on the bus.
	subMu sync.Mutex

	mu         sync.RWMutex
	entries    map[string]*entry
	order      []*entry // ascending seq
	nextSeq    uint64
	events     []string
	subscribed map[string]struct{}
}

// Option configures a Registry.
type Option func(*Registry)

// WithResolver sets the module-loading collaborator used by Load.
func WithResolver(r Resolver) Option {
	return func(reg *Registry) {
		reg.resolver = r
	}
}

// WithDiscoverer sets the discovery collaborator used by LoadAll and List.
func WithDiscoverer(d Discoverer) Option {
	return func(reg *Registry) {
		reg.discoverer = d
	}
}

// WithHandlerTimeout bounds each plugin handler invocation. Zero disables the bound.
func WithHandlerTimeout(d time.Duration) Option {
	return func(reg *Registry) {
		reg.handlerTimeout = d
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(reg *Registry) {
		reg.logger = l
	}
}

// NewRegistry creates a registry that subscribes routers on bus and hands
// host to plugin handlers.
func NewRegistry(bus Subscriber, host Host, opts ...Option) *Registry {
	r := &Registry{
		bus:        bus,
		host:       host,
		entries:    make(map[string]*entry),
		subscribed: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// LoadAll loads every discoverable source. Individual failures are logged
// and skipped; only a discovery failure is returned.
func (r *Registry) LoadAll(ctx context.Context) error {
	r.logger.Info("Loading plugins...")

	if r.discoverer == nil {
		return nil
	}
	sources, err := r.discoverer.Discover(ctx)
	if err != nil {
		return oops.Code(CodeResolveFailed).In("plugin").Hint("plugin discovery failed").Wrap(err)
	}

	loaded := 0
	for _, source := range sources {
		if err := r.Load(ctx, source); err != nil {
			continue
		}
		loaded++
	}

	r.logger.Info("plugins loaded", "loaded", loaded, "discovered", len(sources))
	return nil
}

// Load resolves sourceID, instantiates the plugin, lets it register its
// commands and adds it to the registry. On failure nothing is registered
// and the returned error is a *LoadError.
func (r *Registry) Load(ctx context.Context, sourceID string) error {
	d, lerr := r.build(ctx, sourceID)
	if lerr != nil {
		recordLoad(StatusError)
		errutil.LogError(r.logger, "unable to load plugin", lerr.Cause, "source", sourceID)
		return lerr
	}

	r.add(d)
	recordLoad(StatusSuccess)
	r.logger.Info("plugin loaded",
		"plugin", d.Name,
		"source", sourceID,
		"event", d.Event,
		"enabled", d.Enabled,
		"commands", len(d.Commands))
	return nil
}

func (r *Registry) build(ctx context.Context, sourceID string) (*Descriptor, *LoadError) {
	if r.resolver == nil {
		return nil, newLoadError(sourceID, "resolve", oops.Code(CodeResolveFailed).New("no resolver configured"))
	}

	ctor, err := r.resolver.Resolve(ctx, sourceID)
	if err != nil {
		return nil, newLoadError(sourceID, "resolve", err)
	}
	if ctor == nil {
		return nil, newLoadError(sourceID, "resolve", oops.Code(CodeResolveFailed).New("resolver returned no constructor"))
	}

	p, err := construct(ctx, ctor)
	if err != nil {
		return nil, newLoadError(sourceID, "instantiate", err)
	}

	d, err := describe(ctx, p, sourceID)
	if err != nil {
		return nil, newLoadError(sourceID, "register", err)
	}
	return d, nil
}

// construct runs ctor, converting a panic into an error.
func construct(ctx context.Context, ctor Constructor) (p Plugin, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = oops.Code(CodeInvalidPlugin).With("panic", rec).Errorf("constructor panicked: %v", rec)
		}
	}()
	return ctor(ctx)
}

// Add validates p and inserts it under its own name as source identifier.
// A previous descriptor with the same name is replaced.
func (r *Registry) Add(ctx context.Context, p Plugin) error {
	d, err := describe(ctx, p, "")
	if err != nil {
		return err
	}
	r.add(d)
	r.logger.Info("plugin loaded", "plugin", d.Name, "event", d.Event, "enabled", d.Enabled)
	return nil
}

// add stores d and, for an event seen for the first time, subscribes one
// router on the bus before returning.
func (r *Registry) add(d *Descriptor) {
	r.subMu.Lock()
	defer r.subMu.Unlock()

	r.mu.Lock()
	if e, ok := r.entries[d.Name]; ok {
		e.desc = d
	} else {
		r.nextSeq++
		e := &entry{seq: r.nextSeq, desc: d}
		r.entries[d.Name] = e
		r.order = append(r.order, e)
	}
	_, known := r.subscribed[d.Event]
	PluginsRegistered.Set(float64(len(r.entries)))
	r.mu.Unlock()

	if known {
		return
	}
	r.bus.Subscribe(d.Event, newRouter(r, d.Event).dispatch)

	r.mu.Lock()
	r.subscribed[d.Event] = struct{}{}
	r.events = append(r.events, d.Event)
	r.mu.Unlock()
	r.logger.Debug("subscribed event router", "event", d.Event)
}

// Unload removes the named plugin. It reports false when nothing was registered
// under name. The event subscription is left in place.
func (r *Registry) Unload(name string) bool {
	r.mu.Lock()
	e, ok := r.entries[name]
	if ok {
		delete(r.entries, name)
		i := r.indexOf(e.seq)
		r.order = append(r.order[:i], r.order[i+1:]...)
		PluginsRegistered.Set(float64(len(r.entries)))
	}
	r.mu.Unlock()

	if ok {
		r.logger.Info("plugin unloaded", "plugin", name)
	}
	return ok
}

// Reload unloads name and loads it again from the source it was originally
// loaded from. It reports true only when both steps succeed.
func (r *Registry) Reload(ctx context.Context, name string) bool {
	r.mu.RLock()
	e, ok := r.entries[name]
	source := name
	if ok {
		source = e.desc.Source
	}
	r.mu.RUnlock()

	if !r.Unload(name) {
		return false
	}
	return r.Load(ctx, source) == nil
}

// Enable turns dispatch on for name. It reports false for unknown names.
func (r *Registry) Enable(name string) bool {
	return r.setEnabled(name, true)
}

// Disable turns dispatch off for name. It reports false for unknown names.
func (r *Registry) Disable(name string) bool {
	return r.setEnabled(name, false)
}

func (r *Registry) setEnabled(name string, enabled bool) bool {
	r.mu.Lock()
	e, ok := r.entries[name]
	if ok {
		e.desc.Enabled = enabled
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	if enabled {
		r.logger.Info("plugin enabled", "plugin", name)
	} else {
		r.logger.Info("plugin disabled", "plugin", name)
	}
	return true
}

// IsLoaded reports whether name is registered and enabled. A registered but
// disabled plugin reports false.
func (r *Registry) IsLoaded(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[name]
	return ok && e.desc.Enabled
}

// Info is a snapshot of a descriptor's public fields.
type Info struct {
	Description string `json:"description"`
	Enabled     bool   `json:"enabled"`
	Loaded      bool   `json:"loaded"`
	Event       string `json:"event"`
}

// Info describes name. Loaded is always true for a registered plugin,
// whatever its enabled flag. Unknown names yield a NOT_FOUND error.
func (r *Registry) Info(name string) (Info, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[name]
	if !ok {
		return Info{}, ErrNotFound(name)
	}
	return Info{
		Description: e.desc.Info,
		Enabled:     e.desc.Enabled,
		Loaded:      true,
		Event:       e.desc.Event,
	}, nil
}

// ListEntry is one registered plugin in a Listing.
type ListEntry struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

// Listing splits known plugins into registered and merely discoverable ones.
type Listing struct {
	Loaded   []ListEntry `json:"loaded"`
	Unloaded []string    `json:"unloaded"`
}

// List returns registered plugins in insertion order and discoverable
// sources with no registered descriptor in discovery order. A source counts
// as registered when a descriptor carries its name or was loaded from it.
func (r *Registry) List(ctx context.Context) (Listing, error) {
	var sources []string
	if r.discoverer != nil {
		var err error
		sources, err = r.discoverer.Discover(ctx)
		if err != nil {
			return Listing{}, oops.Code(CodeResolveFailed).In("plugin").Hint("plugin discovery failed").Wrap(err)
		}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	listing := Listing{
		Loaded:   make([]ListEntry, 0, len(r.order)),
		Unloaded: []string{},
	}
	registered := make(map[string]struct{}, len(r.order)*2)
	for _, e := range r.order {
		listing.Loaded = append(listing.Loaded, ListEntry{Name: e.desc.Name, Enabled: e.desc.Enabled})
		registered[e.desc.Name] = struct{}{}
		registered[e.desc.Source] = struct{}{}
	}
	for _, s := range sources {
		if _, ok := registered[s]; !ok {
			listing.Unloaded = append(listing.Unloaded, s)
		}
	}
	return listing, nil
}

// Get returns a copy of the named descriptor.
func (r *Registry) Get(name string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[name]
	if !ok {
		return Descriptor{}, false
	}
	d := *e.desc
	d.Commands = append([]Command(nil), e.desc.Commands...)
	return d, true
}

// Names returns registered plugin names in insertion order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.order))
	for _, e := range r.order {
		names = append(names, e.desc.Name)
	}
	return names
}

// Events returns every event a router has been subscribed for, in
// subscription order. Events stay listed after their last plugin unloads.
func (r *Registry) Events() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]string(nil), r.events...)
}

// next returns the first enabled descriptor bound to event whose sequence
// is greater than after. It reads the live registry, so changes made by a
// handler are seen by the remainder of an in-flight dispatch.
func (r *Registry) next(event string, after uint64) (*Descriptor, uint64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := sort.Search(len(r.order), func(i int) bool { return r.order[i].seq > after }); i < len(r.order); i++ {
		e := r.order[i]
		if e.desc.Event == event && e.desc.Enabled {
			return e.desc, e.seq, true
		}
	}
	return nil, 0, false
}

// indexOf locates seq in r.order. Callers hold r.mu and know seq is present.
func (r *Registry) indexOf(seq uint64) int {
	return sort.Search(len(r.order), func(i int) bool { return r.order[i].seq >= seq })
}
