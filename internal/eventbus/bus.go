// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package eventbus provides the named-event publish/subscribe bus plugins
// are dispatched from.
package eventbus

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/samber/oops"

	"github.com/holomush/plugbus/pkg/errutil"
)

// CodeQueueFull is reported when Enqueue finds the queue at capacity.
const CodeQueueFull = "QUEUE_FULL"

// DefaultQueueSize is the queue capacity used when none is configured.
const DefaultQueueSize = 100

// Handler receives the arguments of one event occurrence.
type Handler func(ctx context.Context, args ...any) error

// Event is one queued occurrence of a named event.
type Event struct {
	Name string
	Args []any
}

// Bus delivers named events to subscribed handlers. Publish delivers
// synchronously on the caller's goroutine; Enqueue defers delivery to the
// next Drain. A host that publishes and drains from one goroutine never runs
// two handlers at once.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string][]Handler
	order  []string
	queue  chan Event
	logger *slog.Logger
}

// Option configures a Bus.
type Option func(*Bus)

// WithQueueSize sets the capacity of the deferred event queue.
func WithQueueSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.queue = make(chan Event, n)
		}
	}
}

// WithLogger sets the logger used by Drain. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(b *Bus) {
		b.logger = l
	}
}

// New creates an empty bus.
func New(opts ...Option) *Bus {
	b := &Bus{subs: make(map[string][]Handler)}
	for _, opt := range opts {
		opt(b)
	}
	if b.queue == nil {
		b.queue = make(chan Event, DefaultQueueSize)
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	return b
}

// Subscribe appends h to the handlers of event. Every call adds a
// subscription; the bus does not deduplicate.
func (b *Bus) Subscribe(event string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[event]; !ok {
		b.order = append(b.order, event)
	}
	b.subs[event] = append(b.subs[event], h)
}

// Subscriptions returns the number of handlers subscribed to event.
func (b *Bus) Subscriptions(event string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[event])
}

// Events returns every event with at least one subscription, in the order
// the first subscription was made.
func (b *Bus) Events() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]string(nil), b.order...)
}

// Publish calls every handler of event in subscription order and returns
// their errors joined. Handlers run without the bus lock held, so they may
// publish or subscribe themselves.
func (b *Bus) Publish(ctx context.Context, event string, args ...any) error {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.subs[event]...)
	b.mu.RUnlock()

	var errs []error
	for _, h := range handlers {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := h(ctx, args...); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Enqueue queues event for delivery by Drain. It never blocks: a full queue
// yields a QUEUE_FULL error and the event is dropped.
func (b *Bus) Enqueue(ctx context.Context, event string, args ...any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case b.queue <- Event{Name: event, Args: args}:
		return nil
	default:
		return oops.Code(CodeQueueFull).
			In("eventbus").
			With("event", event).
			With("capacity", cap(b.queue)).
			Errorf("event queue full")
	}
}

// Drain delivers queued events on the caller's goroutine until the queue is
// empty, including events queued by the handlers it runs. It returns how
// many events were delivered. Delivery errors are logged, not returned.
func (b *Bus) Drain(ctx context.Context) int {
	delivered := 0
	for ctx.Err() == nil {
		select {
		case ev := <-b.queue:
			if err := b.Publish(ctx, ev.Name, ev.Args...); err != nil && ctx.Err() == nil {
				errutil.LogWarn(b.logger, "event delivery failed", err, "event", ev.Name)
			}
			delivered++
		default:
			return delivered
		}
	}
	return delivered
}

// Pending reports how many events are queued.
func (b *Bus) Pending() int {
	return len(b.queue)
}

// Deferred returns a publisher whose Publish enqueues instead of delivering
// inline. Plugins receive it as their host so an event they raise is
// delivered after the current dispatch completes.
func (b *Bus) Deferred() *Deferred {
	return &Deferred{bus: b}
}

// Deferred publishes through a bus queue.
type Deferred struct {
	bus *Bus
}

// Publish enqueues event on the underlying bus.
func (d *Deferred) Publish(ctx context.Context, event string, args ...any) error {
	return d.bus.Enqueue(ctx, event, args...)
}
