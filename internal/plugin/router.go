// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin

import (
	"context"
	"crypto/rand"
	"errors"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/holomush/plugbus/pkg/errutil"
)

var tracer = otel.Tracer("github.com/holomush/plugbus/internal/plugin")

var (
	entropy     = ulid.Monotonic(rand.Reader, 0)
	entropyLock sync.Mutex
)

func newDispatchID() ulid.ULID {
	entropyLock.Lock()
	defer entropyLock.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
}

// router is the single bus handler for one event name.
type router struct {
	registry *Registry
	event    string
}

func newRouter(r *Registry, event string) *router {
	return &router{registry: r, event: event}
}

// dispatch runs every enabled plugin bound to the router's event, one at a
// time, in registration order. A failing or panicking handler is logged and
// does not stop the remaining handlers; all failures are returned joined.
func (rt *router) dispatch(ctx context.Context, args ...any) error {
	id := newDispatchID().String()

	ctx, span := tracer.Start(ctx, "plugin.dispatch", trace.WithAttributes(
		attribute.String("plugbus.event", rt.event),
		attribute.String("plugbus.dispatch_id", id),
		attribute.Int("plugbus.args", len(args)),
	))
	defer span.End()

	Dispatches.WithLabelValues(rt.event).Inc()
	rt.registry.logger.DebugContext(ctx, "dispatching event", "event", rt.event, "dispatch_id", id)

	var (
		errs    []error
		cursor  uint64
		invoked int
	)
	for {
		d, seq, ok := rt.registry.next(rt.event, cursor)
		if !ok {
			break
		}
		cursor = seq
		invoked++

		if err := rt.invoke(ctx, id, d, args); err != nil {
			errs = append(errs, err)
		}
	}

	span.SetAttributes(attribute.Int("plugbus.invoked", invoked))
	if len(errs) == 0 {
		return nil
	}

	err := errors.Join(errs...)
	span.RecordError(err)
	span.SetStatus(codes.Error, "plugin handler failed")
	return err
}

// invoke runs a single handler, isolating its failure.
func (rt *router) invoke(ctx context.Context, dispatchID string, d *Descriptor, args []any) (err error) {
	if timeout := rt.registry.handlerTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		status := StatusSuccess
		if rec := recover(); rec != nil {
			status = StatusPanic
			err = oops.Code(CodeHandlerPanic).
				In("plugin").
				With("plugin", d.Name).
				With("event", rt.event).
				With("dispatch_id", dispatchID).
				Errorf("plugin %s panicked: %v", d.Name, rec)
		} else if err != nil {
			status = StatusError
			if errors.Is(err, context.DeadlineExceeded) {
				status = StatusTimeout
			}
			err = oops.Code(CodeHandlerFailed).
				In("plugin").
				With("plugin", d.Name).
				With("event", rt.event).
				With("dispatch_id", dispatchID).
				Wrap(err)
		}

		recordHandler(d.Name, rt.event, status, time.Since(start))
		if err != nil {
			errutil.LogWarn(rt.registry.logger, "plugin handler failed", err, "status", status)
		}
	}()

	return d.plugin.Run(ctx, rt.registry.host, args...)
}
