// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package console runs the interactive host console: each input line fires
// an event, runs a plugin command or drives a registry operation.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/samber/oops"

	"github.com/holomush/plugbus/internal/eventline"
	"github.com/holomush/plugbus/internal/plugin"
	"github.com/holomush/plugbus/pkg/errutil"
)

// CodeUnknownCommand is reported for !commands no plugin declares.
const CodeUnknownCommand = "UNKNOWN_COMMAND"

// Line kinds and outcomes reported to the observer.
const (
	KindEvent   = "event"
	KindCommand = "command"
	KindAdmin   = "admin"
	KindInvalid = "invalid"

	StatusOK    = "ok"
	StatusError = "error"
)

// Publisher fires events on the bus.
type Publisher interface {
	Publish(ctx context.Context, event string, args ...any) error
}

// Queue delivers the events plugins deferred while a line ran.
type Queue interface {
	Drain(ctx context.Context) int
}

// Observer is told the kind and outcome of every executed line.
type Observer func(kind, status string)

// Console executes console lines against a registry and a bus.
type Console struct {
	registry *plugin.Registry
	bus      Publisher
	queue    Queue
	host     plugin.Host
	out      io.Writer
	observe  Observer
	logger   *slog.Logger
}

// Option configures a Console.
type Option func(*Console)

// WithQueue drains q after every line, so deferred events run on the
// console goroutine before the next line is read.
func WithQueue(q Queue) Option {
	return func(c *Console) {
		c.queue = q
	}
}

// WithObserver installs an observer, typically a metrics counter.
func WithObserver(o Observer) Option {
	return func(c *Console) {
		c.observe = o
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Console) {
		c.logger = l
	}
}

// New creates a console. Events are fired through bus; commands receive host.
func New(registry *plugin.Registry, bus Publisher, host plugin.Host, out io.Writer, opts ...Option) *Console {
	c := &Console{
		registry: registry,
		bus:      bus,
		host:     host,
		out:      out,
		observe:  func(string, string) {},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Run executes lines from r until EOF or ctx is cancelled. Failing lines are
// reported on the output and do not stop the loop. Blank lines are ignored.
func (c *Console) Run(ctx context.Context, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil
		}
		if err := c.Exec(ctx, scanner.Text()); err != nil {
			if hasCode(err, eventline.CodeEmptyLine) {
				continue
			}
			c.printf("error: %v\n", err)
			errutil.LogWarn(c.logger, "console line failed", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return oops.In("console").Wrapf(err, "read console input")
	}
	return nil
}

// Exec parses and executes a single line.
func (c *Console) Exec(ctx context.Context, text string) error {
	line, err := eventline.Parse(text)
	if err != nil {
		if !hasCode(err, eventline.CodeEmptyLine) {
			c.observe(KindInvalid, StatusError)
		}
		return err
	}

	kind := KindEvent
	switch {
	case line.Command != nil:
		kind = KindCommand
		err = c.command(ctx, line.Command)
	case line.Admin != nil:
		kind = KindAdmin
		err = c.admin(ctx, line.Admin)
	default:
		err = c.bus.Publish(ctx, line.Event.Name, line.Event.Values()...)
	}

	if c.queue != nil {
		c.queue.Drain(ctx)
	}

	status := StatusOK
	if err != nil {
		status = StatusError
	}
	c.observe(kind, status)
	return err
}

func (c *Console) command(ctx context.Context, cl *eventline.CommandLine) error {
	cmd, ok := c.registry.GetCommand(cl.Name)
	if !ok {
		return oops.Code(CodeUnknownCommand).
			In("console").
			With("command", cl.Name).
			Errorf("unknown command: %s", cl.Name)
	}
	return cmd.Handler(ctx, c.host, cl.Strings()...)
}

func (c *Console) admin(ctx context.Context, al *eventline.AdminLine) error {
	switch al.Op {
	case eventline.OpLoad:
		if err := c.registry.Load(ctx, al.Target); err != nil {
			return err
		}
		c.printf("%s loaded\n", al.Target)
	case eventline.OpUnload:
		c.report(al.Target, "unloaded", c.registry.Unload(al.Target))
	case eventline.OpReload:
		c.report(al.Target, "reloaded", c.registry.Reload(ctx, al.Target))
	case eventline.OpEnable:
		c.report(al.Target, "enabled", c.registry.Enable(al.Target))
	case eventline.OpDisable:
		c.report(al.Target, "disabled", c.registry.Disable(al.Target))
	case eventline.OpInfo:
		info, err := c.registry.Info(al.Target)
		if err != nil {
			return err
		}
		c.printf("%s", RenderInfo(info))
	case eventline.OpList:
		listing, err := c.registry.List(ctx)
		if err != nil {
			return err
		}
		c.printf("%s", RenderListing(listing))
	}
	return nil
}

// report prints the outcome of a boolean registry operation.
func (c *Console) report(name, verb string, ok bool) {
	if ok {
		c.printf("%s %s\n", name, verb)
		return
	}
	c.printf("%s: %s\n", name, plugin.NotFoundMessage)
}

func (c *Console) printf(format string, args ...any) {
	//nolint:errcheck // console output is best effort
	fmt.Fprintf(c.out, format, args...)
}

func hasCode(err error, code string) bool {
	oopsErr, ok := oops.AsOops(err)
	return ok && oopsErr.Code() == code
}
