// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package builtin provides plugins compiled into the plugbus binary.
package builtin

import (
	"context"
	"strings"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/plugbus/internal/plugin"
)

// Register makes every built-in plugin loadable from s.
func Register(s *plugin.StaticResolver) {
	s.Register(PingerName, func(context.Context) (plugin.Plugin, error) {
		return NewPinger(time.Now), nil
	})
}

// PingerName is the name and source identifier of the pinger plugin.
const PingerName = "pinger"

// Pinger answers every ping event with a pong carrying the same arguments.
type Pinger struct {
	now func() time.Time
}

// NewPinger creates a pinger. now stamps the uptime command's output.
func NewPinger(now func() time.Time) *Pinger {
	return &Pinger{now: now}
}

func (p *Pinger) Name() string { return PingerName }

func (p *Pinger) Info() string { return "Replies to ping with pong" }

func (p *Pinger) Conf() plugin.Conf {
	return plugin.Conf{Event: "ping", Enabled: true}
}

func (p *Pinger) RegisterCommands(_ context.Context, set *plugin.CommandSet) error {
	started := p.now()
	if err := set.Add("ping", "Fire a ping event with the given arguments", func(ctx context.Context, host plugin.Host, args ...string) error {
		values := make([]any, len(args))
		for i, a := range args {
			values[i] = a
		}
		return host.Publish(ctx, "ping", values...)
	}); err != nil {
		return err
	}
	return set.Add("uptime", "Publish how long the pinger has been loaded", func(ctx context.Context, host plugin.Host, _ ...string) error {
		return host.Publish(ctx, "uptime", p.now().Sub(started).Round(time.Second).String())
	})
}

func (p *Pinger) Run(ctx context.Context, host plugin.Host, args ...any) error {
	if host == nil {
		return oops.Code(plugin.CodeHandlerFailed).In("builtin").With("plugin", PingerName).New("no host to reply through")
	}
	if len(args) > 0 {
		if s, ok := args[0].(string); ok && strings.EqualFold(s, "pong") {
			// Never answer our own reply.
			return nil
		}
	}
	return host.Publish(ctx, "pong", args...)
}
