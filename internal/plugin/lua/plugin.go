// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package lua

import (
	"context"

	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"

	"github.com/holomush/plugbus/internal/plugin"
	"github.com/holomush/plugbus/internal/plugin/hostfunc"
)

var _ plugin.Plugin = (*luaPlugin)(nil)

// luaPlugin adapts a compiled Lua entry script to plugin.Plugin.
type luaPlugin struct {
	manifest *plugin.Manifest
	proto    *lua.FunctionProto
	factory  *StateFactory
	funcs    *hostfunc.Functions
}

func (p *luaPlugin) Name() string { return p.manifest.Name }

func (p *luaPlugin) Info() string { return p.manifest.Info }

func (p *luaPlugin) Conf() plugin.Conf {
	return plugin.Conf{Event: p.manifest.Event, Enabled: p.manifest.IsEnabled()}
}

func (p *luaPlugin) RegisterCommands(_ context.Context, set *plugin.CommandSet) error {
	for _, c := range p.manifest.Commands {
		handler := c.Handler
		err := set.Add(c.Name, c.Help, func(ctx context.Context, host plugin.Host, args ...string) error {
			values := make([]any, len(args))
			for i, a := range args {
				values[i] = a
			}
			return p.call(ctx, host, handler, values)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Run calls the script's run function with the event arguments.
func (p *luaPlugin) Run(ctx context.Context, host plugin.Host, args ...any) error {
	return p.call(ctx, host, RunFunction, args)
}

// call executes fn in a fresh state. State is not carried between calls.
func (p *luaPlugin) call(ctx context.Context, host plugin.Host, fn string, args []any) error {
	L, err := p.factory.NewState(ctx)
	if err != nil {
		return oops.Code(plugin.CodeHandlerFailed).In("lua").With("plugin", p.Name()).Wrap(err)
	}
	defer L.Close()

	p.funcs.Register(L, p.Name(), host)
	if err := execute(L, p.proto); err != nil {
		return oops.Code(plugin.CodeHandlerFailed).In("lua").With("plugin", p.Name()).Wrapf(err, "entry script failed")
	}

	callee := L.GetGlobal(fn)
	if callee.Type() != lua.LTFunction {
		return oops.Code(plugin.CodeHandlerFailed).
			In("lua").
			With("plugin", p.Name()).
			With("function", fn).
			Errorf("function %s not defined", fn)
	}

	luaArgs := make([]lua.LValue, len(args))
	for i, a := range args {
		luaArgs[i] = hostfunc.ToLua(L, a)
	}
	if err := L.CallByParam(lua.P{Fn: callee, NRet: 0, Protect: true}, luaArgs...); err != nil {
		return oops.Code(plugin.CodeHandlerFailed).
			In("lua").
			With("plugin", p.Name()).
			With("function", fn).
			Wrap(err)
	}
	return nil
}
