// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package hostfunc exposes host services to Lua plugins as the global
// "plugbus" table.
//
//	plugbus.log(level, message)        -- level: debug, info, warn, error
//	plugbus.new_request_id()           -- ULID string
//	plugbus.publish(event, ...)        -- requires events.emit.<event>
package hostfunc

import (
	"context"
	"log/slog"

	"github.com/oklog/ulid/v2"
	lua "github.com/yuin/gopher-lua"

	"github.com/holomush/plugbus/internal/plugin"
	"github.com/holomush/plugbus/internal/plugin/capability"
)

// GlobalName is the Lua global the host functions are installed under.
const GlobalName = "plugbus"

// Functions provides host functions to Lua plugins.
type Functions struct {
	enforcer *capability.Enforcer
}

// New creates host functions. Panics if enforcer is nil.
func New(enforcer *capability.Enforcer) *Functions {
	if enforcer == nil {
		panic("hostfunc.New: enforcer cannot be nil")
	}
	return &Functions{enforcer: enforcer}
}

// Register installs the host functions for pluginName into L. host may be
// nil while a plugin is being validated; publish then raises an error.
func (f *Functions) Register(L *lua.LState, pluginName string, host plugin.Host) {
	mod := L.NewTable()
	L.SetField(mod, "log", L.NewFunction(logFn(pluginName)))
	L.SetField(mod, "new_request_id", L.NewFunction(newRequestIDFn))
	L.SetField(mod, "publish", L.NewFunction(f.publishFn(pluginName, host)))
	L.SetGlobal(GlobalName, mod)
}

func logFn(pluginName string) lua.LGFunction {
	return func(L *lua.LState) int {
		level := L.CheckString(1)
		message := L.CheckString(2)

		logger := slog.Default().With("plugin", pluginName)
		ctx := L.Context()
		switch level {
		case "debug":
			logger.DebugContext(ctx, message)
		case "info":
			logger.InfoContext(ctx, message)
		case "warn":
			logger.WarnContext(ctx, message)
		case "error":
			logger.ErrorContext(ctx, message)
		default:
			L.ArgError(1, "invalid log level '"+level+"': expected debug, info, warn, or error")
		}
		return 0
	}
}

func newRequestIDFn(L *lua.LState) int {
	L.Push(lua.LString(ulid.Make().String()))
	return 1
}

func (f *Functions) publishFn(pluginName string, host plugin.Host) lua.LGFunction {
	return func(L *lua.LState) int {
		event := L.CheckString(1)
		if !f.enforcer.Check(pluginName, capability.EmitCapability(event)) {
			L.RaiseError("capability denied: %s requires %s", pluginName, capability.EmitCapability(event))
			return 0
		}
		if host == nil {
			L.RaiseError("publish is unavailable outside of event handling")
			return 0
		}

		args := make([]any, 0, L.GetTop()-1)
		for i := 2; i <= L.GetTop(); i++ {
			args = append(args, ToGo(L.Get(i)))
		}

		ctx := L.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		if err := host.Publish(ctx, event, args...); err != nil {
			L.Push(lua.LFalse)
			L.Push(lua.LString(err.Error()))
			return 2
		}
		L.Push(lua.LTrue)
		return 1
	}
}
