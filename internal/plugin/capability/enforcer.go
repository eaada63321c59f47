// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package capability decides which host functions a Lua plugin may call.
//
// Grants are gobwas/glob patterns with '.' as the segment separator:
//   - '*' matches a single segment ("events.emit.*" matches "events.emit.join")
//   - '**' matches any number of segments ("events.**" matches "events.emit.join")
//
// Capabilities checked by the host:
//   - events.emit.<event>  publish <event> on the bus
package capability

import (
	"fmt"
	"sync"

	"github.com/gobwas/glob"
)

// EmitCapability returns the capability required to publish event.
func EmitCapability(event string) string {
	return "events.emit." + event
}

type grant struct {
	pattern string
	glob    glob.Glob
}

// Enforcer checks plugin capabilities at runtime.
// The zero value is ready to use and denies everything.
type Enforcer struct {
	mu     sync.RWMutex
	grants map[string][]grant
}

// NewEnforcer creates a capability enforcer.
func NewEnforcer() *Enforcer {
	return &Enforcer{grants: make(map[string][]grant)}
}

// SetGrants replaces the capabilities of plugin. Every pattern is compiled
// before any state changes, so an invalid pattern leaves the enforcer untouched.
func (e *Enforcer) SetGrants(plugin string, patterns []string) error {
	if plugin == "" {
		return fmt.Errorf("plugin name cannot be empty")
	}

	compiled := make([]grant, len(patterns))
	for i, p := range patterns {
		if p == "" {
			return fmt.Errorf("capability %d: empty capability pattern", i)
		}
		g, err := glob.Compile(p, '.')
		if err != nil {
			return fmt.Errorf("capability %d (%q): %w", i, p, err)
		}
		compiled[i] = grant{pattern: p, glob: g}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.grants == nil {
		e.grants = make(map[string][]grant)
	}
	e.grants[plugin] = compiled
	return nil
}

// Grants returns a copy of the patterns granted to plugin, or nil.
func (e *Enforcer) Grants(plugin string) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	gs, ok := e.grants[plugin]
	if !ok {
		return nil
	}
	out := make([]string, len(gs))
	for i, g := range gs {
		out[i] = g.pattern
	}
	return out
}

// Check reports whether plugin holds capability. Unknown plugins and empty
// capabilities are denied.
func (e *Enforcer) Check(plugin, capability string) bool {
	if capability == "" {
		return false
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, g := range e.grants[plugin] {
		if g.glob.Match(capability) {
			return true
		}
	}
	return false
}
