// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin

import (
	"context"

	"github.com/samber/oops"
)

// CommandHandler executes a plugin sub-command.
type CommandHandler func(ctx context.Context, host Host, args ...string) error

// Command is a named sub-command contributed by a plugin.
type Command struct {
	Name    string
	Help    string
	Plugin  string
	Handler CommandHandler
}

// CommandSet collects the commands a plugin registers during load.
// Names are unique within a set; order is registration order.
type CommandSet struct {
	plugin   string
	commands []Command
}

// NewCommandSet creates an empty set owned by plugin.
func NewCommandSet(plugin string) *CommandSet {
	return &CommandSet{plugin: plugin}
}

// Add registers a command. Duplicate or empty names and nil handlers are rejected.
func (s *CommandSet) Add(name, help string, handler CommandHandler) error {
	if name == "" {
		return oops.Code(CodeInvalidPlugin).
			With("plugin", s.plugin).
			Errorf("command name is empty")
	}
	if handler == nil {
		return oops.Code(CodeInvalidPlugin).
			With("plugin", s.plugin).
			With("command", name).
			Errorf("command %s has no handler", name)
	}
	if _, ok := s.Get(name); ok {
		return oops.Code(CodeInvalidPlugin).
			With("plugin", s.plugin).
			With("command", name).
			Errorf("command %s registered twice", name)
	}
	s.commands = append(s.commands, Command{Name: name, Help: help, Plugin: s.plugin, Handler: handler})
	return nil
}

// Get finds a command by name.
func (s *CommandSet) Get(name string) (Command, bool) {
	for _, c := range s.commands {
		if c.Name == name {
			return c, true
		}
	}
	return Command{}, false
}

// Len reports how many commands are registered.
func (s *CommandSet) Len() int {
	return len(s.commands)
}

// All returns a copy of the commands in registration order.
func (s *CommandSet) All() []Command {
	out := make([]Command, len(s.commands))
	copy(out, s.commands)
	return out
}
