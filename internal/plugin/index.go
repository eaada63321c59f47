// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin

// GetCommand finds cmd among registered plugins. When several plugins
// declare the same command, the earliest registered one wins.
func (r *Registry) GetCommand(cmd string) (Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, e := range r.order {
		for _, c := range e.desc.Commands {
			if c.Name == cmd {
				return c, true
			}
		}
	}
	return Command{}, false
}

// Commands flattens every plugin's commands in registration order.
func (r *Registry) Commands() []Command {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Command
	for _, e := range r.order {
		out = append(out, e.desc.Commands...)
	}
	return out
}
