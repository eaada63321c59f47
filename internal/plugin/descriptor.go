// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin

import (
	"context"
	"regexp"

	"github.com/samber/oops"
)

// maxNameLength is the maximum allowed length for plugin names.
const maxNameLength = 64

// namePattern validates plugin names: a letter, then letters, digits,
// hyphens or underscores, not ending in a hyphen or underscore.
var namePattern = regexp.MustCompile(`^[A-Za-z]([A-Za-z0-9_-]*[A-Za-z0-9])?$`)

// Descriptor is the registry's record of one loaded plugin.
// Event is fixed for the lifetime of the descriptor; Enabled is toggled by
// Registry.Enable and Registry.Disable.
type Descriptor struct {
	Name     string
	Info     string
	Event    string
	Enabled  bool
	Source   string
	Commands []Command

	plugin Plugin
}

// Plugin returns the instance backing the descriptor.
func (d *Descriptor) Plugin() Plugin {
	return d.plugin
}

// ValidateName checks the plugin name pattern.
func ValidateName(name string) error {
	if name == "" || !namePattern.MatchString(name) {
		return oops.Code(CodeInvalidPlugin).
			With("plugin", name).
			Errorf("name %q must start with a letter and contain only letters, digits, hyphens or underscores", name)
	}
	if len(name) > maxNameLength {
		return oops.Code(CodeInvalidPlugin).
			With("plugin", name).
			Errorf("name must be %d characters or less, got %d", maxNameLength, len(name))
	}
	return nil
}

// describe checks p against the plugin contract and builds its descriptor.
// Commands are registered here, so describe must run once per load.
func describe(ctx context.Context, p Plugin, source string) (*Descriptor, error) {
	if p == nil {
		return nil, oops.Code(CodeInvalidPlugin).Errorf("constructor returned a nil plugin")
	}

	name := p.Name()
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	conf := p.Conf()
	if conf.Event == "" {
		return nil, oops.Code(CodeInvalidPlugin).
			With("plugin", name).
			Errorf("plugin %s does not declare an event", name)
	}

	set := NewCommandSet(name)
	if err := p.RegisterCommands(ctx, set); err != nil {
		return nil, oops.Code(CodeInvalidPlugin).
			With("plugin", name).
			Hint("command registration failed").
			Wrap(err)
	}

	if source == "" {
		source = name
	}

	return &Descriptor{
		Name:     name,
		Info:     p.Info(),
		Event:    conf.Event,
		Enabled:  conf.Enabled,
		Source:   source,
		Commands: set.All(),
		plugin:   p,
	}, nil
}
