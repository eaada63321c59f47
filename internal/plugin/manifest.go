// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin

import (
	"fmt"
	"path"
	"strings"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

// ManifestFile is the file name that marks a plugin source directory.
const ManifestFile = "plugin.yaml"

// Manifest represents a plugin.yaml file.
type Manifest struct {
	Name         string            `yaml:"name" jsonschema:"pattern=^[A-Za-z]([A-Za-z0-9_-]*[A-Za-z0-9])?$,maxLength=64"`
	Version      string            `yaml:"version"`
	Info         string            `yaml:"info,omitempty"`
	Event        string            `yaml:"event" jsonschema:"minLength=1"`
	Enabled      *bool             `yaml:"enabled,omitempty"`
	Engine       string            `yaml:"engine,omitempty"`
	Entry        string            `yaml:"entry"`
	Capabilities []string          `yaml:"capabilities,omitempty"`
	Commands     []ManifestCommand `yaml:"commands,omitempty"`
}

// ManifestCommand declares a sub-command and the Lua function that handles it.
type ManifestCommand struct {
	Name    string `yaml:"name" jsonschema:"minLength=1"`
	Help    string `yaml:"help,omitempty"`
	Handler string `yaml:"handler" jsonschema:"minLength=1"`
}

// ParseManifest parses and validates a plugin.yaml file.
func ParseManifest(data []byte) (*Manifest, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("manifest data is empty")
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}

	return &m, nil
}

// Validate checks manifest constraints.
func (m *Manifest) Validate() error {
	if err := ValidateName(m.Name); err != nil {
		return err
	}

	if m.Version == "" {
		return fmt.Errorf("version is required")
	}
	if _, err := semver.StrictNewVersion(m.Version); err != nil {
		return fmt.Errorf("version %q is not valid semver: %w", m.Version, err)
	}

	if m.Engine != "" {
		if _, err := semver.NewConstraint(m.Engine); err != nil {
			return fmt.Errorf("engine constraint %q is invalid: %w", m.Engine, err)
		}
	}

	if strings.TrimSpace(m.Event) == "" {
		return fmt.Errorf("event is required")
	}

	if m.Entry == "" {
		return fmt.Errorf("entry is required")
	}
	if path.IsAbs(m.Entry) || strings.HasPrefix(path.Clean(m.Entry), "..") {
		return fmt.Errorf("entry %q must be relative to the plugin directory", m.Entry)
	}

	seen := make(map[string]bool, len(m.Commands))
	for i, c := range m.Commands {
		if c.Name == "" {
			return fmt.Errorf("commands[%d].name is required", i)
		}
		if c.Handler == "" {
			return fmt.Errorf("commands[%d].handler is required", i)
		}
		if seen[c.Name] {
			return fmt.Errorf("command %q declared twice", c.Name)
		}
		seen[c.Name] = true
	}

	return nil
}

// IsEnabled returns the declared initial enabled flag, defaulting to true.
func (m *Manifest) IsEnabled() bool {
	return m.Enabled == nil || *m.Enabled
}

// SupportsHost reports whether hostVersion satisfies the engine constraint.
// Manifests without a constraint, and hosts without a semver version (such
// as development builds), are always compatible.
func (m *Manifest) SupportsHost(hostVersion string) (bool, error) {
	if m.Engine == "" {
		return true, nil
	}
	v, err := semver.NewVersion(hostVersion)
	if err != nil {
		return true, nil //nolint:nilerr // unversioned hosts skip the check
	}
	c, err := semver.NewConstraint(m.Engine)
	if err != nil {
		return false, fmt.Errorf("engine constraint %q is invalid: %w", m.Engine, err)
	}
	return c.Check(v), nil
}
