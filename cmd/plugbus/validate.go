// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"os"
	"path/filepath"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/plugbus/internal/plugin"
	pluginlua "github.com/holomush/plugbus/internal/plugin/lua"
)

// NewValidateCmd creates the validate subcommand.
func NewValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <dir>",
		Short: "Check a Lua plugin source without loading it",
		Long: `Validate a plugin source directory: the manifest must match the
plugin schema, and the entry script must compile and define every
function the manifest refers to.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateSource(cmd, args[0])
		},
	}
}

func validateSource(cmd *cobra.Command, dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return oops.In("validate").With("dir", dir).Wrap(err)
	}

	if _, err := os.Stat(filepath.Join(abs, plugin.ManifestFile)); err != nil {
		return oops.Code(plugin.CodeInvalidPlugin).In("validate").With("dir", dir).Wrapf(err, "read manifest")
	}

	resolver := pluginlua.NewResolver(filepath.Dir(abs), pluginlua.WithHostVersion(version))
	ctor, err := resolver.Resolve(contextOf(cmd), filepath.Base(abs))
	if err != nil {
		return err
	}
	p, err := ctor(contextOf(cmd))
	if err != nil {
		return err
	}

	set := plugin.NewCommandSet(p.Name())
	if err := p.RegisterCommands(contextOf(cmd), set); err != nil {
		return err
	}
	cmd.Printf("%s: ok (event %s, %d commands)\n", p.Name(), p.Conf().Event, set.Len())
	return nil
}
