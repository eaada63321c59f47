// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/holomush/plugbus/internal/console"
)

// NewListCmd creates the list subcommand.
func NewListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List loaded and discoverable plugins",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := loadedBroker(cmd)
			if err != nil {
				return err
			}
			listing, err := b.registry.List(contextOf(cmd))
			if err != nil {
				return err
			}
			cmd.Print(console.RenderListing(listing))
			return nil
		},
	}
}

// NewInfoCmd creates the info subcommand.
func NewInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <name>",
		Short: "Describe a loaded plugin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := loadedBroker(cmd)
			if err != nil {
				return err
			}
			info, err := b.registry.Info(args[0])
			if err != nil {
				return err
			}
			cmd.Print(console.RenderInfo(info))
			return nil
		},
	}
}

func loadedBroker(cmd *cobra.Command) (*broker, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	b, err := newBroker(cfg)
	if err != nil {
		return nil, err
	}
	if err := b.loadAll(contextOf(cmd), cfg); err != nil {
		return nil, err
	}
	return b, nil
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
