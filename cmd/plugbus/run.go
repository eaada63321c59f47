// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/holomush/plugbus/internal/console"
	"github.com/holomush/plugbus/internal/observability"
	"github.com/holomush/plugbus/internal/plugin"
)

// NewRunCmd creates the run subcommand.
func NewRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Load plugins and run the interactive console",
		Long: `Load every discoverable plugin, then read console lines from stdin.

  name args...     fire an event
  !command args... run a plugin command
  /op [name]       load, unload, reload, enable, disable, info or list`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBroker(cmd.Context(), cmd, cmd.InOrStdin())
		},
	}
}

func runBroker(parent context.Context, cmd *cobra.Command, in io.Reader) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	b, err := newBroker(cfg)
	if err != nil {
		return err
	}
	if err := b.loadAll(ctx, cfg); err != nil {
		return err
	}

	var opts []console.Option
	var obsServer *observability.Server
	if cfg.Metrics.Addr != "" {
		obsServer = observability.NewServer(cfg.Metrics.Addr, func() bool { return true },
			observability.WithCollectors(plugin.RegisterMetrics),
			observability.WithStatus("/plugins", func(ctx context.Context) (any, error) {
				return b.registry.List(ctx)
			}),
		)
		obsErrChan, err := obsServer.Start()
		if err != nil {
			return fmt.Errorf("failed to start observability server: %w", err)
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
		slog.Info("observability server started", "addr", obsServer.Addr())

		lines := obsServer.Metrics().ConsoleLines
		opts = append(opts, console.WithObserver(func(kind, status string) {
			lines.WithLabelValues(kind, status).Inc()
		}))
	}

	// The console goroutine is the only one that runs plugin code.
	con := b.console(cmd.OutOrStdout(), opts...)
	consoleDone := make(chan error, 1)
	go func() {
		consoleDone <- con.Run(ctx, in)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	slog.Info("plugbus ready", "plugins", len(b.registry.Names()), "events", len(b.registry.Events()))

	var runErr error
	select {
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig)
	case runErr = <-consoleDone:
		slog.Info("console input closed")
	case <-ctx.Done():
		slog.Info("context cancelled")
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			slog.Warn("failed to stop observability server", "error", err)
		}
	}

	slog.Info("shutdown complete")
	return runErr
}

// monitorServerErrors cancels ctx when errCh reports a server failure. It
// exits when an error arrives, the channel closes or ctx is done.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err)
			cancel()
		}
	case <-ctx.Done():
	}
}
