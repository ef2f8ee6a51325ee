// Copyright (C) 2024 Yota Hamada
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/scriptyard/scriptyard/internal/config"
	"github.com/scriptyard/scriptyard/internal/web"
)

// serverCmd starts the Trigger Scheduler, Run Queue, Execution Engine, and
// HTTP surface together in one process, mirroring the teacher's start_all
// command: the scheduler runs in the background while the HTTP server
// blocks in the foreground until a shutdown signal arrives.
func serverCmd() *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the HTTP API, trigger scheduler, and execution engine",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			go listenSignals(ctx, cancel)

			c, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer c.shutdown()

			if watch && cfgFile != "" {
				w, err := config.NewWatcher(cfgFile, c.log, func(overlay map[string]any) {
					c.log.Info("config file changed; restart to apply", "keys", len(overlay))
				})
				if err != nil {
					return err
				}
				if err := w.Start(); err != nil {
					return err
				}
				defer w.Stop()
			}

			if err := c.scheduler.Start(ctx); err != nil {
				return err
			}
			defer c.scheduler.Stop()

			srv := web.New(c.cfg, web.Deps{
				Store:     c.store,
				Engine:    c.engine,
				Env:       c.env,
				Queue:     c.queue,
				Scheduler: c.scheduler,
				Bus:       c.bus,
				Tokens:    c.tokens,
			}, c.log)

			c.log.Info("scriptyard server starting", "host", c.cfg.HTTPHost, "port", c.cfg.HTTPPort)
			return srv.Serve(ctx)
		},
	}
	cmd.Flags().BoolVar(&watch, "watch-config", false, "hot-reload the config file on change (logs only; requires --config)")
	return cmd
}
