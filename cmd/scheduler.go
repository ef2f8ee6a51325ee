// Copyright (C) 2024 Yota Hamada
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"

	"github.com/spf13/cobra"
)

// schedulerCmd runs the Trigger Scheduler, Run Queue, and Execution Engine
// without the HTTP surface, for deployments that split the API server and
// the scheduling process across hosts.
func schedulerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scheduler",
		Short: "Run the trigger scheduler and execution engine without the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			go listenSignals(ctx, cancel)

			c, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer c.shutdown()

			c.log.Info("scriptyard scheduler starting")
			if err := c.scheduler.Start(ctx); err != nil {
				return err
			}
			defer c.scheduler.Stop()

			<-ctx.Done()
			return nil
		},
	}
}
