// Copyright (C) 2024 Yota Hamada
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/scriptyard/scriptyard/internal/config"
	"github.com/scriptyard/scriptyard/internal/store"
)

// migrateCmd applies any pending goose migrations and exits. store.Open
// already runs migrations on every startup; this subcommand exists for
// operators who want to apply them ahead of a deploy without starting the
// scheduler or HTTP server.
func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := os.MkdirAll(cfg.DataPath, 0o755); err != nil {
				return fmt.Errorf("create data path: %w", err)
			}
			st, err := store.Open(cmd.Context(), cfg.DataPath+"/catalog.db")
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			defer st.Close()
			fmt.Println("migrations applied")
			return nil
		},
	}
}
