// Copyright (C) 2024 Yota Hamada
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "0.0.0"

var (
	cfgFile string
	quiet   bool
)

func main() {
	root := &cobra.Command{
		Use:   "scriptyard",
		Short: "Schedules, isolates, and observes execution of user-authored scripts",
		Long:  "scriptyard [server|scheduler|migrate|version]",
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, overrides SCRIPTYARD_ env vars' defaults)")
	root.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress console log output")

	root.AddCommand(serverCmd())
	root.AddCommand(schedulerCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(versionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
