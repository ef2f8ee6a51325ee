// Copyright (C) 2024 Yota Hamada
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// listenSignals cancels the process on SIGINT/SIGTERM, or returns early if
// ctx is already done by some other path.
func listenSignals(ctx context.Context, cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	select {
	case <-sigs:
		cancel()
	case <-ctx.Done():
	}
}
