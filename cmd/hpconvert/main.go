// Package main provides hpconvert, which converts gridded datasets into
// multi-resolution HEALPix Zarr stores.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

const version = "0.1.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		slog.Error("hpconvert failed", "error", err)
		stop()
		os.Exit(1)
	}
}
