// Command onsync serves the access-controlled page shell and manages the
// local session from the terminal.
package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/onsync/onsync/internal/app"
)

var version = "dev" // set at build time

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cobra.CheckErr(newRootCmd(newCLI()).ExecuteContext(ctx))
}
