// culprit finds the commits responsible for a change in measured behavior.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	culpritcli "go.skia.org/culprit/culprit/go/cmd/culprit/cli"
	"go.skia.org/culprit/go/sklog"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.App{
		Name:        "culprit",
		Description: "culprit bisects a range of commits to find the ones that changed a measurement.",
		Commands:    culpritcli.Commands(),
	}
	if err := app.RunContext(ctx, os.Args); err != nil {
		sklog.Errorf("%s", err)
		sklog.Flush()
		os.Exit(1)
	}
	sklog.Flush()
}
