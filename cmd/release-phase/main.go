// Command release-phase runs release commands and manages static release
// artifacts.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/heroku/buildpacks-release-phase/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Execute(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}
