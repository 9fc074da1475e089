package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rl1809/branch-delivery/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	root, release := cli.NewRootCmd()
	err := root.ExecuteContext(ctx)
	release()
	stop()
	if err != nil {
		os.Exit(1)
	}
}
