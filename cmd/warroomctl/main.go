// Package main is the entry point for the warroomctl CLI tool.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/good-yellow-bee/warroom/cmd/warroomctl/cmd"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := cmd.Execute(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
