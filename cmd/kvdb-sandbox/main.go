package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Ratio1/kvdb_sdk_go/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := cli.NewSandboxCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "kvdb-sandbox:", err)
		stop()
		os.Exit(1)
	}
}
