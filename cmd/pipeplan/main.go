package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	_ "github.com/brimdata/pipeplan/cmd/pipeplan/plan"
	"github.com/brimdata/pipeplan/cmd/pipeplan/root"
	_ "github.com/brimdata/pipeplan/cmd/pipeplan/rules"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	root.Pipeplan.Version = version
	if err := root.Pipeplan.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
