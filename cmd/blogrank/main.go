// Command blogrank discovers sites by following the link rolls of their
// pages and ranks them by the structure of the resulting link graph.
//
// Usage:
//
//	blogrank spider <url>...
//	blogrank rank
//	blogrank serve
//
// See --help for all available options.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
