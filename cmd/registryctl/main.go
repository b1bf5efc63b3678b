// Command registryctl imports registry extracts and inspects import jobs
// from the command line.
//
// Results go to stdout in the --output format; logs go to stderr. The exit
// code is 0 on success, 1 on failure and 2 on invalid usage.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
