// Command relayctl calls LLM providers through llmrelay, probes their connectivity and
// runs the CORS proxy.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/skosovsky/llmrelay/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Execute(ctx)
	stop()
	os.Exit(code)
}
