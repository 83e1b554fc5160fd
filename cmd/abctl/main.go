// Command abctl manages the A/B tests kept in a local SQLite file.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ligadeals/ligadeals-web/internal/abcli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := abcli.Execute(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
