// Command api serves the exchange ledger HTTP API and runs its posting and
// reconciliation workers.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/ayo6706/exchange-ledger/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx); err != nil {
		stop()
		log.Fatalf("exchange-ledger: %v", err)
	}
}
