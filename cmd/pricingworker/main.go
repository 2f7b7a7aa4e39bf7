// Command pricingworker runs the C6 poll loop (spec §4.6): claim unpriced
// usage events, price them via C5, persist line items, and trigger C7's
// immediate wallet debit. When REDIS_URL is set it leases the queue through
// Redis so only one replica processes a given tick at a time; otherwise it
// falls back to the in-process leaser, correct for a single-instance
// deployment.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/fluxmeter/billing-core/internal/ledger"
	"github.com/fluxmeter/billing-core/internal/logger"
	"github.com/fluxmeter/billing-core/internal/pricing"
	"github.com/fluxmeter/billing-core/internal/pricing/worker"
	"github.com/fluxmeter/billing-core/internal/queue"
	"github.com/fluxmeter/billing-core/internal/store/memstore"
	"github.com/fluxmeter/billing-core/internal/wallet"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: no .env file loaded: %v", err)
	}
	logger.Init(os.Getenv("STAGE"))
	defer logger.Sync()

	st := memstore.New()
	ledgerSvc := &ledger.Service{Store: st}
	walletSvc := &wallet.Service{Store: st, Ledger: ledgerSvc, TopUp: noopAutoTopUp{}, Log: logger.Log}

	var leaser queue.Leaser
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			logger.Fatal("invalid REDIS_URL: " + err.Error())
		}
		client := redis.NewClient(opts)
		leaser = queue.NewRedisLeaser(client, fmt.Sprintf("pricingworker-%d", os.Getpid()))
	} else {
		leaser = queue.NewInProcessLeaser()
	}

	w := &worker.Worker{
		Store:   st,
		Pricer:  &pricing.Engine{Store: st},
		Debiter: walletSvc,
		Leaser:  leaser,
		Log:     logger.Log,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("pricing worker starting")
	w.Run(ctx)
	logger.Info("pricing worker stopped")
}

// noopAutoTopUp stands in for C11 in the worker process: auto-top-up
// checkout sessions are an HTTP-surface concern (cmd/api owns the Stripe
// client), so the worker's debit path treats the trigger as a no-op rather
// than duplicating Stripe wiring into a background process that never
// serves a checkout redirect.
type noopAutoTopUp struct{}

func (noopAutoTopUp) CheckAndTriggerAutoTopUp(ctx context.Context, appID, teamID uuid.UUID) error {
	return nil
}
