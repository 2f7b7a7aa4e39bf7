// Command scheduler drives the C10 period-close sweep (spec §4.10) on a
// cron trigger, grounded on the robfig/cron/v3 scheduling pattern the rest
// of the dependency pack uses for recurring jobs.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/fluxmeter/billing-core/internal/entitlement"
	"github.com/fluxmeter/billing-core/internal/ledger"
	"github.com/fluxmeter/billing-core/internal/logger"
	"github.com/fluxmeter/billing-core/internal/periodclose"
	"github.com/fluxmeter/billing-core/internal/store/memstore"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: no .env file loaded: %v", err)
	}
	logger.Init(os.Getenv("STAGE"))
	defer logger.Sync()

	st := memstore.New()
	ledgerSvc := &ledger.Service{Store: st}
	entitlementResolver := &entitlement.Resolver{Store: st}
	periodCloseSvc := &periodclose.Service{
		Store:       st,
		Ledger:      ledgerSvc,
		Entitlement: entitlementResolver,
		Log:         logger.Log,
	}

	spec := os.Getenv("PERIOD_CLOSE_CRON")
	if spec == "" {
		spec = "0 2 * * *" // daily at 02:00
	}

	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		runOnce(periodCloseSvc)
	})
	if err != nil {
		logger.Fatal("invalid PERIOD_CLOSE_CRON expression: " + err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("scheduler starting", zap.String("cron", spec))
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	logger.Info("scheduler stopped")
}

func runOnce(svc *periodclose.Service) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	counters, err := svc.Run(ctx, time.Now().UTC())
	if err != nil {
		logger.Error("period-close run failed", zap.Error(err))
		return
	}
	logger.Info("period-close run complete",
		zap.Int("invoiced", counters.Invoiced),
		zap.Int("skipped", counters.Skipped),
		zap.Int("failed", counters.Failed),
	)
}
