// Package worker implements the scheduled pricing poll loop of spec §4.6
// (component C6): claim unpriced events, price them via C5, persist line
// items transactionally, and trigger C7's immediate debit after commit.
// Grounded on the teacher's poll/ticker shape used across its background
// processors (apps/subscription-processor/internal/processor).
package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fluxmeter/billing-core/internal/pricing"
	"github.com/fluxmeter/billing-core/internal/queue"
	"github.com/fluxmeter/billing-core/internal/store"
)

const queueName = "pricing-events"

// Debiter is the subset of C7 the worker calls after committing line items;
// a narrow interface to avoid worker depending on all of wallet's surface.
type Debiter interface {
	DebitImmediate(ctx context.Context, lineItemID uuid.UUID) (string, error)
}

// Config mirrors the tunables named in spec §4.6.
type Config struct {
	PollInterval time.Duration // default 5s
	BatchSize    int           // default 50
	MaxRetries   int           // default 5
	BaseBackoff  time.Duration // default 1s
}

func (c Config) withDefaults() Config {
	if c.PollInterval == 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.BatchSize == 0 {
		c.BatchSize = 50
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 5
	}
	if c.BaseBackoff == 0 {
		c.BaseBackoff = time.Second
	}
	return c
}

// Counters is the per-tick return value spec §4.6 names.
type Counters struct {
	Processed int
	Skipped   int
	Failed    int
}

// Worker polls the store for unpriced events on an interval, pricing and
// persisting each one. Multiple Worker instances may run across processes;
// Leaser guarantees at most one of them runs a given tick's claim+process
// sequence for a queue at a time, and the idempotency guard in Tick makes
// duplicate delivery safe even without the lease (spec §4.6 closing
// paragraph).
type Worker struct {
	Store   store.Store
	Pricer  *pricing.Engine
	Debiter Debiter
	Leaser  queue.Leaser
	Log     *zap.Logger
	Config  Config
	Clock   func() time.Time
}

func (w *Worker) now() time.Time {
	if w.Clock != nil {
		return w.Clock()
	}
	return time.Now().UTC()
}

// Run blocks, ticking every PollInterval until ctx is canceled. Cancellation
// is cooperative: an in-flight Tick is allowed to finish (spec §5, "in-flight
// store calls are allowed to complete").
func (w *Worker) Run(ctx context.Context) {
	cfg := w.Config.withDefaults()
	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			counters, err := w.Tick(ctx)
			if err != nil {
				w.logger().Error("pricing worker tick failed", zap.Error(err))
				continue
			}
			w.logger().Info("pricing worker tick",
				zap.Int("processed", counters.Processed),
				zap.Int("skipped", counters.Skipped),
				zap.Int("failed", counters.Failed))
		}
	}
}

func (w *Worker) logger() *zap.Logger {
	if w.Log != nil {
		return w.Log
	}
	return zap.NewNop()
}

// Tick runs a single poll-and-process cycle (spec §4.6 steps 1-4).
func (w *Worker) Tick(ctx context.Context) (Counters, error) {
	cfg := w.Config.withDefaults()

	release, ok, err := w.Leaser.Acquire(ctx, queueName, cfg.PollInterval)
	if err != nil {
		return Counters{}, err
	}
	if !ok {
		return Counters{}, nil // another instance owns this tick
	}
	defer release()

	now := w.now()
	events, err := w.Store.ClaimUnpricedEvents(ctx, now, cfg.BatchSize)
	if err != nil {
		return Counters{}, err
	}

	var counters Counters
	for _, event := range events {
		w.processOne(ctx, event, now, cfg, &counters)
	}
	return counters, nil
}

func (w *Worker) processOne(ctx context.Context, event store.UsageEvent, now time.Time, cfg Config, counters *Counters) {
	// 2a. idempotency guard: recovery path for events already priced out
	// from under us (a prior tick committed line items but crashed before
	// marking pricedAt).
	n, err := w.Store.CountLineItemsForEvent(ctx, event.ID)
	if err != nil {
		counters.Failed++
		w.logger().Error("count line items failed", zap.String("eventId", event.ID.String()), zap.Error(err))
		return
	}
	if n > 0 {
		_ = w.Store.MarkEventPriced(ctx, event.ID, now)
		counters.Skipped++
		return
	}

	drafts, err := w.Pricer.Price(ctx, event)
	if err != nil {
		if pricing.IsPermanent(err) {
			_ = w.Store.MarkEventPriced(ctx, event.ID, now)
			w.logger().Error("permanent pricing failure",
				zap.String("eventId", event.ID.String()), zap.Error(err))
			counters.Failed++
			return
		}
		w.scheduleRetry(ctx, event, now, cfg, counters, err)
		return
	}

	var created []store.BillableLineItem
	txErr := w.Store.WithinTx(ctx, func(tx store.Store) error {
		items := make([]store.BillableLineItem, 0, len(drafts))
		for _, d := range drafts {
			items = append(items, store.BillableLineItem{
				AppID:          event.AppID,
				BillToID:       event.BillToID,
				TeamID:         derefTeam(event.TeamID),
				UserID:         event.UserID,
				UsageEventID:   &event.ID,
				Timestamp:      event.Timestamp,
				PriceBookID:    d.PriceBook.ID,
				PriceBookKind:  d.PriceBook.Kind,
				PriceRuleID:    d.PriceRule.ID,
				AmountMinor:    d.AmountMinor,
				Currency:       d.PriceBook.Currency,
				Description:    d.Description,
				InputsSnapshot: d.InputsSnapshot,
			})
		}
		inserted, err := tx.InsertLineItems(ctx, items)
		if err != nil {
			return err
		}
		created = inserted
		return tx.MarkEventPriced(ctx, event.ID, now)
	})
	if txErr != nil {
		w.scheduleRetry(ctx, event, now, cfg, counters, txErr)
		return
	}

	counters.Processed++

	// 2d. debit happens after commit; failure here is logged and swallowed,
	// relying on C7's own idempotency to pick it up on a later pass (spec
	// §4.6 step 2d).
	for _, item := range created {
		if _, err := w.Debiter.DebitImmediate(ctx, item.ID); err != nil {
			w.logger().Error("post-commit debit failed",
				zap.String("lineItemId", item.ID.String()), zap.Error(err))
		}
	}
}

func (w *Worker) scheduleRetry(ctx context.Context, event store.UsageEvent, now time.Time, cfg Config, counters *Counters, cause error) {
	retryCount := event.RetryCount + 1
	if retryCount > cfg.MaxRetries {
		_ = w.Store.MarkEventPriced(ctx, event.ID, now)
		w.logger().Error("pricing event exceeded max retries, flagged permanent",
			zap.String("eventId", event.ID.String()), zap.Int("retryCount", retryCount), zap.Error(cause))
		counters.Failed++
		return
	}
	backoff := cfg.BaseBackoff * time.Duration(1<<uint(retryCount-1))
	if err := w.Store.ScheduleEventRetry(ctx, event.ID, retryCount, now.Add(backoff)); err != nil {
		w.logger().Error("failed to schedule retry", zap.String("eventId", event.ID.String()), zap.Error(err))
	}
	counters.Failed++
}

func derefTeam(id *uuid.UUID) uuid.UUID {
	if id == nil {
		return uuid.Nil
	}
	return *id
}
