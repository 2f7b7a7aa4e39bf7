// Package periodclose implements the scheduled invoice generation of spec
// §4.10 (component C10). The scheduler itself (cron trigger) lives in
// cmd/scheduler; this package is the pure, clock-injectable run logic,
// matching the "asOf clock injection for deterministic testing" pattern
// spec §4.10 calls for directly.
package periodclose

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fluxmeter/billing-core/internal/apierr"
	"github.com/fluxmeter/billing-core/internal/ledger"
	"github.com/fluxmeter/billing-core/internal/store"
)

// Clock abstracts "now" so tests can drive asOf deterministically (spec
// §4.10's own injected-clock requirement).
type Clock func() time.Time

type EntitlementInvalidator interface {
	Invalidate(teamID uuid.UUID)
}

type Service struct {
	Store       store.Store
	Ledger      *ledger.Service
	Entitlement EntitlementInvalidator
	Log         *zap.Logger
	Clock       Clock
}

func (s *Service) now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now().UTC()
}

func (s *Service) logger() *zap.Logger {
	if s.Log != nil {
		return s.Log
	}
	return zap.NewNop()
}

// RunCounters is the per-run summary; "skipped" covers contracts whose
// invoice already existed and only underwent the ledger-repair pass.
type RunCounters struct {
	Invoiced int
	Skipped  int
	Failed   int
}

// periodLength maps BillingPeriod to a calendar step. Months/quarters are
// calendar-aligned (AddDate), not fixed-duration, matching how billing
// periods are conventionally defined.
func periodLength(period store.BillingPeriod) (years, months, days int) {
	switch period {
	case store.BillingPeriodQuarterly:
		return 0, 3, 0
	default:
		return 0, 1, 0
	}
}

// mostRecentCompletedPeriod resolves spec §9's open question: the interval
// [periodStart, periodEnd) is the most-recently-completed one for which
// periodEnd <= asOf. asOf landing exactly on a boundary closes that period
// (left-closed/right-open, so asOf == periodEnd counts as completed).
func mostRecentCompletedPeriod(startsAt time.Time, period store.BillingPeriod, asOf time.Time) (time.Time, time.Time) {
	y, m, d := periodLength(period)

	cursor := startsAt
	for {
		next := cursor.AddDate(y, m, d)
		if next.After(asOf) {
			break
		}
		cursor = next
	}
	if cursor.Equal(startsAt) {
		// No period has elapsed yet; return an empty interval so the caller
		// recognizes there is nothing to close.
		return startsAt, startsAt
	}
	periodEnd := cursor
	periodStart := cursor.AddDate(-y, -m, -d)
	return periodStart, periodEnd
}

// Run implements spec §4.10 steps 1-9 for every ACTIVE contract.
func (s *Service) Run(ctx context.Context, asOf time.Time) (RunCounters, error) {
	if asOf.IsZero() {
		asOf = s.now()
	}

	contracts, err := s.Store.ListActiveContracts(ctx)
	if err != nil {
		return RunCounters{}, err
	}

	var counters RunCounters
	for _, contract := range contracts {
		if err := s.runOne(ctx, contract, asOf, &counters); err != nil {
			counters.Failed++
			s.logger().Error("period close failed for contract",
				zap.String("contractId", contract.ID.String()), zap.Error(err))
		}
	}
	return counters, nil
}

func (s *Service) runOne(ctx context.Context, contract store.Contract, asOf time.Time, counters *RunCounters) error {
	periodStart, periodEnd := mostRecentCompletedPeriod(contract.StartsAt, contract.BillingPeriod, asOf)
	if !periodEnd.After(periodStart) {
		return nil // no completed period yet
	}

	existing, err := s.Store.GetInvoiceForPeriod(ctx, contract.ID, periodStart, periodEnd)
	if err == nil {
		counters.Skipped++
		return s.repairLedger(ctx, existing)
	}
	if err != store.ErrNotFound {
		return err
	}

	lines, err := s.buildLineItems(ctx, contract, periodStart, periodEnd)
	if err != nil {
		return err
	}

	var subtotal int64
	for _, l := range lines {
		subtotal += l.AmountMinor
	}
	status := store.InvoiceStatusIssued
	if contract.PricingMode == store.PricingModeCustomInvoiceOnly {
		status = store.InvoiceStatusDraft
	}
	now := s.now()
	dueAt := now.AddDate(0, 0, contract.TermsDays)
	issuedAt := now

	inv := store.Invoice{
		ContractID:    contract.ID,
		BillToID:      contract.BillToID,
		PeriodStart:   periodStart,
		PeriodEnd:     periodEnd,
		Status:        status,
		SubtotalMinor: subtotal,
		TaxMinor:      0,
		TotalMinor:    subtotal,
		IssuedAt:      &issuedAt,
		DueAt:         &dueAt,
	}

	var createdInv store.Invoice
	var createdLines []store.InvoiceLineItem
	err = s.Store.WithinTx(ctx, func(tx store.Store) error {
		createdInv, createdLines, err = tx.CreateInvoice(ctx, inv, lines)
		return err
	})
	if err == store.ErrConflict {
		// Another process created it concurrently; treat as the repair path.
		existing, getErr := s.Store.GetInvoiceForPeriod(ctx, contract.ID, periodStart, periodEnd)
		if getErr != nil {
			return getErr
		}
		counters.Skipped++
		return s.repairLedger(ctx, existing)
	}
	if err != nil {
		return err
	}

	counters.Invoiced++
	return s.postLedgerEntries(ctx, createdInv, createdLines)
}

// buildLineItems implements spec §4.10 steps 4-5.
func (s *Service) buildLineItems(ctx context.Context, contract store.Contract, periodStart, periodEnd time.Time) ([]store.InvoiceLineItem, error) {
	items, err := s.Store.ListLineItemsForPeriod(ctx, contract.BillToID, store.PriceBookKindCustomer, periodStart, periodEnd)
	if err != nil {
		return nil, err
	}

	type meterTotal struct {
		appID  uuid.UUID
		total  int64
		count  int
	}
	totals := map[string]*meterTotal{}
	for _, item := range items {
		eventType, _ := item.InputsSnapshot["eventType"].(string)
		key := fmt.Sprintf("%s|%s", item.AppID, eventType)
		mt, ok := totals[key]
		if !ok {
			mt = &meterTotal{appID: item.AppID}
			totals[key] = mt
		}
		mt.total += item.AmountMinor
		mt.count++
	}

	overrides, err := s.Store.ListContractOverrides(ctx, contract.ID)
	if err != nil {
		return nil, err
	}
	overrideByMeter := map[string]store.MeterPolicy{}
	for _, o := range overrides {
		overrideByMeter[o.MeterKey] = o.Policy
	}

	// Bundle meter policies are the fallback when no ContractOverride exists
	// for a (app, meter) pair; fetched per app actually present in this
	// period's usage.
	bundlePolicies := map[string]store.MeterPolicy{}
	seenApps := map[uuid.UUID]bool{}
	for _, mt := range totals {
		if seenApps[mt.appID] {
			continue
		}
		seenApps[mt.appID] = true
		policies, err := s.Store.ListBundleMeterPolicies(ctx, contract.BundleID, mt.appID)
		if err != nil {
			return nil, err
		}
		for _, p := range policies {
			bundlePolicies[p.MeterKey] = p.Policy
		}
	}

	var totalUsage int64
	for _, mt := range totals {
		totalUsage += mt.total
	}

	var lines []store.InvoiceLineItem
	switch contract.PricingMode {
	case store.PricingModeFixed:
		lines = append(lines, store.InvoiceLineItem{
			Type:        store.InvoiceLineBaseFee,
			Description: "Fixed fee",
			Quantity:    1,
			AmountMinor: contract.FixedFeeMinor,
		})

	case store.PricingModeFixedPlusTrueup:
		lines = append(lines, store.InvoiceLineItem{
			Type:        store.InvoiceLineBaseFee,
			Description: "Fixed fee",
			Quantity:    1,
			AmountMinor: contract.FixedFeeMinor,
		})
		for key, mt := range totals {
			meterKey := meterKeyFromCompound(key)
			policy, ok := overrideByMeter[meterKey]
			if !ok {
				policy = bundlePolicies[meterKey]
			}
			included := int64(0)
			if policy.IncludedAmount != nil {
				included = *policy.IncludedAmount
			}
			if mt.total > included {
				lines = append(lines, store.InvoiceLineItem{
					Type:        store.InvoiceLineUsageTrueup,
					Description: "Usage true-up: " + meterKey,
					Quantity:    int64(mt.count),
					AmountMinor: mt.total - included,
					UsageSummary: map[string]any{
						"meterKey":    meterKey,
						"totalMinor":  mt.total,
						"includedAmount": included,
					},
				})
			}
		}

	case store.PricingModeMinCommitTrueup:
		baseAmount := contract.MinCommitMinor
		if totalUsage > baseAmount {
			baseAmount = totalUsage
		}
		lines = append(lines, store.InvoiceLineItem{
			Type:        store.InvoiceLineBaseFee,
			Description: "Minimum commitment",
			Quantity:    1,
			AmountMinor: baseAmount,
		})
		// Detail lines are zero-amount to prevent double-charging (spec
		// §4.10 step 5, MIN_COMMIT_TRUEUP): the base fee already absorbed
		// the full usage total.
		for key, mt := range totals {
			meterKey := meterKeyFromCompound(key)
			lines = append(lines, store.InvoiceLineItem{
				Type:        store.InvoiceLineUsageTrueup,
				Description: "Usage detail: " + meterKey,
				Quantity:    int64(mt.count),
				AmountMinor: 0,
				UsageSummary: map[string]any{
					"meterKey":   meterKey,
					"totalMinor": mt.total,
				},
			})
		}

	case store.PricingModeCustomInvoiceOnly:
		lines = append(lines, store.InvoiceLineItem{
			Type:        store.InvoiceLineAdjustment,
			Description: "Usage summary",
			Quantity:    1,
			AmountMinor: 0,
		})
		for key, mt := range totals {
			meterKey := meterKeyFromCompound(key)
			lines = append(lines, store.InvoiceLineItem{
				Type:        store.InvoiceLineUsageTrueup,
				Description: "Usage detail: " + meterKey,
				Quantity:    int64(mt.count),
				AmountMinor: mt.total,
				UsageSummary: map[string]any{
					"meterKey":   meterKey,
					"totalMinor": mt.total,
				},
			})
		}
	}

	return lines, nil
}

func meterKeyFromCompound(key string) string {
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] == '|' {
			return key[i+1:]
		}
	}
	return key
}

// postLedgerEntries implements spec §4.10 step 8: posts outside the
// invoice-creation transaction, tolerating duplicate and logging (not
// failing on) any other error.
func (s *Service) postLedgerEntries(ctx context.Context, inv store.Invoice, lines []store.InvoiceLineItem) error {
	for i, line := range lines {
		entryType := store.LedgerEntryUsageCharge
		if line.Type == store.InvoiceLineBaseFee {
			entryType = store.LedgerEntrySubscriptionCharge
		}
		idemKey := fmt.Sprintf("period-close:%s:%s:%d", inv.ContractID, inv.ID, i)
		_, err := s.Ledger.CreateEntry(ctx, ledger.CreateEntryParams{
			AppID:          appIDOrZero(line),
			BillToID:       inv.BillToID,
			AccountType:    store.LedgerAccountAccountsReceivable,
			Type:           entryType,
			AmountMinor:    line.AmountMinor,
			Currency:       "USD",
			ReferenceType:  "INVOICE",
			ReferenceID:    stringPtr(inv.ID.String()),
			IdempotencyKey: idemKey,
		})
		if ledger.IsDuplicate(err) {
			continue
		}
		if err != nil {
			s.logger().Error("ledger post failed during period close",
				zap.String("invoiceId", inv.ID.String()), zap.Int("lineIndex", i), zap.Error(err))
		}
	}
	return nil
}

// repairLedger implements spec §4.10 step 9: re-issue the same createEntry
// calls with the same idempotency keys for an invoice that already exists.
func (s *Service) repairLedger(ctx context.Context, inv store.Invoice) error {
	lines, err := s.Store.ListInvoiceLineItems(ctx, inv.ID)
	if err != nil {
		return err
	}
	return s.postLedgerEntries(ctx, inv, lines)
}

func appIDOrZero(line store.InvoiceLineItem) uuid.UUID {
	if line.AppID != nil {
		return *line.AppID
	}
	return uuid.Nil
}

func stringPtr(s string) *string { return &s }

// MarkInvoicePaid implements the admin POST /v1/invoices/:id/mark-paid
// transition of spec §4.10's closing paragraph: ISSUED -> PAID atomically,
// with a single INVOICE_PAYMENT ledger entry; failure to post rolls back
// the status update.
func (s *Service) MarkInvoicePaid(ctx context.Context, invoiceID uuid.UUID) (store.Invoice, error) {
	inv, err := s.Store.GetInvoice(ctx, invoiceID)
	if err != nil {
		return store.Invoice{}, err
	}
	if inv.Status == store.InvoiceStatusPaid {
		return inv, nil // idempotent no-op
	}
	if inv.Status != store.InvoiceStatusIssued {
		return store.Invoice{}, apierr.Validation("invoice not in ISSUED status")
	}

	_, err = s.Ledger.CreateEntry(ctx, ledger.CreateEntryParams{
		AppID:          uuid.Nil,
		BillToID:       inv.BillToID,
		AccountType:    store.LedgerAccountAccountsReceivable,
		Type:           store.LedgerEntryInvoicePayment,
		AmountMinor:    inv.TotalMinor,
		Currency:       "USD",
		ReferenceType:  "INVOICE",
		ReferenceID:    stringPtr(inv.ID.String()),
		IdempotencyKey: fmt.Sprintf("invoice-paid:%s", inv.ID),
	})
	if err != nil && !ledger.IsDuplicate(err) {
		return store.Invoice{}, err
	}

	return s.Store.MarkInvoicePaid(ctx, invoiceID)
}
