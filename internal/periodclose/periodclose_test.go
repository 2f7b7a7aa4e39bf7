package periodclose

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxmeter/billing-core/internal/apierr"
	"github.com/fluxmeter/billing-core/internal/ledger"
	"github.com/fluxmeter/billing-core/internal/store"
	"github.com/fluxmeter/billing-core/internal/store/memstore"
)

type noopInvalidator struct{}

func (noopInvalidator) Invalidate(uuid.UUID) {}

func newFixedFeeContract(t *testing.T, st *memstore.MemStore, startsAt time.Time) store.Contract {
	t.Helper()
	bundle, err := st.CreateBundle(context.Background(), store.Bundle{Code: "fixed", Status: store.BundleStatusActive})
	require.NoError(t, err)
	contract, err := st.CreateContract(context.Background(), store.Contract{
		BillToID:      uuid.New(),
		BundleID:      bundle.ID,
		Currency:      "usd",
		BillingPeriod: store.BillingPeriodMonthly,
		PricingMode:   store.PricingModeFixed,
		FixedFeeMinor: 10000,
		TermsDays:     30,
		StartsAt:      startsAt,
		Status:        store.ContractStatusActive,
	})
	require.NoError(t, err)
	return contract
}

func TestRunInvoicesElapsedPeriod(t *testing.T) {
	st := memstore.New()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newFixedFeeContract(t, st, start)

	svc := &Service{Store: st, Ledger: &ledger.Service{Store: st}, Entitlement: noopInvalidator{}}
	asOf := time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC)

	counters, err := svc.Run(context.Background(), asOf)
	require.NoError(t, err)
	assert.Equal(t, 1, counters.Invoiced)
	assert.Equal(t, 0, counters.Skipped)
	assert.Equal(t, 0, counters.Failed)
}

func TestRunSkipsWhenNoPeriodElapsed(t *testing.T) {
	st := memstore.New()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newFixedFeeContract(t, st, start)

	svc := &Service{Store: st, Ledger: &ledger.Service{Store: st}, Entitlement: noopInvalidator{}}
	asOf := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

	counters, err := svc.Run(context.Background(), asOf)
	require.NoError(t, err)
	assert.Equal(t, 0, counters.Invoiced)
	assert.Equal(t, 0, counters.Skipped)
}

func TestRunIsIdempotentAcrossRepeatedCalls(t *testing.T) {
	st := memstore.New()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newFixedFeeContract(t, st, start)

	svc := &Service{Store: st, Ledger: &ledger.Service{Store: st}, Entitlement: noopInvalidator{}}
	asOf := time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC)

	first, err := svc.Run(context.Background(), asOf)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Invoiced)

	second, err := svc.Run(context.Background(), asOf)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Invoiced)
	assert.Equal(t, 1, second.Skipped)
}

func TestMarkInvoicePaidTransitionsIssuedToPaid(t *testing.T) {
	st := memstore.New()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	contract := newFixedFeeContract(t, st, start)

	svc := &Service{Store: st, Ledger: &ledger.Service{Store: st}, Entitlement: noopInvalidator{}}
	_, err := svc.Run(context.Background(), time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	inv, err := st.GetInvoiceForPeriod(context.Background(), contract.ID,
		time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, store.InvoiceStatusIssued, inv.Status)

	paid, err := svc.MarkInvoicePaid(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, store.InvoiceStatusPaid, paid.Status)

	// idempotent: marking paid again is a no-op, not an error
	again, err := svc.MarkInvoicePaid(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, store.InvoiceStatusPaid, again.Status)
}

func TestMarkInvoicePaidRejectsDraftInvoice(t *testing.T) {
	st := memstore.New()
	bundle, err := st.CreateBundle(context.Background(), store.Bundle{Code: "draft", Status: store.BundleStatusActive})
	require.NoError(t, err)
	contract, err := st.CreateContract(context.Background(), store.Contract{
		BillToID: uuid.New(), BundleID: bundle.ID, Status: store.ContractStatusActive,
	})
	require.NoError(t, err)
	inv, _, err := st.CreateInvoice(context.Background(), store.Invoice{
		ContractID: contract.ID, BillToID: contract.BillToID, Status: store.InvoiceStatusDraft,
	}, nil)
	require.NoError(t, err)

	svc := &Service{Store: st, Ledger: &ledger.Service{Store: st}, Entitlement: noopInvalidator{}}
	_, err = svc.MarkInvoicePaid(context.Background(), inv.ID)
	require.Error(t, err)
	apiErr, ok := err.(*apierr.Error)
	require.True(t, ok)
	assert.Equal(t, apierr.KindValidation, apiErr.Kind)
}
