package memstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fluxmeter/billing-core/internal/store"
)

func invoicePeriodKey(contractID uuid.UUID, periodStart, periodEnd time.Time) string {
	return fmt.Sprintf("%s|%s|%s", contractID, periodStart.UTC().Format(time.RFC3339Nano), periodEnd.UTC().Format(time.RFC3339Nano))
}

func (m *MemStore) GetInvoiceForPeriod(ctx context.Context, contractID uuid.UUID, periodStart, periodEnd time.Time) (store.Invoice, error) {
	var out store.Invoice
	var err error
	m.withLock(func() {
		id, ok := m.data.invoiceByPeriod[invoicePeriodKey(contractID, periodStart, periodEnd)]
		if !ok {
			err = store.ErrNotFound
			return
		}
		out = m.data.invoices[id]
	})
	return out, err
}

// CreateInvoice is the one-invoice-per-(contract,period) guard of spec §4.10
// step 4: a collision on the period key is returned as ErrConflict so the
// period-close scheduler can treat the existing invoice as the idempotent
// result of a prior run.
func (m *MemStore) CreateInvoice(ctx context.Context, inv store.Invoice, lines []store.InvoiceLineItem) (store.Invoice, []store.InvoiceLineItem, error) {
	var outInv store.Invoice
	var outLines []store.InvoiceLineItem
	var err error
	m.withLock(func() {
		key := invoicePeriodKey(inv.ContractID, inv.PeriodStart, inv.PeriodEnd)
		if existingID, exists := m.data.invoiceByPeriod[key]; exists {
			outInv = m.data.invoices[existingID]
			outLines = append([]store.InvoiceLineItem{}, m.data.invoiceLines[existingID]...)
			err = store.ErrConflict
			return
		}
		if inv.ID == uuid.Nil {
			inv.ID = uuid.New()
		}
		stored := make([]store.InvoiceLineItem, len(lines))
		for i, l := range lines {
			if l.ID == uuid.Nil {
				l.ID = uuid.New()
			}
			l.InvoiceID = inv.ID
			stored[i] = l
		}
		m.data.invoices[inv.ID] = inv
		m.data.invoiceByPeriod[key] = inv.ID
		m.data.invoiceLines[inv.ID] = stored
		outInv = inv
		outLines = stored
	})
	return outInv, outLines, err
}

func (m *MemStore) GetInvoice(ctx context.Context, id uuid.UUID) (store.Invoice, error) {
	var out store.Invoice
	var err error
	m.withLock(func() {
		inv, ok := m.data.invoices[id]
		if !ok {
			err = store.ErrNotFound
			return
		}
		out = inv
	})
	return out, err
}

func (m *MemStore) ListInvoiceLineItems(ctx context.Context, invoiceID uuid.UUID) ([]store.InvoiceLineItem, error) {
	var out []store.InvoiceLineItem
	m.withLock(func() {
		out = append(out, m.data.invoiceLines[invoiceID]...)
	})
	return out, nil
}

func (m *MemStore) MarkInvoicePaid(ctx context.Context, id uuid.UUID) (store.Invoice, error) {
	var out store.Invoice
	var err error
	m.withLock(func() {
		inv, ok := m.data.invoices[id]
		if !ok {
			err = store.ErrNotFound
			return
		}
		inv.Status = store.InvoiceStatusPaid
		m.data.invoices[id] = inv
		out = inv
	})
	return out, err
}
