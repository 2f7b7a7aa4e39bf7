package memstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fluxmeter/billing-core/internal/store"
)

func ledgerAccountKey(appID, billToID uuid.UUID, accountType store.LedgerAccountType) string {
	return fmt.Sprintf("%s|%s|%s", appID, billToID, accountType)
}

// GetOrCreateLedgerAccount is lookup-or-insert; concurrent callers collapse
// on the (appId, billToId, type) key the way a unique index would (spec
// §4.4).
func (m *MemStore) GetOrCreateLedgerAccount(ctx context.Context, appID, billToID uuid.UUID, accountType store.LedgerAccountType) (store.LedgerAccount, error) {
	var out store.LedgerAccount
	m.withLock(func() {
		key := ledgerAccountKey(appID, billToID, accountType)
		if id, ok := m.data.ledgerAccountKey[key]; ok {
			out = m.data.ledgerAccounts[id]
			return
		}
		acc := store.LedgerAccount{ID: uuid.New(), AppID: appID, BillToID: billToID, Type: accountType}
		m.data.ledgerAccounts[acc.ID] = acc
		m.data.ledgerAccountKey[key] = acc.ID
		out = acc
	})
	return out, nil
}

// CreateLedgerEntry enforces the globally unique idempotencyKey invariant
// (spec §4.4 invariant b, §8 property 3): any collision fails with
// ErrDuplicateLedgerEntry, regardless of tenant.
func (m *MemStore) CreateLedgerEntry(ctx context.Context, e store.LedgerEntry) (store.LedgerEntry, error) {
	var out store.LedgerEntry
	var err error
	m.withLock(func() {
		if existingID, exists := m.data.ledgerEntryByIdem[e.IdempotencyKey]; exists {
			out = m.data.ledgerEntries[existingID]
			err = store.ErrDuplicateLedgerEntry
			return
		}
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
		}
		if e.Timestamp.IsZero() {
			e.Timestamp = time.Now().UTC()
		}
		m.data.ledgerEntries[e.ID] = e
		m.data.ledgerEntryByIdem[e.IdempotencyKey] = e.ID
		out = e
	})
	return out, err
}

func (m *MemStore) SumLedgerEntries(ctx context.Context, accountID uuid.UUID, asOf *time.Time) (int64, error) {
	var sum int64
	m.withLock(func() {
		for _, e := range m.data.ledgerEntries {
			if e.LedgerAccountID != accountID {
				continue
			}
			if asOf != nil && e.Timestamp.After(*asOf) {
				continue
			}
			sum += e.AmountMinor
		}
	})
	return sum, nil
}

func (m *MemStore) GetLedgerEntryByIdempotencyKey(ctx context.Context, key string) (store.LedgerEntry, error) {
	var out store.LedgerEntry
	var err error
	m.withLock(func() {
		id, ok := m.data.ledgerEntryByIdem[key]
		if !ok {
			err = store.ErrNotFound
			return
		}
		out = m.data.ledgerEntries[id]
	})
	return out, err
}

func (m *MemStore) SumLedgerEntriesByReference(ctx context.Context, referenceID string) (int64, error) {
	var sum int64
	m.withLock(func() {
		for _, e := range m.data.ledgerEntries {
			if e.ReferenceID != nil && *e.ReferenceID == referenceID {
				sum += e.AmountMinor
			}
		}
	})
	return sum, nil
}
