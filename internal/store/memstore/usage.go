package memstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fluxmeter/billing-core/internal/store"
)

func usageIdemKey(appID uuid.UUID, idempotencyKey string) string {
	return fmt.Sprintf("%s|%s", appID, idempotencyKey)
}

func (m *MemStore) InsertUsageEvent(ctx context.Context, e store.UsageEvent) (store.UsageEvent, error) {
	var out store.UsageEvent
	var err error
	m.withLock(func() {
		key := usageIdemKey(e.AppID, e.IdempotencyKey)
		if existingID, exists := m.data.usageByIdempotency[key]; exists {
			out = m.data.usageEvents[existingID]
			err = store.ErrDuplicateEvent
			return
		}
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = time.Now().UTC()
		}
		m.data.usageEvents[e.ID] = e
		m.data.usageByIdempotency[key] = e.ID
		out = e
	})
	return out, err
}

func (m *MemStore) InsertLineItems(ctx context.Context, items []store.BillableLineItem) ([]store.BillableLineItem, error) {
	out := make([]store.BillableLineItem, len(items))
	m.withLock(func() {
		for i, li := range items {
			if li.ID == uuid.Nil {
				li.ID = uuid.New()
			}
			m.data.lineItems[li.ID] = li
			if li.UsageEventID != nil {
				m.data.lineItemsByEvent[*li.UsageEventID] = append(m.data.lineItemsByEvent[*li.UsageEventID], li.ID)
			}
			out[i] = li
		}
	})
	return out, nil
}

func (m *MemStore) GetLineItem(ctx context.Context, id uuid.UUID) (store.BillableLineItem, error) {
	var out store.BillableLineItem
	var err error
	m.withLock(func() {
		li, ok := m.data.lineItems[id]
		if !ok {
			err = store.ErrNotFound
			return
		}
		out = li
	})
	return out, err
}

func (m *MemStore) MarkLineItemWalletDebited(ctx context.Context, id uuid.UUID, at time.Time) error {
	var err error
	m.withLock(func() {
		li, ok := m.data.lineItems[id]
		if !ok {
			err = store.ErrNotFound
			return
		}
		li.WalletDebitedAt = &at
		m.data.lineItems[id] = li
	})
	return err
}

func (m *MemStore) ListUndebitedCustomerLineItems(ctx context.Context, appID, billToID uuid.UUID) ([]store.BillableLineItem, error) {
	var out []store.BillableLineItem
	m.withLock(func() {
		for _, li := range m.data.lineItems {
			if li.AppID == appID && li.BillToID == billToID && li.PriceBookKind == store.PriceBookKindCustomer && li.WalletDebitedAt == nil {
				out = append(out, li)
			}
		}
	})
	return out, nil
}

// ListLineItemsForPeriod returns line items for a bill-to entity of a given
// price book kind within [from, to). Period-close aggregates CUSTOMER line
// items (spec §4.10 step 4); the /cogs endpoint aggregates COGS ones the
// same way.
func (m *MemStore) ListLineItemsForPeriod(ctx context.Context, billToID uuid.UUID, kind store.PriceBookKind, from, to time.Time) ([]store.BillableLineItem, error) {
	var out []store.BillableLineItem
	m.withLock(func() {
		for _, li := range m.data.lineItems {
			if li.BillToID != billToID || li.PriceBookKind != kind {
				continue
			}
			if li.Timestamp.Before(from) || !li.Timestamp.Before(to) {
				continue
			}
			out = append(out, li)
		}
	})
	return out, nil
}

func walletConfigKey(appID, teamID uuid.UUID) string {
	return fmt.Sprintf("%s|%s", appID, teamID)
}

func (m *MemStore) GetWalletConfig(ctx context.Context, appID, teamID uuid.UUID) (store.WalletConfig, error) {
	var out store.WalletConfig
	var err error
	m.withLock(func() {
		cfg, ok := m.data.walletConfigs[walletConfigKey(appID, teamID)]
		if !ok {
			err = store.ErrNotFound
			return
		}
		out = cfg
	})
	return out, err
}

func (m *MemStore) PutWalletConfig(ctx context.Context, cfg store.WalletConfig) (store.WalletConfig, error) {
	m.withLock(func() {
		m.data.walletConfigs[walletConfigKey(cfg.AppID, cfg.TeamID)] = cfg
	})
	return cfg, nil
}
