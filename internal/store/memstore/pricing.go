package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/fluxmeter/billing-core/internal/store"
)

func (m *MemStore) ListPriceBooks(ctx context.Context, appID uuid.UUID, kind store.PriceBookKind, asOf time.Time) ([]store.PriceBook, error) {
	var out []store.PriceBook
	m.withLock(func() {
		for _, pb := range m.data.priceBooks {
			if pb.AppID == appID && pb.Kind == kind && !pb.EffectiveFrom.After(asOf) {
				out = append(out, pb)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].EffectiveFrom.After(out[j].EffectiveFrom) })
	return out, nil
}

func (m *MemStore) ListPriceRules(ctx context.Context, priceBookID uuid.UUID) ([]store.PriceRule, error) {
	var out []store.PriceRule
	m.withLock(func() {
		out = append(out, m.data.priceRules[priceBookID]...)
	})
	return out, nil
}

// ClaimUnpricedEvents is the single-poll-tick query of spec §4.6 step 1:
// pricedAt IS NULL AND (nextRetryAt IS NULL OR nextRetryAt <= now), ordered
// by createdAt, capped at limit.
func (m *MemStore) ClaimUnpricedEvents(ctx context.Context, now time.Time, limit int) ([]store.UsageEvent, error) {
	var out []store.UsageEvent
	m.withLock(func() {
		for _, e := range m.data.usageEvents {
			if e.PricedAt != nil {
				continue
			}
			if e.NextRetryAt != nil && e.NextRetryAt.After(now) {
				continue
			}
			out = append(out, e)
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemStore) MarkEventPriced(ctx context.Context, eventID uuid.UUID, at time.Time) error {
	var err error
	m.withLock(func() {
		e, ok := m.data.usageEvents[eventID]
		if !ok {
			err = store.ErrNotFound
			return
		}
		e.PricedAt = &at
		m.data.usageEvents[eventID] = e
	})
	return err
}

func (m *MemStore) ScheduleEventRetry(ctx context.Context, eventID uuid.UUID, retryCount int, nextRetryAt time.Time) error {
	var err error
	m.withLock(func() {
		e, ok := m.data.usageEvents[eventID]
		if !ok {
			err = store.ErrNotFound
			return
		}
		e.RetryCount = retryCount
		e.NextRetryAt = &nextRetryAt
		m.data.usageEvents[eventID] = e
	})
	return err
}

func (m *MemStore) CountLineItemsForEvent(ctx context.Context, eventID uuid.UUID) (int, error) {
	var n int
	m.withLock(func() {
		n = len(m.data.lineItemsByEvent[eventID])
	})
	return n, nil
}
