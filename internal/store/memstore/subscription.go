package memstore

import (
	"context"

	"github.com/google/uuid"

	"github.com/fluxmeter/billing-core/internal/store"
)

// UpsertTeamSubscriptionByGatewayID is the webhook-replay-safe write C13
// relies on: keyed on the Stripe subscription id, so a redelivered
// customer.subscription.updated event overwrites in place instead of
// duplicating (spec §4.13).
func (m *MemStore) UpsertTeamSubscriptionByGatewayID(ctx context.Context, sub store.TeamSubscription) (store.TeamSubscription, error) {
	var out store.TeamSubscription
	m.withLock(func() {
		if existingID, ok := m.data.subsByGatewayID[sub.GatewaySubscriptionID]; ok {
			sub.ID = existingID
			if existing := m.data.subscriptions[existingID]; existing.TeamID != uuid.Nil {
				sub.TeamID = existing.TeamID
			}
		} else if sub.ID == uuid.Nil {
			sub.ID = uuid.New()
		}

		m.data.subscriptions[sub.ID] = sub
		m.data.subsByGatewayID[sub.GatewaySubscriptionID] = sub.ID

		if sub.Status == store.SubStatusActive || sub.Status == store.SubStatusTrialing {
			m.data.subsByTeamActive[sub.TeamID] = sub.ID
		} else if current, ok := m.data.subsByTeamActive[sub.TeamID]; ok && current == sub.ID {
			delete(m.data.subsByTeamActive, sub.TeamID)
		}

		out = sub
	})
	return out, nil
}

func (m *MemStore) GetTeamSubscriptionByGatewayID(ctx context.Context, gatewaySubscriptionID string) (store.TeamSubscription, error) {
	var out store.TeamSubscription
	var err error
	m.withLock(func() {
		id, ok := m.data.subsByGatewayID[gatewaySubscriptionID]
		if !ok {
			err = store.ErrNotFound
			return
		}
		out = m.data.subscriptions[id]
	})
	return out, err
}

func (m *MemStore) MarkSubscriptionCanceled(ctx context.Context, gatewaySubscriptionID string) (store.TeamSubscription, error) {
	var out store.TeamSubscription
	var err error
	m.withLock(func() {
		id, ok := m.data.subsByGatewayID[gatewaySubscriptionID]
		if !ok {
			err = store.ErrNotFound
			return
		}
		sub := m.data.subscriptions[id]
		sub.Status = store.SubStatusCanceled
		m.data.subscriptions[id] = sub
		if current, ok := m.data.subsByTeamActive[sub.TeamID]; ok && current == id {
			delete(m.data.subsByTeamActive, sub.TeamID)
		}
		out = sub
	})
	return out, err
}
