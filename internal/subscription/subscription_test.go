package subscription

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"

	"github.com/fluxmeter/billing-core/internal/ledger"
	"github.com/fluxmeter/billing-core/internal/store"
	"github.com/fluxmeter/billing-core/internal/store/memstore"
)

type fakeInvalidator struct {
	invalidated []uuid.UUID
}

func (f *fakeInvalidator) Invalidate(teamID uuid.UUID) {
	f.invalidated = append(f.invalidated, teamID)
}

func TestHandleCheckoutCompletedCreatesSubscriptionAndCharges(t *testing.T) {
	st := memstore.New()
	appID := uuid.New()
	team, _, err := st.GetOrCreateTeamByExternalRef(context.Background(), appID, "ext-1", store.Team{})
	require.NoError(t, err)

	inv := &fakeInvalidator{}
	svc := &Service{Store: st, Ledger: &ledger.Service{Store: st}, Entitlement: inv}

	session := &stripe.CheckoutSession{
		ID:          "cs_1",
		Mode:        stripe.CheckoutSessionModeSubscription,
		AmountTotal: 2500,
		Currency:    stripe.Currency("usd"),
		Metadata: map[string]string{
			"teamId": team.ID.String(),
			"appId":  appID.String(),
		},
	}

	err = svc.HandleCheckoutCompleted(context.Background(), "evt_1", session)
	require.NoError(t, err)

	balance, err := (&ledger.Service{Store: st}).GetBalanceForBillTo(context.Background(), appID, mustEntity(t, st, team.ID), store.LedgerAccountAccountsReceivable)
	require.NoError(t, err)
	assert.Equal(t, int64(2500), balance)
	assert.Equal(t, []uuid.UUID{team.ID}, inv.invalidated)

	// replayed event id is a no-op, not a double charge
	err = svc.HandleCheckoutCompleted(context.Background(), "evt_1", session)
	require.NoError(t, err)
	balance, err = (&ledger.Service{Store: st}).GetBalanceForBillTo(context.Background(), appID, mustEntity(t, st, team.ID), store.LedgerAccountAccountsReceivable)
	require.NoError(t, err)
	assert.Equal(t, int64(2500), balance)
}

func TestHandleCheckoutCompletedIgnoresNonSubscriptionMode(t *testing.T) {
	st := memstore.New()
	svc := &Service{Store: st, Ledger: &ledger.Service{Store: st}, Entitlement: &fakeInvalidator{}}
	err := svc.HandleCheckoutCompleted(context.Background(), "evt_1", &stripe.CheckoutSession{Mode: stripe.CheckoutSessionModePayment})
	assert.NoError(t, err)
}

func TestHandleSubscriptionUpdatedChangesStatus(t *testing.T) {
	st := memstore.New()
	teamID := uuid.New()
	_, err := st.UpsertTeamSubscriptionByGatewayID(context.Background(), store.TeamSubscription{
		TeamID: teamID, GatewaySubscriptionID: "sub_1", Status: store.SubStatusTrialing,
	})
	require.NoError(t, err)

	inv := &fakeInvalidator{}
	svc := &Service{Store: st, Ledger: &ledger.Service{Store: st}, Entitlement: inv}

	err = svc.HandleSubscriptionUpdated(context.Background(), &stripe.Subscription{
		ID: "sub_1", Status: stripe.SubscriptionStatusActive,
	})
	require.NoError(t, err)

	updated, err := st.GetTeamSubscriptionByGatewayID(context.Background(), "sub_1")
	require.NoError(t, err)
	assert.Equal(t, store.SubStatusActive, updated.Status)
	assert.Equal(t, []uuid.UUID{teamID}, inv.invalidated)
}

func TestHandleSubscriptionUpdatedUnknownGatewayIDIsNoop(t *testing.T) {
	st := memstore.New()
	svc := &Service{Store: st, Ledger: &ledger.Service{Store: st}, Entitlement: &fakeInvalidator{}}
	err := svc.HandleSubscriptionUpdated(context.Background(), &stripe.Subscription{ID: "missing", Status: stripe.SubscriptionStatusActive})
	assert.NoError(t, err)
}

func TestHandleSubscriptionDeletedCancels(t *testing.T) {
	st := memstore.New()
	teamID := uuid.New()
	_, err := st.UpsertTeamSubscriptionByGatewayID(context.Background(), store.TeamSubscription{
		TeamID: teamID, GatewaySubscriptionID: "sub_2", Status: store.SubStatusActive,
	})
	require.NoError(t, err)

	inv := &fakeInvalidator{}
	svc := &Service{Store: st, Ledger: &ledger.Service{Store: st}, Entitlement: inv}

	err = svc.HandleSubscriptionDeleted(context.Background(), &stripe.Subscription{ID: "sub_2"})
	require.NoError(t, err)

	canceled, err := st.GetTeamSubscriptionByGatewayID(context.Background(), "sub_2")
	require.NoError(t, err)
	assert.Equal(t, store.SubStatusCanceled, canceled.Status)
	assert.Equal(t, []uuid.UUID{teamID}, inv.invalidated)

	_, err = st.GetActiveSubscriptionForTeam(context.Background(), teamID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func mustEntity(t *testing.T, st *memstore.MemStore, teamID uuid.UUID) uuid.UUID {
	t.Helper()
	entity, err := st.GetBillingEntityForTeam(context.Background(), teamID)
	require.NoError(t, err)
	return entity.ID
}
