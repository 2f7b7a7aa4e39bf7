package entitlement

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxmeter/billing-core/internal/store"
	"github.com/fluxmeter/billing-core/internal/store/memstore"
)

func TestResolvePlanOnlyTeam(t *testing.T) {
	st := memstore.New()
	appID := uuid.New()

	team, _, err := st.GetOrCreateTeamByExternalRef(context.Background(), appID, "ext-1", store.Team{
		BillingMode: store.BillingModeSubscription,
	})
	require.NoError(t, err)

	st.SeedPlan(store.Plan{AppID: appID, Code: "pro", FeatureFlags: map[string]bool{"exports": true}})
	plan, err := st.GetPlanByCode(context.Background(), appID, "pro")
	require.NoError(t, err)

	_, err = st.UpsertTeamSubscriptionByGatewayID(context.Background(), store.TeamSubscription{
		TeamID: team.ID, GatewaySubscriptionID: "sub_1", Status: store.SubStatusActive, PlanID: plan.ID,
	})
	require.NoError(t, err)

	resolver := &Resolver{Store: st}
	result, err := resolver.Resolve(context.Background(), appID, team.ID)
	require.NoError(t, err)
	assert.True(t, result.Features["exports"])
	assert.Equal(t, store.BillingModeSubscription, result.BillingMode)
	assert.Empty(t, result.MeterPolicies)
}

func TestResolveContractOverridesBundleDefaults(t *testing.T) {
	st := memstore.New()
	appID := uuid.New()

	team, _, err := st.GetOrCreateTeamByExternalRef(context.Background(), appID, "ext-2", store.Team{
		BillingMode: store.BillingModeEnterpriseContract,
	})
	require.NoError(t, err)
	entity, err := st.GetBillingEntityForTeam(context.Background(), team.ID)
	require.NoError(t, err)

	bundle, err := st.CreateBundle(context.Background(), store.Bundle{Code: "enterprise", Status: store.BundleStatusActive})
	require.NoError(t, err)

	require.NoError(t, st.SetBundleMeterPolicy(context.Background(), store.BundleMeterPolicy{
		BundleID: bundle.ID, AppID: appID, MeterKey: "api_call",
		Policy: store.MeterPolicy{LimitType: store.LimitTypeIncluded, Enforcement: store.EnforcementSoft, OverageBilling: store.OverageBillingPerUnit},
	}))

	contract, err := st.CreateContract(context.Background(), store.Contract{
		BillToID: entity.ID, BundleID: bundle.ID, Status: store.ContractStatusActive,
	})
	require.NoError(t, err)

	require.NoError(t, st.ReplaceContractOverrides(context.Background(), contract.ID, []store.ContractOverride{{
		ContractID: contract.ID, AppID: appID, MeterKey: "api_call",
		Policy: store.MeterPolicy{LimitType: store.LimitTypeUnlimited, Enforcement: store.EnforcementNone, OverageBilling: store.OverageBillingNone},
	}}))

	resolver := &Resolver{Store: st}
	result, err := resolver.Resolve(context.Background(), appID, team.ID)
	require.NoError(t, err)

	policy := result.MeterPolicies["api_call"]
	assert.Equal(t, store.LimitTypeUnlimited, policy.LimitType)
	assert.False(t, result.Billable["api_call"])
}

func TestResolveIsCachedUntilInvalidated(t *testing.T) {
	st := memstore.New()
	appID := uuid.New()
	team, _, err := st.GetOrCreateTeamByExternalRef(context.Background(), appID, "ext-3", store.Team{})
	require.NoError(t, err)

	resolver := &Resolver{Store: st}
	first, err := resolver.Resolve(context.Background(), appID, team.ID)
	require.NoError(t, err)

	st.SeedPlan(store.Plan{AppID: appID, Code: "changed", FeatureFlags: map[string]bool{"new": true}})
	plan, err := st.GetPlanByCode(context.Background(), appID, "changed")
	require.NoError(t, err)

	second, err := resolver.Resolve(context.Background(), appID, team.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	resolver.Invalidate(team.ID)

	_, err = st.UpsertTeamSubscriptionByGatewayID(context.Background(), store.TeamSubscription{
		TeamID: team.ID, GatewaySubscriptionID: "sub_x", Status: store.SubStatusActive, PlanID: plan.ID,
	})
	require.NoError(t, err)

	third, err := resolver.Resolve(context.Background(), appID, team.ID)
	require.NoError(t, err)
	assert.NotEqual(t, first, third)
}
