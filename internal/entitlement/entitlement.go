// Package entitlement implements the layered policy merge of spec §4.8
// (component C8): Bundle defaults, overlaid by ContractOverride, overlaid by
// the team's live Subscription plan. Resolve is a pure function of stored
// state; Resolver adds the optional per-process memoizing cache spec §4.8
// explicitly allows but does not mandate.
package entitlement

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/fluxmeter/billing-core/internal/store"
)

// Result is the EntitlementResult shape of spec §4.8.
type Result struct {
	Features      map[string]bool
	MeterPolicies map[string]store.MeterPolicy
	BillingMode   store.BillingMode
	Billable      map[string]bool
}

// Resolver wraps store.Store with the per-process memoizing cache spec §4.8
// allows, keyed by (teamId, contractVersion, subscriptionVersion) — here
// approximated by (teamId, contractId, subscriptionId) since the data model
// carries no explicit version counters; a cache entry is invalidated
// wholesale by Invalidate(teamId), which is the spec's "refresh" command.
type Resolver struct {
	Store store.Store
	cache sync.Map // key: string -> Result
}

func cacheKey(teamID uuid.UUID, contractID, subscriptionID string) string {
	return fmt.Sprintf("%s|%s|%s", teamID, contractID, subscriptionID)
}

// Invalidate evicts every cached entry for a team; called by C9 on contract
// mutation and C13 on subscription change (spec §4.8, "refresh entitlements
// for team T").
func (r *Resolver) Invalidate(teamID uuid.UUID) {
	prefix := teamID.String() + "|"
	r.cache.Range(func(k, _ any) bool {
		if key, ok := k.(string); ok && len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			r.cache.Delete(k)
		}
		return true
	})
}

// Resolve implements spec §4.8's six-step resolution order, with caching on
// top of the pure Resolve function.
func (r *Resolver) Resolve(ctx context.Context, appID, teamID uuid.UUID) (Result, error) {
	team, err := r.Store.GetTeam(ctx, appID, teamID)
	if err != nil {
		return Result{}, err
	}

	entity, err := r.Store.GetBillingEntityForTeam(ctx, teamID)
	if err != nil && err != store.ErrNotFound {
		return Result{}, err
	}

	var contract store.Contract
	hasContract := false
	if entity.ID != uuid.Nil {
		contract, err = r.Store.GetActiveContractForBillTo(ctx, entity.ID)
		if err == nil {
			hasContract = true
		} else if err != store.ErrNotFound {
			return Result{}, err
		}
	}

	sub, err := r.Store.GetActiveSubscriptionForTeam(ctx, teamID)
	hasSub := err == nil
	if err != nil && err != store.ErrNotFound {
		return Result{}, err
	}

	contractKey := "none"
	if hasContract {
		contractKey = contract.ID.String()
	}
	subKey := "none"
	if hasSub {
		subKey = sub.ID.String()
	}
	key := cacheKey(teamID, contractKey, subKey)
	if cached, ok := r.cache.Load(key); ok {
		return cached.(Result), nil
	}

	result := Result{
		Features:      map[string]bool{},
		MeterPolicies: map[string]store.MeterPolicy{},
		Billable:      map[string]bool{},
		BillingMode:   team.BillingMode,
	}

	if hasContract {
		bundle, err := r.Store.GetBundle(ctx, contract.BundleID)
		if err != nil && err != store.ErrNotFound {
			return Result{}, err
		}
		_ = bundle // presence validated; fields merged via BundleApp/BundleMeterPolicy below

		bundleApp, err := r.Store.ListBundleApp(ctx, contract.BundleID, appID)
		if err == nil {
			for k, v := range bundleApp.DefaultFeatureFlags {
				result.Features[k] = v
			}
		} else if err != store.ErrNotFound {
			return Result{}, err
		}

		policies, err := r.Store.ListBundleMeterPolicies(ctx, contract.BundleID, appID)
		if err != nil {
			return Result{}, err
		}
		for _, p := range policies {
			result.MeterPolicies[p.MeterKey] = p.Policy
		}

		overrides, err := r.Store.ListContractOverrides(ctx, contract.ID)
		if err != nil {
			return Result{}, err
		}
		for _, o := range overrides {
			if o.AppID == appID {
				result.MeterPolicies[o.MeterKey] = o.Policy
			}
		}
	}

	if hasSub {
		plan, err := r.Store.GetPlanByID(ctx, sub.PlanID)
		if err != nil && err != store.ErrNotFound {
			return Result{}, err
		}
		for k, v := range plan.FeatureFlags {
			result.Features[k] = v
		}
		// plan-attached meter policies are out of scope (spec §4.8 step 4
		// parenthetical): treated as empty unless present, and none are
		// modeled, so no overlay happens here.
	}

	for meterKey, policy := range result.MeterPolicies {
		result.Billable[meterKey] = policy.OverageBilling != store.OverageBillingNone
	}

	r.cache.Store(key, result)
	return result, nil
}
