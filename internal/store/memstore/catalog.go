package memstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/fluxmeter/billing-core/internal/store"
)

func bundleAppKey(bundleID, appID uuid.UUID) string {
	return fmt.Sprintf("%s|%s", bundleID, appID)
}

func (m *MemStore) CreateBundle(ctx context.Context, b store.Bundle) (store.Bundle, error) {
	var out store.Bundle
	var err error
	m.withLock(func() {
		if _, exists := m.data.bundlesByCode[b.Code]; exists {
			err = store.ErrConflict
			return
		}
		if b.ID == uuid.Nil {
			b.ID = uuid.New()
		}
		m.data.bundles[b.ID] = b
		m.data.bundlesByCode[b.Code] = b.ID
		out = b
	})
	return out, err
}

func (m *MemStore) UpdateBundle(ctx context.Context, b store.Bundle) (store.Bundle, error) {
	var out store.Bundle
	var err error
	m.withLock(func() {
		existing, ok := m.data.bundles[b.ID]
		if !ok {
			err = store.ErrNotFound
			return
		}
		if existing.Code != b.Code {
			if owner, exists := m.data.bundlesByCode[b.Code]; exists && owner != b.ID {
				err = store.ErrConflict
				return
			}
			delete(m.data.bundlesByCode, existing.Code)
			m.data.bundlesByCode[b.Code] = b.ID
		}
		m.data.bundles[b.ID] = b
		out = b
	})
	return out, err
}

func (m *MemStore) GetBundle(ctx context.Context, id uuid.UUID) (store.Bundle, error) {
	var out store.Bundle
	var err error
	m.withLock(func() {
		b, ok := m.data.bundles[id]
		if !ok {
			err = store.ErrNotFound
			return
		}
		out = b
	})
	return out, err
}

func (m *MemStore) SetBundleApp(ctx context.Context, ba store.BundleApp) error {
	m.withLock(func() {
		m.data.bundleApps[bundleAppKey(ba.BundleID, ba.AppID)] = ba
	})
	return nil
}

func (m *MemStore) SetBundleMeterPolicy(ctx context.Context, p store.BundleMeterPolicy) error {
	m.withLock(func() {
		key := bundleAppKey(p.BundleID, p.AppID)
		list := m.data.bundleMeterPolicies[key]
		for i, existing := range list {
			if existing.MeterKey == p.MeterKey {
				list[i] = p
				m.data.bundleMeterPolicies[key] = list
				return
			}
		}
		m.data.bundleMeterPolicies[key] = append(list, p)
	})
	return nil
}

func (m *MemStore) ListBundleApp(ctx context.Context, bundleID, appID uuid.UUID) (store.BundleApp, error) {
	var out store.BundleApp
	var err error
	m.withLock(func() {
		ba, ok := m.data.bundleApps[bundleAppKey(bundleID, appID)]
		if !ok {
			err = store.ErrNotFound
			return
		}
		out = ba
	})
	return out, err
}

func (m *MemStore) ListBundleMeterPolicies(ctx context.Context, bundleID, appID uuid.UUID) ([]store.BundleMeterPolicy, error) {
	var out []store.BundleMeterPolicy
	m.withLock(func() {
		out = append(out, m.data.bundleMeterPolicies[bundleAppKey(bundleID, appID)]...)
	})
	return out, nil
}

// CreateContract enforces "at most one ACTIVE Contract per billToId" only
// when the new contract is itself created ACTIVE; DRAFT contracts may
// coexist freely (spec §3, §4.9).
func (m *MemStore) CreateContract(ctx context.Context, c store.Contract) (store.Contract, error) {
	var out store.Contract
	var err error
	m.withLock(func() {
		if c.Status == store.ContractStatusActive {
			if _, exists := m.data.activeContractByBillTo[c.BillToID]; exists {
				err = store.ErrConflict
				return
			}
		}
		if c.ID == uuid.Nil {
			c.ID = uuid.New()
		}
		m.data.contracts[c.ID] = c
		if c.Status == store.ContractStatusActive {
			m.data.activeContractByBillTo[c.BillToID] = c.ID
		}
		out = c
	})
	return out, err
}

// UpdateContract re-validates the active-contract invariant in the same
// "transaction" (here: the same locked critical section) per spec §4.9.
func (m *MemStore) UpdateContract(ctx context.Context, c store.Contract) (store.Contract, error) {
	var out store.Contract
	var err error
	m.withLock(func() {
		existing, ok := m.data.contracts[c.ID]
		if !ok {
			err = store.ErrNotFound
			return
		}

		if c.Status == store.ContractStatusActive && existing.Status != store.ContractStatusActive {
			if owner, exists := m.data.activeContractByBillTo[c.BillToID]; exists && owner != c.ID {
				err = store.ErrConflict
				return
			}
		}

		if existing.Status == store.ContractStatusActive && c.Status != store.ContractStatusActive {
			delete(m.data.activeContractByBillTo, existing.BillToID)
		}
		if c.Status == store.ContractStatusActive {
			m.data.activeContractByBillTo[c.BillToID] = c.ID
		}

		m.data.contracts[c.ID] = c
		out = c
	})
	return out, err
}

func (m *MemStore) GetContract(ctx context.Context, id uuid.UUID) (store.Contract, error) {
	var out store.Contract
	var err error
	m.withLock(func() {
		c, ok := m.data.contracts[id]
		if !ok {
			err = store.ErrNotFound
			return
		}
		out = c
	})
	return out, err
}

func (m *MemStore) GetActiveContractForBillTo(ctx context.Context, billToID uuid.UUID) (store.Contract, error) {
	var out store.Contract
	var err error
	m.withLock(func() {
		id, ok := m.data.activeContractByBillTo[billToID]
		if !ok {
			err = store.ErrNotFound
			return
		}
		out = m.data.contracts[id]
	})
	return out, err
}

func (m *MemStore) ListActiveContracts(ctx context.Context) ([]store.Contract, error) {
	var out []store.Contract
	m.withLock(func() {
		for _, id := range m.data.activeContractByBillTo {
			out = append(out, m.data.contracts[id])
		}
	})
	return out, nil
}

// ReplaceContractOverrides performs a delete-then-insert within the single
// locked section standing in for a transaction (spec §4.9); an empty list
// clears all overrides for the contract.
func (m *MemStore) ReplaceContractOverrides(ctx context.Context, contractID uuid.UUID, overrides []store.ContractOverride) error {
	m.withLock(func() {
		if len(overrides) == 0 {
			delete(m.data.contractOverrides, contractID)
			return
		}
		m.data.contractOverrides[contractID] = append([]store.ContractOverride{}, overrides...)
	})
	return nil
}

func (m *MemStore) ListContractOverrides(ctx context.Context, contractID uuid.UUID) ([]store.ContractOverride, error) {
	var out []store.ContractOverride
	m.withLock(func() {
		out = append(out, m.data.contractOverrides[contractID]...)
	})
	return out, nil
}

func (m *MemStore) GetPlanByCode(ctx context.Context, appID uuid.UUID, code string) (store.Plan, error) {
	var out store.Plan
	var err error
	m.withLock(func() {
		p, ok := m.data.plans[fmt.Sprintf("%s|%s", appID, code)]
		if !ok {
			err = store.ErrNotFound
			return
		}
		out = p
	})
	return out, err
}

func (m *MemStore) GetPlanByID(ctx context.Context, id uuid.UUID) (store.Plan, error) {
	var out store.Plan
	var err error
	m.withLock(func() {
		p, ok := m.data.plansByID[id]
		if !ok {
			err = store.ErrNotFound
			return
		}
		out = p
	})
	return out, err
}

func (m *MemStore) GetAddonByCode(ctx context.Context, appID uuid.UUID, code string) (store.Addon, error) {
	var out store.Addon
	var err error
	m.withLock(func() {
		a, ok := m.data.addons[fmt.Sprintf("%s|%s", appID, code)]
		if !ok {
			err = store.ErrNotFound
			return
		}
		out = a
	})
	return out, err
}

func (m *MemStore) ListStripeProductMapsForPlan(ctx context.Context, planID uuid.UUID) ([]store.StripeProductMap, error) {
	var out []store.StripeProductMap
	m.withLock(func() {
		out = append(out, m.data.productMaps[planID]...)
	})
	return out, nil
}

func (m *MemStore) GetActiveSubscriptionForTeam(ctx context.Context, teamID uuid.UUID) (store.TeamSubscription, error) {
	var out store.TeamSubscription
	var err error
	m.withLock(func() {
		id, ok := m.data.subsByTeamActive[teamID]
		if !ok {
			err = store.ErrNotFound
			return
		}
		out = m.data.subscriptions[id]
	})
	return out, err
}

// SeedPlan and SeedAddon are test/setup helpers (no uniqueness contract in
// the interface; used by fixtures to populate the catalog directly).
func (m *MemStore) SeedPlan(p store.Plan) {
	m.withLock(func() {
		if p.ID == uuid.Nil {
			p.ID = uuid.New()
		}
		m.data.plans[fmt.Sprintf("%s|%s", p.AppID, p.Code)] = p
		m.data.plansByID[p.ID] = p
	})
}

func (m *MemStore) SeedAddon(a store.Addon) {
	m.withLock(func() {
		if a.ID == uuid.Nil {
			a.ID = uuid.New()
		}
		m.data.addons[fmt.Sprintf("%s|%s", a.AppID, a.Code)] = a
		m.data.addonsByID[a.ID] = a
	})
}

func (m *MemStore) SeedStripeProductMap(ownerID uuid.UUID, pm store.StripeProductMap) {
	m.withLock(func() {
		if pm.ID == uuid.Nil {
			pm.ID = uuid.New()
		}
		m.data.productMaps[ownerID] = append(m.data.productMaps[ownerID], pm)
	})
}

func (m *MemStore) SeedPriceBook(pb store.PriceBook) store.PriceBook {
	m.withLock(func() {
		if pb.ID == uuid.Nil {
			pb.ID = uuid.New()
		}
		m.data.priceBooks[pb.ID] = pb
	})
	return pb
}

func (m *MemStore) SeedPriceRule(r store.PriceRule) store.PriceRule {
	m.withLock(func() {
		if r.ID == uuid.Nil {
			r.ID = uuid.New()
		}
		m.data.priceRules[r.PriceBookID] = append(m.data.priceRules[r.PriceBookID], r)
	})
	return r
}
